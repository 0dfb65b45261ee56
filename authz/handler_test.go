package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/push"
)

type handlerFakeAdaptor struct{}

func (handlerFakeAdaptor) InitConfig(cfg *config.Config) error { return nil }
func (handlerFakeAdaptor) Init(ctx context.Context) error       { return nil }
func (handlerFakeAdaptor) Destroy(ctx context.Context) error    { return nil }
func (handlerFakeAdaptor) GetDocIds(ctx context.Context, pusher push.PushContext) error {
	return nil
}
func (handlerFakeAdaptor) GetDocContent(ctx context.Context, req *adaptor.Request, resp adaptor.ResponseWriter) error {
	return nil
}
func (handlerFakeAdaptor) IsUserAuthorized(ctx context.Context, user string, groups []string, ids []docid.DocID) (map[docid.DocID]acl.AuthzStatus, error) {
	out := make(map[docid.DocID]acl.AuthzStatus, len(ids))
	for _, id := range ids {
		out[id] = acl.Permit
	}
	return out, nil
}

func TestHandlerSignsAndReturnsDecisions(t *testing.T) {
	base, _ := url.Parse("http://docs.example.com")
	codec := docid.NewNamespacedCodec(base, "/doc/")
	responder := NewResponder(codec, handlerFakeAdaptor{}, base)
	key := []byte("test-signing-key-0123456789abcdef")
	h := NewHandler(responder, key, "gsadapt")

	e := echo.New()
	g := e.Group("")
	h.Register(g, "/authz")

	target, err := codec.Encode("a.txt")
	require.NoError(t, err)

	body, err := json.Marshal([]wireQuery{{Subject: "alice", Resource: target.String()}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/authz", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	token, err := jwt.Parse(rec.Body.Bytes(), jwt.WithKey(jwa.HS256, key))
	require.NoError(t, err)

	raw, ok := token.Get("decisions")
	require.True(t, ok)

	var decisions []wireDecision
	decisionsBytes, err := json.Marshal(raw)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(decisionsBytes, &decisions))

	require.Len(t, decisions, 1)
	assert.Equal(t, "PERMIT", decisions[0].Status)
}
