package server

import (
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/journal"
	"github.com/docuhub/gsadapt/push"
)

type stubAdaptor struct {
	content     map[docid.DocID]string
	notModified map[docid.DocID]bool
}

func (s *stubAdaptor) InitConfig(cfg *config.Config) error { return nil }
func (s *stubAdaptor) Init(ctx context.Context) error       { return nil }
func (s *stubAdaptor) Destroy(ctx context.Context) error    { return nil }
func (s *stubAdaptor) GetDocIds(ctx context.Context, pusher push.PushContext) error { return nil }
func (s *stubAdaptor) IsUserAuthorized(ctx context.Context, user string, groups []string, ids []docid.DocID) (map[docid.DocID]acl.AuthzStatus, error) {
	return nil, nil
}

func (s *stubAdaptor) GetDocContent(ctx context.Context, req *adaptor.Request, resp adaptor.ResponseWriter) error {
	if s.notModified[req.ID] {
		resp.RespondNotModified()
		return nil
	}
	content, ok := s.content[req.ID]
	if !ok {
		return adaptor.ErrNotFound
	}
	resp.SetContentType("text/plain")
	_, err := resp.Write([]byte(content))
	return err
}

func newTestHandler(a adaptor.Adaptor) (*DocsHandler, docid.Codec) {
	base, _ := url.Parse("http://docs.example.com/")
	codec := docid.NewNamespacedCodec(base, "/doc/")
	j := journal.New()
	return NewDocsHandler(codec, a, j, GSAIdentifier{}, "docs.example.com"), codec
}

func TestDocsHandlerServesContent(t *testing.T) {
	a := &stubAdaptor{content: map[docid.DocID]string{"report.txt": "hello world"}}
	h, codec := newTestHandler(a)

	target, err := codec.Encode("report.txt")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target.Path, nil)
	req.Host = target.Host
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
}

func TestDocsHandlerGzipsWhenAccepted(t *testing.T) {
	a := &stubAdaptor{content: map[docid.DocID]string{"report.txt": "hello world"}}
	h, codec := newTestHandler(a)

	target, err := codec.Encode("report.txt")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target.Path, nil)
	req.Host = target.Host
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.handle(c))
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	gr, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gr)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
}

func TestDocsHandlerNotFound(t *testing.T) {
	a := &stubAdaptor{content: map[docid.DocID]string{}}
	h, codec := newTestHandler(a)

	target, err := codec.Encode("missing.txt")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target.Path, nil)
	req.Host = target.Host
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err = h.handle(c)
	require.Error(t, err)
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, httpErr.Code)
}

func TestDocsHandlerNotModified(t *testing.T) {
	a := &stubAdaptor{notModified: map[docid.DocID]bool{"report.txt": true}}
	h, codec := newTestHandler(a)

	target, err := codec.Encode("report.txt")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target.Path, nil)
	req.Host = target.Host
	req.Header.Set("If-Modified-Since", "Mon, 02 Jan 2006 15:04:05 GMT")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.handle(c))
	assert.Equal(t, http.StatusNotModified, rec.Code)
}

func TestDocsHandlerHeadHasNoBody(t *testing.T) {
	a := &stubAdaptor{content: map[docid.DocID]string{"report.txt": "hello world"}}
	h, codec := newTestHandler(a)

	target, err := codec.Encode("report.txt")
	require.NoError(t, err)

	e := echo.New()
	req := httptest.NewRequest(http.MethodHead, target.Path, nil)
	req.Host = target.Host
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.handle(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
