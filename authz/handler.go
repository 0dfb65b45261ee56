package authz

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/docuhub/gsadapt/common"
)

// wireQuery is one query as it arrives over the wire.
type wireQuery struct {
	Subject  string   `json:"subject"`
	Groups   []string `json:"groups,omitempty"`
	Resource string   `json:"resource"`
}

// wireDecision is one decision as returned over the wire.
type wireDecision struct {
	Resource string `json:"resource"`
	Status   string `json:"status"`
}

// Handler exposes Evaluate as a POST-only Echo endpoint, wrapping the
// response in a signed envelope (an HMAC-signed JWT carrying the decisions
// as a claim) so a downstream consumer can verify it came from this
// adaptor, mirroring the batch AuthzDecisionStatement-in-a-signed-Assertion
// shape.
type Handler struct {
	responder *Responder
	signer    jwa.SignatureAlgorithm
	key       []byte
	issuer    string
	logger    *common.ContextLogger
}

// NewHandler builds a Handler that signs responses with HS256 under key.
func NewHandler(responder *Responder, key []byte, issuer string) *Handler {
	return &Handler{
		responder: responder,
		signer:    jwa.HS256,
		key:       key,
		issuer:    issuer,
		logger:    common.ServiceLogger("authz"),
	}
}

// Register mounts the POST-only batch endpoint on g.
func (h *Handler) Register(g *echo.Group, path string) {
	g.POST(path, h.handle)
}

func (h *Handler) handle(c echo.Context) error {
	var wireBatch []wireQuery
	if err := json.NewDecoder(c.Request().Body).Decode(&wireBatch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid batch: "+err.Error())
	}

	batch := make([]Query, len(wireBatch))
	for i, wq := range wireBatch {
		batch[i] = Query{Subject: wq.Subject, Groups: wq.Groups, Resource: wq.Resource}
	}

	decisions, err := h.responder.Evaluate(c.Request().Context(), batch)
	if err != nil {
		if err == ErrMixedSubjects {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	wireDecisions := make([]wireDecision, len(decisions))
	for i, d := range decisions {
		wireDecisions[i] = wireDecision{Resource: d.Query.Resource, Status: d.Status.String()}
	}

	signed, err := h.sign(wireDecisions)
	if err != nil {
		h.logger.WithError(err).Error("failed to sign authz response")
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to sign response")
	}

	return c.Blob(http.StatusOK, "application/jwt", signed)
}

func (h *Handler) sign(decisions []wireDecision) ([]byte, error) {
	payload, err := json.Marshal(decisions)
	if err != nil {
		return nil, err
	}

	builder := jwt.NewBuilder().
		IssuedAt(time.Now()).
		Claim("decisions", json.RawMessage(payload))
	if h.issuer != "" {
		builder = builder.Issuer(h.issuer)
	}
	token, err := builder.Build()
	if err != nil {
		return nil, err
	}
	return jwt.Sign(token, jwt.WithKey(h.signer, h.key))
}
