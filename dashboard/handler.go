package dashboard

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuhub/gsadapt/journal"
	"github.com/docuhub/gsadapt/session"
)

// XSRFAttrKey is the session attribute holding the per-session XSRF token.
const XSRFAttrKey = "dashboard.xsrf"

// XSRFHeader is the header a caller must echo the session's token back in.
const XSRFHeader = "X-Gsadapt-XSRF-Token"

// rpcRequest is the method-surface-only JSON-RPC shape: a method name and
// opaque params, no batching or notifications.
type rpcRequest struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler exposes the monitor's report over a minimal JSON-RPC-shaped POST
// endpoint, gated by a header-echoed XSRF token bound to the caller's
// session.
type Handler struct {
	monitor  *Monitor
	journal  *journal.Journal
	sessions *session.Store
	codec    *session.CookieCodec
}

// NewHandler builds a Handler. j backs the dashboard/journalSnapshot method;
// it is typically the same journal monitor's sources were built over.
func NewHandler(monitor *Monitor, j *journal.Journal, sessions *session.Store, codec *session.CookieCodec) *Handler {
	return &Handler{monitor: monitor, journal: j, sessions: sessions, codec: codec}
}

// Register mounts the RPC endpoint and an XSRF-token bootstrap endpoint on
// g (a group typically already gated by admin.Gate.Middleware).
func (h *Handler) Register(g *echo.Group, rpcPath, tokenPath string) {
	g.GET(tokenPath, h.issueToken)
	g.POST(rpcPath, h.handleRPC)
}

// issueToken mints (or reuses) the caller's session XSRF token and returns
// it so the dashboard UI can echo it back on subsequent RPC calls.
func (h *Handler) issueToken(c echo.Context) error {
	s, ok := h.sessionFromRequest(c)
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no session")
	}
	token, ok := s.Get(XSRFAttrKey)
	if !ok {
		var err error
		token, err = newXSRFToken()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		s.Set(XSRFAttrKey, token)
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token.(string)})
}

func (h *Handler) handleRPC(c echo.Context) error {
	s, ok := h.sessionFromRequest(c)
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no session")
	}
	expected, ok := s.Get(XSRFAttrKey)
	if !ok || c.Request().Header.Get(XSRFHeader) != expected.(string) {
		return echo.NewHTTPError(http.StatusForbidden, "missing or mismatched XSRF token")
	}

	var req rpcRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request: "+err.Error())
	}

	switch req.Method {
	case "dashboard/status":
		return c.JSON(http.StatusOK, rpcResponse{Result: h.monitor.Check()})
	case "dashboard/statusSources":
		return c.JSON(http.StatusOK, rpcResponse{Result: h.monitor.Check().Statuses})
	case "dashboard/journalSnapshot":
		return c.JSON(http.StatusOK, rpcResponse{Result: h.journal.Snapshot()})
	default:
		return c.JSON(http.StatusOK, rpcResponse{Error: "unknown method: " + req.Method})
	}
}

func (h *Handler) sessionFromRequest(c echo.Context) (*session.Session, bool) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	id, err := h.codec.Decode(cookie.Value)
	if err != nil {
		return nil, false
	}
	return h.sessions.Lookup(id)
}

func newXSRFToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
