package authn

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docuhub/gsadapt/session"
)

// Handler exposes the authn initiation and callback endpoints as Echo
// routes.
type Handler struct {
	orchestrator *Orchestrator
	sessions     *session.Store
	cookieCodec  *session.CookieCodec
}

// NewHandler builds a Handler.
func NewHandler(o *Orchestrator, sessions *session.Store, cookieCodec *session.CookieCodec) *Handler {
	return &Handler{orchestrator: o, sessions: sessions, cookieCodec: cookieCodec}
}

// Register mounts the initiation endpoint (GET/HEAD) and the callback
// endpoint (GET, matching the artifact-binding shape) on g.
func (h *Handler) Register(g *echo.Group, initiatePath, callbackPath string) {
	g.GET(initiatePath, h.initiate)
	g.HEAD(initiatePath, h.initiate)
	g.GET(callbackPath, h.callback)
}

func (h *Handler) initiate(c echo.Context) error {
	s, ok := sessionFromRequest(c, h.sessions, h.cookieCodec)
	if !ok {
		var err error
		s, err = h.sessions.Create()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		setSessionCookie(c, h.cookieCodec, s)
	}

	origURI := c.QueryParam("returnTo")
	if origURI == "" {
		origURI = "/"
	}
	dest := h.orchestrator.Initiate(s, c.RealIP(), origURI)
	return c.Redirect(http.StatusFound, dest)
}

func (h *Handler) callback(c echo.Context) error {
	s, ok := sessionFromRequest(c, h.sessions, h.cookieCodec)
	if !ok {
		return echo.NewHTTPError(http.StatusForbidden, "no session")
	}

	code := c.QueryParam("code")
	origURI, err := h.orchestrator.CompleteCallback(c.Request().Context(), s, code)
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return c.Redirect(http.StatusFound, origURI)
}
