// Package authn implements the per-session authentication state machine and
// its realization on top of OpenID Connect: NONE -> PENDING -> AUTHENTICATED,
// with a self-loop back to NONE on failure or expiry.
package authn

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/session"
)

// State is a position in the per-session authentication machine.
type State int

const (
	None State = iota
	Pending
	Authenticated
)

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Pending:
		return "PENDING"
	case Authenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// AttrKey is the session attribute key the machine's state is stored under.
const AttrKey = "authn.state"

// Info is the session-attached record for the current state.
type Info struct {
	State       State
	Client      string
	OriginalURI string

	Principal string
	Groups    []string
	ExpiresAt time.Time
}

// Provider wraps OIDC discovery + an oauth2 authorization-code flow,
// standing in for the source's SAML AuthnRequest/assertion-consumer
// exchange: the redirect-then-callback shape is the same, the wire
// encoding differs.
type Provider struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
	groupsClaim  string
	logger       *common.ContextLogger
}

// NewProvider discovers the OIDC issuer at issuerURL and builds a Provider
// for the given client registration.
func NewProvider(ctx context.Context, issuerURL, clientID, clientSecret, redirectURL string, groupsClaim string) (*Provider, error) {
	p, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("authn: discovering OIDC provider: %w", err)
	}
	verifier := p.Verifier(&oidc.Config{ClientID: clientID})

	if groupsClaim == "" {
		groupsClaim = "groups"
	}

	return &Provider{
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", groupsClaim},
		},
		groupsClaim: groupsClaim,
		logger:      common.ServiceLogger("authn"),
	}, nil
}

// claims is the subset of the ID token's claims this machine consumes.
type claims struct {
	Subject string   `json:"sub"`
	Groups  []string `json:"groups"`
	Expiry  int64    `json:"exp"`
}

// Orchestrator drives the session state machine, backed by a Store and a
// Provider.
type Orchestrator struct {
	sessions *session.Store
	provider *Provider
	logger   *common.ContextLogger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(sessions *session.Store, provider *Provider) *Orchestrator {
	return &Orchestrator{sessions: sessions, provider: provider, logger: common.ServiceLogger("authn")}
}

// infoOf reads the current Info from a session, returning the None zero
// value if unset.
func infoOf(s *session.Session) Info {
	v, ok := s.Get(AttrKey)
	if !ok {
		return Info{State: None}
	}
	info, ok := v.(Info)
	if !ok {
		return Info{State: None}
	}
	return info
}

// CurrentState returns s's state, collapsing AUTHENTICATED back to NONE if
// it has expired (checked on access, per the state table).
func (o *Orchestrator) CurrentState(s *session.Session) Info {
	var result Info
	s.Transact(func(attrs map[string]any) {
		v, _ := attrs[AttrKey].(Info)
		if v.State == Authenticated && time.Now().After(v.ExpiresAt) {
			v = Info{State: None}
			attrs[AttrKey] = v
		}
		result = v
	})
	return result
}

// Initiate begins authentication for a session with no prior request in
// flight: transitions to PENDING(client, originalURI) and returns the
// provider's authorization URL to redirect the client to.
func (o *Orchestrator) Initiate(s *session.Session, client, originalURI string) string {
	s.Transact(func(attrs map[string]any) {
		attrs[AttrKey] = Info{State: Pending, Client: client, OriginalURI: originalURI}
	})
	return o.provider.oauth2Config.AuthCodeURL(s.ID())
}

// ErrNotPending is returned by CompleteCallback when the session wasn't in
// the PENDING state.
var ErrNotPending = fmt.Errorf("authn: session is not pending authentication")

// CompleteCallback validates the assertion-consumer callback: exchanges
// code for tokens, verifies the ID token, and atomically transitions the
// session to AUTHENTICATED on success or back to NONE on any failure.
// Returns the original URI to redirect to on success.
func (o *Orchestrator) CompleteCallback(ctx context.Context, s *session.Session, code string) (string, error) {
	pending := infoOf(s)
	if pending.State != Pending {
		return "", ErrNotPending
	}

	token, err := o.provider.oauth2Config.Exchange(ctx, code)
	if err != nil {
		o.toNone(s)
		return "", fmt.Errorf("authn: token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		o.toNone(s)
		return "", fmt.Errorf("authn: no id_token in token response")
	}

	idToken, err := o.provider.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		o.toNone(s)
		return "", fmt.Errorf("authn: id token invalid: %w", err)
	}

	var c claims
	if err := idToken.Claims(&c); err != nil {
		o.toNone(s)
		return "", fmt.Errorf("authn: parsing claims: %w", err)
	}
	if c.Subject == "" {
		o.toNone(s)
		return "", fmt.Errorf("authn: id token has no subject")
	}

	groups := c.Groups
	if o.provider.groupsClaim != "" && o.provider.groupsClaim != "groups" {
		var raw map[string]any
		_ = idToken.Claims(&raw)
		groups = nil
		list, _ := raw[o.provider.groupsClaim].([]any)
		for _, g := range list {
			if name, ok := g.(string); ok {
				groups = append(groups, name)
			}
		}
	}

	expiresAt := idToken.Expiry
	originalURI := pending.OriginalURI

	s.Transact(func(attrs map[string]any) {
		attrs[AttrKey] = Info{
			State:     Authenticated,
			Principal: c.Subject,
			Groups:    groups,
			ExpiresAt: expiresAt,
		}
	})
	return originalURI, nil
}

func (o *Orchestrator) toNone(s *session.Session) {
	s.Transact(func(attrs map[string]any) {
		attrs[AttrKey] = Info{State: None}
	})
}

// RequireAuthenticated is Echo middleware that redirects unauthenticated
// requests to the configured authn initiation endpoint and otherwise
// stashes the current Info under c.Set("authn").
func RequireAuthenticated(o *Orchestrator, sessions *session.Store, cookieCodec *session.CookieCodec, authnPath string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := sessionFromRequest(c, sessions, cookieCodec)
			if !ok {
				var err error
				s, err = sessions.Create()
				if err != nil {
					return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
				}
				setSessionCookie(c, cookieCodec, s)
			}

			info := o.CurrentState(s)
			if info.State != Authenticated {
				dest := o.Initiate(s, c.RealIP(), c.Request().RequestURI)
				return c.Redirect(http.StatusFound, dest)
			}

			c.Set("authn", info)
			return next(c)
		}
	}
}

func sessionFromRequest(c echo.Context, sessions *session.Store, codec *session.CookieCodec) (*session.Session, bool) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	id, err := codec.Decode(cookie.Value)
	if err != nil {
		return nil, false
	}
	return sessions.Lookup(id)
}

func setSessionCookie(c echo.Context, codec *session.CookieCodec, s *session.Session) {
	value, err := codec.Encode(s.ID())
	if err != nil {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
	})
}
