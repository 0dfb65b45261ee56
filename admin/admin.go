// Package admin implements the dashboard login gate: a small form-based
// authenticator wrapping the dashboard Echo group, independent of the
// OIDC-based authn machine used for document access.
package admin

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/session"
)

// ErrInvalidCredentials is returned by an Authenticator when the supplied
// credentials don't check out.
var ErrInvalidCredentials = errors.New("admin: invalid credentials")

// Authenticator validates administrator credentials. Pluggable so a
// deployment can swap in an external identity source.
type Authenticator interface {
	Authenticate(username, password string) error
}

// BcryptAuthenticator checks a password against a stored bcrypt hash for a
// single fixed administrator username.
type BcryptAuthenticator struct {
	username     string
	passwordHash string
}

// NewBcryptAuthenticator builds an Authenticator from a username and a
// bcrypt hash (produced by HashPassword or an equivalent offline tool).
func NewBcryptAuthenticator(username, passwordHash string) *BcryptAuthenticator {
	return &BcryptAuthenticator{username: username, passwordHash: passwordHash}
}

// HashPassword bcrypt-hashes a plaintext password for storage in config.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (a *BcryptAuthenticator) Authenticate(username, password string) error {
	// Constant-time username comparison first so a timing side-channel
	// can't distinguish "wrong username" from "wrong password" by reply
	// latency alone; bcrypt's own comparison is already constant-time.
	if subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) != 1 {
		// Still run a bcrypt compare against a fixed hash-shaped value so
		// the unknown-username path costs roughly the same as the
		// wrong-password path.
		_ = bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password))
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// AttrKey is the session attribute key set on a successful admin login.
const AttrKey = "admin.authenticated"

// TokenClaims is embedded in the admin session token minted on login,
// distinct from authn's OIDC-sourced tokens.
type TokenClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates short-lived admin session tokens.
type TokenIssuer struct {
	secret     []byte
	expiration time.Duration
}

// NewTokenIssuer builds a TokenIssuer.
func NewTokenIssuer(secret string, expiration time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), expiration: expiration}
}

// Issue mints a signed token for username.
func (t *TokenIssuer) Issue(username string) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiration)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses and verifies a token, returning its claims.
func (t *TokenIssuer) Validate(tokenString string) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// Gate wraps the dashboard Echo group: requests without an authenticated
// session get 403 Forbidden; authenticated requests (session attribute set)
// pass through. The login form and the credential check are served only at
// the path given to RegisterLogin; the gated routes do not serve them.
type Gate struct {
	auth     Authenticator
	sessions *session.Store
	codec    *session.CookieCodec
	logger   *common.ContextLogger
}

// NewGate builds a Gate.
func NewGate(auth Authenticator, sessions *session.Store, codec *session.CookieCodec) *Gate {
	return &Gate{auth: auth, sessions: sessions, codec: codec, logger: common.ServiceLogger("admin")}
}

// Middleware returns Echo middleware enforcing the gate on every request in
// the group it's attached to.
func (g *Gate) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := g.sessionFromRequest(c)
			if ok {
				if authed, _ := s.Get(AttrKey); authed == true {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, "not authenticated")
		}
	}
}

// RegisterLogin mounts the login form (GET) and credential check (POST) on
// g, outside the Middleware-gated routes.
func (g *Gate) RegisterLogin(e *echo.Echo, loginPath string) {
	e.GET(loginPath, g.serveLoginForm)
	e.POST(loginPath, g.handleLogin)
}

func (g *Gate) serveLoginForm(c echo.Context) error {
	return c.HTML(http.StatusOK, loginFormHTML)
}

func (g *Gate) handleLogin(c echo.Context) error {
	username := c.FormValue("username")
	password := c.FormValue("password")

	if err := g.auth.Authenticate(username, password); err != nil {
		g.logger.WithField("username", username).Warn("admin login failed")
		return c.HTML(http.StatusForbidden, loginErrorHTML)
	}

	s, ok := g.sessionFromRequest(c)
	if !ok {
		var err error
		s, err = g.sessions.Create()
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		value, err := g.codec.Encode(s.ID())
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		c.SetCookie(&http.Cookie{Name: session.CookieName, Value: value, Path: "/", HttpOnly: true})
	}
	s.Set(AttrKey, true)

	return c.Redirect(http.StatusFound, "/")
}

func (g *Gate) sessionFromRequest(c echo.Context) (*session.Session, bool) {
	cookie, err := c.Cookie(session.CookieName)
	if err != nil {
		return nil, false
	}
	id, err := g.codec.Decode(cookie.Value)
	if err != nil {
		return nil, false
	}
	return g.sessions.Lookup(id)
}

const loginFormHTML = `<!DOCTYPE html>
<html><body>
<form method="POST">
<input name="username" placeholder="username">
<input name="password" type="password" placeholder="password">
<button type="submit">Log in</button>
</form>
</body></html>`

const loginErrorHTML = `<!DOCTYPE html>
<html><body><p>Invalid credentials.</p></body></html>`
