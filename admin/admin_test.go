package admin

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/session"
)

func testGate(t *testing.T) (*Gate, *session.Store) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	auth := NewBcryptAuthenticator("admin", hash)
	store := session.NewDefaultStore()
	codec := session.NewCookieCodec([]byte("0123456789abcdef0123456789abcdef"), nil)
	return NewGate(auth, store, codec), store
}

func TestBcryptAuthenticatorAcceptsCorrectPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	auth := NewBcryptAuthenticator("admin", hash)
	assert.NoError(t, auth.Authenticate("admin", "s3cret!"))
}

func TestBcryptAuthenticatorRejectsWrongPassword(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	auth := NewBcryptAuthenticator("admin", hash)
	assert.ErrorIs(t, auth.Authenticate("admin", "wrong"), ErrInvalidCredentials)
}

func TestBcryptAuthenticatorRejectsWrongUsername(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	auth := NewBcryptAuthenticator("admin", hash)
	assert.ErrorIs(t, auth.Authenticate("bob", "s3cret!"), ErrInvalidCredentials)
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("signing-secret", time.Minute)
	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	claims, err := issuer.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
}

func TestTokenIssuerRejectsExpiredToken(t *testing.T) {
	issuer := NewTokenIssuer("signing-secret", -time.Minute)
	token, err := issuer.Issue("admin")
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	assert.Error(t, err)
}

func TestGateRejectsRequestWithoutSession(t *testing.T) {
	gate, _ := testGate(t)

	e := echo.New()
	e.GET("/dash", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, gate.Middleware())

	req := httptest.NewRequest(http.MethodGet, "/dash", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGateLoginThenAccessSucceeds(t *testing.T) {
	gate, _ := testGate(t)

	e := echo.New()
	gate.RegisterLogin(e, "/admin/login")
	e.GET("/dash", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, gate.Middleware())

	form := url.Values{"username": {"admin"}, "password": {"s3cret!"}}
	loginReq := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	loginReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	loginRec := httptest.NewRecorder()
	e.ServeHTTP(loginRec, loginReq)

	require.Equal(t, http.StatusFound, loginRec.Code)
	cookies := loginRec.Result().Cookies()
	require.Len(t, cookies, 1)

	req := httptest.NewRequest(http.MethodGet, "/dash", nil)
	req.AddCookie(cookies[0])
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateLoginWithWrongCredentialsFails(t *testing.T) {
	gate, _ := testGate(t)

	e := echo.New()
	gate.RegisterLogin(e, "/admin/login")

	form := url.Values{"username": {"admin"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/admin/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}
