package session

import "github.com/gorilla/securecookie"

// CookieCodec wraps session ids in a gorilla/securecookie envelope so a
// tampered cookie value is rejected before it ever reaches Store.Lookup.
type CookieCodec struct {
	sc *securecookie.SecureCookie
}

// NewCookieCodec builds a codec from a hash key (required, 32 or 64 bytes)
// and an optional block key (16/24/32 bytes) for encryption; pass nil to
// skip encryption and rely on the HMAC alone.
func NewCookieCodec(hashKey, blockKey []byte) *CookieCodec {
	return &CookieCodec{sc: securecookie.New(hashKey, blockKey)}
}

// Encode produces the cookie value for a session id.
func (c *CookieCodec) Encode(sessionID string) (string, error) {
	return c.sc.Encode(CookieName, sessionID)
}

// Decode recovers the session id from a cookie value, failing if the HMAC
// doesn't verify or the value has expired per securecookie's own MaxAge.
func (c *CookieCodec) Decode(value string) (string, error) {
	var sessionID string
	if err := c.sc.Decode(CookieName, value, &sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}
