package session

import (
	"testing"

	"github.com/gorilla/securecookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieCodecRoundTrip(t *testing.T) {
	codec := NewCookieCodec(securecookie.GenerateRandomKey(64), nil)

	value, err := codec.Encode("abc123")
	require.NoError(t, err)

	got, err := codec.Decode(value)
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)
}

func TestCookieCodecRejectsTamperedValue(t *testing.T) {
	codec := NewCookieCodec(securecookie.GenerateRandomKey(64), nil)

	value, err := codec.Encode("abc123")
	require.NoError(t, err)

	tampered := value + "x"
	_, err = codec.Decode(tampered)
	assert.Error(t, err)
}

func TestCookieCodecRejectsForeignKey(t *testing.T) {
	codec1 := NewCookieCodec(securecookie.GenerateRandomKey(64), nil)
	codec2 := NewCookieCodec(securecookie.GenerateRandomKey(64), nil)

	value, err := codec1.Encode("abc123")
	require.NoError(t, err)

	_, err = codec2.Decode(value)
	assert.Error(t, err)
}
