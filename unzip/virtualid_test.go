package unzip

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeUnescapeRoundTrip(t *testing.T) {
	cases := []string{
		"plain.txt",
		"has!bang.zip",
		`has\backslash`,
		`mixed\!both`,
		"",
	}
	for _, c := range cases {
		assert.Equal(t, c, Unescape(Escape(c)))
	}
}

func TestSplitBasic(t *testing.T) {
	head, rest, ok := Split("docs.zip!inner.zip!note.txt")
	assert.True(t, ok)
	assert.Equal(t, "docs.zip", head)
	assert.Equal(t, "inner.zip!note.txt", rest)
}

func TestSplitNoDelimiter(t *testing.T) {
	_, _, ok := Split("plain-docid")
	assert.False(t, ok)
}

func TestSplitRespectsEscape(t *testing.T) {
	head, rest, ok := Split(`a\!b!c`)
	assert.True(t, ok)
	assert.Equal(t, "a!b", head)
	assert.Equal(t, "c", rest)
}

func TestSplitAllNestedZip(t *testing.T) {
	segments := SplitAll("docs.zip!inner.zip!note.txt")
	assert.Equal(t, []string{"docs.zip", "inner.zip", "note.txt"}, segments)
}

func TestJoinSplitAllRoundTrip(t *testing.T) {
	segments := []string{"docs.zip", "a!b.zip", "note.txt"}
	joined := Join(segments)
	assert.Equal(t, segments, SplitAll(joined))
}
