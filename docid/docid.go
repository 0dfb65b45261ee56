// Package docid maps opaque document identifiers to the URLs the document
// server exposes them under, and back. Equality on a DocID is plain string
// equality; nothing here normalizes or validates the identifier itself.
package docid

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// DocID is an opaque, adaptor-assigned identifier. It may contain any
// character valid in a URL path after percent-encoding, including runs of
// dots.
type DocID string

// ErrNotOurDocID is returned by Decode when a URL doesn't carry this
// codec's prefix.
var ErrNotOurDocID = errors.New("docid: url does not belong to this codec")

// Codec converts between DocID values and the URLs under which the document
// server publishes them.
type Codec interface {
	Encode(id DocID) (*url.URL, error)
	Decode(u *url.URL) (DocID, error)
}

// passthroughCodec implements the "URL passthrough" mode: the docid
// literally is a URL and round-trips verbatim.
type passthroughCodec struct{}

// NewPassthroughCodec returns a Codec for docId.isUrl=true deployments,
// where the adaptor's docids are themselves absolute URLs.
func NewPassthroughCodec() Codec {
	return passthroughCodec{}
}

func (passthroughCodec) Encode(id DocID) (*url.URL, error) {
	u, err := url.Parse(string(id))
	if err != nil {
		return nil, fmt.Errorf("docid: encode passthrough: %w", err)
	}
	return u, nil
}

func (passthroughCodec) Decode(u *url.URL) (DocID, error) {
	return DocID(u.String()), nil
}

// namespacedCodec implements the namespaced mode: URL =
// <baseURI><docIDPath>/<escapedId>.
type namespacedCodec struct {
	baseURI   *url.URL
	docIDPath string // e.g. "/doc/"
	prefix    string // baseURI + docIDPath, precomputed
}

// NewNamespacedCodec builds a Codec rooted at baseURI (scheme://host[:port])
// with documents published under docIDPath (e.g. "/doc/").
func NewNamespacedCodec(baseURI *url.URL, docIDPath string) Codec {
	if !strings.HasSuffix(docIDPath, "/") {
		docIDPath += "/"
	}
	if !strings.HasPrefix(docIDPath, "/") {
		docIDPath = "/" + docIDPath
	}
	base := strings.TrimRight(baseURI.String(), "/")
	return &namespacedCodec{
		baseURI:   baseURI,
		docIDPath: docIDPath,
		prefix:    base + docIDPath,
	}
}

func (c *namespacedCodec) Encode(id DocID) (*url.URL, error) {
	escaped := escapeDotRuns(string(id))
	// Encode path segment-by-segment so literal "/" in the id stays a
	// separator while everything else gets percent-encoded.
	segments := strings.Split(escaped, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	full := c.prefix + strings.Join(segments, "/")
	u, err := url.Parse(full)
	if err != nil {
		return nil, fmt.Errorf("docid: encode namespaced: %w", err)
	}
	return u, nil
}

func (c *namespacedCodec) Decode(u *url.URL) (DocID, error) {
	s := u.String()
	if !strings.HasPrefix(s, c.prefix) {
		return "", fmt.Errorf("%w: %s", ErrNotOurDocID, s)
	}
	rest := strings.TrimPrefix(s, c.prefix)
	segments := strings.Split(rest, "/")
	for i, seg := range segments {
		unescaped, err := url.PathUnescape(seg)
		if err != nil {
			return "", fmt.Errorf("docid: decode namespaced: %w", err)
		}
		segments[i] = unescaped
	}
	joined := strings.Join(segments, "/")
	return DocID(unescapeDotRuns(joined)), nil
}

// escapeDotRuns extends every maximal run of dots bounded by "/" or the
// string's ends by two extra dots, so that "/./" becomes "/.../" and
// "/../" becomes "/..../". This keeps path-collapsing intermediaries
// (proxies, CDNs) from mangling a docid that happens to contain "." or
// ".." path segments.
func escapeDotRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)
	i := 0
	for i < len(s) {
		if s[i] != '.' || !dotRunBounded(s, i) {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '.' {
			j++
		}
		if boundedAt(s, i, j) {
			b.WriteString(s[i:j])
			b.WriteString("..")
		} else {
			b.WriteString(s[i:j])
		}
		i = j
	}
	return b.String()
}

// unescapeDotRuns reverses escapeDotRuns: strips two trailing dots from
// every maximal run of dots bounded by "/" or the string's ends.
func unescapeDotRuns(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	i := 0
	for i < len(s) {
		if s[i] != '.' {
			b.WriteByte(s[i])
			i++
			continue
		}
		j := i
		for j < len(s) && s[j] == '.' {
			j++
		}
		run := s[i:j]
		if boundedAt(s, i, j) && len(run) >= 2 {
			run = run[:len(run)-2]
		}
		b.WriteString(run)
		i = j
	}
	return b.String()
}

func dotRunBounded(s string, i int) bool {
	return boundedLeft(s, i)
}

func boundedLeft(s string, i int) bool {
	return i == 0 || s[i-1] == '/'
}

func boundedAt(s string, start, end int) bool {
	leftOK := start == 0 || s[start-1] == '/'
	rightOK := end == len(s) || s[end] == '/'
	return leftOK && rightOK
}
