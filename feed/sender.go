package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Three orthogonal failure modes the push engine's retry logic
// distinguishes between.
var (
	ErrFailedToConnect    = errors.New("feed: failed to connect to indexer")
	ErrFailedWriting      = errors.New("feed: failed writing feed body")
	ErrFailedReadingReply = errors.New("feed: failed reading indexer reply")
)

const feedBoundary = "<<"

// Sender posts a rendered manifest to the indexer's /xmlfeed endpoint.
type Sender struct {
	client   *http.Client
	endpoint string // e.g. "http://gsa.example.com:19900/xmlfeed"
}

// NewSender builds a Sender targeting the given GSA hostname (scheme and
// port 19900 are fixed by the wire protocol).
func NewSender(client *http.Client, gsaHostname string, secure bool) *Sender {
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return &Sender{
		client:   client,
		endpoint: fmt.Sprintf("%s://%s:19900/xmlfeed", scheme, gsaHostname),
	}
}

// Send posts one manifest. Success is signaled by a response body of
// exactly "Success"; any other body is surfaced as an error carrying the
// reply for diagnostics.
func (s *Sender) Send(ctx context.Context, dataSource, feedType string, manifest []byte) error {
	body, boundary, err := buildMultipartBody(dataSource, feedType, manifest)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedWriting, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToConnect, err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedToConnect, err)
	}
	defer resp.Body.Close()

	replyBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedReadingReply, err)
	}

	if string(replyBody) != "Success" {
		return fmt.Errorf("%w: indexer replied: %s", ErrFailedReadingReply, replyBody)
	}
	return nil
}

// buildMultipartBody assembles the fixed-boundary multipart body with the
// three required fields: datasource, feedtype, data.
//
// mime/multipart.Writer.SetBoundary rejects feedBoundary outright ("<" is
// not in its allowed character set), even though the GSA feed protocol
// wire format requires the literal "--<<" / "--<<--" delimiters. The
// stdlib multipart reader has no such restriction on the parsing side, so
// the body is assembled by hand instead of routed through Writer.
func buildMultipartBody(dataSource, feedType string, data []byte) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	fields := []struct{ name, value string }{
		{"datasource", dataSource},
		{"feedtype", feedType},
		{"data", string(data)},
	}
	for _, f := range fields {
		fmt.Fprintf(buf, "--%s\r\n", feedBoundary)
		fmt.Fprintf(buf, "Content-Disposition: form-data; name=%q\r\n\r\n", f.name)
		buf.WriteString(f.value)
		buf.WriteString("\r\n")
	}
	fmt.Fprintf(buf, "--%s--\r\n", feedBoundary)
	return buf, feedBoundary, nil
}
