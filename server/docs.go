package server

import (
	"compress/gzip"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/common"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/journal"
)

// GSAIdentifier classifies whether a request originated from the indexer,
// by client IP only (matched against IPs), for journal accounting. The
// User-Agent is not consulted.
type GSAIdentifier struct {
	IPs []string
}

// IsGSA reports whether r looks like it came from the indexer.
func (g GSAIdentifier) IsGSA(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	for _, ip := range g.IPs {
		if ip == host {
			return true
		}
	}
	return false
}

// DocsHandler answers document-content requests against an adaptor.Adaptor,
// through the docid codec, with conditional-GET, gzip, and journal
// accounting.
type DocsHandler struct {
	Codec     docid.Codec
	Adaptor   adaptor.Adaptor
	Journal   *journal.Journal
	GSA       GSAIdentifier
	Hostname  string // fallback Host when absent from the request
	logger    *common.ContextLogger
}

// NewDocsHandler constructs a DocsHandler.
func NewDocsHandler(codec docid.Codec, a adaptor.Adaptor, j *journal.Journal, gsa GSAIdentifier, hostname string) *DocsHandler {
	return &DocsHandler{
		Codec:    codec,
		Adaptor:  a,
		Journal:  j,
		GSA:      gsa,
		Hostname: hostname,
		logger:   common.ServiceLogger("docs"),
	}
}

// Register mounts the handler on g for GET and HEAD.
func (h *DocsHandler) Register(g *echo.Group) {
	g.GET("/*", h.handle)
	g.HEAD("/*", h.handle)
}

// reconstructURL builds the absolute URL the request was addressed to: the
// scheme is inferred from whether the connection is TLS, the host comes
// from the Host header (falling back to the configured hostname for
// HTTP/1.0 clients that omit it).
func reconstructURL(r *http.Request) *url.URL {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	host := r.Host
	return &url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   r.URL.Path,
	}
}

func (h *DocsHandler) handle(c echo.Context) error {
	req := c.Request()
	resolved := reconstructURL(req)
	if resolved.Host == "" {
		resolved.Host = h.Hostname
	}

	id, err := h.Codec.Decode(resolved)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "unknown docid")
	}

	isGSA := h.GSA.IsGSA(req)
	start := time.Now()

	var hasLastAccess bool
	var lastAccess time.Time
	if ims := req.Header.Get("If-Modified-Since"); ims != "" {
		if t, err := http.ParseTime(ims); err == nil {
			hasLastAccess = true
			lastAccess = t
		}
	}

	rw := newDocResponseWriter(c)

	adaptorReq := &adaptor.Request{ID: id, HasLastAccess: hasLastAccess, LastAccess: lastAccess}
	err = h.Adaptor.GetDocContent(req.Context(), adaptorReq, rw)

	procDur := time.Since(start)
	respDur := rw.responseDuration()

	h.Journal.RecordRequest(string(id), isGSA, procDur, respDur, 0, int64(rw.bytesWritten))

	if err != nil {
		if rw.committed {
			h.logger.WithError(err).Warn("adaptor error after response committed")
			return nil
		}
		if err == adaptor.ErrNotFound {
			return echo.NewHTTPError(http.StatusNotFound)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return rw.finish()
}

// docResponseWriter implements adaptor.ResponseWriter over an echo.Context,
// buffering content-type/metadata until the first Write so headers can
// still be set after content-length-independent decisions (gzip) are made.
type docResponseWriter struct {
	c             echo.Context
	head          bool
	notModified   bool
	contentType   string
	metadata      map[string]string
	committed     bool
	gzipWriter    *gzip.Writer
	bytesWritten  int
	firstByteAt   time.Time
	lastByteAt    time.Time
}

func newDocResponseWriter(c echo.Context) *docResponseWriter {
	return &docResponseWriter{
		c:        c,
		head:     c.Request().Method == http.MethodHead,
		metadata: map[string]string{},
	}
}

func (w *docResponseWriter) RespondNotModified() { w.notModified = true }
func (w *docResponseWriter) SetContentType(mime string) { w.contentType = mime }
func (w *docResponseWriter) SetMetadata(key, value string) { w.metadata[key] = value }

func (w *docResponseWriter) Write(p []byte) (int, error) {
	if !w.committed {
		w.commitHeaders()
	}
	w.lastByteAt = time.Now()
	if w.head {
		w.bytesWritten += len(p)
		return len(p), nil
	}
	var n int
	var err error
	if w.gzipWriter != nil {
		n, err = w.gzipWriter.Write(p)
	} else {
		n, err = w.c.Response().Write(p)
	}
	w.bytesWritten += n
	return n, err
}

func (w *docResponseWriter) commitHeaders() {
	w.committed = true
	w.firstByteAt = time.Now()

	resp := w.c.Response()
	for k, v := range w.metadata {
		resp.Header().Set("X-Doc-Meta-"+k, v)
	}
	if w.contentType != "" {
		resp.Header().Set(echo.HeaderContentType, w.contentType)
	}

	acceptsGzip := strings.Contains(w.c.Request().Header.Get("Accept-Encoding"), "gzip")
	status := http.StatusOK
	if acceptsGzip {
		resp.Header().Set("Content-Encoding", "gzip")
	}
	resp.WriteHeader(status)
	if acceptsGzip && !w.head {
		w.gzipWriter = gzip.NewWriter(resp)
	}
}

// finish flushes any pending gzip writer and emits the not-modified
// response if no content was ever written.
func (w *docResponseWriter) finish() error {
	if w.notModified && !w.committed {
		return w.c.NoContent(http.StatusNotModified)
	}
	if !w.committed {
		// Adaptor wrote nothing and didn't call RespondNotModified: treat as
		// an empty successful body.
		w.commitHeaders()
	}
	if w.gzipWriter != nil {
		return w.gzipWriter.Close()
	}
	return nil
}

func (w *docResponseWriter) responseDuration() time.Duration {
	if w.firstByteAt.IsZero() || w.lastByteAt.IsZero() {
		return 0
	}
	return w.lastByteAt.Sub(w.firstByteAt)
}
