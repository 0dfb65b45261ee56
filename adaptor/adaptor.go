// Package adaptor defines the pluggable contract between this framework
// and a concrete content repository integration. Nothing in this package
// implements a real repository; see adaptor/fsadaptor for a reference
// implementation used to exercise the rest of the module end to end.
package adaptor

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/config"
	"github.com/docuhub/gsadapt/docid"
	"github.com/docuhub/gsadapt/push"
)

// ErrNotFound signals that GetDocContent has no content for the requested
// docid; the server maps this to a 404.
var ErrNotFound = errors.New("adaptor: document not found")

// Request carries everything the adaptor needs to answer a document-content
// request.
type Request struct {
	ID                docid.DocID
	HasLastAccess     bool
	LastAccess        time.Time
}

// ResponseWriter is the contract's output side. A well-behaved adaptor
// calls exactly one of RespondNotModified, Write (optionally more than
// once), or returns ErrNotFound.
type ResponseWriter interface {
	// RespondNotModified signals a 304; must not be followed by Write.
	RespondNotModified()
	// SetContentType sets the response's MIME type. Must be called before
	// the first Write.
	SetContentType(mime string)
	// SetMetadata attaches a key/value to the response, surfaced to the
	// caller out of band (e.g. for logging); optional.
	SetMetadata(key, value string)
	io.Writer
}

// Adaptor is the framework's sole extension point: a concrete content
// repository integration implements this to supply docids, content, and
// authorization decisions.
type Adaptor interface {
	// InitConfig is called once at startup with the resolved Config.
	InitConfig(cfg *config.Config) error
	// Init performs any expensive setup (connections, warm caches).
	Init(ctx context.Context) error
	// GetDocIds is invoked once per full push; the adaptor streams
	// records to pusher via pusher.Send, possibly many times.
	GetDocIds(ctx context.Context, pusher push.PushContext) error
	// GetDocContent answers one document-content request.
	GetDocContent(ctx context.Context, req *Request, resp ResponseWriter) error
	// IsUserAuthorized resolves authorization for a set of docids in one
	// call; entries for unknown docids may be omitted, never nil-valued.
	IsUserAuthorized(ctx context.Context, user string, groups []string, ids []docid.DocID) (map[docid.DocID]acl.AuthzStatus, error)
	// Destroy releases resources acquired by Init; called during shutdown.
	Destroy(ctx context.Context) error
}
