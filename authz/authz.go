// Package authz implements the POST-only batch authorization responder:
// a set of (subject, resource) queries answered in one adaptor call and
// returned as a signed batch response.
package authz

import (
	"context"
	"errors"
	"net/url"

	"github.com/docuhub/gsadapt/acl"
	"github.com/docuhub/gsadapt/adaptor"
	"github.com/docuhub/gsadapt/docid"
)

// ErrMixedSubjects is returned when a batch's queries don't all carry the
// same subject; per the spec this fails the whole request rather than the
// individual query.
var ErrMixedSubjects = errors.New("authz: batch queries carry more than one subject")

// Query is one authorization question within a batch.
type Query struct {
	Subject  string
	Groups   []string
	Resource string // the resource URL as presented by the caller
}

// Decision is one query's answer. Unknown-resource queries and docids
// absent from the adaptor's reply default to Indeterminate.
type Decision struct {
	Query  Query
	Status acl.AuthzStatus
}

// Responder evaluates a batch of Queries against an adaptor.Adaptor,
// resolving in-scope resources to docids via a Codec and defaulting
// anything it can't resolve to Indeterminate.
type Responder struct {
	codec    docid.Codec
	adaptor  adaptor.Adaptor
	baseHost string // scheme://host[:port] this server answers for
}

// NewResponder builds a Responder. baseURL is this server's own base
// (scheme://host[:port]); resources outside it are unknown-resource.
func NewResponder(codec docid.Codec, a adaptor.Adaptor, baseURL *url.URL) *Responder {
	return &Responder{codec: codec, adaptor: a, baseHost: baseURL.Scheme + "://" + baseURL.Host}
}

// Evaluate answers every query in batch with a single adaptor call.
func (r *Responder) Evaluate(ctx context.Context, batch []Query) ([]Decision, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	subject := batch[0].Subject
	for _, q := range batch[1:] {
		if q.Subject != subject {
			return nil, ErrMixedSubjects
		}
	}
	groups := batch[0].Groups

	ids := make([]docid.DocID, len(batch))
	known := make([]bool, len(batch))
	seen := map[docid.DocID]bool{}
	var scope []docid.DocID

	for i, q := range batch {
		id, ok := r.resolve(q.Resource)
		if !ok {
			continue
		}
		ids[i] = id
		known[i] = true
		if !seen[id] {
			seen[id] = true
			scope = append(scope, id)
		}
	}

	var results map[docid.DocID]acl.AuthzStatus
	if len(scope) > 0 {
		var err error
		results, err = r.adaptor.IsUserAuthorized(ctx, subject, groups, scope)
		if err != nil {
			return nil, err
		}
	}

	decisions := make([]Decision, len(batch))
	for i, q := range batch {
		status := acl.Indeterminate
		if known[i] {
			if s, ok := results[ids[i]]; ok {
				status = s
			}
		}
		decisions[i] = Decision{Query: q, Status: status}
	}
	return decisions, nil
}

// resolve decodes a resource URL to a docid if it falls within this
// server's own base; otherwise it's an unknown resource.
func (r *Responder) resolve(resource string) (docid.DocID, bool) {
	u, err := url.Parse(resource)
	if err != nil {
		return "", false
	}
	if u.Scheme+"://"+u.Host != r.baseHost {
		return "", false
	}
	id, err := r.codec.Decode(u)
	if err != nil {
		return "", false
	}
	return id, true
}
