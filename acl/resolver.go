package acl

import (
	"context"
	"fmt"

	"github.com/docuhub/gsadapt/docid"
)

// Retriever fetches ACLs for a set of docids in one round trip. IDs absent
// from the returned map denote "not found" — the resolver treats a missing
// parent as the empty LEAF_NODE ACL.
type Retriever interface {
	Resolve(ctx context.Context, ids []docid.DocID) (map[docid.DocID]*ACL, error)
}

var emptyLeaf = &ACL{InheritanceType: LeafNode}

// Resolver walks ACL inheritance chains for a batch of root docids,
// detecting cycles and never issuing more than one retrieval per parent
// docid within a batch.
type Resolver struct {
	retriever Retriever
}

// NewResolver constructs a Resolver over the given Retriever.
func NewResolver(retriever Retriever) *Resolver {
	return &Resolver{retriever: retriever}
}

// ResolveBatch computes AuthzStatus for every root in ids, for the given
// user/groups. ACL identity (pointer identity of the resolved *ACL, which
// is unique per docid within a single ResolveBatch call since each docid is
// fetched at most once) is what cycle detection tracks — not the docid
// string itself, since different ACL versions for the same docid do not
// imply a cycle.
func (r *Resolver) ResolveBatch(ctx context.Context, ids []docid.DocID, user string, groups []string) (map[docid.DocID]AuthzStatus, error) {
	cache := map[docid.DocID]*ACL{}
	pending := map[docid.DocID]bool{}
	for _, id := range ids {
		pending[id] = true
	}

	for len(pending) > 0 {
		toFetch := make([]docid.DocID, 0, len(pending))
		for id := range pending {
			if _, ok := cache[id]; !ok {
				toFetch = append(toFetch, id)
			}
		}
		pending = map[docid.DocID]bool{}

		if len(toFetch) > 0 {
			fetched, err := r.retriever.Resolve(ctx, toFetch)
			if err != nil {
				return nil, fmt.Errorf("acl: resolve batch: %w", err)
			}
			for _, id := range toFetch {
				if a, ok := fetched[id]; ok {
					cache[id] = a
				} else {
					cache[id] = emptyLeaf
				}
			}
		}

		for _, id := range toFetch {
			a := cache[id]
			if a.HasParent {
				if _, already := cache[a.InheritFrom]; !already {
					pending[a.InheritFrom] = true
				}
			}
		}
	}

	results := make(map[docid.DocID]AuthzStatus, len(ids))
	for _, id := range ids {
		chain, cyclic := buildChain(cache, id)
		if cyclic {
			results[id] = Indeterminate
			continue
		}
		results[id] = IsAuthorized(chain, user, groups)
	}
	return results, nil
}

// buildChain assembles the root-to-leaf chain for id (id itself is the
// leaf/target; the chain is ordered root-first per Chain's contract).
// Cycle detection tracks the *ACL pointer identity visited along the walk.
func buildChain(cache map[docid.DocID]*ACL, id docid.DocID) (chain []*ACL, cyclic bool) {
	visited := map[*ACL]bool{}
	var leafToRoot []*ACL

	cur := id
	for {
		a, ok := cache[cur]
		if !ok {
			a = emptyLeaf
		}
		if visited[a] {
			return nil, true
		}
		visited[a] = true
		leafToRoot = append(leafToRoot, a)
		if !a.HasParent {
			break
		}
		cur = a.InheritFrom
	}

	// reverse to root-first
	chain = make([]*ACL, len(leafToRoot))
	for i, a := range leafToRoot {
		chain[len(leafToRoot)-1-i] = a
	}
	return chain, false
}
