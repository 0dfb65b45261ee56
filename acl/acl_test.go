package acl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docuhub/gsadapt/docid"
)

func TestLocalDecisionDenyTrumpsPermit(t *testing.T) {
	a, err := New([]string{"alice"}, []string{"alice"}, nil, nil, "", false, LeafNode)
	require.NoError(t, err)
	assert.Equal(t, Deny, a.LocalDecision("alice", nil))
}

func TestChainParentOverridesIndeterminateParent(t *testing.T) {
	parent, err := New(nil, nil, nil, nil, "", false, ParentOverrides)
	require.NoError(t, err)
	child, err := New([]string{"alice"}, nil, nil, nil, "", false, LeafNode)
	require.NoError(t, err)

	got := IsAuthorized([]*ACL{parent, child}, "alice", nil)
	assert.Equal(t, Permit, got)
}

func TestChainChildOverridesDenyChild(t *testing.T) {
	parent, err := New([]string{"alice"}, nil, nil, nil, "", false, ChildOverrides)
	require.NoError(t, err)
	child, err := New(nil, []string{"alice"}, nil, nil, "", false, LeafNode)
	require.NoError(t, err)

	got := IsAuthorized([]*ACL{parent, child}, "alice", nil)
	assert.Equal(t, Deny, got)
}

func TestChainOfLengthOneCollapsesToLocal(t *testing.T) {
	a, err := New([]string{"alice"}, nil, nil, nil, "", false, LeafNode)
	require.NoError(t, err)
	assert.Equal(t, Permit, IsAuthorized([]*ACL{a}, "alice", nil))
}

func TestNewRejectsInvalidPrincipal(t *testing.T) {
	_, err := New([]string{" alice"}, nil, nil, nil, "", false, LeafNode)
	require.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = New([]string{""}, nil, nil, nil, "", false, LeafNode)
	require.ErrorIs(t, err, ErrInvalidPrincipal)
}

// fakeRetriever serves a fixed in-memory ACL map, recording how many times
// each docid was asked for so tests can assert single-retrieval semantics.
type fakeRetriever struct {
	acls  map[docid.DocID]*ACL
	calls map[docid.DocID]int
}

func newFakeRetriever(acls map[docid.DocID]*ACL) *fakeRetriever {
	return &fakeRetriever{acls: acls, calls: map[docid.DocID]int{}}
}

func (f *fakeRetriever) Resolve(ctx context.Context, ids []docid.DocID) (map[docid.DocID]*ACL, error) {
	out := map[docid.DocID]*ACL{}
	for _, id := range ids {
		f.calls[id]++
		if a, ok := f.acls[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func TestBatchResolverCycleDetection(t *testing.T) {
	aclA, err := New(nil, nil, nil, nil, "B", true, ParentOverrides)
	require.NoError(t, err)
	aclB, err := New(nil, nil, nil, nil, "A", true, ParentOverrides)
	require.NoError(t, err)

	retriever := newFakeRetriever(map[docid.DocID]*ACL{
		"A": aclA,
		"B": aclB,
	})
	resolver := NewResolver(retriever)

	results, err := resolver.ResolveBatch(context.Background(), []docid.DocID{"A", "B"}, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, results["A"])
	assert.Equal(t, Indeterminate, results["B"])
	assert.LessOrEqual(t, retriever.calls["A"], 1)
	assert.LessOrEqual(t, retriever.calls["B"], 1)
}

func TestBatchResolverMissingParentIsEmptyLeaf(t *testing.T) {
	// A dangling InheritFrom reference resolves to the empty LEAF_NODE
	// stand-in ACL. Since that stand-in ends up playing the parent role in
	// the chain (it has a child below it: the referencing ACL), its
	// LEAF_NODE type hits the "acting as a parent" configuration-error
	// path and forces DENY, regardless of the child's own permissions.
	child, err := New([]string{"alice"}, nil, nil, nil, "missing-parent", true, ParentOverrides)
	require.NoError(t, err)

	retriever := newFakeRetriever(map[docid.DocID]*ACL{"child": child})
	resolver := NewResolver(retriever)

	results, err := resolver.ResolveBatch(context.Background(), []docid.DocID{"child"}, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, Deny, results["child"])
}
