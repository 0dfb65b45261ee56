// Package acl implements the per-document access-control model: local
// permit/deny evaluation, inheritance-chain combination, and a batch
// resolver with cycle detection.
package acl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/docuhub/gsadapt/docid"
)

// ErrInvalidPrincipal is returned when a user or group name is null,
// empty, or has leading/trailing whitespace.
var ErrInvalidPrincipal = errors.New("acl: invalid user or group name")

// AuthzStatus is the outcome of an authorization decision.
type AuthzStatus int

const (
	Indeterminate AuthzStatus = iota
	Permit
	Deny
)

func (s AuthzStatus) String() string {
	switch s {
	case Permit:
		return "PERMIT"
	case Deny:
		return "DENY"
	default:
		return "INDETERMINATE"
	}
}

// InheritanceType describes how an ACL combines with its child in a chain.
type InheritanceType int

const (
	ChildOverrides InheritanceType = iota
	ParentOverrides
	AndBothPermit
	LeafNode
)

// ACL is an immutable permission tuple, optionally chained to a parent via
// InheritFrom.
type ACL struct {
	PermitUsers     []string
	DenyUsers       []string
	PermitGroups    []string
	DenyGroups      []string
	InheritFrom     docid.DocID
	HasParent       bool
	InheritanceType InheritanceType
}

// New validates and constructs an ACL. Users/groups must be non-empty,
// trimmed strings; an invalid entry is rejected at construction, not later.
func New(permitUsers, denyUsers, permitGroups, denyGroups []string, inheritFrom docid.DocID, hasParent bool, it InheritanceType) (*ACL, error) {
	for _, group := range [][]string{permitUsers, denyUsers, permitGroups, denyGroups} {
		for _, p := range group {
			if err := validatePrincipal(p); err != nil {
				return nil, err
			}
		}
	}
	return &ACL{
		PermitUsers:     append([]string(nil), permitUsers...),
		DenyUsers:       append([]string(nil), denyUsers...),
		PermitGroups:    append([]string(nil), permitGroups...),
		DenyGroups:      append([]string(nil), denyGroups...),
		InheritFrom:     inheritFrom,
		HasParent:       hasParent,
		InheritanceType: it,
	}, nil
}

func validatePrincipal(p string) error {
	if p == "" {
		return fmt.Errorf("%w: empty", ErrInvalidPrincipal)
	}
	if strings.TrimSpace(p) != p {
		return fmt.Errorf("%w: %q has leading/trailing whitespace", ErrInvalidPrincipal, p)
	}
	return nil
}

// empty returns true if the ACL carries no permit/deny entries at all.
func (a *ACL) empty() bool {
	return len(a.PermitUsers) == 0 && len(a.DenyUsers) == 0 &&
		len(a.PermitGroups) == 0 && len(a.DenyGroups) == 0
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func intersects(set []string, groups []string) bool {
	for _, g := range groups {
		if contains(set, g) {
			return true
		}
	}
	return false
}

// LocalDecision evaluates this ACL alone, ignoring inheritance. Deny
// trumps permit.
func (a *ACL) LocalDecision(user string, groups []string) AuthzStatus {
	if contains(a.DenyUsers, user) || intersects(a.DenyGroups, groups) {
		return Deny
	}
	if contains(a.PermitUsers, user) || intersects(a.PermitGroups, groups) {
		return Permit
	}
	return Indeterminate
}

// decision is a lazily evaluated, once-computed authorization result —
// the Go analogue of the source's memoizing Decision object.
type decision func() AuthzStatus

func memo(f func() AuthzStatus) decision {
	var (
		computed bool
		value    AuthzStatus
	)
	return func() AuthzStatus {
		if !computed {
			value = f()
			computed = true
		}
		return value
	}
}

// combine applies an InheritanceType to a parent's local decision and its
// child's non-local decision. Both arguments are thunks; a combinator only
// forces the ones it actually needs.
func combine(it InheritanceType, parent, child decision) AuthzStatus {
	switch it {
	case ChildOverrides:
		if c := child(); c != Indeterminate {
			return c
		}
		return parent()
	case ParentOverrides:
		if p := parent(); p != Indeterminate {
			return p
		}
		return child()
	case AndBothPermit:
		if parent() == Permit && child() == Permit {
			return Permit
		}
		return Deny
	case LeafNode:
		// LeafNode acting as a parent in a chain is a configuration error.
		return Deny
	default:
		return Deny
	}
}

// Chain evaluates a root-to-leaf chain of ACLs (chain[0] is the root,
// chain[len-1] is the target). If every ACL in the chain is empty, the
// result is INDETERMINATE. A final INDETERMINATE elsewhere is treated as
// DENY (no-permit-by-default) by the caller via IsAuthorized.
func Chain(chain []*ACL, user string, groups []string) AuthzStatus {
	if len(chain) == 0 {
		return Indeterminate
	}
	allEmpty := true
	for _, a := range chain {
		if !a.empty() {
			allEmpty = false
			break
		}
	}
	if allEmpty {
		return Indeterminate
	}
	return nonLocal(chain, 0, user, groups)()
}

// nonLocal computes chain[i]'s non-local decision: the leaf's non-local
// decision equals its local decision; every other position combines its
// own local decision (as parent) with the next position's non-local
// decision (as child), per its own InheritanceType.
func nonLocal(chain []*ACL, i int, user string, groups []string) decision {
	a := chain[i]
	if i == len(chain)-1 {
		return memo(func() AuthzStatus { return a.LocalDecision(user, groups) })
	}
	parent := memo(func() AuthzStatus { return a.LocalDecision(user, groups) })
	child := nonLocal(chain, i+1, user, groups)
	return memo(func() AuthzStatus { return combine(a.InheritanceType, parent, child) })
}

// IsAuthorized evaluates a chain and applies the default-deny rule to a
// residual INDETERMINATE result.
func IsAuthorized(chain []*ACL, user string, groups []string) AuthzStatus {
	result := Chain(chain, user, groups)
	if result == Indeterminate {
		return Deny
	}
	return result
}
