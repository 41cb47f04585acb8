// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-threshold-kms.
//
// go-threshold-kms is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package policy implements the multi-policy access-decision engine that
// gates key retrieval. Policies are durable, typed, prioritized rules
// scoped to one protected object or global; the evaluator walks them in
// priority order and yields exactly one decision per request.
package policy

import (
	"time"
)

// Type is the closed set of policy types. The evaluator dispatches on
// this tag; unknown values always deny.
type Type string

const (
	// TypeOwnerOnly allows only the object owner.
	TypeOwnerOnly Type = "owner_only"

	// TypeAdminOverride allows any principal with the admin role. The
	// evaluator applies an implicit admin rule before any persisted
	// policy; this type exists as an explicit, loggable variant.
	TypeAdminOverride Type = "admin_override"

	// TypeShared allows the owner plus an explicit set of principals.
	TypeShared Type = "shared"

	// TypeTimeLimited is TypeShared with an expiry timestamp.
	TypeTimeLimited Type = "time_limited"

	// TypeMultiParty requires N share indices to be presented.
	TypeMultiParty Type = "multi_party"

	// TypeCustom evaluates a constrained boolean rule expression.
	TypeCustom Type = "custom"
)

// Valid reports whether t is a member of the closed type set.
func (t Type) Valid() bool {
	switch t {
	case TypeOwnerOnly, TypeAdminOverride, TypeShared, TypeTimeLimited, TypeMultiParty, TypeCustom:
		return true
	}
	return false
}

// Decision is the outcome of a policy evaluation.
type Decision string

const (
	// DecisionAllow grants access.
	DecisionAllow Decision = "allow"

	// DecisionDeny refuses access.
	DecisionDeny Decision = "deny"

	// DecisionRequireShares means a multi-party policy needs more share
	// indices than the request presented.
	DecisionRequireShares Decision = "require_shares"

	// DecisionExpired means a time-limited grant has lapsed.
	DecisionExpired Decision = "expired"
)

// Result pairs a decision with its reason and the policy that produced
// it. PolicyID is empty for the default policy and the built-in admin
// rule.
type Result struct {
	Decision Decision
	Reason   string
	PolicyID string
}

// Allowed reports whether the result grants access.
func (r *Result) Allowed() bool {
	return r.Decision == DecisionAllow
}

// Policy is one persisted access rule.
//
// Exactly the parameters relevant to Type are meaningful: the evaluator
// ignores the rest, though they may be persisted. A policy's type never
// mutates after creation; recreate instead.
type Policy struct {
	// ID uniquely identifies the policy.
	ID string

	// ObjectRef scopes the policy to one protected object. Empty means
	// the policy is global.
	ObjectRef string

	// Type selects the evaluation rule.
	Type Type

	// Priority orders evaluation; higher is evaluated first. Ties
	// preserve object-before-global, then creation, order.
	Priority int

	// AllowedPrincipals is the share list for TypeShared and
	// TypeTimeLimited. Order is irrelevant.
	AllowedPrincipals []string

	// ExpiresAt is the UTC expiry for TypeTimeLimited. Nil means the
	// grant does not expire.
	ExpiresAt *time.Time

	// RequiredApprovals is the share-index threshold for TypeMultiParty.
	RequiredApprovals int

	// Rule is the expression text for TypeCustom.
	Rule string

	// CreatedBy identifies the principal that created the policy.
	CreatedBy string

	// CreatedAt is the UTC creation time.
	CreatedAt time.Time

	// Enabled policies participate in evaluation; disabled ones are
	// retained but skipped.
	Enabled bool
}

// Global reports whether the policy applies to every object.
func (p *Policy) Global() bool {
	return p.ObjectRef == ""
}

// allows reports whether the principal is the owner or in the policy's
// share list.
func (p *Policy) allows(principal, owner string) bool {
	if principal == owner {
		return true
	}
	for _, allowed := range p.AllowedPrincipals {
		if principal == allowed {
			return true
		}
	}
	return false
}

// RoleAdmin is the role granted unconditional access by the built-in
// admin rule.
const RoleAdmin = "admin"

// RequestContext carries everything the evaluator needs about one access
// request. It is constructed fresh per check and never persisted. The
// object-owner lookup is the caller's responsibility; the engine never
// queries identity state itself.
type RequestContext struct {
	// PrincipalID is the requesting identity.
	PrincipalID string

	// Role is the principal's role ("admin" or "user").
	Role string

	// ObjectRef is the protected object being accessed.
	ObjectRef string

	// OwnerID is the object owner's identity.
	OwnerID string

	// Action is the operation attempted (decrypt, view, delete, share).
	Action string

	// RequestTime is when the request was made. The zero value means
	// "now"; the evaluator normalizes all comparisons to UTC.
	RequestTime time.Time

	// ProvidedShareIndices are the key-share indices presented for
	// multi-party approval.
	ProvidedShareIndices []int
}

// IsAdmin reports whether the request carries the admin role.
func (rc *RequestContext) IsAdmin() bool {
	return rc.Role == RoleAdmin
}

// IsOwner reports whether the principal owns the object.
func (rc *RequestContext) IsOwner() bool {
	return rc.PrincipalID == rc.OwnerID
}
