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

package policy

import "context"

// Store persists policies. Implementations live in pkg/storage; all must
// be safe for concurrent use and must serialize writes so readers never
// observe a half-updated policy (e.g. a partially rewritten allowed-
// principals set).
//
// List methods return policies in creation order so that the evaluator's
// stable priority sort preserves insertion order among equal priorities.
type Store interface {
	// CreatePolicy persists a new policy.
	CreatePolicy(ctx context.Context, p *Policy) error

	// UpdatePolicy replaces an existing policy by ID. Returns
	// ErrPolicyNotFound if it does not exist.
	UpdatePolicy(ctx context.Context, p *Policy) error

	// DeletePolicy removes a policy by ID. Returns ErrPolicyNotFound if
	// it does not exist.
	DeletePolicy(ctx context.Context, id string) error

	// GetPolicy retrieves a policy by ID. Returns ErrPolicyNotFound if
	// it does not exist.
	GetPolicy(ctx context.Context, id string) (*Policy, error)

	// PoliciesForObject returns every policy scoped to the given object,
	// enabled or not, in creation order.
	PoliciesForObject(ctx context.Context, objectRef string) ([]*Policy, error)

	// GlobalPolicies returns every global policy, enabled or not, in
	// creation order.
	GlobalPolicies(ctx context.Context) ([]*Policy, error)
}
