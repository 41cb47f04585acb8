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

package memory

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
)

// PolicyStore is an in-memory implementation of policy.Store. Listing
// methods preserve creation order, which the evaluator's stable sort
// relies on for priority ties.
type PolicyStore struct {
	mu       sync.RWMutex
	policies []*policy.Policy
}

// NewPolicyStore creates an empty in-memory policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{}
}

func copyPolicy(p *policy.Policy) *policy.Policy {
	dup := *p
	if p.ExpiresAt != nil {
		at := *p.ExpiresAt
		dup.ExpiresAt = &at
	}
	dup.AllowedPrincipals = make([]string, len(p.AllowedPrincipals))
	copy(dup.AllowedPrincipals, p.AllowedPrincipals)
	return &dup
}

// CreatePolicy appends a new policy.
func (s *PolicyStore) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.policies {
		if existing.ID == p.ID {
			return policy.ErrInvalidPolicy
		}
	}
	s.policies = append(s.policies, copyPolicy(p))
	return nil
}

// UpdatePolicy replaces the policy with the same ID, keeping its
// position in creation order.
func (s *PolicyStore) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.policies {
		if existing.ID == p.ID {
			s.policies[i] = copyPolicy(p)
			return nil
		}
	}
	return policy.ErrPolicyNotFound
}

// DeletePolicy removes the policy with the given ID.
func (s *PolicyStore) DeletePolicy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.policies {
		if existing.ID == id {
			s.policies = append(s.policies[:i], s.policies[i+1:]...)
			return nil
		}
	}
	return policy.ErrPolicyNotFound
}

// GetPolicy returns the policy with the given ID.
func (s *PolicyStore) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, existing := range s.policies {
		if existing.ID == id {
			return copyPolicy(existing), nil
		}
	}
	return nil, policy.ErrPolicyNotFound
}

// PoliciesForObject returns all policies scoped to objectRef in
// creation order.
func (s *PolicyStore) PoliciesForObject(ctx context.Context, objectRef string) ([]*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*policy.Policy
	for _, p := range s.policies {
		if p.ObjectRef == objectRef && objectRef != "" {
			out = append(out, copyPolicy(p))
		}
	}
	return out, nil
}

// GlobalPolicies returns all global policies in creation order.
func (s *PolicyStore) GlobalPolicies(ctx context.Context) ([]*policy.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*policy.Policy
	for _, p := range s.policies {
		if p.Global() {
			out = append(out, copyPolicy(p))
		}
	}
	return out, nil
}
