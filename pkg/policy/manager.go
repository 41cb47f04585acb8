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

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy/rule"
)

// Manager provides the administrative surface over the policy store:
// creating, updating, deleting, and listing policies, plus the
// share/unshare convenience operations.
type Manager struct {
	store Store
	now   func() time.Time
}

// NewManager creates a policy Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, now: time.Now}
}

// CreatePolicy validates and persists a new policy. The ID and creation
// timestamp are assigned here when unset; custom rules are parsed up
// front so malformed expressions are rejected at creation time rather
// than surfacing as denials later.
func (m *Manager) CreatePolicy(ctx context.Context, p *Policy) (*Policy, error) {
	if err := m.validate(p); err != nil {
		return nil, err
	}

	stored := *p
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now().UTC()
	} else {
		stored.CreatedAt = stored.CreatedAt.UTC()
	}
	if stored.ExpiresAt != nil {
		utc := stored.ExpiresAt.UTC()
		stored.ExpiresAt = &utc
	}

	if err := m.store.CreatePolicy(ctx, &stored); err != nil {
		return nil, err
	}
	return &stored, nil
}

// UpdatePolicy validates and replaces an existing policy.
func (m *Manager) UpdatePolicy(ctx context.Context, p *Policy) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: policy ID is required", ErrInvalidPolicy)
	}
	if err := m.validate(p); err != nil {
		return err
	}
	return m.store.UpdatePolicy(ctx, p)
}

// DeletePolicy removes a policy by ID.
func (m *Manager) DeletePolicy(ctx context.Context, id string) error {
	return m.store.DeletePolicy(ctx, id)
}

// GetPolicy returns a policy by ID.
func (m *Manager) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	return m.store.GetPolicy(ctx, id)
}

// ListForObject returns all policies scoped to objectRef, enabled or not.
func (m *Manager) ListForObject(ctx context.Context, objectRef string) ([]*Policy, error) {
	return m.store.PoliciesForObject(ctx, objectRef)
}

// ListGlobal returns all global policies, enabled or not.
func (m *Manager) ListGlobal(ctx context.Context) ([]*Policy, error) {
	return m.store.GlobalPolicies(ctx)
}

// Share grants principals access to an object by creating a shared
// policy, or a time_limited one when expiresAt is set. If a policy of
// the same type already exists for the object the principals are merged
// into it instead of creating a duplicate.
func (m *Manager) Share(ctx context.Context, objectRef, owner string, principals []string, expiresAt *time.Time) (*Policy, error) {
	if objectRef == "" {
		return nil, fmt.Errorf("%w: object reference is required", ErrInvalidPolicy)
	}
	if len(principals) == 0 {
		return nil, fmt.Errorf("%w: at least one principal is required", ErrInvalidPolicy)
	}

	shareType := TypeShared
	if expiresAt != nil {
		shareType = TypeTimeLimited
	}

	existing, err := m.store.PoliciesForObject(ctx, objectRef)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if p.Type != shareType || !p.Enabled {
			continue
		}
		merged := *p
		merged.AllowedPrincipals = mergePrincipals(p.AllowedPrincipals, principals)
		if expiresAt != nil {
			utc := expiresAt.UTC()
			merged.ExpiresAt = &utc
		}
		if err := m.store.UpdatePolicy(ctx, &merged); err != nil {
			return nil, err
		}
		return &merged, nil
	}

	return m.CreatePolicy(ctx, &Policy{
		ObjectRef:         objectRef,
		Type:              shareType,
		AllowedPrincipals: principals,
		ExpiresAt:         expiresAt,
		CreatedBy:         owner,
		Enabled:           true,
	})
}

// Unshare removes a principal from every enabled shared or time_limited
// policy on the object. Policies left with no principals are deleted.
func (m *Manager) Unshare(ctx context.Context, objectRef, principal string) error {
	policies, err := m.store.PoliciesForObject(ctx, objectRef)
	if err != nil {
		return err
	}

	for _, p := range policies {
		if p.Type != TypeShared && p.Type != TypeTimeLimited {
			continue
		}
		remaining := make([]string, 0, len(p.AllowedPrincipals))
		for _, pr := range p.AllowedPrincipals {
			if pr != principal {
				remaining = append(remaining, pr)
			}
		}
		if len(remaining) == len(p.AllowedPrincipals) {
			continue
		}
		if len(remaining) == 0 {
			if err := m.store.DeletePolicy(ctx, p.ID); err != nil {
				return err
			}
			continue
		}
		updated := *p
		updated.AllowedPrincipals = remaining
		if err := m.store.UpdatePolicy(ctx, &updated); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) validate(p *Policy) error {
	if p == nil {
		return fmt.Errorf("%w: nil policy", ErrInvalidPolicy)
	}
	if !p.Type.Valid() {
		return fmt.Errorf("%w: unknown policy type %q", ErrInvalidPolicy, p.Type)
	}

	switch p.Type {
	case TypeShared:
		if len(p.AllowedPrincipals) == 0 {
			return fmt.Errorf("%w: shared policy requires allowed principals", ErrInvalidPolicy)
		}
	case TypeTimeLimited:
		if len(p.AllowedPrincipals) == 0 {
			return fmt.Errorf("%w: time_limited policy requires allowed principals", ErrInvalidPolicy)
		}
		if p.ExpiresAt == nil {
			return fmt.Errorf("%w: time_limited policy requires an expiry", ErrInvalidPolicy)
		}
	case TypeMultiParty:
		if p.RequiredApprovals < 1 {
			return fmt.Errorf("%w: multi_party policy requires a positive approval count", ErrInvalidPolicy)
		}
	case TypeCustom:
		if p.Rule == "" {
			return fmt.Errorf("%w: custom policy requires a rule expression", ErrInvalidPolicy)
		}
		if _, err := rule.Parse(p.Rule); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
		}
	}
	return nil
}

func mergePrincipals(existing, added []string) []string {
	seen := make(map[string]bool, len(existing)+len(added))
	merged := make([]string, 0, len(existing)+len(added))
	for _, p := range existing {
		if !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}
	for _, p := range added {
		if !seen[p] {
			seen[p] = true
			merged = append(merged, p)
		}
	}
	return merged
}
