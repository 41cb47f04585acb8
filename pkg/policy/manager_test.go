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

package policy_test

import (
	"context"
	"testing"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
	"github.com/jeremyhahn/go-threshold-kms/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager() *policy.Manager {
	return policy.NewManager(memory.NewPolicyStore())
}

func TestCreatePolicyAssignsIDAndTimestamp(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	created, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeOwnerOnly,
		Enabled:   true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, time.UTC, created.CreatedAt.Location())

	got, err := mgr.GetPolicy(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.TypeOwnerOnly, got.Type)
}

func TestCreatePolicyValidation(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	tests := []struct {
		name string
		p    *policy.Policy
	}{
		{"nil policy", nil},
		{"unknown type", &policy.Policy{Type: "mystery"}},
		{"shared without principals", &policy.Policy{Type: policy.TypeShared}},
		{"time_limited without principals", &policy.Policy{
			Type:      policy.TypeTimeLimited,
			ExpiresAt: func() *time.Time { at := time.Now(); return &at }(),
		}},
		{"time_limited without expiry", &policy.Policy{
			Type:              policy.TypeTimeLimited,
			AllowedPrincipals: []string{"alice"},
		}},
		{"multi_party without approvals", &policy.Policy{Type: policy.TypeMultiParty}},
		{"custom without rule", &policy.Policy{Type: policy.TypeCustom}},
		{"custom with malformed rule", &policy.Policy{Type: policy.TypeCustom, Rule: "role =="}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := mgr.CreatePolicy(ctx, tt.p)
			assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
		})
	}
}

func TestUpdatePolicyRequiresID(t *testing.T) {
	mgr := newManager()
	err := mgr.UpdatePolicy(context.Background(), &policy.Policy{Type: policy.TypeOwnerOnly})
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}

func TestShareCreatesSharedPolicy(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	p, err := mgr.Share(ctx, "media/1", "owner", []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	assert.Equal(t, policy.TypeShared, p.Type)
	assert.Equal(t, []string{"alice", "bob"}, p.AllowedPrincipals)
	assert.Equal(t, "owner", p.CreatedBy)
	assert.True(t, p.Enabled)
}

func TestShareWithExpiryCreatesTimeLimited(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	expires := time.Now().Add(24 * time.Hour)
	p, err := mgr.Share(ctx, "media/1", "owner", []string{"alice"}, &expires)
	require.NoError(t, err)
	assert.Equal(t, policy.TypeTimeLimited, p.Type)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, time.UTC, p.ExpiresAt.Location())
}

func TestShareMergesIntoExistingPolicy(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	first, err := mgr.Share(ctx, "media/1", "owner", []string{"alice"}, nil)
	require.NoError(t, err)

	second, err := mgr.Share(ctx, "media/1", "owner", []string{"bob", "alice"}, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{"alice", "bob"}, second.AllowedPrincipals)

	// Still exactly one policy on the object.
	listed, err := mgr.ListForObject(ctx, "media/1")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestShareValidation(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	_, err := mgr.Share(ctx, "", "owner", []string{"alice"}, nil)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)

	_, err = mgr.Share(ctx, "media/1", "owner", nil, nil)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
}

func TestUnshareRemovesPrincipal(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	_, err := mgr.Share(ctx, "media/1", "owner", []string{"alice", "bob"}, nil)
	require.NoError(t, err)

	require.NoError(t, mgr.Unshare(ctx, "media/1", "alice"))

	listed, err := mgr.ListForObject(ctx, "media/1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, []string{"bob"}, listed[0].AllowedPrincipals)

	// Removing the last principal deletes the policy itself.
	require.NoError(t, mgr.Unshare(ctx, "media/1", "bob"))
	listed, err = mgr.ListForObject(ctx, "media/1")
	require.NoError(t, err)
	assert.Empty(t, listed)

	// Unsharing someone who was never listed is a no-op.
	require.NoError(t, mgr.Unshare(ctx, "media/1", "carol"))
}

func TestListGlobal(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		Type:    policy.TypeAdminOverride,
		Enabled: true,
	})
	require.NoError(t, err)
	_, err = mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeOwnerOnly,
		Enabled:   true,
	})
	require.NoError(t, err)

	globals, err := mgr.ListGlobal(ctx)
	require.NoError(t, err)
	require.Len(t, globals, 1)
	assert.Equal(t, policy.TypeAdminOverride, globals[0].Type)
}

func TestDeletePolicy(t *testing.T) {
	mgr := newManager()
	ctx := context.Background()

	created, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeOwnerOnly,
		Enabled:   true,
	})
	require.NoError(t, err)

	require.NoError(t, mgr.DeletePolicy(ctx, created.ID))
	_, err = mgr.GetPolicy(ctx, created.ID)
	assert.ErrorIs(t, err, policy.ErrPolicyNotFound)
}
