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

	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
	"github.com/jeremyhahn/go-threshold-kms/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(t *testing.T) (*policy.Evaluator, *policy.Manager, *audit.MemoryRecorder) {
	t.Helper()
	store := memory.NewPolicyStore()
	recorder := audit.NewMemoryRecorder()
	return policy.NewEvaluator(store, recorder), policy.NewManager(store), recorder
}

func request(principal, role string) *policy.RequestContext {
	return &policy.RequestContext{
		PrincipalID: principal,
		Role:        role,
		ObjectRef:   "media/1",
		OwnerID:     "owner",
		Action:      "retrieve",
	}
}

func TestAdminBypassesAllPolicies(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	// Even an explicit deny-everything custom policy cannot stop admins.
	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeCustom,
		Rule:      `false`,
		Priority:  100,
		Enabled:   true,
	})
	require.NoError(t, err)

	result, err := eval.Evaluate(ctx, request("anyone", policy.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)
	assert.Empty(t, result.PolicyID)
}

func TestDefaultPolicyOwnerOnly(t *testing.T) {
	eval, _, _ := newEvaluator(t)
	ctx := context.Background()

	result, err := eval.Evaluate(ctx, request("owner", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	result, err = eval.Evaluate(ctx, request("stranger", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
}

func TestPriorityOrderingLetsSharedOverrideOwnerOnly(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeOwnerOnly,
		Priority:  0,
		Enabled:   true,
	})
	require.NoError(t, err)

	shared, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeShared,
		Priority:          10,
		AllowedPrincipals: []string{"alice"},
		Enabled:           true,
	})
	require.NoError(t, err)

	// The higher-priority shared policy is consulted first; its deny
	// does not short-circuit, so the owner still gets in through the
	// owner_only policy.
	result, err := eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)
	assert.Equal(t, shared.ID, result.PolicyID)

	result, err = eval.Evaluate(ctx, request("owner", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	result, err = eval.Evaluate(ctx, request("stranger", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
	assert.Equal(t, "no matching policy allowed access", result.Reason)
}

func TestSharedPolicyAllowsOwnerImplicitly(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeShared,
		AllowedPrincipals: []string{"alice"},
		Enabled:           true,
	})
	require.NoError(t, err)

	result, err := eval.Evaluate(ctx, request("owner", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)
}

func TestTimeLimitedPolicy(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	future := time.Now().UTC().Add(time.Hour)
	past := time.Now().UTC().Add(-time.Hour)

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeTimeLimited,
		AllowedPrincipals: []string{"alice"},
		ExpiresAt:         &future,
		Enabled:           true,
	})
	require.NoError(t, err)

	result, err := eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	// An expired grant yields the expired decision, not a plain deny.
	expStore := memory.NewPolicyStore()
	expEval := policy.NewEvaluator(expStore, audit.NewMemoryRecorder())
	expMgr := policy.NewManager(expStore)
	_, err = expMgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeTimeLimited,
		AllowedPrincipals: []string{"alice"},
		ExpiresAt:         &past,
		Enabled:           true,
	})
	require.NoError(t, err)

	result, err = expEval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionExpired, result.Decision)

	// Unlisted principals get denied before the expiry check.
	result, err = expEval.Evaluate(ctx, request("bob", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
}

func TestTimeLimitedUsesRequestTime(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	expires := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeTimeLimited,
		AllowedPrincipals: []string{"alice"},
		ExpiresAt:         &expires,
		Enabled:           true,
	})
	require.NoError(t, err)

	rc := request("alice", "user")
	rc.RequestTime = expires.Add(-time.Minute)
	result, err := eval.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	rc.RequestTime = expires.Add(time.Minute)
	result, err = eval.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionExpired, result.Decision)
}

func TestMultiPartyPolicy(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeMultiParty,
		RequiredApprovals: 2,
		Enabled:           true,
	})
	require.NoError(t, err)

	rc := request("alice", "user")
	rc.ProvidedShareIndices = []int{1}
	result, err := eval.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionRequireShares, result.Decision)
	assert.Contains(t, result.Reason, "need 2 shares, got 1")

	rc.ProvidedShareIndices = []int{1, 3}
	result, err = eval.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)
}

func TestCustomRulePolicy(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeCustom,
		Rule:      `role == "reviewer" or isOwner`,
		Enabled:   true,
	})
	require.NoError(t, err)

	result, err := eval.Evaluate(ctx, request("alice", "reviewer"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	result, err = eval.Evaluate(ctx, request("owner", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)

	result, err = eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
}

func TestBrokenCustomRuleDeniesWithoutError(t *testing.T) {
	store := memory.NewPolicyStore()
	eval := policy.NewEvaluator(store, audit.NewMemoryRecorder())
	ctx := context.Background()

	// Bypass manager validation to simulate a rule corrupted after
	// creation.
	require.NoError(t, store.CreatePolicy(ctx, &policy.Policy{
		ID:        "broken",
		ObjectRef: "media/1",
		Type:      policy.TypeCustom,
		Rule:      `role == `,
		Enabled:   true,
	}))

	result, err := eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
	assert.Contains(t, result.Reason, "custom rule error")
}

func TestGlobalPoliciesApplyAfterScoped(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	// Global shared grant at the same priority as a scoped deny-ish
	// owner_only policy: scoped is consulted first, but the global
	// grant still admits alice because deny continues.
	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef: "media/1",
		Type:      policy.TypeOwnerOnly,
		Enabled:   true,
	})
	require.NoError(t, err)

	global, err := mgr.CreatePolicy(ctx, &policy.Policy{
		Type:              policy.TypeShared,
		AllowedPrincipals: []string{"alice"},
		Enabled:           true,
	})
	require.NoError(t, err)
	require.True(t, global.Global())

	result, err := eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionAllow, result.Decision)
	assert.Equal(t, global.ID, result.PolicyID)
}

func TestDisabledPoliciesAreIgnored(t *testing.T) {
	eval, mgr, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeShared,
		AllowedPrincipals: []string{"alice"},
		Enabled:           false,
	})
	require.NoError(t, err)

	// With only a disabled policy present the default applies.
	result, err := eval.Evaluate(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.Equal(t, policy.DecisionDeny, result.Decision)
}

func TestEvaluateValidatesContext(t *testing.T) {
	eval, _, _ := newEvaluator(t)
	ctx := context.Background()

	_, err := eval.Evaluate(ctx, nil)
	assert.ErrorIs(t, err, policy.ErrInvalidContext)

	rc := request("", "user")
	_, err = eval.Evaluate(ctx, rc)
	assert.ErrorIs(t, err, policy.ErrInvalidContext)

	rc = request("alice", "user")
	rc.ObjectRef = ""
	_, err = eval.Evaluate(ctx, rc)
	assert.ErrorIs(t, err, policy.ErrInvalidContext)
}

func TestCheckAccessRecordsAudit(t *testing.T) {
	eval, mgr, recorder := newEvaluator(t)
	ctx := context.Background()

	shared, err := mgr.CreatePolicy(ctx, &policy.Policy{
		ObjectRef:         "media/1",
		Type:              policy.TypeShared,
		AllowedPrincipals: []string{"alice"},
		Enabled:           true,
	})
	require.NoError(t, err)

	allowed, reason, err := eval.CheckAccess(ctx, request("alice", "user"))
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NotEmpty(t, reason)

	allowed, _, err = eval.CheckAccess(ctx, request("stranger", "user"))
	require.NoError(t, err)
	assert.False(t, allowed)

	events, err := recorder.Events(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first.
	assert.Equal(t, "stranger", events[0].PrincipalID)
	assert.Equal(t, string(policy.DecisionDeny), events[0].Decision)
	assert.Equal(t, "alice", events[1].PrincipalID)
	assert.Equal(t, string(policy.DecisionAllow), events[1].Decision)
	assert.Equal(t, shared.ID, events[1].PolicyID)
}

func TestCheckAccessRecordsDefaultAndAdminOutcomes(t *testing.T) {
	eval, _, recorder := newEvaluator(t)
	ctx := context.Background()

	_, _, err := eval.CheckAccess(ctx, request("owner", "user"))
	require.NoError(t, err)
	_, _, err = eval.CheckAccess(ctx, request("root", policy.RoleAdmin))
	require.NoError(t, err)

	assert.Equal(t, 2, recorder.Len())
}
