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
	"sort"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
	"github.com/jeremyhahn/go-threshold-kms/pkg/logging"
	"github.com/jeremyhahn/go-threshold-kms/pkg/metrics"
	"github.com/jeremyhahn/go-threshold-kms/pkg/policy/rule"
)

// Evaluator decides access requests against the persisted policy set.
// Evaluation is stateless per call: given a RequestContext it is a pure
// function to a Result, reading policies through the Store.
type Evaluator struct {
	store    Store
	recorder audit.Recorder
	logger   *logging.Logger
	now      func() time.Time
}

// EvaluatorOption customizes an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithLogger sets the evaluator's logger.
func WithLogger(logger *logging.Logger) EvaluatorOption {
	return func(e *Evaluator) { e.logger = logger }
}

// WithClock overrides the evaluator's time source, used by tests to pin
// expiry comparisons.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

// NewEvaluator creates an Evaluator reading policies from store and
// recording every CheckAccess outcome through recorder.
func NewEvaluator(store Store, recorder audit.Recorder, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		store:    store,
		recorder: recorder,
		logger:   logging.DefaultLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate walks the applicable policies and yields one decision:
//
//  1. The admin role is allowed immediately, bypassing persisted
//     policies entirely.
//  2. Enabled object-scoped policies, then enabled global policies, are
//     concatenated and stably sorted by priority descending; ties keep
//     object-before-global, then creation, order.
//  3. An empty list falls back to the default policy: allow the owner,
//     deny everyone else.
//  4. The first policy yielding allow or require_shares wins. deny and
//     expired do not short-circuit. Exhausting the list denies.
//
// Rule-content problems (e.g. a broken custom expression) resolve to a
// deny Result, never an error; context and store problems return errors.
func (e *Evaluator) Evaluate(ctx context.Context, rc *RequestContext) (*Result, error) {
	if err := validateContext(rc); err != nil {
		return nil, err
	}

	if rc.IsAdmin() {
		return &Result{Decision: DecisionAllow, Reason: "admin has full access"}, nil
	}

	policies, err := e.applicablePolicies(ctx, rc.ObjectRef)
	if err != nil {
		return nil, err
	}

	if len(policies) == 0 {
		if rc.IsOwner() {
			return &Result{Decision: DecisionAllow, Reason: "owner access (default policy)"}, nil
		}
		return &Result{Decision: DecisionDeny, Reason: "access denied - owner only (default)"}, nil
	}

	for _, p := range policies {
		result := e.evaluateOne(p, rc)
		if result.Decision == DecisionAllow || result.Decision == DecisionRequireShares {
			result.PolicyID = p.ID
			return result, nil
		}
	}

	return &Result{Decision: DecisionDeny, Reason: "no matching policy allowed access"}, nil
}

// Check evaluates the request and records exactly one audit event
// regardless of outcome, returning the full four-valued decision.
func (e *Evaluator) Check(ctx context.Context, rc *RequestContext) (*Result, error) {
	result, err := e.Evaluate(ctx, rc)
	if err != nil {
		return nil, err
	}

	e.record(ctx, rc, result)
	metrics.RecordDecision(string(result.Decision))

	return result, nil
}

// CheckAccess reduces Check's decision to (allowed, reason) for callers
// that only need a yes or no.
func (e *Evaluator) CheckAccess(ctx context.Context, rc *RequestContext) (bool, string, error) {
	result, err := e.Check(ctx, rc)
	if err != nil {
		return false, "", err
	}
	return result.Allowed(), result.Reason, nil
}

// applicablePolicies returns the enabled policies for the object plus
// the enabled globals, object-scoped first, stably sorted by priority
// descending.
func (e *Evaluator) applicablePolicies(ctx context.Context, objectRef string) ([]*Policy, error) {
	scoped, err := e.store.PoliciesForObject(ctx, objectRef)
	if err != nil {
		return nil, fmt.Errorf("policy: loading object policies: %w", err)
	}
	global, err := e.store.GlobalPolicies(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy: loading global policies: %w", err)
	}

	combined := make([]*Policy, 0, len(scoped)+len(global))
	for _, p := range append(scoped, global...) {
		if p.Enabled {
			combined = append(combined, p)
		}
	}

	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Priority > combined[j].Priority
	})
	return combined, nil
}

// evaluateOne applies a single policy to the request context.
func (e *Evaluator) evaluateOne(p *Policy, rc *RequestContext) *Result {
	switch p.Type {
	case TypeOwnerOnly:
		if rc.IsOwner() {
			return &Result{Decision: DecisionAllow, Reason: "owner access granted"}
		}
		return &Result{Decision: DecisionDeny, Reason: "not the object owner"}

	case TypeAdminOverride:
		// Redundant with the built-in admin rule, but kept as an
		// explicit, loggable policy.
		if rc.IsAdmin() {
			return &Result{Decision: DecisionAllow, Reason: "admin override"}
		}
		return &Result{Decision: DecisionDeny, Reason: "admin access only"}

	case TypeShared:
		if p.allows(rc.PrincipalID, rc.OwnerID) {
			return &Result{Decision: DecisionAllow, Reason: "principal in share list"}
		}
		return &Result{Decision: DecisionDeny, Reason: "principal not in share list"}

	case TypeTimeLimited:
		if !p.allows(rc.PrincipalID, rc.OwnerID) {
			return &Result{Decision: DecisionDeny, Reason: "principal not authorized"}
		}
		if p.ExpiresAt != nil {
			requestTime := rc.RequestTime
			if requestTime.IsZero() {
				requestTime = e.now()
			}
			if requestTime.UTC().After(p.ExpiresAt.UTC()) {
				return &Result{Decision: DecisionExpired, Reason: "access has expired"}
			}
		}
		return &Result{Decision: DecisionAllow, Reason: "time-limited access valid"}

	case TypeMultiParty:
		provided := len(rc.ProvidedShareIndices)
		if provided >= p.RequiredApprovals {
			return &Result{
				Decision: DecisionAllow,
				Reason:   fmt.Sprintf("multi-party: %d/%d shares provided", provided, p.RequiredApprovals),
			}
		}
		return &Result{
			Decision: DecisionRequireShares,
			Reason:   fmt.Sprintf("need %d shares, got %d", p.RequiredApprovals, provided),
		}

	case TypeCustom:
		return e.evaluateCustom(p, rc)

	default:
		return &Result{Decision: DecisionDeny, Reason: fmt.Sprintf("unknown policy type %q", p.Type)}
	}
}

// evaluateCustom runs the constrained rule expression. Any parse or
// evaluation error resolves to deny with a diagnostic reason; rule
// content must never crash an access check.
func (e *Evaluator) evaluateCustom(p *Policy, rc *RequestContext) *Result {
	expr, err := rule.Parse(p.Rule)
	if err != nil {
		e.logger.Warnf("custom rule %s failed to parse: %v", p.ID, err)
		return &Result{Decision: DecisionDeny, Reason: fmt.Sprintf("custom rule error: %v", err)}
	}

	ok, err := expr.Eval(&rule.Vars{
		Principal:   rc.PrincipalID,
		Role:        rc.Role,
		ObjectRef:   rc.ObjectRef,
		ObjectOwner: rc.OwnerID,
		Action:      rc.Action,
		IsOwner:     rc.IsOwner(),
		IsAdmin:     rc.IsAdmin(),
	})
	if err != nil {
		e.logger.Warnf("custom rule %s failed to evaluate: %v", p.ID, err)
		return &Result{Decision: DecisionDeny, Reason: fmt.Sprintf("custom rule error: %v", err)}
	}

	if ok {
		return &Result{Decision: DecisionAllow, Reason: fmt.Sprintf("custom rule passed: %s", p.Rule)}
	}
	return &Result{Decision: DecisionDeny, Reason: fmt.Sprintf("custom rule failed: %s", p.Rule)}
}

// record appends one decision event. Recorder failures are logged and
// swallowed: auditing is fire-and-forget from the evaluator's side.
func (e *Evaluator) record(ctx context.Context, rc *RequestContext, result *Result) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Record(ctx, &audit.Event{
		Timestamp:   e.now().UTC(),
		PrincipalID: rc.PrincipalID,
		ObjectRef:   rc.ObjectRef,
		Action:      rc.Action,
		Decision:    string(result.Decision),
		PolicyID:    result.PolicyID,
		Reason:      result.Reason,
	})
	if err != nil {
		e.logger.Warnf("failed to record access decision: %v", err)
	}
}

func validateContext(rc *RequestContext) error {
	if rc == nil {
		return fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	if rc.PrincipalID == "" {
		return fmt.Errorf("%w: principal is required", ErrInvalidContext)
	}
	if rc.ObjectRef == "" {
		return fmt.Errorf("%w: object reference is required", ErrInvalidContext)
	}
	return nil
}
