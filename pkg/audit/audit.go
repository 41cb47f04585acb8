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

// Package audit provides the decision logger interface that records every
// access-decision outcome, allowing calling applications to implement
// custom audit trail strategies.
//
// This follows the same adapter pattern as the storage backends -
// providing a clean interface that applications can implement while
// offering an in-memory default for development and testing. A
// SQLite-backed recorder lives in pkg/storage/sqlite.
package audit

import (
	"context"
	"time"
)

// Event is one recorded access decision.
type Event struct {
	// ID is a unique identifier for this event.
	ID string

	// Timestamp when the decision was made (UTC).
	Timestamp time.Time

	// PrincipalID is the identity that requested access.
	PrincipalID string

	// ObjectRef is the protected object the request targeted.
	ObjectRef string

	// Action is the operation that was attempted (decrypt, view, ...).
	Action string

	// Decision is the evaluator's outcome (allow, deny, require_shares,
	// expired).
	Decision string

	// PolicyID identifies the policy that produced the decision. Empty
	// for the default policy and the built-in admin rule.
	PolicyID string

	// Reason is the human-readable explanation paired with the decision.
	Reason string
}

// Query filters recorded events.
type Query struct {
	// PrincipalID filters by requesting identity.
	PrincipalID string

	// ObjectRef filters by target object.
	ObjectRef string

	// Decision filters by outcome.
	Decision string

	// Since filters events recorded at or after this time.
	Since *time.Time

	// Limit caps the number of results (0 = unlimited). Results are
	// newest first.
	Limit int
}

// Recorder persists access-decision events.
//
// Recording is fire-and-forget from the evaluator's perspective: a
// Recorder failure must never block or fail the access check itself.
type Recorder interface {
	// Record appends one decision event.
	Record(ctx context.Context, event *Event) error

	// Events returns recorded events matching the query, newest first.
	Events(ctx context.Context, query *Query) ([]*Event, error)
}

// Matches reports whether the event satisfies every set field of the
// query. Shared by the in-memory and SQLite recorders' filtering.
func (q *Query) Matches(e *Event) bool {
	if q == nil {
		return true
	}
	if q.PrincipalID != "" && e.PrincipalID != q.PrincipalID {
		return false
	}
	if q.ObjectRef != "" && e.ObjectRef != q.ObjectRef {
		return false
	}
	if q.Decision != "" && e.Decision != q.Decision {
		return false
	}
	if q.Since != nil && e.Timestamp.Before(*q.Since) {
		return false
	}
	return true
}
