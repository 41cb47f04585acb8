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

package kms

import (
	"context"
	"time"
)

// Store persists key records and their shares. A record and its shares
// form one aggregate: CreateRecord, RevokeRecord, and RotateRecord must
// each apply atomically so a record is never visible with a partial
// share set.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CreateRecord persists a new record with its shares. Returns
	// ErrRecordExists if an active record already exists for the
	// record's object reference.
	CreateRecord(ctx context.Context, rec *KeyRecord) error

	// ActiveRecord returns the active record for the object reference,
	// or ErrRecordNotFound.
	ActiveRecord(ctx context.Context, objectRef string) (*KeyRecord, error)

	// LatestRecord returns the most recently created record for the
	// object reference regardless of status, or ErrRecordNotFound.
	LatestRecord(ctx context.Context, objectRef string) (*KeyRecord, error)

	// RecordHistory returns every record for the object reference,
	// newest first. An unknown object yields an empty slice.
	RecordHistory(ctx context.Context, objectRef string) ([]*KeyRecord, error)

	// RevokeRecord marks the active record for the object revoked at
	// the given time and cascades revocation to its active shares.
	// Returns (false, nil) when no active record exists; revocation is
	// idempotent at the service level.
	RevokeRecord(ctx context.Context, objectRef string, at time.Time) (bool, error)

	// RotateRecord atomically marks the current active record rotated
	// (revoking its shares) and inserts newRec as the active record.
	// Returns ErrRecordNotFound when no active record exists.
	RotateRecord(ctx context.Context, objectRef string, newRec *KeyRecord) error

	// MarkShareUsed transitions a share of the object's active record
	// to used status.
	MarkShareUsed(ctx context.Context, objectRef string, index int) error

	// ListRecords returns records filtered by status; an empty status
	// returns all records. Ordered by creation time, newest first.
	ListRecords(ctx context.Context, status Status) ([]*KeyRecord, error)
}
