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

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
)

// CreateRecord persists a new record with its shares in one transaction.
func (s *Store) CreateRecord(ctx context.Context, rec *kms.KeyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM key_records WHERE object_ref = ? AND status = ?`,
		rec.ObjectRef, string(kms.StatusActive)).Scan(&existing)
	if err != nil {
		return fmt.Errorf("sqlite: checking active record: %w", err)
	}
	if existing > 0 {
		return kms.ErrRecordExists
	}

	if err := insertRecord(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit()
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *kms.KeyRecord) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO key_records (id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ObjectRef, rec.WrappedKey, rec.TotalShares, rec.Threshold,
		string(rec.Status), rec.CreatedAt, rec.RevokedAt)
	if err != nil {
		return fmt.Errorf("sqlite: inserting record: %w", err)
	}
	for _, share := range rec.Shares {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO key_shares (record_id, share_index, wrapped_share, holder_id, status)
			 VALUES (?, ?, ?, ?, ?)`,
			rec.ID, share.Index, share.WrappedShare, share.HolderID, share.Status)
		if err != nil {
			return fmt.Errorf("sqlite: inserting share %d: %w", share.Index, err)
		}
	}
	return nil
}

// ActiveRecord returns the active record for the object reference.
func (s *Store) ActiveRecord(ctx context.Context, objectRef string) (*kms.KeyRecord, error) {
	return s.queryRecord(ctx,
		`SELECT id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at
		 FROM key_records WHERE object_ref = ? AND status = ? ORDER BY rowid DESC LIMIT 1`,
		objectRef, string(kms.StatusActive))
}

// LatestRecord returns the most recently created record for the object
// reference regardless of status.
func (s *Store) LatestRecord(ctx context.Context, objectRef string) (*kms.KeyRecord, error) {
	return s.queryRecord(ctx,
		`SELECT id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at
		 FROM key_records WHERE object_ref = ? ORDER BY rowid DESC LIMIT 1`,
		objectRef)
}

func (s *Store) queryRecord(ctx context.Context, query string, args ...any) (*kms.KeyRecord, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, kms.ErrRecordNotFound
		}
		return nil, err
	}
	if err := s.loadShares(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*kms.KeyRecord, error) {
	var rec kms.KeyRecord
	var status string
	var revokedAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.ObjectRef, &rec.WrappedKey, &rec.TotalShares,
		&rec.Threshold, &status, &rec.CreatedAt, &revokedAt)
	if err != nil {
		return nil, err
	}
	rec.Status = kms.Status(status)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if revokedAt.Valid {
		at := revokedAt.Time.UTC()
		rec.RevokedAt = &at
	}
	return &rec, nil
}

func (s *Store) loadShares(ctx context.Context, rec *kms.KeyRecord) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT share_index, wrapped_share, holder_id, status
		 FROM key_shares WHERE record_id = ? ORDER BY share_index`,
		rec.ID)
	if err != nil {
		return fmt.Errorf("sqlite: loading shares: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var share kms.KeyShare
		if err := rows.Scan(&share.Index, &share.WrappedShare, &share.HolderID, &share.Status); err != nil {
			return fmt.Errorf("sqlite: scanning share: %w", err)
		}
		rec.Shares = append(rec.Shares, share)
	}
	return rows.Err()
}

// RecordHistory returns every record for the object reference, newest
// first.
func (s *Store) RecordHistory(ctx context.Context, objectRef string) ([]*kms.KeyRecord, error) {
	return s.queryRecords(ctx,
		`SELECT id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at
		 FROM key_records WHERE object_ref = ? ORDER BY rowid DESC`,
		objectRef)
}

// ListRecords returns records matching status, newest first. An empty
// status matches all.
func (s *Store) ListRecords(ctx context.Context, status kms.Status) ([]*kms.KeyRecord, error) {
	if status == "" {
		return s.queryRecords(ctx,
			`SELECT id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at
			 FROM key_records ORDER BY rowid DESC`)
	}
	return s.queryRecords(ctx,
		`SELECT id, object_ref, wrapped_key, total_shares, threshold, status, created_at, revoked_at
		 FROM key_records WHERE status = ? ORDER BY rowid DESC`,
		string(status))
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*kms.KeyRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing records: %w", err)
	}
	defer rows.Close()

	var recs []*kms.KeyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if err := s.loadShares(ctx, rec); err != nil {
			return nil, err
		}
	}
	return recs, nil
}

// RevokeRecord marks the active record revoked and cascades to its
// active shares, all in one transaction.
func (s *Store) RevokeRecord(ctx context.Context, objectRef string, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := activeRecordID(ctx, tx, objectRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}

	if err := retireRecord(ctx, tx, id, string(kms.StatusRevoked), &at); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// RotateRecord marks the active record rotated and inserts newRec in
// one transaction.
func (s *Store) RotateRecord(ctx context.Context, objectRef string, newRec *kms.KeyRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := activeRecordID(ctx, tx, objectRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kms.ErrRecordNotFound
		}
		return err
	}

	if err := retireRecord(ctx, tx, id, string(kms.StatusRotated), nil); err != nil {
		return err
	}
	if err := insertRecord(ctx, tx, newRec); err != nil {
		return err
	}
	return tx.Commit()
}

func activeRecordID(ctx context.Context, tx *sql.Tx, objectRef string) (string, error) {
	var id string
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM key_records WHERE object_ref = ? AND status = ? ORDER BY rowid DESC LIMIT 1`,
		objectRef, string(kms.StatusActive)).Scan(&id)
	return id, err
}

// retireRecord moves a record out of active status and revokes its
// active shares.
func retireRecord(ctx context.Context, tx *sql.Tx, id, status string, revokedAt *time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE key_records SET status = ?, revoked_at = ? WHERE id = ?`,
		status, revokedAt, id)
	if err != nil {
		return fmt.Errorf("sqlite: updating record status: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE key_shares SET status = ? WHERE record_id = ? AND status = ?`,
		kms.ShareRevoked, id, kms.ShareActive)
	if err != nil {
		return fmt.Errorf("sqlite: revoking shares: %w", err)
	}
	return nil
}

// MarkShareUsed transitions a share of the object's active record to
// used status.
func (s *Store) MarkShareUsed(ctx context.Context, objectRef string, index int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	id, err := activeRecordID(ctx, tx, objectRef)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kms.ErrRecordNotFound
		}
		return err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE key_shares SET status = ? WHERE record_id = ? AND share_index = ?`,
		kms.ShareUsed, id, index)
	if err != nil {
		return fmt.Errorf("sqlite: marking share used: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return kms.ErrRecordNotFound
	}
	return tx.Commit()
}
