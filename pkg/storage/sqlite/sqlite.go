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

// Package sqlite provides a SQLite-backed implementation of the kms and
// policy stores and the audit recorder. Every multi-row mutation runs
// inside a single transaction so record/share aggregates stay
// consistent.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS key_records (
	id           TEXT PRIMARY KEY,
	object_ref   TEXT NOT NULL,
	wrapped_key  TEXT NOT NULL DEFAULT '',
	total_shares INTEGER NOT NULL,
	threshold    INTEGER NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL,
	revoked_at   TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_key_records_object ON key_records(object_ref);
CREATE INDEX IF NOT EXISTS idx_key_records_status ON key_records(status);

CREATE TABLE IF NOT EXISTS key_shares (
	record_id     TEXT NOT NULL REFERENCES key_records(id) ON DELETE CASCADE,
	share_index   INTEGER NOT NULL,
	wrapped_share TEXT NOT NULL,
	holder_id     TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	PRIMARY KEY (record_id, share_index)
);

CREATE TABLE IF NOT EXISTS policies (
	id                 TEXT PRIMARY KEY,
	object_ref         TEXT NOT NULL DEFAULT '',
	type               TEXT NOT NULL,
	priority           INTEGER NOT NULL DEFAULT 0,
	allowed_principals TEXT NOT NULL DEFAULT '[]',
	expires_at         TIMESTAMP,
	required_approvals INTEGER NOT NULL DEFAULT 0,
	rule               TEXT NOT NULL DEFAULT '',
	created_by         TEXT NOT NULL DEFAULT '',
	created_at         TIMESTAMP NOT NULL,
	enabled            INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_policies_object ON policies(object_ref);

CREATE TABLE IF NOT EXISTS decision_log (
	id           TEXT PRIMARY KEY,
	ts           TIMESTAMP NOT NULL,
	principal_id TEXT NOT NULL,
	object_ref   TEXT NOT NULL,
	action       TEXT NOT NULL,
	decision     TEXT NOT NULL,
	policy_id    TEXT NOT NULL DEFAULT '',
	reason       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_decision_log_principal ON decision_log(principal_id);
CREATE INDEX IF NOT EXISTS idx_decision_log_object ON decision_log(object_ref);
`

// Store is a SQLite-backed store implementing kms.Store, policy.Store,
// and audit.Recorder.
type Store struct {
	db *sql.DB
}

// Open opens (creating as needed) the SQLite database at dsn and
// initializes the schema. Use ":memory:" for an ephemeral database in
// tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening %s: %w", dsn, err)
	}
	// A single connection keeps in-memory databases coherent and
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
