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
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-threshold-kms/pkg/audit"
)

// Record appends one decision event to the decision log.
func (s *Store) Record(ctx context.Context, e *audit.Event) error {
	if e == nil {
		return fmt.Errorf("sqlite: nil audit event")
	}
	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_log (id, ts, principal_id, object_ref, action, decision, policy_id, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		stored.ID, stored.Timestamp, stored.PrincipalID, stored.ObjectRef,
		stored.Action, stored.Decision, stored.PolicyID, stored.Reason)
	if err != nil {
		return fmt.Errorf("sqlite: recording event: %w", err)
	}
	return nil
}

// Events returns decision events matching the query, newest first.
func (s *Store) Events(ctx context.Context, q *audit.Query) ([]*audit.Event, error) {
	var conds []string
	var args []any
	if q != nil {
		if q.PrincipalID != "" {
			conds = append(conds, "principal_id = ?")
			args = append(args, q.PrincipalID)
		}
		if q.ObjectRef != "" {
			conds = append(conds, "object_ref = ?")
			args = append(args, q.ObjectRef)
		}
		if q.Decision != "" {
			conds = append(conds, "decision = ?")
			args = append(args, q.Decision)
		}
		if q.Since != nil {
			conds = append(conds, "ts >= ?")
			args = append(args, *q.Since)
		}
	}

	query := `SELECT id, ts, principal_id, object_ref, action, decision, policy_id, reason FROM decision_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY rowid DESC"
	if q != nil && q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: querying events: %w", err)
	}
	defer rows.Close()

	var out []*audit.Event
	for rows.Next() {
		var e audit.Event
		err := rows.Scan(&e.ID, &e.Timestamp, &e.PrincipalID, &e.ObjectRef,
			&e.Action, &e.Decision, &e.PolicyID, &e.Reason)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning event: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}
