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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-threshold-kms/pkg/policy"
)

// CreatePolicy persists a new policy. Allowed principals are serialized
// as a JSON array.
func (s *Store) CreatePolicy(ctx context.Context, p *policy.Policy) error {
	principals, err := marshalPrincipals(p.AllowedPrincipals)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policies (id, object_ref, type, priority, allowed_principals, expires_at,
		                       required_approvals, rule, created_by, created_at, enabled)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ObjectRef, string(p.Type), p.Priority, principals, p.ExpiresAt,
		p.RequiredApprovals, p.Rule, p.CreatedBy, p.CreatedAt, p.Enabled)
	if err != nil {
		return fmt.Errorf("sqlite: inserting policy: %w", err)
	}
	return nil
}

// UpdatePolicy replaces the stored policy with the same ID. The row
// keeps its rowid, preserving creation order in listings.
func (s *Store) UpdatePolicy(ctx context.Context, p *policy.Policy) error {
	principals, err := marshalPrincipals(p.AllowedPrincipals)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE policies SET object_ref = ?, type = ?, priority = ?, allowed_principals = ?,
		        expires_at = ?, required_approvals = ?, rule = ?, created_by = ?, enabled = ?
		 WHERE id = ?`,
		p.ObjectRef, string(p.Type), p.Priority, principals, p.ExpiresAt,
		p.RequiredApprovals, p.Rule, p.CreatedBy, p.Enabled, p.ID)
	if err != nil {
		return fmt.Errorf("sqlite: updating policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrPolicyNotFound
	}
	return nil
}

// DeletePolicy removes a policy by ID.
func (s *Store) DeletePolicy(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policies WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting policy: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return policy.ErrPolicyNotFound
	}
	return nil
}

// GetPolicy returns a policy by ID.
func (s *Store) GetPolicy(ctx context.Context, id string) (*policy.Policy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, object_ref, type, priority, allowed_principals, expires_at,
		        required_approvals, rule, created_by, created_at, enabled
		 FROM policies WHERE id = ?`, id)
	p, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, policy.ErrPolicyNotFound
		}
		return nil, err
	}
	return p, nil
}

// PoliciesForObject returns all policies scoped to objectRef in
// creation order.
func (s *Store) PoliciesForObject(ctx context.Context, objectRef string) ([]*policy.Policy, error) {
	if objectRef == "" {
		return nil, nil
	}
	return s.queryPolicies(ctx,
		`SELECT id, object_ref, type, priority, allowed_principals, expires_at,
		        required_approvals, rule, created_by, created_at, enabled
		 FROM policies WHERE object_ref = ? ORDER BY rowid`, objectRef)
}

// GlobalPolicies returns all global policies in creation order.
func (s *Store) GlobalPolicies(ctx context.Context) ([]*policy.Policy, error) {
	return s.queryPolicies(ctx,
		`SELECT id, object_ref, type, priority, allowed_principals, expires_at,
		        required_approvals, rule, created_by, created_at, enabled
		 FROM policies WHERE object_ref = '' ORDER BY rowid`)
}

func (s *Store) queryPolicies(ctx context.Context, query string, args ...any) ([]*policy.Policy, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing policies: %w", err)
	}
	defer rows.Close()

	var out []*policy.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPolicy(row rowScanner) (*policy.Policy, error) {
	var p policy.Policy
	var typ, principals string
	var expiresAt sql.NullTime
	err := row.Scan(&p.ID, &p.ObjectRef, &typ, &p.Priority, &principals, &expiresAt,
		&p.RequiredApprovals, &p.Rule, &p.CreatedBy, &p.CreatedAt, &p.Enabled)
	if err != nil {
		return nil, err
	}
	p.Type = policy.Type(typ)
	p.CreatedAt = p.CreatedAt.UTC()
	if expiresAt.Valid {
		at := expiresAt.Time.UTC()
		p.ExpiresAt = &at
	}
	if err := json.Unmarshal([]byte(principals), &p.AllowedPrincipals); err != nil {
		return nil, fmt.Errorf("sqlite: decoding principals: %w", err)
	}
	return &p, nil
}

func marshalPrincipals(principals []string) (string, error) {
	if principals == nil {
		principals = []string{}
	}
	data, err := json.Marshal(principals)
	if err != nil {
		return "", fmt.Errorf("sqlite: encoding principals: %w", err)
	}
	return string(data), nil
}
