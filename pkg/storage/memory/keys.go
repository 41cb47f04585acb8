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

// Package memory provides in-memory implementations of the kms and
// policy stores. All aggregates are deep-copied on the way in and out
// so callers never alias stored state. Intended for tests and
// single-process deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
)

// KeyStore is an in-memory implementation of kms.Store.
type KeyStore struct {
	mu sync.RWMutex
	// records in insertion order, oldest first
	records []*kms.KeyRecord
}

// NewKeyStore creates an empty in-memory key store.
func NewKeyStore() *KeyStore {
	return &KeyStore{}
}

func copyRecord(rec *kms.KeyRecord) *kms.KeyRecord {
	dup := *rec
	if rec.RevokedAt != nil {
		at := *rec.RevokedAt
		dup.RevokedAt = &at
	}
	dup.Shares = make([]kms.KeyShare, len(rec.Shares))
	copy(dup.Shares, rec.Shares)
	return &dup
}

// activeIndex returns the position of the active record for objectRef,
// or -1. Caller must hold the lock.
func (s *KeyStore) activeIndex(objectRef string) int {
	for i, rec := range s.records {
		if rec.ObjectRef == objectRef && rec.Status == kms.StatusActive {
			return i
		}
	}
	return -1
}

// CreateRecord persists a new record with its shares.
func (s *KeyStore) CreateRecord(ctx context.Context, rec *kms.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeIndex(rec.ObjectRef) >= 0 {
		return kms.ErrRecordExists
	}
	s.records = append(s.records, copyRecord(rec))
	return nil
}

// ActiveRecord returns the active record for objectRef.
func (s *KeyStore) ActiveRecord(ctx context.Context, objectRef string) (*kms.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if i := s.activeIndex(objectRef); i >= 0 {
		return copyRecord(s.records[i]), nil
	}
	return nil, kms.ErrRecordNotFound
}

// LatestRecord returns the most recently created record for objectRef
// regardless of status.
func (s *KeyStore) LatestRecord(ctx context.Context, objectRef string) (*kms.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ObjectRef == objectRef {
			return copyRecord(s.records[i]), nil
		}
	}
	return nil, kms.ErrRecordNotFound
}

// RecordHistory returns every record for objectRef, newest first.
func (s *KeyStore) RecordHistory(ctx context.Context, objectRef string) ([]*kms.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var history []*kms.KeyRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].ObjectRef == objectRef {
			history = append(history, copyRecord(s.records[i]))
		}
	}
	return history, nil
}

// RevokeRecord marks the active record revoked and cascades to its
// active shares.
func (s *KeyStore) RevokeRecord(ctx context.Context, objectRef string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex(objectRef)
	if i < 0 {
		return false, nil
	}
	rec := s.records[i]
	rec.Status = kms.StatusRevoked
	rec.RevokedAt = &at
	for j := range rec.Shares {
		if rec.Shares[j].Status == kms.ShareActive {
			rec.Shares[j].Status = kms.ShareRevoked
		}
	}
	return true, nil
}

// RotateRecord marks the current active record rotated and inserts
// newRec atomically.
func (s *KeyStore) RotateRecord(ctx context.Context, objectRef string, newRec *kms.KeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex(objectRef)
	if i < 0 {
		return kms.ErrRecordNotFound
	}
	old := s.records[i]
	old.Status = kms.StatusRotated
	for j := range old.Shares {
		if old.Shares[j].Status == kms.ShareActive {
			old.Shares[j].Status = kms.ShareRevoked
		}
	}
	s.records = append(s.records, copyRecord(newRec))
	return nil
}

// MarkShareUsed transitions a share of the active record to used status.
func (s *KeyStore) MarkShareUsed(ctx context.Context, objectRef string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.activeIndex(objectRef)
	if i < 0 {
		return kms.ErrRecordNotFound
	}
	rec := s.records[i]
	for j := range rec.Shares {
		if rec.Shares[j].Index == index {
			rec.Shares[j].Status = kms.ShareUsed
			return nil
		}
	}
	return kms.ErrRecordNotFound
}

// ListRecords returns records matching status, newest first. An empty
// status matches all.
func (s *KeyStore) ListRecords(ctx context.Context, status kms.Status) ([]*kms.KeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*kms.KeyRecord
	for i := len(s.records) - 1; i >= 0; i-- {
		if status == "" || s.records[i].Status == status {
			out = append(out, copyRecord(s.records[i]))
		}
	}
	return out, nil
}
