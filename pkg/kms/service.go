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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/secretsharing"
	"github.com/jeremyhahn/go-threshold-kms/pkg/crypto/wrapping"
	"github.com/jeremyhahn/go-threshold-kms/pkg/logging"
	"github.com/jeremyhahn/go-threshold-kms/pkg/metrics"
)

// MaxShares is the largest share count the field supports: evaluation
// points are 1..255.
const MaxShares = 255

// Service implements the key lifecycle: splitting keys into wrapped
// shares, reconstructing them under threshold rules, and the
// revoke/rotate transitions. Mutating operations are serialized per
// object reference so concurrent callers cannot interleave a rotate
// with a revoke on the same object.
type Service struct {
	store   Store
	wrapper wrapping.Service
	logger  *logging.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *logging.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

// WithClock overrides the service time source for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a key management Service persisting through store
// and protecting key material at rest with wrapper.
func NewService(store Store, wrapper wrapping.Service, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		wrapper: wrapper,
		logger:  logging.DefaultLogger(),
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// updateActiveGauge refreshes the active-keys gauge from storage. Gauge
// accuracy is best effort; a count failure never fails the operation.
func (s *Service) updateActiveGauge(ctx context.Context) {
	recs, err := s.store.ListRecords(ctx, StatusActive)
	if err != nil {
		return
	}
	metrics.SetActiveKeys(float64(len(recs)))
}

// objectLock returns the mutex serializing mutations for objectRef.
func (s *Service) objectLock(objectRef string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[objectRef]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[objectRef] = lock
	}
	return lock
}

// Store persists a key for objectRef. With nShares == 1 the key is
// wrapped whole and the threshold is forced to 1. With nShares > 1 the
// threshold is clamped into [2, nShares], the key is split, and each
// share is wrapped individually; the wrapped key column stays empty so
// the only path back to the key is reconstruction. Holder IDs are
// assigned to shares positionally.
//
// The returned plaintext shares are for distribution to holders; they
// are not retained unwrapped.
func (s *Service) Store(ctx context.Context, objectRef string, key []byte, nShares, threshold int, holderIDs []string) (*KeyInfo, []ProvidedShare, error) {
	if objectRef == "" {
		return nil, nil, fmt.Errorf("%w: object reference is required", ErrInvalidRequest)
	}
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("%w: key material is required", ErrInvalidRequest)
	}
	if nShares < 1 || nShares > MaxShares {
		return nil, nil, fmt.Errorf("%w: share count must be in [1, %d]", ErrInvalidRequest, MaxShares)
	}

	lock := s.objectLock(objectRef)
	lock.Lock()
	defer lock.Unlock()

	start := s.now()
	rec := &KeyRecord{
		ID:        uuid.NewString(),
		ObjectRef: objectRef,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}

	var plaintext []ProvidedShare
	if nShares == 1 {
		wrapped, err := s.wrapper.Wrap(key)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: wrapping key: %w", err)
		}
		rec.WrappedKey = wrapped
		rec.TotalShares = 1
		rec.Threshold = 1
	} else {
		if threshold < 2 {
			threshold = 2
		}
		if threshold > nShares {
			threshold = nShares
		}
		shares, err := secretsharing.Split(key, nShares, threshold)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: splitting key: %w", err)
		}
		rec.TotalShares = nShares
		rec.Threshold = threshold
		rec.Shares = make([]KeyShare, 0, len(shares))
		plaintext = make([]ProvidedShare, 0, len(shares))
		for i, share := range shares {
			wrapped, err := s.wrapper.Wrap(share.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("kms: wrapping share %d: %w", share.Index, err)
			}
			holder := ""
			if i < len(holderIDs) {
				holder = holderIDs[i]
			}
			rec.Shares = append(rec.Shares, KeyShare{
				Index:        share.Index,
				WrappedShare: wrapped,
				HolderID:     holder,
				Status:       ShareActive,
			})
			plaintext = append(plaintext, ProvidedShare{Index: share.Index, Payload: share.Value})
		}
	}

	if err := s.store.CreateRecord(ctx, rec); err != nil {
		metrics.RecordError(metrics.OpStore, "storage")
		if errors.Is(err, ErrRecordExists) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Infof("stored key for %s: %d shares, threshold %d", objectRef, rec.TotalShares, rec.Threshold)
	metrics.RecordOperation(metrics.OpStore, metrics.StatusSuccess, s.now().Sub(start).Seconds())
	s.updateActiveGauge(ctx)
	return rec.Info(), plaintext, nil
}

// Retrieve reconstructs the key for objectRef.
//
// Unsplit records are unwrapped directly. Split records require either
// at least threshold provided shares, or, when none are provided, at
// least threshold active stored shares (the administrative auto-collect
// path). Anything short of the threshold, and any non-active record,
// yields ErrNotAvailable.
func (s *Service) Retrieve(ctx context.Context, objectRef string, provided []ProvidedShare) ([]byte, error) {
	rec, err := s.store.ActiveRecord(ctx, objectRef)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no active key for %q", ErrNotAvailable, objectRef)
		}
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	if rec.TotalShares == 1 {
		key, err := s.wrapper.Unwrap(rec.WrappedKey)
		if err != nil {
			return nil, fmt.Errorf("kms: unwrapping key: %w", err)
		}
		return key, nil
	}

	if len(provided) > 0 {
		return s.reconstructProvided(rec, provided)
	}
	return s.reconstructStored(rec)
}

func (s *Service) reconstructProvided(rec *KeyRecord, provided []ProvidedShare) ([]byte, error) {
	if len(provided) < rec.Threshold {
		return nil, fmt.Errorf("%w: need %d shares, got %d", ErrNotAvailable, rec.Threshold, len(provided))
	}
	shares := make([]secretsharing.Share, 0, len(provided))
	for _, p := range provided {
		shares = append(shares, secretsharing.Share{Index: p.Index, Value: p.Payload})
	}
	secretLength := shares[0].SecretLength()
	key, err := secretsharing.Reconstruct(shares, secretLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return key, nil
}

// reconstructStored unwraps the record's active shares and reconstructs
// from the first threshold of them.
func (s *Service) reconstructStored(rec *KeyRecord) ([]byte, error) {
	active := rec.ActiveShares()
	if len(active) < rec.Threshold {
		return nil, fmt.Errorf("%w: need %d active shares, got %d", ErrNotAvailable, rec.Threshold, len(active))
	}

	shares := make([]secretsharing.Share, 0, rec.Threshold)
	for _, ks := range active[:rec.Threshold] {
		payload, err := s.wrapper.Unwrap(ks.WrappedShare)
		if err != nil {
			return nil, fmt.Errorf("kms: unwrapping share %d: %w", ks.Index, err)
		}
		shares = append(shares, secretsharing.Share{Index: ks.Index, Value: payload})
	}

	secretLength := shares[0].SecretLength()
	key, err := secretsharing.Reconstruct(shares, secretLength)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAvailable, err)
	}
	return key, nil
}

// Revoke marks the active key record for objectRef revoked and cascades
// revocation to its shares. It is idempotent: revoking an object with
// no active record returns (false, nil).
func (s *Service) Revoke(ctx context.Context, objectRef string) (bool, error) {
	lock := s.objectLock(objectRef)
	lock.Lock()
	defer lock.Unlock()

	revoked, err := s.store.RevokeRecord(ctx, objectRef, s.now().UTC())
	if err != nil {
		metrics.RecordError(metrics.OpRevoke, "storage")
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if revoked {
		s.logger.Infof("revoked key for %s", objectRef)
		metrics.RecordOperation(metrics.OpRevoke, metrics.StatusSuccess, 0)
		s.updateActiveGauge(ctx)
	}
	return revoked, nil
}

// Rotate replaces the active key for objectRef with newKey, preserving
// the record's share topology. The old record is marked rotated and
// kept in history. Returns ErrRecordNotFound when no active record
// exists.
func (s *Service) Rotate(ctx context.Context, objectRef string, newKey []byte) (*KeyInfo, []ProvidedShare, error) {
	if len(newKey) == 0 {
		return nil, nil, fmt.Errorf("%w: key material is required", ErrInvalidRequest)
	}

	lock := s.objectLock(objectRef)
	lock.Lock()
	defer lock.Unlock()

	old, err := s.store.ActiveRecord(ctx, objectRef)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	rec := &KeyRecord{
		ID:          uuid.NewString(),
		ObjectRef:   objectRef,
		TotalShares: old.TotalShares,
		Threshold:   old.Threshold,
		Status:      StatusActive,
		CreatedAt:   s.now().UTC(),
	}

	var plaintext []ProvidedShare
	if old.TotalShares == 1 {
		wrapped, err := s.wrapper.Wrap(newKey)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: wrapping key: %w", err)
		}
		rec.WrappedKey = wrapped
	} else {
		shares, err := secretsharing.Split(newKey, old.TotalShares, old.Threshold)
		if err != nil {
			return nil, nil, fmt.Errorf("kms: splitting key: %w", err)
		}
		rec.Shares = make([]KeyShare, 0, len(shares))
		plaintext = make([]ProvidedShare, 0, len(shares))
		for i, share := range shares {
			wrapped, err := s.wrapper.Wrap(share.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("kms: wrapping share %d: %w", share.Index, err)
			}
			holder := ""
			if i < len(old.Shares) {
				holder = old.Shares[i].HolderID
			}
			rec.Shares = append(rec.Shares, KeyShare{
				Index:        share.Index,
				WrappedShare: wrapped,
				HolderID:     holder,
				Status:       ShareActive,
			})
			plaintext = append(plaintext, ProvidedShare{Index: share.Index, Payload: share.Value})
		}
	}

	if err := s.store.RotateRecord(ctx, objectRef, rec); err != nil {
		metrics.RecordError(metrics.OpRotate, "storage")
		if errors.Is(err, ErrRecordNotFound) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	s.logger.Infof("rotated key for %s", objectRef)
	metrics.RecordOperation(metrics.OpRotate, metrics.StatusSuccess, 0)
	return rec.Info(), plaintext, nil
}

// MarkShareUsed transitions a share of the object's active record to
// used status, recording that a holder has consumed it.
func (s *Service) MarkShareUsed(ctx context.Context, objectRef string, index int) error {
	lock := s.objectLock(objectRef)
	lock.Lock()
	defer lock.Unlock()
	return s.store.MarkShareUsed(ctx, objectRef, index)
}

// Describe returns the metadata view of the latest record for objectRef,
// whatever its status. Key material is never included.
func (s *Service) Describe(ctx context.Context, objectRef string) (*KeyInfo, error) {
	rec, err := s.store.LatestRecord(ctx, objectRef)
	if err != nil {
		return nil, err
	}
	return rec.Info(), nil
}

// History returns the metadata view of every record generation for
// objectRef, newest first.
func (s *Service) History(ctx context.Context, objectRef string) ([]*KeyInfo, error) {
	recs, err := s.store.RecordHistory(ctx, objectRef)
	if err != nil {
		return nil, err
	}
	infos := make([]*KeyInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, rec.Info())
	}
	return infos, nil
}

// List returns metadata for records matching status; an empty status
// matches all.
func (s *Service) List(ctx context.Context, status Status) ([]*KeyInfo, error) {
	recs, err := s.store.ListRecords(ctx, status)
	if err != nil {
		return nil, err
	}
	infos := make([]*KeyInfo, 0, len(recs))
	for _, rec := range recs {
		infos = append(infos, rec.Info())
	}
	return infos, nil
}
