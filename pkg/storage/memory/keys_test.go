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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jeremyhahn/go-threshold-kms/pkg/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecord(objectRef string) *kms.KeyRecord {
	return &kms.KeyRecord{
		ID:          uuid.NewString(),
		ObjectRef:   objectRef,
		TotalShares: 3,
		Threshold:   2,
		Status:      kms.StatusActive,
		CreatedAt:   time.Now().UTC(),
		Shares: []kms.KeyShare{
			{Index: 1, WrappedShare: "w1", Status: kms.ShareActive},
			{Index: 2, WrappedShare: "w2", Status: kms.ShareActive},
			{Index: 3, WrappedShare: "w3", Status: kms.ShareActive},
		},
	}
}

func TestKeyStoreCreateAndGet(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	rec := newRecord("media/1")
	require.NoError(t, store.CreateRecord(ctx, rec))

	got, err := store.ActiveRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Len(t, got.Shares, 3)

	_, err = store.ActiveRecord(ctx, "media/2")
	assert.ErrorIs(t, err, kms.ErrRecordNotFound)
}

func TestKeyStoreRejectsSecondActive(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRecord(ctx, newRecord("media/1")))
	err := store.CreateRecord(ctx, newRecord("media/1"))
	assert.ErrorIs(t, err, kms.ErrRecordExists)
}

func TestKeyStoreReturnsCopies(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	rec := newRecord("media/1")
	require.NoError(t, store.CreateRecord(ctx, rec))

	// Mutating the caller's record or a fetched record must not leak
	// into stored state.
	rec.Shares[0].Status = kms.ShareRevoked
	got, err := store.ActiveRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, kms.ShareActive, got.Shares[0].Status)

	got.Status = kms.StatusRevoked
	again, err := store.ActiveRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, kms.StatusActive, again.Status)
}

func TestKeyStoreRevoke(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRecord(ctx, newRecord("media/1")))

	at := time.Now().UTC()
	revoked, err := store.RevokeRecord(ctx, "media/1", at)
	require.NoError(t, err)
	assert.True(t, revoked)

	rec, err := store.LatestRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, kms.StatusRevoked, rec.Status)
	require.NotNil(t, rec.RevokedAt)
	assert.Equal(t, at, *rec.RevokedAt)
	for _, share := range rec.Shares {
		assert.Equal(t, kms.ShareRevoked, share.Status)
	}

	// Second revocation finds no active record.
	revoked, err = store.RevokeRecord(ctx, "media/1", at)
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestKeyStoreRotate(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	first := newRecord("media/1")
	require.NoError(t, store.CreateRecord(ctx, first))

	second := newRecord("media/1")
	require.NoError(t, store.RotateRecord(ctx, "media/1", second))

	active, err := store.ActiveRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	history, err := store.RecordHistory(ctx, "media/1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, first.ID, history[1].ID)
	assert.Equal(t, kms.StatusRotated, history[1].Status)
	for _, share := range history[1].Shares {
		assert.Equal(t, kms.ShareRevoked, share.Status)
	}
}

func TestKeyStoreRotateWithoutActive(t *testing.T) {
	store := NewKeyStore()
	err := store.RotateRecord(context.Background(), "media/1", newRecord("media/1"))
	assert.ErrorIs(t, err, kms.ErrRecordNotFound)
}

func TestKeyStoreMarkShareUsed(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()
	require.NoError(t, store.CreateRecord(ctx, newRecord("media/1")))

	require.NoError(t, store.MarkShareUsed(ctx, "media/1", 2))

	rec, err := store.ActiveRecord(ctx, "media/1")
	require.NoError(t, err)
	assert.Equal(t, kms.ShareUsed, rec.ShareByIndex(2).Status)
	assert.Equal(t, kms.ShareActive, rec.ShareByIndex(1).Status)

	assert.ErrorIs(t, store.MarkShareUsed(ctx, "media/1", 99), kms.ErrRecordNotFound)
	assert.ErrorIs(t, store.MarkShareUsed(ctx, "media/2", 1), kms.ErrRecordNotFound)
}

func TestKeyStoreList(t *testing.T) {
	store := NewKeyStore()
	ctx := context.Background()

	require.NoError(t, store.CreateRecord(ctx, newRecord("media/1")))
	require.NoError(t, store.CreateRecord(ctx, newRecord("media/2")))
	_, err := store.RevokeRecord(ctx, "media/1", time.Now().UTC())
	require.NoError(t, err)

	all, err := store.ListRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
	// Newest first.
	assert.Equal(t, "media/2", all[0].ObjectRef)

	active, err := store.ListRecords(ctx, kms.StatusActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "media/2", active[0].ObjectRef)

	revoked, err := store.ListRecords(ctx, kms.StatusRevoked)
	require.NoError(t, err)
	require.Len(t, revoked, 1)
	assert.Equal(t, "media/1", revoked[0].ObjectRef)
}
