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

package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRecorderRecord(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	err := rec.Record(ctx, &Event{
		PrincipalID: "alice",
		ObjectRef:   "file-1",
		Action:      "decrypt",
		Decision:    "allow",
		Reason:      "owner access granted",
	})
	require.NoError(t, err)

	events, err := rec.Events(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 1)

	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, "alice", events[0].PrincipalID)
}

func TestMemoryRecorderNilEvent(t *testing.T) {
	rec := NewMemoryRecorder()
	assert.Error(t, rec.Record(context.Background(), nil))
}

func TestMemoryRecorderQueryFilters(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	seed := []*Event{
		{PrincipalID: "alice", ObjectRef: "file-1", Decision: "allow"},
		{PrincipalID: "bob", ObjectRef: "file-1", Decision: "deny"},
		{PrincipalID: "alice", ObjectRef: "file-2", Decision: "deny"},
		{PrincipalID: "carol", ObjectRef: "file-2", Decision: "expired"},
	}
	for _, e := range seed {
		require.NoError(t, rec.Record(ctx, e))
	}

	tests := []struct {
		name  string
		query *Query
		want  int
	}{
		{"no filter", nil, 4},
		{"by principal", &Query{PrincipalID: "alice"}, 2},
		{"by object", &Query{ObjectRef: "file-1"}, 2},
		{"by decision", &Query{Decision: "deny"}, 2},
		{"combined", &Query{PrincipalID: "alice", Decision: "deny"}, 1},
		{"limit", &Query{Limit: 2}, 2},
		{"no match", &Query{PrincipalID: "mallory"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := rec.Events(ctx, tt.query)
			require.NoError(t, err)
			assert.Len(t, events, tt.want)
		})
	}
}

func TestMemoryRecorderNewestFirst(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		require.NoError(t, rec.Record(ctx, &Event{
			PrincipalID: fmt.Sprintf("user-%d", i),
			Timestamp:   base.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := rec.Events(ctx, nil)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "user-2", events[0].PrincipalID)
	assert.Equal(t, "user-0", events[2].PrincipalID)
}

func TestMemoryRecorderSinceFilter(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	cutoff := time.Now().UTC().Add(-time.Minute)

	require.NoError(t, rec.Record(ctx, &Event{PrincipalID: "old", Timestamp: old}))
	require.NoError(t, rec.Record(ctx, &Event{PrincipalID: "new"}))

	events, err := rec.Events(ctx, &Query{Since: &cutoff})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].PrincipalID)
}

func TestMemoryRecorderConcurrent(t *testing.T) {
	rec := NewMemoryRecorder()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = rec.Record(ctx, &Event{PrincipalID: fmt.Sprintf("user-%d", n)})
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000, rec.Len())
}
