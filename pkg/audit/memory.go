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
	"time"

	"github.com/google/uuid"
)

// MemoryRecorder implements Recorder with in-memory storage. It is
// thread-safe and suitable for development and testing.
//
// Note: all events are lost on process restart. For durable audit logs
// use the SQLite recorder in pkg/storage/sqlite.
type MemoryRecorder struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryRecorder creates a new in-memory decision recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		events: make([]*Event, 0, 256),
	}
}

// Record appends one decision event, assigning an ID and timestamp when
// the caller did not.
func (m *MemoryRecorder) Record(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("audit: event cannot be nil")
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	if stored.Timestamp.IsZero() {
		stored.Timestamp = time.Now().UTC()
	}

	m.mu.Lock()
	m.events = append(m.events, &stored)
	m.mu.Unlock()

	return nil
}

// Events returns recorded events matching the query, newest first.
func (m *MemoryRecorder) Events(ctx context.Context, query *Query) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]*Event, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if !query.Matches(e) {
			continue
		}
		cp := *e
		results = append(results, &cp)
		if query != nil && query.Limit > 0 && len(results) == query.Limit {
			break
		}
	}
	return results, nil
}

// Len returns the number of recorded events.
func (m *MemoryRecorder) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events)
}
