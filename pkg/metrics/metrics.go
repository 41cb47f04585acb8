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

// Package metrics provides Prometheus instrumentation for key management
// and access decision operations.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all metrics.
	Namespace = "tkms"

	// Label names
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelDecision  = "decision"
	LabelErrorType = "error_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpStore    = "store"
	OpRetrieve = "retrieve"
	OpRevoke   = "revoke"
	OpRotate   = "rotate"
	OpDescribe = "describe"
	OpList     = "list"
)

var (
	// KeyOperationsTotal tracks key lifecycle operations by type and status.
	// Use RecordOperation to increment this counter with the appropriate labels.
	KeyOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "key_operations_total",
			Help:      "Total number of key operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// KeyOperationDuration tracks the duration of key operations in seconds.
	// Buckets are sized for in-process cryptographic operations.
	KeyOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "key_operation_duration_seconds",
			Help:      "Duration of key operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation},
	)

	// DecisionsTotal tracks access decisions by outcome.
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Total number of access decisions by outcome",
		},
		[]string{LabelDecision},
	)

	// ErrorsTotal tracks errors by operation and error type.
	// Error types should be specific (e.g., "not_found", "storage", "not_available").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation and error type",
		},
		[]string{LabelOperation, LabelErrorType},
	)

	// ActiveKeys tracks the number of key records currently in active status.
	ActiveKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "active_keys",
			Help:      "Number of key records currently in active status",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordOperation records a key operation with its duration and status.
//
// Example:
//
//	start := time.Now()
//	key, err := svc.Retrieve(ctx, req)
//	duration := time.Since(start).Seconds()
//	if err != nil {
//	    metrics.RecordOperation(metrics.OpRetrieve, metrics.StatusError, duration)
//	} else {
//	    metrics.RecordOperation(metrics.OpRetrieve, metrics.StatusSuccess, duration)
//	}
func RecordOperation(operation, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	KeyOperationsTotal.WithLabelValues(operation, status).Inc()
	KeyOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordDecision records an access decision outcome
// (allow, deny, require_shares, expired).
func RecordDecision(decision string) {
	if !enabled.Load() {
		return
	}
	DecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordError records an error event with context about where it occurred.
func RecordError(operation, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, errorType).Inc()
}

// SetActiveKeys sets the active key record gauge.
func SetActiveKeys(count float64) {
	if !enabled.Load() {
		return
	}
	ActiveKeys.Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
