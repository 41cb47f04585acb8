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

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordOperation(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(KeyOperationsTotal.WithLabelValues(OpStore, StatusSuccess))
	RecordOperation(OpStore, StatusSuccess, 0.005)
	after := testutil.ToFloat64(KeyOperationsTotal.WithLabelValues(OpStore, StatusSuccess))

	assert.Equal(t, before+1, after)
}

func TestRecordDecision(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(DecisionsTotal.WithLabelValues("allow"))
	RecordDecision("allow")
	RecordDecision("allow")
	after := testutil.ToFloat64(DecisionsTotal.WithLabelValues("allow"))

	assert.Equal(t, before+2, after)
}

func TestRecordError(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpRetrieve, "not_available"))
	RecordError(OpRetrieve, "not_available")
	after := testutil.ToFloat64(ErrorsTotal.WithLabelValues(OpRetrieve, "not_available"))

	assert.Equal(t, before+1, after)
}

func TestSetActiveKeys(t *testing.T) {
	Enable()

	SetActiveKeys(7)
	assert.Equal(t, 7.0, testutil.ToFloat64(ActiveKeys))

	SetActiveKeys(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(ActiveKeys))
}

func TestDisableSuppressesRecording(t *testing.T) {
	Enable()
	require.True(t, IsEnabled())

	Disable()
	defer Enable()
	require.False(t, IsEnabled())

	before := testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny"))
	RecordDecision("deny")
	RecordOperation(OpRevoke, StatusError, 0.001)
	RecordError(OpRevoke, "storage")
	after := testutil.ToFloat64(DecisionsTotal.WithLabelValues("deny"))

	assert.Equal(t, before, after)
}
