package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/types"
)

func TestNewNop(t *testing.T) {
	metrics := NewNop()

	require.NotNil(t, metrics)
	require.IsType(t, &NopMetrics{}, metrics)
}

func TestNopMetrics_AllMethods(t *testing.T) {
	metrics := NewNop()

	require.NotPanics(t, func() {
		metrics.RecordSubmission(true, 0.01)
		metrics.RecordSubmitRetry()
		metrics.RecordSessionTransition(types.SessionActive, types.SessionCompleted)
		metrics.SetActiveWatchers(3)
		metrics.RecordStorePoll(false, -1)
		metrics.RecordUnitResolved("failure", 2)
		metrics.RecordDegradedMetadata()
		metrics.SetReorderBuffered(0)
		metrics.RecordDuplicateResult()
		metrics.RecordMissingUnit()
		metrics.RecordProcessingDuration("", 0)
		metrics.RecordSinkPublish(true)
		metrics.RecordHeartbeat("worker-0", true)
		metrics.RecordUnitProcessed("invert", false)
	})
}
