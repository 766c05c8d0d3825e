package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe/types"
)

func TestPrometheusCollector_LazyRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewPrometheus(reg, "test")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Empty(t, families)
}

func TestPrometheusCollector_Records(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "test")

	p.RecordSubmission(true, 0.002)
	p.RecordSubmission(false, 0.5)
	p.RecordSubmitRetry()
	p.RecordSessionTransition(types.SessionActive, types.SessionCompleted)
	p.SetActiveWatchers(3)
	p.RecordUnitResolved("success", 0.3)
	p.RecordUnitResolved("failure", 2.1)
	p.RecordUnitResolved("failure", 2.0)
	p.RecordDuplicateResult()
	p.SetReorderBuffered(5)

	require.InDelta(t, 1, testutil.ToFloat64(p.submissions.WithLabelValues("success")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.submissions.WithLabelValues("failure")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.submitRetries), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.sessionTransitions.WithLabelValues("active", "completed")), 0)
	require.InDelta(t, 3, testutil.ToFloat64(p.activeWatchers), 0)
	require.InDelta(t, 2, testutil.ToFloat64(p.unitsResolved.WithLabelValues("failure")), 0)
	require.InDelta(t, 1, testutil.ToFloat64(p.duplicates), 0)
	require.InDelta(t, 5, testutil.ToFloat64(p.reorderBuffered), 0)
}

func TestPrometheusCollector_DefaultNamespace(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg, "")
	p.RecordMissingUnit()

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "framepipe_reorder_missing_units_total")
}
