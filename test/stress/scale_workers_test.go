package stress_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/framepipe"
	"github.com/arloliu/framepipe/test/testutil"
	fptest "github.com/arloliu/framepipe/testing"
	"github.com/arloliu/framepipe/worker"
)

// TestScale_Workers processes a large session with growing worker pools and
// records throughput and resource baselines.
func TestScale_Workers(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping scale test in short mode")
	}

	requireStressEnabled(t)

	for _, workerCount := range []int{1, 4, 8} {
		t.Run(fmt.Sprintf("%dw", workerCount), func(t *testing.T) {
			cfg := testutil.IntegrationTestConfig()
			cfg.Collector.Concurrency = 64
			cfg.Collector.UnitTimeout = time.Minute
			cluster := testutil.NewCluster(t, cfg)
			for i := range workerCount {
				cluster.AddWorker(fmt.Sprintf("scale-%d", i), nil)
			}

			monitor := testutil.NewResourceMonitor()
			monitor.Start(500 * time.Millisecond)

			units := testutil.CreateTestUnits(2000, 4096)
			out := fptest.NewRecordingWriter()
			start := time.Now()
			report, err := cluster.NewPipeline().Run(t.Context(), units, framepipe.Directive{Operation: worker.OpInvert}, out)
			elapsed := time.Since(start)
			resources := monitor.Stop()

			require.NoError(t, err)
			testutil.AssertOrderedOutput(t, out.Entries(), len(units))
			testutil.AssertReportConsistent(t, report, out.Entries())
			require.Empty(t, report.Failed)

			t.Logf("BASELINE [%d workers, %d units]: %v, %.0f units/s, p99 %.2fms",
				workerCount, len(units), elapsed.Round(time.Millisecond),
				report.Summary.Progress.Throughput, report.Summary.Progress.Latency.P99)
			t.Log(resources.Summary())

			// Sanity bounds, not strict limits.
			require.Less(t, resources.PeakGoroutines, 2000, "goroutine count should be reasonable")
		})
	}
}
