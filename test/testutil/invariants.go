package testutil

import (
	"testing"

	"github.com/arloliu/framepipe"
)

// AssertOrderedOutput verifies that entries hold exactly one entry per
// sequence number in [0, total), in strictly ascending order.
//
// Parameters:
//   - t: testing handle
//   - entries: entries in the order the Writer received them
//   - total: number of units in the session
func AssertOrderedOutput(t *testing.T, entries []framepipe.OutputEntry, total int) {
	t.Helper()

	if len(entries) != total {
		t.Fatalf("writer received %d entries, want %d", len(entries), total)
	}
	for i, e := range entries {
		if e.Seq != i {
			t.Fatalf("entry %d has seq %d: output out of order or duplicated", i, e.Seq)
		}
	}
}

// AssertReportConsistent verifies the bookkeeping of a finished session:
// every slot was written, timed-out units are a subset of failed units, and
// fallback entries match the failed list.
//
// Parameters:
//   - t: testing handle
//   - report: session report
//   - entries: entries the Writer received
func AssertReportConsistent(t *testing.T, report *framepipe.Report, entries []framepipe.OutputEntry) {
	t.Helper()

	if report.Written != report.Total {
		t.Fatalf("report written %d, total %d", report.Written, report.Total)
	}

	failed := make(map[int]struct{}, len(report.Failed))
	for _, seq := range report.Failed {
		if seq < 0 || seq >= report.Total {
			t.Fatalf("failed seq %d outside [0, %d)", seq, report.Total)
		}
		if _, dup := failed[seq]; dup {
			t.Fatalf("seq %d listed as failed twice", seq)
		}
		failed[seq] = struct{}{}
	}
	for _, seq := range report.TimedOut {
		if _, ok := failed[seq]; !ok {
			t.Fatalf("timed out seq %d missing from failed list", seq)
		}
	}

	fallbacks := 0
	for _, e := range entries {
		if !e.Fallback {
			continue
		}
		fallbacks++
		if _, ok := failed[e.Seq]; !ok {
			t.Fatalf("seq %d written with fallback but not reported as failed", e.Seq)
		}
	}
	if fallbacks != len(failed) {
		t.Fatalf("%d fallback entries, %d failed units", fallbacks, len(failed))
	}
}
