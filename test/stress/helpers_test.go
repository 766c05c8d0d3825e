package stress_test

import (
	"os"
	"testing"
)

// requireStressEnabled skips the test unless long stress tests are explicitly enabled.
//
// Enable by setting environment variable FRAMEPIPE_STRESS=1 when invoking `go test`.
// Example:
//
//	FRAMEPIPE_STRESS=1 go test -v -timeout 20m ./test/stress
func requireStressEnabled(t *testing.T) {
	t.Helper()
	if os.Getenv("FRAMEPIPE_STRESS") != "1" {
		t.Skip("Skipping long stress/perf test (set FRAMEPIPE_STRESS=1 to run)")
	}
}
