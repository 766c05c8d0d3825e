package testutil

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples the process RSS and goroutine count while a load
// test runs.
type ResourceMonitor struct {
	proc    *process.Process
	samples []ResourceSample
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// ResourceSample captures resource usage at a point in time.
type ResourceSample struct {
	Timestamp      time.Time
	RSSMB          float64
	GoroutineCount int
}

// ResourceReport summarizes resource usage over a monitoring period.
type ResourceReport struct {
	StartRSSMB      float64
	EndRSSMB        float64
	PeakRSSMB       float64
	StartGoroutines int
	EndGoroutines   int
	PeakGoroutines  int
	Samples         int
	Duration        time.Duration
}

// NewResourceMonitor creates a monitor for the current process.
//
// Example:
//
//	monitor := testutil.NewResourceMonitor()
//	monitor.Start(500 * time.Millisecond)
//	// ... run load ...
//	report := monitor.Stop()
//	t.Log(report.Summary())
func NewResourceMonitor() *ResourceMonitor {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		proc = nil
	}

	return &ResourceMonitor{proc: proc, done: make(chan struct{})}
}

// Start samples every interval until Stop.
func (rm *ResourceMonitor) Start(interval time.Duration) {
	rm.sample()
	rm.wg.Add(1)

	go func() {
		defer rm.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-rm.done:
				rm.sample()
				return
			case <-ticker.C:
				rm.sample()
			}
		}
	}()
}

// Stop ends sampling and returns the report.
func (rm *ResourceMonitor) Stop() ResourceReport {
	close(rm.done)
	rm.wg.Wait()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if len(rm.samples) == 0 {
		return ResourceReport{}
	}

	first := rm.samples[0]
	last := rm.samples[len(rm.samples)-1]
	report := ResourceReport{
		StartRSSMB:      first.RSSMB,
		EndRSSMB:        last.RSSMB,
		StartGoroutines: first.GoroutineCount,
		EndGoroutines:   last.GoroutineCount,
		Samples:         len(rm.samples),
		Duration:        last.Timestamp.Sub(first.Timestamp),
	}
	for _, s := range rm.samples {
		report.PeakRSSMB = max(report.PeakRSSMB, s.RSSMB)
		report.PeakGoroutines = max(report.PeakGoroutines, s.GoroutineCount)
	}

	return report
}

func (rm *ResourceMonitor) sample() {
	s := ResourceSample{Timestamp: time.Now(), GoroutineCount: runtime.NumGoroutine()}
	if rm.proc != nil {
		if info, err := rm.proc.MemoryInfo(); err == nil && info != nil {
			s.RSSMB = float64(info.RSS) / 1024 / 1024
		}
	}

	rm.mu.Lock()
	rm.samples = append(rm.samples, s)
	rm.mu.Unlock()
}

// Summary returns a one-line description of the report.
func (rr ResourceReport) Summary() string {
	return fmt.Sprintf(
		"RSS: %.1f -> %.1f MB (peak %.1f), goroutines: %d -> %d (peak %d), %d samples over %v",
		rr.StartRSSMB, rr.EndRSSMB, rr.PeakRSSMB,
		rr.StartGoroutines, rr.EndGoroutines, rr.PeakGoroutines,
		rr.Samples, rr.Duration.Round(time.Millisecond),
	)
}
