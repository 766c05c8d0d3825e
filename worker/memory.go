package worker

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"
)

// processMemoryMB returns the resident set size of this process in MiB,
// falling back to the Go heap size when the OS query fails.
func processMemoryMB(proc *process.Process) float64 {
	if proc != nil {
		if info, err := proc.MemoryInfo(); err == nil {
			return float64(info.RSS) / (1024 * 1024)
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	return float64(ms.Sys) / (1024 * 1024)
}

func selfProcess() *process.Process {
	proc, err := process.NewProcess(int32(os.Getpid())) //nolint:gosec // pid fits in int32
	if err != nil {
		return nil
	}

	return proc
}
