// system.go captures process state for context snapshots.

package kuyo

import (
	"os"
	"runtime"
	"time"
)

// SystemState captures process metrics at a moment in time.
type SystemState struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of active goroutines.
	GoroutineCount int

	// UptimeMs is the time since startTime in milliseconds.
	UptimeMs int64

	// HostName is the hostname of the machine.
	HostName string

	// PID is the process id.
	PID int
}

// CaptureSystemState captures system metrics at the current moment.
// The startTime parameter is used to calculate process uptime.
func CaptureSystemState(startTime time.Time) SystemState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hostname, _ := os.Hostname() // Ignore error, empty hostname is acceptable

	uptimeMs := time.Since(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0 // Clamp to 0 if start time is in the future
	}

	return SystemState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
		HostName:       hostname,
		PID:            os.Getpid(),
	}
}

// Map renders the state as event context.
func (s SystemState) Map() map[string]any {
	return map[string]any{
		"memoryBytes":    s.MemoryBytes,
		"goroutineCount": s.GoroutineCount,
		"uptimeMs":       s.UptimeMs,
		"hostName":       s.HostName,
		"pid":            s.PID,
	}
}
