// Package lifecycle tracks the process phase reported by the health endpoint.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// Phase is where the process is between start-up and exit.
type Phase int32

const (
	// Starting means dependencies are still being wired; traffic is refused.
	Starting Phase = iota
	// Ready means the process serves traffic.
	Ready
	// ShuttingDown means SIGTERM/SIGINT was received and in-flight requests are draining.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Ready:
		return "ready"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var (
	phase     atomic.Int32
	startedAt atomic.Int64
)

func init() {
	startedAt.Store(time.Now().UnixNano())
}

// MarkReady moves Starting to Ready. It never leaves ShuttingDown.
func MarkReady() {
	phase.CompareAndSwap(int32(Starting), int32(Ready))
}

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
// Clearing it returns the process to Ready.
func SetShuttingDown(v bool) {
	if v {
		phase.Store(int32(ShuttingDown))
		return
	}
	phase.Store(int32(Ready))
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return Current() == ShuttingDown
}

// Current returns the current phase.
func Current() Phase {
	return Phase(phase.Load())
}

// Uptime returns the time since the process started.
func Uptime() time.Duration {
	return time.Since(time.Unix(0, startedAt.Load()))
}

// reset returns to Starting. Tests only.
func reset() {
	phase.Store(int32(Starting))
}
