// Package lifecycle tracks the process phase reported by the health endpoint.
package lifecycle

import "sync/atomic"

// Phase is the process lifecycle phase.
type Phase int32

const (
	// Starting means the country bootstrap has not finished yet.
	Starting Phase = iota
	// Serving means bootstrap finished, successfully or not.
	Serving
	// ShuttingDown means the process is draining and should not receive new traffic.
	ShuttingDown
)

func (p Phase) String() string {
	switch p {
	case Starting:
		return "starting"
	case Serving:
		return "serving"
	case ShuttingDown:
		return "shutting-down"
	default:
		return "unknown"
	}
}

var phase atomic.Int32

// SetPhase records the current phase. ShuttingDown is terminal; later calls are ignored.
func SetPhase(p Phase) {
	for {
		cur := phase.Load()
		if Phase(cur) == ShuttingDown {
			return
		}
		if phase.CompareAndSwap(cur, int32(p)) {
			return
		}
	}
}

// Current returns the current phase.
func Current() Phase {
	return Phase(phase.Load())
}

// IsShuttingDown reports whether SIGTERM/SIGINT was received.
func IsShuttingDown() bool {
	return Current() == ShuttingDown
}

// Reset returns the phase to Starting. Used by tests.
func Reset() {
	phase.Store(int32(Starting))
}
