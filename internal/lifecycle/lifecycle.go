// Package lifecycle tracks a runner process's startup phase, supplementing
// original_source/kre-py/src/main.py's NodeRunner, whose connect → subscribe
// → serve transitions are otherwise invisible to an external orchestrator
// (spec.md's distillation has no health/readiness surface; SPEC_FULL.md adds
// this as a small, clearly-scoped supplement).
package lifecycle

import "sync/atomic"

// State names one phase of the connect → subscribe → serve → stop sequence.
type State int32

const (
	Connecting State = iota
	Subscribing
	Ready
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Subscribing:
		return "subscribing"
	case Ready:
		return "ready"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Tracker holds the current State, safe for concurrent Set/Snapshot.
type Tracker struct {
	state atomic.Int32
}

// NewTracker builds a Tracker starting in Connecting.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.state.Store(int32(Connecting))
	return t
}

// Set transitions to s.
func (t *Tracker) Set(s State) {
	t.state.Store(int32(s))
}

// Snapshot reports the current State.
func (t *Tracker) Snapshot() State {
	return State(t.state.Load())
}

// Healthy reports whether the process should be considered ready to serve
// traffic — wired to an HTTP /healthz-equivalent handler in cmd/node.
func (t *Tracker) Healthy() bool {
	return t.Snapshot() == Ready
}
