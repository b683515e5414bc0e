package gate

import "sync/atomic"

// Host reports whether the hosting process is in a state where diagnostics
// should be forwarded at all.
type Host interface {
	IsActive() bool
}

// BuildReporter is implemented by hosts that can tell when a build or
// compile step is underway. Hosts without it are treated as never building.
type BuildReporter interface {
	IsBuildInProgress() bool
}

type alwaysActive struct{}

func (alwaysActive) IsActive() bool { return true }

// AlwaysActive is a Host that is always active and never building.
var AlwaysActive Host = alwaysActive{}

// Lifecycle is a Host whose state is flipped by the hosting process.
// The zero value is inactive and not building.
type Lifecycle struct {
	active   atomic.Bool
	building atomic.Bool
}

// NewLifecycle returns a Lifecycle with the given initial active state.
func NewLifecycle(active bool) *Lifecycle {
	l := &Lifecycle{}
	l.active.Store(active)
	return l
}

func (l *Lifecycle) IsActive() bool          { return l.active.Load() }
func (l *Lifecycle) IsBuildInProgress() bool { return l.building.Load() }

// SetActive marks the host as running (true) or stopped/draining (false).
func (l *Lifecycle) SetActive(active bool) { l.active.Store(active) }

// SetBuildInProgress marks a build window. Events are dropped while set.
func (l *Lifecycle) SetBuildInProgress(building bool) { l.building.Store(building) }

func buildInProgress(h Host) bool {
	br, ok := h.(BuildReporter)
	return ok && br.IsBuildInProgress()
}
