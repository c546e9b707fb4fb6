package sink

import (
	"fmt"
	"strings"
)

// TransitionKind selects how an output mixes the outgoing and the
// incoming look while a transition is in flight.
type TransitionKind int

const (
	Cut TransitionKind = iota
	Dissolve
	Wipe
	Dip
)

func (k TransitionKind) String() string {
	switch k {
	case Cut:
		return "cut"
	case Dissolve:
		return "dissolve"
	case Wipe:
		return "wipe"
	case Dip:
		return "dip"
	default:
		return "unknown"
	}
}

// ParseTransitionKind maps the names used by the control API and the
// config file onto a TransitionKind.
func ParseTransitionKind(s string) (TransitionKind, error) {
	switch strings.ToLower(s) {
	case "cut":
		return Cut, nil
	case "dissolve":
		return Dissolve, nil
	case "wipe":
		return Wipe, nil
	case "dip":
		return Dip, nil
	default:
		return Cut, fmt.Errorf("unknown transition kind %q", s)
	}
}

// Transition tracks one in-flight source change. It is a plain value
// with no locking and no resource handles; State wraps it with a mutex
// and applies the pending crop/correction payload when a transition
// completes. Duration is measured in frames; a manual transition has
// Duration 0 and moves only through SetProgress.
type Transition struct {
	Kind     TransitionKind
	Duration int
	Progress float64
	Active   bool
	Current  int
	Pending  int

	elapsed int
}

// Begin arms a transition toward target. A Cut, or any non-positive
// duration, swaps immediately and leaves nothing in flight. The return
// value reports whether the caller must apply the pending payload now.
func (t *Transition) Begin(target int, kind TransitionKind, durationFrames int) bool {
	t.Kind = kind
	t.Pending = target
	t.Progress = 0
	t.elapsed = 0
	if kind == Cut || durationFrames <= 0 {
		t.Current = target
		t.Duration = 0
		t.Active = false
		return true
	}
	t.Duration = durationFrames
	t.Active = true
	return false
}

// BeginManual arms a transition driven entirely by SetProgress, for
// T-bar style operator control.
func (t *Transition) BeginManual(target int, kind TransitionKind) {
	t.Kind = kind
	t.Duration = 0
	t.Pending = target
	t.Progress = 0
	t.elapsed = 0
	t.Active = true
}

// Advance moves a timed transition forward by one frame. Progress is
// derived from a frame counter so that a transition of duration D
// completes on exactly the Dth call. The return value reports whether
// this call completed the transition.
func (t *Transition) Advance() bool {
	if !t.Active || t.Duration <= 0 {
		return false
	}
	t.elapsed++
	t.Progress = float64(t.elapsed) / float64(t.Duration)
	if t.Progress >= 1 {
		t.finish()
		return true
	}
	return false
}

// SetProgress sets the transition position directly, clamped into
// [0,1]. Reaching 1 completes the transition the same way Advance
// does, exactly once. The second return value reports whether any
// transition was active to drive; the first, whether this call
// completed it.
func (t *Transition) SetProgress(p float64) (completed, active bool) {
	if !t.Active {
		return false, false
	}
	t.Progress = clamp01(p)
	if t.Duration > 0 {
		t.elapsed = int(t.Progress * float64(t.Duration))
	}
	if t.Progress >= 1 {
		t.finish()
		return true, true
	}
	return false, true
}

// Cancel discards the pending target. The current source and the live
// look stay untouched.
func (t *Transition) Cancel() {
	t.Pending = t.Current
	t.Active = false
	t.Progress = 0
	t.elapsed = 0
}

func (t *Transition) finish() {
	t.Current = t.Pending
	t.Active = false
	t.Progress = 1
	t.elapsed = 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
