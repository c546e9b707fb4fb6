package sink

import (
	"sync"

	"github.com/strandlight/beamcast/internal/render"
)

// State is the control-plane half every output composes: the live and
// pending crop/correction pair, the intensity dimmer, the transition
// machine, and status reporting. It holds no platform resources, so it
// is testable on its own. All methods are safe for concurrent use;
// render code takes a Snapshot once per frame instead of holding the
// lock across pixel work.
type State struct {
	mu sync.Mutex

	id   int
	name string

	crop        render.CropRegion
	corr        render.Correction
	pendingCrop render.CropRegion
	pendingCorr render.Correction
	intensity   float64

	tr Transition

	status   Status
	onStatus StatusFunc
}

// NewState returns a State with a full crop, default correction and
// intensity 1. onStatus may be nil.
func NewState(id int, name string, onStatus StatusFunc) *State {
	return &State{
		id:          id,
		name:        name,
		crop:        render.FullCrop(),
		corr:        render.DefaultCorrection(),
		pendingCrop: render.FullCrop(),
		pendingCorr: render.DefaultCorrection(),
		intensity:   1,
		onStatus:    onStatus,
	}
}

func (s *State) ID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *State) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Rename updates the stored name. Outputs that advertise the name on
// the wire pick the new one up on their next start.
func (s *State) Rename(name string) {
	s.mu.Lock()
	s.name = name
	s.mu.Unlock()
}

func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus records a lifecycle change and fires the status callback
// when the value actually changed. The callback runs outside the lock.
func (s *State) SetStatus(st Status, message string) {
	s.mu.Lock()
	changed := s.status != st
	s.status = st
	cb := s.onStatus
	id := s.id
	s.mu.Unlock()

	if changed && cb != nil {
		cb(id, st, message)
	}
}

// SetCrop replaces the live crop region. It takes effect on the next
// pushed frame; frames already presented are untouched.
func (s *State) SetCrop(c render.CropRegion) {
	s.mu.Lock()
	s.crop = c
	s.mu.Unlock()
}

func (s *State) Crop() render.CropRegion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crop
}

// SetCorrection replaces the live geometric correction.
func (s *State) SetCorrection(c render.Correction) {
	s.mu.Lock()
	s.corr = c
	s.mu.Unlock()
}

func (s *State) Correction() render.Correction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.corr
}

// SetIntensity sets the output dimmer, clamped into [0,1].
func (s *State) SetIntensity(v float64) {
	s.mu.Lock()
	s.intensity = clamp01(v)
	s.mu.Unlock()
}

func (s *State) Intensity() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intensity
}

// StartTransition stashes the pending look and arms the transition
// machine. A Cut or a non-positive duration applies the pending look
// and source index immediately, leaving nothing in flight.
func (s *State) StartTransition(target int, kind TransitionKind, durationFrames int, crop render.CropRegion, corr render.Correction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCrop = crop
	s.pendingCorr = corr
	if s.tr.Begin(target, kind, durationFrames) {
		s.applyPendingLocked()
	}
}

// StartManualTransition arms a T-bar controlled transition toward
// target. Progress moves only through SetTransitionProgress.
func (s *State) StartManualTransition(target int, kind TransitionKind, crop render.CropRegion, corr render.Correction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCrop = crop
	s.pendingCorr = corr
	s.tr.BeginManual(target, kind)
}

// AdvanceTransition moves a timed transition one frame forward,
// applying the pending look exactly once when it completes.
func (s *State) AdvanceTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr.Advance() {
		s.applyPendingLocked()
	}
}

// SetTransitionProgress drives manual progress, clamped into [0,1].
// Reaching 1 completes the transition. It returns false when no
// transition is active.
func (s *State) SetTransitionProgress(p float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	completed, active := s.tr.SetProgress(p)
	if completed {
		s.applyPendingLocked()
	}
	return active
}

// CancelTransition discards the pending target and look. The live look
// stays as it is.
func (s *State) CancelTransition() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr.Cancel()
	s.pendingCrop = s.crop
	s.pendingCorr = s.corr
}

// TransitionActive reports whether a transition is mid-flight.
func (s *State) TransitionActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Active
}

// TransitionProgress returns the current transition position.
func (s *State) TransitionProgress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Progress
}

// Source returns the live source index.
func (s *State) Source() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Current
}

func (s *State) applyPendingLocked() {
	s.crop = s.pendingCrop
	s.corr = s.pendingCorr
}

// Snapshot is one frame's consistent view of the control state. When
// Blending is set the sink renders both looks and mixes them with the
// kind's blend primitive at Progress; otherwise only Current is drawn.
type Snapshot struct {
	Current       render.Params
	Pending       render.Params
	Kind          TransitionKind
	Progress      float64
	Blending      bool
	Source        int
	PendingSource int
}

// Snapshot captures the state under one lock acquisition.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sn := Snapshot{
		Current: render.Params{
			Crop:       s.crop,
			Correction: s.corr,
			Intensity:  s.intensity,
		},
		Kind:          s.tr.Kind,
		Progress:      s.tr.Progress,
		Source:        s.tr.Current,
		PendingSource: s.tr.Pending,
	}
	if s.tr.Active && s.tr.Kind != Cut {
		sn.Blending = true
		sn.Pending = render.Params{
			Crop:       s.pendingCrop,
			Correction: s.pendingCorr,
			Intensity:  s.intensity,
		}
	}
	return sn
}
