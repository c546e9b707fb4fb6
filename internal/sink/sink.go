package sink

import (
	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/render"
)

// Kind identifies what an output delivers frames to.
type Kind int

const (
	KindDisplay Kind = iota
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindDisplay:
		return "display"
	case KindStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Capabilities describes the optional operations an output supports.
// Callers check the flags instead of probing methods that would fail
// silently on the wrong sink type.
type Capabilities struct {
	// Resize reports whether SetResolution is honored.
	Resize bool `json:"resize"`
	// Rename reports whether SetName is honored.
	Rename bool `json:"rename"`
	// Encode reports whether frames are read back to host memory and
	// encoded rather than presented on a local surface.
	Encode bool `json:"encode"`
}

// Output is the contract every sink implements.
// Construction and configuration are sink-specific; everything after
// that is uniform so the engine can drive displays and network senders
// through one loop.
type Output interface {
	// ID returns the engine-assigned output number.
	ID() int

	// Name returns the human-readable output name.
	Name() string

	// Kind returns what this output delivers to.
	Kind() Kind

	// Capabilities reports which optional operations are supported.
	Capabilities() Capabilities

	// Start acquires the output's platform resources. Idempotent.
	Start() error

	// Stop releases resources and joins worker goroutines. Idempotent
	// and safe to call while a PushFrame is in flight.
	Stop() error

	// PushFrame delivers one frame for this tick. It fails fast when
	// the output is not running or the frame is unusable.
	PushFrame(f *frame.Frame) error

	// Status returns the current lifecycle state.
	Status() Status

	// Width and Height return the output resolution in pixels.
	Width() int
	Height() int

	// FrameRate returns the rate the output last delivered at.
	FrameRate() frame.Rate

	// SetCrop replaces the live crop region immediately.
	SetCrop(c render.CropRegion)

	// Crop returns the live crop region.
	Crop() render.CropRegion

	// SetCorrection replaces the live geometric correction immediately.
	SetCorrection(c render.Correction)

	// Correction returns the live geometric correction.
	Correction() render.Correction

	// SetIntensity sets the output dimmer, clamped into [0,1].
	SetIntensity(v float64)

	// Intensity returns the output dimmer.
	Intensity() float64

	// StartTransition begins a change to the target source with the
	// given pending look. Cut and non-positive durations apply at once.
	StartTransition(target int, kind TransitionKind, durationFrames int, crop render.CropRegion, corr render.Correction)

	// StartManualTransition begins a T-bar controlled change whose
	// progress moves only through SetTransitionProgress.
	StartManualTransition(target int, kind TransitionKind, crop render.CropRegion, corr render.Correction)

	// AdvanceTransition moves a timed transition forward one frame.
	AdvanceTransition()

	// SetTransitionProgress drives manual progress. It returns false
	// when no transition is active.
	SetTransitionProgress(p float64) bool

	// CancelTransition discards the pending target, keeping the live look.
	CancelTransition()

	// TransitionActive reports whether a transition is in flight.
	TransitionActive() bool

	// TransitionProgress returns the position of the active transition,
	// or where the last one ended.
	TransitionProgress() float64

	// Source returns the live source index.
	Source() int
}

// Resizable is implemented by outputs whose resolution can be changed
// after configuration.
type Resizable interface {
	SetResolution(width, height int) error
}

// Renamable is implemented by outputs with an advertised name that can
// change. Renames update bookkeeping immediately; how soon the new
// name becomes visible externally is up to the output.
type Renamable interface {
	SetName(name string) error
}

// Counters is a point-in-time delivery snapshot. Delivered counts
// frames that reached the destination, Dropped counts frames shed
// anywhere on the output path.
type Counters struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Metered is implemented by outputs that track delivery counters.
type Metered interface {
	Counters() Counters
}

// Resolution bounds accepted by Resizable outputs.
const (
	MinWidth  = 320
	MinHeight = 240
	MaxWidth  = 7680
	MaxHeight = 4320
)

// ValidResolution reports whether w by h falls inside the supported range.
func ValidResolution(w, h int) bool {
	return w >= MinWidth && w <= MaxWidth && h >= MinHeight && h <= MaxHeight
}
