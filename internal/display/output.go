// Package display implements the display output sink: frames are
// corrected and presented onto an X11 window, one per output, with a
// pixmap back buffer. Window and surface operations run on a dedicated
// platform goroutine per output; callers await them with a bounded
// timeout.
package display

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/rs/zerolog"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/logger"
	"github.com/strandlight/beamcast/internal/platform"
	"github.com/strandlight/beamcast/internal/render"
	"github.com/strandlight/beamcast/internal/sink"
)

// dispatchTimeout bounds how long callers wait on the platform
// goroutine before declaring the surface lost.
const dispatchTimeout = 3 * time.Second

// Config describes one display output.
type Config struct {
	// DisplayID picks the target display; 0 means the primary one.
	DisplayID int
	// Fullscreen asks the window manager for a borderless fullscreen
	// window on the target display.
	Fullscreen bool
	// VSync paces presents to the display's refresh interval.
	VSync bool
	// Label is the window title; empty falls back to the output name.
	Label string
	// Width and Height size the window; 0 uses the display's native size.
	Width  int
	Height int
}

// DisplayOutput is the display sink. It composes the shared control
// state and owns its window, back buffer and render pipeline.
type DisplayOutput struct {
	*sink.State

	pipe *render.Pipeline

	// presentMu guards the present path. PushFrame only try-locks it: a
	// present still in flight means no surface this tick and the frame
	// is dropped, never queued.
	presentMu sync.Mutex

	mu            sync.Mutex
	cfg           Config
	running       bool
	surf          *surface
	target        DisplayInfo
	width         int
	height        int
	rate          frame.Rate
	ops           chan platformOp
	loopDone      chan struct{}
	vsyncInterval time.Duration

	// lastPresent is touched only on the platform goroutine.
	lastPresent time.Time

	presented atomic.Uint64
	drops     atomic.Uint64

	log *zerolog.Logger
}

type platformOp struct {
	fn   func() error
	done chan error
}

var (
	_ sink.Output    = (*DisplayOutput)(nil)
	_ sink.Resizable = (*DisplayOutput)(nil)
	_ sink.Renamable = (*DisplayOutput)(nil)
	_ sink.Metered   = (*DisplayOutput)(nil)
)

// NewDisplayOutput builds an unstarted display output.
func NewDisplayOutput(id int, cfg Config, onStatus sink.StatusFunc) *DisplayOutput {
	name := cfg.Label
	if name == "" {
		name = fmt.Sprintf("display-%d", id)
	}
	return &DisplayOutput{
		State: sink.NewState(id, name, onStatus),
		pipe:  render.NewPipeline(frame.NewTexturePool(cfg.Width, cfg.Height)),
		cfg:   cfg,
		log:   logger.WithOutput("display", id),
	}
}

// Kind returns the sink kind.
func (d *DisplayOutput) Kind() sink.Kind { return sink.KindDisplay }

// Capabilities reports resize and rename support; frames are presented
// directly, not encoded.
func (d *DisplayOutput) Capabilities() sink.Capabilities {
	return sink.Capabilities{Resize: true, Rename: true}
}

// Configure replaces the configuration. It fails once the output runs.
func (d *DisplayOutput) Configure(cfg Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return sink.ErrAlreadyRunning
	}
	if (cfg.Width != 0 || cfg.Height != 0) && !sink.ValidResolution(cfg.Width, cfg.Height) {
		return sink.ErrInvalidResolution
	}
	d.cfg = cfg
	if cfg.Label != "" {
		d.Rename(cfg.Label)
	}
	return nil
}

// Start resolves the target display, opens the window on a fresh
// platform goroutine and reads the native mode. Any failure leaves the
// output in StatusError. Idempotent.
func (d *DisplayOutput) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return nil
	}
	cfg := d.cfg
	d.mu.Unlock()

	d.SetStatus(sink.StatusStarting, "")

	displays, err := ListDisplays()
	if err != nil {
		d.SetStatus(sink.StatusError, err.Error())
		return err
	}
	target, err := pickDisplay(displays, cfg.DisplayID)
	if err != nil {
		d.SetStatus(sink.StatusError, err.Error())
		return err
	}

	w, h := cfg.Width, cfg.Height
	if w <= 0 || h <= 0 {
		w, h = target.Width, target.Height
	}
	label := cfg.Label
	if label == "" {
		label = d.Name()
	}

	ops := make(chan platformOp)
	loopDone := make(chan struct{})
	go platformLoop(ops, loopDone)

	// The goroutine that owns the connection must be the one to open it.
	var surf *surface
	err = dispatch(ops, func() error {
		var oerr error
		surf, oerr = openSurface(target, w, h, cfg.Fullscreen, label)
		return oerr
	}, dispatchTimeout)
	if err != nil {
		close(ops)
		<-loopDone
		d.SetStatus(sink.StatusError, err.Error())
		return err
	}

	refresh := target.RefreshHz
	if refresh <= 0 {
		refresh = 60
	}

	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		dispatch(ops, func() error { surf.destroy(); return nil }, dispatchTimeout)
		close(ops)
		<-loopDone
		return nil
	}
	d.surf = surf
	d.target = target
	d.width = w
	d.height = h
	d.rate = frame.Rate{N: int(math.Round(refresh * 1000)), D: 1000}
	d.ops = ops
	d.loopDone = loopDone
	d.vsyncInterval = 0
	if cfg.VSync {
		d.vsyncInterval = time.Duration(float64(time.Second) / refresh)
	}
	d.running = true
	d.mu.Unlock()

	d.SetStatus(sink.StatusRunning, "")
	d.log.Info().
		Str("display", target.Name).
		Int("width", w).
		Int("height", h).
		Float64("refresh_hz", refresh).
		Bool("fullscreen", cfg.Fullscreen).
		Bool("vsync", cfg.VSync).
		Msg("Display output started")
	return nil
}

// Stop hides the window, joins the platform goroutine and defers the
// final window destruction to the process-wide release queue, since
// destroying a surface while a present may be in flight faults on some
// window systems. Idempotent.
func (d *DisplayOutput) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	d.running = false
	d.mu.Unlock()

	// Wait out any in-flight present before tearing the loop down.
	d.presentMu.Lock()

	d.mu.Lock()
	ops := d.ops
	loopDone := d.loopDone
	surf := d.surf
	d.surf = nil
	d.ops = nil
	d.loopDone = nil
	d.mu.Unlock()

	if surf != nil {
		dispatch(ops, func() error { surf.hide(); return nil }, dispatchTimeout)
	}
	close(ops)
	<-loopDone
	d.presentMu.Unlock()

	if surf != nil {
		platform.Releases.Defer(fmt.Sprintf("display-%d-window", d.ID()), surf.destroy)
	}

	d.SetStatus(sink.StatusStopped, "")
	d.log.Info().
		Uint64("presented", d.presented.Load()).
		Uint64("dropped", d.drops.Load()).
		Msg("Display output stopped")
	return nil
}

// PushFrame corrects one frame and presents it. A present already in
// flight drops the frame for this tick; a failed present is dropped
// and never retried. Surface loss is terminal until a stop/restart.
func (d *DisplayOutput) PushFrame(f *frame.Frame) error {
	if !f.Usable() {
		return sink.ErrInvalidFrame
	}
	if d.Status() != sink.StatusRunning {
		return sink.ErrNotRunning
	}

	if !d.presentMu.TryLock() {
		d.drops.Add(1)
		return sink.ErrNoSurface
	}
	defer d.presentMu.Unlock()

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return sink.ErrNotRunning
	}
	w, h := d.width, d.height
	ops := d.ops
	surf := d.surf
	vsync := d.vsyncInterval
	d.mu.Unlock()

	back := d.pipe.Pool().Acquire(w, h)
	if back == nil {
		d.drops.Add(1)
		return sink.ErrNoSurface
	}
	defer d.pipe.Pool().Release(back)

	d.AdvanceTransition()
	snap := d.Snapshot()
	sink.RenderLook(d.pipe, back, f.Texture, snap)

	err := dispatch(ops, func() error {
		if vsync > 0 {
			if wait := vsync - time.Since(d.lastPresent); wait > 0 {
				time.Sleep(wait)
			}
		}
		perr := surf.present(back)
		d.lastPresent = time.Now()
		return perr
	}, dispatchTimeout)
	if err != nil {
		d.drops.Add(1)
		if isTransientPresentError(err) {
			d.log.Debug().Err(err).Msg("Present dropped")
			return err
		}
		d.SetStatus(sink.StatusError, err.Error())
		d.log.Error().Err(err).Msg("Display surface lost")
		return fmt.Errorf("%w: %v", sink.ErrDeviceLost, err)
	}

	d.presented.Add(1)
	return nil
}

// Width returns the window width.
func (d *DisplayOutput) Width() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.width
}

// Height returns the window height.
func (d *DisplayOutput) Height() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.height
}

// FrameRate returns the target display's refresh rate.
func (d *DisplayOutput) FrameRate() frame.Rate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// SetResolution resizes the window and recenters it on the target
// display. Out-of-range requests are rejected with no side effects;
// on a stopped output only the configuration is updated.
func (d *DisplayOutput) SetResolution(w, h int) error {
	if !sink.ValidResolution(w, h) {
		return sink.ErrInvalidResolution
	}

	d.presentMu.Lock()
	defer d.presentMu.Unlock()

	d.mu.Lock()
	if !d.running {
		d.cfg.Width, d.cfg.Height = w, h
		d.mu.Unlock()
		return nil
	}
	ops := d.ops
	surf := d.surf
	target := d.target
	d.mu.Unlock()

	x := target.X + (target.Width-w)/2
	y := target.Y + (target.Height-h)/2
	if err := dispatch(ops, func() error { return surf.resize(w, h, x, y) }, dispatchTimeout); err != nil {
		if !isTransientPresentError(err) {
			d.SetStatus(sink.StatusError, err.Error())
		}
		return err
	}

	d.mu.Lock()
	d.width, d.height = w, h
	d.cfg.Width, d.cfg.Height = w, h
	d.mu.Unlock()
	d.log.Info().Int("width", w).Int("height", h).Msg("Display resolution changed")
	return nil
}

// SetName renames the output and retitles a live window.
func (d *DisplayOutput) SetName(name string) error {
	d.Rename(name)

	d.presentMu.Lock()
	defer d.presentMu.Unlock()

	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	ops := d.ops
	surf := d.surf
	d.mu.Unlock()

	return dispatch(ops, func() error { return surf.setTitle(name) }, dispatchTimeout)
}

// Counters reports frames presented and frames dropped on the present
// path.
func (d *DisplayOutput) Counters() sink.Counters {
	return sink.Counters{Delivered: d.presented.Load(), Dropped: d.drops.Load()}
}

func platformLoop(ops <-chan platformOp, done chan<- struct{}) {
	defer close(done)
	for o := range ops {
		o.done <- o.fn()
	}
}

// dispatch runs fn on the platform goroutine and waits for it, bounded
// so a wedged display server cannot deadlock the caller.
func dispatch(ops chan<- platformOp, fn func() error, timeout time.Duration) error {
	o := platformOp{fn: fn, done: make(chan error, 1)}
	select {
	case ops <- o:
	case <-time.After(timeout):
		return fmt.Errorf("platform goroutine unresponsive: %w", sink.ErrDeviceLost)
	}
	select {
	case err := <-o.done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("surface operation timed out: %w", sink.ErrDeviceLost)
	}
}

// isTransientPresentError separates per-request X errors, which cost
// one frame, from connection-level failures, which are terminal for
// the surface.
func isTransientPresentError(err error) bool {
	if errors.Is(err, sink.ErrDeviceLost) {
		return false
	}
	var xerr xgb.Error
	return errors.As(err, &xerr)
}
