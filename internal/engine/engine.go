// Package engine owns the per-tick fan-out: frames arrive through a
// ring buffer, the newest one each tick is delivered to every running
// output, and everything older is shed. Outputs never see each other;
// the engine is the only place that iterates them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/logger"
	"github.com/strandlight/beamcast/internal/sink"
)

var (
	ErrOutputExists   = errors.New("output id already registered")
	ErrOutputNotFound = errors.New("output not found")
	ErrInvalidRate    = errors.New("target frame rate out of range")
	ErrInvalidPixels  = errors.New("pixel buffer does not match its shape")
)

// Frame rate bounds for the tick throttle.
const (
	MinTargetFPS = 1
	MaxTargetFPS = 240
)

// StatusEvent is one output lifecycle transition, as fanned out to
// event subscribers.
type StatusEvent struct {
	OutputID  int    `json:"output_id"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Engine drives frames from the ring buffer to the registered outputs.
type Engine struct {
	log *zerolog.Logger

	mu      sync.RWMutex
	outputs map[int]sink.Output

	ring *frame.RingBuffer
	pool *frame.TexturePool

	tickMu   sync.Mutex
	fps      float64
	interval time.Duration

	// lastMu guards the retained newest frame; its texture goes back to
	// the pool only when the next frame replaces it.
	lastMu sync.Mutex
	last   *frame.Frame

	subMu    sync.Mutex
	subs     map[chan StatusEvent]struct{}
	statuses map[int]StatusEvent

	pushSeq   atomic.Uint64
	ticks     atomic.Uint64
	delivered atomic.Uint64
	stale     atomic.Uint64
	invalid   atomic.Uint64
}

// New creates an engine with a ring of the given capacity and a shared
// texture pool shaped for source frames of width by height. The tick
// throttle defaults to 60 frames per second.
func New(ringCapacity, width, height int) *Engine {
	return &Engine{
		log:      logger.WithComponent("engine"),
		outputs:  make(map[int]sink.Output),
		ring:     frame.NewRingBuffer(ringCapacity),
		pool:     frame.NewTexturePool(width, height),
		fps:      60,
		interval: time.Second / 60,
		subs:     make(map[chan StatusEvent]struct{}),
		statuses: make(map[int]StatusEvent),
	}
}

// Pool returns the shared source-shaped texture pool. Frame producers
// acquire from it; the engine releases textures back once a frame has
// been superseded.
func (e *Engine) Pool() *frame.TexturePool { return e.pool }

// AddOutput registers an output under its own ID.
func (e *Engine) AddOutput(o sink.Output) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.outputs[o.ID()]; ok {
		return fmt.Errorf("%w: %d", ErrOutputExists, o.ID())
	}
	e.outputs[o.ID()] = o
	e.log.Info().Int("output_id", o.ID()).Str("name", o.Name()).Str("kind", o.Kind().String()).Msg("Output registered")
	return nil
}

// RemoveOutput stops and unregisters an output.
func (e *Engine) RemoveOutput(id int) error {
	e.mu.Lock()
	o, ok := e.outputs[id]
	delete(e.outputs, id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrOutputNotFound, id)
	}
	if err := o.Stop(); err != nil {
		e.log.Warn().Err(err).Int("output_id", id).Msg("Output stop failed during removal")
	}
	e.log.Info().Int("output_id", id).Msg("Output removed")
	return nil
}

// Output looks up one registered output.
func (e *Engine) Output(id int) (sink.Output, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	o, ok := e.outputs[id]
	return o, ok
}

// Outputs returns the registered outputs ordered by ID.
func (e *Engine) Outputs() []sink.Output {
	e.mu.RLock()
	outs := make([]sink.Output, 0, len(e.outputs))
	for _, o := range e.outputs {
		outs = append(outs, o)
	}
	e.mu.RUnlock()
	sort.Slice(outs, func(i, j int) bool { return outs[i].ID() < outs[j].ID() })
	return outs
}

// StartAll starts every registered output. Failures are logged and
// counted but do not stop the others.
func (e *Engine) StartAll() error {
	var failed int
	for _, o := range e.Outputs() {
		if err := o.Start(); err != nil {
			failed++
			e.log.Error().Err(err).Int("output_id", o.ID()).Msg("Output failed to start")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d output(s) failed to start", failed)
	}
	return nil
}

// StopAll stops every registered output.
func (e *Engine) StopAll() {
	for _, o := range e.Outputs() {
		if err := o.Stop(); err != nil {
			e.log.Warn().Err(err).Int("output_id", o.ID()).Msg("Output stop failed")
		}
	}
}

// Push enqueues one frame for the next tick. Unusable frames are
// counted and dropped here so sinks never see them.
func (e *Engine) Push(f *frame.Frame) {
	if !f.Usable() {
		e.invalid.Add(1)
		e.log.Debug().Msg("Invalid frame dropped at the ring")
		return
	}
	e.ring.Push(f)
}

// PushPixels wraps a raw RGBA buffer in a pooled texture and enqueues
// it. stride is in bytes and may exceed width*4.
func (e *Engine) PushPixels(pix []byte, width, height, stride int) error {
	if width <= 0 || height <= 0 || stride < width*4 || len(pix) < stride*height {
		return fmt.Errorf("%w: %dx%d stride %d with %d bytes", ErrInvalidPixels, width, height, stride, len(pix))
	}

	tex := e.pool.Acquire(width, height)
	for y := 0; y < height; y++ {
		copy(tex.Pix()[y*tex.Stride():y*tex.Stride()+width*4], pix[y*stride:y*stride+width*4])
	}

	e.tickMu.Lock()
	fps := e.fps
	e.tickMu.Unlock()

	e.ring.Push(&frame.Frame{
		Texture:   tex,
		Timestamp: time.Now().UnixNano(),
		Sequence:  e.pushSeq.Add(1),
		Rate:      frame.SnapRate(fps),
		Valid:     true,
		Interlace: frame.Progressive,
	})
	return nil
}

// SetTargetFrameRate changes the tick throttle. Takes effect on the
// next tick.
func (e *Engine) SetTargetFrameRate(fps float64) error {
	if fps < MinTargetFPS || fps > MaxTargetFPS {
		return fmt.Errorf("%w: %.2f", ErrInvalidRate, fps)
	}
	e.tickMu.Lock()
	e.fps = fps
	e.interval = time.Duration(float64(time.Second) / fps)
	e.tickMu.Unlock()
	e.log.Info().Float64("target_fps", fps).Msg("Target frame rate changed")
	return nil
}

// TargetFrameRate returns the current tick throttle.
func (e *Engine) TargetFrameRate() float64 {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.fps
}

func (e *Engine) tickInterval() time.Duration {
	e.tickMu.Lock()
	defer e.tickMu.Unlock()
	return e.interval
}

// Run ticks at the target frame rate until ctx is done. Each tick
// drains the ring to its newest frame and delivers that one frame to
// every running output.
func (e *Engine) Run(ctx context.Context) error {
	interval := e.tickInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.log.Info().Float64("target_fps", e.TargetFrameRate()).Msg("Engine loop started")
	for {
		select {
		case <-ctx.Done():
			e.log.Info().
				Uint64("ticks", e.ticks.Load()).
				Uint64("delivered", e.delivered.Load()).
				Uint64("stale", e.stale.Load()).
				Msg("Engine loop stopped")
			return nil
		case <-ticker.C:
		}
		e.tick()
		if cur := e.tickInterval(); cur != interval {
			interval = cur
			ticker.Reset(interval)
		}
	}
}

func (e *Engine) tick() {
	e.ticks.Add(1)
	f, ok := e.ring.Pop()
	if !ok {
		return
	}
	for {
		next, more := e.ring.Pop()
		if !more {
			break
		}
		e.recycle(f)
		e.stale.Add(1)
		f = next
	}
	e.deliver(f)
}

// deliver fans one frame out and retains it until the next one, so its
// texture is never recycled while a sink could still be reading it.
func (e *Engine) deliver(f *frame.Frame) {
	for _, o := range e.Outputs() {
		if o.Status() != sink.StatusRunning {
			continue
		}
		if err := o.PushFrame(f); err != nil {
			e.log.Debug().Err(err).
				Int("output_id", o.ID()).
				Uint64("sequence", f.Sequence).
				Msg("Frame not delivered")
		}
	}
	e.delivered.Add(1)

	e.lastMu.Lock()
	prev := e.last
	e.last = f
	e.lastMu.Unlock()
	e.recycle(prev)
}

func (e *Engine) recycle(f *frame.Frame) {
	if f != nil && f.Texture != nil {
		e.pool.Release(f.Texture)
	}
}

// OnStatus records an output status transition and fans it out to
// subscribers. Pass it as the StatusFunc when constructing outputs.
// Events from registered metered outputs carry their counters.
func (e *Engine) OnStatus(outputID int, status sink.Status, message string) {
	ev := StatusEvent{
		OutputID:  outputID,
		Status:    status.String(),
		Message:   message,
		Timestamp: time.Now().UnixNano(),
	}
	if o, ok := e.Output(outputID); ok {
		if m, ok := o.(sink.Metered); ok {
			c := m.Counters()
			ev.Delivered = c.Delivered
			ev.Dropped = c.Dropped
		}
	}
	e.subMu.Lock()
	e.statuses[outputID] = ev
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	e.subMu.Unlock()

	e.log.Info().
		Int("output_id", outputID).
		Str("status", ev.Status).
		Str("message", message).
		Msg("Output status changed")
}

// Subscribe returns a channel of status events and a cancel func.
// Slow subscribers lose events rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan StatusEvent, func()) {
	ch := make(chan StatusEvent, 16)
	e.subMu.Lock()
	e.subs[ch] = struct{}{}
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		if _, ok := e.subs[ch]; ok {
			delete(e.subs, ch)
			close(ch)
		}
		e.subMu.Unlock()
	}
	return ch, cancel
}

// Statuses returns the last recorded status event per output.
func (e *Engine) Statuses() map[int]StatusEvent {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	out := make(map[int]StatusEvent, len(e.statuses))
	for id, ev := range e.statuses {
		out[id] = ev
	}
	return out
}

// OutputStats is the per-output slice of an engine stats snapshot.
type OutputStats struct {
	ID        int     `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Status    string  `json:"status"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	FrameRate float64 `json:"frame_rate"`
	Delivered uint64  `json:"delivered"`
	Dropped   uint64  `json:"dropped"`
}

// Stats is a point-in-time snapshot of the engine and its outputs.
type Stats struct {
	Ticks          uint64        `json:"ticks"`
	Delivered      uint64        `json:"delivered"`
	Stale          uint64        `json:"stale"`
	Invalid        uint64        `json:"invalid"`
	RingLen        int           `json:"ring_len"`
	RingDropped    uint64        `json:"ring_dropped"`
	LatestSequence uint64        `json:"latest_sequence"`
	TargetFPS      float64       `json:"target_fps"`
	Outputs        []OutputStats `json:"outputs"`
}

// Stats gathers the current counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Ticks:       e.ticks.Load(),
		Delivered:   e.delivered.Load(),
		Stale:       e.stale.Load(),
		Invalid:     e.invalid.Load(),
		RingLen:     e.ring.Len(),
		RingDropped: e.ring.Dropped(),
		TargetFPS:   e.TargetFrameRate(),
	}

	e.lastMu.Lock()
	if e.last != nil {
		s.LatestSequence = e.last.Sequence
	}
	e.lastMu.Unlock()
	if f, ok := e.ring.PeekLatest(); ok && f.Sequence > s.LatestSequence {
		s.LatestSequence = f.Sequence
	}

	for _, o := range e.Outputs() {
		s.Outputs = append(s.Outputs, StatsFor(o))
	}
	return s
}

// StatsFor builds the stats row for one output.
func StatsFor(o sink.Output) OutputStats {
	st := OutputStats{
		ID:        o.ID(),
		Name:      o.Name(),
		Kind:      o.Kind().String(),
		Status:    o.Status().String(),
		Width:     o.Width(),
		Height:    o.Height(),
		FrameRate: o.FrameRate().Float(),
	}
	if m, ok := o.(sink.Metered); ok {
		c := m.Counters()
		st.Delivered = c.Delivered
		st.Dropped = c.Dropped
	}
	return st
}
