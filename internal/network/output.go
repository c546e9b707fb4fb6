// Package network implements the stream output sink. Each pushed
// frame is corrected and read back to host memory on the caller's
// tick, then handed to a bounded queue; one background goroutine per
// output encodes and transmits. Backpressure sheds the oldest queued
// frame, it never blocks the caller.
package network

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/logger"
	"github.com/strandlight/beamcast/internal/render"
	"github.com/strandlight/beamcast/internal/sink"
	"github.com/strandlight/beamcast/internal/vnet"
)

const (
	// DefaultQueueDepth bounds the send queue when the config leaves it unset.
	DefaultQueueDepth = 5

	jpegQuality = 90
)

// Config describes one stream output.
type Config struct {
	// SourceName is the stream name advertised to receivers.
	SourceName string
	// ListenAddr is the host:port the sender binds; empty picks an
	// ephemeral port on all interfaces.
	ListenAddr string
	// NetworkInterface optionally pins the sender to one interface.
	NetworkInterface string
	// Groups carries receiver-side group tags.
	Groups string
	// ClockVideo paces transmission to the frame interval.
	ClockVideo bool
	// QueueDepth bounds the async send queue; 0 means DefaultQueueDepth.
	QueueDepth int
	// LegacyMode transmits synchronously on the caller's goroutine with
	// pacing disabled, for receivers that mishandle paced senders.
	LegacyMode bool
	// Width and Height fix the transmitted size; 0 follows the source.
	Width  int
	Height int
}

type queued struct {
	tex      *frame.Texture
	interval time.Duration
}

// StreamOutput is the network sink. It composes the shared control
// state and owns its render pipeline, readback buffers, send queue and
// protocol sender.
type StreamOutput struct {
	*sink.State

	cfg      Config
	pipe     *render.Pipeline
	readback *frame.TexturePool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []queued
	running  bool
	stopping bool
	outW     int
	outH     int
	lastW    int
	lastH    int
	rate     frame.Rate
	sender   *vnet.Sender

	senderDone chan struct{}

	sent    atomic.Uint64
	dropped atomic.Uint64

	log *zerolog.Logger
}

var (
	_ sink.Output    = (*StreamOutput)(nil)
	_ sink.Resizable = (*StreamOutput)(nil)
	_ sink.Renamable = (*StreamOutput)(nil)
	_ sink.Metered   = (*StreamOutput)(nil)
)

// NewStreamOutput builds an unstarted stream output.
func NewStreamOutput(id int, cfg Config, onStatus sink.StatusFunc) *StreamOutput {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	s := &StreamOutput{
		State:    sink.NewState(id, cfg.SourceName, onStatus),
		cfg:      cfg,
		pipe:     render.NewPipeline(frame.NewTexturePool(cfg.Width, cfg.Height)),
		readback: frame.NewTexturePool(cfg.Width, cfg.Height),
		outW:     cfg.Width,
		outH:     cfg.Height,
		log:      logger.WithOutput("network", id),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Kind returns the sink kind.
func (s *StreamOutput) Kind() sink.Kind { return sink.KindStream }

// Capabilities reports resize, rename and encoded delivery.
func (s *StreamOutput) Capabilities() sink.Capabilities {
	return sink.Capabilities{Resize: true, Rename: true, Encode: true}
}

// Configure replaces the configuration. It fails once the output runs.
func (s *StreamOutput) Configure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return sink.ErrAlreadyRunning
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if (cfg.Width != 0 || cfg.Height != 0) && !sink.ValidResolution(cfg.Width, cfg.Height) {
		return sink.ErrInvalidResolution
	}
	s.cfg = cfg
	s.outW, s.outH = cfg.Width, cfg.Height
	s.Rename(cfg.SourceName)
	return nil
}

// Start creates the protocol sender and, outside legacy mode, the
// background transmit goroutine. Idempotent; a sender-creation failure
// is terminal for this attempt.
func (s *StreamOutput) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	s.SetStatus(sink.StatusStarting, "")

	reg, err := vnet.Open()
	if err != nil {
		s.SetStatus(sink.StatusError, err.Error())
		return err
	}
	sender, err := reg.NewSender(vnet.SenderConfig{
		Name:             s.Name(),
		ListenAddr:       cfg.ListenAddr,
		NetworkInterface: cfg.NetworkInterface,
		Groups:           cfg.Groups,
		ClockVideo:       cfg.ClockVideo && !cfg.LegacyMode,
	})
	if err != nil {
		s.SetStatus(sink.StatusError, err.Error())
		return fmt.Errorf("%w: %v", sink.ErrSenderFailed, err)
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		sender.Close()
		return nil
	}
	s.sender = sender
	s.running = true
	s.stopping = false
	s.senderDone = nil
	if !cfg.LegacyMode {
		s.senderDone = make(chan struct{})
		go s.sendLoop(s.senderDone)
	}
	s.mu.Unlock()

	s.SetStatus(sink.StatusRunning, "")
	s.log.Info().
		Str("addr", sender.Addr()).
		Bool("legacy", cfg.LegacyMode).
		Int("queue_depth", cfg.QueueDepth).
		Msg("Stream output started")
	return nil
}

// Stop joins the transmit goroutine, discards queued frames and then
// releases the protocol sender. Idempotent and safe against a
// concurrent PushFrame.
func (s *StreamOutput) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	done := s.senderDone
	s.cond.Broadcast()
	s.mu.Unlock()

	if done != nil {
		<-done
	}

	s.mu.Lock()
	for _, q := range s.queue {
		s.readback.Release(q.tex)
	}
	s.queue = nil
	sender := s.sender
	s.sender = nil
	s.senderDone = nil
	s.running = false
	s.stopping = false
	s.mu.Unlock()

	if sender != nil {
		sender.Close()
	}
	s.SetStatus(sink.StatusStopped, "")
	s.log.Info().
		Uint64("sent", s.sent.Load()).
		Uint64("dropped", s.dropped.Load()).
		Msg("Stream output stopped")
	return nil
}

// PushFrame corrects one frame and hands it to the send queue. The
// render and the host readback run on the caller's goroutine; the
// transmit goroutine never touches the source texture. A full queue
// sheds its oldest entry.
func (s *StreamOutput) PushFrame(f *frame.Frame) error {
	if !f.Usable() {
		return sink.ErrInvalidFrame
	}
	s.mu.Lock()
	if !s.running || s.stopping {
		s.mu.Unlock()
		return sink.ErrNotRunning
	}
	outW, outH := s.outW, s.outH
	legacy := s.cfg.LegacyMode
	depth := s.cfg.QueueDepth
	s.mu.Unlock()

	if outW <= 0 || outH <= 0 {
		outW, outH = f.Width(), f.Height()
	}
	rate := frame.SnapRate(f.Rate.Float())

	s.AdvanceTransition()
	snap := s.Snapshot()

	buf := s.readback.Acquire(outW, outH)
	if buf == nil {
		return sink.ErrInvalidFrame
	}

	work := s.pipe.Pool().Acquire(outW, outH)
	if work == nil {
		// No render target this tick; ship the frame uncorrected.
		directCopy(buf, f.Texture)
	} else {
		sink.RenderLook(s.pipe, work, f.Texture, snap)
		if err := buf.CopyFrom(work); err != nil {
			directCopy(buf, f.Texture)
		}
		s.pipe.Pool().Release(work)
	}

	s.mu.Lock()
	s.lastW, s.lastH = outW, outH
	s.rate = rate
	if !s.running || s.stopping {
		s.mu.Unlock()
		s.readback.Release(buf)
		return sink.ErrNotRunning
	}
	if legacy {
		sender := s.sender
		s.mu.Unlock()
		err := s.transmit(sender, buf, 0)
		s.readback.Release(buf)
		return err
	}
	if len(s.queue) >= depth {
		oldest := s.queue[0]
		s.queue = s.queue[1:]
		s.readback.Release(oldest.tex)
		s.dropped.Add(1)
	}
	s.queue = append(s.queue, queued{tex: buf, interval: rate.Interval()})
	s.cond.Signal()
	s.mu.Unlock()
	return nil
}

func (s *StreamOutput) sendLoop(done chan struct{}) {
	defer close(done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopping {
			s.cond.Wait()
		}
		if s.stopping {
			s.mu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		sender := s.sender
		s.mu.Unlock()

		s.transmit(sender, item.tex, item.interval)
		s.readback.Release(item.tex)
	}
}

func (s *StreamOutput) transmit(sender *vnet.Sender, tex *frame.Texture, interval time.Duration) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, tex, &jpeg.Options{Quality: jpegQuality}); err != nil {
		s.log.Error().Err(err).Msg("Frame encode failed")
		return err
	}
	if err := sender.Send(buf.Bytes(), interval); err != nil {
		return err
	}
	s.sent.Add(1)
	return nil
}

// Width returns the transmitted width: the configured one, or the last
// source width when the output follows the source.
func (s *StreamOutput) Width() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outW > 0 {
		return s.outW
	}
	return s.lastW
}

// Height is the transmitted height, mirroring Width.
func (s *StreamOutput) Height() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outH > 0 {
		return s.outH
	}
	return s.lastH
}

// FrameRate returns the snapped rate of the last delivered frame.
func (s *StreamOutput) FrameRate() frame.Rate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

// SetResolution changes the transmitted size independently of the
// source. Out-of-range requests are rejected with no side effects.
func (s *StreamOutput) SetResolution(w, h int) error {
	if !sink.ValidResolution(w, h) {
		return sink.ErrInvalidResolution
	}
	s.mu.Lock()
	s.outW, s.outH = w, h
	s.mu.Unlock()
	s.log.Info().Int("width", w).Int("height", h).Msg("Stream resolution changed")
	return nil
}

// SetName renames the stream. Bookkeeping only; the advertised name
// changes on the next start.
func (s *StreamOutput) SetName(name string) error {
	s.Rename(name)
	return nil
}

// Stats are the cumulative delivery counters.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Queued  int    `json:"queued"`
	Clients int    `json:"clients"`
}

// Stats returns the current counters.
func (s *StreamOutput) Stats() Stats {
	s.mu.Lock()
	q := len(s.queue)
	sender := s.sender
	s.mu.Unlock()

	st := Stats{
		Sent:    s.sent.Load(),
		Dropped: s.dropped.Load(),
		Queued:  q,
	}
	if sender != nil {
		st.Clients = sender.Connections()
	}
	return st
}

// Sent returns how many frames reached the sender.
func (s *StreamOutput) Sent() uint64 { return s.sent.Load() }

// Dropped returns how many frames the queue shed.
func (s *StreamOutput) Dropped() uint64 { return s.dropped.Load() }

// Counters reports frames sent and frames shed by the queue.
func (s *StreamOutput) Counters() sink.Counters {
	return sink.Counters{Delivered: s.sent.Load(), Dropped: s.dropped.Load()}
}

// directCopy ships the source uncorrected, scaling when shapes differ.
func directCopy(dst, src *frame.Texture) {
	if dst.Width() == src.Width() && dst.Height() == src.Height() {
		dst.CopyFrom(src)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}
