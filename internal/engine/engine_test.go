package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/sink"
)

type stubOutput struct {
	*sink.State
	w, h     int
	rate     frame.Rate
	startErr error
	pushErr  error

	mu  sync.Mutex
	got []uint64
}

func newStub(id int, onStatus sink.StatusFunc) *stubOutput {
	return &stubOutput{
		State: sink.NewState(id, fmt.Sprintf("stub-%d", id), onStatus),
		w:     64,
		h:     48,
	}
}

func (s *stubOutput) Kind() sink.Kind                 { return sink.KindDisplay }
func (s *stubOutput) Capabilities() sink.Capabilities { return sink.Capabilities{} }

func (s *stubOutput) Start() error {
	if s.startErr != nil {
		s.SetStatus(sink.StatusError, s.startErr.Error())
		return s.startErr
	}
	s.SetStatus(sink.StatusRunning, "")
	return nil
}

func (s *stubOutput) Stop() error {
	s.SetStatus(sink.StatusStopped, "")
	return nil
}

func (s *stubOutput) PushFrame(f *frame.Frame) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.mu.Lock()
	s.got = append(s.got, f.Sequence)
	s.mu.Unlock()
	return nil
}

func (s *stubOutput) sequences() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.got...)
}

func (s *stubOutput) Width() int            { return s.w }
func (s *stubOutput) Height() int           { return s.h }
func (s *stubOutput) FrameRate() frame.Rate { return s.rate }

func (s *stubOutput) Counters() sink.Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sink.Counters{Delivered: uint64(len(s.got))}
}

func testFrame(seq uint64) *frame.Frame {
	return &frame.Frame{
		Texture:   frame.NewTexture(64, 48),
		Timestamp: int64(seq),
		Sequence:  seq,
		Valid:     true,
	}
}

func TestAddRemoveOutput(t *testing.T) {
	e := New(5, 64, 48)

	for _, id := range []int{3, 1, 2} {
		if err := e.AddOutput(newStub(id, nil)); err != nil {
			t.Fatalf("AddOutput(%d): %v", id, err)
		}
	}
	if err := e.AddOutput(newStub(1, nil)); !errors.Is(err, ErrOutputExists) {
		t.Errorf("duplicate AddOutput error = %v, want ErrOutputExists", err)
	}

	outs := e.Outputs()
	if len(outs) != 3 {
		t.Fatalf("Outputs() len = %d, want 3", len(outs))
	}
	for i, want := range []int{1, 2, 3} {
		if outs[i].ID() != want {
			t.Errorf("Outputs()[%d].ID() = %d, want %d", i, outs[i].ID(), want)
		}
	}

	if _, ok := e.Output(2); !ok {
		t.Error("Output(2) not found")
	}
	if err := e.RemoveOutput(2); err != nil {
		t.Fatalf("RemoveOutput(2): %v", err)
	}
	if _, ok := e.Output(2); ok {
		t.Error("Output(2) still registered after removal")
	}
	if err := e.RemoveOutput(2); !errors.Is(err, ErrOutputNotFound) {
		t.Errorf("second RemoveOutput error = %v, want ErrOutputNotFound", err)
	}
}

func TestTickDeliversNewestOnly(t *testing.T) {
	e := New(5, 64, 48)
	s := newStub(1, nil)
	if err := e.AddOutput(s); err != nil {
		t.Fatal(err)
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}

	for seq := uint64(1); seq <= 3; seq++ {
		e.Push(testFrame(seq))
	}
	e.tick()

	got := s.sequences()
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("delivered sequences = %v, want [3]", got)
	}

	st := e.Stats()
	if st.Stale != 2 {
		t.Errorf("stale = %d, want 2", st.Stale)
	}
	if st.Delivered != 1 {
		t.Errorf("delivered = %d, want 1", st.Delivered)
	}
	if st.LatestSequence != 3 {
		t.Errorf("latest sequence = %d, want 3", st.LatestSequence)
	}
}

func TestTickSkipsOutputsNotRunning(t *testing.T) {
	e := New(5, 64, 48)
	running := newStub(1, nil)
	stopped := newStub(2, nil)
	failed := newStub(3, nil)
	for _, o := range []*stubOutput{running, stopped, failed} {
		if err := e.AddOutput(o); err != nil {
			t.Fatal(err)
		}
	}
	running.Start()
	failed.SetStatus(sink.StatusError, "lost")

	e.Push(testFrame(1))
	e.tick()

	if got := running.sequences(); len(got) != 1 {
		t.Errorf("running output got %v, want one frame", got)
	}
	if got := stopped.sequences(); len(got) != 0 {
		t.Errorf("stopped output got %v, want none", got)
	}
	if got := failed.sequences(); len(got) != 0 {
		t.Errorf("failed output got %v, want none", got)
	}
}

func TestPushDropsInvalidFrames(t *testing.T) {
	e := New(5, 64, 48)

	e.Push(nil)
	e.Push(&frame.Frame{Valid: false, Texture: frame.NewTexture(8, 8)})
	e.Push(&frame.Frame{Valid: true})

	st := e.Stats()
	if st.Invalid != 3 {
		t.Errorf("invalid = %d, want 3", st.Invalid)
	}
	if st.RingLen != 0 {
		t.Errorf("ring length = %d, want 0", st.RingLen)
	}
}

func TestPushPixels(t *testing.T) {
	const w, h, stride = 10, 4, 48 // stride wider than w*4

	e := New(5, w, h)
	s := newStub(1, nil)
	e.AddOutput(s)
	s.Start()

	pix := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*stride + x*4
			pix[i] = byte(x * 10)
			pix[i+1] = byte(y * 10)
			pix[i+2] = 7
			pix[i+3] = 255
		}
	}

	if err := e.PushPixels(pix, w, h, stride); err != nil {
		t.Fatalf("PushPixels: %v", err)
	}
	e.tick()

	if got := s.sequences(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("sequences = %v, want [1]", got)
	}

	e.lastMu.Lock()
	tex := e.last.Texture
	e.lastMu.Unlock()
	c := tex.RGBAAt(3, 2)
	if c.R != 30 || c.G != 20 || c.B != 7 || c.A != 255 {
		t.Errorf("pixel (3,2) = %v, want {30 20 7 255}", c)
	}

	if err := e.PushPixels(pix[:10], w, h, stride); !errors.Is(err, ErrInvalidPixels) {
		t.Errorf("short buffer error = %v, want ErrInvalidPixels", err)
	}
	if err := e.PushPixels(pix, w, h, w*4-1); !errors.Is(err, ErrInvalidPixels) {
		t.Errorf("narrow stride error = %v, want ErrInvalidPixels", err)
	}
}

func TestSetTargetFrameRate(t *testing.T) {
	e := New(5, 64, 48)

	if err := e.SetTargetFrameRate(0); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("SetTargetFrameRate(0) error = %v, want ErrInvalidRate", err)
	}
	if err := e.SetTargetFrameRate(500); !errors.Is(err, ErrInvalidRate) {
		t.Errorf("SetTargetFrameRate(500) error = %v, want ErrInvalidRate", err)
	}
	if got := e.TargetFrameRate(); got != 60 {
		t.Errorf("rate after rejected sets = %v, want 60", got)
	}

	if err := e.SetTargetFrameRate(30); err != nil {
		t.Fatalf("SetTargetFrameRate(30): %v", err)
	}
	if got := e.TargetFrameRate(); got != 30 {
		t.Errorf("rate = %v, want 30", got)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	e := New(5, 64, 48)
	e.SetTargetFrameRate(200)
	s := newStub(1, nil)
	e.AddOutput(s)
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	e.Push(testFrame(1))
	deadline := time.After(5 * time.Second)
	for len(s.sequences()) == 0 {
		select {
		case <-deadline:
			t.Fatal("frame never delivered by the run loop")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	if e.Stats().Ticks == 0 {
		t.Error("run loop never ticked")
	}
}

func TestStatusEventsFanOut(t *testing.T) {
	e := New(5, 64, 48)
	s := newStub(4, e.OnStatus)

	ch, cancel := e.Subscribe()
	s.Start()

	select {
	case ev := <-ch:
		if ev.OutputID != 4 || ev.Status != "running" {
			t.Errorf("event = %+v, want output 4 running", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no status event received")
	}

	if got := e.Statuses()[4]; got.Status != "running" {
		t.Errorf("recorded status = %+v, want running", got)
	}

	// A full subscriber buffer must not block the publisher.
	for i := 0; i < 40; i++ {
		e.OnStatus(4, sink.StatusRunning, fmt.Sprintf("tick %d", i))
	}

	cancel()
	for range ch {
	}

	// Publishing after cancel must not panic or block.
	e.OnStatus(4, sink.StatusStopped, "")
}

func TestStatusEventsCarryCounters(t *testing.T) {
	e := New(5, 64, 48)
	s := newStub(1, e.OnStatus)
	e.AddOutput(s)
	s.Start()

	e.Push(testFrame(1))
	e.tick()

	ch, cancel := e.Subscribe()
	defer cancel()
	s.Stop()

	select {
	case ev := <-ch:
		if ev.Status != "stopped" || ev.Delivered != 1 {
			t.Errorf("stop event = %+v, want stopped with one delivered", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no stop event received")
	}
}

func TestStartStopAll(t *testing.T) {
	e := New(5, 64, 48)
	good := newStub(1, nil)
	bad := newStub(2, nil)
	bad.startErr = errors.New("no device")
	e.AddOutput(good)
	e.AddOutput(bad)

	if err := e.StartAll(); err == nil {
		t.Error("StartAll should report the failed output")
	}
	if good.Status() != sink.StatusRunning {
		t.Errorf("good output status = %v, want running", good.Status())
	}
	if bad.Status() != sink.StatusError {
		t.Errorf("bad output status = %v, want error", bad.Status())
	}

	e.StopAll()
	if good.Status() != sink.StatusStopped {
		t.Errorf("good output status after StopAll = %v, want stopped", good.Status())
	}
}
