package network

import (
	"errors"
	"image/color"
	"testing"
	"time"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/sink"
)

func testFrame(seq uint64, c color.RGBA) *frame.Frame {
	tex := frame.NewTexture(64, 48)
	tex.Fill(c)
	return &frame.Frame{
		Texture:   tex,
		Timestamp: time.Now().UnixNano(),
		Sequence:  seq,
		Rate:      frame.Rate{N: 30, D: 1},
		Valid:     true,
	}
}

// forceRunning flips the output into its accepting state without
// starting the transmit goroutine, so the queue fills deterministically.
func forceRunning(s *StreamOutput) {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestQueueShedsOldestFirst(t *testing.T) {
	s := NewStreamOutput(1, Config{SourceName: "program"}, nil)
	forceRunning(s)

	const pushed = 9
	for i := 0; i < pushed; i++ {
		f := testFrame(uint64(i), color.RGBA{R: uint8(20*i + 5), A: 255})
		if err := s.PushFrame(f); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}

	if got := s.Dropped(); got != pushed-DefaultQueueDepth {
		t.Fatalf("Dropped = %d, want %d", got, pushed-DefaultQueueDepth)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) != DefaultQueueDepth {
		t.Fatalf("queue holds %d frames, want %d", len(s.queue), DefaultQueueDepth)
	}
	for j, q := range s.queue {
		wantR := uint8(20*(pushed-DefaultQueueDepth+j) + 5)
		if got := q.tex.RGBAAt(0, 0).R; got != wantR {
			t.Fatalf("queue[%d] R = %d, want %d (survivors must stay FIFO)", j, got, wantR)
		}
	}
}

func TestPushFrameFailsFast(t *testing.T) {
	s := NewStreamOutput(1, Config{}, nil)

	if err := s.PushFrame(testFrame(0, color.RGBA{A: 255})); !errors.Is(err, sink.ErrNotRunning) {
		t.Fatalf("push on stopped output: %v, want ErrNotRunning", err)
	}

	forceRunning(s)
	bad := testFrame(0, color.RGBA{A: 255})
	bad.Valid = false
	if err := s.PushFrame(bad); !errors.Is(err, sink.ErrInvalidFrame) {
		t.Fatalf("push of invalid frame: %v, want ErrInvalidFrame", err)
	}
	if err := s.PushFrame(nil); !errors.Is(err, sink.ErrInvalidFrame) {
		t.Fatalf("push of nil frame: %v, want ErrInvalidFrame", err)
	}
}

func TestAsyncDeliveryAndStop(t *testing.T) {
	var statuses []sink.Status
	s := NewStreamOutput(2, Config{
		SourceName: "program",
		ListenAddr: "127.0.0.1:0",
	}, func(_ int, st sink.Status, _ string) {
		statuses = append(statuses, st)
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	const pushed = 3
	for i := 0; i < pushed; i++ {
		if err := s.PushFrame(testFrame(uint64(i), color.RGBA{G: 128, A: 255})); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	waitFor(t, func() bool { return s.Sent() == pushed }, "frames never reached the sender")

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if err := s.PushFrame(testFrame(9, color.RGBA{A: 255})); !errors.Is(err, sink.ErrNotRunning) {
		t.Fatalf("push after stop: %v, want ErrNotRunning", err)
	}

	want := []sink.Status{sink.StatusStarting, sink.StatusRunning, sink.StatusStopped}
	if len(statuses) != len(want) {
		t.Fatalf("status changes = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("status change %d = %v, want %v", i, statuses[i], want[i])
		}
	}

	st := s.Stats()
	if st.Sent != pushed || st.Dropped != 0 || st.Queued != 0 {
		t.Fatalf("Stats = %+v, want %d sent and nothing lost", st, pushed)
	}
}

func TestRestartPicksUpRename(t *testing.T) {
	s := NewStreamOutput(3, Config{SourceName: "before", ListenAddr: "127.0.0.1:0"}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.SetName("after"); err != nil {
		t.Fatalf("SetName: %v", err)
	}

	s.mu.Lock()
	live := s.sender.Name()
	s.mu.Unlock()
	if live != "before" {
		t.Fatalf("live sender renamed to %q, want rename deferred to next start", live)
	}
	if s.Name() != "after" {
		t.Fatalf("Name() = %q, want bookkeeping updated", s.Name())
	}

	s.Stop()
	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer s.Stop()

	s.mu.Lock()
	live = s.sender.Name()
	s.mu.Unlock()
	if live != "after" {
		t.Fatalf("restarted sender advertises %q, want %q", live, "after")
	}
}

func TestLegacyModeSendsInline(t *testing.T) {
	s := NewStreamOutput(4, Config{
		SourceName: "legacy",
		ListenAddr: "127.0.0.1:0",
		LegacyMode: true,
		ClockVideo: true,
	}, nil)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if err := s.PushFrame(testFrame(0, color.RGBA{B: 200, A: 255})); err != nil {
		t.Fatalf("push: %v", err)
	}
	// Synchronous mode: the frame is sent before PushFrame returns.
	if got := s.Sent(); got != 1 {
		t.Fatalf("Sent = %d immediately after push, want 1", got)
	}
	if st := s.Stats(); st.Queued != 0 {
		t.Fatalf("legacy mode queued %d frames, want 0", st.Queued)
	}
}

func TestSetResolution(t *testing.T) {
	s := NewStreamOutput(5, Config{SourceName: "scaled"}, nil)
	forceRunning(s)

	if err := s.SetResolution(100, 100); !errors.Is(err, sink.ErrInvalidResolution) {
		t.Fatalf("undersized resolution: %v, want ErrInvalidResolution", err)
	}
	if err := s.SetResolution(9000, 1080); !errors.Is(err, sink.ErrInvalidResolution) {
		t.Fatalf("oversized resolution: %v, want ErrInvalidResolution", err)
	}

	if err := s.SetResolution(640, 360); err != nil {
		t.Fatalf("SetResolution: %v", err)
	}
	if err := s.PushFrame(testFrame(0, color.RGBA{R: 90, G: 40, B: 10, A: 255})); err != nil {
		t.Fatalf("push: %v", err)
	}

	if s.Width() != 640 || s.Height() != 360 {
		t.Fatalf("resolution = %dx%d, want 640x360", s.Width(), s.Height())
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tex := s.queue[0].tex
	if tex.Width() != 640 || tex.Height() != 360 {
		t.Fatalf("queued frame is %dx%d, want scaled to 640x360", tex.Width(), tex.Height())
	}
	if got := tex.RGBAAt(320, 180); got.R != 90 || got.G != 40 {
		t.Fatalf("scaled pixel = %v, want source color", got)
	}
}

func TestFrameRateSnapping(t *testing.T) {
	s := NewStreamOutput(6, Config{}, nil)
	forceRunning(s)

	f := testFrame(0, color.RGBA{A: 255})
	f.Rate = frame.Rate{N: 5994, D: 100}
	if err := s.PushFrame(f); err != nil {
		t.Fatalf("push: %v", err)
	}
	if got := s.FrameRate(); got != (frame.Rate{N: 60000, D: 1001}) {
		t.Fatalf("FrameRate = %v, want 60000/1001", got)
	}
}

func TestDirectCopy(t *testing.T) {
	src := frame.NewTexture(32, 32)
	src.Fill(color.RGBA{R: 200, G: 100, B: 50, A: 255})

	same := frame.NewTexture(32, 32)
	directCopy(same, src)
	if got := same.RGBAAt(16, 16); got != src.RGBAAt(16, 16) {
		t.Fatalf("same-shape copy = %v", got)
	}

	scaled := frame.NewTexture(64, 64)
	directCopy(scaled, src)
	got := scaled.RGBAAt(32, 32)
	if got.R != 200 || got.G != 100 || got.B != 50 {
		t.Fatalf("scaled copy center = %v, want source color", got)
	}
}
