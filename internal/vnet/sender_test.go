package vnet

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"
)

func newTestRegistry() *Registry {
	return &Registry{senders: make(map[string]*Sender)}
}

func TestOpenReturnsSameRegistry(t *testing.T) {
	a, err := Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := Open()
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if a != b {
		t.Fatal("Open returned two different registries")
	}
}

func TestSenderLifecycle(t *testing.T) {
	r := newTestRegistry()

	s, err := r.NewSender(SenderConfig{Name: "program", ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	if s.Addr() == "" || s.ID() == "" {
		t.Fatalf("sender missing addr or id: %q %q", s.Addr(), s.ID())
	}

	infos := r.Senders()
	if len(infos) != 1 || infos[0].Name != "program" {
		t.Fatalf("Senders() = %+v, want the one live sender", infos)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if got := len(r.Senders()); got != 0 {
		t.Fatalf("registry still lists %d senders after close", got)
	}
}

func TestSenderStreamsFrames(t *testing.T) {
	r := newTestRegistry()
	s, err := r.NewSender(SenderConfig{Name: "program", ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer s.Close()

	resp, err := http.Get("http://" + s.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET /stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("Content-Type = %q", ct)
	}

	payload := []byte("not-really-a-jpeg")
	got := make(chan []byte, 1)
	go func() {
		rd := bufio.NewReader(resp.Body)
		for {
			line, err := rd.ReadString('\n')
			if err != nil {
				return
			}
			if strings.HasPrefix(line, "Content-Length:") {
				n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Content-Length:")))
				if err != nil {
					return
				}
				if _, err := rd.ReadString('\n'); err != nil {
					return
				}
				buf := make([]byte, n)
				if _, err := io.ReadFull(rd, buf); err != nil {
					return
				}
				got <- buf
				return
			}
		}
	}()

	// Subscription registers asynchronously, so keep sending until the
	// reader sees a frame.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case data := <-got:
			if string(data) != string(payload) {
				t.Fatalf("received %q, want %q", data, payload)
			}
			return
		case <-deadline:
			t.Fatal("no frame received within timeout")
		case <-tick.C:
			if err := s.Send(payload, 0); err != nil {
				t.Fatalf("Send: %v", err)
			}
		}
	}
}

func TestSenderPacing(t *testing.T) {
	r := newTestRegistry()
	s, err := r.NewSender(SenderConfig{Name: "paced", ListenAddr: "127.0.0.1:0", ClockVideo: true})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer s.Close()

	const interval = 30 * time.Millisecond
	data := []byte("frame")

	s.Send(data, interval)
	start := time.Now()
	s.Send(data, interval)
	s.Send(data, interval)
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Fatalf("three paced sends took %v, want at least %v", elapsed, 2*interval)
	}
	if got := s.Frames(); got != 3 {
		t.Fatalf("Frames = %d, want 3", got)
	}
}

func TestSenderInfoEndpoint(t *testing.T) {
	r := newTestRegistry()
	s, err := r.NewSender(SenderConfig{Name: "preview", ListenAddr: "127.0.0.1:0", Groups: "stage,foh"})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer s.Close()

	resp, err := http.Get("http://" + s.Addr() + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	var info SenderInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		t.Fatalf("decoding info: %v", err)
	}
	if info.Name != "preview" || info.Groups != "stage,foh" || info.Clients != 0 {
		t.Fatalf("info = %+v", info)
	}
}

func TestRegistryShutdownRefusesNewSenders(t *testing.T) {
	r := newTestRegistry()
	s, err := r.NewSender(SenderConfig{Name: "doomed", ListenAddr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}

	r.Shutdown()

	if err := s.Send([]byte("x"), 0); err == nil {
		t.Fatal("Send succeeded on a shut-down sender")
	}
	if s2, err := r.NewSender(SenderConfig{Name: "late", ListenAddr: "127.0.0.1:0"}); err == nil {
		s2.Close()
		t.Fatal("NewSender succeeded after shutdown")
	}
}

func TestListenAddrResolution(t *testing.T) {
	r := newTestRegistry()

	addr, err := r.listenAddr(SenderConfig{ListenAddr: "127.0.0.1:9000"})
	if err != nil || addr != "127.0.0.1:9000" {
		t.Fatalf("listenAddr = %q, %v", addr, err)
	}

	addr, err = r.listenAddr(SenderConfig{})
	if err != nil || addr != ":0" {
		t.Fatalf("listenAddr for empty config = %q, %v", addr, err)
	}

	if _, err := r.listenAddr(SenderConfig{ListenAddr: "no-port"}); err == nil {
		t.Fatal("malformed listen address accepted")
	}
	if _, err := r.listenAddr(SenderConfig{NetworkInterface: "bogus0"}); err == nil {
		t.Fatal("unknown interface accepted")
	}
}
