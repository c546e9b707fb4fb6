package vnet

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/strandlight/beamcast/internal/logger"
)

// SenderConfig describes one video sender.
type SenderConfig struct {
	// Name is the advertised stream name.
	Name string
	// ListenAddr is the host:port to serve on; an empty host binds all
	// interfaces, port 0 picks a free one.
	ListenAddr string
	// NetworkInterface optionally pins the sender to one interface by
	// name, overriding the host part of ListenAddr.
	NetworkInterface string
	// Groups carries comma-separated group tags receivers filter on.
	Groups string
	// ClockVideo paces transmission to the frame interval.
	ClockVideo bool
}

// Sender serves one MJPEG stream over HTTP. Receivers subscribe at
// /stream and get a multipart sequence of JPEG frames; / answers with
// sender metadata. Slow receivers skip frames, they never block Send.
type Sender struct {
	id  string
	cfg SenderConfig

	ln  net.Listener
	srv *http.Server

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}
	closed    bool

	paceMu   sync.Mutex
	lastSend time.Time

	frames atomic.Uint64

	unregister func()
}

// NewSender binds a listener and starts serving the stream endpoints.
// A creation failure here is terminal for the caller's start attempt.
func (r *Registry) NewSender(cfg SenderConfig) (*Sender, error) {
	addr, err := r.listenAddr(cfg)
	if err != nil {
		return nil, err
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("binding video sender: %w", err)
	}

	s := &Sender{
		id:      uuid.NewString(),
		cfg:     cfg,
		ln:      ln,
		clients: make(map[chan []byte]struct{}),
	}
	s.unregister = func() { r.unregister(s.id) }

	router := mux.NewRouter()
	router.HandleFunc("/", s.handleInfo).Methods("GET")
	router.HandleFunc("/stream", s.handleStream).Methods("GET")
	s.srv = &http.Server{Handler: router}

	if err := r.register(s); err != nil {
		ln.Close()
		return nil, err
	}

	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.WithComponent("vnet").Error().Err(err).Str("sender", cfg.Name).Msg("Sender HTTP loop ended")
		}
	}()

	logger.WithComponent("vnet").Info().
		Str("sender", cfg.Name).
		Str("addr", ln.Addr().String()).
		Str("groups", cfg.Groups).
		Bool("clock_video", cfg.ClockVideo).
		Msg("Video sender online")
	return s, nil
}

// ID returns the registry instance ID.
func (s *Sender) ID() string { return s.id }

// Name returns the advertised stream name.
func (s *Sender) Name() string { return s.cfg.Name }

// Addr returns the bound listen address.
func (s *Sender) Addr() string { return s.ln.Addr().String() }

// Connections returns the number of subscribed receivers.
func (s *Sender) Connections() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

// Frames returns how many frames have been broadcast.
func (s *Sender) Frames() uint64 { return s.frames.Load() }

// Send broadcasts one encoded frame to every subscribed receiver.
// With ClockVideo set, consecutive sends are spaced at least interval
// apart. Receivers that cannot keep up skip this frame.
func (s *Sender) Send(data []byte, interval time.Duration) error {
	s.clientsMu.RLock()
	closed := s.closed
	s.clientsMu.RUnlock()
	if closed {
		return fmt.Errorf("sender %q is closed", s.cfg.Name)
	}

	if s.cfg.ClockVideo && interval > 0 {
		s.paceMu.Lock()
		if wait := interval - time.Since(s.lastSend); wait > 0 {
			time.Sleep(wait)
		}
		s.lastSend = time.Now()
		s.paceMu.Unlock()
	}

	s.frames.Add(1)

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// receiver is behind, skip this frame for it
		}
	}
	return nil
}

// Close stops serving, disconnects all receivers and removes the
// sender from the registry. Safe to call more than once.
func (s *Sender) Close() error {
	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan []byte]struct{})
	s.clientsMu.Unlock()

	err := s.srv.Close()
	if s.unregister != nil {
		s.unregister()
	}
	logger.WithComponent("vnet").Info().
		Str("sender", s.cfg.Name).
		Uint64("frames", s.frames.Load()).
		Msg("Video sender closed")
	return err
}

func (s *Sender) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(SenderInfo{
		ID:      s.id,
		Name:    s.cfg.Name,
		Addr:    s.Addr(),
		Groups:  s.cfg.Groups,
		Clients: s.Connections(),
	})
}

func (s *Sender) handleStream(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "close")
	if s.cfg.Groups != "" {
		w.Header().Set("X-Stream-Groups", s.cfg.Groups)
	}

	ch := make(chan []byte, 2)

	s.clientsMu.Lock()
	if s.closed {
		s.clientsMu.Unlock()
		http.Error(w, "sender is closed", http.StatusServiceUnavailable)
		return
	}
	s.clients[ch] = struct{}{}
	count := len(s.clients)
	s.clientsMu.Unlock()

	log := logger.WithComponent("vnet")
	log.Info().Str("sender", s.cfg.Name).Int("clients", count).Msg("Receiver connected")

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ch)
		count := len(s.clients)
		s.clientsMu.Unlock()
		log.Info().Str("sender", s.cfg.Name).Int("clients", count).Msg("Receiver disconnected")
	}()

	for data := range ch {
		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := fmt.Fprintf(w, "\r\n"); err != nil {
			return
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
