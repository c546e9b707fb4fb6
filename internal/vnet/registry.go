// Package vnet is the network video layer: a process-scoped sender
// registry and MJPEG-over-HTTP senders that receivers subscribe to.
package vnet

import (
	"fmt"
	"net"
	"sync"

	"github.com/strandlight/beamcast/internal/logger"
)

// Registry tracks every live sender in the process. It is constructed
// on first use via Open and keeps an explicit error state: if the
// network layer cannot be brought up, every caller gets that error
// back instead of a nil handle.
type Registry struct {
	mu      sync.Mutex
	senders map[string]*Sender
	ifaces  []string
	closed  bool
}

var (
	openOnce sync.Once
	shared   *Registry
	openErr  error
)

// Open returns the process-wide registry, constructing it on first
// use. A construction failure is sticky; later calls return the same
// error.
func Open() (*Registry, error) {
	openOnce.Do(func() {
		ifs, err := net.Interfaces()
		if err != nil {
			openErr = fmt.Errorf("enumerating network interfaces: %w", err)
			return
		}
		names := make([]string, 0, len(ifs))
		for _, ifi := range ifs {
			names = append(names, ifi.Name)
		}
		shared = &Registry{
			senders: make(map[string]*Sender),
			ifaces:  names,
		}
		logger.WithComponent("vnet").Info().
			Int("interfaces", len(names)).
			Msg("Video network layer initialized")
	})
	return shared, openErr
}

// Interfaces returns the interface names seen at initialization.
func (r *Registry) Interfaces() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ifaces))
	copy(out, r.ifaces)
	return out
}

// SenderInfo describes one live sender for listings and stats.
type SenderInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Addr    string `json:"addr"`
	Groups  string `json:"groups,omitempty"`
	Clients int    `json:"clients"`
}

// Senders lists the live senders.
func (r *Registry) Senders() []SenderInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SenderInfo, 0, len(r.senders))
	for _, s := range r.senders {
		out = append(out, SenderInfo{
			ID:      s.ID(),
			Name:    s.Name(),
			Addr:    s.Addr(),
			Groups:  s.cfg.Groups,
			Clients: s.Connections(),
		})
	}
	return out
}

// Shutdown closes every live sender and refuses further creation.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	live := make([]*Sender, 0, len(r.senders))
	for _, s := range r.senders {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		s.Close()
	}
	logger.WithComponent("vnet").Info().Int("senders", len(live)).Msg("Video network layer shut down")
}

func (r *Registry) register(s *Sender) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return fmt.Errorf("video network layer is shut down")
	}
	r.senders[s.ID()] = s
	return nil
}

func (r *Registry) unregister(id string) {
	r.mu.Lock()
	delete(r.senders, id)
	r.mu.Unlock()
}

// listenAddr resolves the sender bind address. A named interface wins
// over any host part of ListenAddr; the port comes from ListenAddr, or
// 0 for an ephemeral one.
func (r *Registry) listenAddr(cfg SenderConfig) (string, error) {
	port := "0"
	if cfg.ListenAddr != "" {
		if _, p, err := net.SplitHostPort(cfg.ListenAddr); err == nil {
			port = p
		} else {
			return "", fmt.Errorf("invalid listen address %q: %w", cfg.ListenAddr, err)
		}
	}

	if cfg.NetworkInterface == "" {
		if cfg.ListenAddr != "" {
			return cfg.ListenAddr, nil
		}
		return net.JoinHostPort("", port), nil
	}

	ifi, err := net.InterfaceByName(cfg.NetworkInterface)
	if err != nil {
		return "", fmt.Errorf("network interface %q: %w", cfg.NetworkInterface, err)
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return "", fmt.Errorf("addresses of %q: %w", cfg.NetworkInterface, err)
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return net.JoinHostPort(ip4.String(), port), nil
		}
	}
	return "", fmt.Errorf("network interface %q has no IPv4 address", cfg.NetworkInterface)
}
