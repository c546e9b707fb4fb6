// Package config holds the on-disk configuration model and the Manager
// that loads, defaults and saves it.
package config

import (
	"fmt"

	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/render"
)

// Config is the root of the configuration file.
type Config struct {
	ServerPort int    `json:"server_port" yaml:"server_port"`
	LogLevel   string `json:"log_level" yaml:"log_level"`
	LogPretty  bool   `json:"log_pretty" yaml:"log_pretty"`

	Engine  EngineConfig   `json:"engine" yaml:"engine"`
	Source  SourceConfig   `json:"source" yaml:"source"`
	Outputs []OutputConfig `json:"outputs" yaml:"outputs"`
}

// EngineConfig shapes the fan-out loop and the shared frame pool.
type EngineConfig struct {
	RingCapacity int     `json:"ring_capacity" yaml:"ring_capacity"`
	TargetFPS    float64 `json:"target_fps" yaml:"target_fps"`
	Width        int     `json:"width" yaml:"width"`
	Height       int     `json:"height" yaml:"height"`
}

// SourceConfig controls the built-in test pattern producer.
type SourceConfig struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Pattern string  `json:"pattern" yaml:"pattern"`
	FPS     float64 `json:"fps" yaml:"fps"`
	Label   string  `json:"label" yaml:"label"`
}

// OutputConfig declares one output. Exactly one of Display or Stream
// must be set, matching Kind. Crop, Correction and Intensity are
// optional startup looks; unset means the neutral default.
type OutputConfig struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Kind string `json:"kind" yaml:"kind"`

	Display *DisplayOutputConfig `json:"display,omitempty" yaml:"display,omitempty"`
	Stream  *StreamOutputConfig  `json:"stream,omitempty" yaml:"stream,omitempty"`

	Crop       *render.CropRegion `json:"crop,omitempty" yaml:"crop,omitempty"`
	Correction *render.Correction `json:"correction,omitempty" yaml:"correction,omitempty"`
	Intensity  *float64           `json:"intensity,omitempty" yaml:"intensity,omitempty"`
}

// Output kinds accepted in OutputConfig.Kind.
const (
	KindDisplay = "display"
	KindStream  = "stream"
)

// DisplayOutputConfig configures a windowed or fullscreen display output.
type DisplayOutputConfig struct {
	DisplayID  int  `json:"display_id" yaml:"display_id"`
	Fullscreen bool `json:"fullscreen" yaml:"fullscreen"`
	VSync      bool `json:"vsync" yaml:"vsync"`
	Width      int  `json:"width" yaml:"width"`
	Height     int  `json:"height" yaml:"height"`
}

// StreamOutputConfig configures a network video output. ClockVideo nil
// means on.
type StreamOutputConfig struct {
	Listen     string   `json:"listen" yaml:"listen"`
	Interface  string   `json:"interface,omitempty" yaml:"interface,omitempty"`
	Groups     []string `json:"groups,omitempty" yaml:"groups,omitempty"`
	ClockVideo *bool    `json:"clock_video,omitempty" yaml:"clock_video,omitempty"`
	QueueDepth int      `json:"queue_depth" yaml:"queue_depth"`
	Legacy     bool     `json:"legacy" yaml:"legacy"`
	Width      int      `json:"width" yaml:"width"`
	Height     int      `json:"height" yaml:"height"`
}

// Defaults returns the configuration written on first run: one network
// output so the engine is reachable without a display attached.
func Defaults() *Config {
	return &Config{
		ServerPort: 8089,
		LogLevel:   "info",
		Engine: EngineConfig{
			RingCapacity: frame.DefaultRingCapacity,
			TargetFPS:    60,
			Width:        1920,
			Height:       1080,
		},
		Source: SourceConfig{
			Enabled: true,
			Pattern: "bars",
			FPS:     60,
			Label:   "beamcast",
		},
		Outputs: []OutputConfig{
			{
				ID:   1,
				Name: "stream-1",
				Kind: KindStream,
				Stream: &StreamOutputConfig{
					Listen:     ":8090",
					QueueDepth: 5,
					Width:      1280,
					Height:     720,
				},
			},
		},
	}
}

// Validate rejects configurations the engine cannot start from.
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port %d out of range", c.ServerPort)
	}
	if c.Engine.Width <= 0 || c.Engine.Height <= 0 {
		return fmt.Errorf("engine frame shape %dx%d invalid", c.Engine.Width, c.Engine.Height)
	}
	if c.Engine.TargetFPS <= 0 {
		return fmt.Errorf("engine target_fps %v invalid", c.Engine.TargetFPS)
	}

	seen := make(map[int]bool, len(c.Outputs))
	for i := range c.Outputs {
		oc := &c.Outputs[i]
		if seen[oc.ID] {
			return fmt.Errorf("output id %d declared twice", oc.ID)
		}
		seen[oc.ID] = true

		switch oc.Kind {
		case KindDisplay:
			if oc.Display == nil {
				return fmt.Errorf("output %d: kind display needs a display block", oc.ID)
			}
			if oc.Stream != nil {
				return fmt.Errorf("output %d: display output carries a stream block", oc.ID)
			}
		case KindStream:
			if oc.Stream == nil {
				return fmt.Errorf("output %d: kind stream needs a stream block", oc.ID)
			}
			if oc.Display != nil {
				return fmt.Errorf("output %d: stream output carries a display block", oc.ID)
			}
		default:
			return fmt.Errorf("output %d: unknown kind %q", oc.ID, oc.Kind)
		}
	}
	return nil
}

// normalize fills zero values a hand-edited file commonly leaves out.
func (c *Config) normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Engine.RingCapacity < 1 {
		c.Engine.RingCapacity = frame.DefaultRingCapacity
	}
	if c.Source.Pattern == "" {
		c.Source.Pattern = "bars"
	}
	if c.Source.FPS <= 0 {
		c.Source.FPS = c.Engine.TargetFPS
	}
	if c.Source.Label == "" {
		c.Source.Label = "beamcast"
	}
	for i := range c.Outputs {
		oc := &c.Outputs[i]
		if oc.Name == "" {
			oc.Name = fmt.Sprintf("%s-%d", oc.Kind, oc.ID)
		}
		if oc.Stream != nil && oc.Stream.QueueDepth < 1 {
			oc.Stream.QueueDepth = 5
		}
	}
}

// clone deep-copies the config so callers can mutate their view freely.
func (c *Config) clone() *Config {
	out := *c
	out.Outputs = make([]OutputConfig, len(c.Outputs))
	for i, oc := range c.Outputs {
		cp := oc
		if oc.Display != nil {
			d := *oc.Display
			cp.Display = &d
		}
		if oc.Stream != nil {
			s := *oc.Stream
			s.Groups = append([]string(nil), oc.Stream.Groups...)
			if oc.Stream.ClockVideo != nil {
				b := *oc.Stream.ClockVideo
				s.ClockVideo = &b
			}
			cp.Stream = &s
		}
		if oc.Crop != nil {
			cr := *oc.Crop
			cp.Crop = &cr
		}
		if oc.Correction != nil {
			co := *oc.Correction
			cp.Correction = &co
		}
		if oc.Intensity != nil {
			v := *oc.Intensity
			cp.Intensity = &v
		}
		out.Outputs[i] = cp
	}
	return &out
}
