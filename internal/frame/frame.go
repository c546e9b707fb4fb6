package frame

import (
	"fmt"
	"math"
	"time"
)

// Interlace describes the field order of a frame.
type Interlace uint8

const (
	// Progressive frames carry the whole picture.
	Progressive Interlace = iota
	// TopFieldFirst marks interlaced content, top field first.
	TopFieldFirst
	// BottomFieldFirst marks interlaced content, bottom field first.
	BottomFieldFirst
)

// String returns a short name for the interlace mode.
func (i Interlace) String() string {
	switch i {
	case Progressive:
		return "progressive"
	case TopFieldFirst:
		return "tff"
	case BottomFieldFirst:
		return "bff"
	default:
		return "unknown"
	}
}

// Rate is a frame rate expressed as a rational N/D.
type Rate struct {
	N int
	D int
}

// Float returns the rate as frames per second.
func (r Rate) Float() float64 {
	if r.D == 0 {
		return 0
	}
	return float64(r.N) / float64(r.D)
}

// String returns the rate in N/D form.
func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.N, r.D)
}

// Interval returns the duration of one frame at this rate, or 0 for an
// unset rate.
func (r Rate) Interval() time.Duration {
	if r.N <= 0 || r.D <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) * float64(r.D) / float64(r.N))
}

// SnapRate normalizes a floating frame rate to the broadcast fractions
// receivers expect. Rates within 0.1 of 60, 30 or 24 become the matching
// NTSC fraction over 1001; everything else becomes an integer millirate.
func SnapRate(fps float64) Rate {
	switch {
	case math.Abs(fps-60) < 0.1:
		return Rate{N: 60000, D: 1001}
	case math.Abs(fps-30) < 0.1:
		return Rate{N: 30000, D: 1001}
	case math.Abs(fps-24) < 0.1:
		return Rate{N: 24000, D: 1001}
	default:
		return Rate{N: int(math.Round(fps * 1000)), D: 1000}
	}
}

// Frame is the canonical handle passed to every sink once per tick.
// The texture belongs to the compositor; a sink may reference it only
// for the duration of one present/encode cycle.
type Frame struct {
	Texture   *Texture
	Timestamp int64 // nanoseconds
	Sequence  uint64
	Rate      Rate
	Valid     bool
	Interlace Interlace
}

// Width returns the frame width, or 0 when no texture is attached.
func (f *Frame) Width() int {
	if f == nil || f.Texture == nil {
		return 0
	}
	return f.Texture.Width()
}

// Height returns the frame height, or 0 when no texture is attached.
func (f *Frame) Height() int {
	if f == nil || f.Texture == nil {
		return 0
	}
	return f.Texture.Height()
}

// Usable reports whether a sink may render from this frame.
func (f *Frame) Usable() bool {
	return f != nil && f.Valid && f.Texture != nil
}
