// Package source provides stand-in frame producers used to exercise
// the output path before a real compositor is attached.
package source

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/strandlight/beamcast/internal/frame"
)

// Pattern selects what a Generator draws.
type Pattern int

const (
	// PatternBars draws 75% color bars with a gray ramp footer.
	PatternBars Pattern = iota
	// PatternGradient draws a horizontal gray ramp.
	PatternGradient
	// PatternGrid draws an alignment grid with a center cross.
	PatternGrid
)

// String returns the config name of the pattern.
func (p Pattern) String() string {
	switch p {
	case PatternBars:
		return "bars"
	case PatternGradient:
		return "gradient"
	case PatternGrid:
		return "grid"
	default:
		return "unknown"
	}
}

// ParsePattern maps a config string to a Pattern.
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToLower(s) {
	case "", "bars":
		return PatternBars, nil
	case "gradient":
		return PatternGradient, nil
	case "grid":
		return PatternGrid, nil
	default:
		return PatternBars, fmt.Errorf("unknown test pattern %q", s)
	}
}

// barColors are the classic eight bars at 75% amplitude.
var barColors = [8]color.RGBA{
	{R: 191, G: 191, B: 191, A: 255},
	{R: 191, G: 191, B: 0, A: 255},
	{R: 0, G: 191, B: 191, A: 255},
	{R: 0, G: 191, B: 0, A: 255},
	{R: 191, G: 0, B: 191, A: 255},
	{R: 191, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 191, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// Generator produces test-pattern frames of one shape at a nominal
// rate. The static pattern is drawn once; each frame adds a sweep
// column and a sequence label so motion and tearing are visible on the
// far end. Not safe for concurrent use; one producer drives it.
type Generator struct {
	width  int
	height int
	rate   frame.Rate
	label  string
	pool   *frame.TexturePool
	base   *frame.Texture
	seq    uint64
}

// NewGenerator builds a generator that acquires its textures from pool.
func NewGenerator(pool *frame.TexturePool, width, height int, fps float64, pat Pattern, label string) *Generator {
	base := frame.NewTexture(width, height)
	drawPattern(base, pat)
	return &Generator{
		width:  width,
		height: height,
		rate:   frame.SnapRate(fps),
		label:  label,
		pool:   pool,
		base:   base,
	}
}

// Rate returns the nominal frame rate.
func (g *Generator) Rate() frame.Rate { return g.rate }

// Next produces the next frame, stamped with now and a fresh sequence
// number. The texture comes from the shared pool; whoever consumes the
// frame releases it.
func (g *Generator) Next(now time.Time) *frame.Frame {
	tex := g.pool.Acquire(g.width, g.height)
	tex.CopyFrom(g.base)

	g.seq++
	drawSweep(tex, int(g.seq%uint64(g.width)))
	drawLabel(tex, 8, 8, fmt.Sprintf("%s %dx%d #%d", g.label, g.width, g.height, g.seq))

	return &frame.Frame{
		Texture:   tex,
		Timestamp: now.UnixNano(),
		Sequence:  g.seq,
		Rate:      g.rate,
		Valid:     true,
		Interlace: frame.Progressive,
	}
}

func drawPattern(tex *frame.Texture, pat Pattern) {
	w, h := tex.Width(), tex.Height()
	switch pat {
	case PatternGradient:
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / max(w-1, 1))
			c := color.RGBA{R: v, G: v, B: v, A: 255}
			for y := 0; y < h; y++ {
				tex.SetRGBA(x, y, c)
			}
		}
	case PatternGrid:
		tex.Fill(color.RGBA{A: 255})
		line := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		for x := 0; x < w; x += 64 {
			for y := 0; y < h; y++ {
				tex.SetRGBA(x, y, line)
			}
		}
		for y := 0; y < h; y += 64 {
			for x := 0; x < w; x++ {
				tex.SetRGBA(x, y, line)
			}
		}
		for x := 0; x < w; x++ {
			tex.SetRGBA(x, h/2, line)
		}
		for y := 0; y < h; y++ {
			tex.SetRGBA(w/2, y, line)
		}
	default: // bars
		ramp := h - h/5
		for x := 0; x < w; x++ {
			bar := barColors[min(x*8/max(w, 1), 7)]
			v := uint8(x * 255 / max(w-1, 1))
			gray := color.RGBA{R: v, G: v, B: v, A: 255}
			for y := 0; y < ramp; y++ {
				tex.SetRGBA(x, y, bar)
			}
			for y := ramp; y < h; y++ {
				tex.SetRGBA(x, y, gray)
			}
		}
	}
}

// drawSweep paints one white column so consecutive frames are visibly
// distinct.
func drawSweep(tex *frame.Texture, x int) {
	white := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	for y := 0; y < tex.Height(); y++ {
		tex.SetRGBA(x, y, white)
	}
}

// drawLabel renders text at (x, y) over a black box so it stays legible
// on any pattern.
func drawLabel(tex *frame.Texture, x, y int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  tex,
		Src:  image.NewUniform(color.RGBA{R: 255, G: 255, B: 255, A: 255}),
		Face: face,
	}
	textWidth := int(d.MeasureString(text) >> 6)

	const pad = 4
	box := image.Rect(x, y, x+textWidth+pad*2, y+face.Height+pad*2)
	draw.Draw(tex, box.Intersect(tex.Bounds()), image.NewUniform(color.RGBA{A: 255}), image.Point{}, draw.Src)

	d.Dot = fixed.P(x+pad, y+pad+face.Ascent)
	d.DrawString(text)
}
