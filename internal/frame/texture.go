// Package frame holds the canonical frame handle and the pooled image
// resources shared between the compositor side and the output sinks.
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// Texture is a fixed-layout RGBA image buffer. It stands in for the
// engine's device image handle: sinks render into textures, network
// senders encode from them and the display sink uploads them.
//
// The pixel layout matches image.RGBA (R, G, B, A byte order, row major)
// so a Texture can be handed directly to image/jpeg and x/image/draw.
type Texture struct {
	width  int
	height int
	stride int
	pix    []uint8
}

// NewTexture allocates a zeroed texture of the given shape.
func NewTexture(width, height int) *Texture {
	if width <= 0 || height <= 0 {
		return nil
	}
	return &Texture{
		width:  width,
		height: height,
		stride: width * 4,
		pix:    make([]uint8, width*height*4),
	}
}

// Width returns the texture width in pixels.
func (t *Texture) Width() int { return t.width }

// Height returns the texture height in pixels.
func (t *Texture) Height() int { return t.height }

// Stride returns the number of bytes per row.
func (t *Texture) Stride() int { return t.stride }

// Pix exposes the raw RGBA pixel storage.
func (t *Texture) Pix() []uint8 { return t.pix }

// ColorModel implements image.Image.
func (t *Texture) ColorModel() color.Model { return color.RGBAModel }

// Bounds implements image.Image.
func (t *Texture) Bounds() image.Rectangle {
	return image.Rect(0, 0, t.width, t.height)
}

// At implements image.Image.
func (t *Texture) At(x, y int) color.Color {
	return t.RGBAAt(x, y)
}

// RGBAAt returns the pixel at (x, y). Out-of-bounds reads return zero.
func (t *Texture) RGBAAt(x, y int) color.RGBA {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return color.RGBA{}
	}
	i := y*t.stride + x*4
	return color.RGBA{R: t.pix[i], G: t.pix[i+1], B: t.pix[i+2], A: t.pix[i+3]}
}

// Set implements draw.Image.
func (t *Texture) Set(x, y int, c color.Color) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return
	}
	r, g, b, a := c.RGBA()
	i := y*t.stride + x*4
	t.pix[i] = uint8(r >> 8)
	t.pix[i+1] = uint8(g >> 8)
	t.pix[i+2] = uint8(b >> 8)
	t.pix[i+3] = uint8(a >> 8)
}

// SetRGBA writes the pixel at (x, y) without conversion.
func (t *Texture) SetRGBA(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= t.width || y >= t.height {
		return
	}
	i := y*t.stride + x*4
	t.pix[i] = c.R
	t.pix[i+1] = c.G
	t.pix[i+2] = c.B
	t.pix[i+3] = c.A
}

// Fill sets every pixel to c.
func (t *Texture) Fill(c color.RGBA) {
	for y := 0; y < t.height; y++ {
		row := t.pix[y*t.stride : y*t.stride+t.width*4]
		for x := 0; x < len(row); x += 4 {
			row[x] = c.R
			row[x+1] = c.G
			row[x+2] = c.B
			row[x+3] = c.A
		}
	}
}

// CopyFrom copies src's pixels into t. Shapes must match.
func (t *Texture) CopyFrom(src *Texture) error {
	if src == nil {
		return fmt.Errorf("copy from nil texture")
	}
	if src.width != t.width || src.height != t.height {
		return fmt.Errorf("texture shape mismatch: %dx%d vs %dx%d",
			src.width, src.height, t.width, t.height)
	}
	copy(t.pix, src.pix)
	return nil
}

// Clone allocates an identical copy of t.
func (t *Texture) Clone() *Texture {
	c := NewTexture(t.width, t.height)
	copy(c.pix, t.pix)
	return c
}
