package render

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/strandlight/beamcast/internal/frame"
)

var markerColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// drawCornerMarker paints the diagnostic marker for the active warp
// point: a dot with four bracket arms plus the point's name. Purely
// cosmetic, drawn after the correction pass so it is never warped
// itself.
func drawCornerMarker(dst *frame.Texture, px, py int, label string) {
	w := dst.Width()
	h := dst.Height()
	px = clampInt(px, 0, w-1)
	py = clampInt(py, 0, h-1)

	const arm = 8
	const gap = 3

	// Center dot.
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			dst.SetRGBA(px+dx, py+dy, markerColor)
		}
	}
	// Bracket arms, leaving a gap around the dot.
	for d := gap; d <= arm; d++ {
		dst.SetRGBA(px-d, py, markerColor)
		dst.SetRGBA(px+d, py, markerColor)
		dst.SetRGBA(px, py-d, markerColor)
		dst.SetRGBA(px, py+d, markerColor)
	}

	// Label sits to the upper right of the marker, nudged back inside
	// the frame when the point is near an edge.
	tx := px + arm + 4
	ty := py - arm
	if ty < 13 {
		ty = py + arm + 13
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(markerColor),
		Face: basicfont.Face7x13,
	}
	width := int(d.MeasureString(label) >> 6)
	if tx+width > w {
		tx = px - arm - 4 - width
		if tx < 0 {
			tx = 0
		}
	}
	d.Dot = fixed.P(tx, ty)
	d.DrawString(label)
}
