package render

import (
	"math"

	"github.com/strandlight/beamcast/internal/frame"
)

// sampleBilinear interpolates the texture at normalized (u, v) with
// clamp-to-edge addressing. Channels are returned in [0, 255] floats so
// the pipeline can keep compositing before the final quantize.
func sampleBilinear(t *frame.Texture, u, v float64) (r, g, b, a float64) {
	w := t.Width()
	h := t.Height()

	fx := u*float64(w) - 0.5
	fy := v*float64(h) - 0.5

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := fx - float64(x0)
	ty := fy - float64(y0)

	x1 := clampInt(x0+1, 0, w-1)
	y1 := clampInt(y0+1, 0, h-1)
	x0 = clampInt(x0, 0, w-1)
	y0 = clampInt(y0, 0, h-1)

	pix := t.Pix()
	stride := t.Stride()
	i00 := y0*stride + x0*4
	i10 := y0*stride + x1*4
	i01 := y1*stride + x0*4
	i11 := y1*stride + x1*4

	r = lerp2D(float64(pix[i00]), float64(pix[i10]), float64(pix[i01]), float64(pix[i11]), tx, ty)
	g = lerp2D(float64(pix[i00+1]), float64(pix[i10+1]), float64(pix[i01+1]), float64(pix[i11+1]), tx, ty)
	b = lerp2D(float64(pix[i00+2]), float64(pix[i10+2]), float64(pix[i01+2]), float64(pix[i11+2]), tx, ty)
	a = lerp2D(float64(pix[i00+3]), float64(pix[i10+3]), float64(pix[i01+3]), float64(pix[i11+3]), tx, ty)
	return r, g, b, a
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}

func lerp2D(v00, v10, v01, v11, tx, ty float64) float64 {
	return lerp(lerp(v00, v10, tx), lerp(v01, v11, tx), ty)
}
