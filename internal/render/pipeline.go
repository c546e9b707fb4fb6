package render

import (
	"math"
	"runtime"
	"sync"

	"github.com/strandlight/beamcast/internal/frame"
)

// Params is everything one correction pass needs besides the textures:
// the sink's live crop, correction bundle and intensity.
type Params struct {
	Crop       CropRegion
	Correction Correction
	Intensity  float64
}

// DefaultParams returns an identity pass: full crop, neutral
// correction, full intensity.
func DefaultParams() Params {
	return Params{
		Crop:       FullCrop(),
		Correction: DefaultCorrection(),
		Intensity:  1.0,
	}
}

// Pipeline executes correction passes. One pipeline is shared by all
// sinks; it owns no per-output state, only the worker width and the
// texture pool used for transition intermediates.
type Pipeline struct {
	pool    *frame.TexturePool
	workers int
}

// NewPipeline creates a pipeline over the shared texture pool.
func NewPipeline(pool *frame.TexturePool) *Pipeline {
	return &Pipeline{
		pool:    pool,
		workers: runtime.GOMAXPROCS(0),
	}
}

// Pool returns the texture pool the pipeline draws intermediates from.
func (pl *Pipeline) Pool() *frame.TexturePool {
	return pl.pool
}

// Render runs the full correction pass from src into dst. The pass is
// row-parallel; dst and src must not alias.
func (pl *Pipeline) Render(dst, src *frame.Texture, prm Params) {
	if dst == nil || src == nil {
		return
	}
	w := dst.Width()
	h := dst.Height()
	corr := prm.Correction
	ps := pass{
		src:  src,
		crop: prm.Crop,
		corr: &corr,
	}

	if corr.EnableWarp && !corr.warpIdentity() {
		g := buildGrid(&corr, w, h)
		ps.grid = &g
	}
	ps.curvature = corr.EnableCurvature && corr.Curvature != 0
	ps.lens = corr.EnableLens && !corr.lensIdentity()

	if corr.EnableBlend {
		ps.fLeft = feathNorm(corr.FeatherLeft, w)
		ps.fRight = feathNorm(corr.FeatherRight, w)
		ps.fTop = feathNorm(corr.FeatherTop, h)
		ps.fBottom = feathNorm(corr.FeatherBottom, h)
		ps.feather = ps.fLeft > 0 || ps.fRight > 0 || ps.fTop > 0 || ps.fBottom > 0
		ps.floor = clamp01(corr.BlackLevel) * 255
		ps.power = corr.BlendPower
		if ps.power <= 0 {
			ps.power = 1
		}
		ps.invBlendGamma = 1.0
		if corr.BlendGamma > 0 {
			ps.invBlendGamma = 1 / corr.BlendGamma
		}
		ps.invGammaR = invGamma(corr.GammaR)
		ps.invGammaG = invGamma(corr.GammaG)
		ps.invGammaB = invGamma(corr.GammaB)
		ps.gamma = ps.invGammaR != 1 || ps.invGammaG != 1 || ps.invGammaB != 1
	}
	ps.intensity = clamp01(prm.Intensity)

	pl.forRows(h, func(y0, y1 int) {
		ps.renderRows(dst, y0, y1)
	})

	if corr.ActiveCorner >= 0 && corr.ActiveCorner < int(WarpPointCount) {
		p := WarpPoint(corr.ActiveCorner)
		n := p.nominal()
		pt := Vec2{
			X: n.X + corr.WarpOffsets[p].X/float64(w),
			Y: n.Y + corr.WarpOffsets[p].Y/float64(h),
		}
		drawCornerMarker(dst, int(pt.X*float64(w)), int(pt.Y*float64(h)), p.String())
	}
}

// forRows splits [0,height) into bands and runs fn on each in parallel.
func (pl *Pipeline) forRows(height int, fn func(y0, y1 int)) {
	workers := pl.workers
	if workers < 1 {
		workers = 1
	}
	if workers > height {
		workers = height
	}
	if workers <= 1 {
		fn(0, height)
		return
	}

	band := (height + workers - 1) / workers
	var wg sync.WaitGroup
	for y := 0; y < height; y += band {
		y1 := y + band
		if y1 > height {
			y1 = height
		}
		wg.Add(1)
		go func(a, b int) {
			defer wg.Done()
			fn(a, b)
		}(y, y1)
	}
	wg.Wait()
}

func feathNorm(px float64, dim int) float64 {
	if px <= 0 || dim <= 0 {
		return 0
	}
	return px / float64(dim)
}

func invGamma(g float64) float64 {
	if g <= 0 || g == 1 {
		return 1
	}
	return 1 / g
}

// pass carries the precomputed per-frame state of one correction pass.
type pass struct {
	src  *frame.Texture
	crop CropRegion
	corr *Correction
	grid *warpGrid

	curvature bool
	lens      bool

	feather                      bool
	fLeft, fRight, fTop, fBottom float64
	power                        float64
	invBlendGamma                float64
	floor                        float64
	gamma                        bool
	invGammaR                    float64
	invGammaG                    float64
	invGammaB                    float64

	intensity float64
}

func (ps *pass) renderRows(dst *frame.Texture, y0, y1 int) {
	w := dst.Width()
	fw := float64(w)
	fh := float64(dst.Height())
	pix := dst.Pix()
	stride := dst.Stride()

	for y := y0; y < y1; y++ {
		v := (float64(y) + 0.5) / fh
		row := pix[y*stride : y*stride+w*4]
		for x := 0; x < w; x++ {
			u := (float64(x) + 0.5) / fw
			r, g, b, a := ps.shade(u, v)
			i := x * 4
			row[i] = uint8(r + 0.5)
			row[i+1] = uint8(g + 0.5)
			row[i+2] = uint8(b + 0.5)
			row[i+3] = uint8(a + 0.5)
		}
	}
}

// shade computes one destination pixel. u/v are the destination's own
// normalized coordinates; feathering is measured there, before any
// warp, so the blend ramps stay glued to the physical output edges.
func (ps *pass) shade(u, v float64) (float64, float64, float64, float64) {
	pos := Vec2{X: u, Y: v}

	if ps.grid != nil {
		var ok bool
		pos, ok = ps.grid.warpSource(pos)
		if !ok {
			// Outside the warped region: border color.
			return 0, 0, 0, 255
		}
	}
	if ps.curvature {
		pos = radialRemap(pos, Vec2{X: 0.5, Y: 0.5},
			-ps.corr.Curvature*0.5, -ps.corr.Curvature*0.25)
	}
	if ps.lens {
		pos = radialRemap(pos, ps.corr.LensCenter, ps.corr.LensK1, ps.corr.LensK2)
	}

	sx := clamp01(ps.crop.X + pos.X*ps.crop.W)
	sy := clamp01(ps.crop.Y + pos.Y*ps.crop.H)
	r, g, b, a := sampleBilinear(ps.src, sx, sy)

	if ps.feather || ps.floor > 0 {
		blend := ps.featherAt(u, v)
		r = math.Max(r*blend, ps.floor)
		g = math.Max(g*blend, ps.floor)
		b = math.Max(b*blend, ps.floor)
	}
	if ps.gamma {
		r = 255 * math.Pow(r/255, ps.invGammaR)
		g = 255 * math.Pow(g/255, ps.invGammaG)
		b = 255 * math.Pow(b/255, ps.invGammaB)
	}
	if ps.intensity < 1 {
		r *= ps.intensity
		g *= ps.intensity
		b *= ps.intensity
	}
	return r, g, b, a
}

// featherAt combines the per-edge ramps multiplicatively. An edge with
// zero feather width contributes factor 1.
func (ps *pass) featherAt(u, v float64) float64 {
	blend := 1.0
	if ps.fLeft > 0 {
		blend *= ps.ramp(u / ps.fLeft)
	}
	if ps.fRight > 0 {
		blend *= ps.ramp((1 - u) / ps.fRight)
	}
	if ps.fTop > 0 {
		blend *= ps.ramp(v / ps.fTop)
	}
	if ps.fBottom > 0 {
		blend *= ps.ramp((1 - v) / ps.fBottom)
	}
	return blend
}

func (ps *pass) ramp(t float64) float64 {
	t = clamp01(t)
	if ps.power != 1 {
		t = math.Pow(t, ps.power)
	}
	if ps.invBlendGamma != 1 {
		t = math.Pow(t, ps.invBlendGamma)
	}
	return t
}
