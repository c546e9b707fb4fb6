package render

import (
	"image/color"
	"testing"

	"github.com/strandlight/beamcast/internal/frame"
)

// gradientTexture fills a texture with a deterministic pattern distinct
// at every pixel.
func gradientTexture(w, h int) *frame.Texture {
	t := frame.NewTexture(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			t.SetRGBA(x, y, color.RGBA{
				R: uint8((x * 7) % 256),
				G: uint8((y * 11) % 256),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return t
}

func newTestPipeline() *Pipeline {
	return NewPipeline(frame.NewTexturePool(64, 64))
}

func texturesEqual(t *testing.T, got, want *frame.Texture, context string) {
	t.Helper()
	if got.Width() != want.Width() || got.Height() != want.Height() {
		t.Fatalf("%s: shape %dx%d vs %dx%d", context,
			got.Width(), got.Height(), want.Width(), want.Height())
	}
	gp := got.Pix()
	wp := want.Pix()
	for i := range gp {
		if gp[i] != wp[i] {
			x := (i % got.Stride()) / 4
			y := i / got.Stride()
			t.Fatalf("%s: pixel (%d,%d) byte %d = %d, want %d",
				context, x, y, i%4, gp[i], wp[i])
		}
	}
}

// With zero warp offsets, zero curvature, identity lens, zero feather
// and full intensity, the pass must reproduce the source exactly.
func TestRenderIdentity(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(120, 80)
	dst := frame.NewTexture(120, 80)

	pl.Render(dst, src, DefaultParams())
	texturesEqual(t, dst, src, "identity render")
}

// Zero offsets and zero curvature must reduce to plain crop+feather
// sampling: rendering with the warp stage enabled equals rendering
// with it disabled.
func TestRenderZeroWarpEqualsCropFeather(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(96, 64)

	prm := DefaultParams()
	prm.Crop = CropRegion{X: 0.1, Y: 0.2, W: 0.7, H: 0.6}
	prm.Correction.FeatherLeft = 12
	prm.Correction.FeatherTop = 8
	prm.Correction.BlendGamma = 1.8

	withWarp := frame.NewTexture(96, 64)
	pl.Render(withWarp, src, prm)

	prm.Correction.EnableWarp = false
	prm.Correction.EnableCurvature = false
	withoutWarp := frame.NewTexture(96, 64)
	pl.Render(withoutWarp, src, prm)

	texturesEqual(t, withWarp, withoutWarp, "zero warp vs disabled warp")
}

// A 1920x1080 solid-color frame cropped to (0.25,0.25,0.5,0.5) with no
// feather must come out as the source's center quadrant.
func TestRenderCropSolidColor(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(1920, 1080)
	want := color.RGBA{R: 40, G: 90, B: 160, A: 255}
	src.Fill(want)

	dst := frame.NewTexture(960, 540)
	prm := DefaultParams()
	prm.Crop = CropRegion{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}
	pl.Render(dst, src, prm)

	for _, pt := range [][2]int{{0, 0}, {959, 0}, {0, 539}, {959, 539}, {480, 270}} {
		if got := dst.RGBAAt(pt[0], pt[1]); got != want {
			t.Fatalf("pixel (%d,%d) = %v, want %v", pt[0], pt[1], got, want)
		}
	}
}

// The same crop on a gradient must select the center quadrant pixel for
// pixel, unscaled.
func TestRenderCropCenterQuadrantUnscaled(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(192, 108)

	dst := frame.NewTexture(96, 54)
	prm := DefaultParams()
	prm.Crop = CropRegion{X: 0.25, Y: 0.25, W: 0.5, H: 0.5}
	pl.Render(dst, src, prm)

	for y := 0; y < 54; y++ {
		for x := 0; x < 96; x++ {
			got := dst.RGBAAt(x, y)
			want := src.RGBAAt(x+48, y+27)
			if got != want {
				t.Fatalf("pixel (%d,%d) = %v, want source (%d,%d) = %v",
					x, y, got, x+48, y+27, want)
			}
		}
	}
}

// A crop reaching past the source must clamp sampling to the source
// edge instead of wrapping or reading junk.
func TestRenderCropClampsToEdges(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(64, 64)
	src.Fill(color.RGBA{R: 10, G: 10, B: 10, A: 255})
	edge := color.RGBA{R: 250, G: 0, B: 0, A: 255}
	for y := 0; y < 64; y++ {
		src.SetRGBA(63, y, edge) // marker column on the right edge
	}

	dst := frame.NewTexture(64, 64)
	prm := DefaultParams()
	prm.Crop = CropRegion{X: 0.75, Y: 0, W: 0.5, H: 1} // right half extends past 1.0
	pl.Render(dst, src, prm)

	// Destination pixels whose sample coordinate clamps to 1.0 must all
	// show the marker column.
	if got := dst.RGBAAt(63, 32); got != edge {
		t.Fatalf("clamped pixel = %v, want edge marker %v", got, edge)
	}
	if got := dst.RGBAAt(40, 32); got != edge {
		t.Fatalf("pixel past the source edge = %v, want edge marker %v", got, edge)
	}
	// Left part of the crop still reads interior pixels.
	if got := dst.RGBAAt(2, 32); got.R != 10 {
		t.Fatalf("interior pixel = %v, want interior gray", got)
	}
}

// Feathering with zero widths must contribute nothing.
func TestRenderFeatherZeroWidth(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(80, 60)

	plain := frame.NewTexture(80, 60)
	pl.Render(plain, src, DefaultParams())

	prm := DefaultParams()
	prm.Correction.BlendGamma = 2.2
	prm.Correction.BlendPower = 1.7 // must be inert with zero widths
	feathered := frame.NewTexture(80, 60)
	pl.Render(feathered, src, prm)

	texturesEqual(t, feathered, plain, "zero-width feather")
}

// A full-width left feather with power and gamma 1 is a plain linear
// ramp in destination space.
func TestRenderFeatherLinearRamp(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(100, 10)
	src.Fill(color.RGBA{R: 255, G: 255, B: 255, A: 255})

	dst := frame.NewTexture(100, 10)
	prm := DefaultParams()
	prm.Correction.FeatherLeft = 100
	prm.Correction.BlendGamma = 1
	prm.Correction.BlendPower = 1
	pl.Render(dst, src, prm)

	for x := 0; x < 100; x++ {
		want := 255 * (float64(x) + 0.5) / 100
		got := float64(dst.RGBAAt(x, 5).R)
		if got < want-1 || got > want+1 {
			t.Fatalf("feathered pixel %d = %v, want %.1f +/-1", x, got, want)
		}
	}
}

func TestRenderBlackLevelFloor(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(50, 50)
	src.Fill(color.RGBA{R: 200, G: 200, B: 200, A: 255})

	dst := frame.NewTexture(50, 50)
	prm := DefaultParams()
	prm.Correction.FeatherLeft = 50
	prm.Correction.BlendGamma = 1
	prm.Correction.BlackLevel = 0.1
	pl.Render(dst, src, prm)

	// Even the darkest feathered pixel stays at or above the floor.
	if got := dst.RGBAAt(0, 25).R; got < 25 {
		t.Fatalf("black level floor violated: pixel = %d, want >= 25", got)
	}
}

func TestRenderIntensity(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(20, 20)
	src.Fill(color.RGBA{R: 200, G: 100, B: 50, A: 255})

	dst := frame.NewTexture(20, 20)
	prm := DefaultParams()
	prm.Intensity = 0.5
	pl.Render(dst, src, prm)

	got := dst.RGBAAt(10, 10)
	if got.R != 100 || got.G != 50 || got.B != 25 {
		t.Fatalf("half intensity = %v, want {100 50 25}", got)
	}
	if got.A != 255 {
		t.Fatalf("intensity touched alpha: %d", got.A)
	}
}

// Positive curvature magnifies: an edge pixel samples interior content.
func TestRenderCurvatureMagnifies(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(100, 100)
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			src.SetRGBA(x, y, color.RGBA{R: uint8(x * 255 / 99), A: 255})
		}
	}

	dst := frame.NewTexture(100, 100)
	prm := DefaultParams()
	prm.Correction.Curvature = 0.4
	pl.Render(dst, src, prm)

	// Left edge midpoint pulls its sample toward the center, so its
	// red value rises well above the source's left edge.
	srcEdge := src.RGBAAt(0, 50).R
	gotEdge := dst.RGBAAt(0, 50).R
	if gotEdge <= srcEdge+20 {
		t.Fatalf("curvature edge pixel = %d, want noticeably above %d", gotEdge, srcEdge)
	}
	// The exact center must not move.
	if got, want := dst.RGBAAt(50, 50).R, src.RGBAAt(50, 50).R; got != want {
		t.Fatalf("curvature moved the center pixel: %d, want %d", got, want)
	}
}

// Zero lens coefficients leave the pass untouched; non-zero ones do not.
func TestRenderLensIdentityAndEffect(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(80, 80)

	plain := frame.NewTexture(80, 80)
	pl.Render(plain, src, DefaultParams())

	prm := DefaultParams()
	prm.Correction.LensK1 = 0
	prm.Correction.LensK2 = 0
	same := frame.NewTexture(80, 80)
	pl.Render(same, src, prm)
	texturesEqual(t, same, plain, "zero lens coefficients")

	prm.Correction.LensK1 = -0.15
	bent := frame.NewTexture(80, 80)
	pl.Render(bent, src, prm)
	diff := false
	for i, b := range bent.Pix() {
		if b != plain.Pix()[i] {
			diff = true
			break
		}
	}
	if !diff {
		t.Fatal("non-zero lens coefficients produced an identical image")
	}
}

// Disable flags must bypass their stages even with parameters set.
func TestRenderEnableFlags(t *testing.T) {
	pl := newTestPipeline()
	src := gradientTexture(60, 60)

	plain := frame.NewTexture(60, 60)
	pl.Render(plain, src, DefaultParams())

	prm := DefaultParams()
	prm.Correction.WarpOffsets[WarpTopLeft] = Vec2{X: 15, Y: 15}
	prm.Correction.Curvature = 0.3
	prm.Correction.LensK1 = -0.2
	prm.Correction.FeatherLeft = 30
	prm.Correction.EnableWarp = false
	prm.Correction.EnableCurvature = false
	prm.Correction.EnableLens = false
	prm.Correction.EnableBlend = false

	bypassed := frame.NewTexture(60, 60)
	pl.Render(bypassed, src, prm)
	texturesEqual(t, bypassed, plain, "all stages disabled")
}

func TestRenderActiveCornerMarker(t *testing.T) {
	pl := newTestPipeline()
	src := frame.NewTexture(200, 200)
	src.Fill(color.RGBA{R: 30, G: 30, B: 30, A: 255})

	// Unset indicator: output equals a render without it.
	plain := frame.NewTexture(200, 200)
	pl.Render(plain, src, DefaultParams())

	prm := DefaultParams()
	prm.Correction.ActiveCorner = -1
	inert := frame.NewTexture(200, 200)
	pl.Render(inert, src, prm)
	texturesEqual(t, inert, plain, "unset corner indicator")

	// Active corner: marker pixels appear at the warped point.
	prm.Correction.ActiveCorner = int(WarpTopLeft)
	marked := frame.NewTexture(200, 200)
	pl.Render(marked, src, prm)
	if got := marked.RGBAAt(0, 0); got != markerColor {
		t.Fatalf("marker dot missing at active corner: %v", got)
	}
}

func BenchmarkRenderIdentity1080p(b *testing.B) {
	pl := newTestPipeline()
	src := frame.NewTexture(1920, 1080)
	dst := frame.NewTexture(1920, 1080)
	prm := DefaultParams()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pl.Render(dst, src, prm)
	}
}

func BenchmarkRenderWarped1080p(b *testing.B) {
	pl := newTestPipeline()
	src := frame.NewTexture(1920, 1080)
	dst := frame.NewTexture(1920, 1080)
	prm := DefaultParams()
	prm.Correction.WarpOffsets[WarpTopLeft] = Vec2{X: 25, Y: 18}
	prm.Correction.Curvature = 0.15
	prm.Correction.FeatherLeft = 96
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pl.Render(dst, src, prm)
	}
}
