// Package render implements the per-pixel correction pass every sink
// applies before delivering a frame: 8-point warp, spherical curvature,
// lens distortion, crop sampling, edge feathering and intensity, plus
// the blend primitives used while a transition is in flight.
package render

// Vec2 is a 2D point or offset.
type Vec2 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// WarpPoint indexes one of the eight control points of the warp mesh.
type WarpPoint int

const (
	WarpTopLeft WarpPoint = iota
	WarpTopMiddle
	WarpTopRight
	WarpMiddleLeft
	WarpMiddleRight
	WarpBottomLeft
	WarpBottomMiddle
	WarpBottomRight

	// WarpPointCount is the number of warp control points.
	WarpPointCount
)

// String returns the UI name of a warp point.
func (p WarpPoint) String() string {
	switch p {
	case WarpTopLeft:
		return "top-left"
	case WarpTopMiddle:
		return "top-middle"
	case WarpTopRight:
		return "top-right"
	case WarpMiddleLeft:
		return "middle-left"
	case WarpMiddleRight:
		return "middle-right"
	case WarpBottomLeft:
		return "bottom-left"
	case WarpBottomMiddle:
		return "bottom-middle"
	case WarpBottomRight:
		return "bottom-right"
	default:
		return "none"
	}
}

// nominal returns the point's undistorted position in the unit square.
func (p WarpPoint) nominal() Vec2 {
	switch p {
	case WarpTopLeft:
		return Vec2{0, 0}
	case WarpTopMiddle:
		return Vec2{0.5, 0}
	case WarpTopRight:
		return Vec2{1, 0}
	case WarpMiddleLeft:
		return Vec2{0, 0.5}
	case WarpMiddleRight:
		return Vec2{1, 0.5}
	case WarpBottomLeft:
		return Vec2{0, 1}
	case WarpBottomMiddle:
		return Vec2{0.5, 1}
	case WarpBottomRight:
		return Vec2{1, 1}
	default:
		return Vec2{}
	}
}

// CropRegion is the normalized sub-rectangle of the source a sink
// samples from.
type CropRegion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// FullCrop covers the whole source.
func FullCrop() CropRegion {
	return CropRegion{X: 0, Y: 0, W: 1, H: 1}
}

// Correction bundles every per-output geometry and blend parameter.
// Feather widths and warp offsets are in output pixels; everything else
// is normalized. The enable flags gate whole pipeline stages so an
// operator can switch a stage off without losing its values.
type Correction struct {
	FeatherLeft   float64 `json:"feather_left" yaml:"feather_left"`
	FeatherRight  float64 `json:"feather_right" yaml:"feather_right"`
	FeatherTop    float64 `json:"feather_top" yaml:"feather_top"`
	FeatherBottom float64 `json:"feather_bottom" yaml:"feather_bottom"`

	BlendGamma float64 `json:"blend_gamma" yaml:"blend_gamma"`
	BlendPower float64 `json:"blend_power" yaml:"blend_power"`
	BlackLevel float64 `json:"black_level" yaml:"black_level"`

	GammaR float64 `json:"gamma_r" yaml:"gamma_r"`
	GammaG float64 `json:"gamma_g" yaml:"gamma_g"`
	GammaB float64 `json:"gamma_b" yaml:"gamma_b"`

	WarpOffsets [WarpPointCount]Vec2 `json:"warp_offsets" yaml:"warp_offsets"`
	Curvature   float64              `json:"curvature" yaml:"curvature"`

	LensK1     float64 `json:"lens_k1" yaml:"lens_k1"`
	LensK2     float64 `json:"lens_k2" yaml:"lens_k2"`
	LensCenter Vec2    `json:"lens_center" yaml:"lens_center"`

	// ActiveCorner selects the warp point highlighted by the diagnostic
	// marker; -1 disables it.
	ActiveCorner int `json:"active_corner" yaml:"active_corner"`

	EnableBlend     bool `json:"enable_blend" yaml:"enable_blend"`
	EnableWarp      bool `json:"enable_warp" yaml:"enable_warp"`
	EnableLens      bool `json:"enable_lens" yaml:"enable_lens"`
	EnableCurvature bool `json:"enable_curvature" yaml:"enable_curvature"`
}

// DefaultCorrection returns the neutral parameter set: every stage
// enabled but configured to the identity.
func DefaultCorrection() Correction {
	return Correction{
		BlendGamma:      2.2,
		BlendPower:      1.0,
		GammaR:          1.0,
		GammaG:          1.0,
		GammaB:          1.0,
		LensCenter:      Vec2{X: 0.5, Y: 0.5},
		ActiveCorner:    -1,
		EnableBlend:     true,
		EnableWarp:      true,
		EnableLens:      true,
		EnableCurvature: true,
	}
}

// warpIdentity reports whether the warp stage would not move a single
// sample: all offsets zero and no curvature.
func (c *Correction) warpIdentity() bool {
	for _, o := range c.WarpOffsets {
		if o.X != 0 || o.Y != 0 {
			return false
		}
	}
	return c.Curvature == 0
}

// lensIdentity reports whether the lens stage is a no-op.
func (c *Correction) lensIdentity() bool {
	return c.LensK1 == 0 && c.LensK2 == 0
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
