package render

import "math"

// warpTolerance is how far outside [0,1] an inverse-bilinear root may
// fall and still count as inside its quadrant. It papers over float
// error on quadrant seams.
const warpTolerance = 0.01

// warpGrid is the distorted 3x3 control mesh in destination space,
// indexed [row][col]. Rows run top to bottom, columns left to right.
type warpGrid [3][3]Vec2

// buildGrid places the eight control points at nominal+offset (offsets
// arrive in output pixels and are normalized here) and derives the
// center point: the average of the four edge midpoints, pushed away
// from (or pulled toward) the ideal center by curvature*0.5.
func buildGrid(c *Correction, outW, outH int) warpGrid {
	w := float64(outW)
	h := float64(outH)
	at := func(p WarpPoint) Vec2 {
		n := p.nominal()
		o := c.WarpOffsets[p]
		return Vec2{X: n.X + o.X/w, Y: n.Y + o.Y/h}
	}

	var g warpGrid
	g[0][0] = at(WarpTopLeft)
	g[0][1] = at(WarpTopMiddle)
	g[0][2] = at(WarpTopRight)
	g[1][0] = at(WarpMiddleLeft)
	g[1][2] = at(WarpMiddleRight)
	g[2][0] = at(WarpBottomLeft)
	g[2][1] = at(WarpBottomMiddle)
	g[2][2] = at(WarpBottomRight)

	mid := Vec2{
		X: (g[0][1].X + g[1][0].X + g[1][2].X + g[2][1].X) / 4,
		Y: (g[0][1].Y + g[1][0].Y + g[1][2].Y + g[2][1].Y) / 4,
	}
	scale := 1 + 0.5*c.Curvature
	g[1][1] = Vec2{
		X: 0.5 + (mid.X-0.5)*scale,
		Y: 0.5 + (mid.Y-0.5)*scale,
	}
	return g
}

func cross(a, b Vec2) float64 {
	return a.X*b.Y - a.Y*b.X
}

// invBilinear solves p = (1-u)(1-v)a + u(1-v)b + (1-u)v c + uv d for
// (u,v). a/b are the top corners, c/d the bottom corners. The solve is
// a closed-form quadratic in u; only roots within warpTolerance of
// [0,1] are accepted.
func invBilinear(p, a, b, c, d Vec2) (float64, float64, bool) {
	e := Vec2{X: b.X - a.X, Y: b.Y - a.Y}
	f := Vec2{X: c.X - a.X, Y: c.Y - a.Y}
	g := Vec2{X: a.X - b.X - c.X + d.X, Y: a.Y - b.Y - c.Y + d.Y}
	h := Vec2{X: p.X - a.X, Y: p.Y - a.Y}

	k2 := cross(g, e)
	k1 := cross(h, g) - cross(e, f)
	k0 := cross(h, f)

	const eps = 1e-12
	var u float64
	if math.Abs(k2) < eps {
		// Parallelogram: the quadratic degenerates to a linear solve.
		if math.Abs(k1) < eps {
			return 0, 0, false
		}
		u = -k0 / k1
	} else {
		disc := k1*k1 - 4*k2*k0
		if disc < 0 {
			return 0, 0, false
		}
		sq := math.Sqrt(disc)
		u = (-k1 + sq) / (2 * k2)
		if u < -warpTolerance || u > 1+warpTolerance {
			u = (-k1 - sq) / (2 * k2)
		}
	}
	if u < -warpTolerance || u > 1+warpTolerance {
		return 0, 0, false
	}

	denX := f.X + u*g.X
	denY := f.Y + u*g.Y
	var v float64
	if math.Abs(denX) > math.Abs(denY) {
		if math.Abs(denX) < eps {
			return 0, 0, false
		}
		v = (h.X - u*e.X) / denX
	} else {
		if math.Abs(denY) < eps {
			return 0, 0, false
		}
		v = (h.Y - u*e.Y) / denY
	}
	if v < -warpTolerance || v > 1+warpTolerance {
		return 0, 0, false
	}
	return u, v, true
}

// locate finds the destination point p inside the warped mesh and
// returns its grid-space coordinate in [0,1]^2. The second return is
// false when no quadrant contains p, meaning p lies outside the warped
// region.
func (g *warpGrid) locate(p Vec2) (Vec2, bool) {
	for qy := 0; qy < 2; qy++ {
		for qx := 0; qx < 2; qx++ {
			u, v, ok := invBilinear(p,
				g[qy][qx], g[qy][qx+1],
				g[qy+1][qx], g[qy+1][qx+1])
			if ok {
				return Vec2{
					X: (float64(qx) + u) / 2,
					Y: (float64(qy) + v) / 2,
				}, true
			}
		}
	}
	return Vec2{}, false
}

// warpSource maps a destination point to the coordinate it samples
// from. The control points express where content should move to, so
// the sampling point is p displaced by the mesh's local offset at p:
// locate() yields the undistorted grid position g, and p-g is exactly
// the interpolated control offset there.
func (g *warpGrid) warpSource(p Vec2) (Vec2, bool) {
	loc, ok := g.locate(p)
	if !ok {
		return Vec2{}, false
	}
	return Vec2{X: 2*p.X - loc.X, Y: 2*p.Y - loc.Y}, true
}

// radialRemap applies the Brown-Conrady style distortion both the
// curvature and lens stages use: r is normalized so 0.5 in coordinate
// space (image center to edge midpoint) maps to r=1.
func radialRemap(p, center Vec2, k1, k2 float64) Vec2 {
	dx := p.X - center.X
	dy := p.Y - center.Y
	r2 := (dx*dx + dy*dy) / 0.25
	d := 1 + k1*r2 + k2*r2*r2
	return Vec2{X: center.X + dx*d, Y: center.Y + dy*d}
}
