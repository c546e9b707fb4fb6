package render

import "github.com/strandlight/beamcast/internal/frame"

// Transition blend primitives. Each writes a mix of two correction
// passes into dst; the sink decides which primitive matches its
// transition kind. All three expect same-shape textures and clamp t
// into [0,1].

// Dissolve crossfades a into b.
func Dissolve(dst, a, b *frame.Texture, t float64) {
	if !sameShape(dst, a, b) {
		return
	}
	t = clamp01(t)
	ap := a.Pix()
	bp := b.Pix()
	dp := dst.Pix()
	for i := range dp {
		dp[i] = uint8(float64(ap[i])*(1-t) + float64(bp[i])*t + 0.5)
	}
}

// Wipe reveals b with a vertical front moving left to right.
func Wipe(dst, a, b *frame.Texture, t float64) {
	if !sameShape(dst, a, b) {
		return
	}
	t = clamp01(t)
	w := dst.Width()
	h := dst.Height()
	stride := dst.Stride()
	edge := int(t * float64(w))

	ap := a.Pix()
	bp := b.Pix()
	dp := dst.Pix()
	for y := 0; y < h; y++ {
		row := y * stride
		split := row + edge*4
		end := row + w*4
		copy(dp[row:split], bp[row:split])
		copy(dp[split:end], ap[split:end])
	}
}

// Dip fades a down to black over the first half, then b up from black
// over the second half.
func Dip(dst, a, b *frame.Texture, t float64) {
	if !sameShape(dst, a, b) {
		return
	}
	t = clamp01(t)

	var src []uint8
	var level float64
	if t < 0.5 {
		src = a.Pix()
		level = 1 - 2*t
	} else {
		src = b.Pix()
		level = 2*t - 1
	}

	dp := dst.Pix()
	for i := 0; i < len(dp); i += 4 {
		dp[i] = uint8(float64(src[i])*level + 0.5)
		dp[i+1] = uint8(float64(src[i+1])*level + 0.5)
		dp[i+2] = uint8(float64(src[i+2])*level + 0.5)
		dp[i+3] = src[i+3]
	}
}

func sameShape(ts ...*frame.Texture) bool {
	if len(ts) == 0 || ts[0] == nil {
		return false
	}
	w := ts[0].Width()
	h := ts[0].Height()
	for _, t := range ts[1:] {
		if t == nil || t.Width() != w || t.Height() != h {
			return false
		}
	}
	return true
}
