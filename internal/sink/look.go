package sink

import (
	"github.com/strandlight/beamcast/internal/frame"
	"github.com/strandlight/beamcast/internal/render"
)

// RenderLook draws the snapshot's look from src into dst. Outside a
// transition that is a single correction pass; mid-transition both the
// live and the pending look are rendered and mixed with the kind's
// blend primitive at the snapshot's progress.
func RenderLook(p *render.Pipeline, dst, src *frame.Texture, sn Snapshot) {
	if !sn.Blending {
		p.Render(dst, src, sn.Current)
		return
	}

	pool := p.Pool()
	a := pool.Acquire(dst.Width(), dst.Height())
	b := pool.Acquire(dst.Width(), dst.Height())
	if a == nil || b == nil {
		if a != nil {
			pool.Release(a)
		}
		if b != nil {
			pool.Release(b)
		}
		p.Render(dst, src, sn.Current)
		return
	}

	p.Render(a, src, sn.Current)
	p.Render(b, src, sn.Pending)
	switch sn.Kind {
	case Dissolve:
		render.Dissolve(dst, a, b, sn.Progress)
	case Wipe:
		render.Wipe(dst, a, b, sn.Progress)
	case Dip:
		render.Dip(dst, a, b, sn.Progress)
	default:
		dst.CopyFrom(a)
	}
	pool.Release(a)
	pool.Release(b)
}
