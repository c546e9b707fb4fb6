package frame

import "sync"

// defaultMaxIdle bounds how many released textures a pool keeps around.
const defaultMaxIdle = 8

// TexturePool recycles textures of one fixed shape so sinks do not
// allocate a full frame's worth of pixels on every tick. Acquire never
// blocks: on an empty free list it allocates fresh. Changing the shape
// invalidates everything the pool holds.
//
// The pool is the only resource shared across sinks and is safe for
// concurrent use.
type TexturePool struct {
	mu      sync.Mutex
	width   int
	height  int
	free    []*Texture
	maxIdle int

	hits   uint64
	misses uint64
}

// PoolStats is a point-in-time snapshot of pool behavior.
type PoolStats struct {
	Width  int
	Height int
	Idle   int
	Hits   uint64
	Misses uint64
}

// NewTexturePool creates a pool for textures of the given shape.
func NewTexturePool(width, height int) *TexturePool {
	return &TexturePool{
		width:   width,
		height:  height,
		maxIdle: defaultMaxIdle,
	}
}

// Acquire returns a texture of the requested shape. A shape different
// from the pool's current one discards the free list and re-keys the
// pool. Reused textures keep their previous contents; callers render
// over every pixel.
func (p *TexturePool) Acquire(width, height int) *Texture {
	if width <= 0 || height <= 0 {
		return nil
	}

	p.mu.Lock()
	if width != p.width || height != p.height {
		p.width = width
		p.height = height
		p.free = nil
	}
	if n := len(p.free); n > 0 {
		t := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.hits++
		p.mu.Unlock()
		return t
	}
	p.misses++
	p.mu.Unlock()

	return NewTexture(width, height)
}

// Release returns a texture to the pool. Textures whose shape no longer
// matches the pool's, and anything beyond the idle bound, are dropped
// for the garbage collector.
func (p *TexturePool) Release(t *Texture) {
	if t == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if t.width != p.width || t.height != p.height {
		return
	}
	if len(p.free) >= p.maxIdle {
		return
	}
	p.free = append(p.free, t)
}

// Resize re-keys the pool to a new shape, discarding all idle textures.
func (p *TexturePool) Resize(width, height int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.width = width
	p.height = height
	p.free = nil
}

// Stats returns a snapshot of the pool counters.
func (p *TexturePool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Width:  p.width,
		Height: p.height,
		Idle:   len(p.free),
		Hits:   p.hits,
		Misses: p.misses,
	}
}
