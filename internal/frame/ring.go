package frame

import "sync"

// DefaultRingCapacity is the queue depth between the compositor and the
// output fan-out when the host does not configure one.
const DefaultRingCapacity = 5

// RingBuffer is a fixed-capacity frame queue for one producer and one
// consumer. Push never blocks: when the buffer is full the oldest frame
// is overwritten. PeekLatest is non-destructive, Pop drains in FIFO
// order.
type RingBuffer struct {
	mu       sync.Mutex
	frames   []*Frame
	readIdx  int
	writeIdx int
	count    int
	dropped  uint64
}

// NewRingBuffer creates a ring buffer with the given capacity.
// Capacities below 1 fall back to DefaultRingCapacity.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = DefaultRingCapacity
	}
	return &RingBuffer{frames: make([]*Frame, capacity)}
}

// Push appends f, overwriting the oldest frame when full.
func (r *RingBuffer) Push(f *Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames[r.writeIdx] = f
	r.writeIdx = (r.writeIdx + 1) % len(r.frames)
	if r.count == len(r.frames) {
		// Full: the slot just written was the oldest unread frame.
		r.readIdx = (r.readIdx + 1) % len(r.frames)
		r.dropped++
	} else {
		r.count++
	}
}

// PeekLatest returns the most recently pushed frame without removing it.
func (r *RingBuffer) PeekLatest() (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil, false
	}
	idx := (r.writeIdx + len(r.frames) - 1) % len(r.frames)
	return r.frames[idx], true
}

// Pop removes and returns the oldest frame.
func (r *RingBuffer) Pop() (*Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil, false
	}
	f := r.frames[r.readIdx]
	r.frames[r.readIdx] = nil
	r.readIdx = (r.readIdx + 1) % len(r.frames)
	r.count--
	return f, true
}

// Len returns the number of queued frames.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the buffer capacity.
func (r *RingBuffer) Cap() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Dropped returns how many frames were overwritten before being read.
func (r *RingBuffer) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Resize replaces the buffer with an empty one of the new capacity.
// Queued frames are discarded.
func (r *RingBuffer) Resize(capacity int) {
	if capacity < 1 {
		capacity = DefaultRingCapacity
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make([]*Frame, capacity)
	r.readIdx = 0
	r.writeIdx = 0
	r.count = 0
}

// Clear discards all queued frames, keeping the capacity.
func (r *RingBuffer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.frames {
		r.frames[i] = nil
	}
	r.readIdx = 0
	r.writeIdx = 0
	r.count = 0
}
