package platform

import (
	"sync"

	"github.com/strandlight/beamcast/internal/logger"
)

// ReleaseQueue collects teardown work that must not run while a frame
// may still be in flight. Some windowing stacks fault when a surface
// is destroyed synchronously during shutdown, so sinks park the final
// destruction here and the process drains the queue at exit, after
// every output has stopped.
type ReleaseQueue struct {
	mu      sync.Mutex
	pending []release
}

type release struct {
	name string
	fn   func()
}

// NewReleaseQueue returns an empty queue. Most callers use the
// process-wide Releases instead.
func NewReleaseQueue() *ReleaseQueue {
	return &ReleaseQueue{}
}

// Defer parks fn until the next Drain. The name identifies the
// resource in logs.
func (q *ReleaseQueue) Defer(name string, fn func()) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	q.pending = append(q.pending, release{name: name, fn: fn})
	q.mu.Unlock()
	logger.WithComponent("platform").Debug().Str("resource", name).Msg("Release deferred")
}

// Drain runs all parked releases in the order they were deferred and
// clears the queue. Work deferred while Drain runs is picked up by the
// next Drain.
func (q *ReleaseQueue) Drain() {
	q.mu.Lock()
	work := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(work) == 0 {
		return
	}
	log := logger.WithComponent("platform")
	log.Info().Int("count", len(work)).Msg("Draining deferred releases")
	for _, r := range work {
		log.Debug().Str("resource", r.name).Msg("Releasing")
		r.fn()
	}
}

// Len reports how many releases are currently parked.
func (q *ReleaseQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Releases is the process-wide queue, drained once at process exit.
var Releases = NewReleaseQueue()
