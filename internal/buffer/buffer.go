// Package buffer sits between the telemetry stream and durable storage.
// It dedups updates per entity (latest-wins) and flushes them on a fixed
// interval plus once more on shutdown, giving at-least-once persistence
// with loss bounded to one flush window.
package buffer

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/fleetwatch/internal/fleet"
	"github.com/banshee-data/fleetwatch/internal/monitoring"
	"github.com/banshee-data/fleetwatch/internal/timeutil"
)

// DefaultFlushInterval is how often pending updates are persisted.
const DefaultFlushInterval = 30 * time.Second

// Sink persists a drained batch. The db store implements this; flushing a
// telemetry snapshot for an identity the store does not know yet is a
// defined no-op there, not an error.
type Sink interface {
	MergeTelemetryBatch(batch fleet.Batch) error
}

// UpdateBuffer holds at most one pending TelemetryState per entity between
// flushes. Queueing and flushing never surface errors to the caller:
// a failed flush re-merges the drained entries and waits for the next
// interval.
type UpdateBuffer struct {
	sink     Sink
	clock    timeutil.Clock
	interval time.Duration

	mu      sync.Mutex
	pending fleet.Batch
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates an UpdateBuffer flushing to sink every interval. A nil clock
// defaults to the real clock; a non-positive interval defaults to
// DefaultFlushInterval.
func New(sink Sink, clock timeutil.Clock, interval time.Duration) *UpdateBuffer {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &UpdateBuffer{
		sink:     sink,
		clock:    clock,
		interval: interval,
		pending:  make(fleet.Batch),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// QueueStates merges a batch into the pending map, latest-wins per entity.
func (b *UpdateBuffer) QueueStates(batch fleet.Batch) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, state := range batch {
		b.pending[id] = state
	}
}

// Pending returns how many entities currently await a flush.
func (b *UpdateBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Flush atomically drains the pending map and writes the batch to the
// sink. On failure the drained entries are merged back without
// overwriting anything queued meanwhile, and the error is logged, never
// returned: data loss stays bounded to the flush interval.
func (b *UpdateBuffer) Flush() {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return
	}
	drained := b.pending
	b.pending = make(fleet.Batch)
	b.mu.Unlock()

	if err := b.sink.MergeTelemetryBatch(drained); err != nil {
		monitoring.Logf("buffer: flush of %d entities failed, re-queueing: %v", len(drained), err)
		b.mu.Lock()
		for id, state := range drained {
			if _, newer := b.pending[id]; !newer {
				b.pending[id] = state
			}
		}
		b.mu.Unlock()
		return
	}
	monitoring.Logf("buffer: flushed %d entities", len(drained))
}

// Run starts the periodic flush loop. It blocks until the context is
// cancelled or Stop is called, performing one final flush on the way out
// so a delivered termination signal loses at most in-flight data.
func (b *UpdateBuffer) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	defer func() {
		close(b.doneCh)
		b.mu.Lock()
		b.running = false
		b.mu.Unlock()
	}()

	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	monitoring.Logf("buffer: started, flush interval=%v", b.interval)

	for {
		select {
		case <-ctx.Done():
			b.Flush()
			return nil
		case <-b.stopCh:
			b.Flush()
			return nil
		case <-ticker.C():
			b.Flush()
		}
	}
}

// Stop requests the flush loop to exit and waits for it, triggering the
// shutdown flush. Safe to call multiple times, including before Run.
func (b *UpdateBuffer) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	select {
	case <-b.stopCh:
	default:
		close(b.stopCh)
	}
	b.mu.Unlock()
	<-b.doneCh
}
