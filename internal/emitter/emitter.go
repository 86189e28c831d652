// Package emitter owns the single outbound writer per connection and
// enforces the PATCH_MAX_HZ rate ceiling: patches that arrive too soon
// are buffered last-writer-wins and flushed once the limiter allows,
// rather than sent immediately.
package emitter

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/stabilizer"
)

// Emitter serializes writes onto a single outbound channel, which the
// connection's own writer goroutine drains with conn.WriteJSON — mirroring
// the one-writer-per-socket pattern so producers never interleave frames.
type Emitter struct {
	out      chan<- any
	limiter  *rate.Limiter
	interval time.Duration
	metrics  *observability.Metrics

	mu      sync.Mutex
	pending *stabilizer.Patch
}

// New builds an Emitter that writes onto out and rate-limits patches to
// patchMaxHz. A non-positive patchMaxHz disables rate limiting.
func New(out chan<- any, patchMaxHz float64, metrics *observability.Metrics) *Emitter {
	interval := 50 * time.Millisecond
	limit := rate.Inf
	if patchMaxHz > 0 {
		interval = time.Duration(float64(time.Second) / patchMaxHz)
		limit = rate.Limit(patchMaxHz)
	}
	return &Emitter{
		out:      out,
		limiter:  rate.NewLimiter(limit, 1),
		interval: interval,
		metrics:  metrics,
	}
}

// SendPatch submits a patch for delivery. If the rate ceiling allows it,
// the patch is written to the outbound channel immediately; otherwise it
// replaces any previously buffered, not-yet-sent patch (last-writer-wins)
// and Run will flush it once the limiter permits.
func (e *Emitter) SendPatch(p stabilizer.Patch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limiter.Allow() {
		e.enqueue(p)
		return
	}
	e.pending = &p
}

// Run flushes any buffered patch once the rate ceiling allows it. It must
// run on its own goroutine for the lifetime of the connection.
func (e *Emitter) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.pending != nil && e.limiter.Allow() {
				p := *e.pending
				e.pending = nil
				e.enqueue(p)
			}
			e.mu.Unlock()
		}
	}
}

func (e *Emitter) enqueue(p stabilizer.Patch) {
	msg := protocol.Patch{
		Type:         protocol.TypePatch,
		Delete:       p.Delete,
		Insert:       p.Insert,
		Seq:          p.Seq,
		TMs:          p.TMs,
		Continuation: p.Continuation,
	}
	select {
	case e.out <- msg:
		if e.metrics != nil {
			e.metrics.PatchesEmitted.Inc()
		}
	default:
		if e.metrics != nil {
			e.metrics.QueueShed.WithLabelValues("outbound_full").Inc()
		}
	}
}

// SendStable delivers a stable snapshot unconditionally: stable snapshots
// are not subject to the patch rate ceiling.
func (e *Emitter) SendStable(s stabilizer.Stable) {
	msg := protocol.Stable{Type: protocol.TypeStable, Full: s.Full, Seq: s.Seq, TMs: s.TMs}
	select {
	case e.out <- msg:
		if e.metrics != nil {
			e.metrics.StableEmitted.Inc()
		}
	default:
		if e.metrics != nil {
			e.metrics.QueueShed.WithLabelValues("outbound_full").Inc()
		}
	}
}

// SendStatus delivers a periodic status update unconditionally.
func (e *Emitter) SendStatus(s protocol.Status) {
	select {
	case e.out <- s:
	default:
		if e.metrics != nil {
			e.metrics.QueueShed.WithLabelValues("outbound_full").Inc()
		}
	}
}
