package mtworkers

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/vtranser/captionstream/internal/mtengine"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/reliability"
)

type draftJob struct {
	text  string
	reqID int64
}

// DraftWorker holds a single-slot, replaceable draft translation queue:
// new submissions overwrite whatever hasn't been sent yet. Each
// submission carries a monotonic req_id; the worker drops stale results
// whose req_id no longer matches the session's current epoch.
type DraftWorker struct {
	translator mtengine.Provider
	out        chan<- any
	state      *sharedState
	metrics    *observability.Metrics
	log        zerolog.Logger

	reqID atomic.Int64

	mu      sync.Mutex
	pending *draftJob
	wake    chan struct{}
}

// NewDraftWorker builds a DraftWorker. The shared state is stored on the
// worker; draft gating uses the worker's own req_id counter.
func NewDraftWorker(translator mtengine.Provider, out chan<- any, state *sharedState, metrics *observability.Metrics, log zerolog.Logger) *DraftWorker {
	return &DraftWorker{
		translator: translator,
		out:        out,
		state:      state,
		metrics:    metrics,
		log:        log,
		wake:       make(chan struct{}, 1),
	}
}

// Submit replaces the pending draft request and returns its req_id.
func (w *DraftWorker) Submit(text string) int64 {
	id := w.reqID.Add(1)
	w.mu.Lock()
	w.pending = &draftJob{text: text, reqID: id}
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return id
}

// InvalidateAndClear bumps the worker's req_id counter (invalidating any in-flight
// draft whose req_id predates it), drains the pending slot, and sends an
// immediate clear so the UI never shows a draft stale with respect to a
// just-landed commit.
func (w *DraftWorker) InvalidateAndClear() {
	w.reqID.Add(1)
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()

	msg := protocol.ViDraft{Type: protocol.TypeViDraft, Text: "", Seq: 0, EnSeq: 0, ReqID: w.reqID.Load()}
	select {
	case w.out <- msg:
	default:
	}
}

// Run processes submitted drafts until ctx is cancelled.
func (w *DraftWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.wake:
			w.mu.Lock()
			job := w.pending
			w.pending = nil
			w.mu.Unlock()
			if job == nil {
				continue
			}
			w.translate(ctx, job)
		}
	}
}

func (w *DraftWorker) translate(ctx context.Context, job *draftJob) {
	translated, err := w.translator.Translate(ctx, job.text, mtengine.QualityDraft)
	if err != nil {
		if w.metrics != nil {
			w.metrics.MTErrors.WithLabelValues("draft").Inc()
		}
		code := reliability.ClassifyMTError(err)
		if reliability.IsRetryableMTError(code) {
			// Transient: the next submission naturally supersedes this
			// one, so there is nothing to recover beyond letting it retry.
			w.log.Warn().Err(err).Str("code", code).Msg("draft translation failed, will retry on next submission")
		} else {
			w.log.Error().Err(err).Str("code", code).Msg("draft translation failed")
		}
		return
	}

	if job.reqID != w.reqID.Load() {
		// A newer submission (or a commit invalidation) superseded this
		// one while it was in flight; drop it.
		return
	}

	text := translated
	if garbageFilter(translated) {
		text = ""
	}

	msg := protocol.ViDraft{Type: protocol.TypeViDraft, Text: text, EnSeq: 0, ReqID: job.reqID}
	select {
	case w.out <- msg:
		if w.metrics != nil {
			w.metrics.DraftsEmitted.WithLabelValues("sent").Inc()
		}
	default:
		if w.metrics != nil {
			w.metrics.QueueShed.WithLabelValues("outbound_full").Inc()
		}
	}
}
