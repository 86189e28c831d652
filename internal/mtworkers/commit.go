package mtworkers

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vtranser/captionstream/internal/history"
	"github.com/vtranser/captionstream/internal/mtengine"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/reliability"
)

// CommitJob is one segment queued for append-only translation.
type CommitJob struct {
	EnSeq   int64
	Segment string
}

// CommitWorker drains a bounded FIFO of CommitJobs, batching up to
// BatchSize entries per translation call.
type CommitWorker struct {
	queue      chan CommitJob
	batchSize  int
	translator mtengine.Provider
	out        chan<- any
	state      *sharedState
	metrics    *observability.Metrics
	log        zerolog.Logger
	disable    *reliability.DisableFlag

	sessionID string
	history   history.Store
}

// NewCommitWorker builds a CommitWorker bound to one session's outbound
// channel and shared Vietnamese-transcript state. historyStore may be nil,
// in which case committed text is not archived.
func NewCommitWorker(queueMax, batchSize int, translator mtengine.Provider, out chan<- any, state *sharedState, metrics *observability.Metrics, log zerolog.Logger, sessionID string, historyStore history.Store) *CommitWorker {
	return &CommitWorker{
		queue:      make(chan CommitJob, queueMax),
		batchSize:  batchSize,
		translator: translator,
		out:        out,
		state:      state,
		metrics:    metrics,
		log:        log,
		disable:    reliability.NewDisableFlag(500*time.Millisecond, 30*time.Second),
		sessionID:  sessionID,
		history:    historyStore,
	}
}

// Submit enqueues a commit job, non-blocking. Returns false if the queue
// is full, which the caller should count as a shed event rather than
// retry indefinitely.
func (w *CommitWorker) Submit(job CommitJob) bool {
	select {
	case w.queue <- job:
		return true
	default:
		if w.metrics != nil {
			w.metrics.QueueShed.WithLabelValues("commit_queue_full").Inc()
		}
		return false
	}
}

// Run drains the queue until ctx is cancelled, batching available jobs.
func (w *CommitWorker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-w.queue:
			if !ok {
				return
			}
			batch := []CommitJob{job}
		fill:
			for len(batch) < w.batchSize {
				select {
				case next, ok := <-w.queue:
					if !ok {
						break fill
					}
					batch = append(batch, next)
				default:
					break fill
				}
			}
			w.translateBatch(ctx, batch)
		}
	}
}

func (w *CommitWorker) translateBatch(ctx context.Context, batch []CommitJob) {
	if w.disable.Disabled() {
		w.emitError(batch)
		return
	}

	segments := make([]string, 0, len(batch))
	for _, j := range batch {
		segments = append(segments, j.Segment)
	}
	combined := strings.Join(segments, " ")

	translated, err := w.translator.Translate(ctx, combined, mtengine.QualityCommit)
	if err != nil {
		code := reliability.ClassifyMTError(err)
		if reliability.IsRetryableMTError(code) {
			w.disable.Trip()
		}
		if w.metrics != nil {
			w.metrics.MTErrors.WithLabelValues("commit").Inc()
		}
		w.log.Error().Err(err).Str("code", code).Msg("commit translation failed")
		w.emitError(batch)
		return
	}
	w.disable.Reset()

	full, seq := w.state.appendCommit(translated)
	_ = full
	enSeq := batch[len(batch)-1].EnSeq

	if w.history != nil {
		if err := w.history.Append(ctx, history.Record{SessionID: w.sessionID, Seq: seq, Text: translated}); err != nil {
			w.log.Error().Err(err).Msg("history append failed")
		}
	}

	msg := protocol.ViCommit{Type: protocol.TypeViCommit, Append: translated, Seq: seq, EnSeq: enSeq}
	select {
	case w.out <- msg:
		if w.metrics != nil {
			w.metrics.CommitsEmitted.Inc()
			w.metrics.CommitBatchSize.Observe(float64(len(batch)))
		}
	default:
		if w.metrics != nil {
			w.metrics.QueueShed.WithLabelValues("outbound_full").Inc()
		}
	}
}

func (w *CommitWorker) emitError(batch []CommitJob) {
	if w.metrics != nil {
		w.metrics.MTErrors.WithLabelValues("commit_disabled").Inc()
	}
	msg := protocol.ErrorMessage{Type: protocol.TypeError, Error: "commit translation unavailable", Code: protocol.CodeMTFailed}
	select {
	case w.out <- msg:
	default:
	}
}
