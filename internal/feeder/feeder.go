// Package feeder implements the persistent background pacer: it drains
// the ingress queue, resamples to 16 kHz, feeds the STT recorder at
// real-time pace, sheds backlog, and tracks the end-to-end latency
// watermark.
package feeder

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vtranser/captionstream/internal/ingress"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/resample"
	"github.com/vtranser/captionstream/internal/sttengine"
)

// pendingSegment tracks (sample_count, enqueue_timestamp) in FIFO order so
// the feeder can compute fed_enq_watermark as it consumes samples.
type pendingSegment struct {
	sampleCount int
	enqueuedAt  time.Time
}

// Config carries the feeder's tunables.
type Config struct {
	FrameMS        int
	MaxBufMS       int
	DropBufToMS    int
	TailSilenceSec float64
	TargetPeak     float64
	MaxGain        float64
}

// Feeder drains one session's ingress queue into its STT recorder at
// real-time pace.
type Feeder struct {
	cfg      Config
	queue    *ingress.Queue
	recorder sttengine.Recorder
	metrics  *observability.Metrics
	log      zerolog.Logger
	nowFn    func() time.Time
	sleepFn  func(time.Duration)

	buf      []float32
	pending  []pendingSegment
	watermark time.Time
}

// New builds a Feeder bound to one session's queue and recorder.
func New(cfg Config, q *ingress.Queue, rec sttengine.Recorder, metrics *observability.Metrics, log zerolog.Logger) *Feeder {
	return &Feeder{
		cfg:      cfg,
		queue:    q,
		recorder: rec,
		metrics:  metrics,
		log:      log,
		nowFn:    time.Now,
		sleepFn:  time.Sleep,
	}
}

// hop returns the frame size in samples at 16 kHz.
func (f *Feeder) hop() int {
	return resample.OutputSampleRate * f.cfg.FrameMS / 1000
}

// Watermark returns the fed_enq_watermark timestamp used for end-to-end
// latency computation by the stabilizer, or the zero time if nothing has
// been fed yet.
func (f *Feeder) Watermark() time.Time {
	return f.watermark
}

// Run drains the queue until ctx is cancelled or an EOS sentinel is
// processed. It is meant to run on its own goroutine, one per session.
func (f *Feeder) Run(ctx context.Context) {
	playhead := f.nowFn()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, isEOS, ok := f.queue.Pop()
		if !ok {
			f.sleepFn(2 * time.Millisecond)
			continue
		}
		if isEOS {
			f.drainAndFeed(&playhead)
			f.feedTailSilence(&playhead)
			return
		}

		samples := resample.Resample(resample.BytesToFloat32(item.Buffer, item.Dtype), item.SourceRate)
		f.buf = append(f.buf, samples...)
		f.pending = append(f.pending, pendingSegment{sampleCount: len(samples), enqueuedAt: item.EnqueuedAt})
		f.shedBacklog()
		f.drainFrames(ctx, &playhead)
	}
}

// shedBacklog drops oldest samples (and their matching pending segments)
// once the internal buffer exceeds MAX_BUF_MS at 16 kHz, down to
// DROP_BUF_TO_MS.
func (f *Feeder) shedBacklog() {
	maxSamples := resample.OutputSampleRate * f.cfg.MaxBufMS / 1000
	if len(f.buf) <= maxSamples {
		return
	}
	targetSamples := resample.OutputSampleRate * f.cfg.DropBufToMS / 1000
	drop := len(f.buf) - targetSamples
	if drop < 0 {
		drop = 0
	}
	f.buf = f.buf[drop:]
	f.consumePending(drop)
	if f.metrics != nil {
		f.metrics.QueueShed.WithLabelValues("feeder_backlog").Inc()
	}
}

// drainFrames feeds every complete hop-sized frame currently in the
// buffer, pacing each to real time.
func (f *Feeder) drainFrames(ctx context.Context, playhead *time.Time) {
	hop := f.hop()
	if hop <= 0 {
		return
	}
	for len(f.buf) >= hop {
		frame := f.buf[:hop]
		f.buf = f.buf[hop:]
		f.consumePending(hop)
		f.pace(playhead, hop)

		agc := resample.AGC(append([]float32(nil), frame...), f.cfg.TargetPeak, f.cfg.MaxGain)
		pcm := resample.Float32ToPCM16LE(agc)
		if err := f.recorder.Feed(ctx, pcm); err != nil {
			f.log.Error().Err(err).Msg("recorder feed failed")
		}
	}
}

// drainAndFeed flushes every remaining complete frame plus a final partial
// frame (zero-padded) on EOS.
func (f *Feeder) drainAndFeed(playhead *time.Time) {
	f.drainFrames(context.Background(), playhead)
	if len(f.buf) == 0 {
		return
	}
	hop := f.hop()
	frame := make([]float32, hop)
	copy(frame, f.buf)
	f.consumePending(len(f.buf))
	f.buf = nil
	f.pace(playhead, hop)

	agc := resample.AGC(frame, f.cfg.TargetPeak, f.cfg.MaxGain)
	pcm := resample.Float32ToPCM16LE(agc)
	_ = f.recorder.Feed(context.Background(), pcm)
}

// feedTailSilence feeds TAIL_SILENCE_SEC of zero-valued frames to flush
// the recorder's VAD before the feeder exits.
func (f *Feeder) feedTailSilence(playhead *time.Time) {
	hop := f.hop()
	if hop <= 0 {
		return
	}
	total := int(f.cfg.TailSilenceSec * float64(resample.OutputSampleRate))
	silence := make([]float32, hop)
	for fed := 0; fed < total; fed += hop {
		f.pace(playhead, hop)
		pcm := resample.Float32ToPCM16LE(silence)
		_ = f.recorder.Feed(context.Background(), pcm)
	}
	_ = f.recorder.Close()
}

// pace advances the virtual playhead by hop/sample_rate seconds; if the
// wallclock is already ahead no sleep happens, otherwise the feeder sleeps
// until caught up. This is the feeder's real-time pacing guarantee.
func (f *Feeder) pace(playhead *time.Time, hop int) {
	step := time.Duration(float64(hop) / float64(resample.OutputSampleRate) * float64(time.Second))
	*playhead = playhead.Add(step)
	if d := playhead.Sub(f.nowFn()); d > 0 {
		f.sleepFn(d)
	}
}

// consumePending advances the PendingSegment FIFO by n consumed samples,
// updating fed_enq_watermark to the enqueue time of the most-recently
// consumed segment.
func (f *Feeder) consumePending(n int) {
	for n > 0 && len(f.pending) > 0 {
		head := &f.pending[0]
		if head.sampleCount > n {
			head.sampleCount -= n
			f.watermark = head.enqueuedAt
			n = 0
			break
		}
		n -= head.sampleCount
		f.watermark = head.enqueuedAt
		f.pending = f.pending[1:]
	}
}

// StatusMessage builds a periodic FEED status update for the client.
func (f *Feeder) StatusMessage(uie2eMsLast float64) protocol.Status {
	bufMS := float64(len(f.buf)) * 1000 / float64(resample.OutputSampleRate)
	return protocol.Status{
		Type:  protocol.TypeStatus,
		Stage: "FEED",
		Detail: protocol.StatusDetail{
			Queue:       f.queue.Depth(),
			BytesInQueue: f.queue.Bytes(),
			BufMS:       bufMS,
			UIE2EMsLast: uie2eMsLast,
		},
	}
}
