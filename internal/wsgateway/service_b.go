package wsgateway

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vtranser/captionstream/internal/config"
	"github.com/vtranser/captionstream/internal/history"
	"github.com/vtranser/captionstream/internal/logging"
	"github.com/vtranser/captionstream/internal/mtengine"
	"github.com/vtranser/captionstream/internal/mtworkers"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/segmenter"
)

// TranslatorGateway serves the Service B websocket endpoint: an upstream
// English transcript stream in, a committed+draft Vietnamese stream out.
// The wrapped translator is process-wide, so when MTSerialize is on every
// session sharing this gateway serializes behind the same mutex.
type TranslatorGateway struct {
	cfg        config.TranslatorConfig
	translator mtengine.Provider
	history    history.Store
	metrics    *observability.Metrics
	log        zerolog.Logger
	upgrader   websocket.Upgrader

	wg sync.WaitGroup

	connMu      sync.Mutex
	activeConns map[*websocket.Conn]struct{}
}

// NewTranslatorGateway builds a TranslatorGateway. translator is wrapped in
// mtengine.NewSerialized once, here, if cfg.MTSerialize is set — not per
// connection — so the mutex is actually shared across every session this
// gateway serves.
func NewTranslatorGateway(cfg config.TranslatorConfig, translator mtengine.Provider, historyStore history.Store, metrics *observability.Metrics, log zerolog.Logger) *TranslatorGateway {
	if cfg.MTSerialize {
		translator = mtengine.NewSerialized(translator)
	}
	return &TranslatorGateway{
		cfg:         cfg,
		translator:  translator,
		history:     historyStore,
		metrics:     metrics,
		log:         log,
		upgrader:    newUpgrader(cfg.AllowAnyOrigin),
		activeConns: make(map[*websocket.Conn]struct{}),
	}
}

// Shutdown forcibly closes every currently active connection.
// http.Server.Shutdown cannot see hijacked websocket connections, so
// without this a SIGTERM would wait indefinitely on open sessions.
func (g *TranslatorGateway) Shutdown() {
	g.connMu.Lock()
	conns := make([]*websocket.Conn, 0, len(g.activeConns))
	for c := range g.activeConns {
		conns = append(conns, c)
	}
	g.connMu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// Drain waits for in-flight connection handlers to finish their cleanup
// up to ctx's deadline.
func (g *TranslatorGateway) Drain(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (g *TranslatorGateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", g.handleHealth)
	r.Get("/readyz", g.handleHealth)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/translate/ws", g.handleSessionWS)
	return r
}

func (g *TranslatorGateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (g *TranslatorGateway) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	g.wg.Add(1)
	defer g.wg.Done()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	g.connMu.Lock()
	g.activeConns[conn] = struct{}{}
	g.connMu.Unlock()
	defer func() {
		g.connMu.Lock()
		delete(g.activeConns, conn)
		g.connMu.Unlock()
	}()

	sessionID := uuid.NewString()
	log := logging.Session(g.log, sessionID)
	g.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 256)
	state := mtworkers.NewSharedState()
	commitWorker := mtworkers.NewCommitWorker(g.cfg.CommitQueueMax, g.cfg.CommitBatchSize, g.translator, outbound, state, g.metrics, log, sessionID, g.history)
	draftWorker := mtworkers.NewDraftWorker(g.translator, outbound, state, g.metrics, log)
	seg := segmenter.New(segmenter.Config{
		ReanchorMaxTailChars:    g.cfg.ReanchorMaxTailChars,
		HardRewriteTailChars:    g.cfg.HardRewriteTailChars,
		PunctStableCount:        g.cfg.PunctStableCount,
		PunctMaxWaitMS:          g.cfg.PunctMaxWaitMS,
		SegPauseMS:              g.cfg.SegPauseMS,
		SegMinWords:             g.cfg.SegMinWords,
		SegMaxWords:             g.cfg.SegMaxWords,
		SegMaxChars:             g.cfg.SegMaxChars,
		BeatStableCount:         g.cfg.BeatStableCount,
		TranslateDelayWords:     g.cfg.TranslateDelayWords,
		TranslateDelayReleaseMS: g.cfg.TranslateDelayRelease,
	})

	var enSeq atomic.Int64

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { commitWorker.Run(gctx); return nil })
	grp.Go(func() error { draftWorker.Run(gctx); return nil })
	grp.Go(func() error { g.writerLoop(gctx, conn, outbound); return nil })
	grp.Go(func() error { g.releaseTicker(gctx, seg, commitWorker, draftWorker, &enSeq); return nil })

	g.readLoop(ctx, conn, seg, commitWorker, draftWorker, &enSeq, sessionID, log)

	cancel()
	_ = grp.Wait()
	g.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

// dispatch submits newly committed segments and the current draft tail to
// the two workers. Landing a commit always invalidates and clears any
// pending draft, since it predates the commit boundary; an empty draft
// tail (nothing left to preview) also clears.
func (g *TranslatorGateway) dispatch(commits []segmenter.CommitSegment, draft string, enSeq *atomic.Int64, commitWorker *mtworkers.CommitWorker, draftWorker *mtworkers.DraftWorker) {
	for _, c := range commits {
		n := enSeq.Add(1)
		commitWorker.Submit(mtworkers.CommitJob{EnSeq: n, Segment: c.Text})
	}
	if len(commits) > 0 {
		draftWorker.InvalidateAndClear()
	}
	if draft != "" {
		draftWorker.Submit(draft)
	} else if len(commits) == 0 {
		draftWorker.InvalidateAndClear()
	}
}

func (g *TranslatorGateway) readLoop(ctx context.Context, conn *websocket.Conn, seg *segmenter.Segmenter, commitWorker *mtworkers.CommitWorker, draftWorker *mtworkers.DraftWorker, enSeq *atomic.Int64, sessionID string, log zerolog.Logger) {
	conn.SetReadLimit(2 << 20)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, perr := protocol.ParseUpstreamMessage(data)
		if perr != nil {
			if g.metrics != nil {
				g.metrics.ParseErrors.WithLabelValues("protocol").Inc()
			}
			continue
		}

		if msg.Kind == protocol.KindReset && g.cfg.ResetClearsHistory && g.history != nil {
			if err := g.history.Reset(ctx, sessionID); err != nil {
				log.Error().Err(err).Msg("history reset failed")
			}
		}

		commits, draft := seg.Ingest(msg)
		g.dispatch(commits, draft, enSeq, commitWorker, draftWorker)
	}
}

// releaseTicker periodically re-checks the segmenter's translate-lag tail:
// after TranslateDelayReleaseMS of upstream silence, any words the lagged
// view was withholding are flushed as if the lag were zero.
func (g *TranslatorGateway) releaseTicker(ctx context.Context, seg *segmenter.Segmenter, commitWorker *mtworkers.CommitWorker, draftWorker *mtworkers.DraftWorker, enSeq *atomic.Int64) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			commits, draft := seg.CheckRelease(now)
			if len(commits) == 0 && draft == "" {
				continue
			}
			g.dispatch(commits, draft, enSeq, commitWorker, draftWorker)
		}
	}
}

// writerLoop is the single goroutine permitted to write to conn. It mirrors
// every ViCommit into a legacy vi-delta ViDeltaCompat message when
// CompatVIDelta is on, for consumers still expecting the old
// type name.
func (g *TranslatorGateway) writerLoop(ctx context.Context, conn *websocket.Conn, outbound <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
			if mt, ok := messageTypeOf(msg); ok && g.metrics != nil {
				g.metrics.WSMessages.WithLabelValues("outbound", string(mt)).Inc()
			}
			if g.cfg.CompatVIDelta {
				if vc, ok := msg.(protocol.ViCommit); ok {
					compat := protocol.NewViDeltaCompat(vc)
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					_ = conn.WriteJSON(compat)
				}
			}
		}
	}
}
