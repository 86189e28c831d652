package wsgateway

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vtranser/captionstream/internal/admission"
	"github.com/vtranser/captionstream/internal/auth"
	"github.com/vtranser/captionstream/internal/config"
	"github.com/vtranser/captionstream/internal/emitter"
	"github.com/vtranser/captionstream/internal/feeder"
	"github.com/vtranser/captionstream/internal/history"
	"github.com/vtranser/captionstream/internal/ingress"
	"github.com/vtranser/captionstream/internal/logging"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/protocol"
	"github.com/vtranser/captionstream/internal/stabilizer"
	"github.com/vtranser/captionstream/internal/sttengine"
	"github.com/vtranser/captionstream/internal/sttsession"
)

// STTGateway serves Service A: one websocket endpoint, gated by a
// process-wide admission slot and optional JWT auth, driving the
// ingress/feeder/stabilizer/emitter pipeline per connection.
type STTGateway struct {
	cfg      config.STTConfig
	slot     *admission.Slot
	sessions *sttsession.Manager
	stt      sttengine.Provider
	verifier *auth.Verifier
	history  history.Store
	metrics  *observability.Metrics
	log      zerolog.Logger
	upgrader websocket.Upgrader

	wg sync.WaitGroup

	connMu     sync.Mutex
	activeConn *websocket.Conn
}

// NewSTTGateway builds an STTGateway. verifier may be nil when
// cfg.AuthRequired is false.
func NewSTTGateway(cfg config.STTConfig, slot *admission.Slot, sessions *sttsession.Manager, stt sttengine.Provider, verifier *auth.Verifier, historyStore history.Store, metrics *observability.Metrics, log zerolog.Logger) *STTGateway {
	return &STTGateway{
		cfg:      cfg,
		slot:     slot,
		sessions: sessions,
		stt:      stt,
		verifier: verifier,
		history:  historyStore,
		metrics:  metrics,
		log:      logging.Component(log, "wsgateway_a"),
		upgrader: newUpgrader(cfg.AllowAnyOrigin),
	}
}

// Router builds the HTTP route table for Service A.
func (g *STTGateway) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", g.handleHealth)
	r.Get("/readyz", g.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})
	r.Get("/v1/stt/ws", g.handleSessionWS)
	return r
}

func (g *STTGateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": g.slot.Occupied()})
}

func (g *STTGateway) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// connState holds the per-connection mutable pieces the inbound reader,
// the hypothesis/stable consumer, and the status ticker all touch.
type connState struct {
	session   *sttsession.Session
	authed    atomic.Bool
	lastE2EMs atomic.Int64 // milliseconds since the last hypothesis's fed_enq_watermark
	dtype     atomic.Value // sttsession.Dtype
	srcSR     atomic.Int64
	started   atomic.Bool
	queue     *ingress.Queue
}

// Shutdown forcibly closes the currently active connection, if any.
// http.Server.Shutdown cannot see hijacked websocket connections, so
// without this a SIGTERM would wait indefinitely on whatever session
// happens to hold the admission slot.
func (g *STTGateway) Shutdown() {
	g.connMu.Lock()
	conn := g.activeConn
	g.connMu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// Drain waits for the in-flight connection handler (if any) to finish its
// cleanup — flushing history, releasing the admission slot — up to ctx's
// deadline.
func (g *STTGateway) Drain(ctx context.Context) {
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

func (g *STTGateway) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	g.wg.Add(1)
	defer g.wg.Done()

	sess := g.sessions.Create()
	log := logging.Session(g.log, sess.ID)

	if !g.slot.Acquire(sess.ID) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.metrics.SessionEvents.WithLabelValues("busy_rejected").Inc()
		writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "another session is active", Code: protocol.CodeBusy}, 1013)
		_ = conn.Close()
		_, _ = g.sessions.End(sess.ID)
		return
	}
	released := make(chan struct{})
	release := func() {
		select {
		case <-released:
			return
		default:
			close(released)
		}
		g.slot.Release(sess.ID)
		_, _ = g.sessions.End(sess.ID)
		g.metrics.ActiveSessions.Set(0)
	}
	defer release()

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	g.connMu.Lock()
	g.activeConn = conn
	g.connMu.Unlock()
	defer func() {
		g.connMu.Lock()
		if g.activeConn == conn {
			g.activeConn = nil
		}
		g.connMu.Unlock()
	}()

	g.metrics.ActiveSessions.Set(1)
	g.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cs := &connState{session: sess}
	cs.queue = ingress.NewQueue(g.cfg.QueueMax, g.cfg.DropGuardQ, int64(g.cfg.QBytesHardCap))
	cs.queue.OnShed(func(reason ingress.ShedReason) {
		g.metrics.QueueShed.WithLabelValues(string(reason)).Inc()
	})
	cs.dtype.Store(sttsession.DtypeI16)
	cs.srcSR.Store(int64(g.cfg.SourceSampleRateDefault))

	// Ticket-based auth: a token in the query string authenticates before
	// the handshake finishes, so the client need not send a first message.
	if !g.cfg.AuthRequired {
		cs.authed.Store(true)
	} else if ticket := strings.TrimSpace(r.URL.Query().Get("ticket")); ticket != "" {
		if p, err := g.verifier.Verify(ticket); err == nil {
			cs.authed.Store(true)
			_ = g.sessions.Authenticate(sess.ID, p.Subject)
		}
	}

	recorder, hyps, stables, err := g.stt.StartSession(ctx, sess.ID)
	if err != nil {
		g.metrics.SessionEvents.WithLabelValues("init_failed").Inc()
		writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "recorder initialization failed", Code: protocol.CodeInitFailed}, 1011)
		return
	}

	outbound := make(chan any, 256)
	stab := stabilizer.New(stabilizer.Config{
		MaxRollbackChars:     g.cfg.MaxRollbackChars,
		MinRewriteIntervalMS: g.cfg.MinRewriteIntervalMS,
		RewriteConfirmN:      g.cfg.RewriteConfirmN,
		MicroMaxChars:        g.cfg.MicroMaxChars,
	})
	emit := emitter.New(outbound, g.cfg.PatchMaxHz, g.metrics)
	feed := feeder.New(feeder.Config{
		FrameMS:        g.cfg.FrameMS,
		MaxBufMS:       g.cfg.MaxBufMS,
		DropBufToMS:    g.cfg.DropBufToMS,
		TailSilenceSec: g.cfg.TailSilenceSec,
		TargetPeak:     g.cfg.TargetPeak,
		MaxGain:        g.cfg.MaxGain,
	}, cs.queue, recorder, g.metrics, log)

	g.sendHello(outbound)

	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { g.writerLoop(gctx, conn, outbound); return nil })
	grp.Go(func() error { emit.Run(gctx); return nil })
	grp.Go(func() error { feed.Run(gctx); return nil })
	grp.Go(func() error { g.hypothesisLoop(gctx, cs, stab, emit, hyps, stables, feed); return nil })
	grp.Go(func() error { g.statusTicker(gctx, cs, feed, emit); return nil })

	g.readLoop(ctx, conn, cs, outbound, emit)

	cancel()
	cs.queue.PushEOS()
	_ = grp.Wait()

	if g.history != nil {
		_ = g.history.Append(context.Background(), history.Record{SessionID: sess.ID, Text: stab.Shown()})
	}
	g.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}

func (g *STTGateway) sendHello(outbound chan<- any) {
	hello := protocol.Hello{
		Type: protocol.TypeHello,
		Detail: protocol.HelloDetail{
			SampleRateInDefault: g.cfg.SourceSampleRateDefault,
			SampleRateOut:       g.cfg.OutputSampleRate,
			FrameMS:             g.cfg.FrameMS,
			QueueMax:            g.cfg.QueueMax,
			Device:              "cpu",
			Model:               "stt-recorder",
			IdleTimeoutSec:      g.cfg.IdleTimeout.Seconds(),
			Stabilizer: map[string]any{
				"max_rollback_chars":      g.cfg.MaxRollbackChars,
				"min_rewrite_interval_ms": g.cfg.MinRewriteIntervalMS,
				"rewrite_confirm_n":       g.cfg.RewriteConfirmN,
				"patch_max_hz":            g.cfg.PatchMaxHz,
			},
		},
	}
	select {
	case outbound <- hello:
	default:
	}
}

// readLoop owns the socket's read side: binary PCM, JSON control events,
// and (pre-auth) the first-message auth path. It returns once the
// connection closes, times out on idleness, or a fatal auth/parse error
// demands a close.
func (g *STTGateway) readLoop(ctx context.Context, conn *websocket.Conn, cs *connState, outbound chan<- any, emit *emitter.Emitter) {
	conn.SetReadLimit(2 << 20)
	refreshDeadline := func() {
		_ = conn.SetReadDeadline(time.Now().Add(g.cfg.IdleTimeout))
	}
	refreshDeadline()
	conn.SetPongHandler(func(string) error { refreshDeadline(); return nil })

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if strings.Contains(err.Error(), "i/o timeout") {
				g.metrics.SessionEvents.WithLabelValues("idle_timeout").Inc()
				writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "no audio received", Code: protocol.CodeIdleTimeout}, 1000)
			}
			return
		}
		refreshDeadline()
		_ = g.sessions.Touch(cs.session.ID)

		if msgType == websocket.BinaryMessage {
			if !cs.authed.Load() {
				writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "authentication required", Code: protocol.CodeUnauthorized}, 1008)
				return
			}
			g.ingestBinary(cs, data, outbound)
			continue
		}

		parsed, perr := protocol.ParseClientMessage(data)
		if perr != nil {
			g.metrics.ParseErrors.WithLabelValues("protocol").Inc()
			continue
		}

		switch m := parsed.(type) {
		case protocol.ClientAuth:
			if cs.authed.Load() {
				continue
			}
			p, verr := g.verifier.Verify(m.Token)
			if verr != nil {
				writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "invalid token", Code: protocol.CodeUnauthorized}, 1008)
				return
			}
			cs.authed.Store(true)
			_ = g.sessions.Authenticate(cs.session.ID, p.Subject)
		case protocol.ClientEvent:
			if !cs.authed.Load() {
				writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "authentication required", Code: protocol.CodeUnauthorized}, 1008)
				return
			}
			g.handleEvent(cs, m, outbound)
		case protocol.ClientAudioJSON:
			if !cs.authed.Load() {
				writeCloseAndError(conn, protocol.ErrorMessage{Type: protocol.TypeError, Error: "authentication required", Code: protocol.CodeUnauthorized}, 1008)
				return
			}
			g.ingestJSONAudio(cs, m, outbound)
		}
	}
}

func (g *STTGateway) handleEvent(cs *connState, ev protocol.ClientEvent, outbound chan<- any) {
	switch ev.Event {
	case "start":
		sr := ev.SampleRate
		if sr <= 0 {
			sr = g.cfg.SourceSampleRateDefault
		}
		dtype := ingress.DtypeFromString(ev.Dtype)
		g.startSession(cs, sr, dtype, false, outbound)
	case "stop", "eos", "end":
		cs.queue.PushEOS()
	}
}

func (g *STTGateway) startSession(cs *connState, sr int, dtype sttsession.Dtype, auto bool, outbound chan<- any) {
	if cs.started.Swap(true) {
		return
	}
	cs.srcSR.Store(int64(sr))
	cs.dtype.Store(dtype)
	_ = g.sessions.Start(cs.session.ID, sr, dtype)
	ack := protocol.Ack{Type: protocol.TypeAck, Detail: protocol.AckDetail{SrcSR: sr, Dtype: string(dtype), AutoStarted: auto}}
	select {
	case outbound <- ack:
	default:
	}
}

func (g *STTGateway) ingestBinary(cs *connState, buf []byte, outbound chan<- any) {
	if !cs.started.Load() {
		g.startSession(cs, g.cfg.SourceSampleRateDefault, sttsession.DtypeI16, true, outbound)
	}
	dtype := cs.dtype.Load().(sttsession.Dtype)
	if err := ingress.ValidateFrameLength(buf, dtype); err != nil {
		g.metrics.ParseErrors.WithLabelValues("ingress").Inc()
		return
	}
	cs.queue.Push(ingress.AudioItem{
		Buffer:     buf,
		SourceRate: int(cs.srcSR.Load()),
		Dtype:      dtype,
		ByteCount:  len(buf),
		EnqueuedAt: time.Now(),
	})
}

func (g *STTGateway) ingestJSONAudio(cs *connState, m protocol.ClientAudioJSON, outbound chan<- any) {
	dtype := ingress.DtypeFromString(m.Dtype)
	if !cs.started.Load() {
		g.startSession(cs, m.SR, dtype, true, outbound)
	}
	buf, err := ingress.DecodeBase64Audio(m.Audio)
	if err != nil {
		g.metrics.ParseErrors.WithLabelValues("ingress").Inc()
		return
	}
	if err := ingress.ValidateFrameLength(buf, dtype); err != nil {
		g.metrics.ParseErrors.WithLabelValues("ingress").Inc()
		return
	}
	sr := m.SR
	if sr <= 0 {
		sr = int(cs.srcSR.Load())
	}
	cs.queue.Push(ingress.AudioItem{
		Buffer:     buf,
		SourceRate: sr,
		Dtype:      dtype,
		ByteCount:  len(buf),
		EnqueuedAt: time.Now(),
	})
}

// hypothesisLoop consumes the STT recorder's two output channels, driving
// them through the stabilizer and out through the emitter. The recorder's
// callback-driven channels are drained from this single goroutine so
// stabilizer mutations always happen under one thread of execution.
func (g *STTGateway) hypothesisLoop(ctx context.Context, cs *connState, stab *stabilizer.Stabilizer, emit *emitter.Emitter, hyps <-chan sttengine.Hypothesis, stables <-chan sttengine.StableUpdate, feed *feeder.Feeder) {
	for {
		select {
		case <-ctx.Done():
			return
		case h, ok := <-hyps:
			if !ok {
				return
			}
			if wm := feed.Watermark(); !wm.IsZero() {
				cs.lastE2EMs.Store(time.Since(wm).Milliseconds())
			}
			for _, p := range stab.ProcessHypothesis(h.Text) {
				emit.SendPatch(p)
			}
		case su, ok := <-stables:
			if !ok {
				return
			}
			if s := stab.ProcessStable(su.Full); s != nil {
				emit.SendStable(*s)
			}
		}
	}
}

// statusTicker emits a periodic FEED status message so clients can
// observe queue depth and end-to-end latency without polling.
func (g *STTGateway) statusTicker(ctx context.Context, cs *connState, feed *feeder.Feeder, emit *emitter.Emitter) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e2e := float64(cs.lastE2EMs.Load())
			emit.SendStatus(feed.StatusMessage(e2e))
			g.metrics.QueueDepth.Set(float64(cs.queue.Depth()))
			g.metrics.QueueBytes.Set(float64(cs.queue.Bytes()))
		}
	}
}

func (g *STTGateway) writerLoop(ctx context.Context, conn *websocket.Conn, outbound <-chan any) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				g.metrics.WSWriteErrors.WithLabelValues("write_json").Inc()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				g.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
			}
		}
	}
}
