// Command sttserver runs Service A: the realtime speech-to-text websocket
// gateway. A single audio session is admitted at a
// time; every other incoming connection is rejected with BUSY.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vtranser/captionstream/internal/admission"
	"github.com/vtranser/captionstream/internal/auth"
	"github.com/vtranser/captionstream/internal/config"
	"github.com/vtranser/captionstream/internal/history"
	"github.com/vtranser/captionstream/internal/logging"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/sttengine"
	"github.com/vtranser/captionstream/internal/sttsession"
	"github.com/vtranser/captionstream/internal/wsgateway"
)

func main() {
	log := logging.New("sttserver")

	cfg, err := config.LoadSTT()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	historyStore, err := history.NewStore(ctx, cfg.HistoryMode, cfg.HistoryFilePath, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("history store init failed")
	}
	defer historyStore.Close()

	slot := admission.NewSlot()
	sessions := sttsession.NewManager(cfg.IdleTimeout)
	sessions.SetExpireHook(func(_ *sttsession.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
	})

	var verifier *auth.Verifier
	if cfg.AuthRequired {
		verifier = auth.NewVerifier(cfg.AuthJWTSecret)
	}

	// The recorder boundary is an opaque external collaborator per
	//; this binary wires the deterministic mock until a real
	// STT backend is dialed in.
	stt := sttengine.NewMockProvider()

	gateway := wsgateway.NewSTTGateway(cfg, slot, sessions, stt, verifier, historyStore, metrics, log)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: gateway.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, time.Second)

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("stt server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	// http.Server.Shutdown cannot see the hijacked websocket connection a
	// live session holds; force it closed and give its handler a bounded
	// window to flush history and release the admission slot.
	gateway.Shutdown()
	joinCtx, joinCancel := context.WithTimeout(context.Background(), cfg.ShutdownJoinTimeout)
	defer joinCancel()
	gateway.Drain(joinCtx)

	log.Info().Msg("shutdown complete")
}
