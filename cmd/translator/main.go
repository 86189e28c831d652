// Command translator runs Service B: the English-to-Vietnamese streaming
// translation websocket gateway. Unlike Service A it
// accepts any number of concurrent sessions; the translator is optionally
// shared and serialized across them (TR_MT_SERIALIZE).
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vtranser/captionstream/internal/config"
	"github.com/vtranser/captionstream/internal/history"
	"github.com/vtranser/captionstream/internal/logging"
	"github.com/vtranser/captionstream/internal/mtengine"
	"github.com/vtranser/captionstream/internal/observability"
	"github.com/vtranser/captionstream/internal/wsgateway"
)

func main() {
	log := logging.New("translator")

	cfg, err := config.LoadTranslator()
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

	// The translation backend is an opaque external collaborator per
	//; this binary wires the deterministic mock until a real
	// MT backend is dialed in.
	translator := mtengine.NewMockProvider("vi:")

	gateway := wsgateway.NewTranslatorGateway(cfg, translator, historyStore, metrics, log)

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: gateway.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.BindAddr).Msg("translator listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	gateway.Shutdown()
	joinCtx, joinCancel := context.WithTimeout(context.Background(), cfg.ShutdownJoinTimeout)
	defer joinCancel()
	gateway.Drain(joinCtx)

	log.Info().Msg("shutdown complete")
}
