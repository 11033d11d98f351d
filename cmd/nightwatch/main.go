package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nightwatch-dev/nightwatch/internal/config"
	"github.com/nightwatch-dev/nightwatch/internal/controller"
	"github.com/nightwatch-dev/nightwatch/internal/health"
	"github.com/nightwatch-dev/nightwatch/internal/ingest"
	"github.com/nightwatch-dev/nightwatch/internal/metrics"
	"github.com/nightwatch-dev/nightwatch/internal/mgmt"
	"github.com/nightwatch-dev/nightwatch/internal/purge"
	"github.com/nightwatch-dev/nightwatch/internal/store"
	"github.com/nightwatch-dev/nightwatch/internal/telegram"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Int("http_port", cfg.HTTPPort).
		Str("mgmt_addr", cfg.MgmtListenAddr).
		Str("db_path", cfg.DBPath).
		Dur("tick_interval", cfg.TickInterval).
		Msg("starting nightwatch")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	st, err := store.New(cfg.DBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	client := telegram.NewClient(cfg.TelegramToken, logger, telegram.WithTimeout(cfg.RemoteTimeout))

	m := metrics.New()

	checker := health.NewChecker(logger)
	checker.Register("store", func(ctx context.Context) health.Status {
		if err := st.Ping(); err != nil {
			return health.StatusDown
		}
		return health.StatusOK
	})
	checker.Register("telegram", func(ctx context.Context) health.Status {
		if err := client.GetMe(ctx); err != nil {
			return health.StatusDegraded
		}
		return health.StatusOK
	})

	executor := purge.NewExecutor(st, client, cfg.DeleteSpacing, m, logger)

	ctrl := controller.New(controller.Config{
		TickInterval: cfg.TickInterval,
	}, st, client, executor, m, logger)

	if err := ctrl.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start controller")
	}

	ingestor := ingest.New(ingest.Config{
		PollTimeout:       cfg.PollTimeout,
		DefaultStartTime:  cfg.DefaultStartTime,
		DefaultEndTime:    cfg.DefaultEndTime,
		DefaultNotifyText: cfg.DefaultNotifyText,
	}, client, ctrl, st, m, logger)

	// HTTP server for probes and metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.LivenessHandler())
	mux.HandleFunc("/ready", checker.ReadinessHandler())
	mux.Handle("/metrics", m.Handler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	mgmtServer := mgmt.NewServer(mgmt.ServerConfig{
		ListenAddr: cfg.MgmtListenAddr,
		APIKey:     cfg.MgmtAPIKey,
	}, st, ctrl, checker, logger)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Int("port", cfg.HTTPPort).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmtServer.Start(); err != nil {
			logger.Error().Err(err).Msg("management API server error")
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ingestor.Run(ctx)
	}()

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("shutting down gracefully")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if err := mgmtServer.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("management API server shutdown error")
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all goroutines stopped")
	case <-time.After(15 * time.Second):
		logger.Warn().Msg("forced shutdown after timeout")
	}

	logger.Info().Msg("nightwatch stopped")
}
