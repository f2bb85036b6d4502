// Command execpool-server hosts a worker pool behind an admin HTTP +
// WebSocket API. It re-execs itself as a worker process when launched
// with EXECPOOL_WORKER=1, so MaybeRunWorker must run before anything
// else touches flags, config, or logging.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/NageshMashette/execpool/internal/api"
	"github.com/NageshMashette/execpool/internal/archive"
	"github.com/NageshMashette/execpool/internal/config"
	"github.com/NageshMashette/execpool/internal/events"
	"github.com/NageshMashette/execpool/internal/logger"
	"github.com/NageshMashette/execpool/internal/pool"
)

func main() {
	registerDemoHandlers()
	pool.MaybeRunWorker() // never returns if this process is a re-exec'd worker

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("starting execpool server")

	workers := cfg.Pool.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	p, err := pool.New(pool.Options{
		Workers:          workers,
		DefaultTimeout:   cfg.Pool.DefaultTimeout,
		ShutdownTimeout:  cfg.Pool.ShutdownTimeout,
		RespawnBaseDelay: cfg.Pool.RespawnBaseDelay,
		RespawnMaxDelay:  cfg.Pool.RespawnMaxDelay,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start pool")
	}

	bus, err := events.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("event bus disabled")
	}
	defer bus.Close()

	arch, err := archive.New(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("result archive disabled")
	}
	defer arch.Close()

	wireObservability(p, bus, arch)

	server := api.NewServer(cfg, p, bus)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server.Start(ctx)

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	server.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	exitCodes, err := p.Shutdown(shutdownCtx, true)
	if err != nil {
		log.Error().Err(err).Msg("pool shutdown error")
	}
	log.Info().Ints("worker_exit_codes", exitCodes).Msg("workers stopped")
	log.Info().Msg("shutdown complete")
}
