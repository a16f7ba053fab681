package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/cropmargins/internal/config"
	"github.com/local/cropmargins/internal/cropjob"
	"github.com/local/cropmargins/internal/dispatcher"
	logpkg "github.com/local/cropmargins/internal/logger"
	"github.com/local/cropmargins/internal/measure"
	"github.com/local/cropmargins/internal/metrics"
	"github.com/local/cropmargins/internal/orchestrator"
	"github.com/local/cropmargins/internal/pdfbox"
	"github.com/local/cropmargins/internal/queue"
	"github.com/local/cropmargins/internal/source"
	"github.com/local/cropmargins/internal/statuscheck"
	"github.com/local/cropmargins/internal/store"
)

func main() {
	cfg := cfgpkg.Load(".env")

	if err := logpkg.Init(logpkg.OptionsFromConfig(cfg)); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
	}
	defer logpkg.Close()
	metrics.Init()

	defaults, err := cfg.CropDefaults()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.Crop.DefaultsFile).Msg("failed to load crop defaults")
	}

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	runs := store.NewRunStoreFromClient(rq.Client(), cfg.Queue.ResultTTL)

	fetcher := source.New(cfg.Storage)
	boxes := pdfbox.New()
	if err := os.MkdirAll(cfg.Storage.OutputRoot, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Storage.OutputRoot).Msg("failed to create output root")
	}
	if cfg.Storage.InputRoot == "" {
		log.Warn().Msg("INPUT_ROOT not set; local inputs will be rejected")
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:  rq,
		Status: runs,
		Checker: statuscheck.New(statuscheck.Options{
			Redis:    rq,
			Bucket:   fetcher,
			S3Bucket: cfg.Storage.OutputBucket,
			Renderer: measure.Available,
		}),
		Sources:      fetcher,
		Boundaries:   boxes,
		Defaults:     defaults,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		InputRoot:    cfg.Storage.InputRoot,
		OutputRoot:   cfg.Storage.OutputRoot,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go orchestrator.MonitorQueue(ctx, rq, 15*time.Second)
	go orchestrator.RunJanitor(ctx, cfg.Storage.WorkDir, 10*time.Minute, time.Hour)

	var disp *dispatcher.Worker
	if cfg.Worker.Enabled {
		if !measure.Available() {
			log.Fatal().Msg("dispatcher enabled but no page renderer is available")
		}
		runner := &cropjob.Runner{
			Sources:    fetcher,
			Boundaries: boxes,
			Measurer:   measure.New(nil),
			OutputRoot: cfg.Storage.OutputRoot,
		}
		disp = dispatcher.New(dispatcher.ConfigFrom(cfg), dispatcher.Dependencies{
			Queue:   rq,
			Status:  runs,
			Runner:  runner,
			Breaker: dispatcher.NewCircuitBreaker(rq.Client(), 30*time.Second, 5*time.Minute),
		})
		disp.Start()
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Bool("dispatcher", disp != nil).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	if disp != nil {
		if err := disp.Stop(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("dispatcher did not drain before shutdown timeout")
		}
	}
	log.Info().Msg("shutdown complete")
}
