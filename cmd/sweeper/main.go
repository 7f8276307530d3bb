package main

import (
	"context"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"pulsekeep/internal/config"
	"pulsekeep/internal/dependencies"
	"pulsekeep/pkg/logger"
)

// The sweeper owns the time-driven side of monitoring: the deadline
// sweep, the dispatch workers that fan flips out to channels, and
// history pruning.
func main() {
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("failed to load config %s", err)
	}

	log := logger.Setup(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	log.Info("Starting pulsekeep sweeper",
		slog.String("name", cfg.App.Name),
		slog.String("interval", cfg.Sweeper.Interval),
		slog.Int("workers", cfg.Sweeper.Workers),
	)

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	container, err := dependencies.NewContainer(initCtx, cfg, log)
	cancelInit()
	if err != nil {
		log.Error("Failed to create dependency container", "error", err)
		os.Exit(1)
	}
	defer container.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < cfg.Sweeper.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			container.DispatchService.Run(ctx)
		}()
	}

	scheduler := cron.New()

	if _, err := scheduler.AddFunc(cfg.Sweeper.Interval, func() {
		sweepCtx, cancelSweep := context.WithTimeout(ctx, time.Minute)
		defer cancelSweep()

		if err := container.SweepService.Sweep(sweepCtx); err != nil {
			log.Error("sweep pass failed", "error", err)
		}
		if n := container.DispatchService.DrainBacklog(sweepCtx); n > 0 {
			log.Info("processed flips from backlog", "count", n)
		}
		if depth, err := container.Queue.Length(sweepCtx); err == nil {
			container.Metrics.QueueDepth.Set(float64(depth))
		}
	}); err != nil {
		log.Error("invalid sweep interval", "interval", cfg.Sweeper.Interval, "error", err)
		os.Exit(1)
	}

	if _, err := scheduler.AddFunc("@hourly", func() {
		pruneCtx, cancelPrune := context.WithTimeout(ctx, 5*time.Minute)
		defer cancelPrune()
		container.SweepService.Prune(pruneCtx, container.PingStore,
			cfg.Sweeper.PingRetention, cfg.Sweeper.FlipRetention)
	}); err != nil {
		log.Error("cannot schedule pruning", "error", err)
		os.Exit(1)
	}

	scheduler.Start()

	if port := cfg.Sweeper.MetricsPort; port > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
				log.Error("metrics listener failed", "port", port, "error", err)
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down sweeper...")
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	cancel()
	wg.Wait()
	log.Info("Sweeper stopped gracefully")
}
