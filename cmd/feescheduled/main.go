package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/efreitasn/feeschedule/internal/activation"
	"github.com/efreitasn/feeschedule/internal/config"
	"github.com/efreitasn/feeschedule/internal/domain"
	"github.com/efreitasn/feeschedule/internal/handler"
	"github.com/efreitasn/feeschedule/internal/schedulefile"
	"github.com/efreitasn/feeschedule/internal/service"
	"github.com/efreitasn/feeschedule/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := service.NewMetrics(registry)

	scheduleStore := store.NewScheduleStore()
	proposalStore := store.NewProposalStore()
	subscriptionStore := store.NewSubscriptionStore()

	notifySvc := service.NewNotifyService(subscriptionStore, cfg.NotifyTimeout, metrics, logger)
	scheduleSvc := service.NewScheduleService(scheduleStore, proposalStore, notifySvc, metrics, logger)

	structures, err := seedStructures(cfg.SeedDefaults, cfg.FeeScheduleFile)
	if err != nil {
		logger.Error("failed to load fee schedule", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := scheduleSvc.Seed(structures); err != nil {
		logger.Error("invalid seed fee structure", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("fee schedule seeded", slog.Int("markets", len(structures)))

	router := handler.NewRouter(scheduleSvc, notifySvc, registry, logger)

	// The scheduler stops when ctx is cancelled.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	scheduler := activation.NewScheduler(cfg.ActivationInterval, proposalStore, scheduleSvc)
	scheduler.Start(ctx)

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	notifySvc.Wait()

	logger.Info("server stopped")
}

// seedStructures returns the structures each market starts with: the
// shipped defaults when withDefaults is set, overridden per market by the
// file at path when path is non-empty.
func seedStructures(withDefaults bool, path string) (map[domain.MarketType]domain.FeeStructure, error) {
	out := make(map[domain.MarketType]domain.FeeStructure)
	if withDefaults {
		for _, market := range domain.MarketTypes {
			if fs, ok := domain.DefaultFor(market); ok {
				out[market] = fs
			}
		}
	}

	if path != "" {
		fromFile, err := schedulefile.Load(path)
		if err != nil {
			return nil, err
		}
		for market, fs := range fromFile {
			out[market] = fs
		}
	}
	return out, nil
}
