// cmd/main.go is the application entry point.
// It wires together all layers, starts the poller and the HTTP command API,
// and shuts both down on SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/config"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/database"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/fetcher"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/handler"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/metrics"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/model"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/monitor"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/notify"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/repository"
	"github.com/Shivanand-hulikatti/course-seat-watcher/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, logLevel, logFormat string

	flagSet := pflag.NewFlagSet("course-seat-watcher", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file (default: $WATCHER_CONFIG)")
	flagSet.StringVar(&addr, "addr", "", "HTTP listen address, overrides http.addr")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error, overrides log.level")
	flagSet.StringVar(&logFormat, "log-format", "", "text or json, overrides log.format")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		fmt.Fprintf(os.Stderr, "Usage: course-seat-watcher [flags]\n\n%s", flagSet.FlagUsages())
		return nil
	}

	// ── 1. Configuration and logging ─────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 2. Metrics ───────────────────────────────────────────────────────
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// ── 3. Notification sinks ────────────────────────────────────────────
	hub := notify.NewHub(m)
	if cfg.Discord.WebhookURL != "" {
		hub.Add("discord", notify.NewWebhook(cfg.Discord.WebhookURL, cfg.Discord.Username))
	} else {
		slog.Warn("no discord webhook configured, notifications go to the log only")
		hub.Add("log", notify.LogSink{})
	}

	var journal *repository.JournalRepository
	if cfg.Journal.DSN != "" {
		pool, err := database.NewPool(ctx, cfg.Journal.DSN)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()

		journal = repository.NewJournalRepository(pool)
		if err := journal.EnsureSchema(ctx); err != nil {
			return err
		}
		hub.Add("journal", notify.JournalSink{Recorder: journal})
		slog.Info("notification journal enabled")
	}

	// ── 4. Wire up layers ────────────────────────────────────────────────
	client := fetcher.New(fetcher.Options{
		URLTemplate:   cfg.Source.URLTemplate,
		Timeout:       cfg.Source.Timeout,
		RatePerSecond: cfg.Source.RatePerSecond,
		Burst:         cfg.Source.Burst,
	})
	watchlist := repository.NewWatchlistRepository()
	watchSvc := service.NewWatchService(watchlist, client, cfg.Term, m)
	poller := monitor.NewPoller(watchlist, client, hub, m, monitor.Options{
		Interval:      cfg.Poll.Interval,
		Concurrency:   cfg.Poll.Concurrency,
		DegradedAfter: cfg.Poll.DegradedAfter,
	})

	var journalReader handler.JournalReader
	if journal != nil {
		journalReader = journal
	}
	router := handler.NewRouter(
		handler.NewWatchHandler(watchSvc, journalReader),
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	)

	// ── 5. Start poller and server ───────────────────────────────────────
	if cfg.Discord.AnnounceStartup {
		startup := model.NewNotification(model.KindStartup, "", "Watcher connected.", nil)
		if err := hub.Deliver(ctx, startup); err != nil {
			slog.Warn("startup announcement failed", "error", err)
		}
	}

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		_ = poller.Run(ctx)
	}()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // subscribe may wait on the registrar
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.HTTP.Addr, "term", cfg.Term)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until a signal arrives or the server fails.
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		stop()
		<-pollerDone
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	<-pollerDone
	slog.Info("stopped")
	return nil
}

// setupLogger installs the default slog logger.
func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}
