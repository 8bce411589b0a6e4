// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Command indiq serves event-query tools over MCP stdio. Logs go to
// stderr; stdout carries only the protocol stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/olegiv/indiq/internal/cache"
	"github.com/olegiv/indiq/internal/config"
	"github.com/olegiv/indiq/internal/indico"
	"github.com/olegiv/indiq/internal/logging"
	"github.com/olegiv/indiq/internal/metrics"
	"github.com/olegiv/indiq/internal/scheduler"
	"github.com/olegiv/indiq/internal/server"
	"github.com/olegiv/indiq/internal/service"
	"github.com/olegiv/indiq/internal/version"
)

// Set via ldflags at build time.
var (
	Version   = ""
	GitCommit = ""
	BuildTime = ""
)

const (
	recentIssueCount = 16
	shutdownTimeout  = 10 * time.Second
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	info := version.Info{Version: Version, GitCommit: GitCommit, BuildTime: BuildTime}
	if *showVersion {
		fmt.Println("indiq " + info.String())
		return
	}

	if err := run(info); err != nil {
		fmt.Fprintln(os.Stderr, "indiq:", err)
		os.Exit(1)
	}
}

func run(info version.Info) error {
	// Optional; absence of a .env file is the normal case in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logging.ParseLevel(cfg.LogLevel),
	})
	ring := logging.NewRingHandler(inner, recentIssueCount)
	logger := slog.New(ring)
	slog.SetDefault(logger)

	logger.Info("starting",
		"version", info.String(),
		"base_url", cfg.BaseURL,
		"cache_enabled", cfg.CacheEnabled,
	)

	var backend cache.Cacher
	if cfg.CacheEnabled {
		backend, err = cache.New(cache.Options{
			RedisURL:        cfg.RedisURL,
			Prefix:          cfg.CachePrefix,
			DefaultTTL:      cfg.CacheTTLDuration(),
			MaxSize:         cfg.CacheMaxSize,
			CleanupInterval: 0, // swept by the scheduler instead
		})
		if err != nil {
			return fmt.Errorf("initializing cache: %w", err)
		}
		defer func() { _ = backend.Close() }()
	}

	m := metrics.New()

	client := indico.New(indico.Options{
		BaseURL:    cfg.BaseURL,
		Timeout:    cfg.RequestTimeout,
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
		RateLimit:  cfg.RateLimit,
		UserAgent:  "indiq/" + info.String(),
		Logger:     logger,
		ObserveRequest: func(outcome string) {
			m.UpstreamRequests.WithLabelValues(outcome).Inc()
		},
	})

	svc := service.New(cfg, client, backend, m, ring, info, logger)

	var purger scheduler.Purger
	if mc, ok := backend.(*cache.MemoryCache); ok {
		purger = mc
	}
	sched, err := scheduler.New(purger, logger)
	if err != nil {
		return fmt.Errorf("initializing scheduler: %w", err)
	}
	sched.Start()
	defer sched.Stop()

	var httpSrv *server.HTTPServer
	if cfg.HTTPAddr != "" {
		httpSrv = server.NewHTTPServer(cfg.HTTPAddr, svc, m, logger)
		httpSrv.Start()
	}

	mcpSrv := server.NewMCPServer(svc, info.String(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ServeStdio(mcpSrv)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("stdio server stopped", "error", err)
		} else {
			logger.Info("stdio stream closed")
		}
	}

	if httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}

	return nil
}
