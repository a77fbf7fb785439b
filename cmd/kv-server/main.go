package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"imgkv/internal/imaging"
	"imgkv/internal/kv"
	"imgkv/internal/server"
	"imgkv/internal/shared"
	"imgkv/internal/store"
	"imgkv/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kv-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, addr, logLevel string

	flagSet := pflag.NewFlagSet("kv-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to YAML config file")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides config and KV_ADDR)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := shared.LoadServerConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := shared.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := shared.NewLogger(os.Stderr, level, cfg.LogFormat)
	slog.SetDefault(logger)

	compression, err := imaging.ParseCompression(cfg.PNGCompression)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "kv-server", cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown", "err", err)
		}
	}()

	s, db, err := openStore(cfg.Backend)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	svc := kv.NewService(s, imaging.NewCodec(compression))
	svc.MaxImagePixels = cfg.MaxImagePixels

	reg := server.NewRegistry()
	api := &server.API{
		KV:           svc,
		Logger:       logger,
		Metrics:      server.NewMetrics(reg, s),
		Gatherer:     reg,
		AdminToken:   cfg.AdminToken,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Gzip:         cfg.Gzip,
		Diagnostics:  cfg.Diagnostics,
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kv-server listening",
			"addr", cfg.Addr,
			"backend", cfg.Backend,
			"max_body_bytes", cfg.MaxBodyBytes,
			"max_image_pixels", cfg.MaxImagePixels,
			"diagnostics", cfg.Diagnostics,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openStore(backend string) (*store.Store, *sql.DB, error) {
	switch backend {
	case shared.BackendSQLite:
		s, db, err := store.NewSQLite()
		if err != nil {
			return nil, nil, err
		}
		return s, db, nil
	default:
		return store.NewMemory(), nil, nil
	}
}
