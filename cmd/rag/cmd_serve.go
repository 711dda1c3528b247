package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ragsearch/internal/config"
	"ragsearch/internal/httpapi"
	"ragsearch/internal/sweeper"
)

const shutdownTimeout = 10 * time.Second

func handleServe(cfg *config.AppConfig, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	noSweep := fs.Bool("no-sweep", false, "Disable the background retention sweeper")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    rag serve [options]

DESCRIPTION:
    Serve the upload, chat, search and maintenance API over HTTP.

OPTIONS:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("failed to parse arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	var secret string
	if cfg.Server.CronSecretEnv != "" {
		secret = os.Getenv(cfg.Server.CronSecretEnv)
	}
	router := httpapi.NewRouter(a.svc, httpapi.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		CronSecret:     secret,
		MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
	}, a.logger)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.Sweeper.Enabled && !*noSweep {
		go sweeper.Run(ctx, a.svc, cfg.Sweeper.Interval(), a.logger)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.String("addr", *addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			a.logger.Error("http server failed", zap.Error(err))
			a.Close()
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
