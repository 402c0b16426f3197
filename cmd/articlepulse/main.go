// Command articlepulse serves the ArticlePulse HTTP API.
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

	"github.com/HugoJanow/ArticlePulse/internal/app"
	"github.com/HugoJanow/ArticlePulse/internal/config"
	"github.com/HugoJanow/ArticlePulse/internal/httputil"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "articlepulse: %v\n", err)
		os.Exit(1)
	}

	log := logging.New("articlepulse", cfg.Log.Level, cfg.Log.Format)
	httputil.SetExposeCauses(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log, app.Options{})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise application")
	}
	defer application.Close()

	if application.RateLimiter != nil {
		application.RateLimiter.StartCleanup(ctx, 5*time.Minute)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           application.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":        server.Addr,
			"environment": cfg.Environment,
			"base_path":   cfg.Server.BasePath,
			"ledger":      cfg.LedgerEnabled(),
		}).Info("ArticlePulse listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.WithError(err).Error("HTTP server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
	log.Info("ArticlePulse stopped")
}
