package server

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

	"github.com/forgetrack/forgetrack/internal/config"
)

// Serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests within the configured timeout and executes the shutdown
// hooks with whatever deadline remains.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, hooks *Hooks) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		MaxHeaderBytes:    20 << 10,         // 20 KB
		ReadHeaderTimeout: 20 * time.Second, // Prevent Slowloris attacks
	}

	notifyCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server starting")
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		// the listener failed before any shutdown was requested
		hooks.Execute(ctx)
		return err
	case <-notifyCtx.Done():
	}

	log.Info().Msg("shutdown requested, draining connections")

	shutdownCtx, cancel := context.WithTimeout(ctx,
		time.Duration(cfg.ShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	if err != nil {
		log.Warn().Err(err).Msg("server drain incomplete")
	}

	hooks.Execute(shutdownCtx)

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// Periodic runs fn on the given interval until ctx is cancelled. A
// panicking run is logged and the loop continues.
func Periodic(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				runPeriodic(ctx, name, fn)
			case <-ctx.Done():
				log.Info().Str("task", name).Msg("periodic task stopping")
				return
			}
		}
	}()
}

func runPeriodic(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Str("task", name).Interface("recover", r).
				Msg("periodic task panicked; will attempt to continue")
		}
	}()

	fn(ctx)
}
