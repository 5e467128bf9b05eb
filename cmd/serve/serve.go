// Package serve implements the serve command, which runs the intake API
// and the asynchronous mirroring pipeline.
package serve

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

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/monosense-io/synergyflow/internal/api"
	"github.com/monosense-io/synergyflow/internal/conf"
	"github.com/monosense-io/synergyflow/internal/datastore"
	"github.com/monosense-io/synergyflow/internal/events"
	"github.com/monosense-io/synergyflow/internal/logging"
	"github.com/monosense-io/synergyflow/internal/mirroring"
	"github.com/monosense-io/synergyflow/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// Command returns the serve subcommand.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the time-entry intake server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), settings)
		},
	}
}

func runServer(ctx context.Context, settings *conf.Settings) error {
	logger := logging.ForService("serve")
	if logger == nil {
		logger = slog.Default()
	}

	// Mirror server logs to a rotated file when configured.
	if settings.Main.Log.Enabled && settings.Main.Log.Path != "" {
		fileLogger, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "serve", slog.LevelInfo)
		if err != nil {
			logger.Warn("file logging disabled", "path", settings.Main.Log.Path, "error", err)
		} else {
			logger = fileLogger
			defer func() { _ = closeLog() }()
		}
	}

	ds := datastore.New(settings)
	if err := ds.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Error("closing datastore", "error", err)
		}
	}()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("initializing metrics: %w", err)
	}

	bus := events.Initialize(&events.Config{
		BufferSize: settings.Mirroring.BufferSize,
		Workers:    settings.Mirroring.Workers,
	})

	propagator := mirroring.NewPropagator(ds, bus, metrics.Mirroring)
	if err := propagator.Register(bus); err != nil {
		return fmt.Errorf("registering mirroring consumers: %w", err)
	}

	e := echo.New()
	e.HideBanner = true

	controller := api.New(e, ds, settings, bus, metrics)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + settings.WebServer.Port
		logger.Info("starting server",
			"addr", addr,
			"version", settings.Version)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
		if err := controller.Shutdown(shutdownCtx); err != nil {
			logger.Error("controller shutdown", "error", err)
		}
		if err := bus.Shutdown(shutdownTimeout); err != nil {
			logger.Error("event bus shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
