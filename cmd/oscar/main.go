// Package main is the entry point for the Oscar service, an API server for
// OCR models and text extraction.
//
// The serve command performs the following initialization sequence:
//  1. Load configuration from the config file, environment variables and flags
//  2. Initialize structured logging with zap
//  3. Configure OpenTelemetry tracing and detect the Docling backend
//  4. Start the HTTP server with graceful shutdown support
//
// Graceful shutdown is triggered by SIGINT (Ctrl+C) or SIGTERM signals.
// SIGUSR1 and SIGUSR2 enter and leave maintenance mode.
//
// Example usage:
//
//	# Start with defaults (0.0.0.0:8000)
//	oscar serve
//
//	# Start with a config file and a different port
//	oscar serve --config=/etc/oscar/config.yaml --port=9000
//
//	# Start with environment variable overrides
//	export LOG_LEVEL=DEBUG
//	export OSCAR_DOCLING_URL=http://docling:5001
//	oscar serve
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rotationalio/oscar/internal/config"
	"github.com/rotationalio/oscar/internal/docling"
	"github.com/rotationalio/oscar/internal/observability"
	"github.com/rotationalio/oscar/internal/server"
	"github.com/rotationalio/oscar/internal/state"
	"github.com/rotationalio/oscar/internal/version"
)

const (
	// DefaultHost is the interface the server binds to when none is configured.
	DefaultHost = "0.0.0.0"

	// DefaultPort is the port the server listens on when none is configured.
	DefaultPort = 8000

	// telemetryShutdownTimeout bounds the final flush of pending spans.
	telemetryShutdownTimeout = 5 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "oscar",
		Short:        "API server for OCR models and text extraction",
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version of the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "oscar version %s\n", version.Version())
			return err
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Oscar API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfiguration(configPath, cmd)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "path to a YAML configuration file")
	flags.String("host", DefaultHost, "network interface to bind to")
	flags.Int("port", DefaultPort, "port to listen on")
	return cmd
}

// loadConfiguration loads and validates configuration for the serve command.
func loadConfiguration(path string, cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// serve initializes all components and runs the server until it is shut down.
func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.Observability.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		// Syncing stderr/stdout fails on some platforms; ignore it.
		_ = logger.Close()
	}()

	logger.Info("Oscar starting",
		zap.String("version", version.Version()),
		zap.String("service", cfg.Service.Name),
		zap.String("address", cfg.Server.Addr()),
	)

	telemetry, converter, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize components", zap.Error(err))
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if serr := telemetry.Shutdown(shutdownCtx); serr != nil {
			logger.Warn("failed to flush traces", zap.Error(serr))
		}
	}()

	srv, err := server.New(cfg, logger, state.NewStore(), converter,
		server.WithTracerProvider(telemetry.TracerProvider()),
	)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}

	logger.Info("Oscar stopped")
	return nil
}

// initializeComponents configures tracing and detects the Docling backend
// concurrently. Startup can be interrupted with SIGINT or SIGTERM.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*observability.Telemetry, docling.Converter, error) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		telemetry *observability.Telemetry
		converter docling.Converter
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		telemetry, err = observability.ConfigureTelemetry(gctx, observability.TelemetryConfig{
			Service:        cfg.Service,
			Tracing:        cfg.Observability.Tracing,
			ServiceVersion: version.Short(),
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("failed to configure tracing: %w", err)
		}

		logger.Info("tracing configured",
			zap.Bool("exporting", telemetry.Exporting()),
			zap.String("endpoint", telemetry.Endpoint()),
		)
		return nil
	})

	g.Go(func() (err error) {
		if converter, err = docling.Detect(gctx, cfg.Docling, logger); err != nil {
			return fmt.Errorf("failed to configure docling: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		if telemetry != nil {
			_ = telemetry.Shutdown(context.Background())
		}
		return nil, nil, err
	}
	return telemetry, converter, nil
}
