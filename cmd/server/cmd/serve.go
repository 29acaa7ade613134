package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Togather-Foundation/places/internal/config"
	"github.com/Togather-Foundation/places/internal/metrics"
	"github.com/Togather-Foundation/places/internal/storage/postgres"
	"github.com/Togather-Foundation/places/internal/telemetry"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	// Server flags (override config/env)
	serverHost  string
	serverPort  int
	autoMigrate bool
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the places HTTP server",
	Long: `Start the places HTTP server and begin accepting API requests.

The server will:
- Load configuration from environment variables (or --config file if provided)
- Connect to storage and optionally apply migrations
- Start River workers for asset release and geocoding cache cleanup
- Handle graceful shutdown on SIGINT/SIGTERM

Examples:
  # Start with default configuration (from env vars)
  server serve

  # Start on a specific host and port
  server serve --host 127.0.0.1 --port 9090

  # Apply pending migrations first
  server serve --migrate

  # Start with custom config file
  server serve --config /etc/places/config.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serverHost, "host", "", "server host address (default: 0.0.0.0)")
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "server port (default: 8080)")
	serveCmd.Flags().BoolVar(&autoMigrate, "migrate", false, "apply database and River migrations before serving")
}

func runServer(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serverHost != "" {
		cfg.Server.Host = serverHost
	}
	if serverPort != 0 {
		cfg.Server.Port = serverPort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)
	logger.Info().Str("version", Version).Str("storage", cfg.Storage.Driver).Msg("starting places server")

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Init(Version, GitCommit, BuildDate)

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("tracing init failed: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown error")
		}
	}()

	b, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.pool != nil {
		if autoMigrate {
			if err := postgres.MigrateUp(cfg.Database.URL); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if err := postgres.MigrateRiver(ctx, b.pool); err != nil {
				return fmt.Errorf("migrate river: %w", err)
			}
			logger.Info().Msg("migrations applied")
		}

		collector := metrics.NewDBCollector(b.pool)
		go collector.Run(ctx, 15*time.Second)
		logger.Info().Msg("database metrics collector started")
	}

	a, err := buildApp(ctx, cfg, b, logger)
	if err != nil {
		return err
	}

	if a.river != nil {
		// Stop is driven by gracefulShutdown, not by the signal context.
		if err := a.river.Start(context.WithoutCancel(ctx)); err != nil {
			a.Close(context.Background())
			return fmt.Errorf("river workers failed to start: %w", err)
		}
		logger.Info().Msg("river background job workers started")
	} else {
		logger.Info().Msg("river disabled; asset releases run in-process")
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           a.handler,
		ReadTimeout:       30 * time.Second, // uploads stream through the body
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down")
		return gracefulShutdown(server, a)
	})
	return g.Wait()
}

// gracefulShutdown stops intake first, then background work, then the
// components the workers depend on.
func gracefulShutdown(server *http.Server, a *app) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if err := server.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
		shutdownErr = err
	}

	if a.river != nil {
		if err := a.river.Stop(ctx); err != nil {
			a.logger.Error().Err(err).Msg("river workers shutdown error")
		} else {
			a.logger.Info().Msg("river workers stopped")
		}
	}

	a.Close(ctx)
	a.logger.Info().Msg("server stopped")
	return shutdownErr
}
