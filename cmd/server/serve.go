package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/go-mockserver/internal/api"
	"github.com/prasenjit/go-mockserver/internal/config"
	"github.com/prasenjit/go-mockserver/internal/logger"
	"github.com/prasenjit/go-mockserver/internal/parser"
	"github.com/prasenjit/go-mockserver/internal/proxy"
	"github.com/prasenjit/go-mockserver/internal/stats"
	"github.com/prasenjit/go-mockserver/internal/storage"
	"github.com/prasenjit/go-mockserver/internal/synth"
	"github.com/prasenjit/go-mockserver/internal/tracing"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mock server",
	Long: `Starts the mock server.

The server will:
  - Serve mocks for every project at /mock/<project>/<path>
  - Expose the Admin API at /_api/
  - Stream traces over a websocket at /_api/traces/stream

Configuration is loaded from config.yaml in the current directory,
or specify a custom config file with the --config flag.`,
	RunE: runServe,
}

var portFlag int

func init() {
	serveCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "Override server port")
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if portFlag > 0 {
		cfg.Server.Port = portFlag
	}

	log := logger.Configure(cfg.Logging)

	store, err := openStorage(cfg.Storage, log)
	if err != nil {
		return err
	}
	defer store.Close()

	var sinks []stats.Sink
	sink, err := stats.NewStatsdSink(cfg.Metrics.Statsd, log)
	if err != nil {
		return fmt.Errorf("failed to initialize statsd: %w", err)
	}
	if sink != nil {
		defer sink.Close()
		sinks = append(sinks, sink)
		log.Info().Str("address", cfg.Metrics.Statsd.Address).Msg("Sending metrics to statsd")
	}

	statsCollector := stats.NewCollector(sinks...)
	tracingService := tracing.NewService(cfg.Tracing.MaxTraces)
	loader := parser.NewLoader(store, cfg.AWS.Region)

	proxyEngine, err := proxy.NewEngine(store, loader, proxy.Options{
		Mock: synth.MockOptions{
			NullProbability: cfg.Mock.NullProbability,
			ArrayMin:        cfg.Mock.ArrayMin,
			ArrayMax:        cfg.Mock.ArrayMax,
			MaxDepth:        cfg.Mock.MaxDepth,
		},
		ProcessorEngine:  cfg.Processors.Engine,
		ProcessorTimeout: cfg.Processors.Timeout,
		QueryTimeout:     cfg.Datastore.QueryTimeout,
	}, statsCollector, tracingService, log)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	router := api.NewRouter(api.Dependencies{
		Store:        store,
		Loader:       loader,
		Stats:        statsCollector,
		Tracing:      tracingService,
		Proxy:        proxyEngine,
		QueryTimeout: cfg.Datastore.QueryTimeout,
		Logger:       log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Starting go-mockserver")
		log.Info().Msgf("Mocks available at http://%s/mock/<project>/", addr)
		log.Info().Msgf("Admin API available at http://%s/_api/", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return nil
}

// openStorage creates the configured storage backend
func openStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	if cfg.Type != "file" {
		log.Info().Msg("Using in-memory storage")
		return storage.NewMemoryStorage(), nil
	}

	path := cfg.Path
	if !filepath.IsAbs(path) {
		if cwd, err := os.Getwd(); err == nil {
			path = filepath.Join(cwd, path)
		}
	}
	log.Info().Str("path", path).Msg("Using data directory")

	store, err := storage.NewFileStorage(path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize file storage: %w", err)
	}
	return store, nil
}
