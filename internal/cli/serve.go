package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/me/worksizing/internal/config"
	"github.com/me/worksizing/internal/logging"
	"github.com/me/worksizing/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	cfg := config.DefaultServerConfig()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run searches over HTTP",
		Long: `serve starts the worksizing API:

  POST /api/v1/searches        run a search, e.g. {"n": 20, "block_size": 1000}
  GET  /api/v1/searches[/{id}] recent results (in memory)
  GET  /api/v1/health
  GET  /metrics                Prometheus metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, root, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	f.Int64Var(&cfg.MaxBound, "max-bound", cfg.MaxBound, "Largest n accepted by the search API")
	f.IntVar(&cfg.MaxConcurrent, "max-concurrent", cfg.MaxConcurrent, "Searches run at the same time")
	f.IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "Largest max_workers a search request may ask for")
	f.IntVar(&cfg.MaxJobs, "max-jobs", cfg.MaxJobs, "Largest max_jobs a search request may ask for")
	f.StringVar(&cfg.SearchTimeout, "search-timeout", cfg.SearchTimeout, "Per-request search cap")

	return cmd
}

// serverFlags maps flag names to the ServerConfig field they set.
var serverFlags = map[string]func(dst *config.ServerConfig, src config.ServerConfig){
	"addr":           func(d *config.ServerConfig, s config.ServerConfig) { d.Addr = s.Addr },
	"log-level":      func(d *config.ServerConfig, s config.ServerConfig) { d.LogLevel = s.LogLevel },
	"max-bound":      func(d *config.ServerConfig, s config.ServerConfig) { d.MaxBound = s.MaxBound },
	"max-concurrent": func(d *config.ServerConfig, s config.ServerConfig) { d.MaxConcurrent = s.MaxConcurrent },
	"max-workers":    func(d *config.ServerConfig, s config.ServerConfig) { d.MaxWorkers = s.MaxWorkers },
	"max-jobs":       func(d *config.ServerConfig, s config.ServerConfig) { d.MaxJobs = s.MaxJobs },
	"search-timeout": func(d *config.ServerConfig, s config.ServerConfig) { d.SearchTimeout = s.SearchTimeout },
}

func runServe(cmd *cobra.Command, root *rootOptions, flags config.ServerConfig) error {
	cfg := flags
	cfg.LogFormat = root.logFormat
	search := config.DefaultSearchConfig()

	if root.configPath != "" {
		fc, err := config.LoadFile(root.configPath)
		if err != nil {
			return err
		}
		cfg = fc.Server
		for name, apply := range serverFlags {
			if cmd.Flags().Changed(name) {
				apply(&cfg, flags)
			}
		}
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = root.logFormat
		}
		search = fc.Search
	}
	if _, err := cfg.SearchTimeoutDuration(); err != nil {
		return err
	}
	if err := search.Validate(1); err != nil {
		return err
	}

	logger := logging.NewLoggerWithWriter(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat, cmd.ErrOrStderr())
	srv := server.New(cfg, logger, server.WithSearchDefaults(search))

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting",
			"addr", cfg.Addr,
			"max_bound", cfg.MaxBound,
			"max_workers", cfg.MaxWorkers,
			"max_jobs", cfg.MaxJobs)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}
