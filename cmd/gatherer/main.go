package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/tweetstream/internal/api"
	"github.com/rickgao/tweetstream/internal/auth"
	"github.com/rickgao/tweetstream/internal/config"
	"github.com/rickgao/tweetstream/internal/connection"
	"github.com/rickgao/tweetstream/internal/database"
	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/metrics"
	"github.com/rickgao/tweetstream/internal/queue"
	"github.com/rickgao/tweetstream/internal/router"
	"github.com/rickgao/tweetstream/internal/version"
	"github.com/rickgao/tweetstream/internal/writer"
)

var errStreamDestroyed = errors.New("stream destroyed")

// component is anything started and stopped with the pipeline.
type component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "configs/gatherer.local.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Set up structured logging
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		slog.Error("invalid log level", "level", cfg.Log.Level, "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})).With("instance_id", cfg.Instance.ID)
	slog.SetDefault(logger)

	logger.Info("starting gatherer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Create context with cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("gatherer exited", "error", err)
		os.Exit(1)
	}
	logger.Info("gatherer stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	req, err := api.NewStreamRequest(cfg.Stream)
	if err != nil {
		return fmt.Errorf("stream request: %w", err)
	}
	mgrCfg := connection.DefaultManagerConfig()
	mgrCfg.Client.URL = req.URL(api.EndpointsFromConfig(cfg.API))
	mgrCfg.Client.Params = req.Values()
	mgrCfg.Client.IdleTimeout = cfg.Stream.IdleTimeout
	mgrCfg.Client.UserAgent = version.UserAgent()
	mgrCfg.BufferSize = cfg.Stream.BufferSize

	httpClient := auth.FromConfig(cfg.Credentials).Client(ctx, &http.Client{})
	manager := connection.NewManager(mgrCfg, httpClient, m, logger)
	rtr := router.NewRouter(router.DefaultRouterConfig(), manager.Events(), m, logger)
	buffers := rtr.Buffers()

	// Archive writers, when a database is configured. Buffers without a
	// writer are drained so they do not grow without bound.
	var writers []component
	drained := []*queue.GrowableBuffer[event.Event]{buffers.Limit, buffers.Notice}

	if cfg.Database.Archive.Enabled() {
		logger.Info("connecting to archive database",
			"host", cfg.Database.Archive.Host,
			"port", cfg.Database.Archive.Port,
			"database", cfg.Database.Archive.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database.Archive)
		if err != nil {
			return fmt.Errorf("connect archive: %w", err)
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate archive: %w", err)
		}
		logger.Info("archive database ready")

		wcfg := writer.WriterConfigFromConfig(cfg.Writers)
		writers = append(writers,
			writer.NewTweetWriter(wcfg, buffers.Tweet, pool, m, logger),
			writer.NewComplianceWriter(wcfg, buffers.Delete, pool, m, logger),
			writer.NewComplianceWriter(wcfg, buffers.ScrubGeo, pool, m, logger),
		)
	} else {
		logger.Info("archive disabled, events are counted and discarded")
		drained = append(drained, buffers.Tweet, buffers.Delete, buffers.ScrubGeo)
	}

	// Consumers start before the stream so nothing waits on them.
	// They run on their own context and are stopped in order below.
	pipeCtx := context.WithoutCancel(ctx)
	for _, w := range writers {
		if err := w.Start(pipeCtx); err != nil {
			return err
		}
	}
	if err := rtr.Start(pipeCtx); err != nil {
		return err
	}
	if err := manager.Start(ctx); err != nil {
		return err
	}

	server := metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, reg, func() (bool, string) {
		state := manager.State()
		return state != connection.StateDestroyed, state.String()
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting metrics server", "port", cfg.Metrics.Port, "path", cfg.Metrics.Path)
		return server.Run(gctx)
	})

	for _, buf := range drained {
		g.Go(func() error {
			for {
				if _, err := buf.ReceiveContext(pipeCtx); err != nil {
					return nil
				}
			}
		})
	}

	// A fatal HTTP status ends the stream for good; exit so a supervisor can act.
	g.Go(func() error {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if manager.State() == connection.StateDestroyed {
					return errStreamDestroyed
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// Stream first, then the router drains its input and closes its
		// buffers, then writers flush what is left.
		if err := manager.Stop(shutdownCtx); err != nil {
			logger.Warn("connection manager stop", "error", err)
		}
		if err := rtr.Stop(shutdownCtx); err != nil {
			logger.Warn("router stop", "error", err)
		}
		for _, w := range writers {
			if err := w.Stop(shutdownCtx); err != nil {
				logger.Warn("writer stop", "error", err)
			}
		}

		stats := manager.Stats()
		logger.Info("final stats",
			"attempts", stats.Attempts,
			"reconnects", stats.Reconnects,
			"frames", stats.Frames,
			"parse_errors", stats.ParseErrors,
		)
		return nil
	})

	logger.Info("gatherer running",
		"stream_url", mgrCfg.Client.URL,
		"archive", cfg.Database.Archive.Enabled(),
	)

	return g.Wait()
}
