// streamtest connects to the streaming API and prints classified events to the console.
// Usage: go run ./cmd/streamtest --config configs/gatherer.example.yaml
//
// Credentials are read from the config file, which may reference environment
// variables such as ${TWITTER_CONSUMER_KEY}.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rickgao/tweetstream/internal/api"
	"github.com/rickgao/tweetstream/internal/auth"
	"github.com/rickgao/tweetstream/internal/config"
	"github.com/rickgao/tweetstream/internal/connection"
	"github.com/rickgao/tweetstream/internal/event"
	"github.com/rickgao/tweetstream/internal/queue"
	"github.com/rickgao/tweetstream/internal/router"
	"github.com/rickgao/tweetstream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/gatherer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full payload JSON")
	verify := flag.Bool("verify", false, "verify credentials against the REST API before streaming")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Signing HTTP client. The stream has no overall timeout; idle detection
	// is done per chunk by the connection client.
	creds := auth.FromConfig(cfg.Credentials)
	httpClient := creds.Client(ctx, &http.Client{})

	if *verify {
		apiClient := api.NewClient(cfg.API.RestURL,
			api.WithHTTPClient(creds.Client(ctx, &http.Client{})),
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
			api.WithLogger(logger),
		)
		var account struct {
			ScreenName string `json:"screen_name"`
			IDStr      string `json:"id_str"`
		}
		if err := apiClient.Post(ctx, "/account/verify_credentials", nil, &account); err != nil {
			logger.Error("credential check failed", "error", err)
			os.Exit(1)
		}
		logger.Info("credentials verified", "screen_name", account.ScreenName, "user_id", account.IDStr)
	}

	mgrCfg, err := managerConfig(cfg)
	if err != nil {
		logger.Error("invalid stream config", "error", err)
		os.Exit(1)
	}

	// Create Connection Manager
	manager := connection.NewManager(mgrCfg, httpClient, nil, logger)

	// Create Router
	rtr := router.NewRouter(router.DefaultRouterConfig(), manager.Events(), nil, logger)

	if err := rtr.Start(ctx); err != nil {
		logger.Error("failed to start router", "error", err)
		os.Exit(1)
	}
	if err := manager.Start(ctx); err != nil {
		logger.Error("failed to start connection manager", "error", err)
		os.Exit(1)
	}

	logger.Info("streaming",
		"version", version.Version,
		"url", mgrCfg.Client.URL,
	)

	// Print every channel until the router closes its buffers
	buffers := rtr.Buffers()
	var wg sync.WaitGroup
	for _, ch := range []struct {
		name string
		buf  *queue.GrowableBuffer[event.Event]
	}{
		{"TWEET", buffers.Tweet},
		{"LIMIT", buffers.Limit},
		{"DELETE", buffers.Delete},
		{"SCRUB_GEO", buffers.ScrubGeo},
		{"NOTICE", buffers.Notice},
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			printLoop(ch.name, ch.buf, *verbose)
		}()
	}

	// Stop once the stream is destroyed or a signal arrives
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case <-ticker.C:
			if manager.State() == connection.StateDestroyed {
				logger.Warn("stream destroyed, exiting")
				break wait
			}
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := manager.Stop(shutdownCtx); err != nil {
		logger.Warn("manager stop", "error", err)
	}
	if err := rtr.Stop(shutdownCtx); err != nil {
		logger.Warn("router stop", "error", err)
	}
	wg.Wait()

	stats := manager.Stats()
	logger.Info("final stats",
		"attempts", stats.Attempts,
		"reconnects", stats.Reconnects,
		"frames", stats.Frames,
		"parse_errors", stats.ParseErrors,
		"dropped_failures", stats.DroppedFailures,
	)
}

func managerConfig(cfg *config.Config) (connection.ManagerConfig, error) {
	req, err := api.NewStreamRequest(cfg.Stream)
	if err != nil {
		return connection.ManagerConfig{}, err
	}

	mc := connection.DefaultManagerConfig()
	mc.Client.URL = req.URL(api.EndpointsFromConfig(cfg.API))
	mc.Client.Params = req.Values()
	mc.Client.IdleTimeout = cfg.Stream.IdleTimeout
	mc.Client.UserAgent = version.UserAgent()
	mc.BufferSize = cfg.Stream.BufferSize
	return mc, nil
}

func printLoop(name string, buf *queue.GrowableBuffer[event.Event], verbose bool) {
	for {
		ev, ok := buf.Receive()
		if !ok {
			return
		}
		printEvent(name, ev, verbose)
	}
}

func printEvent(name string, ev event.Event, verbose bool) {
	ts := ev.ReceivedAt.Format("15:04:05.000")

	switch ev.Kind {
	case event.KindTweet:
		var t event.Tweet
		if err := ev.Decode(&t); err != nil {
			fmt.Printf("[%s] %s: <undecodable: %v>\n", ts, name, err)
			return
		}
		fmt.Printf("[%s] %s: @%s %s: %q\n", ts, name, t.User.ScreenName, t.IDStr, t.Text)
	case event.KindLimit:
		var l event.LimitNotice
		if err := ev.Decode(&l); err == nil {
			fmt.Printf("[%s] %s: track=%d\n", ts, name, l.Track)
		}
	case event.KindDelete:
		var d event.DeleteNotice
		if err := ev.Decode(&d); err == nil {
			fmt.Printf("[%s] %s: status=%s user=%s\n", ts, name, d.Status.IDStr, d.Status.UserIDStr)
		}
	case event.KindScrubGeo:
		var s event.ScrubGeoNotice
		if err := ev.Decode(&s); err == nil {
			fmt.Printf("[%s] %s: user=%s up_to=%s\n", ts, name, s.UserIDStr, s.UpToStatusIDStr)
		}
	default:
		fmt.Printf("[%s] %s: %s\n", ts, name, ev.String())
	}

	if verbose && len(ev.Payload) > 0 {
		fmt.Printf("    %s\n", ev.Payload)
	}
}
