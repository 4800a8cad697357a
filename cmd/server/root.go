package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dhruvsoni1802/browser-bridge/internal/api"
	"github.com/dhruvsoni1802/browser-bridge/internal/browser"
	"github.com/dhruvsoni1802/browser-bridge/internal/cdp"
	"github.com/dhruvsoni1802/browser-bridge/internal/config"
	"github.com/dhruvsoni1802/browser-bridge/internal/mcp"
	"github.com/dhruvsoni1802/browser-bridge/internal/metrics"
	"github.com/dhruvsoni1802/browser-bridge/internal/session"
	"github.com/dhruvsoni1802/browser-bridge/internal/storage"
	"github.com/dhruvsoni1802/browser-bridge/internal/tools"
)

const shutdownTimeout = 10 * time.Second

// errStdioClosed ends the run when the MCP client closes stdin
var errStdioClosed = errors.New("stdio closed")

func newRootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:   "browser-bridge",
		Short: "Drive a Chrome tab over the DevTools protocol from MCP or HTTP clients",
		Long: `browser-bridge keeps one DevTools connection to a Chrome tab and exposes
navigation, element lookup, input, waits and capture as tools.

By default it speaks MCP (JSON-RPC 2.0) on stdin/stdout against a browser
already listening on localhost:9222. Set --http-port to also serve the tools
over HTTP, or --launch to start a headless Chromium.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(setupLogger(cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return run(cmd.Context(), cfg)
		},
	}

	// flags default to the environment, so a flag overrides its variable
	pf := root.PersistentFlags()
	pf.StringVar(&cfg.ChromeHost, "chrome-host", cfg.ChromeHost, "Host of the browser debug endpoint (CHROME_HOST)")
	pf.IntVar(&cfg.ChromePort, "chrome-port", cfg.ChromePort, "Port of the browser debug endpoint (CHROME_PORT)")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (LOG_LEVEL)")
	pf.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for session persistence and cookie jars (REDIS_ADDR)")

	f := root.Flags()
	f.StringSliceVar(&cfg.Domains, "domains", cfg.Domains, "Protocol domains to enable on connect (CDP_DOMAINS)")
	f.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "Default timeout of one protocol call (CDP_CALL_TIMEOUT)")
	f.DurationVar(&cfg.NavigationTimeout, "navigation-timeout", cfg.NavigationTimeout, "How long navigation waits for the load (NAVIGATION_TIMEOUT)")
	f.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "Close the connection after this much inactivity, 0 to never (SESSION_IDLE_TIMEOUT)")
	f.StringVar(&cfg.HTTPPort, "http-port", cfg.HTTPPort, "Serve the HTTP API on this port (HTTP_PORT)")
	f.BoolVar(&cfg.Stdio, "stdio", cfg.Stdio, "Serve MCP on stdin/stdout (STDIO)")
	f.BoolVar(&cfg.LaunchBrowser, "launch", cfg.LaunchBrowser, "Launch a headless Chromium instead of attaching (LAUNCH_BROWSER)")
	f.StringVar(&cfg.ChromiumPath, "chromium-path", cfg.ChromiumPath, "Browser binary for --launch (CHROMIUM_PATH)")

	root.AddCommand(newTargetsCmd(cfg))
	root.AddCommand(newSessionsCmd(cfg))
	root.AddCommand(newVersionCmd())

	return root
}

// reaperInterval checks a few times per idle timeout, within [1s, 1m]
func reaperInterval(timeout time.Duration) time.Duration {
	return min(max(timeout/4, time.Second), time.Minute)
}

func run(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := slog.Default()
	logger.Info("browser-bridge starting",
		"version", version,
		"chrome", fmt.Sprintf("%s:%d", cfg.ChromeHost, cfg.ChromePort),
		"stdio", cfg.Stdio,
		"http_port", cfg.HTTPPort,
		"domains", cfg.Domains,
	)

	collector := metrics.NewCollector(metrics.DefaultNamespace)

	host, port := cfg.ChromeHost, cfg.ChromePort
	var proc *browser.Process
	if cfg.LaunchBrowser {
		binary, err := browser.FindChromium(cfg.ChromiumPath)
		if err != nil {
			return err
		}
		proc, err = browser.Launch(ctx, browser.Options{BinaryPath: binary, Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to launch browser: %w", err)
		}
		defer proc.Stop()
		host, port = "127.0.0.1", proc.DebugPort
	}

	opts := session.Options{
		Domains:            cfg.Domains,
		CallTimeout:        cfg.CallTimeout,
		PollInterval:       cfg.PollInterval,
		NavigationTimeout:  cfg.NavigationTimeout,
		Observer:           collector,
		WaitObserver:       collector,
		ConnectionObserver: collector,
		Logger:             logger,
	}

	if cfg.RedisAddr != "" {
		client, err := storage.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Repository = storage.NewSessionRepository(client, cfg.SessionTTL)
		logger.Info("session persistence enabled", "redis", cfg.RedisAddr, "ttl", cfg.SessionTTL)
	}

	sessions := session.NewManager(cdp.NewDiscovery(host, port), opts)
	defer sessions.Close()

	registry := tools.NewRegistry(sessions, tools.Options{Observer: collector, Logger: logger})

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Stdio {
		srv := mcp.NewServer(registry, sessions, mcp.Options{Version: version, Logger: logger})
		g.Go(func() error {
			if err := srv.Serve(gctx, os.Stdin, os.Stdout); err != nil {
				return err
			}
			if gctx.Err() == nil {
				return errStdioClosed
			}
			return nil
		})
	}

	if cfg.HTTPPort != "" {
		httpSrv := api.NewServer(registry, sessions, api.Options{
			Port:     cfg.HTTPPort,
			Metrics:  collector.Handler(),
			Recorder: collector,
			Logger:   logger,
		})
		g.Go(httpSrv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return httpSrv.Shutdown(shutdownCtx)
		})
	}

	if cfg.IdleTimeout > 0 {
		g.Go(func() error {
			return sessions.RunIdleReaper(gctx, reaperInterval(cfg.IdleTimeout), cfg.IdleTimeout)
		})
	}

	if proc != nil {
		g.Go(func() error {
			select {
			case <-proc.Exited():
				return errors.New("launched browser exited")
			case <-gctx.Done():
				return nil
			}
		})
	}

	err := g.Wait()
	logger.Info("shutdown initiated")
	if err != nil && !errors.Is(err, errStdioClosed) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
