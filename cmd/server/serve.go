package main

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/isdmx/runbox/config"
	"github.com/isdmx/runbox/httpapi"
	"github.com/isdmx/runbox/logger"
	"github.com/isdmx/runbox/mcpserver"
	"github.com/isdmx/runbox/metrics"
	"github.com/isdmx/runbox/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the execution service (default command)",
	RunE:  runServe,
}

func runServe(*cobra.Command, []string) error {
	app := newApp(configPath)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func newApp(path string) *fx.App {
	return fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			func() (*config.Config, error) { return config.Load(path) },

			// Logger with configuration
			logger.NewFromConfig,

			// Metrics, also the engine's telemetry sink
			fx.Annotate(metrics.NewCollector, fx.As(fx.Self()), fx.As(new(sandbox.Recorder))),

			// Sandbox
			sandbox.NewContainerRuntimeFromConfig,
			sandbox.NewIsolationSelectorFromConfig,
			sandbox.NewWorkspaceManagerFromConfig,
			sandbox.NewJanitorFromConfig,
			sandbox.NewExecutor,
			sandbox.NewLimitedExecutor,

			// Transports
			mcpserver.New,
			newHTTPServer,
		),

		fx.Invoke(
			registerRuntime,
			registerIsolationProbe,
			registerJanitor,
			registerTransport,
		),

		// Use the application logger for fx logs
		fx.WithLogger(logger.FxLogger),
	)
}

func newHTTPServer(
	cfg *config.Config,
	log *zap.Logger,
	executor sandbox.SandboxExecutor,
	selector *sandbox.IsolationSelector,
	collector *metrics.Collector,
	mcp *mcpserver.MCPServer,
) *httpapi.Server {
	var opts []httpapi.Option
	if cfg.Server.MCPEnabled {
		opts = append(opts, httpapi.WithMCPHandler(mcp.Handler()))
	}
	return httpapi.New(cfg, log, executor, selector, collector, opts...)
}

// registerRuntime releases the container API client on shutdown.
func registerRuntime(lc fx.Lifecycle, runtime sandbox.ContainerRuntime) {
	closer, ok := runtime.(io.Closer)
	if !ok {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return closer.Close()
		},
	})
}

// registerIsolationProbe decides isolation before the first request arrives.
func registerIsolationProbe(lc fx.Lifecycle, selector *sandbox.IsolationSelector, collector *metrics.Collector) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			collector.SetIsolation(selector.Decide(ctx))
			return nil
		},
	})
}

func registerJanitor(lc fx.Lifecycle, janitor *sandbox.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			janitor.Start()
			return nil
		},
		OnStop: janitor.Stop,
	})
}

// registerTransport starts either the HTTP gateway or the MCP stdio server.
func registerTransport(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	cfg *config.Config,
	log *zap.Logger,
	httpServer *httpapi.Server,
	mcp *mcpserver.MCPServer,
) {
	switch cfg.Server.Transport {
	case "stdio":
		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := mcp.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil {
						log.Error("MCP stdio server stopped", zap.Error(err))
					}
					// the client closed stdin
					_ = shutdowner.Shutdown()
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	default:
		lc.Append(fx.Hook{
			OnStart: httpServer.Start,
			OnStop:  httpServer.Shutdown,
		})
	}
}
