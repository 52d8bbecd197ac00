// Command a2ahost runs the A2A protocol host: the JSON-RPC and REST
// dispatchers, SSE streaming, and the background worker pool, wired over
// an in-memory or etcd-backed TaskStore, per spec.md and SPEC_FULL.md.
//
// Usage:
//
//	a2ahost serve --config config.yaml
//	a2ahost version
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/a2ahost/server/pkg/agentcard"
	"github.com/a2ahost/server/pkg/auth"
	"github.com/a2ahost/server/pkg/config"
	"github.com/a2ahost/server/pkg/dispatch"
	"github.com/a2ahost/server/pkg/engine"
	"github.com/a2ahost/server/pkg/logging"
	"github.com/a2ahost/server/pkg/obs"
	"github.com/a2ahost/server/pkg/ratelimiter"
	"github.com/a2ahost/server/pkg/registry"
	"github.com/a2ahost/server/pkg/relay"
	"github.com/a2ahost/server/pkg/taskstore"
	"github.com/a2ahost/server/pkg/transport/httpapi"
	"github.com/a2ahost/server/pkg/transport/jsonrpc"
	"github.com/a2ahost/server/pkg/turn"
	"github.com/a2ahost/server/pkg/workqueue"
)

// CLI defines the command-line surface, mirroring hector's cmd/hector
// kong-based CLI structure.
type CLI struct {
	Version VersionCmd `cmd:"" help:"Show version information."`
	Serve   ServeCmd   `cmd:"" help:"Start the A2A host."`
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		version = info.Main.Version
	}
	fmt.Printf("a2ahost %s\n", version)
	return nil
}

// ServeCmd starts the HTTP listener.
type ServeCmd struct {
	Config string `short:"c" help:"Path to YAML config file." type:"path"`
	DotEnv string `help:"Path to a .env file to load before reading config." default:".env"`
}

func (c *ServeCmd) Run() error {
	if err := config.LoadDotEnv(c.DotEnv); err != nil {
		return err
	}

	cfg := &config.Config{}
	var loader *config.Loader
	if c.Config != "" {
		l, err := config.NewLoader(c.Config)
		if err != nil {
			return err
		}
		loader = l
		loaded, err := loader.Load()
		if err != nil {
			return err
		}
		cfg = loaded
	} else {
		cfg.SetDefaults()
	}

	logger := logging.New(cfg.Logging.Level, nil)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	host, cleanup, err := buildHost(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("a2ahost: build host: %w", err)
	}
	defer cleanup()

	if loader != nil {
		go func() {
			if err := loader.Watch(ctx, func(reloaded *config.Config) {
				logger.Info("config reloaded; restart required to apply server/taskstore changes",
					"path", c.Config)
				_ = reloaded
			}); err != nil {
				logger.Error("config watch failed", "error", err)
			}
		}()
		defer loader.Close()
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: host.mux}

	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("a2ahost listening", "addr", addr, "path", cfg.Server.Path)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErrCh:
		cancel()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	host.queue.Stop(shutdownCtx)
	return nil
}

// hostComponents groups the wired pieces ServeCmd needs for listener
// lifecycle; everything else lives behind host.mux.
type hostComponents struct {
	mux   http.Handler
	queue *workqueue.WorkQueue
}

// buildHost wires C1-C9 together: TaskStore, Engine, Relay registry,
// ServiceLocator (with the built-in echo agent registered under
// "default"), WorkQueue, auth/obs ambient stack, and the two dispatchers
// mounted on one mux, per spec §2's flow diagram.
func buildHost(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*hostComponents, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	store, storeCleanup, err := buildTaskStore(ctx, cfg.TaskStore)
	if err != nil {
		return nil, cleanup, err
	}
	if storeCleanup != nil {
		cleanups = append(cleanups, storeCleanup)
	}

	_, tracerShutdown, err := obs.InitGlobalTracer(ctx, obs.TracerConfig{
		Enabled:      cfg.Observability.TracingEnabled,
		ServiceName:  cfg.Observability.Namespace,
		SamplingRate: cfg.Observability.SamplingRate,
	})
	if err != nil {
		return nil, cleanup, err
	}
	cleanups = append(cleanups, func() { _ = tracerShutdown(context.Background()) })

	metrics, err := obs.NewMetrics(obs.MetricsConfig{
		Enabled:   cfg.Observability.MetricsEnabled,
		Namespace: cfg.Observability.Namespace,
	})
	if err != nil {
		return nil, cleanup, err
	}

	eng := engine.New(store)
	relays := relay.NewRegistry()
	locator := registry.NewServiceLocator()
	if err := locator.RegisterAgent("default", &echoAgent{}); err != nil {
		return nil, cleanup, err
	}

	var limiter *ratelimiter.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimiter.New(cfg.RateLimit.MaxPerWindow, cfg.RateLimit.Window)
	}

	adapter := &turn.Adapter{Relays: relays}
	queue := workqueue.New(workqueue.Config{
		QueueDepth:   cfg.Server.MaxQueueDepth,
		WorkerCount:  cfg.Server.WorkerCount,
		DrainTimeout: cfg.Server.ShutdownTimeout,
	}, locator, adapter, logger, metrics, limiter)

	orchestrator := &dispatch.Orchestrator{
		Engine:  eng,
		Relays:  relays,
		Queue:   queue,
		Locator: locator,
		Logger:  logger,
	}

	var validator *auth.JWTValidator
	if cfg.Auth.JWKSURL != "" {
		v, err := auth.NewJWTValidator(cfg.Auth.JWKSURL, cfg.Auth.Issuer, cfg.Auth.Audience)
		if err != nil {
			return nil, cleanup, fmt.Errorf("a2ahost: build JWT validator: %w", err)
		}
		validator = v
	}

	cardBuilder := agentcard.NewBuilder(agentcard.Card{
		Name:                defaultString(cfg.Agent.Name, "a2ahost"),
		Description:         cfg.Agent.Description,
		Version:             defaultString(cfg.Agent.Version, "dev"),
		ProtocolVersion:     "0.3",
		PreferredTransport:  "JSONRPC",
		Capabilities:        agentcard.Capabilities{Streaming: true},
		DefaultInputModes:   []string{"application/json"},
		DefaultOutputModes:  []string{"application/json"},
		SecuritySchemes:     []agentcard.SecurityScheme{{Type: "http", Scheme: "bearer"}},
		AdditionalInterfaces: []agentcard.Interface{{Transport: "JSONRPC", URL: cfg.Server.Path}},
		Visibility:          agentcard.VisibilityPublic,
	})

	restCfg := httpapi.Config{Prefix: cfg.Server.Path, RequireAuth: cfg.Server.RequireAuth}
	restHandler := httpapi.New(restCfg, orchestrator, eng, cardBuilder, validator, metrics, logger)

	mux := http.NewServeMux()
	mux.Handle("/", restHandler)
	var rpcHandler http.Handler = &jsonrpc.Handler{Orchestrator: orchestrator, Engine: eng, Logger: logger}
	if validator != nil && cfg.Server.RequireAuth {
		rpcHandler = validator.HTTPMiddleware(rpcHandler)
	}
	mux.Handle(cfg.Server.Path+"/v1/jsonrpc", rpcHandler)
	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	return &hostComponents{mux: mux, queue: queue}, cleanup, nil
}

// buildTaskStore selects the Storage backend per config.TaskStoreConfig.
// The etcd backend dials a clientv3.Client against the configured
// endpoints; its Close is returned as the cleanup func so the caller can
// release the connection on shutdown.
func buildTaskStore(ctx context.Context, cfg config.TaskStoreConfig) (taskstore.Storage, func(), error) {
	switch cfg.Backend {
	case config.TaskStoreBackendEtcd:
		client, err := clientv3.New(clientv3.Config{
			Endpoints:   cfg.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
			Context:     ctx,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("a2ahost: dial etcd: %w", err)
		}
		return taskstore.NewEtcdStore(client, cfg.EtcdPrefix), func() { _ = client.Close() }, nil
	default:
		return taskstore.NewMemoryStore(), nil, nil
	}
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func main() {
	cli := &CLI{}
	ctx := kong.Parse(cli, kong.Name("a2ahost"), kong.Description("A2A protocol host"))
	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "a2ahost:", err)
		os.Exit(1)
	}
}
