package app

import (
	"context"
	"log/slog"

	cfg "github.com/webitel/order-history/config"
	"github.com/webitel/order-history/internal/domain/model"
	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/internal/lifecycle"
	"github.com/webitel/order-history/internal/metrics"
	"github.com/webitel/order-history/internal/server"
	"github.com/webitel/order-history/registry"
	"github.com/webitel/order-history/registry/consul"
	"golang.org/x/sync/errgroup"
)

type App struct {
	Config    *cfg.AppConfig
	log       *slog.Logger
	shutdown  func(ctx context.Context) error
	registry  registry.Client
	server    *server.Server
	lifecycle *lifecycle.Lifecycle
	probes    *metrics.Server
}

// New creates a fully initialized App talking to the configured consul agent.
func New(config *cfg.AppConfig, shutdown func(ctx context.Context) error) (*App, error) {
	client, err := consul.NewConsulRegistry(consul.Config{
		Address: config.Consul.Address,
		Scheme:  config.Consul.Scheme,
		Token:   config.Consul.Token,
		Timeout: config.Consul.Timeout,
	})
	if err != nil {
		return nil, errors.New("unable to initialize registry client", errors.WithCause(err))
	}
	return newApp(config, client, shutdown)
}

func newApp(config *cfg.AppConfig, client registry.Client, shutdown func(ctx context.Context) error) (*App, error) {
	app := &App{
		Config:   config,
		shutdown: shutdown,
		registry: client,
		log:      slog.Default().With(slog.String("service_id", config.Consul.Id)),
	}

	app.server = server.BuildServer(
		config.Grpc.BindAddress(),
		server.WithRateLimit(config.Grpc.RateLimit, config.Grpc.RateBurst),
	)

	// --------- Service Registration (GRPC) ---------
	if err := RegisterServices(app.server.Server, app); err != nil {
		return nil, errors.New("failed to register grpc services", errors.WithCause(err))
	}

	app.lifecycle = lifecycle.New(client, app.server, lifecycleConfig(config), app.log)

	if config.Metrics != nil && config.Metrics.Address != "" {
		app.probes = metrics.NewServer(config.Metrics.Address, model.CurrentVersion, config.Consul.Id, app.lifecycle.Serving)
	}
	return app, nil
}

func lifecycleConfig(config *cfg.AppConfig) lifecycle.Config {
	service := config.Service
	discovery := registry.DefaultDiscoveryOptions()
	discovery.MaxAttempts = uint(config.Discovery.Attempts)
	if config.Discovery.Backoff > 0 {
		discovery.InitialBackoff = config.Discovery.Backoff
	}
	if config.Consul.Timeout > 0 {
		discovery.AttemptTimeout = config.Consul.Timeout
	}

	return lifecycle.Config{
		Instance: registry.ServiceInstance{
			Name:    service.Name,
			ID:      config.Consul.Id,
			Address: config.Grpc.AdvertiseHost,
			Port:    config.Grpc.AdvertisePort,
			Tags:    service.Tags,
			Meta: map[string]string{
				"scheme":  "grpc",
				"version": model.CurrentVersion,
			},
		},
		Check:             registry.NewTTLCheckSpec(service.TTL, service.DeregisterAfter),
		HeartbeatInterval: registry.ResolveInterval(service.TTL, service.HeartbeatInterval),
		Discovery:         discovery,
		DrainTimeout:      config.Grpc.DrainTimeout,
		DeregisterTimeout: config.Consul.Timeout,
	}
}

// Start runs the registration lifecycle and the probe server until ctx is cancelled,
// Stop is called or one of them fails. The probe server outlives the lifecycle only
// until the instance is deregistered.
func (app *App) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	probeCtx, stopProbes := context.WithCancel(gctx)
	defer stopProbes()

	g.Go(func() error {
		defer stopProbes()
		return app.lifecycle.Run(gctx)
	})
	if app.probes != nil {
		g.Go(func() error {
			return app.probes.Run(probeCtx)
		})
	}

	return g.Wait()
}

// Stop requests a graceful drain; Start returns once the instance is deregistered.
func (app *App) Stop() {
	app.log.Info("order_history.app.stop_requested")
	app.lifecycle.Stop()
}

// State exposes the lifecycle state.
func (app *App) State() lifecycle.State {
	return app.lifecycle.State()
}

// Close flushes telemetry. Call after Start has returned.
func (app *App) Close(ctx context.Context) error {
	if app.shutdown == nil {
		return nil
	}
	if err := app.shutdown(ctx); err != nil {
		app.log.Error("order_history.app.shutdown_hook_failed", slog.Any("error", err))
		return err
	}
	return nil
}
