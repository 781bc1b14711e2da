// Package lifecycle keeps the service discoverable exactly while it can serve.
//
// Run walks the states in a fixed order:
//
//	Unregistered -> Registered:  pre-emptive deregister, register instance + TTL check
//	Registered   -> Serving:     discover check id, bind listener, start heartbeat, serve
//	Serving      -> Draining:    context cancelled, Stop called or Serve returned
//	Draining     -> Terminated:  stop heartbeat, drain server, deregister
//
// Every startup failure after registration rolls the registration back and ends in Failed.
package lifecycle

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/internal/metrics"
	"github.com/webitel/order-history/registry"
)

var ErrAlreadyStarted = stderrors.New("lifecycle: already started")

const (
	DefaultDrainTimeout      = 10 * time.Second
	DefaultDeregisterTimeout = 5 * time.Second
)

// Server is the RPC server driven by the lifecycle.
type Server interface {
	Listen() error
	// Serve blocks until GracefulStop; it returns nil on a requested stop.
	Serve() error
	GracefulStop(ctx context.Context)
}

type Config struct {
	Instance          registry.ServiceInstance
	Check             registry.TTLCheckSpec
	HeartbeatInterval time.Duration
	Discovery         registry.DiscoveryOptions
	DrainTimeout      time.Duration
	DeregisterTimeout time.Duration
}

type Lifecycle struct {
	client registry.Client
	server Server
	config Config
	log    *slog.Logger

	state     atomic.Int32
	started   atomic.Bool
	heartbeat *registry.Heartbeat

	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(client registry.Client, server Server, config Config, log *slog.Logger) *Lifecycle {
	if log == nil {
		log = slog.Default()
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = registry.ResolveInterval(config.Check.TTL, 0)
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = DefaultDrainTimeout
	}
	if config.DeregisterTimeout <= 0 {
		config.DeregisterTimeout = DefaultDeregisterTimeout
	}
	l := &Lifecycle{
		client: client,
		server: server,
		config: config,
		log:    log.With(slog.String("service_id", config.Instance.ID)),
		stopCh: make(chan struct{}),
	}
	metrics.LifecycleState.Set(float64(Unregistered))
	return l
}

func (l *Lifecycle) State() State { return State(l.state.Load()) }

// Serving reports whether the instance is registered, heartbeating and accepting requests.
func (l *Lifecycle) Serving() bool { return l.State() == Serving }

// Stop requests the Serving -> Draining transition. Safe to call any number of times.
func (l *Lifecycle) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

func (l *Lifecycle) transition(to State) {
	from := State(l.state.Swap(int32(to)))
	metrics.LifecycleState.Set(float64(to))
	l.log.Info("order_history.lifecycle.transition",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
}

// Run executes the whole lifecycle and returns once the instance is deregistered.
// It returns a *StartupError when Serving is never reached, the Serve error when the
// server died on its own, and nil after a requested shutdown.
func (l *Lifecycle) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	select {
	case <-l.stopCh:
		l.transition(Terminated)
		return nil
	default:
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := l.register(ctx); err != nil {
		l.transition(Failed)
		return &StartupError{Phase: PhaseRegister, Err: err}
	}
	l.transition(Registered)

	serveErr, err := l.startServing(ctx)
	if err != nil {
		l.rollback()
		l.transition(Failed)
		return err
	}
	l.transition(Serving)

	var runErr error
	select {
	case <-ctx.Done():
		l.log.Info("order_history.lifecycle.shutdown_requested", slog.Any("cause", context.Cause(ctx)))
	case err := <-serveErr:
		if err != nil {
			l.log.Error("order_history.lifecycle.server_failed", slog.Any("error", err))
			runErr = err
		}
		serveErr = nil
	}

	l.drain(serveErr)
	l.transition(Terminated)
	return runErr
}

func (l *Lifecycle) register(ctx context.Context) error {
	id := l.config.Instance.ID
	// Replace a stale registration left by a previous process with the same id.
	if err := l.client.Deregister(ctx, id); err != nil && !stderrors.Is(err, registry.ErrServiceNotFound) {
		l.log.Warn("order_history.lifecycle.pre_deregister_failed", slog.Any("error", err))
	}
	if err := l.client.Register(ctx, l.config.Instance, l.config.Check); err != nil {
		l.log.Error("order_history.lifecycle.register_failed", slog.String("error", errors.Details(err)))
		return err
	}
	return nil
}

// startServing performs the Registered -> Serving entry actions and returns the channel the
// Serve result will be delivered on.
func (l *Lifecycle) startServing(ctx context.Context) (chan error, error) {
	checkID, err := registry.DiscoverCheck(ctx, l.client, l.config.Instance.ID, l.config.Discovery, l.log)
	if err != nil {
		l.log.Error("order_history.lifecycle.discover_failed", slog.Any("error", err))
		return nil, &StartupError{Phase: PhaseDiscover, Err: err}
	}

	if err := l.server.Listen(); err != nil {
		l.log.Error("order_history.lifecycle.listen_failed", slog.Any("error", err))
		return nil, &StartupError{Phase: PhaseListen, Err: err}
	}

	hb := registry.NewHeartbeat(l.client, checkID, l.config.HeartbeatInterval, l.config.Check.TTL, l.log)
	if err := hb.Start(context.WithoutCancel(ctx)); err != nil {
		l.server.GracefulStop(ctx)
		return nil, &StartupError{Phase: PhaseStart, Err: err}
	}
	l.heartbeat = hb

	serveErr := make(chan error, 1)
	go func() { serveErr <- l.server.Serve() }()
	return serveErr, nil
}

// drain stops the heartbeat, then the server, then deregisters. serveErr is nil when Serve
// has already returned.
func (l *Lifecycle) drain(serveErr chan error) {
	l.transition(Draining)

	if l.heartbeat != nil {
		l.heartbeat.Stop()
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), l.config.DrainTimeout)
	l.server.GracefulStop(drainCtx)
	cancel()
	if serveErr != nil {
		if err := <-serveErr; err != nil {
			l.log.Warn("order_history.lifecycle.serve_returned_error", slog.Any("error", err))
		}
	}

	l.deregister()
}

// rollback removes a partially visible instance after a failed startup.
func (l *Lifecycle) rollback() {
	if l.heartbeat != nil {
		l.heartbeat.Stop()
	}
	l.deregister()
}

func (l *Lifecycle) deregister() {
	ctx, cancel := context.WithTimeout(context.Background(), l.config.DeregisterTimeout)
	defer cancel()

	err := l.client.Deregister(ctx, l.config.Instance.ID)
	switch {
	case err == nil:
		l.log.Info("order_history.lifecycle.deregistered")
	case stderrors.Is(err, registry.ErrServiceNotFound):
		l.log.Info("order_history.lifecycle.already_deregistered")
	default:
		l.log.Error("order_history.lifecycle.deregister_failed", slog.String("error", errors.Details(err)))
	}
}
