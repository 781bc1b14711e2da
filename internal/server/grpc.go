package server

import (
	"context"
	stderrors "errors"
	"log/slog"
	"net"
	"sync"

	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/internal/server/interceptor"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type Server struct {
	Server  *grpc.Server
	health  *health.Server
	address string

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
}

// Option tunes BuildServer.
type Option func(*options)

type options struct {
	rps   float64
	burst int
}

// WithRateLimit limits unary calls to rps with the given burst. Zero rps disables the limit.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rps = rps
		o.burst = burst
	}
}

// BuildServer constructs a gRPC server with interceptors and the standard health service.
// The listener is not opened until Listen.
func BuildServer(address string, opts ...Option) *Server {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	chain := []grpc.UnaryServerInterceptor{interceptor.OuterInterceptor()}
	if o.rps > 0 {
		chain = append(chain, interceptor.RateLimitUnaryServerInterceptor(o.rps, o.burst))
	}
	chain = append(chain, interceptor.ValidateUnaryServerInterceptor())

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)

	return &Server{
		Server:  s,
		health:  healthServer,
		address: address,
	}
}

// Listen opens the TCP listener on the bind address.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Internal(
			"unable to listen",
			errors.WithID("server.listen.error"),
			errors.WithCause(err),
		)
	}
	s.listener = listener
	slog.Info("order_history.server.listening", slog.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve blocks until the server is stopped. A stop before Serve is not an error.
func (s *Server) Serve() error {
	s.mu.Lock()
	listener, stopped := s.listener, s.stopped
	s.mu.Unlock()
	if stopped {
		return nil
	}
	if listener == nil {
		return errors.Internal("server is not listening", errors.WithID("server.serve.not_listening"))
	}

	s.health.Resume()
	for name := range s.Server.GetServiceInfo() {
		s.health.SetServingStatus(name, grpc_health_v1.HealthCheckResponse_SERVING)
	}
	err := s.Server.Serve(listener)
	if err != nil && !stderrors.Is(err, grpc.ErrServerStopped) {
		return errors.Internal(
			"grpc serve failed",
			errors.WithID("server.start.serve.error"),
			errors.WithCause(err),
		)
	}
	return nil
}

// GracefulStop flips health to NOT_SERVING, stops accepting connections and waits for in-flight
// requests. When ctx expires first the remaining connections are closed forcibly.
func (s *Server) GracefulStop(ctx context.Context) {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.Server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("order_history.server.drain_timeout", slog.String("action", "forcing stop"))
		s.Server.Stop()
		<-done
	}

	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener != nil {
		// already closed by grpc if Serve ran
		_ = listener.Close()
	}
}
