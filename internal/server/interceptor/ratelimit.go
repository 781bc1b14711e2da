package interceptor

import (
	"context"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"

	cerr "github.com/webitel/order-history/internal/errors"
)

// RateLimitUnaryServerInterceptor rejects calls above rps (token bucket with burst)
// with ResourceExhausted. Health checks are never limited.
func RateLimitUnaryServerInterceptor(rps float64, burst int) grpc.UnaryServerInterceptor {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if info.FullMethod != healthCheckMethod && !limiter.Allow() {
			return nil, cerr.New(
				"rate limit exceeded",
				cerr.WithID("interceptor.rate_limit"),
				cerr.WithCode(codes.ResourceExhausted),
			)
		}
		return handler(ctx, req)
	}
}

const healthCheckMethod = "/grpc.health.v1.Health/Check"
