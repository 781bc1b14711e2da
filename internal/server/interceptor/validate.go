package interceptor

import (
	"context"

	"google.golang.org/grpc"

	cerr "github.com/webitel/order-history/internal/errors"
)

// Validator is implemented by request messages that can check their own fields.
type Validator interface {
	Validate() error
}

// ValidateUnaryServerInterceptor returns a gRPC interceptor for request validation.
func ValidateUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if v, ok := req.(Validator); ok {
			if err := v.Validate(); err != nil {
				return nil, cerr.InvalidArgument(
					err.Error(),
					cerr.WithID("interceptor.validate."+info.FullMethod),
				)
			}
		}
		return handler(ctx, req)
	}
}
