package interceptor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/webitel/order-history/internal/errors"
	outerror "github.com/webitel/webitel-go-kit/pkg/errors"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// OuterInterceptor recovers handler panics and converts errors into gRPC statuses.
// A failing request never affects other in-flight calls.
func OuterInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if panicErr := recover(); panicErr != nil {
				slog.ErrorContext(ctx, "[PANIC RECOVER]", slog.Any("err", panicErr), slog.String("stack", string(debug.Stack())))
				resp = nil
				err = logAndReturnGRPCError(ctx, errors.Internal(
					fmt.Sprintf("panic: %v", panicErr),
					errors.WithID("interceptor.outer.panic"),
				), info)
			}
		}()
		resp, err = handler(ctx, req)
		if err != nil {
			return nil, logAndReturnGRPCError(ctx, err, info)
		}
		return resp, nil
	}
}

// logAndReturnGRPCError logs the error and converts it to a gRPC error response.
func logAndReturnGRPCError(ctx context.Context, err error, info *grpc.UnaryServerInfo) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		// already a status, produced by grpc itself or a nested interceptor
		return err
	}
	slog.WarnContext(ctx, fmt.Sprintf("method %s, error: %v", info.FullMethod, err.Error()))
	span := trace.SpanFromContext(ctx) // OpenTelemetry tracing
	span.RecordError(err)
	span.SetStatus(otelcodes.Error, info.FullMethod)

	var (
		grpcCode codes.Code
		httpCode int
		id       string
	)
	slog.ErrorContext(ctx, errors.Details(err))
	switch grpcCode = errors.Code(err); grpcCode {
	case codes.Unauthenticated:
		httpCode = http.StatusUnauthorized
		id = "api.process.unauthenticated"
	case codes.PermissionDenied:
		httpCode = http.StatusForbidden
		id = "api.process.unauthorized"
	case codes.NotFound, codes.Aborted, codes.InvalidArgument, codes.AlreadyExists:
		httpCode = http.StatusBadRequest
		id = "api.process.bad_args"
	case codes.ResourceExhausted:
		httpCode = http.StatusTooManyRequests
		id = "api.process.rate_limited"
	case codes.Unavailable:
		httpCode = http.StatusServiceUnavailable
		id = "api.process.unavailable"
	default:
		grpcCode = codes.Internal
		httpCode = http.StatusInternalServerError
		id = "api.process.internal"
	}
	grpcErr := &outerror.ApplicationError{
		Id:            id,
		DetailedError: err.Error(),
		StatusCode:    httpCode,
		Status:        http.StatusText(httpCode),
	}
	marshaledErr, _ := json.Marshal(grpcErr)
	return status.Error(grpcCode, string(marshaledErr))
}
