package logging

import (
	"context"
	"log/slog"
	"os"

	slogutil "github.com/webitel/webitel-go-kit/infra/otel/log/bridge/slog"
	otelsdk "github.com/webitel/webitel-go-kit/infra/otel/sdk"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/stdout"
)

// Resource describes this process for every exported log record.
func Resource(name, version, instanceID, namespace string) *resource.Resource {
	return resource.NewSchemaless(
		semconv.ServiceName(name),
		semconv.ServiceVersion(version),
		semconv.ServiceInstanceID(instanceID),
		semconv.ServiceNamespace(namespace),
	)
}

// Setup redirects slog.Default into OpenTelemetry and returns the exporter shutdown.
// The level comes from OTEL_LOG_LEVEL, info by default.
func Setup(ctx context.Context, service *resource.Resource) (func(context.Context) error, error) {
	var verbose slog.LevelVar
	verbose.Set(slog.LevelInfo)
	if input := os.Getenv("OTEL_LOG_LEVEL"); input != "" {
		_ = verbose.UnmarshalText([]byte(input))
	}

	shutdown, err := otelsdk.Configure(
		ctx,
		otelsdk.WithResource(service),
		otelsdk.WithLogBridge(func() {
			slog.SetDefault(slog.New(
				slogutil.WithLevel(
					&verbose,
					otelslog.NewHandler("slog"),
				),
			))
		}),
	)
	if err != nil {
		slog.ErrorContext(ctx, "order_history.otel.setup_failed", slog.Any("error", err))
		return nil, err
	}

	slog.DebugContext(ctx, "order_history.otel.setup_complete", slog.String("level", verbose.Level().String()))
	return shutdown, nil
}
