package cmd

import (
	"context"
	stderrors "errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	conf "github.com/webitel/order-history/config"
	"github.com/webitel/order-history/internal/app"
	"github.com/webitel/order-history/internal/domain/model"
	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/internal/lifecycle"
	logging "github.com/webitel/order-history/internal/otel"

	// -------------------- plugin(s) -------------------- //
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/log/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/metric/stdout"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/otlp"
	_ "github.com/webitel/webitel-go-kit/infra/otel/sdk/trace/stdout"
)

const (
	exitOK      = 0
	exitFailure = 1
	// exitStartup signals that the instance never reached serving and was rolled back.
	exitStartup = 2
)

// Run starts the service and exits the process with its status.
func Run() {
	os.Exit(run())
}

func run() int {
	// Load configuration
	config, err := conf.LoadConfig()
	if err != nil {
		slog.Error("order_history.main.configuration_error", slog.String("error", errors.Details(err)))
		return exitFailure
	}

	// slog + OTEL logging
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service := logging.Resource(model.AppServiceName, model.CurrentVersion, config.Consul.Id, model.NamespaceName)
	shutdown, err := logging.Setup(ctx, service)
	if err != nil {
		return exitFailure
	}

	application, err := app.New(config, shutdown)
	if err != nil {
		slog.Error("order_history.main.application_initialization_error", slog.String("error", errors.Details(err)))
		return exitFailure
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Close(closeCtx)
	}()

	slog.Debug("order_history.main.configuration_loaded",
		slog.String("consul", config.Consul.Address),
		slog.String("bind_address", config.Grpc.BindAddress()),
		slog.String("service_name", config.Service.Name),
		slog.String("consul_id", config.Consul.Id),
		slog.Duration("ttl", config.Service.TTL),
	)

	slog.Info("order_history.main.starting_application")
	err = application.Start(ctx)

	var startupErr *lifecycle.StartupError
	switch {
	case err == nil:
		slog.Info("order_history.main.application_stopped",
			slog.String("signal", signalCause(ctx)),
			slog.String("status", "service gracefully stopped"),
		)
		return exitOK
	case stderrors.As(err, &startupErr):
		slog.Error("order_history.main.application_start_error",
			slog.String("phase", string(startupErr.Phase)),
			slog.String("error", errors.Details(startupErr.Err)),
		)
		return exitStartup
	default:
		slog.Error("order_history.main.application_error", slog.String("error", errors.Details(err)))
		return exitFailure
	}
}

func signalCause(ctx context.Context) string {
	if ctx.Err() == nil {
		return "none"
	}
	return context.Cause(ctx).Error()
}
