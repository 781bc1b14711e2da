package app

import (
	"log/slog"

	historyapi "github.com/webitel/order-history/api/history"
	handler "github.com/webitel/order-history/internal/handler/grpc"
	"google.golang.org/grpc"
)

// serviceRegistration holds information for initializing and registering a gRPC service.
type serviceRegistration struct {
	init     func(*App) (any, error)                    // Initialization function for *App
	register func(grpcServer *grpc.Server, service any) // Registration function for gRPC server
	name     string                                     // Service name for logging
}

var services = []serviceRegistration{
	{
		init: func(a *App) (any, error) { return handler.NewHistoryHandler(a.log), nil },
		register: func(s *grpc.Server, svc any) {
			historyapi.RegisterHistoryServer(s, svc.(historyapi.HistoryServer))
		},
		name: historyapi.ServiceName,
	},
}

// RegisterServices initializes and registers all gRPC services. A service that fails to
// initialize aborts startup, so the instance never registers with a partial API.
func RegisterServices(grpcServer *grpc.Server, appInstance *App) error {
	for _, service := range services {
		svc, err := service.init(appInstance)
		if err != nil {
			appInstance.log.Error("order_history.app.service_init_failed",
				slog.String("service", service.name),
				slog.Any("error", err),
			)
			return err
		}
		service.register(grpcServer, svc)
		appInstance.log.Info("order_history.app.service_registered", slog.String("service", service.name))
	}
	return nil
}
