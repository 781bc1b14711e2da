// Command client calls the order-history service. The target is either a direct host:port
// or, by default, the healthy instances resolved through consul.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/mbobakov/grpc-consul-resolver"
	"github.com/spf13/pflag"
	historyapi "github.com/webitel/order-history/api/history"
	"github.com/webitel/order-history/internal/errors"
	"github.com/webitel/order-history/registry"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	consul := pflag.String("consul", "127.0.0.1:8500", "Consul agent used to resolve the service")
	service := pflag.String("service_name", registry.DefaultServiceName, "Service to resolve through consul")
	direct := pflag.String("addr", "", "Dial host:port directly instead of resolving through consul")
	orderID := pflag.String("order_id", "o001", "Order id")
	customer := pflag.String("customer", "you", "Customer name")
	amount := pflag.Int64("amount", 1, "Order amount")
	cancelOrder := pflag.Bool("cancel", false, "Cancel the order instead of adding it")
	timeout := pflag.Duration("timeout", 5*time.Second, "Call deadline")
	pflag.Parse()

	target := *direct
	if target == "" {
		target = fmt.Sprintf("consul://%s/%s?healthy=true&wait=14s", *consul, *service)
	}

	conn, err := grpc.NewClient(
		target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultServiceConfig(`{"loadBalancingPolicy": "round_robin"}`),
	)
	if err != nil {
		slog.Error("order_history.client.dial_failed", slog.String("target", target), slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	message, err := call(ctx, historyapi.NewHistoryClient(conn), *cancelOrder, *orderID, *customer, *amount)
	if err != nil {
		slog.Error("order_history.client.call_failed", slog.String("error", errors.Details(err)))
		cancel()
		os.Exit(1)
	}
	fmt.Println("history service client received: " + message)
}

func call(ctx context.Context, client historyapi.HistoryClient, cancelOrder bool, orderID, customer string, amount int64) (string, error) {
	if cancelOrder {
		reply, err := client.CancelOrderHistory(ctx, &historyapi.CancelOrderHistoryRequest{OrderId: orderID})
		if err != nil {
			return "", err
		}
		return reply.Message, nil
	}
	reply, err := client.AddOrderHistory(ctx, &historyapi.AddOrderHistoryRequest{
		OrderId:      orderID,
		CustomerName: customer,
		Amount:       amount,
	})
	if err != nil {
		return "", err
	}
	return reply.Message, nil
}
