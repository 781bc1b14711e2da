package grpc

import (
	"context"
	"log/slog"

	historyapi "github.com/webitel/order-history/api/history"
)

const replyDone = "done"

// HistoryHandler acknowledges order-history records. It keeps no state between calls.
type HistoryHandler struct {
	log *slog.Logger
	historyapi.UnimplementedHistoryServer
}

func NewHistoryHandler(log *slog.Logger) *HistoryHandler {
	if log == nil {
		log = slog.Default()
	}
	return &HistoryHandler{log: log}
}

func (h *HistoryHandler) AddOrderHistory(ctx context.Context, req *historyapi.AddOrderHistoryRequest) (*historyapi.AddOrderHistoryReply, error) {
	h.log.DebugContext(ctx, "order_history.handler.add_order_history",
		slog.String("order_id", req.OrderId),
		slog.String("customer_name", req.CustomerName),
		slog.Int64("amount", req.Amount),
	)
	return &historyapi.AddOrderHistoryReply{Success: true, Message: replyDone}, nil
}

func (h *HistoryHandler) CancelOrderHistory(ctx context.Context, req *historyapi.CancelOrderHistoryRequest) (*historyapi.CancelOrderHistoryReply, error) {
	h.log.DebugContext(ctx, "order_history.handler.cancel_order_history",
		slog.String("order_id", req.OrderId),
	)
	return &historyapi.CancelOrderHistoryReply{Success: true, Message: replyDone}, nil
}
