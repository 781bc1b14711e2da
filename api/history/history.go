package history

import (
	"fmt"
	"strings"
)

type AddOrderHistoryRequest struct {
	OrderId      string `json:"orderId"`
	CustomerName string `json:"customerName"`
	Amount       int64  `json:"amount"`
}

func (r *AddOrderHistoryRequest) Validate() error {
	if strings.TrimSpace(r.OrderId) == "" {
		return fmt.Errorf("orderId is required")
	}
	if r.Amount < 0 {
		return fmt.Errorf("amount must not be negative")
	}
	return nil
}

type AddOrderHistoryReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CancelOrderHistoryRequest struct {
	OrderId string `json:"orderId"`
}

func (r *CancelOrderHistoryRequest) Validate() error {
	if strings.TrimSpace(r.OrderId) == "" {
		return fmt.Errorf("orderId is required")
	}
	return nil
}

type CancelOrderHistoryReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
