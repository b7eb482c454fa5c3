package domain

import "context"

type Service interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*Order, error)
	GetOrder(ctx context.Context, id string) (*Order, error)
	// Confirm settles an order with the gateway. Confirming an order that is
	// already confirmed does not call the gateway again.
	Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error)
	Fail(ctx context.Context, orderID, code, message string) (*Order, error)
	ListOrders(ctx context.Context, req ListOrdersRequest) ([]Order, error)
	// ApplyEvent records a webhook event once and moves its order. A
	// duplicate event leaves the order untouched and returns it as stored.
	ApplyEvent(ctx context.Context, event *PaymentEvent) (*Order, error)
}
