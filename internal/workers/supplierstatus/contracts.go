package supplierstatus

import (
	"context"

	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/stories/orders"
)

type (
	OrderService interface {
		ListOrders(ctx context.Context, criteria orders.ListCriteria) ([]*orders.Order, error)
		ApplySupplierStatus(ctx context.Context, order *orders.Order, status supplier.OrderStatus) (*orders.Order, error)
		PollRefillStatus(ctx context.Context, id string) (*orders.Order, error)
	}

	SupplierClient interface {
		CheckMultipleOrderStatus(ctx context.Context, orderIDs []string) (map[string]supplier.BatchResult, error)
	}
)
