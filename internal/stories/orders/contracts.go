package orders

import (
	"context"

	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/localization"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/notifications"
)

type (
	Storage interface {
		CreateOrder(ctx context.Context, order Order) (*Order, error)
		GetOrder(ctx context.Context, criteria GetCriteria) (*Order, error)
		UpdateOrder(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Order, error)
		ListOrders(ctx context.Context, criteria ListCriteria) ([]*Order, error)
		// LastOrderNumber returns the greatest order number starting with prefix, or "".
		LastOrderNumber(ctx context.Context, prefix string) (string, error)
		OrderStats(ctx context.Context, criteria ListCriteria) ([]StatsRow, error)
	}

	Catalog interface {
		ResolveService(ctx context.Context, selector catalog.Selector) (*catalog.Service, error)
	}

	// SupplierClient is the fulfillment panel.
	SupplierClient interface {
		PlaceOrder(ctx context.Context, serviceID, link string, quantity int) (string, error)
		CheckOrderStatus(ctx context.Context, orderID string) (*supplier.OrderStatus, error)
		RequestRefill(ctx context.Context, orderID string) (string, error)
		RefillStatus(ctx context.Context, refillID string) (string, error)
		CancelOrder(ctx context.Context, orderID string) error
	}

	Notifier interface {
		Notify(ctx context.Context, userID string, typ notifications.Type, title, message string, opts notifications.NotifyOptions) (notifications.Result, error)
	}

	Templates interface {
		Message(key string, params map[string]interface{}) localization.Message
	}
)
