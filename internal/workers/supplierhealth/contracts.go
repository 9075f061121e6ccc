package supplierhealth

import (
	"context"

	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/stories/notifications"
)

type (
	SupplierClient interface {
		GetBalance(ctx context.Context) (*supplier.Balance, error)
	}

	AdminNotifier interface {
		NotifyAdmins(ctx context.Context, typ notifications.Type, title, message string, opts notifications.NotifyOptions) (notifications.BroadcastResult, error)
	}
)
