package payment

import (
	"context"

	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/localization"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/users"

	"github.com/shopspring/decimal"
)

type (
	Storage interface {
		CreateTransaction(ctx context.Context, tx Transaction) (*Transaction, error)
		GetTransaction(ctx context.Context, criteria GetCriteria) (*Transaction, error)
		UpdateTransaction(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Transaction, error)
		ListTransactions(ctx context.Context, criteria ListCriteria) ([]*Transaction, error)
		// ApplyRefund writes the original, the refund row and the order in one transaction.
		ApplyRefund(ctx context.Context, write RefundWrite) (*RefundOutcome, error)
		// SaveWebhookEvent returns false when the event was already recorded.
		SaveWebhookEvent(ctx context.Context, event WebhookEvent) (bool, error)
	}

	// Gateway is implemented by checkout.Client and checkout.MockClient.
	Gateway interface {
		CreateHostedSession(ctx context.Context, req checkout.HostedSessionRequest) (*checkout.HostedSession, error)
		CreateDirectPayment(ctx context.Context, req checkout.PaymentRequest) (*checkout.Payment, error)
		GetPaymentDetails(ctx context.Context, paymentID string) (*checkout.Payment, error)
		Refund(ctx context.Context, paymentID string, minorAmount int64, reference string) (*checkout.Refund, error)
	}

	OrderService interface {
		GetOrder(ctx context.Context, id string) (*orders.Order, error)
		CreateOrder(ctx context.Context, req orders.CreateOrderRequest) (*orders.Order, error)
		ConfirmPayment(ctx context.Context, id string) (*orders.Order, error)
		MarkPaymentFailed(ctx context.Context, id string) (*orders.Order, error)
		MarkRefunded(ctx context.Context, id string) (*orders.Order, error)
		DispatchToSupplier(ctx context.Context, id string) (*orders.Order, error)
	}

	UserService interface {
		GetUser(ctx context.Context, id string) (*users.User, error)
		FindOrCreateGuest(ctx context.Context, email, username string) (*users.User, error)
		AddSpent(ctx context.Context, id string, amount decimal.Decimal) error
	}

	Notifier interface {
		Notify(ctx context.Context, userID string, typ notifications.Type, title, message string, opts notifications.NotifyOptions) (notifications.Result, error)
	}

	Templates interface {
		Message(key string, params map[string]interface{}) localization.Message
	}
)
