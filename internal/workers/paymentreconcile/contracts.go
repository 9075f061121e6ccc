package paymentreconcile

import (
	"context"
	"time"

	"engagement-shop/internal/stories/payment"
)

type PaymentService interface {
	PendingForReconcile(ctx context.Context, cutoff time.Time, limit int) ([]*payment.Transaction, error)
	Reconcile(ctx context.Context, tx *payment.Transaction) (*payment.ProcessResult, error)
}
