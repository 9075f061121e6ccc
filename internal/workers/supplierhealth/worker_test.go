package supplierhealth

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/stories/notifications"

	"github.com/shopspring/decimal"
)

type fakeSupplier struct {
	balance decimal.Decimal
}

func (f *fakeSupplier) GetBalance(context.Context) (*supplier.Balance, error) {
	return &supplier.Balance{Amount: f.balance, Currency: "USD"}, nil
}

type fakeNotifier struct {
	calls int
}

func (f *fakeNotifier) NotifyAdmins(context.Context, notifications.Type, string, string, notifications.NotifyOptions) (notifications.BroadcastResult, error) {
	f.calls++
	return notifications.BroadcastResult{Sent: 1}, nil
}

func TestCheckAlertsOncePerDip(t *testing.T) {
	fs := &fakeSupplier{}
	fn := &fakeNotifier{}
	w := NewWorker(fs, fn, decimal.NewFromInt(25), "@every 10m", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()

	steps := []struct {
		balance   string
		wantCalls int
	}{
		{balance: "100", wantCalls: 0},
		{balance: "12.40", wantCalls: 1},
		{balance: "8", wantCalls: 1},
		{balance: "30", wantCalls: 1},
		{balance: "24.99", wantCalls: 2},
	}
	for _, step := range steps {
		fs.balance = decimal.RequireFromString(step.balance)
		if err := w.check(ctx); err != nil {
			t.Fatalf("check(%s): %v", step.balance, err)
		}
		if fn.calls != step.wantCalls {
			t.Fatalf("after balance %s: %d alerts, want %d", step.balance, fn.calls, step.wantCalls)
		}
	}
}
