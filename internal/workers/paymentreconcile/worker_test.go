package paymentreconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"engagement-shop/internal/stories/payment"
)

type fakePayments struct {
	pending    []*payment.Transaction
	cutoff     time.Time
	reconciled []string
	failOn     string
}

func (f *fakePayments) PendingForReconcile(_ context.Context, cutoff time.Time, _ int) ([]*payment.Transaction, error) {
	f.cutoff = cutoff
	return f.pending, nil
}

func (f *fakePayments) Reconcile(_ context.Context, tx *payment.Transaction) (*payment.ProcessResult, error) {
	f.reconciled = append(f.reconciled, tx.ID)
	if tx.ID == f.failOn {
		return nil, errors.New("gateway timeout")
	}
	done := *tx
	done.Status = payment.StatusCompleted
	return &payment.ProcessResult{Transaction: &done}, nil
}

type busyLocker struct {
	busy map[string]bool
}

func (l busyLocker) TryLock(_ context.Context, key string) (func(), bool, error) {
	if l.busy[key] {
		return nil, false, nil
	}
	return func() {}, true, nil
}

func TestRun(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	payments := &fakePayments{
		pending: []*payment.Transaction{
			{ID: "t1", Status: payment.StatusPending},
			{ID: "t2", Status: payment.StatusPending},
			{ID: "t3", Status: payment.StatusPending},
		},
		failOn: "t1",
	}
	locker := busyLocker{busy: map[string]bool{"transaction:t2": true}}
	w := NewWorker(payments, locker, Config{Schedule: "@every 30s", MinAge: time.Minute, BatchSize: 50},
		func() time.Time { return now }, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := w.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if want := now.Add(-time.Minute); !payments.cutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", payments.cutoff, want)
	}
	// t1 fails without stopping the pass, t2 is locked by another instance
	if len(payments.reconciled) != 2 || payments.reconciled[0] != "t1" || payments.reconciled[1] != "t3" {
		t.Errorf("reconciled = %v, want [t1 t3]", payments.reconciled)
	}

	// nothing stays marked in flight after the pass
	payments.reconciled = nil
	payments.failOn = ""
	if err := w.run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(payments.reconciled) != 2 {
		t.Errorf("second pass reconciled = %v, want two transactions", payments.reconciled)
	}
}
