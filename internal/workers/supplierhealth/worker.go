package supplierhealth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"engagement-shop/internal/metrics"
	"engagement-shop/internal/stories/notifications"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

const (
	name         = "supplier-healthcheck"
	checkTimeout = 30 * time.Second
)

// Worker watches the supplier balance and tells admins once when it runs low.
type Worker struct {
	supplier  SupplierClient
	notifier  AdminNotifier
	threshold decimal.Decimal
	schedule  string
	logger    *slog.Logger
	cron      *cron.Cron

	mu sync.Mutex
	// alerted stays set until the balance recovers
	alerted bool
}

func NewWorker(supplierClient SupplierClient, notifier AdminNotifier, threshold decimal.Decimal, schedule string, logger *slog.Logger) *Worker {
	return &Worker{
		supplier:  supplierClient,
		notifier:  notifier,
		threshold: threshold,
		schedule:  schedule,
		logger:    logger.With("worker", name),
		cron:      cron.New(),
	}
}

func (w *Worker) Name() string {
	return name
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in supplier healthcheck worker", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		err := w.check(ctx)
		metrics.WorkerRuns.WithLabelValues(name, metrics.Result(err)).Inc()
		if err != nil {
			w.logger.Error("Supplier healthcheck failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Supplier healthcheck worker started",
		"schedule", w.schedule,
		"threshold", w.threshold.String())
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Worker) check(ctx context.Context) error {
	balance, err := w.supplier.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("get supplier balance: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if balance.Amount.GreaterThanOrEqual(w.threshold) {
		if w.alerted {
			w.logger.Info("Supplier balance recovered", "balance", balance.Amount.String())
		}
		w.alerted = false
		return nil
	}
	if w.alerted {
		return nil
	}

	message := fmt.Sprintf("Supplier balance is %s %s, below the %s threshold. New orders will fail once it runs out.",
		balance.Amount.StringFixed(2), balance.Currency, w.threshold.StringFixed(2))
	result, err := w.notifier.NotifyAdmins(ctx, notifications.TypeSystem, "Low supplier balance", message, notifications.NotifyOptions{})
	if err != nil {
		return fmt.Errorf("notify admins: %w", err)
	}

	w.alerted = true
	w.logger.Warn("Supplier balance below threshold",
		"balance", balance.Amount.String(),
		"threshold", w.threshold.String(),
		"admins_notified", result.Sent)
	return nil
}
