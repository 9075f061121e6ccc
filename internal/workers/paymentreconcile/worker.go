package paymentreconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"engagement-shop/internal/metrics"
	"engagement-shop/internal/workers"

	"github.com/robfig/cron/v3"
)

const (
	name       = "payment-reconcile"
	runTimeout = 2 * time.Minute
)

type Config struct {
	Schedule string
	// MinAge leaves fresh transactions to the webhook.
	MinAge    time.Duration
	BatchSize int
}

// Worker polls the gateway for transactions whose webhook never arrived.
type Worker struct {
	payments PaymentService
	locker   workers.Locker
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron

	inFlight sync.Map
}

func NewWorker(payments PaymentService, locker workers.Locker, cfg Config, now func() time.Time, logger *slog.Logger) *Worker {
	return &Worker{
		payments: payments,
		locker:   locker,
		cfg:      cfg,
		now:      now,
		logger:   logger.With("worker", name),
		cron:     cron.New(),
	}
}

func (w *Worker) Name() string {
	return name
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.cfg.Schedule, func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in payment reconcile worker", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		err := w.run(ctx)
		metrics.WorkerRuns.WithLabelValues(name, metrics.Result(err)).Inc()
		if err != nil {
			w.logger.Error("Payment reconcile run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Payment reconcile worker started", "schedule", w.cfg.Schedule)
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	pending, err := w.payments.PendingForReconcile(ctx, w.now().Add(-w.cfg.MinAge), w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}
	w.logger.Debug("Reconciling pending transactions", "count", len(pending))

	for _, tx := range pending {
		if _, loaded := w.inFlight.LoadOrStore(tx.ID, struct{}{}); loaded {
			continue
		}
		w.reconcile(ctx, tx.ID, func() error {
			result, err := w.payments.Reconcile(ctx, tx)
			if err != nil {
				return err
			}
			if result.Transaction.Status != tx.Status {
				w.logger.Info("Transaction reconciled",
					"transaction_id", tx.ID,
					"from", tx.Status,
					"to", result.Transaction.Status)
			}
			return nil
		})
		w.inFlight.Delete(tx.ID)
	}
	return nil
}

func (w *Worker) reconcile(ctx context.Context, id string, fn func() error) {
	unlock, ok, err := w.locker.TryLock(ctx, "transaction:"+id)
	if err != nil {
		w.logger.Warn("Failed to lock transaction", "transaction_id", id, "error", err)
		return
	}
	if !ok {
		return
	}
	defer unlock()

	if err := fn(); err != nil {
		w.logger.Error("Failed to reconcile transaction", "transaction_id", id, "error", err)
	}
}
