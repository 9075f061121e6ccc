package supplierstatus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"engagement-shop/internal/metrics"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/workers"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"
)

const (
	name       = "supplier-status"
	runTimeout = 5 * time.Minute
)

type Config struct {
	Schedule  string
	BatchSize int
}

// Worker moves placed orders along by polling the supplier in batches and
// keeps pending refills up to date.
type Worker struct {
	orders   OrderService
	supplier SupplierClient
	locker   workers.Locker
	cfg      Config
	logger   *slog.Logger
	cron     *cron.Cron

	inFlight sync.Map
}

func NewWorker(orderService OrderService, supplierClient SupplierClient, locker workers.Locker, cfg Config, logger *slog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Worker{
		orders:   orderService,
		supplier: supplierClient,
		locker:   locker,
		cfg:      cfg,
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
				w.logger.Error("Panic in supplier status worker", "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
		defer cancel()

		err := w.run(ctx)
		metrics.WorkerRuns.WithLabelValues(name, metrics.Result(err)).Inc()
		if err != nil {
			w.logger.Error("Supplier status run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("add cron job: %w", err)
	}

	w.cron.Start()
	w.logger.Info("Supplier status worker started", "schedule", w.cfg.Schedule, "batch_size", w.cfg.BatchSize)
	return nil
}

func (w *Worker) Stop() {
	<-w.cron.Stop().Done()
}

func (w *Worker) run(ctx context.Context) error {
	if err := w.pollOrders(ctx); err != nil {
		return err
	}
	return w.pollRefills(ctx)
}

func (w *Worker) pollOrders(ctx context.Context) error {
	placed, err := w.orders.ListOrders(ctx, orders.ListCriteria{
		Statuses:          []orders.Status{orders.StatusProcessing},
		WithSupplierOrder: true,
	})
	if err != nil {
		return fmt.Errorf("list processing orders: %w", err)
	}

	for _, batch := range lo.Chunk(placed, w.cfg.BatchSize) {
		bySupplierID := lo.SliceToMap(batch, func(o *orders.Order) (string, *orders.Order) {
			return *o.SupplierOrderID, o
		})

		results, err := w.supplier.CheckMultipleOrderStatus(ctx, lo.Keys(bySupplierID))
		if err != nil {
			// the next batch may still go through
			w.logger.Error("Failed to check order batch", "size", len(batch), "error", err)
			continue
		}

		for supplierID, result := range results {
			order, ok := bySupplierID[supplierID]
			if !ok {
				continue
			}
			if result.Err != nil {
				w.logger.Warn("Supplier reported an error for order",
					"order_id", order.ID,
					"supplier_order_id", supplierID,
					"error", result.Err)
				continue
			}
			w.guarded(ctx, order.ID, func() error {
				_, err := w.orders.ApplySupplierStatus(ctx, order, *result.Status)
				return err
			})
		}
	}
	return nil
}

func (w *Worker) pollRefills(ctx context.Context) error {
	refilling, err := w.orders.ListOrders(ctx, orders.ListCriteria{
		RefillStatuses: []orders.RefillStatus{orders.RefillPending, orders.RefillProcessing},
	})
	if err != nil {
		return fmt.Errorf("list pending refills: %w", err)
	}

	for _, order := range refilling {
		w.guarded(ctx, order.ID, func() error {
			_, err := w.orders.PollRefillStatus(ctx, order.ID)
			return err
		})
	}
	return nil
}

// guarded runs fn unless the order is already being handled here or on another instance.
func (w *Worker) guarded(ctx context.Context, orderID string, fn func() error) {
	if _, loaded := w.inFlight.LoadOrStore(orderID, struct{}{}); loaded {
		return
	}
	defer w.inFlight.Delete(orderID)

	unlock, ok, err := w.locker.TryLock(ctx, "order:"+orderID)
	if err != nil {
		w.logger.Warn("Failed to lock order", "order_id", orderID, "error", err)
		return
	}
	if !ok {
		return
	}
	defer unlock()

	if err := fn(); err != nil {
		w.logger.Error("Failed to update order from supplier", "order_id", orderID, "error", err)
	}
}
