package environment

import (
	"context"
	"log/slog"
	"time"

	"engagement-shop/internal/config"
	"engagement-shop/internal/infra/realtime"
	"engagement-shop/internal/infra/redis"
	"engagement-shop/internal/localization"
	"engagement-shop/internal/storage"
	"engagement-shop/internal/stories/catalog"
	"engagement-shop/internal/stories/coupons"
	"engagement-shop/internal/stories/notifications"
	"engagement-shop/internal/stories/orders"
	"engagement-shop/internal/stories/payment"
	"engagement-shop/internal/stories/users"
	"engagement-shop/internal/workers"
	"engagement-shop/internal/workers/paymentreconcile"
	"engagement-shop/internal/workers/supplierhealth"
	"engagement-shop/internal/workers/supplierstatus"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type Services struct {
	Users         *users.Service
	Catalog       *catalog.Catalog
	Notifications *notifications.Service
	Orders        *orders.Service
	Payments      *payment.Service
	Coupons       *coupons.Service

	Hub *realtime.Hub
	// Bridge is nil without Redis.
	Bridge  *realtime.RedisBridge
	Workers *workers.Manager
}

func newServices(_ context.Context, clients *Clients, cfg *config.Config, logger *slog.Logger) (*Services, error) {
	var s Services

	templates, err := localization.NewService()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load templates")
	}

	cryptoRates, err := parseRates(cfg.Guest.CryptoRates)
	if err != nil {
		return nil, err
	}

	threshold, err := decimal.NewFromString(cfg.Supplier.LowBalanceThreshold)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid supplier low balance threshold %q", cfg.Supplier.LowBalanceThreshold)
	}

	storageImpl := storage.New(clients.SQLiteDB.DB)

	s.Hub = realtime.NewHub(cfg.HTTP.AllowedOrigins, logger.With("component", "realtime"))

	var transport notifications.Transport = s.Hub
	if clients.Redis != nil {
		s.Bridge = realtime.NewRedisBridge(clients.Redis, cfg.Redis.Prefix+":realtime", s.Hub, logger.With("component", "realtime-bridge"))
		transport = s.Bridge
	}

	var alerter notifications.AdminAlerter
	if clients.Alerter != nil {
		alerter = clients.Alerter
	}

	s.Users = users.NewService(storageImpl, logger.With("story", "users"))
	s.Catalog = catalog.NewCatalog(storageImpl, logger.With("story", "catalog"))

	s.Notifications = notifications.NewService(
		storageImpl,
		s.Users,
		transport,
		alerter,
		notifications.Config{
			RateLimit:  cfg.Notifications.RateLimitCount,
			RateWindow: cfg.Notifications.RateLimitWindow,
		},
		time.Now,
		logger.With("story", "notifications"),
	)

	s.Orders = orders.NewService(
		storageImpl,
		s.Catalog,
		clients.Supplier,
		s.Notifications,
		templates,
		time.Now,
		logger.With("story", "orders"),
	)

	s.Payments = payment.NewService(
		storageImpl,
		clients.Gateway,
		s.Orders,
		s.Users,
		s.Notifications,
		templates,
		payment.Config{
			Currency:      cfg.Checkout.Currency,
			SuccessURL:    cfg.Checkout.SuccessURL,
			FailureURL:    cfg.Checkout.FailureURL,
			CancelURL:     cfg.Checkout.CancelURL,
			WebhookSecret: cfg.Checkout.WebhookSecret,
			FrontendURL:   cfg.Guest.FrontendURL,
			CryptoWallets: cfg.Guest.CryptoWallets,
			CryptoRates:   cryptoRates,
		},
		time.Now,
		logger.With("story", "payment"),
	)

	s.Coupons = coupons.NewService(storageImpl, time.Now, logger.With("story", "coupons"))

	s.Workers = newWorkers(clients, cfg, &s, threshold, logger)

	return &s, nil
}

func newWorkers(clients *Clients, cfg *config.Config, s *Services, threshold decimal.Decimal, logger *slog.Logger) *workers.Manager {
	var locker workers.Locker = workers.LocalLocker{}
	if clients.Redis != nil {
		locker = redis.NewLocker(clients.Redis, cfg.Redis.Prefix, cfg.Workers.LockExpiry)
	}

	var list []workers.Worker

	if !cfg.Workers.DisablePaymentReconcile {
		list = append(list, paymentreconcile.NewWorker(
			s.Payments,
			locker,
			paymentreconcile.Config{
				Schedule:  cfg.Workers.PaymentReconcileSchedule,
				MinAge:    cfg.Workers.PaymentReconcileMinAge,
				BatchSize: cfg.Workers.PaymentReconcileBatchSize,
			},
			time.Now,
			logger,
		))
	}

	if !cfg.Workers.DisableSupplierStatusPoll {
		list = append(list, supplierstatus.NewWorker(
			s.Orders,
			clients.Supplier,
			locker,
			supplierstatus.Config{
				Schedule:  cfg.Workers.SupplierStatusSchedule,
				BatchSize: cfg.Workers.SupplierStatusBatchSize,
			},
			logger,
		))
	}

	list = append(list, supplierhealth.NewWorker(
		clients.Supplier,
		s.Notifications,
		threshold,
		cfg.Workers.SupplierHealthSchedule,
		logger,
	))

	return workers.NewManager(logger.With("component", "workers"), list...)
}

func parseRates(raw map[string]string) (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(raw))
	for currency, value := range raw {
		rate, err := decimal.NewFromString(value)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid crypto rate for %s", currency)
		}
		if !rate.IsPositive() {
			return nil, errors.Errorf("crypto rate for %s must be positive", currency)
		}
		rates[currency] = rate
	}
	return rates, nil
}
