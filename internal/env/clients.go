package environment

import (
	"context"
	"log/slog"
	"time"

	"engagement-shop/internal/config"
	"engagement-shop/internal/infra/checkout"
	"engagement-shop/internal/infra/redis"
	"engagement-shop/internal/infra/sqlite3"
	"engagement-shop/internal/infra/supplier"
	"engagement-shop/internal/infra/telegram"
	"engagement-shop/internal/stories/payment"

	goredis "github.com/go-redis/redis/v8"
)

type Clients struct {
	SQLiteDB *sqlite3.DB
	// Redis is nil when REDIS_ADDR is empty.
	Redis    *goredis.Client
	Gateway  payment.Gateway
	Supplier *supplier.Client
	// Alerter is nil when no telegram token is configured.
	Alerter *telegram.Alerter
}

func newClients(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Clients, error) {
	sqliteDB, err := provideSQLiteDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	rdb, err := provideRedis(ctx, cfg, logger)
	if err != nil {
		sqliteDB.Close()
		return nil, err
	}

	alerter, err := provideAlerter(cfg, logger)
	if err != nil {
		sqliteDB.Close()
		if rdb != nil {
			rdb.Close()
		}
		return nil, err
	}

	return &Clients{
		SQLiteDB: sqliteDB,
		Redis:    rdb,
		Gateway:  provideGateway(cfg, logger),
		Supplier: supplier.NewClient(cfg.Supplier, logger.With("client", "supplier")),
		Alerter:  alerter,
	}, nil
}

func provideSQLiteDB(ctx context.Context, cfg config.Config) (*sqlite3.DB, error) {
	maxLifetimeStr := cfg.DB.MaxLifetime
	if maxLifetimeStr == "" {
		maxLifetimeStr = "5m"
	}
	maxLifetime, err := time.ParseDuration(maxLifetimeStr)
	if err != nil {
		return nil, err
	}

	opts := []sqlite3.Option{
		sqlite3.WithDSN(cfg.DB.Path),
		sqlite3.WithMaxOpenConns(cfg.DB.MaxOpenConns),
		sqlite3.WithMaxIdleConns(cfg.DB.MaxIdleConns),
		sqlite3.WithConnMaxLifetime(maxLifetime),
		sqlite3.WithMigrations(),
	}

	return sqlite3.New(ctx, opts...)
}

func provideRedis(ctx context.Context, cfg config.Config, logger *slog.Logger) (*goredis.Client, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("Redis not configured, running single-instance")
		return nil, nil
	}
	return redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}

func provideGateway(cfg config.Config, logger *slog.Logger) payment.Gateway {
	if cfg.Checkout.MockPayment {
		logger.Warn("Mock payment gateway enabled, payments are approved without charging")
		return checkout.NewMockClient(logger.With("client", "checkout-mock"))
	}
	return checkout.NewClient(cfg.Checkout, logger.With("client", "checkout"))
}

func provideAlerter(cfg config.Config, logger *slog.Logger) (*telegram.Alerter, error) {
	if cfg.Telegram.BotToken == "" || len(cfg.Telegram.AdminChatIDs) == 0 {
		return nil, nil
	}
	return telegram.NewAlerter(cfg.Telegram.BotToken, cfg.Telegram.AdminChatIDs, logger.With("client", "telegram"))
}
