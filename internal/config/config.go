package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env              string                  `env:"ENV,default=local"`
	Logger           LoggerConfig            `env:",prefix=LOGGER_"`
	Observability    ObservabilityHTTPConfig `env:",prefix=OBSERVABILITY_"`
	HTTP             APIHTTPConfig           `env:",prefix=HTTP_"`
	ShutdownDuration time.Duration           `env:"SHUTDOWN_DURATION,default=30s"`
	DB               SQLiteConfig            `env:",prefix=DB_"`
	Checkout         CheckoutConfig          `env:",prefix=CHECKOUT_"`
	Supplier         SupplierConfig          `env:",prefix=SUPPLIER_"`
	Notifications    NotificationsConfig     `env:",prefix=NOTIFICATIONS_"`
	Redis            RedisConfig             `env:",prefix=REDIS_"`
	Telegram         TelegramConfig          `env:",prefix=TELEGRAM_"`
	Workers          WorkersConfig           `env:",prefix=WORKERS_"`
	Guest            GuestCheckoutConfig     `env:",prefix=GUEST_"`
}

type LoggerConfig struct {
	Level string `env:"LEVEL,default=debug"`
}

type ObservabilityHTTPConfig struct {
	Host         string        `env:"HOST,default=127.0.0.1"`
	Port         uint16        `env:"PORT,default=8383"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=30s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
}

func (a ObservabilityHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type APIHTTPConfig struct {
	Host         string        `env:"HOST,default=0.0.0.0"`
	Port         uint16        `env:"PORT,default=8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT,default=30s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT,default=1m"`
	BodyLimit    string        `env:"BODY_LIMIT,default=1M"`
	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
}

func (a APIHTTPConfig) ADDR() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type SQLiteConfig struct {
	Path         string `env:"PATH,default=./data/shop.db"`
	MaxOpenConns int    `env:"MAX_OPEN_CONNS,default=25"`
	MaxIdleConns int    `env:"MAX_IDLE_CONNS,default=5"`
	MaxLifetime  string `env:"MAX_LIFETIME,default=5m"`
}

// HTTPClientConfig is shared by every outbound API client.
type HTTPClientConfig struct {
	Timeout       time.Duration `env:"TIMEOUT,default=15s"`
	MaxRetries    int           `env:"MAX_RETRIES,default=2"`
	RetryInterval time.Duration `env:"RETRY_INTERVAL,default=1s"`
	RateLimit     struct {
		Burst int     `env:"BURST,default=5"`
		RPS   float64 `env:"RPS,default=10.0"`
	} `env:",prefix=RATE_LIMIT_"`
}

type CheckoutConfig struct {
	BaseURL             string           `env:"BASE_URL,default=https://api.sandbox.checkout.com"`
	SecretKey           string           `env:"SECRET_KEY"`
	ProcessingChannelID string           `env:"PROCESSING_CHANNEL_ID"`
	WebhookSecret       string           `env:"WEBHOOK_SECRET"`
	Currency            string           `env:"CURRENCY,default=USD"`
	SuccessURL          string           `env:"SUCCESS_URL,default=http://localhost:3000/payment/success"`
	FailureURL          string           `env:"FAILURE_URL,default=http://localhost:3000/payment/failure"`
	CancelURL           string           `env:"CANCEL_URL,default=http://localhost:3000/payment/cancel"`
	MockPayment         bool             `env:"MOCK_PAYMENT,default=false"`
	Client              HTTPClientConfig `env:",prefix=CLIENT_"`
}

type SupplierConfig struct {
	URL                 string           `env:"URL,default=https://justanotherpanel.com/api/v2"`
	Key                 string           `env:"KEY"`
	LowBalanceThreshold string           `env:"LOW_BALANCE_THRESHOLD,default=25"`
	Client              HTTPClientConfig `env:",prefix=CLIENT_"`
}

type NotificationsConfig struct {
	RateLimitCount  int           `env:"RATE_LIMIT_COUNT,default=10"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW,default=60m"`
}

// RedisConfig is optional; an empty Addr keeps everything in-process.
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB,default=0"`
	Prefix   string `env:"PREFIX,default=shop"`
}

type TelegramConfig struct {
	BotToken     string  `env:"BOT_TOKEN"`
	AdminChatIDs []int64 `env:"ADMIN_CHAT_IDS"`
}

type WorkersConfig struct {
	PaymentReconcileSchedule  string        `env:"PAYMENT_RECONCILE_SCHEDULE,default=@every 30s"`
	PaymentReconcileMinAge    time.Duration `env:"PAYMENT_RECONCILE_MIN_AGE,default=1m"`
	PaymentReconcileBatchSize int           `env:"PAYMENT_RECONCILE_BATCH_SIZE,default=50"`
	SupplierStatusSchedule    string        `env:"SUPPLIER_STATUS_SCHEDULE,default=@every 2m"`
	SupplierStatusBatchSize   int           `env:"SUPPLIER_STATUS_BATCH_SIZE,default=100"`
	SupplierHealthSchedule    string        `env:"SUPPLIER_HEALTH_SCHEDULE,default=@every 10m"`
	LockExpiry                time.Duration `env:"LOCK_EXPIRY,default=1m"`
	DisablePaymentReconcile   bool          `env:"DISABLE_PAYMENT_RECONCILE,default=false"`
	DisableSupplierStatusPoll bool          `env:"DISABLE_SUPPLIER_STATUS_POLL,default=false"`
}

type GuestCheckoutConfig struct {
	FrontendURL   string            `env:"FRONTEND_URL,default=http://localhost:3000"`
	CryptoWallets map[string]string `env:"CRYPTO_WALLETS,default=bitcoin:bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh,ethereum:0x742d35Cc6634C0532925a3b8D4C9db96C4b4d8b6,usdc:0x742d35Cc6634C0532925a3b8D4C9db96C4b4d8b6"`
	CryptoRates   map[string]string `env:"CRYPTO_RATES,default=bitcoin:45000,ethereum:3000,usdc:1"`
}
