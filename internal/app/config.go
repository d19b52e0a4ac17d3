package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// EnvPrefix: префикс переменных окружения сервиса.
const EnvPrefix = "STOREFRONT"

// Config: настройки запуска. Пустой адрес внешней системы выключает соответствующий адаптер.
type Config struct {
	Env       string `envconfig:"ENV" default:"development"`
	Currency  string `envconfig:"CURRENCY" default:"BRL"`
	OriginZip string `envconfig:"ORIGIN_ZIP" default:"01001000"`
	// SeedDemo заполняет in-memory каталог демонстрационными товарами.
	SeedDemo bool `envconfig:"SEED_DEMO" default:"false"`

	Log         LogConfig         `envconfig:"LOG"`
	HTTP        HTTPConfig        `envconfig:"HTTP"`
	Postgres    PostgresConfig    `envconfig:"POSTGRES"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	Kafka       KafkaConfig       `envconfig:"KAFKA"`
	RabbitMQ    RabbitMQConfig    `envconfig:"RABBITMQ"`
	Stripe      StripeConfig      `envconfig:"STRIPE"`
	MercadoPago MercadoPagoConfig `envconfig:"MERCADOPAGO"`
	Correios    CorreiosConfig    `envconfig:"CORREIOS"`
	Breaker     BreakerConfig     `envconfig:"BREAKER"`
	Cart        CartConfig        `envconfig:"CART"`
	Checkout    CheckoutConfig    `envconfig:"CHECKOUT"`
	Outbox      OutboxConfig      `envconfig:"OUTBOX"`
	Idempotency IdempotencyConfig `envconfig:"IDEMPOTENCY"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"text"`
}

type HTTPConfig struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	HealthTimeout   time.Duration `envconfig:"HEALTH_TIMEOUT" default:"2s"`
}

// PostgresConfig: при пустом DSN хранилище в памяти.
type PostgresConfig struct {
	DSN             string        `envconfig:"DSN"`
	AutoMigrate     bool          `envconfig:"AUTO_MIGRATE" default:"true"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"25"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	ConnMaxIdleTime time.Duration `envconfig:"CONN_MAX_IDLE_TIME" default:"5m"`
}

// RedisConfig: при пустом Addr корзины и блокировки живут в памяти процесса.
type RedisConfig struct {
	Addr      string `envconfig:"ADDR"`
	Password  string `envconfig:"PASSWORD"`
	DB        int    `envconfig:"DB" default:"0"`
	Namespace string `envconfig:"NAMESPACE" default:"storefront"`
}

// KafkaConfig: без брокеров outbox не публикуется, очистка корзин не слушается.
type KafkaConfig struct {
	Brokers       []string      `envconfig:"BROKERS"`
	ClientID      string        `envconfig:"CLIENT_ID" default:"storefront"`
	Topic         string        `envconfig:"TOPIC" default:"storefront.order.events"`
	DLQTopic      string        `envconfig:"DLQ_TOPIC" default:"storefront.dlq"`
	CartCleanup   bool          `envconfig:"CART_CLEANUP" default:"true"`
	ConsumerRetry int           `envconfig:"CONSUMER_RETRIES" default:"3"`
	RetryDelay    time.Duration `envconfig:"CONSUMER_RETRY_DELAY" default:"200ms"`
}

// RabbitMQConfig: без URL задачи checkout идут в локальную очередь планировщика.
type RabbitMQConfig struct {
	URL      string `envconfig:"URL"`
	Queue    string `envconfig:"QUEUE" default:"storefront.checkout.jobs"`
	Prefetch int    `envconfig:"PREFETCH" default:"8"`
}

type StripeConfig struct {
	SecretKey  string `envconfig:"SECRET_KEY"`
	BaseURL    string `envconfig:"BASE_URL"`
	MaxRetries int64  `envconfig:"MAX_RETRIES" default:"2"`
}

type MercadoPagoConfig struct {
	AccessToken string        `envconfig:"ACCESS_TOKEN"`
	BaseURL     string        `envconfig:"BASE_URL"`
	Timeout     time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

// CorreiosConfig: без токена доставка считается по фиксированному тарифу.
type CorreiosConfig struct {
	Token   string        `envconfig:"TOKEN"`
	BaseURL string        `envconfig:"BASE_URL"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"10s"`
}

type BreakerConfig struct {
	MaxFailures  int           `envconfig:"MAX_FAILURES" default:"5"`
	ResetTimeout time.Duration `envconfig:"RESET_TIMEOUT" default:"30s"`
}

// CartConfig: LockTTL ограничивает блокировку изменения корзины, LockWait: ожидание чужой блокировки.
type CartConfig struct {
	TTL      time.Duration `envconfig:"TTL" default:"72h"`
	LockTTL  time.Duration `envconfig:"LOCK_TTL" default:"10s"`
	LockWait time.Duration `envconfig:"LOCK_WAIT" default:"2s"`
}

type CheckoutConfig struct {
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"5"`
	InitialDelay      time.Duration `envconfig:"INITIAL_DELAY" default:"5s"`
	MaxDelay          time.Duration `envconfig:"MAX_DELAY" default:"5m"`
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"1s"`
	BatchSize         int           `envconfig:"BATCH_SIZE" default:"20"`
	Parallelism       int           `envconfig:"PARALLELISM" default:"8"`
	// Lease: после этого срока задача в processing снова доступна планировщику.
	Lease time.Duration `envconfig:"LEASE" default:"5m"`
	// MockGateway регистрирует шлюз mock рядом с настоящими.
	MockGateway bool `envconfig:"MOCK_GATEWAY" default:"true"`
}

type OutboxConfig struct {
	PollInterval   time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
	BatchSize      int           `envconfig:"BATCH_SIZE" default:"100"`
	MaxAttempts    int           `envconfig:"MAX_ATTEMPTS" default:"10"`
	RetryBaseDelay time.Duration `envconfig:"RETRY_BASE_DELAY" default:"1s"`
}

type IdempotencyConfig struct {
	RecordTTL       time.Duration `envconfig:"RECORD_TTL" default:"24h"`
	LockTTL         time.Duration `envconfig:"LOCK_TTL" default:"30s"`
	CleanupInterval time.Duration `envconfig:"CLEANUP_INTERVAL" default:"1h"`
	CleanupBatch    int           `envconfig:"CLEANUP_BATCH" default:"1000"`
}

// LoadConfig читает конфигурацию из окружения с префиксом STOREFRONT_.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if _, err := domain.NormalizeZipCode(c.OriginZip); err != nil {
		errs = append(errs, fmt.Errorf("origin zip: %w", err))
	}
	if strings.TrimSpace(c.Currency) == "" {
		errs = append(errs, errors.New("currency is required"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.Checkout.MaxAttempts < 1 {
		errs = append(errs, errors.New("checkout max attempts must be positive"))
	}
	if c.Checkout.Lease <= 0 {
		errs = append(errs, errors.New("checkout lease must be positive"))
	}
	if c.Cart.TTL <= 0 {
		errs = append(errs, errors.New("cart ttl must be positive"))
	}
	if c.Cart.LockTTL <= 0 {
		errs = append(errs, errors.New("cart lock ttl must be positive"))
	}
	if !c.Checkout.MockGateway && c.Stripe.SecretKey == "" && c.MercadoPago.AccessToken == "" {
		errs = append(errs, errors.New("no payment gateway configured"))
	}
	return errors.Join(errs...)
}

// UsesPostgres сообщает, что основное хранилище: PostgreSQL.
func (c Config) UsesPostgres() bool { return strings.TrimSpace(c.Postgres.DSN) != "" }

// UsesRedis сообщает, что корзины хранятся в Redis.
func (c Config) UsesRedis() bool { return strings.TrimSpace(c.Redis.Addr) != "" }

// KafkaBrokers возвращает непустые адреса брокеров.
func (c Config) KafkaBrokers() []string {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
