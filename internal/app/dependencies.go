package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v81"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/rabbitmq"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/checkout"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/crowdfunding"
	"github.com/vladislavdragonenkov/storefront/internal/service/freight"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
	"github.com/vladislavdragonenkov/storefront/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/version"
)

// Runner: фоновый компонент, работающий до отмены ctx.
type Runner struct {
	Name string
	Run  func(ctx context.Context) error
}

// repositories: репозитории вне единицы работы; различаются для памяти и Postgres.
type repositories struct {
	products    domain.ProductRepository
	categories  domain.CategoryRepository
	coupons     domain.CouponRepository
	campaigns   domain.CampaignRepository
	inventory   domain.InventoryRepository
	idempotency domain.IdempotencyRepository
}

// Dependencies: контейнер компонентов приложения. Собирается один раз при старте.
type Dependencies struct {
	Config   Config
	Logger   *log.Entry
	Registry *prometheus.Registry
	Health   *health.Handler

	Memory   *memory.Store
	Postgres *postgres.Store
	Redis    goredis.UniversalClient
	Kafka    *kafka.Producer
	Rabbit   *rabbitmq.Connection

	Repos      domain.Repositories
	UoW        domain.UnitOfWork
	CartStore  domain.CartStore
	Locker     domain.IdempotencyLocker
	Gateways   *payment.Registry
	Freight    domain.FreightQuoter
	Dispatcher domain.CheckoutDispatcher

	Catalog     *catalog.Service
	Coupons     *coupon.Service
	Campaigns   *crowdfunding.Service
	Inventory   *inventory.Ledger
	Saga        saga.Orchestrator
	Orders      *order.Service
	Carts       *cart.Service
	Processor   *checkout.Processor
	Scheduler   *checkout.Scheduler
	Idempotency *idempotency.Guard
	Server      *httpapi.Server

	repos   repositories
	runners []Runner
	closers []func() error
}

// NewDependencies подключает хранилища и брокеры и собирает сервисы.
// При ошибке уже открытые ресурсы закрываются.
func NewDependencies(ctx context.Context, cfg Config, logger *log.Entry) (deps *Dependencies, err error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	d := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Registry: registry,
		Health:   health.NewHandler(version.GetVersion(), cfg.HTTP.HealthTimeout),
	}
	defer func() {
		if err != nil {
			_ = d.Close()
		}
	}()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"storage", d.initStorage},
		{"carts", d.initCartStore},
		{"gateways", d.initGateways},
		{"services", d.initServices},
		{"rabbitmq", d.initRabbitMQ},
		{"kafka", d.initKafka},
		{"http", d.initHTTP},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}
	return d, nil
}

func (d *Dependencies) component(name string) *log.Entry {
	return d.Logger.WithField("component", name)
}

func (d *Dependencies) initStorage(ctx context.Context) error {
	cfg := d.Config
	if !cfg.UsesPostgres() {
		store := memory.NewStore()
		d.Memory = store
		d.Repos = store.Repositories()
		d.UoW = store.UnitOfWork()
		d.repos = repositories{
			products:    store.Catalog.Products(),
			categories:  store.Catalog.Categories(),
			coupons:     store.Coupons,
			campaigns:   store.Campaigns,
			inventory:   store.Inventory,
			idempotency: store.Idempotency,
		}
		d.Health.RegisterChecker("storage", health.NewChecker("storage", func(context.Context) error { return nil }))
		d.Logger.Warn("postgres dsn is empty, using in-memory storage")
		return nil
	}

	store, err := postgres.Open(ctx, cfg.Postgres.DSN, postgres.PoolConfig{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Postgres.ConnMaxIdleTime,
	})
	if err != nil {
		return err
	}
	d.Postgres = store
	d.closers = append(d.closers, store.Close)

	if cfg.Postgres.AutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}

	d.Repos = store.Repositories()
	d.UoW = postgres.NewUnitOfWork(store)
	d.repos = repositories{
		products:    postgres.NewProductRepository(store),
		categories:  postgres.NewCategoryRepository(store),
		coupons:     postgres.NewCouponRepository(store),
		campaigns:   postgres.NewCampaignRepository(store),
		inventory:   postgres.NewInventoryRepository(store),
		idempotency: postgres.NewIdempotencyRepository(store),
	}
	d.Health.RegisterChecker("postgres", health.NewChecker("postgres", store.Ping))
	d.Logger.Info("postgres storage initialized")
	return nil
}

func (d *Dependencies) initCartStore(ctx context.Context) error {
	cfg := d.Config
	if !cfg.UsesRedis() {
		d.CartStore = memory.NewCartStore(cfg.Cart.TTL)
		d.Locker = memory.NewLocker()
		return nil
	}

	client := redisstore.NewClient(redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisstore.Ping(ctx, client); err != nil {
		_ = client.Close()
		return err
	}
	d.Redis = client
	d.closers = append(d.closers, client.Close)

	d.CartStore = redisstore.NewCartStore(client, cfg.Redis.Namespace+":cart:", cfg.Cart.TTL)
	d.Locker = redisstore.NewLocker(client, cfg.Redis.Namespace+":lock:")
	d.Health.RegisterChecker("redis", health.NewChecker("redis", func(ctx context.Context) error {
		return redisstore.Ping(ctx, client)
	}))
	d.Logger.WithField("addr", cfg.Redis.Addr).Info("redis cart store initialized")
	return nil
}

func (d *Dependencies) initGateways(context.Context) error {
	cfg := d.Config
	gm := metrics.NewGatewayMetrics(d.Registry)
	logger := d.component("payment-gateway")

	guard := func(gw domain.PaymentGateway) domain.PaymentGateway {
		breaker := payment.NewCircuitBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.ResetTimeout, logger)
		return payment.Guard(gw, breaker, gm, logger)
	}

	var gateways []domain.PaymentGateway
	if cfg.Checkout.MockGateway {
		gateways = append(gateways, guard(payment.NewMockGateway("")))
	}
	if cfg.Stripe.SecretKey != "" {
		var backends *stripe.Backends
		if cfg.Stripe.BaseURL != "" {
			backends = payment.NewStripeBackends(cfg.Stripe.BaseURL, cfg.Stripe.MaxRetries)
		}
		gw, err := payment.NewStripeGateway(cfg.Stripe.SecretKey, backends)
		if err != nil {
			return err
		}
		gateways = append(gateways, guard(gw))
	}
	if cfg.MercadoPago.AccessToken != "" {
		gw, err := payment.NewMercadoPagoGateway(payment.MercadoPagoConfig{
			BaseURL:     cfg.MercadoPago.BaseURL,
			AccessToken: cfg.MercadoPago.AccessToken,
			Timeout:     cfg.MercadoPago.Timeout,
		}, nil)
		if err != nil {
			return err
		}
		gateways = append(gateways, guard(gw))
	}
	if len(gateways) == 0 {
		return errors.New("no payment gateway configured")
	}
	d.Gateways = payment.NewRegistry(gateways...)
	d.Logger.WithField("gateways", d.Gateways.Names()).Info("payment gateways registered")

	if cfg.Correios.Token == "" {
		d.Freight = freight.NewFlatRate(freight.DefaultFlatRate)
		return nil
	}
	correios, err := freight.NewCorreios(freight.CorreiosConfig{
		BaseURL:   cfg.Correios.BaseURL,
		Token:     cfg.Correios.Token,
		OriginZip: cfg.OriginZip,
		Timeout:   cfg.Correios.Timeout,
	}, freight.WithMetrics(gm), freight.WithLogger(d.component("correios")))
	if err != nil {
		return err
	}
	d.Freight = correios
	return nil
}

func (d *Dependencies) initServices(context.Context) error {
	cfg := d.Config
	checkoutMetrics := metrics.NewCheckoutMetrics(d.Registry)

	d.Catalog = catalog.NewService(d.repos.products, d.repos.categories)
	d.Coupons = coupon.NewService(d.repos.coupons, coupon.WithLogger(d.component("coupon")))
	d.Campaigns = crowdfunding.NewService(d.repos.campaigns, d.repos.products, d.component("crowdfunding"))
	d.Inventory = inventory.NewLedger(d.repos.inventory, d.component("inventory"))

	d.Saga = saga.NewOrchestrator(d.Repos, d.UoW, d.Inventory, d.Gateways,
		saga.WithMetrics(metrics.NewSagaMetricsWithRegisterer(d.Registry)),
		saga.WithLogger(d.component("saga")),
		saga.WithConfirmHook(d.Campaigns.ContributeOrder),
		saga.WithConfirmHook(d.Coupons.ConfirmOrder),
	)
	d.Orders = order.NewService(d.Repos, d.Saga, d.component("order"))

	policy := checkout.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Checkout.MaxAttempts
	policy.InitialDelay = cfg.Checkout.InitialDelay
	policy.MaxDelay = cfg.Checkout.MaxDelay

	d.Processor = checkout.NewProcessor(checkout.Deps{
		Repos:     d.Repos,
		UoW:       d.UoW,
		Catalog:   d.Catalog,
		Stock:     d.Inventory,
		Coupons:   d.Coupons,
		Freight:   d.Freight,
		Saga:      d.Saga,
		Fees:      payment.DefaultFeePolicy(),
		Policy:    policy,
		Lease:     cfg.Checkout.Lease,
		OriginZip: cfg.OriginZip,
		Metrics:   checkoutMetrics,
		Logger:    d.component("checkout"),
	})
	d.Scheduler = checkout.NewScheduler(d.Repos.Jobs, d.Processor,
		checkout.WithInterval(cfg.Checkout.SchedulerInterval),
		checkout.WithBatchSize(cfg.Checkout.BatchSize),
		checkout.WithParallelism(cfg.Checkout.Parallelism),
		checkout.WithSchedulerLogger(d.component("checkout-scheduler")),
	)
	d.Dispatcher = d.Scheduler
	d.runners = append(d.runners, Runner{Name: "checkout-scheduler", Run: d.Scheduler.Run})

	d.Carts = cart.NewService(cart.Deps{
		Store:       d.CartStore,
		Catalog:     d.Catalog,
		Stock:       d.Inventory,
		Coupons:     d.Coupons,
		Freight:     d.Freight,
		Gateways:    d.Gateways,
		Fees:        payment.DefaultFeePolicy(),
		Jobs:        d.Repos.Jobs,
		UoW:         d.UoW,
		Locker:      d.Locker,
		Dispatcher:  dispatcherFunc(d.dispatch),
		Metrics:     checkoutMetrics,
		Logger:      d.component("cart"),
		Currency:    cfg.Currency,
		OriginZip:   cfg.OriginZip,
		MaxAttempts: cfg.Checkout.MaxAttempts,
		LockTTL:     cfg.Cart.LockTTL,
		LockWait:    cfg.Cart.LockWait,
	})

	d.Idempotency = idempotency.NewGuard(d.repos.idempotency, d.Locker,
		idempotency.WithRecordTTL(cfg.Idempotency.RecordTTL),
		idempotency.WithLockTTL(cfg.Idempotency.LockTTL),
		idempotency.WithGuardLogger(d.component("idempotency")),
	)
	cleanup := idempotency.NewCleanupWorker(d.repos.idempotency,
		idempotency.WithLogger(d.component("idempotency-cleanup")),
		idempotency.WithInterval(cfg.Idempotency.CleanupInterval),
		idempotency.WithBatchSize(cfg.Idempotency.CleanupBatch),
		idempotency.WithMetrics(metrics.NewCleanupMetrics(d.Registry)),
	)
	d.runners = append(d.runners, Runner{Name: "idempotency-cleanup", Run: cleanup.Run})

	if cfg.SeedDemo && d.Memory != nil {
		if err := SeedDemo(d.Memory, d.Inventory); err != nil {
			return fmt.Errorf("seed demo catalog: %w", err)
		}
		d.Logger.Info("demo catalog seeded")
	}
	return nil
}

// dispatcherFunc позволяет подменить брокер после сборки корзины.
type dispatcherFunc func(ctx context.Context, jobID string) error

func (f dispatcherFunc) Dispatch(ctx context.Context, jobID string) error { return f(ctx, jobID) }

func (d *Dependencies) dispatch(ctx context.Context, jobID string) error {
	return d.Dispatcher.Dispatch(ctx, jobID)
}

func (d *Dependencies) initRabbitMQ(context.Context) error {
	cfg := d.Config.RabbitMQ
	if cfg.URL == "" {
		return nil
	}

	conn, err := rabbitmq.Dial(cfg.URL)
	if err != nil {
		return err
	}
	d.Rabbit = conn
	d.closers = append(d.closers, conn.Close)

	publisher, err := rabbitmq.NewPublisher(conn.Channel(), cfg.Queue)
	if err != nil {
		return err
	}
	consumerChannel, err := conn.NewChannel()
	if err != nil {
		return err
	}
	consumer := rabbitmq.NewConsumer(consumerChannel, cfg.Queue, d.Processor,
		rabbitmq.WithPrefetch(cfg.Prefetch),
		rabbitmq.WithLogger(d.component("checkout-queue")),
	)

	d.Dispatcher = publisher
	d.runners = append(d.runners, Runner{Name: "checkout-queue", Run: consumer.Run})
	d.Health.RegisterChecker("rabbitmq", health.NewOptionalChecker("rabbitmq", conn.Ping))
	d.Logger.WithField("queue", cfg.Queue).Info("rabbitmq checkout queue initialized")
	return nil
}

func (d *Dependencies) initKafka(context.Context) error {
	cfg := d.Config
	brokers := cfg.KafkaBrokers()
	if len(brokers) == 0 {
		d.Logger.Warn("kafka brokers are not configured, outbox events stay unpublished")
		return nil
	}

	producer, err := kafka.NewProducer(brokers, cfg.Kafka.ClientID, d.component("kafka-producer"))
	if err != nil {
		return err
	}
	d.Kafka = producer
	d.closers = append(d.closers, producer.Close)

	worker := outbox.NewWorker(d.Repos.Outbox, kafka.NewOutboxPublisher(producer, cfg.Kafka.Topic),
		outbox.WithLogger(d.component("outbox")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.Kafka.DLQTopic)),
		outbox.WithMetrics(metrics.NewOutboxMetrics(d.Registry)),
		outbox.WithPollInterval(cfg.Outbox.PollInterval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
		outbox.WithRetryBaseDelay(cfg.Outbox.RetryBaseDelay),
	)
	d.runners = append(d.runners, Runner{Name: "outbox", Run: worker.Run})

	if cfg.Kafka.CartCleanup {
		consumer, err := kafka.NewConsumer(brokers, kafka.GroupCartCleanup, []string{cfg.Kafka.Topic},
			kafka.CartCleanupHandler(d.CartStore, d.component("cart-cleanup")),
			kafka.WithDLQ(producer, cfg.Kafka.DLQTopic),
			kafka.WithRetries(cfg.Kafka.ConsumerRetry, cfg.Kafka.RetryDelay),
			kafka.WithConsumerLogger(d.component("kafka-consumer")),
		)
		if err != nil {
			return err
		}
		d.runners = append(d.runners, Runner{Name: "cart-cleanup", Run: consumer.Run})
	}
	d.Logger.WithField("brokers", brokers).Info("kafka initialized")
	return nil
}

func (d *Dependencies) initHTTP(context.Context) error {
	cfg := d.Config
	api := httpapi.New(httpapi.Deps{
		Catalog:     d.Catalog,
		Campaigns:   d.Campaigns,
		Carts:       d.Carts,
		Orders:      d.Orders,
		Freight:     d.Freight,
		Idempotency: d.Idempotency,
		Health:      d.Health,
		Metrics:     metrics.NewHTTPMetrics(d.Registry),
		Gatherer:    d.Registry,
		Logger:      d.component("http"),
		OriginZip:   cfg.OriginZip,
	})
	d.Server = httpapi.NewServer(httpapi.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		IdleTimeout:     cfg.HTTP.IdleTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, api.Routes(), d.component("http-server"))
	return nil
}

// Runners возвращает фоновые компоненты в порядке сборки.
func (d *Dependencies) Runners() []Runner {
	return append([]Runner(nil), d.runners...)
}

// Close закрывает ресурсы в обратном порядке открытия.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
