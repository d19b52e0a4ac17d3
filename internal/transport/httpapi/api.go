// Package httpapi: HTTP API витрины на chi.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/health"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

// Catalog: чтение каталога.
type Catalog interface {
	GetProduct(id string) (domain.Product, error)
	ListProducts(filter domain.ProductFilter) ([]domain.Product, error)
	ListCategories() ([]domain.Category, error)
	SellableProduct(id string) (domain.Product, error)
}

// Campaigns: чтение кампаний краудфандинга.
type Campaigns interface {
	GetCampaign(id string) (domain.Campaign, error)
	ListActive() ([]domain.Campaign, error)
}

// Carts: операции корзины.
type Carts interface {
	Create(ctx context.Context) (domain.Cart, error)
	Get(ctx context.Context, cartUUID string) (domain.Cart, error)
	AddItem(ctx context.Context, cartUUID, productID string, qty int32) (domain.Cart, error)
	UpdateItem(ctx context.Context, cartUUID, productID string, qty int32) (domain.Cart, error)
	RemoveItem(ctx context.Context, cartUUID, productID string) (domain.Cart, error)
	ApplyCoupon(ctx context.Context, cartUUID, code string) (domain.Cart, error)
	RemoveCoupon(ctx context.Context, cartUUID string) (domain.Cart, error)
	SetUser(ctx context.Context, cartUUID string, customer domain.CartCustomer) (domain.Cart, error)
	SetShipping(ctx context.Context, cartUUID string, address domain.ShippingAddress, serviceCode string) (domain.Cart, error)
	SetPayment(ctx context.Context, cartUUID string, pay domain.CartPayment) (domain.Cart, error)
	Checkout(ctx context.Context, cartUUID string) (domain.CheckoutJob, error)
	CheckoutJob(ctx context.Context, jobID string) (domain.CheckoutJob, error)
	Delete(ctx context.Context, cartUUID string) error
}

// Orders: операции над заказами.
type Orders interface {
	Get(ctx context.Context, orderID string) (order.Details, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	Cancel(ctx context.Context, orderID, reason string) (domain.Order, error)
	Refund(ctx context.Context, orderID string, amountMinor int64, reason string) (domain.Order, error)
	AcceptPaymentNotification(ctx context.Context, gateway, externalID string) (domain.Order, error)
}

// Deps: зависимости API. Idempotency, Health, Metrics и Gatherer необязательны.
type Deps struct {
	Catalog     Catalog
	Campaigns   Campaigns
	Carts       Carts
	Orders      Orders
	Freight     domain.FreightQuoter
	Idempotency *idempotency.Guard
	Health      *health.Handler
	Metrics     *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Logger      *log.Entry
	OriginZip   string
}

// API: обработчики HTTP.
type API struct {
	catalog     Catalog
	campaigns   Campaigns
	carts       Carts
	orders      Orders
	freight     domain.FreightQuoter
	idempotency *idempotency.Guard
	health      *health.Handler
	metrics     *metrics.HTTPMetrics
	gatherer    prometheus.Gatherer
	logger      *log.Entry
	originZip   string
	validate    *validator.Validate
}

// New собирает API.
func New(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &API{
		catalog:     deps.Catalog,
		campaigns:   deps.Campaigns,
		carts:       deps.Carts,
		orders:      deps.Orders,
		freight:     deps.Freight,
		idempotency: deps.Idempotency,
		health:      deps.Health,
		metrics:     deps.Metrics,
		gatherer:    gatherer,
		logger:      logger,
		originZip:   deps.OriginZip,
		validate:    newValidator(),
	}
}

// Routes возвращает router со всеми маршрутами.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(a.recoverer)
	r.Use(a.requestLogger)
	r.Use(a.instrument)

	r.Get("/livez", health.LivenessHandler)
	if a.health != nil {
		r.Get("/healthz", a.health.ServeHTTP)
		r.Get("/readyz", a.health.ReadinessHandler)
	}
	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/products", a.listProducts)
		r.Get("/products/{id}", a.getProduct)
		r.Get("/categories", a.listCategories)
		r.Get("/campaigns", a.listCampaigns)
		r.Get("/campaigns/{id}", a.getCampaign)
		r.Post("/freight/quote", a.quoteFreight)

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", a.createCart)
			r.Route("/{uuid}", func(r chi.Router) {
				r.Get("/", a.getCart)
				r.Delete("/", a.deleteCart)
				r.Post("/items", a.addItem)
				r.Put("/items/{productID}", a.updateItem)
				r.Delete("/items/{productID}", a.removeItem)
				r.Put("/coupon", a.applyCoupon)
				r.Delete("/coupon", a.removeCoupon)
				r.Put("/user", a.setUser)
				r.Put("/shipping", a.setShipping)
				r.Put("/payment", a.setPayment)
				r.With(a.idempotent).Post("/checkout", a.checkout)
			})
		})

		r.Get("/checkout-jobs/{id}", a.getCheckoutJob)

		r.Route("/orders/{id}", func(r chi.Router) {
			r.Get("/", a.getOrder)
			r.Get("/timeline", a.orderTimeline)
			r.With(a.idempotent).Post("/cancel", a.cancelOrder)
			r.With(a.idempotent).Post("/refund", a.refundOrder)
		})
		r.Get("/customers/{id}/orders", a.customerOrders)

		r.Post("/payments/{gateway}/notifications", a.paymentNotification)
	})
	return r
}
