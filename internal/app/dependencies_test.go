package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/freight"
	redisstore "github.com/vladislavdragonenkov/storefront/internal/storage/redis"
)

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "app-test")
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.SeedDemo = true
	return cfg
}

func newTestDependencies(t *testing.T, cfg Config) *Dependencies {
	t.Helper()
	deps, err := NewDependencies(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })
	return deps
}

func runnerNames(deps *Dependencies) []string {
	names := make([]string, 0, len(deps.Runners()))
	for _, r := range deps.Runners() {
		names = append(names, r.Name)
	}
	return names
}

func TestNewDependenciesInMemory(t *testing.T) {
	deps := newTestDependencies(t, testConfig(t))

	require.NotNil(t, deps.Memory)
	assert.Nil(t, deps.Postgres)
	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Kafka)
	assert.Nil(t, deps.Rabbit)

	assert.Equal(t, []string{"mock"}, deps.Gateways.Names())
	assert.IsType(t, &freight.FlatRate{}, deps.Freight)
	assert.Same(t, deps.Scheduler, deps.Dispatcher)
	assert.Equal(t, []string{"checkout-scheduler", "idempotency-cleanup"}, runnerNames(deps))
	assert.Equal(t, []string{"storage"}, deps.Health.Names())
	require.NotNil(t, deps.Server)

	products, err := deps.Catalog.ListProducts(domain.ProductFilter{OnlyActive: true})
	require.NoError(t, err)
	assert.Len(t, products, 3)
}

func TestNewDependenciesExternalAdapters(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig(t)
	cfg.Redis.Addr = mr.Addr()
	cfg.Stripe.SecretKey = "sk_test_123"
	cfg.MercadoPago.AccessToken = "TEST-token"
	cfg.Correios.Token = "correios-token"

	deps := newTestDependencies(t, cfg)

	require.NotNil(t, deps.Redis)
	assert.IsType(t, &redisstore.CartStore{}, deps.CartStore)
	assert.IsType(t, &freight.Correios{}, deps.Freight)
	assert.Equal(t, []string{"mercadopago", "mock", "stripe"}, deps.Gateways.Names())
	assert.Equal(t, []string{"redis", "storage"}, deps.Health.Names())

	cart, err := deps.Carts.Create(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("storefront:cart:"+cart.UUID), "keys: %v", mr.Keys())
}

func TestNewDependenciesRedisUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.Redis.Addr = addr

	_, err := NewDependencies(context.Background(), cfg, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init carts")
}

func TestCheckoutConfirmsOrderAndFundsCampaign(t *testing.T) {
	ctx := context.Background()
	deps := newTestDependencies(t, testConfig(t))

	cart, err := deps.Carts.Create(ctx)
	require.NoError(t, err)
	_, err = deps.Carts.AddItem(ctx, cart.UUID, "prod-tshirt-campaign", 2)
	require.NoError(t, err)
	_, err = deps.Carts.SetUser(ctx, cart.UUID, domain.CartCustomer{
		Email: "ana@example.com", Name: "Ana Souza", Document: "12345678909",
	})
	require.NoError(t, err)
	_, err = deps.Carts.SetShipping(ctx, cart.UUID, domain.ShippingAddress{
		Recipient: "Ana Souza", ZipCode: "20040020", Street: "Av. Rio Branco",
		Number: "1", City: "Rio de Janeiro", State: "RJ",
	}, domain.FreightServicePAC)
	require.NoError(t, err)
	_, err = deps.Carts.SetPayment(ctx, cart.UUID, domain.CartPayment{
		Gateway: "mock", Method: domain.PaymentMethodCreditCard, Installments: 1, CardToken: "tok_visa",
	})
	require.NoError(t, err)

	job, err := deps.Carts.Checkout(ctx, cart.UUID)
	require.NoError(t, err)
	require.NoError(t, deps.Processor.Process(ctx, job.ID))

	job, err = deps.Carts.CheckoutJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, domain.CheckoutJobSucceeded, job.Status, job.LastError)

	details, err := deps.Orders.Get(ctx, job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, details.Order.Status)

	campaign, err := deps.Campaigns.GetCampaign("camp-reforestation")
	require.NoError(t, err)
	assert.Positive(t, campaign.RaisedMinor)
	assert.Equal(t, 1, campaign.Backers)

	available, err := deps.Inventory.Available("prod-tshirt-campaign")
	require.NoError(t, err)
	assert.Equal(t, int32(48), available)
}
