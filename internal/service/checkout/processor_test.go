package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/coupon"
	"github.com/vladislavdragonenkov/storefront/internal/service/inventory"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/saga"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type stubFreight struct {
	price int64
	err   error
	calls int
}

func (s *stubFreight) Quote(_ context.Context, req domain.FreightRequest) (domain.FreightQuote, error) {
	s.calls++
	if s.err != nil {
		return domain.FreightQuote{}, s.err
	}
	return domain.FreightQuote{ServiceCode: req.ServiceCode, PriceMinor: s.price, DeliveryDays: 5}, nil
}

type fixture struct {
	store     *memory.Store
	ledger    *inventory.Ledger
	gateway   *payment.MockGateway
	freight   *stubFreight
	orch      saga.Orchestrator
	processor *Processor
	clock     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "checkout-test")

	f := &fixture{
		store:   memory.NewStore(),
		gateway: payment.NewMockGateway(""),
		freight: &stubFreight{price: 1500},
		clock:   time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
	}
	f.store.Catalog.PutProduct(domain.Product{
		ID: "prod-1", SKU: "CAM-01", Name: "Camiseta", PriceMinor: 1000, Currency: "BRL",
		WeightGrams: 400, HeightCm: 4, WidthCm: 20, LengthCm: 30, Active: true,
	})
	f.store.Coupons.Put(domain.Coupon{
		Code: "DEZ", Kind: domain.CouponKindPercent, PercentOff: decimal.NewFromInt(10), Active: true,
	})
	f.ledger = inventory.NewLedger(f.store.Inventory, entry)
	require.NoError(t, f.ledger.Restock("prod-1", 5))

	repos := f.store.Repositories()
	coupons := coupon.NewService(f.store.Coupons)
	f.orch = saga.NewOrchestrator(repos, f.store.UnitOfWork(), f.ledger, payment.NewRegistry(f.gateway),
		saga.WithLogger(entry), saga.WithConfirmHook(coupons.ConfirmOrder))
	f.processor = NewProcessor(Deps{
		Repos:     repos,
		UoW:       f.store.UnitOfWork(),
		Catalog:   catalog.NewService(f.store.Catalog.Products(), f.store.Catalog.Categories()),
		Stock:     f.ledger,
		Coupons:   coupons,
		Freight:   f.freight,
		Saga:      f.orch,
		Fees:      payment.DefaultFeePolicy(),
		OriginZip: "01001000",
		Logger:    entry,
	})
	f.processor.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) submit(t *testing.T, method domain.PaymentMethod, installments int, couponCode string, maxAttempts int) domain.CheckoutJob {
	t.Helper()

	cart := domain.NewCart("cart-1", "BRL", f.clock)
	cart.Items = []domain.CartItem{{ProductID: "prod-1", Qty: 2, PriceMinor: 900}}
	cart.CouponCode = couponCode
	cart.Customer = &domain.CartCustomer{ID: "cust-1", Email: "ana@example.com", Name: "Ana Souza"}
	cart.Shipping = &domain.CartShipping{
		Address:     domain.ShippingAddress{ZipCode: "20040020", City: "Rio de Janeiro", State: "RJ"},
		ServiceCode: domain.FreightServicePAC,
	}
	cart.Payment = &domain.CartPayment{Gateway: "MOCK", Method: method, Installments: installments}
	if method == domain.PaymentMethodCreditCard {
		cart.Payment.CardToken = "tok_visa"
	}
	cart.Stage = domain.CartStageCheckout

	job := domain.NewCheckoutJob("job-1", cart, maxAttempts, f.clock)
	stored, created, err := f.store.Repositories().Jobs.CreateForCart(job)
	require.NoError(t, err)
	require.True(t, created)
	return stored
}

func (f *fixture) job(t *testing.T) domain.CheckoutJob {
	t.Helper()
	job, err := f.store.Repositories().Jobs.Get("job-1")
	require.NoError(t, err)
	return job
}

func (f *fixture) events(t *testing.T) []string {
	t.Helper()
	msgs, err := f.store.Repositories().Outbox.PullPending(100)
	require.NoError(t, err)
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.EventType)
	}
	return types
}

func TestProcessor_CardCheckoutSucceeds(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "dez", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobSucceeded, job.Status)
	assert.Equal(t, 1, job.Attempts)
	require.NotEmpty(t, job.OrderID)

	order, err := f.store.Repositories().Orders.Get(job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	// Цена берётся из каталога, а не из снимка корзины.
	assert.Equal(t, int64(2000), order.SubtotalMinor)
	assert.Equal(t, int64(200), order.DiscountMinor)
	assert.Equal(t, int64(1500), order.FreightMinor)
	assert.Equal(t, int64(0), order.FeeMinor)
	assert.Equal(t, int64(3300), order.AmountMinor)
	assert.Equal(t, "mock", order.Gateway)
	assert.Equal(t, "cust-1", order.CustomerID)

	used, err := f.store.Coupons.Get("DEZ")
	require.NoError(t, err)
	assert.Equal(t, 1, used.Uses)

	available, err := f.ledger.Available("prod-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), available)

	events := f.events(t)
	assert.Contains(t, events, domain.EventOrderCreated)
	assert.Contains(t, events, domain.EventPaymentCaptured)
	assert.Contains(t, events, domain.EventCheckoutSucceeded)
}

func TestProcessor_InstallmentFee(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 6, "", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	order, err := f.store.Repositories().Orders.Get(f.job(t).OrderID)
	require.NoError(t, err)
	// (2000 + 1500) · 1.99% · 3 лишних платежа = 208.95 → 209.
	assert.Equal(t, int64(209), order.FeeMinor)
	assert.Equal(t, int64(3709), order.AmountMinor)
}

func TestProcessor_PixLeavesOrderReserved(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodPix, 1, "", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobSucceeded, job.Status)
	order, err := f.store.Repositories().Orders.Get(job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReserved, order.Status)
	assert.Contains(t, f.events(t), domain.EventPaymentPending)
}

func TestProcessor_PixRedeemsCouponAfterPayment(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodPix, 1, "DEZ", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	job := f.job(t)
	require.Equal(t, domain.CheckoutJobSucceeded, job.Status)

	// Пока pix не оплачен, купон не тратится.
	used, err := f.store.Coupons.Get("DEZ")
	require.NoError(t, err)
	assert.Zero(t, used.Uses)

	pay, err := f.store.Repositories().Payments.GetByOrder(job.OrderID)
	require.NoError(t, err)
	require.NoError(t, f.gateway.Settle(pay.ExternalID))
	order, err := f.orch.AcceptPayment(context.Background(), pay.Provider, pay.ExternalID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)

	used, err = f.store.Coupons.Get("DEZ")
	require.NoError(t, err)
	assert.Equal(t, 1, used.Uses)

	// Повторное уведомление купон второй раз не гасит.
	_, err = f.orch.AcceptPayment(context.Background(), pay.Provider, pay.ExternalID)
	require.NoError(t, err)
	used, err = f.store.Coupons.Get("DEZ")
	require.NoError(t, err)
	assert.Equal(t, 1, used.Uses)
}

func TestProcessor_CanceledPixKeepsCoupon(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodPix, 1, "DEZ", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	_, err := f.orch.Cancel(context.Background(), f.job(t).OrderID, "customer changed mind")
	require.NoError(t, err)

	used, err := f.store.Coupons.Get("DEZ")
	require.NoError(t, err)
	assert.Zero(t, used.Uses)
}

// failingUoW отказывает на заданном по счёту вызове Do, остальные пропускает дальше.
type failingUoW struct {
	next   domain.UnitOfWork
	failOn int
	calls  int
}

func (u *failingUoW) Do(fn func(repos domain.Repositories) error) error {
	u.calls++
	if u.calls == u.failOn {
		return errors.New("db connection reset")
	}
	return u.next.Do(fn)
}

func TestProcessor_ExpiredLeaseIsReclaimed(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	// Третья запись: сохранение результата попытки после захвата и создания заказа.
	f.processor.uow = &failingUoW{next: f.store.UnitOfWork(), failOn: 3}

	require.Error(t, f.processor.Process(context.Background(), "job-1"))
	stuck := f.job(t)
	require.Equal(t, domain.CheckoutJobProcessing, stuck.Status)
	require.NotEmpty(t, stuck.OrderID)
	assert.Equal(t, f.clock.Add(domain.DefaultCheckoutLease), stuck.NextRunAt)

	// Пока аренда действует, задача не видна планировщику и не захватывается.
	due, err := f.store.Repositories().Jobs.ListDue(f.clock.Add(time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	assert.Equal(t, 1, f.job(t).Attempts)

	f.clock = stuck.NextRunAt
	due, err = f.store.Repositories().Jobs.ListDue(f.clock, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobSucceeded, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Equal(t, stuck.OrderID, job.OrderID)
	assert.Equal(t, 1, f.gateway.CreateCalls)
	assert.Contains(t, f.events(t), domain.EventCheckoutSucceeded)
}

func TestProcessor_TemporaryFreightErrorReschedules(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	f.freight.err = domain.ErrFreightUnavailable

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobPending, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, f.clock.Add(5*time.Second), job.NextRunAt)
	assert.Contains(t, job.LastError, "freight")
	assert.Empty(t, job.OrderID)

	// До наступления next_run_at задача не запускается.
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	assert.Equal(t, 1, f.job(t).Attempts)

	f.freight.err = nil
	f.clock = f.clock.Add(5 * time.Second)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job = f.job(t)
	assert.Equal(t, domain.CheckoutJobSucceeded, job.Status)
	assert.Equal(t, 2, job.Attempts)
}

func TestProcessor_ExhaustedAttemptsFail(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 2)
	f.freight.err = domain.ErrFreightUnavailable

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobFailed, job.Status)
	assert.Equal(t, 2, job.Attempts)
	assert.Contains(t, f.events(t), domain.EventCheckoutFailed)

	// Завершённая задача больше не запускается.
	f.freight.err = nil
	f.clock = f.clock.Add(time.Hour)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	assert.Equal(t, domain.CheckoutJobFailed, f.job(t).Status)
	assert.Equal(t, 2, f.freight.calls)
}

func TestProcessor_InactiveProductFailsImmediately(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	f.store.Catalog.PutProduct(domain.Product{ID: "prod-1", PriceMinor: 1000, Currency: "BRL", Active: false})

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobFailed, job.Status)
	assert.Contains(t, job.LastError, domain.ErrProductInactive.Error())
	assert.Zero(t, f.gateway.CreateCalls)
}

func TestProcessor_ExhaustedCouponFails(t *testing.T) {
	f := newFixture(t)
	f.store.Coupons.Put(domain.Coupon{Code: "ONCE", Kind: domain.CouponKindFixed, AmountOffMinor: 100, Active: true, MaxUses: 1, Uses: 1})
	f.submit(t, domain.PaymentMethodCreditCard, 1, "ONCE", 0)

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	assert.Equal(t, domain.CheckoutJobFailed, f.job(t).Status)
}

func TestProcessor_InsufficientStockFails(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	require.NoError(t, f.store.Inventory.Reserve("other-order", []domain.InventoryLine{{ProductID: "prod-1", Qty: 4}}, f.clock))

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobFailed, job.Status)
	assert.Contains(t, job.LastError, domain.ErrInventoryUnavailable.Error())
}

func TestProcessor_DeclinedPaymentCancelsOrder(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	f.gateway.CreateErr = domain.ErrPaymentDeclined

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	job := f.job(t)
	assert.Equal(t, domain.CheckoutJobFailed, job.Status)
	order, err := f.store.Repositories().Orders.Get(job.OrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, order.Status)

	available, err := f.ledger.Available("prod-1")
	require.NoError(t, err)
	assert.Equal(t, int32(5), available)
}

func TestProcessor_RetryReusesOrder(t *testing.T) {
	f := newFixture(t)
	f.submit(t, domain.PaymentMethodCreditCard, 1, "", 0)
	f.gateway.CreateErr = domain.ErrPaymentTemporary

	require.NoError(t, f.processor.Process(context.Background(), "job-1"))
	first := f.job(t)
	require.Equal(t, domain.CheckoutJobPending, first.Status)
	require.NotEmpty(t, first.OrderID)

	f.gateway.CreateErr = nil
	f.clock = f.clock.Add(time.Minute)
	require.NoError(t, f.processor.Process(context.Background(), "job-1"))

	second := f.job(t)
	assert.Equal(t, domain.CheckoutJobSucceeded, second.Status)
	assert.Equal(t, first.OrderID, second.OrderID)

	orders, err := f.store.Repositories().Orders.ListByCustomer("cust-1", 0)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestProcessor_UnknownJob(t *testing.T) {
	f := newFixture(t)

	err := f.processor.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrCheckoutJobNotFound)
}
