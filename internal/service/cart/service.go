// Package cart ведёт корзину по этапам base → user → shipping → payment и ставит задачу checkout.
package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/service/freight"
	"github.com/vladislavdragonenkov/storefront/internal/service/payment"
)

// ProductSource отдаёт товары, доступные для продажи.
type ProductSource interface {
	SellableProduct(id string) (domain.Product, error)
}

// Stock сообщает остаток товара.
type Stock interface {
	Available(productID string) (int32, error)
}

// Coupons применяет и пересчитывает купоны.
type Coupons interface {
	Apply(cart *domain.Cart, code string) error
	Reprice(code string, subtotalMinor int64) (int64, error)
}

const (
	defaultLockTTL  = 10 * time.Second
	defaultLockWait = 2 * time.Second
	lockRetryMin    = 5 * time.Millisecond
	lockRetryMax    = 100 * time.Millisecond
)

// Deps: зависимости сервиса корзины. Locker сериализует изменения одной корзины
// между запросами и экземплярами; без него изменения не блокируются.
type Deps struct {
	Store      domain.CartStore
	Catalog    ProductSource
	Stock      Stock
	Coupons    Coupons
	Freight    domain.FreightQuoter
	Gateways   domain.GatewayRegistry
	Fees       payment.FeePolicy
	Jobs       domain.CheckoutJobRepository
	UoW        domain.UnitOfWork
	Locker     domain.IdempotencyLocker
	Dispatcher domain.CheckoutDispatcher
	Metrics    *metrics.CheckoutMetrics
	Logger     *log.Entry

	Currency    string
	OriginZip   string
	MaxAttempts int
	LockTTL     time.Duration
	LockWait    time.Duration
}

// Service: операции над корзиной.
type Service struct {
	store      domain.CartStore
	catalog    ProductSource
	stock      Stock
	coupons    Coupons
	freight    domain.FreightQuoter
	gateways   domain.GatewayRegistry
	fees       payment.FeePolicy
	jobs       domain.CheckoutJobRepository
	uow        domain.UnitOfWork
	locker     domain.IdempotencyLocker
	dispatcher domain.CheckoutDispatcher
	metrics    *metrics.CheckoutMetrics
	logger     *log.Entry

	currency    string
	originZip   string
	maxAttempts int
	lockTTL     time.Duration
	lockWait    time.Duration
	now         func() time.Time
}

// NewService собирает сервис корзины.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	lockTTL, lockWait := deps.LockTTL, deps.LockWait
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	if lockWait <= 0 {
		lockWait = defaultLockWait
	}
	return &Service{
		store:       deps.Store,
		catalog:     deps.Catalog,
		stock:       deps.Stock,
		coupons:     deps.Coupons,
		freight:     deps.Freight,
		gateways:    deps.Gateways,
		fees:        deps.Fees,
		jobs:        deps.Jobs,
		uow:         deps.UoW,
		locker:      deps.Locker,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		logger:      logger,
		currency:    domain.NormalizeCurrency(deps.Currency),
		originZip:   deps.OriginZip,
		maxAttempts: deps.MaxAttempts,
		lockTTL:     lockTTL,
		lockWait:    lockWait,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create создаёт пустую анонимную корзину.
func (s *Service) Create(ctx context.Context) (domain.Cart, error) {
	cart := domain.NewCart(uuid.NewString(), s.currency, s.now())
	if err := s.store.Save(ctx, cart); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

// Get возвращает корзину и продлевает её TTL.
func (s *Service) Get(ctx context.Context, cartUUID string) (domain.Cart, error) {
	cartUUID = strings.TrimSpace(cartUUID)
	if cartUUID == "" {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return s.store.Get(ctx, cartUUID)
}

// AddItem добавляет товар; итоговое количество ограничено остатком на складе.
func (s *Service) AddItem(ctx context.Context, cartUUID, productID string, qty int32) (domain.Cart, error) {
	if qty <= 0 {
		return domain.Cart{}, domain.ErrItemQtyInvalid
	}
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		product, err := s.catalog.SellableProduct(productID)
		if err != nil {
			return err
		}
		if domain.NormalizeCurrency(product.Currency) != cart.Currency {
			return domain.ErrCartCurrencyMismatch
		}

		var inCart int32
		if idx := cart.FindItem(product.ID); idx >= 0 {
			inCart = cart.Items[idx].Qty
		}
		capped, err := s.capQty(product.ID, inCart+qty)
		if err != nil {
			return err
		}
		if capped <= inCart {
			return fmt.Errorf("product %s: %w", product.ID, domain.ErrInventoryUnavailable)
		}

		item := itemFromProduct(product, capped-inCart)
		if err := cart.AddItem(item, s.now()); err != nil {
			return err
		}
		return s.repriceCoupon(cart)
	})
}

// UpdateItem задаёт количество позиции; qty <= 0 удаляет её.
func (s *Service) UpdateItem(ctx context.Context, cartUUID, productID string, qty int32) (domain.Cart, error) {
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		if qty > 0 {
			capped, err := s.capQty(productID, qty)
			if err != nil {
				return err
			}
			if capped == 0 {
				return fmt.Errorf("product %s: %w", productID, domain.ErrInventoryUnavailable)
			}
			qty = capped
		}
		if err := cart.SetItemQty(productID, qty, s.now()); err != nil {
			return err
		}
		return s.repriceCoupon(cart)
	})
}

// RemoveItem удаляет позицию.
func (s *Service) RemoveItem(ctx context.Context, cartUUID, productID string) (domain.Cart, error) {
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		if err := cart.RemoveItem(productID, s.now()); err != nil {
			return err
		}
		return s.repriceCoupon(cart)
	})
}

// ApplyCoupon применяет купон к корзине.
func (s *Service) ApplyCoupon(ctx context.Context, cartUUID, code string) (domain.Cart, error) {
	if strings.TrimSpace(code) == "" {
		return domain.Cart{}, domain.ErrCouponNotFound
	}
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		if len(cart.Items) == 0 {
			return domain.ErrCartEmpty
		}
		return s.coupons.Apply(cart, code)
	})
}

// RemoveCoupon снимает купон.
func (s *Service) RemoveCoupon(ctx context.Context, cartUUID string) (domain.Cart, error) {
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		return cart.ClearCoupon(s.now())
	})
}

// SetUser идентифицирует покупателя (этап user). Без id покупатель определяется по email.
func (s *Service) SetUser(ctx context.Context, cartUUID string, customer domain.CartCustomer) (domain.Cart, error) {
	customer.Email = strings.ToLower(strings.TrimSpace(customer.Email))
	customer.Name = strings.TrimSpace(customer.Name)
	if strings.TrimSpace(customer.ID) == "" {
		customer.ID = customer.Email
	}
	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		return cart.SetCustomer(customer, s.now())
	})
}

// SetShipping задаёт адрес и считает доставку (этап shipping).
func (s *Service) SetShipping(ctx context.Context, cartUUID string, address domain.ShippingAddress, serviceCode string) (domain.Cart, error) {
	zip, err := domain.NormalizeZipCode(address.ZipCode)
	if err != nil {
		return domain.Cart{}, err
	}
	address.ZipCode = zip
	if serviceCode == "" {
		serviceCode = domain.FreightServicePAC
	}

	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		if !cart.Stage.AtLeast(domain.CartStageUser) || cart.Customer == nil {
			return domain.ErrCartStage
		}
		quote, err := s.freight.Quote(ctx, domain.FreightRequest{
			OriginZip:      s.originZip,
			DestinationZip: zip,
			ServiceCode:    serviceCode,
			Package:        freight.PackageMetrics(cart.Items),
			DeclaredMinor:  cart.SubtotalMinor() - cart.DiscountMinor,
		})
		if err != nil {
			return err
		}
		return cart.SetShipping(domain.CartShipping{
			Address:      address,
			ServiceCode:  quote.ServiceCode,
			FreightMinor: quote.PriceMinor,
			DeliveryDays: quote.DeliveryDays,
			QuotedAt:     quote.QuotedAt,
		}, s.now())
	})
}

// SetPayment выбирает шлюз и способ оплаты и считает комиссию (этап payment).
func (s *Service) SetPayment(ctx context.Context, cartUUID string, pay domain.CartPayment) (domain.Cart, error) {
	pay.Gateway = strings.ToLower(strings.TrimSpace(pay.Gateway))
	if pay.Method != domain.PaymentMethodCreditCard && pay.Installments == 0 {
		pay.Installments = 1
	}
	if err := pay.Validate(); err != nil {
		return domain.Cart{}, err
	}
	if _, err := s.gateways.Gateway(pay.Gateway); err != nil {
		return domain.Cart{}, err
	}

	return s.mutate(ctx, cartUUID, func(cart *domain.Cart) error {
		pay.FeeMinor = s.fees.Fee(pay.Method, pay.Installments, cart.GoodsTotalMinor())
		return cart.SetPayment(pay, s.now())
	})
}

// Checkout ставит задачу checkout и блокирует корзину. Повторный вызов возвращает ту же задачу.
// Снимок корзины берётся под блокировкой корзины, поэтому параллельное изменение в задачу не теряется.
func (s *Service) Checkout(ctx context.Context, cartUUID string) (job domain.CheckoutJob, err error) {
	err = s.withLock(ctx, cartUUID, func() error {
		job, err = s.checkout(ctx, cartUUID)
		return err
	})
	return job, err
}

func (s *Service) checkout(ctx context.Context, cartUUID string) (domain.CheckoutJob, error) {
	cart, err := s.Get(ctx, cartUUID)
	if err != nil {
		return domain.CheckoutJob{}, err
	}
	if cart.Locked() && cart.CheckoutJobID != "" {
		return s.jobs.Get(cart.CheckoutJobID)
	}
	if err := cart.ReadyForCheckout(); err != nil {
		return domain.CheckoutJob{}, err
	}
	if err := s.refreshPrices(&cart); err != nil {
		return domain.CheckoutJob{}, err
	}

	now := s.now()
	job := domain.NewCheckoutJob(uuid.NewString(), cart, s.maxAttempts, now)
	if err := job.Cart.Lock(job.ID, now); err != nil {
		return domain.CheckoutJob{}, err
	}

	var (
		stored  domain.CheckoutJob
		created bool
	)
	err = s.uow.Do(func(repos domain.Repositories) error {
		var err error
		stored, created, err = repos.Jobs.CreateForCart(job)
		return err
	})
	if err != nil {
		return domain.CheckoutJob{}, err
	}

	if err := cart.Lock(stored.ID, now); err != nil {
		return domain.CheckoutJob{}, err
	}
	if err := s.store.Save(ctx, cart); err != nil {
		// Задача уже сохранена и будет обработана; корзина догонит состояние при повторе.
		s.logger.WithError(err).WithField("cart_uuid", cart.UUID).Warn("failed to lock cart after checkout")
	}
	if !created {
		return stored, nil
	}

	s.metrics.Submitted()
	logger := s.logger.WithFields(log.Fields{"cart_uuid": cart.UUID, "job_id": stored.ID})
	if s.dispatcher != nil {
		if err := s.dispatcher.Dispatch(ctx, stored.ID); err != nil {
			logger.WithError(err).Warn("checkout dispatch failed, job left for scheduler")
		}
	}
	logger.WithField("total_minor", cart.TotalMinor()).Info("checkout job submitted")
	return stored, nil
}

// CheckoutJob возвращает задачу checkout по id.
func (s *Service) CheckoutJob(_ context.Context, jobID string) (domain.CheckoutJob, error) {
	if strings.TrimSpace(jobID) == "" {
		return domain.CheckoutJob{}, domain.ErrCheckoutJobNotFound
	}
	return s.jobs.Get(jobID)
}

// Delete удаляет корзину (после успешного checkout).
func (s *Service) Delete(ctx context.Context, cartUUID string) error {
	return s.store.Delete(ctx, cartUUID)
}

// mutate читает, меняет и сохраняет корзину под её блокировкой.
func (s *Service) mutate(ctx context.Context, cartUUID string, fn func(cart *domain.Cart) error) (cart domain.Cart, err error) {
	err = s.withLock(ctx, cartUUID, func() error {
		cart, err = s.Get(ctx, cartUUID)
		if err != nil {
			cart = domain.Cart{}
			return err
		}
		if cart.Locked() {
			return domain.ErrCartLocked
		}
		if err := fn(&cart); err != nil {
			return err
		}
		if err := s.store.Save(ctx, cart); err != nil {
			cart = domain.Cart{}
			return err
		}
		return nil
	})
	return cart, err
}

// withLock выполняет fn, удерживая блокировку корзины. Занятую блокировку ждёт не дольше lockWait.
func (s *Service) withLock(ctx context.Context, cartUUID string, fn func() error) error {
	if s.locker == nil {
		return fn()
	}
	key := "cart:" + strings.TrimSpace(cartUUID)
	deadline := time.Now().Add(s.lockWait)
	backoff := lockRetryMin
	for {
		acquired, err := s.locker.Acquire(ctx, key, s.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire cart lock: %w", err)
		}
		if acquired {
			break
		}
		if time.Now().Add(backoff).After(deadline) {
			return domain.ErrCartBusy
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, lockRetryMax)
	}
	defer func() {
		// Блокировка снимается и после отмены запроса.
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			s.logger.WithError(err).WithField("cart_uuid", cartUUID).Warn("failed to release cart lock")
		}
	}()
	return fn()
}

// capQty ограничивает количество остатком товара.
func (s *Service) capQty(productID string, qty int32) (int32, error) {
	available, err := s.stock.Available(productID)
	if err != nil {
		return 0, err
	}
	return min(qty, available), nil
}

// repriceCoupon пересчитывает скидку после изменения позиций; неприменимый купон снимается.
func (s *Service) repriceCoupon(cart *domain.Cart) error {
	if cart.CouponCode == "" {
		return nil
	}
	discount, err := s.coupons.Reprice(cart.CouponCode, cart.SubtotalMinor())
	if err != nil {
		if domain.IsBusiness(err) {
			s.logger.WithError(err).WithFields(log.Fields{
				"cart_uuid": cart.UUID,
				"coupon":    cart.CouponCode,
			}).Debug("coupon no longer applies, removing")
			return cart.ClearCoupon(s.now())
		}
		return err
	}
	return cart.SetCoupon(cart.CouponCode, discount, s.now())
}

// refreshPrices обновляет цены и габариты позиций по каталогу перед checkout.
func (s *Service) refreshPrices(cart *domain.Cart) error {
	for i, item := range cart.Items {
		product, err := s.catalog.SellableProduct(item.ProductID)
		if err != nil {
			return fmt.Errorf("product %s: %w", item.ProductID, err)
		}
		fresh := itemFromProduct(product, item.Qty)
		if fresh.PriceMinor != item.PriceMinor {
			s.logger.WithFields(log.Fields{
				"cart_uuid":  cart.UUID,
				"product_id": product.ID,
				"old_price":  item.PriceMinor,
				"new_price":  fresh.PriceMinor,
			}).Info("cart item repriced at checkout")
		}
		cart.Items[i] = fresh
	}
	return nil
}

func itemFromProduct(product domain.Product, qty int32) domain.CartItem {
	return domain.CartItem{
		ProductID:   product.ID,
		SKU:         product.SKU,
		Name:        product.Name,
		Qty:         qty,
		PriceMinor:  product.PriceMinor,
		WeightGrams: product.WeightGrams,
		HeightCm:    product.HeightCm,
		WidthCm:     product.WidthCm,
		LengthCm:    product.LengthCm,
		CampaignID:  product.CampaignID,
	}
}

// IsClientError сообщает, что ошибка вызвана состоянием корзины или входными данными.
func IsClientError(err error) bool {
	return domain.IsBusiness(err) ||
		errors.Is(err, domain.ErrCartLocked) ||
		errors.Is(err, domain.ErrCartBusy) ||
		errors.Is(err, domain.ErrCartStage) ||
		errors.Is(err, domain.ErrCartItemNotFound) ||
		errors.Is(err, domain.ErrItemQtyInvalid)
}
