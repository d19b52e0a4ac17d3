package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствующего кода валюты.
	ErrCurrencyRequired = errors.New("currency is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка несоответствия суммы заказа и сумм позиций.
	ErrAmountMismatch = errors.New("order amount does not match items sum")
	// Ошибка отрицательной суммы платежа.
	ErrPaymentAmountNegative = errors.New("payment amount must be non-negative")
	// Ошибка отсутствующего кода платёжного провайдера.
	ErrPaymentProviderRequired = errors.New("payment provider is required")
	// Ошибка отсутствующего идентификатора заказа в платежах/резервах.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка отсутствующего товара в записи склада.
	ErrInventoryProductRequired = errors.New("inventory product_id is required")
	// Ошибка нулевого количества в записи склада.
	ErrInventoryQtyInvalid = errors.New("inventory qty must not be zero")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrOrderInvalidState: операция недопустима для текущего статуса заказа.
	ErrOrderInvalidState = errors.New("operation is not allowed for order status")
	// ErrInventoryUnavailable: бизнес-ошибка от склада (нет стока/недоступность позиции).
	ErrInventoryUnavailable = errors.New("inventory unavailable")
	// ErrInventoryTemporary: временная ошибка при обращении к складу, можно повторить попытку.
	ErrInventoryTemporary = errors.New("inventory temporary error")
	// ErrPaymentDeclined: платёж отклонён провайдером (бизнес-ошибка).
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrPaymentIndeterminate: неопределённый статус платежа; требуется reconcile.
	ErrPaymentIndeterminate = errors.New("payment indeterminate state")
	// ErrPaymentTemporary: временная ошибка платёжного провайдера.
	ErrPaymentTemporary = errors.New("payment temporary error")
	// ErrPaymentNotFound: платёж по заказу/внешнему id не найден.
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrGatewayNotFound: запрошен незарегистрированный платёжный шлюз.
	ErrGatewayNotFound = errors.New("payment gateway not registered")
	// ErrRefundAmountInvalid: сумма возврата превышает оплаченную.
	ErrRefundAmountInvalid = errors.New("refund amount exceeds captured amount")
	// ErrOutboxPublish: ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// ErrOutboxMessageInvalid: сообщение outbox без агрегата, типа события или с битым JSON.
	ErrOutboxMessageInvalid = errors.New("outbox message is invalid")

	// ErrProductNotFound: товар отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrProductInactive: товар снят с продажи.
	ErrProductInactive = errors.New("product is not available for sale")
	// ErrCategoryNotFound: категория отсутствует.
	ErrCategoryNotFound = errors.New("category not found")

	// ErrCartNotFound: корзина не найдена или истёк её TTL.
	ErrCartNotFound = errors.New("cart not found")
	// ErrCartLocked: корзина уже отправлена на checkout.
	ErrCartLocked = errors.New("cart is locked for checkout")
	// ErrCartBusy: корзину сейчас меняет другой запрос.
	ErrCartBusy = errors.New("cart is being modified by another request")
	// ErrCartEmpty: в корзине нет позиций.
	ErrCartEmpty = errors.New("cart has no items")
	// ErrCartStage: переход на запрошенный этап корзины недопустим.
	ErrCartStage = errors.New("cart stage transition is not allowed")
	// ErrCartItemNotFound: позиция отсутствует в корзине.
	ErrCartItemNotFound = errors.New("cart item not found")
	// ErrCartCurrencyMismatch: товар в другой валюте, чем корзина.
	ErrCartCurrencyMismatch = errors.New("product currency differs from cart currency")

	// ErrCustomerEmailRequired: для этапа user нужен email покупателя.
	ErrCustomerEmailRequired = errors.New("customer email is required")
	// ErrZipCodeInvalid: некорректный CEP.
	ErrZipCodeInvalid = errors.New("zip code must contain 8 digits")
	// ErrPaymentMethodInvalid: неподдерживаемый способ оплаты.
	ErrPaymentMethodInvalid = errors.New("payment method is not supported")
	// ErrInstallmentsInvalid: некорректное число платежей.
	ErrInstallmentsInvalid = errors.New("installments out of range")
	// ErrCardTokenRequired: для оплаты картой нужен токен карты.
	ErrCardTokenRequired = errors.New("card token is required for credit card payments")

	// ErrCouponNotFound: купон не найден.
	ErrCouponNotFound = errors.New("coupon not found")
	// ErrCouponInactive: купон выключен.
	ErrCouponInactive = errors.New("coupon is inactive")
	// ErrCouponExpired: купон вне периода действия.
	ErrCouponExpired = errors.New("coupon is expired or not started")
	// ErrCouponExhausted: лимит использований исчерпан.
	ErrCouponExhausted = errors.New("coupon usage limit reached")
	// ErrCouponMinSubtotal: сумма корзины ниже порога купона.
	ErrCouponMinSubtotal = errors.New("cart subtotal below coupon minimum")

	// ErrCampaignNotFound: кампания краудфандинга не найдена.
	ErrCampaignNotFound = errors.New("campaign not found")
	// ErrCampaignClosed: кампания не принимает взносы.
	ErrCampaignClosed = errors.New("campaign is not accepting contributions")

	// ErrFreightUnavailable: служба доставки не вернула цену.
	ErrFreightUnavailable = errors.New("freight quote unavailable")

	// ErrCheckoutJobNotFound: задача checkout не найдена.
	ErrCheckoutJobNotFound = errors.New("checkout job not found")
	// ErrCheckoutJobConflict: задача уже захвачена другим воркером или изменена.
	ErrCheckoutJobConflict = errors.New("checkout job state conflict")

	// ErrIdempotencyKeyRequired: не передан idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired: не вычислен хэш запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyAlreadyExists: запись с таким ключом уже есть.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch: ключ использован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// ErrIdempotencyKeyNotFound: запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict) || errors.Is(err, ErrCheckoutJobConflict)
}

// IsIdempotencyConflict проверяет, что ключ уже занят (тем же или другим запросом).
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) || errors.Is(err, ErrIdempotencyHashMismatch)
}

// IsTemporary сообщает, что операцию можно повторить позже.
func IsTemporary(err error) bool {
	return errors.Is(err, ErrPaymentTemporary) ||
		errors.Is(err, ErrInventoryTemporary) ||
		errors.Is(err, ErrPaymentIndeterminate) ||
		errors.Is(err, ErrFreightUnavailable)
}

// IsBusiness сообщает, что ошибка окончательная и повтор не поможет.
func IsBusiness(err error) bool {
	switch {
	case errors.Is(err, ErrInventoryUnavailable),
		errors.Is(err, ErrPaymentDeclined),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrProductInactive),
		errors.Is(err, ErrCartEmpty),
		errors.Is(err, ErrCouponNotFound),
		errors.Is(err, ErrCouponInactive),
		errors.Is(err, ErrCouponExpired),
		errors.Is(err, ErrCouponExhausted),
		errors.Is(err, ErrCouponMinSubtotal),
		errors.Is(err, ErrGatewayNotFound),
		errors.Is(err, ErrPaymentMethodInvalid):
		return true
	default:
		return false
	}
}
