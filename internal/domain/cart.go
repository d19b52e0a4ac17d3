package domain

import (
	"strings"
	"time"
)

// CartStage описывает этап корзины: base → user → shipping → payment → checkout.
type CartStage string

const (
	// CartStageBase: анонимная корзина, только позиции.
	CartStageBase CartStage = "base"
	// CartStageUser: покупатель идентифицирован.
	CartStageUser CartStage = "user"
	// CartStageShipping: указан адрес и посчитана доставка.
	CartStageShipping CartStage = "shipping"
	// CartStagePayment: выбран способ оплаты, корзина готова к checkout.
	CartStagePayment CartStage = "payment"
	// CartStageCheckout: корзина отправлена в фоновую обработку и заблокирована.
	CartStageCheckout CartStage = "checkout"
)

func (s CartStage) rank() int {
	switch s {
	case CartStageBase:
		return 0
	case CartStageUser:
		return 1
	case CartStageShipping:
		return 2
	case CartStagePayment:
		return 3
	case CartStageCheckout:
		return 4
	default:
		return -1
	}
}

// Valid проверяет, что этап известен.
func (s CartStage) Valid() bool {
	return s.rank() >= 0
}

// AtLeast сообщает, что корзина достигла этапа other.
func (s CartStage) AtLeast(other CartStage) bool {
	return s.rank() >= other.rank()
}

// PaymentMethod: способ оплаты.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPix        PaymentMethod = "pix"
	PaymentMethodBoleto     PaymentMethod = "boleto"
)

// Valid проверяет поддерживаемые способы оплаты.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPix, PaymentMethodBoleto:
		return true
	default:
		return false
	}
}

// Async сообщает, что подтверждение оплаты приходит позже (уведомлением шлюза).
func (m PaymentMethod) Async() bool {
	return m == PaymentMethodPix || m == PaymentMethodBoleto
}

// MaxInstallments: верхняя граница рассрочки по карте.
const MaxInstallments = 12

// CartItem: позиция корзины; габариты копируются из каталога для расчёта доставки.
type CartItem struct {
	ProductID   string `json:"product_id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Qty         int32  `json:"qty"`
	PriceMinor  int64  `json:"price_minor"`
	WeightGrams int32  `json:"weight_grams"`
	HeightCm    int32  `json:"height_cm"`
	WidthCm     int32  `json:"width_cm"`
	LengthCm    int32  `json:"length_cm"`
	CampaignID  string `json:"campaign_id,omitempty"`
}

// CartCustomer: данные покупателя этапа user.
type CartCustomer struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Document string `json:"document,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// ShippingAddress: адрес доставки.
type ShippingAddress struct {
	Recipient  string `json:"recipient"`
	ZipCode    string `json:"zip_code"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	Complement string `json:"complement,omitempty"`
	District   string `json:"district"`
	City       string `json:"city"`
	State      string `json:"state"`
}

// CartShipping: данные этапа shipping.
type CartShipping struct {
	Address      ShippingAddress `json:"address"`
	ServiceCode  string          `json:"service_code"`
	FreightMinor int64           `json:"freight_minor"`
	DeliveryDays int             `json:"delivery_days"`
	QuotedAt     time.Time       `json:"quoted_at"`
}

// CartPayment: данные этапа payment.
type CartPayment struct {
	Gateway      string        `json:"gateway"`
	Method       PaymentMethod `json:"method"`
	Installments int           `json:"installments"`
	CardToken    string        `json:"card_token,omitempty"`
	CardBrand    string        `json:"card_brand,omitempty"`
	FeeMinor     int64         `json:"fee_minor"`
}

// Cart: корзина, сериализуемая в JSON и хранимая в кэше по UUID.
type Cart struct {
	UUID          string        `json:"uuid"`
	Stage         CartStage     `json:"stage"`
	Currency      string        `json:"currency"`
	Items         []CartItem    `json:"items"`
	CouponCode    string        `json:"coupon_code,omitempty"`
	DiscountMinor int64         `json:"discount_minor"`
	Customer      *CartCustomer `json:"customer,omitempty"`
	Shipping      *CartShipping `json:"shipping,omitempty"`
	Payment       *CartPayment  `json:"payment,omitempty"`
	CheckoutJobID string        `json:"checkout_job_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// NewCart создаёт пустую анонимную корзину.
func NewCart(uuid, currency string, now time.Time) Cart {
	return Cart{
		UUID:      uuid,
		Stage:     CartStageBase,
		Currency:  NormalizeCurrency(currency),
		Items:     []CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// SubtotalMinor: Σ qty·price.
func (c *Cart) SubtotalMinor() int64 {
	var total int64
	for _, item := range c.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	return total
}

// FreightMinor возвращает стоимость доставки (0 до этапа shipping).
func (c *Cart) FreightMinor() int64 {
	if c.Shipping == nil {
		return 0
	}
	return c.Shipping.FreightMinor
}

// FeeMinor возвращает комиссию способа оплаты (0 до этапа payment).
func (c *Cart) FeeMinor() int64 {
	if c.Payment == nil {
		return 0
	}
	return c.Payment.FeeMinor
}

// GoodsTotalMinor: сумма товаров с учётом скидки и доставки, без комиссии оплаты.
func (c *Cart) GoodsTotalMinor() int64 {
	total := c.SubtotalMinor() - c.DiscountMinor + c.FreightMinor()
	if total < 0 {
		return 0
	}
	return total
}

// TotalMinor возвращает итог к оплате, subtotal − discount + freight + fee, не меньше нуля.
func (c *Cart) TotalMinor() int64 {
	return c.GoodsTotalMinor() + c.FeeMinor()
}

// Locked сообщает, что корзина отправлена на checkout.
func (c *Cart) Locked() bool {
	return c.Stage == CartStageCheckout
}

// FindItem возвращает индекс позиции по товару или -1.
func (c *Cart) FindItem(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem добавляет товар или увеличивает количество существующей позиции.
func (c *Cart) AddItem(item CartItem, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	if item.Qty <= 0 {
		return ErrItemQtyInvalid
	}
	if item.PriceMinor < 0 {
		return ErrItemPriceInvalid
	}
	if idx := c.FindItem(item.ProductID); idx >= 0 {
		item.Qty += c.Items[idx].Qty
		c.Items[idx] = item
	} else {
		c.Items = append(c.Items, item)
	}
	c.itemsChanged(now)
	return nil
}

// SetItemQty задаёт количество; qty <= 0 удаляет позицию.
func (c *Cart) SetItemQty(productID string, qty int32, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	idx := c.FindItem(productID)
	if idx < 0 {
		return ErrCartItemNotFound
	}
	if qty <= 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	} else {
		c.Items[idx].Qty = qty
	}
	c.itemsChanged(now)
	return nil
}

// RemoveItem удаляет позицию.
func (c *Cart) RemoveItem(productID string, now time.Time) error {
	return c.SetItemQty(productID, 0, now)
}

// SetCoupon фиксирует купон и его скидку; скидка не превышает subtotal.
func (c *Cart) SetCoupon(code string, discountMinor int64, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	code = NormalizeCouponCode(code)
	if sub := c.SubtotalMinor(); discountMinor > sub {
		discountMinor = sub
	}
	if discountMinor < 0 {
		discountMinor = 0
	}
	changed := c.CouponCode != code || c.DiscountMinor != discountMinor
	c.CouponCode = code
	c.DiscountMinor = discountMinor
	if changed {
		c.dropPricedStages()
	}
	c.UpdatedAt = now
	return nil
}

// ClearCoupon убирает купон.
func (c *Cart) ClearCoupon(now time.Time) error {
	return c.SetCoupon("", 0, now)
}

// SetCustomer переводит корзину на этап user.
func (c *Cart) SetCustomer(customer CartCustomer, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	if len(c.Items) == 0 {
		return ErrCartEmpty
	}
	if strings.TrimSpace(customer.Email) == "" {
		return ErrCustomerEmailRequired
	}
	if strings.TrimSpace(customer.ID) == "" {
		return ErrCustomerRequired
	}
	c.Customer = &customer
	c.Shipping = nil
	c.Payment = nil
	c.Stage = CartStageUser
	c.UpdatedAt = now
	return nil
}

// SetShipping переводит корзину на этап shipping.
func (c *Cart) SetShipping(shipping CartShipping, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	if !c.Stage.AtLeast(CartStageUser) || c.Customer == nil {
		return ErrCartStage
	}
	c.Shipping = &shipping
	c.Payment = nil
	c.Stage = CartStageShipping
	c.UpdatedAt = now
	return nil
}

// SetPayment переводит корзину на этап payment.
func (c *Cart) SetPayment(payment CartPayment, now time.Time) error {
	if c.Locked() {
		return ErrCartLocked
	}
	if !c.Stage.AtLeast(CartStageShipping) || c.Shipping == nil {
		return ErrCartStage
	}
	if err := payment.Validate(); err != nil {
		return err
	}
	c.Payment = &payment
	c.Stage = CartStagePayment
	c.UpdatedAt = now
	return nil
}

// Lock блокирует корзину под задачу checkout.
func (c *Cart) Lock(jobID string, now time.Time) error {
	if c.Stage != CartStagePayment {
		if c.Locked() {
			return ErrCartLocked
		}
		return ErrCartStage
	}
	c.Stage = CartStageCheckout
	c.CheckoutJobID = jobID
	c.UpdatedAt = now
	return nil
}

// ReadyForCheckout проверяет полноту корзины перед постановкой задачи.
func (c *Cart) ReadyForCheckout() error {
	switch {
	case len(c.Items) == 0:
		return ErrCartEmpty
	case c.Stage != CartStagePayment:
		return ErrCartStage
	case c.Customer == nil, c.Shipping == nil, c.Payment == nil:
		return ErrCartStage
	}
	return c.Payment.Validate()
}

// Validate проверяет параметры оплаты.
func (p CartPayment) Validate() error {
	if strings.TrimSpace(p.Gateway) == "" {
		return ErrPaymentProviderRequired
	}
	if !p.Method.Valid() {
		return ErrPaymentMethodInvalid
	}
	if p.Method == PaymentMethodCreditCard {
		if p.Installments < 1 || p.Installments > MaxInstallments {
			return ErrInstallmentsInvalid
		}
		if strings.TrimSpace(p.CardToken) == "" {
			return ErrCardTokenRequired
		}
	} else if p.Installments > 1 {
		return ErrInstallmentsInvalid
	}
	return nil
}

// itemsChanged сбрасывает этапы, зависящие от состава корзины.
func (c *Cart) itemsChanged(now time.Time) {
	if sub := c.SubtotalMinor(); c.DiscountMinor > sub {
		c.DiscountMinor = sub
	}
	c.dropPricedStages()
	c.UpdatedAt = now
}

func (c *Cart) dropPricedStages() {
	c.Shipping = nil
	c.Payment = nil
	switch {
	case c.Customer != nil && c.Stage.AtLeast(CartStageUser):
		c.Stage = CartStageUser
	default:
		c.Stage = CartStageBase
	}
}

// NormalizeZipCode оставляет только цифры CEP и проверяет длину.
func NormalizeZipCode(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	zip := b.String()
	if len(zip) != 8 {
		return "", ErrZipCodeInvalid
	}
	return zip, nil
}
