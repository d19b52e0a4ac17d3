package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/order"
)

const maxBodyBytes = 1 << 20

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// В ошибках поля называются так же, как в JSON.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var errEmptyBody = errors.New("request body is empty")

// decode читает JSON с ограничением размера и проверяет теги validate.
// Пустое тело допустимо, если allowEmpty.
func (a *API) decode(r *http.Request, dst any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("cannot parse request body: %w", err)
		}
		if !allowEmpty {
			return errEmptyBody
		}
	}
	return a.validate.Struct(dst)
}

type addItemRequest struct {
	ProductID string `json:"product_id" validate:"required,max=64"`
	Qty       int32  `json:"qty" validate:"gt=0,lte=1000"`
}

type updateItemRequest struct {
	Qty int32 `json:"qty" validate:"gte=0,lte=1000"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type userRequest struct {
	ID       string `json:"id" validate:"max=64"`
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,max=200"`
	Document string `json:"document" validate:"omitempty,numeric,min=11,max=14"`
	Phone    string `json:"phone" validate:"max=32"`
}

type addressRequest struct {
	Recipient  string `json:"recipient" validate:"required,max=200"`
	ZipCode    string `json:"zip_code" validate:"required,max=10"`
	Street     string `json:"street" validate:"required,max=200"`
	Number     string `json:"number" validate:"required,max=20"`
	Complement string `json:"complement" validate:"max=100"`
	District   string `json:"district" validate:"max=100"`
	City       string `json:"city" validate:"required,max=100"`
	State      string `json:"state" validate:"required,len=2"`
}

func (a addressRequest) domain() domain.ShippingAddress {
	return domain.ShippingAddress{
		Recipient:  a.Recipient,
		ZipCode:    a.ZipCode,
		Street:     a.Street,
		Number:     a.Number,
		Complement: a.Complement,
		District:   a.District,
		City:       a.City,
		State:      strings.ToUpper(a.State),
	}
}

type shippingRequest struct {
	Address     addressRequest `json:"address"`
	ServiceCode string         `json:"service_code" validate:"omitempty,oneof=03220 03298"`
}

type paymentRequest struct {
	Gateway      string `json:"gateway" validate:"required,max=32"`
	Method       string `json:"method" validate:"required,oneof=credit_card pix boleto"`
	Installments int    `json:"installments" validate:"gte=0,lte=12"`
	CardToken    string `json:"card_token" validate:"max=256"`
	CardBrand    string `json:"card_brand" validate:"max=32"`
}

type freightQuoteRequest struct {
	ZipCode     string               `json:"zip_code" validate:"required,max=10"`
	ServiceCode string               `json:"service_code" validate:"omitempty,oneof=03220 03298"`
	Items       []freightItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type freightItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Qty       int32  `json:"qty" validate:"gt=0"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// refundRequest: при amount_minor = 0 возвращается весь остаток.
type refundRequest struct {
	AmountMinor int64  `json:"amount_minor" validate:"gte=0"`
	Reason      string `json:"reason" validate:"max=500"`
}

// money: сумма в центавах и строкой с двумя знаками.
type money struct {
	Minor  int64  `json:"minor"`
	Amount string `json:"amount"`
}

func moneyOf(minor int64) money {
	return money{Minor: minor, Amount: domain.MinorToDecimal(minor).StringFixed(2)}
}

type productResponse struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CategoryID  string `json:"category_id,omitempty"`
	CampaignID  string `json:"campaign_id,omitempty"`
	Price       money  `json:"price"`
	Currency    string `json:"currency"`
	WeightGrams int32  `json:"weight_grams"`
	HeightCm    int32  `json:"height_cm"`
	WidthCm     int32  `json:"width_cm"`
	LengthCm    int32  `json:"length_cm"`
	Active      bool   `json:"active"`
}

func productFrom(p domain.Product) productResponse {
	return productResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		CampaignID:  p.CampaignID,
		Price:       moneyOf(p.PriceMinor),
		Currency:    p.Currency,
		WeightGrams: p.WeightGrams,
		HeightCm:    p.HeightCm,
		WidthCm:     p.WidthCm,
		LengthCm:    p.LengthCm,
		Active:      p.Active,
	}
}

type categoryResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	ParentID string `json:"parent_id,omitempty"`
}

type campaignResponse struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Goal     money      `json:"goal"`
	Raised   money      `json:"raised"`
	Backers  int        `json:"backers"`
	Progress string     `json:"progress_percent"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`
	Active   bool       `json:"active"`
}

func campaignFrom(c domain.Campaign) campaignResponse {
	resp := campaignResponse{
		ID:       c.ID,
		Title:    c.Title,
		Goal:     moneyOf(c.GoalMinor),
		Raised:   moneyOf(c.RaisedMinor),
		Backers:  c.Backers,
		Progress: decimal.NewFromFloat(c.ProgressPercent()).StringFixed(1),
		Active:   c.Active,
	}
	if !c.StartsAt.IsZero() {
		starts := c.StartsAt
		resp.StartsAt = &starts
	}
	if !c.EndsAt.IsZero() {
		ends := c.EndsAt
		resp.EndsAt = &ends
	}
	return resp
}

type cartTotals struct {
	Subtotal money `json:"subtotal"`
	Discount money `json:"discount"`
	Freight  money `json:"freight"`
	Fee      money `json:"fee"`
	Total    money `json:"total"`
}

type cartResponse struct {
	domain.Cart
	Totals cartTotals `json:"totals"`
}

func cartFrom(c domain.Cart) cartResponse {
	if c.Items == nil {
		c.Items = []domain.CartItem{}
	}
	return cartResponse{
		Cart: c,
		Totals: cartTotals{
			Subtotal: moneyOf(c.SubtotalMinor()),
			Discount: moneyOf(c.DiscountMinor),
			Freight:  moneyOf(c.FreightMinor()),
			Fee:      moneyOf(c.FeeMinor()),
			Total:    moneyOf(c.TotalMinor()),
		},
	}
}

type checkoutJobResponse struct {
	ID          string    `json:"id"`
	CartUUID    string    `json:"cart_uuid"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	NextRunAt   time.Time `json:"next_run_at"`
	LastError   string    `json:"last_error,omitempty"`
	OrderID     string    `json:"order_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func checkoutJobFrom(j domain.CheckoutJob) checkoutJobResponse {
	return checkoutJobResponse{
		ID:          j.ID,
		CartUUID:    j.CartUUID,
		Status:      string(j.Status),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		NextRunAt:   j.NextRunAt,
		LastError:   j.LastError,
		OrderID:     j.OrderID,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

type orderItemResponse struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Qty       int32  `json:"qty"`
	Price     money  `json:"price"`
}

type paymentResponse struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	ExternalID string `json:"external_id,omitempty"`
	Method     string `json:"method"`
	Status     string `json:"status"`
	Amount     money  `json:"amount"`
	Refunded   money  `json:"refunded"`
}

type orderResponse struct {
	ID            string                 `json:"id"`
	CustomerID    string                 `json:"customer_id"`
	CustomerEmail string                 `json:"customer_email,omitempty"`
	CheckoutJobID string                 `json:"checkout_job_id,omitempty"`
	Status        string                 `json:"status"`
	Currency      string                 `json:"currency"`
	Subtotal      money                  `json:"subtotal"`
	Discount      money                  `json:"discount"`
	Freight       money                  `json:"freight"`
	Fee           money                  `json:"fee"`
	Amount        money                  `json:"amount"`
	CouponCode    string                 `json:"coupon_code,omitempty"`
	Gateway       string                 `json:"gateway,omitempty"`
	PaymentMethod string                 `json:"payment_method,omitempty"`
	Installments  int                    `json:"installments,omitempty"`
	Shipping      domain.ShippingAddress `json:"shipping"`
	ShippingCode  string                 `json:"shipping_code,omitempty"`
	Items         []orderItemResponse    `json:"items"`
	Payment       *paymentResponse       `json:"payment,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func orderFrom(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			SKU:       it.SKU,
			Name:      it.Name,
			Qty:       it.Qty,
			Price:     moneyOf(it.PriceMinor),
		})
	}
	return orderResponse{
		ID:            o.ID,
		CustomerID:    o.CustomerID,
		CustomerEmail: o.CustomerEmail,
		CheckoutJobID: o.CheckoutJobID,
		Status:        string(o.Status),
		Currency:      o.Currency,
		Subtotal:      moneyOf(o.SubtotalMinor),
		Discount:      moneyOf(o.DiscountMinor),
		Freight:       moneyOf(o.FreightMinor),
		Fee:           moneyOf(o.FeeMinor),
		Amount:        moneyOf(o.AmountMinor),
		CouponCode:    o.CouponCode,
		Gateway:       o.Gateway,
		PaymentMethod: string(o.PaymentMethod),
		Installments:  o.Installments,
		Shipping:      o.Shipping,
		ShippingCode:  o.ShippingCode,
		Items:         items,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

func orderDetailsFrom(d order.Details) orderResponse {
	resp := orderFrom(d.Order)
	if p := d.Payment; p != nil {
		resp.Payment = &paymentResponse{
			ID:         p.ID,
			Provider:   p.Provider,
			ExternalID: p.ExternalID,
			Method:     string(p.Method),
			Status:     string(p.Status),
			Amount:     moneyOf(p.AmountMinor),
			Refunded:   moneyOf(p.RefundedMinor),
		}
	}
	return resp
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Status   string    `json:"status"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type freightQuoteResponse struct {
	ServiceCode  string    `json:"service_code"`
	Price        money     `json:"price"`
	DeliveryDays int       `json:"delivery_days"`
	QuotedAt     time.Time `json:"quoted_at"`
}
