package domain_test

import (
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания заказа с двумя позициями, доставкой и комиссией.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusPending,
		Currency:      "BRL",
		SubtotalMinor: 700,
		DiscountMinor: 70,
		FreightMinor:  1500,
		FeeMinor:      30,
		AmountMinor:   2160,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p-1", SKU: "sku-1", Qty: 5, PriceMinor: 100, CreatedAt: now},
			{ID: "item-2", ProductID: "p-2", SKU: "sku-2", Qty: 1, PriceMinor: 200, CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
	if got := order.GoodsAmountMinor(); got != 630 {
		t.Fatalf("goods amount = %d, want 630", got)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
	}{
		{name: "no customer", mut: func(o *domain.Order) { o.CustomerID = "" }},
		{name: "no currency", mut: func(o *domain.Order) { o.Currency = "" }},
		{name: "negative amount", mut: func(o *domain.Order) { o.AmountMinor = -1 }},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Qty = 0 }},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].PriceMinor = -5 }},
		{name: "subtotal mismatch", mut: func(o *domain.Order) { o.SubtotalMinor = 999 }},
		{name: "total mismatch", mut: func(o *domain.Order) { o.FreightMinor = 1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestOrderStatusFinal(t *testing.T) {
	final := map[domain.OrderStatus]bool{
		domain.OrderStatusPending:   false,
		domain.OrderStatusReserved:  false,
		domain.OrderStatusPaid:      false,
		domain.OrderStatusConfirmed: false,
		domain.OrderStatusCanceled:  true,
		domain.OrderStatusRefunded:  true,
	}
	for status, want := range final {
		if got := status.Final(); got != want {
			t.Fatalf("%s.Final() = %v, want %v", status, got, want)
		}
	}
}
