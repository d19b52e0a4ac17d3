package payment

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry(NewMockGateway(""), NewMockGateway("stripe"))

	gw, err := reg.Gateway(" Stripe ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.Name() != "stripe" {
		t.Fatalf("unexpected gateway %q", gw.Name())
	}

	if _, err := reg.Gateway("paypal"); !errors.Is(err, domain.ErrGatewayNotFound) {
		t.Fatalf("expected ErrGatewayNotFound, got %v", err)
	}
	if !domain.IsBusiness(domain.ErrGatewayNotFound) {
		t.Fatal("unknown gateway must fail checkout immediately")
	}

	names := reg.Names()
	if len(names) != 2 || names[0] != "mock" || names[1] != "stripe" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestFeePolicy(t *testing.T) {
	policy := DefaultFeePolicy()

	cases := []struct {
		name         string
		method       domain.PaymentMethod
		installments int
		base         int64
		want         int64
	}{
		{name: "pix", method: domain.PaymentMethodPix, installments: 1, base: 10000, want: 0},
		{name: "boleto", method: domain.PaymentMethodBoleto, installments: 1, base: 10000, want: 0},
		{name: "card free", method: domain.PaymentMethodCreditCard, installments: 3, base: 10000, want: 0},
		{name: "card 4x", method: domain.PaymentMethodCreditCard, installments: 4, base: 10000, want: 199},
		{name: "card 12x", method: domain.PaymentMethodCreditCard, installments: 12, base: 10000, want: 1791},
		{name: "rounding", method: domain.PaymentMethodCreditCard, installments: 5, base: 3333, want: 133},
		{name: "empty cart", method: domain.PaymentMethodCreditCard, installments: 12, base: 0, want: 0},
	}
	for _, tc := range cases {
		if got := policy.Fee(tc.method, tc.installments, tc.base); got != tc.want {
			t.Fatalf("%s: expected fee %d, got %d", tc.name, tc.want, got)
		}
	}

	flat := FeePolicy{InstallmentRate: decimal.NewFromInt(1)}
	if got := flat.Fee(domain.PaymentMethodCreditCard, 1, 10000); got != 100 {
		t.Fatalf("expected fee for first installment, got %d", got)
	}
}
