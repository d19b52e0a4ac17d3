package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsVersionConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "version conflict error",
			err:  ErrOrderVersionConflict,
			want: true,
		},
		{
			name: "wrapped version conflict error",
			err:  errors.Join(ErrOrderVersionConflict, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrOrderNotFound,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsVersionConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsVersionConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsIdempotencyConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "idempotency already exists",
			err:  ErrIdempotencyKeyAlreadyExists,
			want: true,
		},
		{
			name: "idempotency hash mismatch",
			err:  ErrIdempotencyHashMismatch,
			want: true,
		},
		{
			name: "wrapped idempotency conflict",
			err:  errors.Join(ErrIdempotencyHashMismatch, errors.New("extra context")),
			want: true,
		},
		{
			name: "non idempotency error",
			err:  ErrOrderVersionConflict,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsIdempotencyConflict(tt.err)
			if got != tt.want {
				t.Errorf("IsIdempotencyConflict() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		temporary bool
		business  bool
	}{
		{name: "payment temporary", err: ErrPaymentTemporary, temporary: true},
		{name: "wrapped inventory temporary", err: fmt.Errorf("reserve: %w", ErrInventoryTemporary), temporary: true},
		{name: "freight", err: ErrFreightUnavailable, temporary: true},
		{name: "indeterminate", err: ErrPaymentIndeterminate, temporary: true},
		{name: "declined", err: ErrPaymentDeclined, business: true},
		{name: "no stock", err: fmt.Errorf("p-1: %w", ErrInventoryUnavailable), business: true},
		{name: "coupon exhausted", err: ErrCouponExhausted, business: true},
		{name: "unknown", err: errors.New("boom")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTemporary(tt.err); got != tt.temporary {
				t.Fatalf("IsTemporary() = %v, want %v", got, tt.temporary)
			}
			if got := IsBusiness(tt.err); got != tt.business {
				t.Fatalf("IsBusiness() = %v, want %v", got, tt.business)
			}
		})
	}
}

func TestIsVersionConflict_CheckoutJob(t *testing.T) {
	if !IsVersionConflict(fmt.Errorf("save job: %w", ErrCheckoutJobConflict)) {
		t.Fatal("checkout job conflict should be treated as version conflict")
	}
}
