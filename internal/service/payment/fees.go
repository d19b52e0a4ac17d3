package payment

import (
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FeePolicy: комиссия за рассрочку по карте.
type FeePolicy struct {
	// FreeInstallments: сколько платежей без процентов.
	FreeInstallments int
	// InstallmentRate: процент от суммы за каждый платёж сверх бесплатных.
	InstallmentRate decimal.Decimal
}

// DefaultFeePolicy: до 3 платежей без комиссии, далее 1.99% за платёж.
func DefaultFeePolicy() FeePolicy {
	return FeePolicy{
		FreeInstallments: 3,
		InstallmentRate:  decimal.RequireFromString("1.99"),
	}
}

// Fee считает комиссию для суммы baseMinor; pix и boleto без комиссии.
func (p FeePolicy) Fee(method domain.PaymentMethod, installments int, baseMinor int64) int64 {
	if method != domain.PaymentMethodCreditCard || baseMinor <= 0 {
		return 0
	}
	extra := installments - p.FreeInstallments
	if extra <= 0 {
		return 0
	}
	return domain.PercentOf(baseMinor, p.InstallmentRate.Mul(decimal.NewFromInt(int64(extra))))
}
