package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency используется, если каталог не задаёт валюту явно.
const DefaultCurrency = "BRL"

var hundred = decimal.NewFromInt(100)

// MinorToDecimal переводит минимальные единицы (центавы) в decimal с двумя знаками.
func MinorToDecimal(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// DecimalToMinor округляет сумму до центавов (half-up) и возвращает int64.
func DecimalToMinor(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// PercentOf считает percent% от minor с округлением до центавов.
func PercentOf(minor int64, percent decimal.Decimal) int64 {
	if minor <= 0 || percent.Sign() <= 0 {
		return 0
	}
	return decimal.NewFromInt(minor).Mul(percent).Div(hundred).Round(0).IntPart()
}

// ParseLocalizedAmount разбирает суммы вида "1.234,56" и "25.50" в минимальные единицы.
func ParseLocalizedAmount(raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if strings.Contains(value, ",") {
		value = strings.ReplaceAll(value, ".", "")
		value = strings.ReplaceAll(value, ",", ".")
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return 0, err
	}
	return DecimalToMinor(amount), nil
}

// NormalizeCurrency приводит код валюты к верхнему регистру, подставляя BRL по умолчанию.
func NormalizeCurrency(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return DefaultCurrency
	}
	return currency
}
