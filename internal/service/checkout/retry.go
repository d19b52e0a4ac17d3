package checkout

import (
	"errors"
	"math"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RetryPolicy задаёт экспоненциальную задержку между попытками checkout.
type RetryPolicy struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy возвращает политику по умолчанию.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   domain.DefaultCheckoutMaxAttempts,
		InitialDelay:  5 * time.Second,
		MaxDelay:      5 * time.Minute,
		BackoffFactor: 2.0,
	}
}

// Delay возвращает паузу после попытки attempt (с 1): InitialDelay·Factor^(attempt−1), не больше MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}

	delay := float64(p.InitialDelay) * math.Pow(factor, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// permanent сообщает, что повтор задачи не изменит результат.
func permanent(err error) bool {
	if domain.IsBusiness(err) {
		return true
	}
	switch {
	case errors.Is(err, domain.ErrZipCodeInvalid),
		errors.Is(err, domain.ErrCartStage),
		errors.Is(err, domain.ErrCartCurrencyMismatch),
		errors.Is(err, domain.ErrOrderInvalidState),
		errors.Is(err, domain.ErrInstallmentsInvalid),
		errors.Is(err, domain.ErrCardTokenRequired),
		errors.Is(err, domain.ErrPaymentProviderRequired),
		errors.Is(err, domain.ErrAmountMismatch):
		return true
	default:
		return false
	}
}
