package domain

import "time"

// CheckoutJobStatus: статус фоновой обработки checkout.
type CheckoutJobStatus string

const (
	CheckoutJobPending    CheckoutJobStatus = "pending"
	CheckoutJobProcessing CheckoutJobStatus = "processing"
	CheckoutJobSucceeded  CheckoutJobStatus = "succeeded"
	CheckoutJobFailed     CheckoutJobStatus = "failed"
)

// Terminal сообщает, что задача больше не будет обрабатываться.
func (s CheckoutJobStatus) Terminal() bool {
	return s == CheckoutJobSucceeded || s == CheckoutJobFailed
}

// Valid проверяет известные статусы.
func (s CheckoutJobStatus) Valid() bool {
	switch s {
	case CheckoutJobPending, CheckoutJobProcessing, CheckoutJobSucceeded, CheckoutJobFailed:
		return true
	default:
		return false
	}
}

const (
	// DefaultCheckoutMaxAttempts: число попыток по умолчанию.
	DefaultCheckoutMaxAttempts = 5
	// DefaultCheckoutLease: сколько задача может пробыть в processing, прежде чем её захватят снова.
	DefaultCheckoutLease = 5 * time.Minute
)

// CheckoutJob: персистентная задача checkout для корзины.
type CheckoutJob struct {
	ID          string
	CartUUID    string
	Status      CheckoutJobStatus
	Attempts    int
	MaxAttempts int
	// NextRunAt: для pending время следующего запуска, для processing конец аренды.
	NextRunAt time.Time
	LastError string
	OrderID   string
	// Cart: снимок корзины на момент checkout; кэш может истечь раньше, чем задача завершится.
	Cart      Cart
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCheckoutJob создаёт задачу в статусе pending, готовую к немедленному запуску.
func NewCheckoutJob(id string, cart Cart, maxAttempts int, now time.Time) CheckoutJob {
	if maxAttempts <= 0 {
		maxAttempts = DefaultCheckoutMaxAttempts
	}
	return CheckoutJob{
		ID:          id,
		CartUUID:    cart.UUID,
		Status:      CheckoutJobPending,
		MaxAttempts: maxAttempts,
		NextRunAt:   now,
		Cart:        cart,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Due сообщает, что задачу можно захватить в момент now: pending с наступившим сроком
// или processing с истёкшей арендой (обработчик упал или не смог сохранить результат).
func (j *CheckoutJob) Due(now time.Time) bool {
	switch j.Status {
	case CheckoutJobPending, CheckoutJobProcessing:
		return !j.NextRunAt.After(now)
	default:
		return false
	}
}

// Claim переводит задачу в processing на срок lease и увеличивает счётчик попыток.
func (j *CheckoutJob) Claim(now time.Time, lease time.Duration) error {
	if !j.Due(now) {
		return ErrCheckoutJobConflict
	}
	if lease <= 0 {
		lease = DefaultCheckoutLease
	}
	j.Status = CheckoutJobProcessing
	j.Attempts++
	j.NextRunAt = now.Add(lease)
	j.UpdatedAt = now
	return nil
}

// AttemptsLeft сообщает, остались ли попытки после текущей.
func (j *CheckoutJob) AttemptsLeft() bool {
	return j.Attempts < j.MaxAttempts
}

// Reschedule возвращает задачу в pending с отложенным запуском.
func (j *CheckoutJob) Reschedule(cause error, delay time.Duration, now time.Time) error {
	if j.Status != CheckoutJobProcessing {
		return ErrCheckoutJobConflict
	}
	j.Status = CheckoutJobPending
	j.NextRunAt = now.Add(delay)
	j.LastError = errorText(cause)
	j.UpdatedAt = now
	return nil
}

// Succeed завершает задачу успешно.
func (j *CheckoutJob) Succeed(orderID string, now time.Time) error {
	if j.Status != CheckoutJobProcessing {
		return ErrCheckoutJobConflict
	}
	j.Status = CheckoutJobSucceeded
	j.OrderID = orderID
	j.UpdatedAt = now
	return nil
}

// Fail завершает задачу с ошибкой.
func (j *CheckoutJob) Fail(cause error, now time.Time) error {
	if j.Status.Terminal() {
		return ErrCheckoutJobConflict
	}
	j.Status = CheckoutJobFailed
	j.LastError = errorText(cause)
	j.UpdatedAt = now
	return nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
