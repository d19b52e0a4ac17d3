package domain

import "time"

// IdempotencyStatus: состояние ключа Idempotency-Key для изменяющих запросов
// (checkout, отмена и возврат заказа, уведомления шлюзов).
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing: запрос принят и ещё выполняется.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone: ответ сохранён, повтор получает его без повторного выполнения.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed: запрос завершился ошибкой сервера, сохранённый 5xx тоже отдаётся повтору.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord: сохранённый ответ на запрос с ключом идемпотентности.
type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	ResponseBody []byte
	HTTPStatus   int
	Status       IdempotencyStatus
	TTLAt        time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// Replayable сообщает, что запрос завершён и повтор получает сохранённый ответ.
func (s IdempotencyStatus) Replayable() bool {
	return s == IdempotencyStatusDone || s == IdempotencyStatusFailed
}

// IdempotencyStatusForHTTP выводит итоговый статус ключа из кода ответа: 5xx даёт failed.
func IdempotencyStatusForHTTP(httpStatus int) IdempotencyStatus {
	if httpStatus >= 500 {
		return IdempotencyStatusFailed
	}
	return IdempotencyStatusDone
}

// Active: запись ещё держит ключ в момент now. Истёкший ключ можно занять заново.
func (r IdempotencyRecord) Active(now time.Time) bool {
	return r.TTLAt.After(now)
}

// Conflicts: ключ повторён с другим запросом (другой путь или тело).
func (r IdempotencyRecord) Conflicts(requestHash string) bool {
	return r.RequestHash != requestHash
}
