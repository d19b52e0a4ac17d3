package domain

import "time"

// TimelineEvent описывает шаг статуса заказа (order status step).
type TimelineEvent struct {
	OrderID  string
	Type     string
	Status   OrderStatus
	Reason   string
	Occurred time.Time
}
