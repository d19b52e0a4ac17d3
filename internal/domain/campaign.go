package domain

import "time"

// Campaign: кампания краудфандинга, собирающая средства через заказы товаров.
type Campaign struct {
	ID          string
	Title       string
	GoalMinor   int64
	RaisedMinor int64
	Backers     int
	StartsAt    time.Time
	EndsAt      time.Time
	Active      bool
}

// Contribution: вклад заказа в кампанию; уникален по (campaign, order).
type Contribution struct {
	CampaignID  string
	OrderID     string
	AmountMinor int64
	CreatedAt   time.Time
}

// Open сообщает, принимает ли кампания взносы в момент now.
func (c *Campaign) Open(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.StartsAt.IsZero() && now.Before(c.StartsAt) {
		return false
	}
	if !c.EndsAt.IsZero() && !now.Before(c.EndsAt) {
		return false
	}
	return true
}

// ProgressPercent: процент достижения цели (может превышать 100).
func (c *Campaign) ProgressPercent() float64 {
	if c.GoalMinor <= 0 {
		return 0
	}
	return float64(c.RaisedMinor) * 100 / float64(c.GoalMinor)
}
