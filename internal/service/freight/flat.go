package freight

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// FlatRateConfig: тарифы фиксированной доставки.
type FlatRateConfig struct {
	BaseMinor  int64
	PerKgMinor int64
	// ExpressFactorPct: наценка SEDEX к PAC в процентах (150 = ×1.5).
	ExpressFactorPct int64
	StandardDays     int
	ExpressDays      int
}

// DefaultFlatRate используется в dev-окружении без токена Correios.
var DefaultFlatRate = FlatRateConfig{
	BaseMinor:        1500,
	PerKgMinor:       500,
	ExpressFactorPct: 150,
	StandardDays:     7,
	ExpressDays:      2,
}

// FlatRate считает доставку по весу без внешних вызовов.
type FlatRate struct {
	cfg FlatRateConfig
	now func() time.Time
}

// NewFlatRate создаёт калькулятор фиксированной доставки.
func NewFlatRate(cfg FlatRateConfig) *FlatRate {
	if cfg.ExpressFactorPct <= 0 {
		cfg.ExpressFactorPct = 100
	}
	return &FlatRate{cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Quote: base + perKg за каждый начатый килограмм тарифицируемого веса.
func (f *FlatRate) Quote(_ context.Context, req domain.FreightRequest) (domain.FreightQuote, error) {
	if _, err := domain.NormalizeZipCode(req.DestinationZip); err != nil {
		return domain.FreightQuote{}, err
	}
	service := req.ServiceCode
	if service == "" {
		service = domain.FreightServicePAC
	}

	kg := (int64(BillableGrams(req.Package)) + 999) / 1000
	price := f.cfg.BaseMinor + kg*f.cfg.PerKgMinor
	days := f.cfg.StandardDays
	if service == domain.FreightServiceSEDEX {
		price = price * f.cfg.ExpressFactorPct / 100
		days = f.cfg.ExpressDays
	}
	return domain.FreightQuote{
		ServiceCode:  service,
		PriceMinor:   price,
		DeliveryDays: days,
		QuotedAt:     f.now(),
	}, nil
}

var _ domain.FreightQuoter = (*FlatRate)(nil)
