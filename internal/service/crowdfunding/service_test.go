package crowdfunding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.CampaignRepository) {
	t.Helper()

	campaigns := memory.NewCampaignRepository()
	campaigns.Put(domain.Campaign{ID: "camp-open", Title: "Expansão", GoalMinor: 100_000, Active: true, EndsAt: testNow.Add(24 * time.Hour)})
	campaigns.Put(domain.Campaign{ID: "camp-closed", Title: "Antiga", GoalMinor: 100_000, Active: true, EndsAt: testNow.Add(-time.Hour)})

	catalog := memory.NewCatalogRepository()
	catalog.PutProduct(domain.Product{ID: "p-open", PriceMinor: 1000, Active: true, CampaignID: "camp-open"})
	catalog.PutProduct(domain.Product{ID: "p-closed", PriceMinor: 1000, Active: true, CampaignID: "camp-closed"})
	catalog.PutProduct(domain.Product{ID: "p-plain", PriceMinor: 1000, Active: true})

	svc := NewService(campaigns, catalog.Products(), nil)
	svc.now = func() time.Time { return testNow }
	return svc, campaigns
}

func TestService_ContributeIsIdempotentPerOrder(t *testing.T) {
	svc, _ := newTestService(t)

	added, err := svc.Contribute("camp-open", "o-1", 2500)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = svc.Contribute("camp-open", "o-1", 2500)
	require.NoError(t, err)
	assert.False(t, added)

	campaign, err := svc.GetCampaign("camp-open")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), campaign.RaisedMinor)
	assert.Equal(t, 1, campaign.Backers)
	assert.InDelta(t, 2.5, campaign.ProgressPercent(), 0.001)
}

func TestService_ContributeRejectsClosedCampaign(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Contribute("camp-closed", "o-1", 100)
	assert.ErrorIs(t, err, domain.ErrCampaignClosed)

	_, err = svc.Contribute("camp-missing", "o-1", 100)
	assert.ErrorIs(t, err, domain.ErrCampaignNotFound)

	_, err = svc.Contribute("camp-open", "", 100)
	assert.ErrorIs(t, err, domain.ErrOrderIDRequired)
}

func TestService_ContributeOrderSplitsByCampaign(t *testing.T) {
	svc, campaigns := newTestService(t)

	order := domain.Order{
		ID: "o-7",
		Items: []domain.OrderItem{
			{ProductID: "p-open", Qty: 2, PriceMinor: 1000},
			{ProductID: "p-closed", Qty: 1, PriceMinor: 1000},
			{ProductID: "p-plain", Qty: 1, PriceMinor: 1000},
		},
		SubtotalMinor: 4000,
		// 10% скидки уменьшают вклад так же.
		DiscountMinor: 400,
		FreightMinor:  1500,
	}
	require.NoError(t, svc.ContributeOrder(order))
	// Повтор безопасен.
	require.NoError(t, svc.ContributeOrder(order))

	open, err := campaigns.Get("camp-open")
	require.NoError(t, err)
	assert.Equal(t, int64(1800), open.RaisedMinor)
	assert.Equal(t, 1, open.Backers)

	closed, err := campaigns.Get("camp-closed")
	require.NoError(t, err)
	assert.Zero(t, closed.RaisedMinor)
}

func TestService_ListActive(t *testing.T) {
	svc, _ := newTestService(t)

	active, err := svc.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "camp-open", active[0].ID)
}
