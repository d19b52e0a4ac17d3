package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type contributionKey struct {
	campaignID string
	orderID    string
}

// CampaignRepository хранит кампании и учтённые взносы.
type CampaignRepository struct {
	mu            sync.Mutex
	campaigns     map[string]domain.Campaign
	contributions map[contributionKey]domain.Contribution
}

// NewCampaignRepository создаёт пустое хранилище кампаний.
func NewCampaignRepository() *CampaignRepository {
	return &CampaignRepository{
		campaigns:     make(map[string]domain.Campaign),
		contributions: make(map[contributionKey]domain.Contribution),
	}
}

// Put добавляет или заменяет кампанию.
func (r *CampaignRepository) Put(c domain.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
}

func (r *CampaignRepository) Get(id string) (domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[id]
	if !ok {
		return domain.Campaign{}, domain.ErrCampaignNotFound
	}
	return c, nil
}

func (r *CampaignRepository) ListActive(now time.Time) ([]domain.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := make([]domain.Campaign, 0, len(r.campaigns))
	for _, c := range r.campaigns {
		if c.Open(now) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EndsAt.Before(result[j].EndsAt) })
	return result, nil
}

func (r *CampaignRepository) AddContribution(contribution domain.Contribution) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	campaign, ok := r.campaigns[contribution.CampaignID]
	if !ok {
		return false, domain.ErrCampaignNotFound
	}
	key := contributionKey{campaignID: contribution.CampaignID, orderID: contribution.OrderID}
	if _, exists := r.contributions[key]; exists {
		return false, nil
	}
	r.contributions[key] = contribution
	campaign.RaisedMinor += contribution.AmountMinor
	campaign.Backers++
	r.campaigns[campaign.ID] = campaign
	return true, nil
}

var _ domain.CampaignRepository = (*CampaignRepository)(nil)
