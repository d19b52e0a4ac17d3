// Package crowdfunding ведёт кампании и учитывает взносы подтверждённых заказов.
package crowdfunding

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service: кампании краудфандинга.
type Service struct {
	campaigns domain.CampaignRepository
	products  domain.ProductRepository
	logger    *log.Entry
	now       func() time.Time
}

// NewService создаёт сервис. products нужен для привязки позиций заказа к кампаниям.
func NewService(campaigns domain.CampaignRepository, products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "crowdfunding")
	}
	return &Service{
		campaigns: campaigns,
		products:  products,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetCampaign возвращает кампанию.
func (s *Service) GetCampaign(id string) (domain.Campaign, error) {
	return s.campaigns.Get(id)
}

// ListActive возвращает кампании, принимающие взносы.
func (s *Service) ListActive() ([]domain.Campaign, error) {
	return s.campaigns.ListActive(s.now())
}

// Contribute учитывает вклад заказа; повтор для того же заказа не меняет прогресс.
func (s *Service) Contribute(campaignID, orderID string, amountMinor int64) (bool, error) {
	if orderID == "" {
		return false, domain.ErrOrderIDRequired
	}
	if amountMinor <= 0 {
		return false, domain.ErrPaymentAmountNegative
	}
	campaign, err := s.campaigns.Get(campaignID)
	if err != nil {
		return false, err
	}
	now := s.now()
	if !campaign.Open(now) {
		return false, domain.ErrCampaignClosed
	}
	return s.campaigns.AddContribution(domain.Contribution{
		CampaignID:  campaignID,
		OrderID:     orderID,
		AmountMinor: amountMinor,
		CreatedAt:   now,
	})
}

// ContributeOrder распределяет сумму товаров заказа по кампаниям его позиций.
// Доля кампании уменьшается пропорционально скидке заказа; закрытые кампании пропускаются.
func (s *Service) ContributeOrder(order domain.Order) error {
	shares, err := s.campaignShares(order)
	if err != nil {
		return err
	}
	for _, share := range shares {
		added, err := s.Contribute(share.campaignID, order.ID, share.amountMinor)
		switch {
		case errors.Is(err, domain.ErrCampaignClosed), errors.Is(err, domain.ErrCampaignNotFound):
			s.logger.WithFields(log.Fields{
				"order_id":    order.ID,
				"campaign_id": share.campaignID,
			}).WithError(err).Warn("contribution skipped")
			continue
		case err != nil:
			return fmt.Errorf("contribute to %s: %w", share.campaignID, err)
		}
		if added {
			s.logger.WithFields(log.Fields{
				"order_id":     order.ID,
				"campaign_id":  share.campaignID,
				"amount_minor": share.amountMinor,
			}).Info("contribution registered")
		}
	}
	return nil
}

type campaignShare struct {
	campaignID  string
	amountMinor int64
}

func (s *Service) campaignShares(order domain.Order) ([]campaignShare, error) {
	if len(order.Items) == 0 || order.SubtotalMinor <= 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		ids = append(ids, item.ProductID)
	}
	products, err := s.products.ListByIDs(ids)
	if err != nil {
		return nil, err
	}
	campaignOf := make(map[string]string, len(products))
	for _, p := range products {
		if p.CampaignID != "" {
			campaignOf[p.ID] = p.CampaignID
		}
	}

	totals := make(map[string]int64)
	for _, item := range order.Items {
		if campaignID, ok := campaignOf[item.ProductID]; ok {
			totals[campaignID] += int64(item.Qty) * item.PriceMinor
		}
	}

	ratio := decimal.NewFromInt(order.GoodsAmountMinor()).Div(decimal.NewFromInt(order.SubtotalMinor))
	shares := make([]campaignShare, 0, len(totals))
	for campaignID, total := range totals {
		amount := decimal.NewFromInt(total).Mul(ratio).Round(0).IntPart()
		if amount <= 0 {
			continue
		}
		shares = append(shares, campaignShare{campaignID: campaignID, amountMinor: amount})
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].campaignID < shares[j].campaignID })
	return shares, nil
}
