package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const campaignColumns = `id, title, goal_minor, raised_minor, backers, starts_at, ends_at, active`

type campaignRepository struct {
	q dbtx
}

// NewCampaignRepository создаёт PostgreSQL-реализацию CampaignRepository.
func NewCampaignRepository(store *Store) domain.CampaignRepository {
	return &campaignRepository{q: store.DB()}
}

func (r *campaignRepository) Get(id string) (domain.Campaign, error) {
	ctx, cancel := opContext()
	defer cancel()

	c, err := scanCampaign(r.q.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Campaign{}, domain.ErrCampaignNotFound
		}
		return domain.Campaign{}, fmt.Errorf("select campaign: %w", err)
	}
	return c, nil
}

func (r *campaignRepository) ListActive(now time.Time) ([]domain.Campaign, error) {
	ctx, cancel := opContext()
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT `+campaignColumns+`
		FROM campaigns
		WHERE active
		  AND (starts_at IS NULL OR starts_at <= $1)
		  AND (ends_at IS NULL OR ends_at > $1)
		ORDER BY ends_at ASC NULLS LAST, id ASC
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := make([]domain.Campaign, 0)
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// AddContribution вставляет вклад и обновляет итоги кампании в одной транзакции.
func (r *campaignRepository) AddContribution(c domain.Contribution) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()

	var added bool
	err := inTx(ctx, r.q, func(tx dbtx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_contributions (campaign_id, order_id, amount_minor, created_at)
			SELECT $1, $2, $3, $4
			WHERE EXISTS (SELECT 1 FROM campaigns WHERE id = $1)
			ON CONFLICT (campaign_id, order_id) DO NOTHING
		`, c.CampaignID, c.OrderID, c.AmountMinor, c.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert contribution: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return r.ensureCampaign(ctx, tx, c.CampaignID)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE campaigns
			SET raised_minor = raised_minor + $2,
			    backers = backers + 1
			WHERE id = $1
		`, c.CampaignID, c.AmountMinor); err != nil {
			return fmt.Errorf("update campaign totals: %w", err)
		}
		added = true
		return nil
	})
	return added, err
}

func (r *campaignRepository) ensureCampaign(ctx context.Context, q dbtx, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check campaign exists: %w", err)
	}
	if !exists {
		return domain.ErrCampaignNotFound
	}
	return nil
}

func scanCampaign(row rowScanner) (domain.Campaign, error) {
	var (
		c        domain.Campaign
		startsAt sql.NullTime
		endsAt   sql.NullTime
	)
	if err := row.Scan(&c.ID, &c.Title, &c.GoalMinor, &c.RaisedMinor, &c.Backers, &startsAt, &endsAt, &c.Active); err != nil {
		return domain.Campaign{}, err
	}
	c.StartsAt = startsAt.Time
	c.EndsAt = endsAt.Time
	return c, nil
}

var _ domain.CampaignRepository = (*campaignRepository)(nil)
