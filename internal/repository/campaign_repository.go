package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error)

	// Engine-facing
	UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error
	UpdateSpent(ctx context.Context, id int, delta decimal.Decimal) error
	GetCampaignStats(ctx context.Context, id int) (map[string]int, error)
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, user_id, name, description, status, budget, spent, start_date, end_date,
	target_categories, target_follower_min, target_follower_max, target_engagement_min, target_gmv_min,
	target_locations, target_verified, invite_limit, invite_delay, message_template, created_at, updated_at`

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignStatusDraft
	}
	if c.InviteLimit == 0 {
		c.InviteLimit = model.DefaultInviteLimit
	}
	if c.InviteDelay == 0 {
		c.InviteDelay = model.DefaultInviteDelay
	}

	query := `
		INSERT INTO campaigns (user_id, name, description, status, budget, spent, start_date, end_date,
			target_categories, target_follower_min, target_follower_max, target_engagement_min, target_gmv_min,
			target_locations, target_verified, invite_limit, invite_delay, message_template, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		RETURNING id
	`
	return r.DB.QueryRowxContext(ctx, query,
		c.UserID, c.Name, c.Description, c.Status, c.Budget, c.Spent, c.StartDate, c.EndDate,
		c.TargetCategories, c.TargetFollowerMin, c.TargetFollowerMax, c.TargetEngagementMin, c.TargetGMVMin,
		c.TargetLocations, c.TargetVerified, c.InviteLimit, c.InviteDelay, c.MessageTemplate, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var c model.Campaign
	if err := r.DB.GetContext(ctx, &c, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListCampaigns(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	var total int
	if err := r.DB.GetContext(ctx, &total, `SELECT COUNT(*) FROM campaigns`+where, args...); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, args...); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListByStatus(ctx context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status = $1 ORDER BY id`

	campaigns := []*model.Campaign{}
	if err := r.DB.SelectContext(ctx, &campaigns, query, status); err != nil {
		return nil, err
	}
	return campaigns, nil
}

// ====================== Engine-facing ======================

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id int, status model.CampaignStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, id)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

// UpdateSpent adds delta to the campaign's spent amount.
func (r *CampaignRepository) UpdateSpent(ctx context.Context, id int, delta decimal.Decimal) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE campaigns SET spent = COALESCE(spent, 0) + $1, updated_at=NOW() WHERE id=$2`, delta, id)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.NewCampaignNotFound(id))
}

func (r *CampaignRepository) GetCampaignStats(ctx context.Context, id int) (map[string]int, error) {
	rows, err := r.DB.QueryxContext(ctx,
		`SELECT status, COUNT(*) FROM invitations WHERE campaign_id=$1 GROUP BY status`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":     0,
		"pending":   0,
		"sent":      0,
		"viewed":    0,
		"responded": 0,
		"accepted":  0,
		"declined":  0,
		"failed":    0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
