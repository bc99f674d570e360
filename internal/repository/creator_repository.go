package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
)

// CreatorRepositoryInterface defines methods used by the engine and the webhook reactor
type CreatorRepositoryInterface interface {
	GetByID(ctx context.Context, id int) (*model.Creator, error)
	GetByExternalID(ctx context.Context, externalID string) (*model.Creator, error)
	Create(ctx context.Context, c *model.Creator) error
	UpdateMetrics(ctx context.Context, id int, m model.CreatorMetrics) error
}

type CreatorRepository struct {
	DB *sqlx.DB
}

const creatorColumns = `id, external_id, username, display_name, follower_count, engagement_rate, avg_views,
	categories, location, bio, is_verified, gmv, last_updated, created_at`

func (r *CreatorRepository) GetByID(ctx context.Context, id int) (*model.Creator, error) {
	return r.getOne(ctx, `SELECT `+creatorColumns+` FROM creators WHERE id = $1`, id)
}

func (r *CreatorRepository) GetByExternalID(ctx context.Context, externalID string) (*model.Creator, error) {
	return r.getOne(ctx, `SELECT `+creatorColumns+` FROM creators WHERE external_id = $1`, externalID)
}

func (r *CreatorRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Creator, error) {
	var c model.Creator
	if err := r.DB.GetContext(ctx, &c, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrCreatorNotFound
		}
		return nil, err
	}
	return &c, nil
}

// Create inserts a discovered creator. A concurrent insert of the same external id
// refreshes the existing row instead of failing.
func (r *CreatorRepository) Create(ctx context.Context, c *model.Creator) error {
	query := `
		INSERT INTO creators (external_id, username, display_name, follower_count, engagement_rate, avg_views,
			categories, location, bio, is_verified, gmv, last_updated, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (external_id) DO UPDATE SET
			follower_count = EXCLUDED.follower_count,
			engagement_rate = COALESCE(EXCLUDED.engagement_rate, creators.engagement_rate),
			last_updated = NOW()
		RETURNING id, last_updated, created_at
	`
	return r.DB.QueryRowxContext(ctx, query,
		c.ExternalID, c.Username, c.DisplayName, c.FollowerCount, c.EngagementRate, c.AvgViews,
		c.Categories, c.Location, c.Bio, c.IsVerified, c.GMV,
	).Scan(&c.ID, &c.LastUpdated, &c.CreatedAt)
}

// UpdateMetrics writes only the fields set in m.
func (r *CreatorRepository) UpdateMetrics(ctx context.Context, id int, m model.CreatorMetrics) error {
	if m.Empty() {
		return nil
	}

	sets := []string{}
	args := []interface{}{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s=$%d", column, len(args)))
	}

	if m.DisplayName != nil {
		add("display_name", *m.DisplayName)
	}
	if m.FollowerCount != nil {
		add("follower_count", *m.FollowerCount)
	}
	if m.EngagementRate != nil {
		add("engagement_rate", *m.EngagementRate)
	}
	if m.AvgViews != nil {
		add("avg_views", *m.AvgViews)
	}
	if m.Categories != nil {
		add("categories", pq.StringArray(m.Categories))
	}
	if m.Location != nil {
		add("location", *m.Location)
	}
	if m.IsVerified != nil {
		add("is_verified", *m.IsVerified)
	}
	if m.GMV != nil {
		add("gmv", *m.GMV)
	}

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE creators SET %s, last_updated=NOW() WHERE id=$%d`, strings.Join(sets, ", "), len(args))

	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return requireRow(res, appErrors.ErrCreatorNotFound)
}

var _ CreatorRepositoryInterface = (*CreatorRepository)(nil)
