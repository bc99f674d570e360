package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/creator-outreach/internal/model"
)

type EventRepositoryInterface interface {
	TrackEvent(ctx context.Context, ev *model.AnalyticsEvent) error
}

type EventRepository struct {
	DB *sqlx.DB
}

func (r *EventRepository) TrackEvent(ctx context.Context, ev *model.AnalyticsEvent) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	// jsonb is passed as text; lib/pq would send []byte as bytea.
	var data *string
	if len(ev.Data) > 0 {
		s := string(ev.Data)
		data = &s
	}

	query := `
		INSERT INTO analytics_events (event_type, campaign_id, creator_id, invitation_id, data, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6)
		RETURNING id
	`
	return r.DB.QueryRowxContext(ctx, query,
		ev.EventType, ev.CampaignID, ev.CreatorID, ev.InvitationID, data, ev.CreatedAt,
	).Scan(&ev.ID)
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
