package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
)

const sqlStateUniqueViolation = "23505"

type InvitationRepositoryInterface interface {
	Create(ctx context.Context, inv *model.Invitation) error
	GetByCampaignAndCreator(ctx context.Context, campaignID, creatorID int) (*model.Invitation, error)
	GetByMessageID(ctx context.Context, messageID string) (*model.Invitation, error)
	ListByCampaign(ctx context.Context, campaignID int) ([]*model.Invitation, error)
	CountFailed(ctx context.Context, campaignID, creatorID int) (int, error)
	// UpdateStatus moves an invitation forward and reports whether the row changed.
	UpdateStatus(ctx context.Context, id int, status model.InvitationStatus, extra model.InvitationUpdate) (bool, error)
	AutomationCounts(ctx context.Context, since time.Time) (*model.AutomationStats, error)
}

type InvitationRepository struct {
	DB *sqlx.DB
}

const invitationColumns = `id, campaign_id, creator_id, message_id, message, status, sent_at, viewed_at,
	responded_at, decided_at, response, last_error, retry_count, created_at, updated_at`

// Create records a send attempt. The partial unique index on (campaign_id, creator_id)
// WHERE status <> 'failed' rejects a second open invitation with ErrDuplicateInvitation.
func (r *InvitationRepository) Create(ctx context.Context, inv *model.Invitation) error {
	now := time.Now()
	inv.CreatedAt = now
	inv.UpdatedAt = now

	query := `
		INSERT INTO invitations (campaign_id, creator_id, message_id, message, status, sent_at, last_error,
			retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`
	err := r.DB.QueryRowxContext(ctx, query,
		inv.CampaignID, inv.CreatorID, inv.MessageID, inv.Message, inv.Status, inv.SentAt, inv.LastError,
		inv.RetryCount, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if err != nil {
		mapped := mapInvitationInsertError(err)
		if !errors.Is(mapped, appErrors.ErrDuplicateInvitation) {
			log.Error().Err(err).
				Int("campaign_id", inv.CampaignID).
				Int("creator_id", inv.CreatorID).
				Msg("invitation insert failed")
		}
		return mapped
	}
	return nil
}

func mapInvitationInsertError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	if pqErr.Code == sqlStateUniqueViolation {
		return fmt.Errorf("%w: %w", appErrors.ErrDuplicateInvitation, err)
	}
	return err
}

// GetByCampaignAndCreator returns the open (non-failed) invitation for the pair.
func (r *InvitationRepository) GetByCampaignAndCreator(ctx context.Context, campaignID, creatorID int) (*model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations
		WHERE campaign_id = $1 AND creator_id = $2 AND status <> 'failed'
		ORDER BY id DESC LIMIT 1`
	return r.getOne(ctx, query, campaignID, creatorID)
}

func (r *InvitationRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE message_id = $1`, messageID)
}

func (r *InvitationRepository) getOne(ctx context.Context, query string, args ...interface{}) (*model.Invitation, error) {
	var inv model.Invitation
	if err := r.DB.GetContext(ctx, &inv, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvitationNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *InvitationRepository) ListByCampaign(ctx context.Context, campaignID int) ([]*model.Invitation, error) {
	query := `SELECT ` + invitationColumns + ` FROM invitations WHERE campaign_id = $1 ORDER BY id`

	invitations := []*model.Invitation{}
	if err := r.DB.SelectContext(ctx, &invitations, query, campaignID); err != nil {
		return nil, err
	}
	return invitations, nil
}

func (r *InvitationRepository) CountFailed(ctx context.Context, campaignID, creatorID int) (int, error) {
	var n int
	err := r.DB.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM invitations WHERE campaign_id = $1 AND creator_id = $2 AND status = 'failed'`,
		campaignID, creatorID)
	return n, err
}

// UpdateStatus only applies when the current status precedes the target in the lifecycle,
// so replays and races with the send loop never regress a row.
func (r *InvitationRepository) UpdateStatus(ctx context.Context, id int, status model.InvitationStatus, extra model.InvitationUpdate) (bool, error) {
	from := model.PrecedingStatuses(status)
	if len(from) == 0 {
		return false, fmt.Errorf("%w: cannot advance to %s", appErrors.ErrInvalidStatusTransition, status)
	}
	at := extra.At
	if at.IsZero() {
		at = time.Now()
	}

	var stampColumn string
	switch status {
	case model.InvitationStatusSent:
		stampColumn = "sent_at"
	case model.InvitationStatusViewed:
		stampColumn = "viewed_at"
	case model.InvitationStatusResponded:
		stampColumn = "responded_at"
	case model.InvitationStatusAccepted, model.InvitationStatusDeclined:
		stampColumn = "decided_at"
	default:
		stampColumn = "updated_at"
	}

	fromValues := make([]string, len(from))
	for i, s := range from {
		fromValues[i] = string(s)
	}

	query := fmt.Sprintf(`
		UPDATE invitations
		SET status = $1,
		    %s = $2,
		    response = COALESCE($3, response),
		    last_error = COALESCE($4, last_error),
		    updated_at = NOW()
		WHERE id = $5 AND status = ANY($6)
	`, stampColumn)

	res, err := r.DB.ExecContext(ctx, query, status, at, extra.Response, extra.LastError, id, pq.Array(fromValues))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *InvitationRepository) AutomationCounts(ctx context.Context, since time.Time) (*model.AutomationStats, error) {
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status IN ('responded', 'accepted', 'declined')) AS responded,
			COUNT(*) FILTER (WHERE status = 'accepted') AS accepted,
			COUNT(*) FILTER (WHERE status IN ('sent', 'viewed')) AS pending,
			COUNT(*) FILTER (WHERE created_at >= $1) AS today
		FROM invitations
		WHERE status <> 'failed'
	`
	var row struct {
		Total     int `db:"total"`
		Responded int `db:"responded"`
		Accepted  int `db:"accepted"`
		Pending   int `db:"pending"`
		Today     int `db:"today"`
	}
	if err := r.DB.GetContext(ctx, &row, query, since); err != nil {
		return nil, err
	}

	stats := &model.AutomationStats{
		TotalInvitesSent: row.Total,
		TodayInvites:     row.Today,
		PendingResponses: row.Pending,
	}
	if row.Total > 0 {
		stats.ResponseRate = float64(row.Responded) / float64(row.Total) * 100
	}
	if row.Responded > 0 {
		stats.AcceptanceRate = float64(row.Accepted) / float64(row.Responded) * 100
	}
	return stats, nil
}

var _ InvitationRepositoryInterface = (*InvitationRepository)(nil)
