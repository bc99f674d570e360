package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

const DefaultSendTimeout = 15 * time.Second

// SendResult is the outcome of one invitation attempt.
type SendResult struct {
	CreatorID    int
	Success      bool
	InvitationID int
	MessageID    string
	Err          error
	// Duplicate is set when another sender already holds an open invitation for the creator.
	Duplicate bool
	// Skipped is set when the attempt never reached the transport.
	Skipped bool
}

// Attempted reports whether the result counts as a processed send.
func (r SendResult) Attempted() bool {
	return !r.Duplicate && !r.Skipped
}

// Dispatcher renders, delivers and records a single invitation.
type Dispatcher struct {
	Invitations  repository.InvitationRepositoryInterface
	Transport    MessageTransport
	Personalizer *Personalizer
	Governor     *Governor
	SendTimeout  time.Duration
}

// Send never retries. The invitation row is written whatever the transport outcome,
// on a context detached from ctx so a paused job still records its in-flight sends.
// Personalization and delivery each run under SendTimeout.
func (d *Dispatcher) Send(ctx context.Context, c *model.Campaign, cr *model.Creator) SendResult {
	result := SendResult{CreatorID: cr.ID}

	if d.Governor != nil {
		if err := d.Governor.Wait(ctx); err != nil {
			result.Skipped = true
			result.Err = err
			return result
		}
	}

	detached := context.WithoutCancel(ctx)
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}

	renderCtx, cancelRender := context.WithTimeout(detached, timeout)
	text := d.Personalizer.Personalize(renderCtx, c.MessageTemplate, cr)
	cancelRender()

	sendCtx, cancel := context.WithTimeout(detached, timeout)
	messageID, err := d.Transport.Deliver(sendCtx, cr.ExternalID, text)
	cancel()

	inv := &model.Invitation{
		CampaignID: c.ID,
		CreatorID:  cr.ID,
		Message:    text,
	}
	if err == nil {
		now := time.Now()
		inv.Status = model.InvitationStatusSent
		inv.MessageID = sql.NullString{String: messageID, Valid: messageID != ""}
		inv.SentAt = &now
	} else {
		inv.Status = model.InvitationStatusFailed
		inv.LastError = sql.NullString{String: err.Error(), Valid: true}
		prior, countErr := d.Invitations.CountFailed(detached, c.ID, cr.ID)
		if countErr != nil {
			log.Warn().Err(countErr).Int("campaign_id", c.ID).Int("creator_id", cr.ID).Msg("count failed attempts")
		}
		inv.RetryCount = prior
	}

	if createErr := d.Invitations.Create(detached, inv); createErr != nil {
		if errors.Is(createErr, appErrors.ErrDuplicateInvitation) {
			log.Info().Int("campaign_id", c.ID).Int("creator_id", cr.ID).Msg("creator already invited, skipping")
			result.Duplicate = true
			return result
		}
		result.Err = fmt.Errorf("record invitation: %w", createErr)
		if err != nil {
			result.Err = errors.Join(err, result.Err)
		}
		return result
	}

	result.InvitationID = inv.ID
	if err != nil {
		result.Err = err
		log.Warn().Err(err).
			Int("campaign_id", c.ID).
			Int("creator_id", cr.ID).
			Int("invitation_id", inv.ID).
			Msg("invitation delivery failed")
		return result
	}

	result.Success = true
	result.MessageID = messageID
	log.Info().
		Int("campaign_id", c.ID).
		Int("creator_id", cr.ID).
		Int("invitation_id", inv.ID).
		Str("message_id", messageID).
		Msg("invitation sent")
	return result
}
