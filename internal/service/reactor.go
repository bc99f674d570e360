package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/repository"
	"github.com/unclebandit/creator-outreach/internal/webhook"
)

// Reactor applies marketplace webhooks to invitations and creators. It only touches the
// store, so it can run alongside the engine's send loops.
type Reactor struct {
	Invitations repository.InvitationRepositoryInterface
	Creators    repository.CreatorRepositoryInterface
	Classifier  SentimentClassifier
	Events      event.Publisher
}

func (r *Reactor) Handle(ctx context.Context, ev webhook.Event) error {
	switch e := ev.(type) {
	case webhook.MessageViewed:
		return r.viewed(ctx, e)
	case webhook.MessageReplied:
		return r.replied(ctx, e)
	case webhook.ProfileUpdated:
		return r.profileUpdated(ctx, e)
	default:
		log.Info().Str("event_type", ev.Kind()).Msg("ignoring unhandled webhook event")
		return nil
	}
}

func (r *Reactor) viewed(ctx context.Context, e webhook.MessageViewed) error {
	inv, err := r.invitation(ctx, e.MessageID)
	if inv == nil {
		return err
	}

	changed, err := r.Invitations.UpdateStatus(ctx, inv.ID, model.InvitationStatusViewed, model.InvitationUpdate{At: e.At})
	if err != nil {
		return fmt.Errorf("mark invitation %d viewed: %w", inv.ID, err)
	}
	if changed {
		r.publish(ctx, event.InvitationViewed{CampaignID: inv.CampaignID, CreatorID: inv.CreatorID, InvitationID: inv.ID})
	}
	return nil
}

func (r *Reactor) replied(ctx context.Context, e webhook.MessageReplied) error {
	inv, err := r.invitation(ctx, e.MessageID)
	if inv == nil {
		return err
	}

	reply := e.ReplyText
	changed, err := r.Invitations.UpdateStatus(ctx, inv.ID, model.InvitationStatusResponded,
		model.InvitationUpdate{Response: &reply, At: e.At})
	if err != nil {
		return fmt.Errorf("record reply for invitation %d: %w", inv.ID, err)
	}
	if !changed {
		log.Debug().Int("invitation_id", inv.ID).Str("status", string(inv.Status)).Msg("reply already applied")
		return nil
	}

	sentiment, err := r.classifier().Classify(ctx, reply)
	if err != nil {
		log.Warn().Err(err).Int("invitation_id", inv.ID).Msg("could not classify reply")
		return nil
	}
	decision, ok := sentiment.Decision()
	if !ok {
		return nil
	}

	changed, err = r.Invitations.UpdateStatus(ctx, inv.ID, decision, model.InvitationUpdate{At: e.At})
	if err != nil {
		return fmt.Errorf("decide invitation %d: %w", inv.ID, err)
	}
	if !changed {
		return nil
	}

	log.Info().
		Int("campaign_id", inv.CampaignID).
		Int("invitation_id", inv.ID).
		Str("decision", string(decision)).
		Msg("creator replied")
	if decision == model.InvitationStatusAccepted {
		r.publish(ctx, event.InvitationAccepted{CampaignID: inv.CampaignID, CreatorID: inv.CreatorID, InvitationID: inv.ID})
	} else {
		r.publish(ctx, event.InvitationDeclined{CampaignID: inv.CampaignID, CreatorID: inv.CreatorID, InvitationID: inv.ID})
	}
	return nil
}

func (r *Reactor) profileUpdated(ctx context.Context, e webhook.ProfileUpdated) error {
	creator, err := r.Creators.GetByExternalID(ctx, e.ExternalID)
	if err != nil {
		if errors.Is(err, appErrors.ErrCreatorNotFound) {
			log.Info().Str("external_id", e.ExternalID).Msg("profile update for unknown creator")
			return nil
		}
		return err
	}
	if err := r.Creators.UpdateMetrics(ctx, creator.ID, e.Metrics); err != nil {
		return fmt.Errorf("update creator %d metrics: %w", creator.ID, err)
	}
	return nil
}

// invitation returns nil without error when the message id is unknown.
func (r *Reactor) invitation(ctx context.Context, messageID string) (*model.Invitation, error) {
	inv, err := r.Invitations.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, appErrors.ErrInvitationNotFound) {
			log.Info().Str("message_id", messageID).Msg("webhook for unknown message")
			return nil, nil
		}
		return nil, err
	}
	return inv, nil
}

func (r *Reactor) classifier() SentimentClassifier {
	if r.Classifier == nil {
		return KeywordClassifier{}
	}
	return r.Classifier
}

func (r *Reactor) publish(ctx context.Context, ev event.Event) {
	if r.Events == nil {
		return
	}
	if err := r.Events.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type()).Msg("failed to publish event")
	}
}
