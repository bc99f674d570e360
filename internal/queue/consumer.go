package queue

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"

	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

// ConsumeAnalytics stores every delivered envelope until ctx is done or the channel closes.
// Undecodable messages are dropped. A failed insert is requeued once, then dropped.
func ConsumeAnalytics(ctx context.Context, deliveries <-chan amqp.Delivery, events repository.EventRepositoryInterface) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Warn().Msg("analytics delivery channel closed")
				return
			}
			handleDelivery(ctx, d, events)
		}
	}
}

func handleDelivery(ctx context.Context, d amqp.Delivery, events repository.EventRepositoryInterface) {
	var env event.Envelope
	if err := json.Unmarshal(d.Body, &env); err != nil || env.Type == "" {
		log.Warn().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("dropping invalid analytics message")
		ack(d)
		return
	}

	if err := events.TrackEvent(ctx, env.AnalyticsEvent()); err != nil {
		requeue := !d.Redelivered
		log.Error().Err(err).
			Str("event", env.Type).
			Int("campaign_id", env.CampaignID).
			Bool("requeue", requeue).
			Msg("failed to store analytics event")
		if nackErr := d.Nack(false, requeue); nackErr != nil {
			log.Error().Err(nackErr).Msg("nack analytics message")
		}
		return
	}
	ack(d)
}

func ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		log.Error().Err(err).Uint64("delivery_tag", d.DeliveryTag).Msg("ack analytics message")
	}
}
