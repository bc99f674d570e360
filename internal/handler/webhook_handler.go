// internal/handler/webhook_handler.go
package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/creator-outreach/internal/response"
	"github.com/unclebandit/creator-outreach/internal/webhook"
)

const maxWebhookBody = 1 << 20

// EventReactor applies one verified marketplace event.
type EventReactor interface {
	Handle(ctx context.Context, ev webhook.Event) error
}

// WebhookHandler receives marketplace notifications.
type WebhookHandler struct {
	Secret  string
	Replay  webhook.ReplayGuard // optional
	Reactor EventReactor
	Now     func() time.Time
}

func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(w, "unreadable body")
		return
	}

	if !webhook.VerifySignature(h.Secret, body, r.Header.Get(webhook.SignatureHeader)) {
		log.Warn().Str("ip", r.RemoteAddr).Msg("webhook signature rejected")
		response.Unauthorized(w, "invalid signature")
		return
	}

	ctx := r.Context()
	guarded := false
	if h.Replay != nil {
		first, err := h.Replay.FirstSeen(ctx, body)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("replay guard unavailable, processing webhook anyway")
		case !first:
			response.OK(w, map[string]any{"duplicate": true})
			return
		default:
			guarded = true
		}
	}

	ev, err := webhook.Parse(body, h.now())
	if err != nil {
		var verr *webhook.ValidationError
		if errors.As(err, &verr) {
			response.ValidationError(w, verr.Fields)
			return
		}
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.Reactor.Handle(ctx, ev); err != nil {
		log.Error().Err(err).Str("event_type", ev.Kind()).Msg("webhook processing failed")
		if guarded {
			if ferr := h.Replay.Forget(context.WithoutCancel(ctx), body); ferr != nil {
				log.Error().Err(ferr).Msg("release replay key")
			}
		}
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]any{"event_type": ev.Kind()})
}

func (h *WebhookHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
