package event

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/unclebandit/creator-outreach/internal/model"
)

// Envelope is the wire form of an Event, used by the broker and pub/sub sinks.
type Envelope struct {
	Type         string          `json:"type"`
	CampaignID   int             `json:"campaign_id"`
	CreatorID    *int            `json:"creator_id,omitempty"`
	InvitationID *int            `json:"invitation_id,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Wrap converts e into an Envelope stamped with at.
func Wrap(e Event, at time.Time) (Envelope, error) {
	env := Envelope{Type: e.Type(), CampaignID: e.Campaign(), OccurredAt: at.UTC()}

	var data any
	switch ev := e.(type) {
	case CampaignStarted:
		data = map[string]any{"run_id": ev.RunID}
	case CampaignPaused:
		data = map[string]any{"stats": ev.Stats}
	case CampaignCompleted:
		data = map[string]any{"stats": ev.Stats, "reason": ev.Reason}
	case CampaignNoCreators:
		data = map[string]any{"discovered": ev.Discovered}
	case CampaignError:
		data = map[string]any{"error": ev.Err}
	case InvitationSent:
		env.CreatorID, env.InvitationID = ref(ev.CreatorID), ref(ev.InvitationID)
	case InvitationFailed:
		env.CreatorID, env.InvitationID = ref(ev.CreatorID), ref(ev.InvitationID)
		data = map[string]any{"error": ev.Err}
	case InvitationViewed:
		env.CreatorID, env.InvitationID = ref(ev.CreatorID), ref(ev.InvitationID)
	case InvitationAccepted:
		env.CreatorID, env.InvitationID = ref(ev.CreatorID), ref(ev.InvitationID)
	case InvitationDeclined:
		env.CreatorID, env.InvitationID = ref(ev.CreatorID), ref(ev.InvitationID)
	default:
		return Envelope{}, fmt.Errorf("unknown event type %T", e)
	}

	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s data: %w", e.Type(), err)
		}
		env.Data = raw
	}
	return env, nil
}

// AnalyticsEvent maps the envelope onto an analytics_events row.
// "campaign:started" is stored as "campaign_started".
func (env Envelope) AnalyticsEvent() *model.AnalyticsEvent {
	var campaignID *int
	if env.CampaignID != 0 {
		campaignID = ref(env.CampaignID)
	}
	return &model.AnalyticsEvent{
		EventType:    strings.ReplaceAll(env.Type, ":", "_"),
		CampaignID:   campaignID,
		CreatorID:    env.CreatorID,
		InvitationID: env.InvitationID,
		Data:         env.Data,
		CreatedAt:    env.OccurredAt,
	}
}

func ref(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
