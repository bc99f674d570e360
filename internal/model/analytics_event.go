// internal/model/analytics_event.go
package model

import (
	"encoding/json"
	"time"
)

type AnalyticsEvent struct {
	ID           int             `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	CampaignID   *int            `db:"campaign_id" json:"campaign_id,omitempty"`
	CreatorID    *int            `db:"creator_id" json:"creator_id,omitempty"`
	InvitationID *int            `db:"invitation_id" json:"invitation_id,omitempty"`
	Data         json.RawMessage `db:"data" json:"data,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// AutomationStats summarises invitation outcomes across all campaigns.
type AutomationStats struct {
	TotalInvitesSent int     `json:"total_invites_sent"`
	ResponseRate     float64 `json:"response_rate"`
	AcceptanceRate   float64 `json:"acceptance_rate"`
	CampaignsActive  int     `json:"campaigns_active"`
	TodayInvites     int     `json:"today_invites"`
	PendingResponses int     `json:"pending_responses"`
}
