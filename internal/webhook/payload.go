package webhook

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/validator"
)

const (
	TypeMessageViewed  = "message.viewed"
	TypeMessageReplied = "message.replied"
	TypeProfileUpdated = "creator.profile_updated"
)

// Event is one inbound marketplace notification. The set of implementations is closed.
type Event interface {
	Kind() string
	webhookEvent()
}

type MessageViewed struct {
	MessageID string
	At        time.Time
}

type MessageReplied struct {
	MessageID string
	ReplyText string
	At        time.Time
}

type ProfileUpdated struct {
	ExternalID string
	Metrics    model.CreatorMetrics
}

// Unknown carries an event type this service does not handle.
type Unknown struct {
	EventType string
}

func (MessageViewed) Kind() string  { return TypeMessageViewed }
func (MessageReplied) Kind() string { return TypeMessageReplied }
func (ProfileUpdated) Kind() string { return TypeProfileUpdated }
func (u Unknown) Kind() string      { return u.EventType }

func (MessageViewed) webhookEvent()  {}
func (MessageReplied) webhookEvent() {}
func (ProfileUpdated) webhookEvent() {}
func (Unknown) webhookEvent()        {}

// Payload is the raw webhook body.
type Payload struct {
	EventType     string         `json:"event_type" validate:"required"`
	MessageID     string         `json:"message_id" validate:"required_if=EventType message.viewed,required_if=EventType message.replied"`
	ReplyText     string         `json:"reply_text" validate:"required_if=EventType message.replied"`
	UserID        string         `json:"user_id" validate:"required_if=EventType creator.profile_updated"`
	UpdatedFields *UpdatedFields `json:"updated_fields"`
	Timestamp     int64          `json:"timestamp"`
}

// UpdatedFields are the profile metrics a creator.profile_updated event may carry.
type UpdatedFields struct {
	DisplayName    *string          `json:"display_name"`
	FollowerCount  *int             `json:"follower_count" validate:"omitempty,gte=0"`
	EngagementRate *float64         `json:"engagement_rate" validate:"omitempty,gte=0"`
	AvgViews       *int             `json:"avg_views" validate:"omitempty,gte=0"`
	Categories     []string         `json:"categories"`
	Location       *string          `json:"location"`
	IsVerified     *bool            `json:"is_verified"`
	GMV            *decimal.Decimal `json:"gmv"`
}

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid webhook payload: " + strings.Join(parts, "; ")
}

// Parse decodes and validates a webhook body into an Event.
func Parse(body []byte, now time.Time) (Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if fields := validator.Validate(p); fields != nil {
		return nil, &ValidationError{Fields: fields}
	}
	if p.UpdatedFields != nil {
		if fields := validator.Validate(p.UpdatedFields); fields != nil {
			return nil, &ValidationError{Fields: fields}
		}
	}

	at := now
	if p.Timestamp > 0 {
		at = time.Unix(p.Timestamp, 0)
	}

	switch p.EventType {
	case TypeMessageViewed:
		return MessageViewed{MessageID: p.MessageID, At: at}, nil
	case TypeMessageReplied:
		return MessageReplied{MessageID: p.MessageID, ReplyText: p.ReplyText, At: at}, nil
	case TypeProfileUpdated:
		return ProfileUpdated{ExternalID: p.UserID, Metrics: p.UpdatedFields.metrics()}, nil
	}
	return Unknown{EventType: p.EventType}, nil
}

func (f *UpdatedFields) metrics() model.CreatorMetrics {
	if f == nil {
		return model.CreatorMetrics{}
	}
	return model.CreatorMetrics{
		DisplayName:    f.DisplayName,
		FollowerCount:  f.FollowerCount,
		EngagementRate: f.EngagementRate,
		AvgViews:       f.AvgViews,
		Categories:     f.Categories,
		Location:       f.Location,
		IsVerified:     f.IsVerified,
		GMV:            f.GMV,
	}
}
