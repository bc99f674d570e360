// internal/model/campaign.go
package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

const (
	DefaultInviteLimit = 100
	DefaultInviteDelay = 30 // seconds
)

type Campaign struct {
	ID          int            `db:"id" json:"id"`
	UserID      int            `db:"user_id" json:"user_id"`
	Name        string         `db:"name" json:"name"`
	Description string         `db:"description" json:"description,omitempty"`
	Status      CampaignStatus `db:"status" json:"status"`

	Budget decimal.Decimal `db:"budget" json:"budget"`
	Spent  decimal.Decimal `db:"spent" json:"spent"`

	StartDate *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate   *time.Time `db:"end_date" json:"end_date,omitempty"`

	TargetCategories    pq.StringArray      `db:"target_categories" json:"target_categories"`
	TargetFollowerMin   *int                `db:"target_follower_min" json:"target_follower_min,omitempty"`
	TargetFollowerMax   *int                `db:"target_follower_max" json:"target_follower_max,omitempty"`
	TargetEngagementMin *float64            `db:"target_engagement_min" json:"target_engagement_min,omitempty"`
	TargetGMVMin        decimal.NullDecimal `db:"target_gmv_min" json:"target_gmv_min"`
	TargetLocations     pq.StringArray      `db:"target_locations" json:"target_locations"`
	TargetVerified      *bool               `db:"target_verified" json:"target_verified,omitempty"`

	InviteLimit     int    `db:"invite_limit" json:"invite_limit"`
	InviteDelay     int    `db:"invite_delay" json:"invite_delay"` // seconds between batches
	MessageTemplate string `db:"message_template" json:"message_template"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// IsActive reports whether the campaign may be ticked by the engine.
func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}

// CanStart reports whether the engine may (re)start the campaign.
func (c *Campaign) CanStart() bool {
	return c.Status == CampaignStatusActive || c.Status == CampaignStatusPaused
}

// WindowClosed reports whether the campaign's end date has passed.
func (c *Campaign) WindowClosed(now time.Time) bool {
	return c.EndDate != nil && now.After(*c.EndDate)
}

// Criteria builds the directory search criteria from the campaign's target filters.
func (c *Campaign) Criteria(limit int) SearchCriteria {
	return SearchCriteria{
		Categories:    []string(c.TargetCategories),
		MinFollowers:  c.TargetFollowerMin,
		MaxFollowers:  c.TargetFollowerMax,
		MinEngagement: c.TargetEngagementMin,
		Locations:     []string(c.TargetLocations),
		Verified:      c.TargetVerified,
		Limit:         limit,
	}
}

// SearchCriteria is what the creator directory is queried with.
type SearchCriteria struct {
	Categories    []string
	MinFollowers  *int
	MaxFollowers  *int
	MinEngagement *float64
	Locations     []string
	Verified      *bool // nil means any
	Limit         int
}
