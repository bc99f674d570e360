// internal/model/creator.go
package model

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Creator struct {
	ID             int                 `db:"id" json:"id"`
	ExternalID     string              `db:"external_id" json:"external_id"`
	Username       string              `db:"username" json:"username"`
	DisplayName    string              `db:"display_name" json:"display_name"`
	FollowerCount  int                 `db:"follower_count" json:"follower_count"`
	EngagementRate *float64            `db:"engagement_rate" json:"engagement_rate,omitempty"` // fraction, 0.045 = 4.5%
	AvgViews       *int                `db:"avg_views" json:"avg_views,omitempty"`
	Categories     pq.StringArray      `db:"categories" json:"categories"`
	Location       string              `db:"location" json:"location"`
	Bio            string              `db:"bio" json:"bio,omitempty"`
	IsVerified     bool                `db:"is_verified" json:"is_verified"`
	GMV            decimal.NullDecimal `db:"gmv" json:"gmv"`
	LastUpdated    time.Time           `db:"last_updated" json:"last_updated"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

// CreatorMetrics carries a partial update to a creator's profile. Nil fields are left untouched.
type CreatorMetrics struct {
	DisplayName    *string
	FollowerCount  *int
	EngagementRate *float64
	AvgViews       *int
	Categories     []string
	Location       *string
	IsVerified     *bool
	GMV            *decimal.Decimal
}

// Empty reports whether the update changes nothing.
func (m CreatorMetrics) Empty() bool {
	return m.DisplayName == nil && m.FollowerCount == nil && m.EngagementRate == nil &&
		m.AvgViews == nil && m.Categories == nil && m.Location == nil &&
		m.IsVerified == nil && m.GMV == nil
}

// Apply copies the non-nil fields of m onto c.
func (m CreatorMetrics) Apply(c *Creator) {
	if m.DisplayName != nil {
		c.DisplayName = *m.DisplayName
	}
	if m.FollowerCount != nil {
		c.FollowerCount = *m.FollowerCount
	}
	if m.EngagementRate != nil {
		rate := *m.EngagementRate
		c.EngagementRate = &rate
	}
	if m.AvgViews != nil {
		views := *m.AvgViews
		c.AvgViews = &views
	}
	if m.Categories != nil {
		c.Categories = pq.StringArray(m.Categories)
	}
	if m.Location != nil {
		c.Location = *m.Location
	}
	if m.IsVerified != nil {
		c.IsVerified = *m.IsVerified
	}
	if m.GMV != nil {
		c.GMV = decimal.NewNullDecimal(*m.GMV)
	}
}
