package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

// CreatorFilter narrows discovered candidates down to creators the campaign may invite.
type CreatorFilter struct {
	Invitations   repository.InvitationRepositoryInterface
	Directory     CreatorDirectory
	LookupTimeout time.Duration
	// MaxAttempts caps failed sends per creator. 0 means unlimited.
	MaxAttempts int
}

// FilterNew drops candidates that already hold an open invitation, exhausted their retries,
// or miss the engagement and revenue floors. A failed revenue lookup excludes the candidate.
func (f *CreatorFilter) FilterNew(ctx context.Context, c *model.Campaign, candidates []*model.Creator) ([]*model.Creator, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	existing, err := f.Invitations.ListByCampaign(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("list invitations for campaign %d: %w", c.ID, err)
	}
	open := make(map[int]bool, len(existing))
	failures := make(map[int]int)
	for _, inv := range existing {
		if inv.IsFailed() {
			failures[inv.CreatorID]++
			continue
		}
		open[inv.CreatorID] = true
	}

	eligible := make([]*model.Creator, 0, len(candidates))
	seen := make(map[int]bool, len(candidates))
	for _, cr := range candidates {
		if seen[cr.ID] || open[cr.ID] {
			continue
		}
		seen[cr.ID] = true

		if f.MaxAttempts > 0 && failures[cr.ID] >= f.MaxAttempts {
			continue
		}
		if c.TargetEngagementMin != nil {
			if cr.EngagementRate == nil || *cr.EngagementRate < *c.TargetEngagementMin {
				continue
			}
		}
		if c.TargetGMVMin.Valid && !f.meetsRevenue(ctx, c, cr) {
			continue
		}
		eligible = append(eligible, cr)
	}
	return eligible, nil
}

func (f *CreatorFilter) meetsRevenue(ctx context.Context, c *model.Campaign, cr *model.Creator) bool {
	if f.Directory == nil {
		return false
	}

	lookupCtx := ctx
	if f.LookupTimeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, f.LookupTimeout)
		defer cancel()
	}

	gmv, err := f.Directory.LookupRevenue(lookupCtx, cr.ExternalID)
	if err != nil {
		log.Warn().Err(err).
			Int("campaign_id", c.ID).
			Int("creator_id", cr.ID).
			Msg("revenue lookup failed, skipping creator")
		return false
	}
	return gmv.GreaterThanOrEqual(c.TargetGMVMin.Decimal)
}
