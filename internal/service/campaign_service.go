// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/repository"
)

// JobRegistry exposes the engine's running jobs.
type JobRegistry interface {
	Snapshot(campaignID int) (JobSnapshot, bool)
	Snapshots() []JobSnapshot
}

type CampaignService struct {
	CampaignRepo   repository.CampaignRepositoryInterface
	CreatorRepo    repository.CreatorRepositoryInterface
	InvitationRepo repository.InvitationRepositoryInterface
	Jobs           JobRegistry
	Personalizer   *Personalizer
}

type CampaignDetails struct {
	*model.Campaign
	Stats map[string]int `json:"stats"`
	Job   *JobSnapshot   `json:"job,omitempty"`
}

// RenderPreview renders the campaign's template, or overrideTemplate when given, for one creator.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, creatorID int, overrideTemplate *string) (string, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return "", err
	}

	creator, err := s.CreatorRepo.GetByID(ctx, creatorID)
	if err != nil {
		return "", err
	}

	template := campaign.MessageTemplate
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", appErrors.ErrEmptyTemplate
	}

	return s.Personalizer.Personalize(ctx, template, creator), nil
}

func (s *CampaignService) CreateCampaign(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	c.Status = model.CampaignStatusDraft
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create campaign: %w", err)
	}
	log.Info().Int("campaign_id", c.ID).Int("user_id", c.UserID).Msg("campaign created")
	return c, nil
}

// Activate moves a draft campaign to active so the engine may start it.
func (s *CampaignService) Activate(ctx context.Context, campaignID int) (*model.Campaign, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != model.CampaignStatusDraft {
		return nil, fmt.Errorf("%w: campaign %d is %s, only drafts can be activated",
			appErrors.ErrInvalidStatusTransition, campaign.ID, campaign.Status)
	}
	if err := s.CampaignRepo.UpdateStatus(ctx, campaignID, model.CampaignStatusActive); err != nil {
		return nil, err
	}
	campaign.Status = model.CampaignStatusActive
	return campaign, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, campaignID int) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.CampaignRepo.GetCampaignStats(ctx, campaignID)
	if err != nil {
		log.Error().Err(err).Int("campaign_id", campaignID).Msg("failed to load invitation stats")
		return nil, err
	}

	details := &CampaignDetails{Campaign: campaign, Stats: stats}
	if s.Jobs != nil {
		if snap, ok := s.Jobs.Snapshot(campaignID); ok {
			details.Job = &snap
		}
	}
	return details, nil
}

// AutomationStats summarises invitation outcomes across every campaign.
func (s *CampaignService) AutomationStats(ctx context.Context, now time.Time) (*model.AutomationStats, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	stats, err := s.InvitationRepo.AutomationCounts(ctx, midnight)
	if err != nil {
		return nil, err
	}
	if s.Jobs != nil {
		stats.CampaignsActive = len(s.Jobs.Snapshots())
	}
	return stats, nil
}
