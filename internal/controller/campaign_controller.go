// internal/controller/campaign_controller.go
package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/response"
	"github.com/unclebandit/creator-outreach/internal/service"
	"github.com/unclebandit/creator-outreach/internal/validator"
)

// AutomationEngine is the part of the engine the HTTP layer drives.
type AutomationEngine interface {
	Start(ctx context.Context, campaignID int) (service.JobSnapshot, error)
	Pause(ctx context.Context, campaignID int) (service.JobSnapshot, error)
	Complete(ctx context.Context, campaignID int) (service.JobSnapshot, error)
	Snapshots() []service.JobSnapshot
}

type CampaignController struct {
	CampaignService *service.CampaignService
	Engine          AutomationEngine
}

// Routes mounts the campaign and automation endpoints on r.
func (c *CampaignController) Routes(r chi.Router) {
	r.Route("/campaigns", func(r chi.Router) {
		r.Post("/", c.CreateCampaign)
		r.Get("/", c.ListCampaigns)
		r.Get("/{id}", c.GetCampaignDetails)
		r.Post("/{id}/personalized-preview", c.PersonalizedPreview)
		r.Post("/{id}/activate", c.ActivateCampaign)
		r.Post("/{id}/automation/start", c.StartAutomation)
		r.Post("/{id}/automation/pause", c.PauseAutomation)
		r.Post("/{id}/automation/complete", c.CompleteAutomation)
	})
	r.Get("/automation/jobs", c.ListJobs)
	r.Get("/automation/stats", c.AutomationStats)
}

type createCampaignRequest struct {
	UserID              int        `json:"user_id" validate:"gte=0"`
	Name                string     `json:"name" validate:"required,min=3,max=200"`
	Description         string     `json:"description" validate:"max=2000"`
	Budget              string     `json:"budget" validate:"required,decimal"`
	StartDate           *time.Time `json:"start_date"`
	EndDate             *time.Time `json:"end_date"`
	TargetCategories    []string   `json:"target_categories" validate:"max=20,dive,required"`
	TargetFollowerMin   *int       `json:"target_follower_min" validate:"omitempty,gte=0"`
	TargetFollowerMax   *int       `json:"target_follower_max" validate:"omitempty,gte=0"`
	TargetEngagementMin *float64   `json:"target_engagement_min" validate:"omitempty,gte=0,lte=1"`
	TargetGMVMin        string     `json:"target_gmv_min" validate:"omitempty,decimal"`
	TargetLocations     []string   `json:"target_locations" validate:"max=50,dive,required"`
	TargetVerified      *bool      `json:"target_verified"`
	InviteLimit         int        `json:"invite_limit" validate:"omitempty,gte=1,lte=10000"`
	InviteDelay         *int       `json:"invite_delay" validate:"omitempty,gte=0,lte=86400"`
	MessageTemplate     string     `json:"message_template" validate:"max=2000,template"`
}

// toCampaign converts the request, returning field errors for rules the tags cannot express.
func (req *createCampaignRequest) toCampaign() (*model.Campaign, map[string]string) {
	fields := map[string]string{}

	budget, err := decimal.NewFromString(strings.TrimSpace(req.Budget))
	if err != nil || budget.IsNegative() {
		fields["budget"] = "Invalid decimal amount"
	}
	var gmvMin decimal.NullDecimal
	if s := strings.TrimSpace(req.TargetGMVMin); s != "" {
		v, err := decimal.NewFromString(s)
		if err != nil || v.IsNegative() {
			fields["target_gmv_min"] = "Invalid decimal amount"
		}
		gmvMin = decimal.NewNullDecimal(v)
	}
	if req.TargetFollowerMin != nil && req.TargetFollowerMax != nil && *req.TargetFollowerMax < *req.TargetFollowerMin {
		fields["target_follower_max"] = "Value must not be less than target_follower_min"
	}
	if req.StartDate != nil && req.EndDate != nil && !req.EndDate.After(*req.StartDate) {
		fields["end_date"] = "Must be after start_date"
	}
	if len(fields) > 0 {
		return nil, fields
	}

	limit := req.InviteLimit
	if limit == 0 {
		limit = model.DefaultInviteLimit
	}
	delay := model.DefaultInviteDelay
	if req.InviteDelay != nil {
		delay = *req.InviteDelay
	}

	return &model.Campaign{
		UserID:              req.UserID,
		Name:                strings.TrimSpace(req.Name),
		Description:         req.Description,
		Budget:              budget,
		Spent:               decimal.Zero,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		TargetCategories:    req.TargetCategories,
		TargetFollowerMin:   req.TargetFollowerMin,
		TargetFollowerMax:   req.TargetFollowerMax,
		TargetEngagementMin: req.TargetEngagementMin,
		TargetGMVMin:        gmvMin,
		TargetLocations:     req.TargetLocations,
		TargetVerified:      req.TargetVerified,
		InviteLimit:         limit,
		InviteDelay:         delay,
		MessageTemplate:     req.MessageTemplate,
	}, nil
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "invalid body: "+err.Error())
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ValidationError(w, fields)
		return
	}
	campaign, fields := req.toCampaign()
	if fields != nil {
		response.ValidationError(w, fields)
		return
	}

	created, err := c.CampaignService.CreateCampaign(r.Context(), campaign)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, created)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	status := q.Get("status")
	if status != "" {
		if err := validator.ValidateVar(status, "oneof=draft active paused completed"); err != nil {
			response.ValidationError(w, map[string]string{"status": "Must be one of: draft active paused completed"})
			return
		}
	}

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.WithMeta(w, campaigns, response.Meta{
		Total:    pagination["total_count"],
		Page:     pagination["page"],
		PageSize: pagination["page_size"],
		Pages:    pagination["total_pages"],
	})
}

func (c *CampaignController) GetCampaignDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	details, err := c.CampaignService.GetCampaignDetailsWithStats(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, details)
}

func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var body struct {
		CreatorID        int     `json:"creator_id" validate:"required,gt=0"`
		OverrideTemplate *string `json:"override_template" validate:"omitempty,max=2000,template"`
	}
	if err := response.DecodeJSON(r.Body, &body); err != nil {
		response.BadRequest(w, "invalid body: "+err.Error())
		return
	}
	if fields := validator.Validate(body); fields != nil {
		response.ValidationError(w, fields)
		return
	}

	rendered, err := c.CampaignService.RenderPreview(r.Context(), id, body.CreatorID, body.OverrideTemplate)
	if err != nil {
		writeError(w, r, err)
		return
	}

	response.OK(w, map[string]any{
		"rendered_message": rendered,
		"used_template":    body.OverrideTemplate,
		"creator_id":       body.CreatorID,
	})
}

func (c *CampaignController) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	campaign, err := c.CampaignService.Activate(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, campaign)
}

func (c *CampaignController) StartAutomation(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.Engine.Start, http.StatusAccepted)
}

func (c *CampaignController) PauseAutomation(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.Engine.Pause, http.StatusOK)
}

func (c *CampaignController) CompleteAutomation(w http.ResponseWriter, r *http.Request) {
	c.lifecycle(w, r, c.Engine.Complete, http.StatusOK)
}

func (c *CampaignController) lifecycle(w http.ResponseWriter, r *http.Request,
	op func(context.Context, int) (service.JobSnapshot, error), status int) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}
	snap, err := op(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, status, snap)
}

func (c *CampaignController) ListJobs(w http.ResponseWriter, r *http.Request) {
	response.OK(w, c.Engine.Snapshots())
}

func (c *CampaignController) AutomationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.CampaignService.AutomationStats(r.Context(), time.Now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, stats)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 1 {
		response.BadRequest(w, "invalid campaign id")
		return 0, false
	}
	return id, true
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case appErrors.IsCampaignNotFound(err), errors.Is(err, appErrors.ErrCreatorNotFound):
		response.NotFound(w, err.Error())
	case errors.Is(err, appErrors.ErrJobAlreadyRunning),
		errors.Is(err, appErrors.ErrJobNotRunning),
		errors.Is(err, appErrors.ErrCampaignNotStartable),
		errors.Is(err, appErrors.ErrInvalidStatusTransition):
		response.Conflict(w, err.Error())
	case errors.Is(err, appErrors.ErrEmptyTemplate):
		response.BadRequest(w, err.Error())
	case errors.Is(err, appErrors.ErrEngineStopped):
		response.ServiceUnavailable(w, err.Error())
	default:
		log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		response.InternalError(w)
	}
}
