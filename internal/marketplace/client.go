// Package marketplace talks to the creator marketplace API: creator search,
// GMV lookups and invitation delivery.
package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/model"
)

const (
	// GMVWindow is how far back revenue lookups reach.
	GMVWindow = 90 * 24 * time.Hour
	// InvitationDeadline is the response window offered to invited creators.
	InvitationDeadline = 7 * 24 * time.Hour
	// minEngagementRate is sent when a campaign sets no engagement floor.
	minEngagementRate = 0.02
)

// Client is an HTTP client for the marketplace. It is safe for concurrent use.
type Client struct {
	baseURL      string
	accessToken  string
	advertiserID string
	client       *http.Client
	now          func() time.Time
}

func NewClient(baseURL, accessToken, advertiserID string, client *http.Client) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		accessToken:  accessToken,
		advertiserID: advertiserID,
		client:       client,
		now:          time.Now,
	}
}

// envelope is the marketplace's response wrapper. Code 0 means success.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-zero code or unexpected HTTP status from the marketplace.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("marketplace error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("marketplace returned HTTP %d: %s", e.Status, e.Message)
}

type rangeFilter struct {
	Min any `json:"min,omitempty"`
	Max any `json:"max,omitempty"`
}

type searchFilters struct {
	ContentCategories []string     `json:"content_categories"`
	Countries         []string     `json:"countries"`
	FollowerCount     *rangeFilter `json:"follower_count,omitempty"`
	EngagementRate    rangeFilter  `json:"engagement_rate"`
	IsVerified        *bool        `json:"is_verified,omitempty"`
	Languages         []string     `json:"languages"`
}

type searchRequest struct {
	AdvertiserID string        `json:"advertiser_id"`
	Filters      searchFilters `json:"filters"`
	SortBy       string        `json:"sort_by"`
	SortOrder    string        `json:"sort_order"`
	PageSize     int           `json:"page_size"`
}

type creatorRecord struct {
	CreatorID         string   `json:"creator_id"`
	Username          string   `json:"username"`
	DisplayName       string   `json:"display_name"`
	FollowerCount     int      `json:"follower_count"`
	BioDescription    string   `json:"bio_description"`
	IsVerified        bool     `json:"is_verified"`
	EngagementRate    *float64 `json:"engagement_rate"`
	AvgVideoViews     *int     `json:"avg_video_views"`
	ContentCategories []string `json:"content_categories"`
	CountryCode       string   `json:"country_code"`
}

func (r creatorRecord) toModel() *model.Creator {
	return &model.Creator{
		ExternalID:     r.CreatorID,
		Username:       r.Username,
		DisplayName:    r.DisplayName,
		FollowerCount:  r.FollowerCount,
		EngagementRate: r.EngagementRate,
		AvgViews:       r.AvgVideoViews,
		Categories:     r.ContentCategories,
		Location:       r.CountryCode,
		Bio:            r.BioDescription,
		IsVerified:     r.IsVerified,
	}
}

// Find searches the marketplace for creators matching criteria, best engagement first.
func (c *Client) Find(ctx context.Context, criteria model.SearchCriteria) ([]*model.Creator, error) {
	minRate := minEngagementRate
	if criteria.MinEngagement != nil {
		minRate = *criteria.MinEngagement
	}
	filters := searchFilters{
		ContentCategories: nonNil(criteria.Categories),
		Countries:         nonNil(criteria.Locations),
		EngagementRate:    rangeFilter{Min: minRate},
		IsVerified:        criteria.Verified,
		Languages:         []string{"en"},
	}
	if criteria.MinFollowers != nil || criteria.MaxFollowers != nil {
		filters.FollowerCount = &rangeFilter{}
		if criteria.MinFollowers != nil {
			filters.FollowerCount.Min = *criteria.MinFollowers
		}
		if criteria.MaxFollowers != nil {
			filters.FollowerCount.Max = *criteria.MaxFollowers
		}
	}

	var data struct {
		Creators []creatorRecord `json:"creators"`
	}
	err := c.post(ctx, "/creator/search/", searchRequest{
		AdvertiserID: c.advertiserID,
		Filters:      filters,
		SortBy:       "engagement_rate",
		SortOrder:    "desc",
		PageSize:     criteria.Limit,
	}, &data)
	if err != nil {
		return nil, fmt.Errorf("creator search: %w", err)
	}

	creators := make([]*model.Creator, 0, len(data.Creators))
	for _, r := range data.Creators {
		if r.CreatorID == "" {
			continue
		}
		creators = append(creators, r.toModel())
	}
	log.Debug().Int("found", len(creators)).Strs("categories", criteria.Categories).Msg("creator search completed")
	return creators, nil
}

// LookupRevenue returns the creator's GMV over the last GMVWindow.
func (c *Client) LookupRevenue(ctx context.Context, externalID string) (decimal.Decimal, error) {
	end := c.now().UTC()
	req := map[string]any{
		"advertiser_id": c.advertiserID,
		"creator_id":    externalID,
		"start_date":    end.Add(-GMVWindow).Format(time.DateOnly),
		"end_date":      end.Format(time.DateOnly),
	}
	var data struct {
		GMV decimal.Decimal `json:"gmv"`
	}
	if err := c.post(ctx, "/creator/gmv/", req, &data); err != nil {
		return decimal.Zero, fmt.Errorf("gmv lookup for %s: %w", externalID, err)
	}
	return data.GMV, nil
}

type invitationContent struct {
	Message           string `json:"message"`
	CollaborationType string `json:"collaboration_type"`
	PaymentTerms      string `json:"payment_terms"`
	Deadline          string `json:"deadline"`
}

type invitationRequest struct {
	AdvertiserID string            `json:"advertiser_id"`
	CreatorID    string            `json:"creator_id"`
	Content      invitationContent `json:"invitation_content"`
}

// Deliver sends an invitation and returns the marketplace message id. A rejection by the
// marketplace is reported as *appErrors.TransportError.
func (c *Client) Deliver(ctx context.Context, externalID, text string) (string, error) {
	var data struct {
		InvitationID string `json:"invitation_id"`
	}
	err := c.post(ctx, "/invitation/send/", invitationRequest{
		AdvertiserID: c.advertiserID,
		CreatorID:    externalID,
		Content: invitationContent{
			Message:           text,
			CollaborationType: "affiliate",
			PaymentTerms:      "commission_based",
			Deadline:          c.now().Add(InvitationDeadline).UTC().Format(time.RFC3339),
		},
	}, &data)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return "", &appErrors.TransportError{Code: apiErr.Code, Message: apiErr.Message}
		}
		return "", err
	}
	if data.InvitationID == "" {
		return "", &appErrors.TransportError{Message: "response carried no invitation id"}
	}
	return data.InvitationID, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Access-Token", c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return &APIError{Status: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", path, err)
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
