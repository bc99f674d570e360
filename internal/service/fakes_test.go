package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	appErrors "github.com/unclebandit/creator-outreach/internal/errors"
	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/model"
)

// memStore is an in-memory stand-in for the Postgres repositories. It enforces the
// one-open-invitation-per-creator index and the forward-only status updates.
type memStore struct {
	mu          sync.Mutex
	campaigns   map[int]*model.Campaign
	creators    map[int]*model.Creator
	byExternal  map[string]int
	invitations []*model.Invitation
}

func newMemStore(campaigns ...*model.Campaign) *memStore {
	s := &memStore{
		campaigns:  make(map[int]*model.Campaign),
		creators:   make(map[int]*model.Creator),
		byExternal: make(map[string]int),
	}
	for _, c := range campaigns {
		s.campaigns[c.ID] = c
	}
	return s
}

func (s *memStore) campaignRepo() *memCampaigns     { return &memCampaigns{s} }
func (s *memStore) creatorRepo() *memCreators       { return &memCreators{s} }
func (s *memStore) invitationRepo() *memInvitations { return &memInvitations{s} }

func (s *memStore) campaign(id int) model.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.campaigns[id]
}

func (s *memStore) invitationsFor(campaignID int) []model.Invitation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Invitation
	for _, inv := range s.invitations {
		if inv.CampaignID == campaignID {
			out = append(out, *inv)
		}
	}
	return out
}

type memCampaigns struct{ *memStore }

func (r *memCampaigns) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = len(r.campaigns) + 1
	c.CreatedAt = time.Now()
	r.campaigns[c.ID] = c
	return nil
}

func (r *memCampaigns) GetByID(_ context.Context, id int) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	cp := *c
	return &cp, nil
}

func (r *memCampaigns) ListCampaigns(_ context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var filtered []*model.Campaign
	for _, c := range r.campaigns {
		if status != "" && string(c.Status) != status {
			continue
		}
		cp := *c
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].ID > filtered[j].ID })

	total := len(filtered)
	if offset >= total {
		return []*model.Campaign{}, total, nil
	}
	end := min(offset+limit, total)
	return filtered[offset:end], total, nil
}

func (r *memCampaigns) ListByStatus(_ context.Context, status model.CampaignStatus) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.campaigns {
		if c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memCampaigns) UpdateStatus(_ context.Context, id int, status model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Status = status
	return nil
}

func (r *memCampaigns) UpdateSpent(_ context.Context, id int, delta decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return appErrors.NewCampaignNotFound(id)
	}
	c.Spent = c.Spent.Add(delta)
	return nil
}

func (r *memCampaigns) GetCampaignStats(_ context.Context, id int) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := map[string]int{"total": 0}
	for _, inv := range r.invitations {
		if inv.CampaignID == id {
			stats[string(inv.Status)]++
			stats["total"]++
		}
	}
	return stats, nil
}

type memCreators struct{ *memStore }

func (r *memCreators) GetByID(_ context.Context, id int) (*model.Creator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creators[id]
	if !ok {
		return nil, appErrors.ErrCreatorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCreators) GetByExternalID(ctx context.Context, externalID string) (*model.Creator, error) {
	r.mu.Lock()
	id, ok := r.byExternal[externalID]
	r.mu.Unlock()
	if !ok {
		return nil, appErrors.ErrCreatorNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *memCreators) Create(_ context.Context, c *model.Creator) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byExternal[c.ExternalID]; ok {
		c.ID = id
		return nil
	}
	c.ID = len(r.creators) + 1
	r.byExternal[c.ExternalID] = c.ID
	cp := *c
	r.creators[c.ID] = &cp
	return nil
}

func (r *memCreators) UpdateMetrics(_ context.Context, id int, m model.CreatorMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creators[id]
	if !ok {
		return appErrors.ErrCreatorNotFound
	}
	m.Apply(c)
	return nil
}

type memInvitations struct{ *memStore }

func (r *memInvitations) Create(_ context.Context, inv *model.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !inv.IsFailed() {
		for _, existing := range r.invitations {
			if existing.CampaignID == inv.CampaignID && existing.CreatorID == inv.CreatorID && !existing.IsFailed() {
				return fmt.Errorf("%w: pq: duplicate key", appErrors.ErrDuplicateInvitation)
			}
		}
	}
	inv.ID = len(r.invitations) + 1
	inv.CreatedAt = time.Now()
	cp := *inv
	r.invitations = append(r.invitations, &cp)
	return nil
}

func (r *memInvitations) GetByCampaignAndCreator(_ context.Context, campaignID, creatorID int) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.invitations) - 1; i >= 0; i-- {
		inv := r.invitations[i]
		if inv.CampaignID == campaignID && inv.CreatorID == creatorID && !inv.IsFailed() {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, appErrors.ErrInvitationNotFound
}

func (r *memInvitations) GetByMessageID(_ context.Context, messageID string) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.MessageID.Valid && inv.MessageID.String == messageID {
			cp := *inv
			return &cp, nil
		}
	}
	return nil, appErrors.ErrInvitationNotFound
}

func (r *memInvitations) ListByCampaign(_ context.Context, campaignID int) ([]*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Invitation{}
	for _, inv := range r.invitations {
		if inv.CampaignID == campaignID {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memInvitations) CountFailed(_ context.Context, campaignID, creatorID int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.invitations {
		if inv.CampaignID == campaignID && inv.CreatorID == creatorID && inv.IsFailed() {
			n++
		}
	}
	return n, nil
}

func (r *memInvitations) UpdateStatus(_ context.Context, id int, status model.InvitationStatus, extra model.InvitationUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invitations {
		if inv.ID != id {
			continue
		}
		if !model.CanAdvance(inv.Status, status) {
			return false, nil
		}
		inv.Status = status
		at := extra.At
		switch status {
		case model.InvitationStatusViewed:
			inv.ViewedAt = &at
		case model.InvitationStatusResponded:
			inv.RespondedAt = &at
		case model.InvitationStatusAccepted, model.InvitationStatusDeclined:
			inv.DecidedAt = &at
		}
		if extra.Response != nil {
			inv.Response.String, inv.Response.Valid = *extra.Response, true
		}
		return true, nil
	}
	return false, appErrors.ErrInvitationNotFound
}

func (r *memInvitations) AutomationCounts(_ context.Context, since time.Time) (*model.AutomationStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &model.AutomationStats{}
	responded, accepted := 0, 0
	for _, inv := range r.invitations {
		if inv.IsFailed() {
			continue
		}
		stats.TotalInvitesSent++
		if !inv.CreatedAt.Before(since) {
			stats.TodayInvites++
		}
		switch inv.Status {
		case model.InvitationStatusSent, model.InvitationStatusViewed:
			stats.PendingResponses++
		case model.InvitationStatusAccepted:
			accepted++
			responded++
		case model.InvitationStatusResponded, model.InvitationStatusDeclined:
			responded++
		}
	}
	if stats.TotalInvitesSent > 0 {
		stats.ResponseRate = float64(responded) / float64(stats.TotalInvitesSent) * 100
	}
	if responded > 0 {
		stats.AcceptanceRate = float64(accepted) / float64(responded) * 100
	}
	return stats, nil
}

// fakeDirectory always returns the same creators.
type fakeDirectory struct {
	mu         sync.Mutex
	creators   []model.Creator
	revenue    map[string]decimal.Decimal
	revenueErr map[string]error
	findErr    error
	finds      int
}

func newDirectory(n int) *fakeDirectory {
	d := &fakeDirectory{revenue: map[string]decimal.Decimal{}, revenueErr: map[string]error{}}
	for i := 1; i <= n; i++ {
		rate := 0.05
		d.creators = append(d.creators, model.Creator{
			ExternalID:     fmt.Sprintf("tt-%d", i),
			Username:       fmt.Sprintf("creator%d", i),
			FollowerCount:  10000 * i,
			EngagementRate: &rate,
			Categories:     pq.StringArray{"beauty"},
		})
	}
	return d
}

func (d *fakeDirectory) Find(_ context.Context, criteria model.SearchCriteria) ([]*model.Creator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finds++
	if d.findErr != nil {
		return nil, d.findErr
	}
	out := make([]*model.Creator, 0, len(d.creators))
	for _, c := range d.creators {
		if criteria.Limit > 0 && len(out) == criteria.Limit {
			break
		}
		cp := c
		out = append(out, &cp)
	}
	return out, nil
}

func (d *fakeDirectory) LookupRevenue(_ context.Context, externalID string) (decimal.Decimal, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.revenueErr[externalID]; err != nil {
		return decimal.Zero, err
	}
	return d.revenue[externalID], nil
}

// fakeTransport records deliveries and fails the configured creators.
type fakeTransport struct {
	mu         sync.Mutex
	deliveries map[string]int
	fail       map[string]bool
	sent       int
	// hang makes every delivery wait until its context ends.
	hang bool
}

func newTransport() *fakeTransport {
	return &fakeTransport{deliveries: map[string]int{}, fail: map[string]bool{}}
}

func (t *fakeTransport) Deliver(ctx context.Context, externalID, text string) (string, error) {
	t.mu.Lock()
	t.deliveries[externalID]++
	hang := t.hang
	t.mu.Unlock()
	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail[externalID] {
		return "", &appErrors.TransportError{Code: 40001, Message: "creator unreachable"}
	}
	t.sent++
	return fmt.Sprintf("msg-%s-%d", externalID, t.sent), nil
}

func (t *fakeTransport) attempts(externalID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deliveries[externalID]
}

func (t *fakeTransport) total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, v := range t.deliveries {
		n += v
	}
	return n
}

// recorder captures published events.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) Publish(_ context.Context, e event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type() == eventType {
			n++
		}
	}
	return n
}

func (r *recorder) last(eventType string) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type() == eventType {
			return r.events[i]
		}
	}
	return nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, string) (model.Sentiment, error) {
	return "", errors.New("model overloaded")
}

type stubEnhancer struct {
	text string
	err  error
}

func (s stubEnhancer) Enhance(context.Context, string, *model.Creator) (string, error) {
	return s.text, s.err
}

// hangingEnhancer blocks until its context ends and signals every call on entered.
type hangingEnhancer struct {
	entered chan struct{}
}

func (h hangingEnhancer) Enhance(ctx context.Context, _ string, _ *model.Creator) (string, error) {
	select {
	case h.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return "", ctx.Err()
}
