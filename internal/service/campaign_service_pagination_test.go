package service_test

import (
	"context"
	"testing"

	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/service"
)

func TestPagination(t *testing.T) {
	store := newMemStore()
	for i := 1; i <= 5; i++ {
		store.campaigns[i] = &model.Campaign{ID: i, Name: "C", Status: model.CampaignStatusDraft}
	}
	svc := &service.CampaignService{CampaignRepo: store.campaignRepo()}
	ctx := context.Background()

	pageSize := 2
	page1, pagination1, err := svc.ListCampaigns(ctx, 1, pageSize, "")
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	page2, _, _ := svc.ListCampaigns(ctx, 2, pageSize, "")

	expectedTotal := 5
	if pagination1["total_count"] != expectedTotal {
		t.Errorf("expected total_count %d, got %d", expectedTotal, pagination1["total_count"])
	}
	if pagination1["total_pages"] != 3 {
		t.Errorf("expected 3 pages, got %d", pagination1["total_pages"])
	}

	if len(page1) != 2 || len(page2) != 2 {
		t.Fatalf("expected full pages, got %d and %d", len(page1), len(page2))
	}

	// Check descending order
	if page1[0].ID <= page1[1].ID {
		t.Errorf("expected descending order in page 1")
	}
	if page2[0].ID <= page2[1].ID {
		t.Errorf("expected descending order in page 2")
	}

	if page1[1].ID == page2[0].ID {
		t.Errorf("duplicate entry between pages: %v", page1[1].ID)
	}

	page3, pagination3, _ := svc.ListCampaigns(ctx, 3, pageSize, "")
	if len(page3) != 1 {
		t.Errorf("expected last page to have 1 item, got %d", len(page3))
	}
	if pagination3["total_count"] != expectedTotal {
		t.Errorf("expected total_count %d, got %d", expectedTotal, pagination3["total_count"])
	}
}

func TestPaginationClampsPageSize(t *testing.T) {
	svc := &service.CampaignService{CampaignRepo: newMemStore().campaignRepo()}

	_, pagination, err := svc.ListCampaigns(context.Background(), 0, 500, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pagination["page"] != 1 || pagination["page_size"] != 100 {
		t.Errorf("expected page=1 page_size=100, got %v", pagination)
	}
}

func TestPaginationFiltersByStatus(t *testing.T) {
	store := newMemStore(
		&model.Campaign{ID: 1, Status: model.CampaignStatusActive},
		&model.Campaign{ID: 2, Status: model.CampaignStatusDraft},
		&model.Campaign{ID: 3, Status: model.CampaignStatusActive},
	)
	svc := &service.CampaignService{CampaignRepo: store.campaignRepo()}

	campaigns, pagination, err := svc.ListCampaigns(context.Background(), 1, 20, string(model.CampaignStatusActive))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if pagination["total_count"] != 2 || len(campaigns) != 2 {
		t.Fatalf("expected 2 active campaigns, got %d (total %d)", len(campaigns), pagination["total_count"])
	}
	for _, c := range campaigns {
		if c.Status != model.CampaignStatusActive {
			t.Errorf("unexpected status %s in filtered list", c.Status)
		}
	}
}
