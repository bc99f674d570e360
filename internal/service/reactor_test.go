package service_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/unclebandit/creator-outreach/internal/event"
	"github.com/unclebandit/creator-outreach/internal/model"
	"github.com/unclebandit/creator-outreach/internal/service"
	"github.com/unclebandit/creator-outreach/internal/webhook"
)

type reactorFixture struct {
	store   *memStore
	events  *recorder
	reactor *service.Reactor
}

func newReactorFixture(t *testing.T, classifier service.SentimentClassifier) *reactorFixture {
	t.Helper()
	store := newMemStore()
	ctx := context.Background()
	if err := store.creatorRepo().Create(ctx, &model.Creator{ExternalID: "tt-1", Username: "ana"}); err != nil {
		t.Fatal(err)
	}
	inv := &model.Invitation{
		CampaignID: 1,
		CreatorID:  1,
		Status:     model.InvitationStatusSent,
		MessageID:  sql.NullString{String: "msg-1", Valid: true},
	}
	if err := store.invitationRepo().Create(ctx, inv); err != nil {
		t.Fatal(err)
	}

	events := &recorder{}
	return &reactorFixture{
		store:  store,
		events: events,
		reactor: &service.Reactor{
			Invitations: store.invitationRepo(),
			Creators:    store.creatorRepo(),
			Classifier:  classifier,
			Events:      events,
		},
	}
}

func (f *reactorFixture) invitation() model.Invitation {
	return f.store.invitationsFor(1)[0]
}

func TestReactorViewedIsIdempotent(t *testing.T) {
	f := newReactorFixture(t, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		if err := f.reactor.Handle(ctx, webhook.MessageViewed{MessageID: "msg-1", At: at}); err != nil {
			t.Fatalf("handle: %v", err)
		}
	}

	inv := f.invitation()
	if inv.Status != model.InvitationStatusViewed || inv.ViewedAt == nil || !inv.ViewedAt.Equal(at) {
		t.Errorf("unexpected invitation %+v", inv)
	}
	if n := f.events.count(event.TypeInvitationViewed); n != 1 {
		t.Errorf("expected one viewed event, got %d", n)
	}
}

func TestReactorReplyDecides(t *testing.T) {
	tests := []struct {
		name       string
		classifier service.SentimentClassifier
		reply      string
		want       model.InvitationStatus
		eventType  string
	}{
		{name: "positive", reply: "Yes, sounds great!", want: model.InvitationStatusAccepted, eventType: event.TypeInvitationAccepted},
		{name: "negative", reply: "Sorry, not interested.", want: model.InvitationStatusDeclined, eventType: event.TypeInvitationDeclined},
		{name: "neutral", reply: "What is the budget?", want: model.InvitationStatusResponded},
		{name: "hedged refusal", reply: "not really interested, sorry", want: model.InvitationStatusDeclined, eventType: event.TypeInvitationDeclined},
		{name: "enthusiastic negator", reply: "Yes! Can't wait to start", want: model.InvitationStatusAccepted, eventType: event.TypeInvitationAccepted},
		{name: "undecided", reply: "I'm not sure yet", want: model.InvitationStatusResponded},
		{name: "classifier outage falls back to keywords", classifier: service.FallbackClassifier{Primary: failingClassifier{}},
			reply: "Count me in", want: model.InvitationStatusAccepted, eventType: event.TypeInvitationAccepted},
		{name: "classifier outage without fallback", classifier: failingClassifier{},
			reply: "Count me in", want: model.InvitationStatusResponded},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newReactorFixture(t, tc.classifier)
			ev := webhook.MessageReplied{MessageID: "msg-1", ReplyText: tc.reply, At: time.Now()}
			if err := f.reactor.Handle(context.Background(), ev); err != nil {
				t.Fatalf("handle: %v", err)
			}

			inv := f.invitation()
			if inv.Status != tc.want {
				t.Errorf("expected %s, got %s", tc.want, inv.Status)
			}
			if inv.Response.String != tc.reply || inv.RespondedAt == nil {
				t.Errorf("expected reply stored, got %+v", inv)
			}
			if tc.eventType != "" && f.events.count(tc.eventType) != 1 {
				t.Errorf("expected one %s event", tc.eventType)
			}
		})
	}
}

func TestReactorReplayedReplyIsNoop(t *testing.T) {
	f := newReactorFixture(t, nil)
	ctx := context.Background()
	ev := webhook.MessageReplied{MessageID: "msg-1", ReplyText: "Absolutely, let's do it", At: time.Now()}

	_ = f.reactor.Handle(ctx, ev)
	if err := f.reactor.Handle(ctx, ev); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if n := f.events.count(event.TypeInvitationAccepted); n != 1 {
		t.Errorf("expected one accepted event, got %d", n)
	}

	// a later view never moves the invitation backwards
	_ = f.reactor.Handle(ctx, webhook.MessageViewed{MessageID: "msg-1", At: time.Now()})
	if got := f.invitation().Status; got != model.InvitationStatusAccepted {
		t.Errorf("expected accepted to stick, got %s", got)
	}
}

func TestReactorIgnoresUnknowns(t *testing.T) {
	f := newReactorFixture(t, nil)
	ctx := context.Background()

	cases := []webhook.Event{
		webhook.MessageViewed{MessageID: "nope", At: time.Now()},
		webhook.MessageReplied{MessageID: "nope", ReplyText: "yes", At: time.Now()},
		webhook.ProfileUpdated{ExternalID: "tt-404"},
		webhook.Unknown{EventType: "creator.deleted"},
	}
	for _, ev := range cases {
		if err := f.reactor.Handle(ctx, ev); err != nil {
			t.Errorf("%s: expected nil error, got %v", ev.Kind(), err)
		}
	}
	if len(f.events.events) != 0 {
		t.Errorf("expected no events, got %d", len(f.events.events))
	}
}

func TestReactorProfileUpdate(t *testing.T) {
	f := newReactorFixture(t, nil)
	followers := 52000
	rate := 0.061
	ev := webhook.ProfileUpdated{
		ExternalID: "tt-1",
		Metrics:    model.CreatorMetrics{FollowerCount: &followers, EngagementRate: &rate},
	}
	if err := f.reactor.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}

	c, err := f.store.creatorRepo().GetByExternalID(context.Background(), "tt-1")
	if err != nil {
		t.Fatal(err)
	}
	if c.FollowerCount != 52000 || c.EngagementRate == nil || *c.EngagementRate != 0.061 {
		t.Errorf("metrics not applied: %+v", c)
	}
	if c.Username != "ana" {
		t.Errorf("untouched fields must survive, got username %q", c.Username)
	}
}
