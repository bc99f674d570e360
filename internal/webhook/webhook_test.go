package webhook_test

import (
	"errors"
	"testing"
	"time"

	"github.com/unclebandit/creator-outreach/internal/webhook"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"event_type":"message.viewed","message_id":"m-1"}`)
	good := webhook.Sign("s3cret", body)

	tests := []struct {
		name   string
		secret string
		header string
		body   []byte
		want   bool
	}{
		{name: "valid", secret: "s3cret", header: good, body: body, want: true},
		{name: "upper case hex", secret: "s3cret", header: "SHA256=" + good[len("sha256="):], body: body, want: true},
		{name: "wrong secret", secret: "other", header: good, body: body},
		{name: "tampered body", secret: "s3cret", header: good, body: []byte(`{"event_type":"message.replied"}`)},
		{name: "missing prefix", secret: "s3cret", header: good[len("sha256="):], body: body},
		{name: "empty header", secret: "s3cret", header: "", body: body},
		{name: "no secret configured", secret: "", header: good, body: body},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := webhook.VerifySignature(tc.secret, tc.body, tc.header); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestParseEvents(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	ev, err := webhook.Parse([]byte(`{"event_type":"message.replied","message_id":"m-7","reply_text":"Yes, interested!"}`), now)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	reply, ok := ev.(webhook.MessageReplied)
	if !ok {
		t.Fatalf("expected MessageReplied, got %T", ev)
	}
	if reply.MessageID != "m-7" || reply.ReplyText != "Yes, interested!" || !reply.At.Equal(now) {
		t.Errorf("unexpected reply event: %+v", reply)
	}

	ev, err = webhook.Parse([]byte(`{"event_type":"creator.profile_updated","user_id":"tt-42",
		"updated_fields":{"follower_count":15000,"engagement_rate":0.051,"gmv":"1250.50"}}`), now)
	if err != nil {
		t.Fatalf("parse profile update: %v", err)
	}
	profile, ok := ev.(webhook.ProfileUpdated)
	if !ok {
		t.Fatalf("expected ProfileUpdated, got %T", ev)
	}
	if profile.ExternalID != "tt-42" || profile.Metrics.FollowerCount == nil || *profile.Metrics.FollowerCount != 15000 {
		t.Errorf("unexpected profile event: %+v", profile)
	}
	if profile.Metrics.GMV == nil || profile.Metrics.GMV.String() != "1250.5" {
		t.Errorf("expected gmv 1250.5, got %v", profile.Metrics.GMV)
	}

	ev, err = webhook.Parse([]byte(`{"event_type":"order.created"}`), now)
	if err != nil {
		t.Fatalf("parse unknown: %v", err)
	}
	if ev.Kind() != "order.created" {
		t.Errorf("expected unknown kind order.created, got %s", ev.Kind())
	}
	if _, ok := ev.(webhook.Unknown); !ok {
		t.Errorf("expected Unknown, got %T", ev)
	}
}

func TestParseRejectsIncompletePayloads(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing event type", body: `{"message_id":"m-1"}`, field: "event_type"},
		{name: "viewed without message id", body: `{"event_type":"message.viewed"}`, field: "message_id"},
		{name: "reply without text", body: `{"event_type":"message.replied","message_id":"m-1"}`, field: "reply_text"},
		{name: "profile without user", body: `{"event_type":"creator.profile_updated"}`, field: "user_id"},
		{name: "negative followers", body: `{"event_type":"creator.profile_updated","user_id":"u","updated_fields":{"follower_count":-1}}`, field: "follower_count"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := webhook.Parse([]byte(tc.body), time.Now())
			var verr *webhook.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Errorf("expected %s in fields, got %v", tc.field, verr.Fields)
			}
		})
	}

	if _, err := webhook.Parse([]byte(`{not json`), time.Now()); err == nil {
		t.Error("expected malformed JSON to fail")
	}
}
