package handler_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/unclebandit/creator-outreach/internal/handler"
	"github.com/unclebandit/creator-outreach/internal/webhook"
)

const secret = "whsec_test"

type memReplay struct {
	mu     sync.Mutex
	seen   map[string]bool
	err    error
	forgot int
}

func (m *memReplay) FirstSeen(_ context.Context, body []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.seen[string(body)] {
		return false, nil
	}
	m.seen[string(body)] = true
	return true, nil
}

func (m *memReplay) Forget(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, string(body))
	m.forgot++
	return nil
}

type recordingReactor struct {
	events []webhook.Event
	err    error
}

func (r *recordingReactor) Handle(_ context.Context, ev webhook.Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func post(h *handler.WebhookHandler, body, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/marketplace", bytes.NewBufferString(body))
	if signature != "" {
		req.Header.Set(webhook.SignatureHeader, signature)
	}
	rr := httptest.NewRecorder()
	h.Receive(rr, req)
	return rr
}

func newHandler(reactor *recordingReactor, replay *memReplay) *handler.WebhookHandler {
	h := &handler.WebhookHandler{
		Secret:  secret,
		Reactor: reactor,
		Now:     func() time.Time { return time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC) },
	}
	if replay != nil {
		h.Replay = replay
	}
	return h
}

func TestReceiveAppliesSignedEvent(t *testing.T) {
	reactor := &recordingReactor{}
	h := newHandler(reactor, &memReplay{seen: map[string]bool{}})

	body := `{"event_type":"message.viewed","message_id":"m-1"}`
	rr := post(h, body, webhook.Sign(secret, []byte(body)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(reactor.events) != 1 {
		t.Fatalf("expected one event, got %d", len(reactor.events))
	}
	if viewed, ok := reactor.events[0].(webhook.MessageViewed); !ok || viewed.MessageID != "m-1" {
		t.Errorf("unexpected event %+v", reactor.events[0])
	}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	body := `{"event_type":"message.viewed","message_id":"m-1"}`

	tests := []struct {
		name      string
		secret    string
		signature string
	}{
		{name: "missing header", secret: secret},
		{name: "wrong secret", secret: secret, signature: webhook.Sign("other", []byte(body))},
		{name: "no secret configured", signature: webhook.Sign("", []byte(body))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reactor := &recordingReactor{}
			h := newHandler(reactor, nil)
			h.Secret = tc.secret
			rr := post(h, body, tc.signature)
			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			if len(reactor.events) != 0 {
				t.Error("unsigned event must not reach the reactor")
			}
		})
	}
}

func TestReceiveDropsReplays(t *testing.T) {
	reactor := &recordingReactor{}
	h := newHandler(reactor, &memReplay{seen: map[string]bool{}})

	body := `{"event_type":"message.replied","message_id":"m-1","reply_text":"yes!"}`
	sig := webhook.Sign(secret, []byte(body))
	post(h, body, sig)
	rr := post(h, body, sig)

	if rr.Code != http.StatusOK || !bytes.Contains(rr.Body.Bytes(), []byte(`"duplicate":true`)) {
		t.Errorf("expected duplicate ack, got %d %s", rr.Code, rr.Body.String())
	}
	if len(reactor.events) != 1 {
		t.Errorf("expected replay to be dropped, reactor saw %d events", len(reactor.events))
	}
}

func TestReceiveReleasesReplayKeyOnFailure(t *testing.T) {
	reactor := &recordingReactor{err: errors.New("db down")}
	replay := &memReplay{seen: map[string]bool{}}
	h := newHandler(reactor, replay)

	body := `{"event_type":"message.viewed","message_id":"m-2"}`
	sig := webhook.Sign(secret, []byte(body))
	if rr := post(h, body, sig); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	if replay.forgot != 1 {
		t.Fatalf("expected the replay key to be released, forgot=%d", replay.forgot)
	}

	reactor.err = nil
	if rr := post(h, body, sig); rr.Code != http.StatusOK {
		t.Errorf("expected retry to be processed, got %d", rr.Code)
	}
	if len(reactor.events) != 2 {
		t.Errorf("expected the retry to reach the reactor, saw %d events", len(reactor.events))
	}
}

func TestReceiveContinuesWhenReplayGuardFails(t *testing.T) {
	reactor := &recordingReactor{}
	h := newHandler(reactor, &memReplay{err: errors.New("redis: connection refused")})

	body := `{"event_type":"message.viewed","message_id":"m-3"}`
	if rr := post(h, body, webhook.Sign(secret, []byte(body))); rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if len(reactor.events) != 1 {
		t.Error("expected the event to be processed without the guard")
	}
}

func TestReceiveRejectsMalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "not json", body: `{"event_type":`, want: http.StatusBadRequest},
		{name: "missing message id", body: `{"event_type":"message.viewed"}`, want: http.StatusUnprocessableEntity},
		{name: "missing reply text", body: `{"event_type":"message.replied","message_id":"m-1"}`, want: http.StatusUnprocessableEntity},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			reactor := &recordingReactor{}
			rr := post(newHandler(reactor, nil), tc.body, webhook.Sign(secret, []byte(tc.body)))
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rr.Code, rr.Body.String())
			}
			if len(reactor.events) != 0 {
				t.Error("invalid payload must not reach the reactor")
			}
		})
	}
}
