package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"

	"github.com/upmon/upmon/internal/monitor"
)

func openedEvent() monitor.AlertEvent {
	kind := monitor.ErrKindTimeout
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return monitor.AlertEvent{
		Kind:           monitor.TransitionOpened,
		TargetID:       7,
		TargetName:     "api gateway",
		URL:            "https://gw.example.com/health",
		Status:         monitor.StatusDown,
		PreviousStatus: monitor.StatusUp,
		IncidentID:     31,
		StartedAt:      at,
		Error:          &kind,
		CheckedAt:      at,
	}
}

func TestFormatMessageOpened(t *testing.T) {
	got := FormatMessage(openedEvent())
	want := "Site: api gateway\n" +
		"URL: https://gw.example.com/health\n" +
		"Status: DOWN (prev: UP)\n" +
		"Incident: 31\n" +
		"Window: 2026-03-01T08:00:00Z → ?\n" +
		"Error: timeout\n" +
		"Checked at: 2026-03-01T08:00:00Z"
	if got != want {
		t.Fatalf("message mismatch:\n got: %q\nwant: %q", got, want)
	}
}

func TestFormatMessageResolved(t *testing.T) {
	ev := openedEvent()
	ev.Kind = monitor.TransitionResolved
	ev.Status = monitor.StatusUp
	ev.PreviousStatus = monitor.StatusDown
	end := time.Date(2026, 3, 1, 8, 5, 0, 0, time.UTC)
	ev.EndedAt = &end
	ev.Error = nil
	ev.CheckedAt = end

	got := FormatMessage(ev)
	if !strings.Contains(got, "Status: UP (prev: DOWN)") {
		t.Fatalf("status line wrong: %q", got)
	}
	if !strings.Contains(got, "Window: 2026-03-01T08:00:00Z → 2026-03-01T08:05:00Z") {
		t.Fatalf("window line wrong: %q", got)
	}
	if strings.Contains(got, "Error:") {
		t.Fatalf("resolved message carries an error line: %q", got)
	}
}

func TestTelegramSendPayload(t *testing.T) {
	var (
		gotPath string
		gotBody sendMessageRequest
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	sender := NewTelegramSender("token123", "-100999", "HTML")
	sender.baseURL = ts.URL

	if err := sender.Send(context.Background(), openedEvent(), nil); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotPath != "/bottoken123/sendMessage" {
		t.Fatalf("path = %q, want /bottoken123/sendMessage", gotPath)
	}
	if gotBody.ChatID != "-100999" || gotBody.ParseMode != "HTML" || !gotBody.DisableWebPagePreview {
		t.Fatalf("payload = %+v", gotBody)
	}
	if !strings.HasPrefix(gotBody.Text, "Site: api gateway\n") {
		t.Fatalf("text = %q", gotBody.Text)
	}
}

func TestTelegramChannelConfigOverridesDefaults(t *testing.T) {
	var gotBody sendMessageRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	sender := NewTelegramSender("tok", "-1", "HTML")
	sender.baseURL = ts.URL

	cfg := map[string]string{"chat_id": "42", "parse_mode": "MarkdownV2"}
	if err := sender.Send(context.Background(), openedEvent(), cfg); err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotBody.ChatID != "42" || gotBody.ParseMode != "MarkdownV2" {
		t.Fatalf("overrides not applied: %+v", gotBody)
	}
}

func TestTelegramAPIErrorSurfaces(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"ok":false,"description":"bad gateway"}`))
	}))
	defer ts.Close()

	sender := NewTelegramSender("tok", "1", "HTML")
	sender.baseURL = ts.URL

	err := sender.Send(context.Background(), openedEvent(), nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want telegram api status 502", err)
	}
}

func TestTelegramMissingConfigFailsWithoutRequest(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer ts.Close()

	sender := NewTelegramSender("", "", "HTML")
	sender.baseURL = ts.URL

	if err := sender.Send(context.Background(), openedEvent(), nil); err == nil {
		t.Fatal("expected configuration error")
	}
	if hits != 0 {
		t.Fatalf("server hit %d times despite missing config", hits)
	}
}

func TestTelegramBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	hits := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	sender := NewTelegramSender("tok", "1", "HTML")
	sender.baseURL = ts.URL

	// Default gobreaker settings trip after more than five consecutive
	// failures.
	for i := 0; i < 6; i++ {
		if err := sender.Send(context.Background(), openedEvent(), nil); err == nil {
			t.Fatalf("send %d: expected error", i)
		}
	}

	err := sender.Send(context.Background(), openedEvent(), nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want ErrOpenState", err)
	}
	if hits != 6 {
		t.Fatalf("server hits = %d, want 6 (open breaker must fail fast)", hits)
	}
}
