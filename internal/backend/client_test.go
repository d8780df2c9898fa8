package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chime/internal/notify"
	"chime/pkg/logx"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL, AuthToken: "tok"}, logx.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}, logx.Nop()); err == nil {
		t.Fatalf("expected error for empty base url")
	}
}

func TestRecentNotifications(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/notifications" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "10" {
			t.Errorf("limit = %q, want 10", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header = %q", got)
		}
		io.WriteString(w, `{
			"notifications": [
				{"id": 42, "title": "Deploy finished", "type": "success", "created_at": "2026-08-01T12:00:00Z"},
				{"id": "abc", "title": "Disk pressure", "type": "message", "severity": "critical", "action_url": "https://x/alerts/1"}
			]
		}`)
	})

	recs, err := c.RecentNotifications(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentNotifications: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].ID != "42" || recs[0].Category != notify.CategorySuccess {
		t.Fatalf("numeric-id record mismatch: %+v", recs[0])
	}
	if recs[0].CreatedAt.IsZero() {
		t.Fatalf("created_at not parsed")
	}
	if recs[1].ID != "abc" || recs[1].Category != notify.CategoryError {
		t.Fatalf("severity mapping mismatch: %+v", recs[1])
	}
	if recs[1].ActionURL != "https://x/alerts/1" {
		t.Fatalf("action_url mismatch: %+v", recs[1])
	}
}

func TestRecentNotificationsBadStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.RecentNotifications(context.Background(), 5)
	if !errors.Is(err, ErrBadStatus) {
		t.Fatalf("error = %v, want ErrBadStatus", err)
	}
}

func TestPreferencesAbsentVsExplicit(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"sound_enabled": false}`)
	})
	p, err := c.Preferences(context.Background())
	if err != nil {
		t.Fatalf("Preferences: %v", err)
	}
	if p.SoundEnabled == nil || *p.SoundEnabled {
		t.Fatalf("explicit false lost: %+v", p)
	}
	if p.NotificationsEnabled != nil {
		t.Fatalf("absent key decoded as present")
	}
}

func TestSavePreference(t *testing.T) {
	var got map[string]bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/preferences" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	})

	if err := c.SavePreference(context.Background(), "sound_enabled", false); err != nil {
		t.Fatalf("SavePreference: %v", err)
	}
	if v, ok := got["sound_enabled"]; !ok || v {
		t.Fatalf("payload = %v", got)
	}
}

func TestFlexID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"n-1"`, "n-1"},
		{`7`, "7"},
		{`7.0`, "7.0"},
	}
	for _, tc := range tests {
		var f flexID
		if err := json.Unmarshal([]byte(tc.in), &f); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.in, err)
		}
		if string(f) != tc.want {
			t.Fatalf("flexID(%s) = %q, want %q", tc.in, f, tc.want)
		}
	}
}
