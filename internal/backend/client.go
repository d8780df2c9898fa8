// Package backend is the HTTP client for the notification backend: the
// discovery endpoint polled for unseen notifications and the preference
// endpoints the settings are synchronized with.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"chime/internal/notify"
	logx "chime/pkg/logx"
)

var ErrBadStatus = errors.New("backend: unexpected status")

type Config struct {
	BaseURL   string
	Timeout   time.Duration // per-request bound; default 5s
	AuthToken string
}

type Client struct {
	base  string
	token string
	http  *http.Client
	log   logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend: base_url is required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("backend: invalid base_url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		base:  base,
		token: cfg.AuthToken,
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

// wireRecord is the backend's notification shape. The id is accepted as
// either a JSON string or a number.
type wireRecord struct {
	ID        flexID `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Type      string `json:"type"`
	Severity  string `json:"severity"`
	CreatedAt string `json:"created_at"`
	ActionURL string `json:"action_url"`
	IsRead    bool   `json:"is_read"`
}

type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

func (w wireRecord) record() notify.Record {
	rec := notify.Record{
		ID:        string(w.ID),
		Title:     w.Title,
		Message:   w.Message,
		Category:  notify.CategoryFrom(w.Type, w.Severity),
		ActionURL: w.ActionURL,
		Read:      w.IsRead,
	}
	if t, err := time.Parse(time.RFC3339, w.CreatedAt); err == nil {
		rec.CreatedAt = t
	}
	return rec
}

// RecentNotifications fetches up to limit unseen notifications.
func (c *Client) RecentNotifications(ctx context.Context, limit int) ([]notify.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	u := c.base + "/notifications?limit=" + strconv.Itoa(limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("backend: list notifications: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w %d for GET /notifications", ErrBadStatus, resp.StatusCode)
	}

	var body struct {
		Notifications []wireRecord `json:"notifications"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("backend: decode notifications: %w", err)
	}

	out := make([]notify.Record, 0, len(body.Notifications))
	for _, w := range body.Notifications {
		out = append(out, w.record())
	}
	return out, nil
}

// PreferencePayload is the remote preference shape. Pointers distinguish an
// absent key (use default) from an explicit false (disabled).
type PreferencePayload struct {
	SoundEnabled         *bool `json:"sound_enabled"`
	NotificationsEnabled *bool `json:"notifications_enabled"`
}

// Preferences fetches the remote channel preferences.
func (c *Client) Preferences(ctx context.Context) (PreferencePayload, error) {
	var payload PreferencePayload

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/preferences", nil)
	if err != nil {
		return payload, err
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return payload, fmt.Errorf("backend: get preferences: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return payload, fmt.Errorf("%w %d for GET /preferences", ErrBadStatus, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return payload, fmt.Errorf("backend: decode preferences: %w", err)
	}
	return payload, nil
}

// SavePreference persists one preference key. No strict response contract
// beyond a 2xx success indicator.
func (c *Client) SavePreference(ctx context.Context, key string, value bool) error {
	b, err := json.Marshal(map[string]bool{key: value})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/preferences", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: save preference: %w", err)
	}
	defer drain(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w %d for POST /preferences", ErrBadStatus, resp.StatusCode)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// drain reads the remainder so the connection can be reused.
func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1<<16))
	_ = rc.Close()
}
