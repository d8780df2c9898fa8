// Package notify holds the delivery core: the notification record model,
// the dedup/debounce admission gate, and the channel fan-out dispatcher.
package notify

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category classifies a notification and selects its sound cue and urgency.
type Category string

const (
	CategoryMessage Category = "message"
	CategoryAlert   Category = "alert"
	CategorySuccess Category = "success"
	CategoryError   Category = "error"
)

// ErrMalformed marks records that can never be dispatched (no identity or no
// title). They are dropped with a log entry, never surfaced.
var ErrMalformed = errors.New("malformed notification record")

// Record is a server-originated notification. Immutable once received.
//
// ID uniquely identifies a notification across its entire lifetime;
// re-delivery of the same ID is idempotent from the dispatcher's point of view.
type Record struct {
	ID        string
	Title     string
	Message   string
	Category  Category
	CreatedAt time.Time
	ActionURL string
	Read      bool
}

func (r Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing id", ErrMalformed)
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: missing title (id=%s)", ErrMalformed, r.ID)
	}
	return nil
}

// CategoryFrom derives a Category from the server's type/severity pair.
// Severity wins over type; anything unrecognized falls back to "message".
func CategoryFrom(typ, severity string) Category {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "error", "critical", "fatal":
		return CategoryError
	case "warning", "alert", "high":
		return CategoryAlert
	case "success", "ok":
		return CategorySuccess
	}
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "alert", "warning":
		return CategoryAlert
	case "success":
		return CategorySuccess
	case "error":
		return CategoryError
	default:
		return CategoryMessage
	}
}

// Settings are the two user channel preferences synchronized with the backend.
// Unknown means enabled: only an explicit false disables a channel.
type Settings struct {
	SoundEnabled         bool
	NotificationsEnabled bool
}

// DefaultSettings is what a user gets before the backend has said anything.
func DefaultSettings() Settings {
	return Settings{SoundEnabled: true, NotificationsEnabled: true}
}

// PermissionState mirrors the platform notification permission exactly.
// unrequested -> granted | denied; both non-unrequested states are terminal
// for the session.
type PermissionState string

const (
	PermissionUnrequested PermissionState = "unrequested"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
)

// Activator is invoked when the user activates a native notification or a
// toast: bring the application to the foreground and, if the record carries
// an action URL, navigate to it. Activation never touches the active set.
type Activator interface {
	Activate(rec Record)
}
