// Package prefs synchronizes the two user channel preferences with the
// backend, with a local cached fallback so delivery keeps working when the
// preference endpoint is unreachable.
package prefs

import (
	"context"
	"sync"

	"chime/internal/backend"
	"chime/internal/notify"
	logx "chime/pkg/logx"
)

// Preference keys as the backend names them.
const (
	KeySound         = "sound_enabled"
	KeyNotifications = "notifications_enabled"
)

// Remote is the slice of the backend client the store needs.
type Remote interface {
	Preferences(ctx context.Context) (backend.PreferencePayload, error)
	SavePreference(ctx context.Context, key string, value bool) error
}

// Cache persists the last known settings locally. Satisfied by storage.Store.
type Cache interface {
	PutSetting(ctx context.Context, key string, enabled bool) error
	GetSettings(ctx context.Context) (map[string]bool, error)
}

// Store holds the current settings and mediates load/save against the remote
// endpoint. Failures never propagate to callers: notification delivery must
// still function with the last known (or default) settings.
type Store struct {
	remote Remote
	cache  Cache // optional
	log    logx.Logger

	mu  sync.Mutex
	cur notify.Settings
}

func New(remote Remote, cache Cache, log logx.Logger) *Store {
	s := &Store{
		remote: remote,
		cache:  cache,
		log:    log,
		cur:    notify.DefaultSettings(),
	}
	s.hydrate()
	return s
}

// hydrate applies the local cache before the first remote load. Same
// asymmetric rule as the remote payload: only an explicit false disables.
func (s *Store) hydrate() {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.GetSettings(context.Background())
	if err != nil {
		s.log.Debug("settings cache read failed", logx.Err(err))
		return
	}
	s.mu.Lock()
	if v, ok := cached[KeySound]; ok {
		s.cur.SoundEnabled = v
	}
	if v, ok := cached[KeyNotifications]; ok {
		s.cur.NotificationsEnabled = v
	}
	s.mu.Unlock()
}

// Current returns the settings as last resolved.
func (s *Store) Current() notify.Settings {
	s.mu.Lock()
	cur := s.cur
	s.mu.Unlock()
	return cur
}

// Load fetches remote preferences and resolves them against the current
// settings. A missing key means "use default" (enabled); only an explicit
// false disables. Any failure falls back to the last known settings.
func (s *Store) Load(ctx context.Context) notify.Settings {
	if s.remote == nil {
		return s.Current()
	}
	payload, err := s.remote.Preferences(ctx)
	if err != nil {
		s.log.Warn("preference load failed; using last known settings", logx.Err(err))
		return s.Current()
	}

	resolved := notify.DefaultSettings()
	if payload.SoundEnabled != nil {
		resolved.SoundEnabled = *payload.SoundEnabled
	}
	if payload.NotificationsEnabled != nil {
		resolved.NotificationsEnabled = *payload.NotificationsEnabled
	}

	s.mu.Lock()
	s.cur = resolved
	s.mu.Unlock()

	s.writeCache(KeySound, resolved.SoundEnabled)
	s.writeCache(KeyNotifications, resolved.NotificationsEnabled)
	return resolved
}

// Save applies the new value locally first (optimistic), then persists it to
// the backend best-effort. The returned bool reports remote success for
// callers that want to react (e.g. a retry UI); failures are swallowed.
func (s *Store) Save(ctx context.Context, key string, enabled bool) bool {
	s.mu.Lock()
	switch key {
	case KeySound:
		s.cur.SoundEnabled = enabled
	case KeyNotifications:
		s.cur.NotificationsEnabled = enabled
	default:
		s.mu.Unlock()
		s.log.Warn("unknown preference key", logx.String("key", key))
		return false
	}
	s.mu.Unlock()

	s.writeCache(key, enabled)

	if s.remote == nil {
		return false
	}
	if err := s.remote.SavePreference(ctx, key, enabled); err != nil {
		s.log.Warn("preference save failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return true
}

func (s *Store) writeCache(key string, enabled bool) {
	if s.cache == nil {
		return
	}
	if err := s.cache.PutSetting(context.Background(), key, enabled); err != nil {
		s.log.Debug("settings cache write failed", logx.String("key", key), logx.Err(err))
	}
}
