package config

// Config is the daemon's structural configuration.
//
// User channel preferences (sound on/off, notifications on/off) are NOT
// configured here: those live on the backend and are synchronized by the
// preference store. This file only holds wiring: where the backend is, how
// delivery behaves, which local channel facilities to use.
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
type Config struct {
	Backend  BackendConfig  `json:"backend"`
	Logging  LoggingConfig  `json:"logging"`
	Poll     PollConfig     `json:"poll"`
	Delivery DeliveryConfig `json:"delivery"`
	Channels ChannelsConfig `json:"channels"`

	// Storage controls the optional persistence layer (preference cache,
	// active-set journal, delivery history). Omitted means disabled.
	Storage *StorageConfig `json:"storage,omitempty"`
}

type BackendConfig struct {
	BaseURL string `json:"base_url"`

	// Timeout bounds each backend request. Default "5s".
	Timeout string `json:"timeout,omitempty"`

	// AuthToken, when set, is sent as a bearer token. Do not log.
	AuthToken string `json:"auth_token,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// PollConfig controls the discovery loop.
//
// Schedule accepts either a plain duration ("5s"), a prefixed form
// ("interval:5s"), or a cron spec ("@every 5s", "*/1 * * * *").
type PollConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // default "5s"
	Limit    int    `json:"limit,omitempty"`    // default 20
}

// DeliveryConfig controls the dedup/debounce gate.
//
// Defaults (when fields are omitted/zero):
//   - debounce_window: "1s"
//   - display_lifetime: "8s"
//   - eviction_jitter: "300ms"
//   - history_size: 200
type DeliveryConfig struct {
	DebounceWindow  string `json:"debounce_window,omitempty"`
	DisplayLifetime string `json:"display_lifetime,omitempty"`
	EvictionJitter  string `json:"eviction_jitter,omitempty"`
	HistorySize     int    `json:"history_size,omitempty"`

	// PersistActive journals the active set through storage so a restart
	// within the display lifetime does not re-deliver. Requires storage.
	PersistActive bool `json:"persist_active,omitempty"`
}

type ChannelsConfig struct {
	Sound  SoundConfig  `json:"sound"`
	Native NativeConfig `json:"native"`
	Toast  ToastConfig  `json:"toast"`
	Badge  BadgeConfig  `json:"badge"`
}

type SoundConfig struct {
	// Player forces a specific playback command ("paplay", "aplay", ...).
	// Empty means auto-detect.
	Player string `json:"player,omitempty"`

	// MuteProbe enables the best-effort device mute hint.
	MuteProbe bool `json:"mute_probe,omitempty"`
}

type NativeConfig struct {
	AppName string `json:"app_name,omitempty"` // default "chime"
	Icon    string `json:"icon,omitempty"`
}

type ToastConfig struct {
	MaxVisible int    `json:"max_visible,omitempty"` // default 5
	FadeGrace  string `json:"fade_grace,omitempty"`  // default "300ms"
}

type BadgeConfig struct {
	// Path is a file the unread count is written to (for status-bar
	// consumers). Empty disables the file sink; bus events still fire.
	Path string `json:"path,omitempty"`
}

// StorageConfig mirrors storage.Config.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./chime_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}
