package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
backend:
  base_url: http://localhost:8080
  timeout: 3s
logging:
  level: debug
  console: true
poll:
  enabled: true
  schedule: 5s
  limit: 50
delivery:
  debounce_window: 1s
  display_lifetime: 8s
channels:
  sound:
    mute_probe: true
  toast:
    max_visible: 3
storage:
  driver: file
  path: /tmp/chime
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:8080" {
		t.Fatalf("base_url = %q", cfg.Backend.BaseURL)
	}
	if !cfg.Poll.Enabled || cfg.Poll.Limit != 50 {
		t.Fatalf("poll config = %+v", cfg.Poll)
	}
	if cfg.Channels.Toast.MaxVisible != 3 {
		t.Fatalf("toast config = %+v", cfg.Channels.Toast)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage config = %+v", cfg.Storage)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestParseJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"backend": {"base_url": "http://localhost:8080"},
		"logging": {"level": "info", "console": true},
		"poll": {"enabled": true},
		"delivery": {},
		"channels": {"sound": {}, "native": {}, "toast": {}, "badge": {}}
	}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.yaml", `
backend:
  base_url: http://localhost:8080
  typo_field: true
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	tests := []string{
		`{"backend": {"base_url": "x"}}{"extra": 1}`,
		`{"backend": {"base_url": "x"}} true`,
		`{"backend": {"base_url": "x"}}{}`,
	}
	for _, content := range tests {
		path := writeFile(t, "config.json", content)
		_, err := NewManager(path).Parse()
		if err == nil || !strings.Contains(err.Error(), "trailing") {
			t.Fatalf("trailing data accepted for %q: %v", content, err)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"  ", 0, false},
		{"1s", time.Second, false},
		{"300ms", 300 * time.Millisecond, false},
		{"-1s", 0, true},
		{"oops", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseDurationField("x", tc.raw)
		if tc.wantErr != (err != nil) {
			t.Fatalf("ParseDurationField(%q) err = %v", tc.raw, err)
		}
		if got != tc.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tc.raw, got, tc.want)
		}
	}

	if d, err := ParseDurationOrDefault("x", "", 8*time.Second); err != nil || d != 8*time.Second {
		t.Fatalf("ParseDurationOrDefault empty = %v, %v", d, err)
	}
	if d, err := ParseDurationOrDefault("x", "2s", 8*time.Second); err != nil || d != 2*time.Second {
		t.Fatalf("ParseDurationOrDefault explicit = %v, %v", d, err)
	}
}
