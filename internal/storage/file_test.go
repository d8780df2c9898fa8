package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chime/pkg/logx"
)

func openFileStore(t *testing.T, path string) Store {
	t.Helper()
	s, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		s, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil || s != nil {
			t.Fatalf("Open(%q) = %v, %v; want nil, nil", driver, s, err)
		}
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("unknown driver accepted")
	}
}

func TestFileActiveSetRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime")
	ctx := context.Background()
	until := time.Now().Add(time.Hour).Truncate(time.Second)

	s := openFileStore(t, path)
	if err := s.PutActive(ctx, "n1", until); err != nil {
		t.Fatalf("PutActive: %v", err)
	}
	if err := s.PutActive(ctx, "n2", until); err != nil {
		t.Fatalf("PutActive: %v", err)
	}
	if err := s.DeleteActive(ctx, "n2"); err != nil {
		t.Fatalf("DeleteActive: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the journal replays.
	s = openFileStore(t, path)
	got, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("active = %v, want only n1", got)
	}
	if u, ok := got["n1"]; !ok || !u.Equal(until) {
		t.Fatalf("n1 deadline = %v, want %v", u, until)
	}
}

func TestFileExpiredEntriesPruned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime")
	ctx := context.Background()

	s := openFileStore(t, path)
	if err := s.PutActive(ctx, "old", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("PutActive: %v", err)
	}
	_ = s.Close()

	s = openFileStore(t, path)
	got, err := s.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expired entry survived reopen: %v", got)
	}
}

func TestFileSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime")
	ctx := context.Background()

	s := openFileStore(t, path)
	if err := s.PutSetting(ctx, "sound_enabled", false); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	if err := s.PutSetting(ctx, "notifications_enabled", true); err != nil {
		t.Fatalf("PutSetting: %v", err)
	}
	_ = s.Close()

	s = openFileStore(t, path)
	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("GetSettings: %v", err)
	}
	if v, ok := got["sound_enabled"]; !ok || v {
		t.Fatalf("settings = %v", got)
	}
	if v := got["notifications_enabled"]; !v {
		t.Fatalf("settings = %v", got)
	}
}

func TestFileAppendDelivery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chime")
	s := openFileStore(t, path)

	e := DeliveryEntry{
		At:       time.Now(),
		ID:       "n1",
		Category: "alert",
		Title:    "Disk pressure",
		Channels: "sound,toast",
	}
	if err := s.AppendDelivery(context.Background(), e); err != nil {
		t.Fatalf("AppendDelivery: %v", err)
	}
}
