package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "chime/pkg/logx"
)

// Store is the minimal persistence API used by the engine.
type Store interface {
	// Active-set journal: id -> eviction deadline.
	PutActive(ctx context.Context, id string, until time.Time) error
	DeleteActive(ctx context.Context, id string) error
	ListActive(ctx context.Context) (map[string]time.Time, error)

	// Settings cache: preference key -> enabled.
	PutSetting(ctx context.Context, key string, enabled bool) error
	GetSettings(ctx context.Context) (map[string]bool, error)

	AppendDelivery(ctx context.Context, e DeliveryEntry) error

	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
