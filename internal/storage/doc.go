// Package storage is chime's optional persistence layer.
//
// It keeps three kinds of state:
//   - active-set journal: notification id -> eviction deadline, so a restart
//     within the display lifetime does not re-deliver the same record
//   - settings cache: last known channel preferences, used as the local
//     fallback when the backend preference endpoint is unreachable
//   - delivery history: append-only record of dispatched notifications
//
// Two drivers are available: "file" (jsonl journal + snapshot, no cgo, no
// server) and "sqlite" (single database file via modernc.org/sqlite).
// Storage is best-effort everywhere: callers log failures and continue.
package storage
