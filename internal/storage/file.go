package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "chime/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.deliveries.jsonl      (append-only JSON Lines)
//   - <prefix>.active.snapshot.json  (periodic snapshot)
//   - <prefix>.active.journal.jsonl  (append-only journal)
//   - <prefix>.settings.json         (whole-file rewrite)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	deliveryFile *os.File

	activeSnapshotPath string
	activeJournalFile  *os.File
	active             map[string]int64 // unix milli

	settingsPath string
	settings     map[string]bool

	activeWrites int
}

type activeRecord struct {
	ID    string `json:"id"`
	Until int64  `json:"until"` // unix milli; 0 deletes
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	deliveryPath := prefix + ".deliveries.jsonl"
	snapPath := prefix + ".active.snapshot.json"
	journalPath := prefix + ".active.journal.jsonl"
	settingsPath := prefix + ".settings.json"

	df, err := os.OpenFile(deliveryPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	// Load active set from snapshot + journal.
	active := map[string]int64{}
	_ = loadActiveSnapshot(snapPath, active)
	_ = replayActiveJournal(journalPath, active)
	pruneExpiredActive(active)

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = df.Close()
		return nil, err
	}

	settings := map[string]bool{}
	_ = loadSettingsFile(settingsPath, settings)

	return &fileStore{
		log:                log,
		deliveryFile:       df,
		activeSnapshotPath: snapPath,
		activeJournalFile:  jf,
		active:             active,
		settingsPath:       settingsPath,
		settings:           settings,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.deliveryFile != nil {
		err1 = s.deliveryFile.Close()
		s.deliveryFile = nil
	}
	if s.activeJournalFile != nil {
		err2 = s.activeJournalFile.Close()
		s.activeJournalFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deliveryFile == nil {
		return errors.New("delivery file closed")
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	return json.NewEncoder(s.deliveryFile).Encode(e)
}

func (s *fileStore) PutActive(ctx context.Context, id string, until time.Time) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.journalActive(activeRecord{ID: id, Until: until.UnixMilli()})
}

func (s *fileStore) DeleteActive(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	return s.journalActive(activeRecord{ID: id, Until: 0})
}

func (s *fileStore) journalActive(r activeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeJournalFile == nil {
		return errors.New("active journal closed")
	}
	if r.Until == 0 {
		delete(s.active, r.ID)
	} else {
		s.active[r.ID] = r.Until
	}

	if err := json.NewEncoder(s.activeJournalFile).Encode(r); err != nil {
		return err
	}
	s.activeWrites++
	if s.activeWrites%1000 == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("active-set compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) ListActive(ctx context.Context) (map[string]time.Time, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	pruneExpiredActive(s.active)
	out := make(map[string]time.Time, len(s.active))
	for id, ms := range s.active {
		out[id] = time.UnixMilli(ms)
	}
	return out, nil
}

func (s *fileStore) PutSetting(ctx context.Context, key string, enabled bool) error {
	_ = ctx
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = enabled
	return writeFileAtomic(s.settingsPath, s.settings)
}

func (s *fileStore) GetSettings(ctx context.Context) (map[string]bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.settings))
	for k, v := range s.settings {
		out[k] = v
	}
	return out, nil
}

func (s *fileStore) compactLocked() error {
	pruneExpiredActive(s.active)

	if err := writeFileAtomic(s.activeSnapshotPath, s.active); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.activeJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.activeJournalFile.Seek(0, 2)
	return err
}

func writeFileAtomic(path string, v any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func loadActiveSnapshot(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]int64
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayActiveJournal(path string, out map[string]int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r activeRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		if r.ID == "" {
			continue
		}
		if r.Until == 0 {
			delete(out, r.ID)
			continue
		}
		out[r.ID] = r.Until
	}
	return sc.Err()
}

func loadSettingsFile(path string, out map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]bool
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func pruneExpiredActive(m map[string]int64) {
	now := time.Now().UnixMilli()
	for k, v := range m {
		if v < now {
			delete(m, k)
		}
	}
}
