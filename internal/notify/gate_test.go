package notify

import (
	"context"
	"sync"
	"testing"
	"time"
)

type memJournal struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemJournal() *memJournal { return &memJournal{m: map[string]time.Time{}} }

func (j *memJournal) PutActive(_ context.Context, id string, until time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.m[id] = until
	return nil
}

func (j *memJournal) DeleteActive(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.m, id)
	return nil
}

func (j *memJournal) ListActive(_ context.Context) (map[string]time.Time, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make(map[string]time.Time, len(j.m))
	for k, v := range j.m {
		out[k] = v
	}
	return out, nil
}

func testGate(t *testing.T, cfg GateConfig) (*Gate, *time.Time) {
	t.Helper()
	g := NewGate(cfg, nil, nil, testLogger())
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	return g, &now
}

func rec(id string) Record {
	return Record{ID: id, Title: "t-" + id, Category: CategoryMessage}
}

func TestAdmitIdentityDedup(t *testing.T) {
	g, now := testGate(t, GateConfig{DebounceWindow: time.Second})

	if ok, _ := g.Admit(rec("a")); !ok {
		t.Fatalf("first admit rejected")
	}

	// Same id again, well past the debounce window.
	*now = now.Add(2 * time.Second)
	ok, reason := g.Admit(rec("a"))
	if ok || reason != RejectActive {
		t.Fatalf("expected active rejection, got ok=%v reason=%q", ok, reason)
	}

	// The identity rejection must not have consumed the debounce token:
	// a fresh id at the same instant still gets through.
	if ok, reason := g.Admit(rec("b")); !ok {
		t.Fatalf("fresh id rejected after identity rejection: %q", reason)
	}
}

func TestAdmitDebounceWindow(t *testing.T) {
	g, now := testGate(t, GateConfig{DebounceWindow: time.Second})

	if ok, _ := g.Admit(rec("a")); !ok {
		t.Fatalf("first admit rejected")
	}

	*now = now.Add(500 * time.Millisecond)
	ok, reason := g.Admit(rec("b"))
	if ok || reason != RejectDebounce {
		t.Fatalf("expected debounce rejection at +500ms, got ok=%v reason=%q", ok, reason)
	}

	*now = now.Add(time.Second)
	if ok, reason := g.Admit(rec("b")); !ok {
		t.Fatalf("admit at +1.5s rejected: %q", reason)
	}
}

// A poll burst: the same id twice in quick succession, then two distinct
// records straddling the debounce window.
func TestAdmitBurstScenario(t *testing.T) {
	g, now := testGate(t, GateConfig{DebounceWindow: time.Second})
	base := *now

	if ok, _ := g.Admit(rec("n1")); !ok {
		t.Fatalf("t=0: n1 rejected")
	}

	*now = base.Add(200 * time.Millisecond)
	if ok, reason := g.Admit(rec("n1")); ok || reason != RejectActive {
		t.Fatalf("t=200ms: duplicate n1 ok=%v reason=%q", ok, reason)
	}

	*now = base.Add(900 * time.Millisecond)
	if ok, reason := g.Admit(rec("n2")); ok || reason != RejectDebounce {
		t.Fatalf("t=900ms: n2 ok=%v reason=%q", ok, reason)
	}

	*now = base.Add(1200 * time.Millisecond)
	if ok, reason := g.Admit(rec("n3")); !ok {
		t.Fatalf("t=1.2s: n3 rejected: %q", reason)
	}

	if g.Size() != 2 {
		t.Fatalf("active size = %d, want 2 (n1, n3)", g.Size())
	}
}

func TestAdmitMalformed(t *testing.T) {
	g, _ := testGate(t, GateConfig{})

	ok, reason := g.Admit(Record{Title: "no id"})
	if ok || reason != RejectMalformed {
		t.Fatalf("expected malformed rejection, got ok=%v reason=%q", ok, reason)
	}
	ok, reason = g.Admit(Record{ID: "no-title"})
	if ok || reason != RejectMalformed {
		t.Fatalf("expected malformed rejection, got ok=%v reason=%q", ok, reason)
	}
	if g.Size() != 0 {
		t.Fatalf("malformed records entered the active set")
	}
}

func TestEvictionAndReadmission(t *testing.T) {
	g := NewGate(GateConfig{
		DebounceWindow:  time.Millisecond,
		DisplayLifetime: 20 * time.Millisecond,
		EvictionJitter:  -1,
	}, nil, nil, testLogger())

	if ok, _ := g.Admit(rec("a")); !ok {
		t.Fatalf("first admit rejected")
	}
	if !g.Contains("a") {
		t.Fatalf("record missing from active set")
	}

	deadline := time.Now().Add(time.Second)
	for g.Contains("a") {
		if time.Now().After(deadline) {
			t.Fatalf("record never evicted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Once evicted, the same id is admissible again.
	if ok, reason := g.Admit(rec("a")); !ok {
		t.Fatalf("re-admission after eviction rejected: %q", reason)
	}
}

func TestClearAll(t *testing.T) {
	g := NewGate(GateConfig{
		DebounceWindow: time.Millisecond,
		EvictionJitter: -1,
	}, nil, nil, testLogger())

	g.Admit(rec("a"))
	time.Sleep(2 * time.Millisecond)
	g.Admit(rec("b"))

	if n := g.ClearAll(); n != 2 {
		t.Fatalf("ClearAll = %d, want 2", n)
	}
	if g.Size() != 0 {
		t.Fatalf("active set not empty after ClearAll")
	}

	time.Sleep(2 * time.Millisecond)
	if ok, reason := g.Admit(rec("a")); !ok {
		t.Fatalf("re-admission after ClearAll rejected: %q", reason)
	}
}

func TestHydrateRestoresFutureEntries(t *testing.T) {
	j := newMemJournal()
	now := time.Now()
	j.m["live"] = now.Add(time.Hour)
	j.m["stale"] = now.Add(-time.Hour)

	g := NewGate(GateConfig{}, nil, j, testLogger())
	g.Hydrate(context.Background())

	if !g.Contains("live") {
		t.Fatalf("unexpired entry not restored")
	}
	if g.Contains("stale") {
		t.Fatalf("expired entry restored")
	}
}

func TestAdmitWritesJournal(t *testing.T) {
	j := newMemJournal()
	g := NewGate(GateConfig{
		DebounceWindow:  time.Millisecond,
		DisplayLifetime: 10 * time.Millisecond,
		EvictionJitter:  -1,
	}, nil, j, testLogger())

	g.Admit(rec("a"))
	j.mu.Lock()
	_, ok := j.m["a"]
	j.mu.Unlock()
	if !ok {
		t.Fatalf("accepted record not journaled")
	}

	deadline := time.Now().Add(time.Second)
	for {
		j.mu.Lock()
		_, ok := j.m["a"]
		j.mu.Unlock()
		if !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal entry never deleted on eviction")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
