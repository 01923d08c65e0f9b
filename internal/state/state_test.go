package state

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestNewCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	if _, err := New(dir, zap.NewNop()); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestVerificationRoundTrip(t *testing.T) {
	store := newTestStore(t)

	statuses := map[string]manager.VerificationStatus{
		"pip/requests": {Status: manager.StatusVerified, Message: "import ok", CheckedAt: time.Now().UTC()},
		"brew/wget":    {Status: manager.StatusFailed, Message: "audit issues"},
	}
	if err := store.SaveVerification(statuses); err != nil {
		t.Fatalf("SaveVerification failed: %v", err)
	}

	loaded := store.LoadVerification()
	if len(loaded) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(loaded))
	}
	if loaded["pip/requests"].Status != manager.StatusVerified {
		t.Errorf("unexpected status: %+v", loaded["pip/requests"])
	}
	if loaded["brew/wget"].Message != "audit issues" {
		t.Errorf("unexpected message: %+v", loaded["brew/wget"])
	}
}

func TestLoadVerificationMissingFile(t *testing.T) {
	store := newTestStore(t)

	statuses := store.LoadVerification()
	if statuses == nil {
		t.Fatal("expected empty map, got nil")
	}
	if len(statuses) != 0 {
		t.Errorf("expected empty map, got %+v", statuses)
	}
}

func TestLoadVerificationCorruptFile(t *testing.T) {
	store := newTestStore(t)

	path := filepath.Join(store.Dir(), "verification_status.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0644); err != nil {
		t.Fatal(err)
	}

	statuses := store.LoadVerification()
	if len(statuses) != 0 {
		t.Errorf("corrupt file should degrade to empty state, got %+v", statuses)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if store.LoadSnapshot() != nil {
		t.Fatal("expected nil snapshot before first save")
	}

	snap := &Snapshot{
		TakenAt:  time.Now().UTC(),
		Packages: map[string]string{"pip/requests": "2.31.0", "npm/@angular/cli": "17.3.0"},
	}
	if err := store.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	loaded := store.LoadSnapshot()
	if loaded == nil {
		t.Fatal("expected snapshot after save")
	}
	if loaded.Packages["npm/@angular/cli"] != "17.3.0" {
		t.Errorf("unexpected snapshot: %+v", loaded)
	}
}

func TestHistoryAppendAndClear(t *testing.T) {
	store := newTestStore(t)

	entry := HistoryEntry{
		Manager:   manager.Pip,
		Name:      "requests",
		Version:   "2.25.0",
		RemovedAt: time.Now().UTC(),
		Source:    SourceExternal,
	}
	if err := store.AppendHistory(entry); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}

	history := store.LoadHistory()
	if len(history) != 1 || history[0].Name != "requests" {
		t.Fatalf("unexpected history: %+v", history)
	}

	if err := store.ClearHistory(); err != nil {
		t.Fatalf("ClearHistory failed: %v", err)
	}
	if history := store.LoadHistory(); len(history) != 0 {
		t.Errorf("expected empty history after clear, got %+v", history)
	}
}

func TestHistoryCapped(t *testing.T) {
	store := newTestStore(t)

	var entries []HistoryEntry
	for i := 0; i < HistoryCap+20; i++ {
		entries = append(entries, HistoryEntry{
			Manager: manager.Npm,
			Name:    fmt.Sprintf("pkg-%d", i),
			Source:  SourceExternal,
		})
	}
	if err := store.AppendHistory(entries...); err != nil {
		t.Fatalf("AppendHistory failed: %v", err)
	}

	history := store.LoadHistory()
	if len(history) != HistoryCap {
		t.Fatalf("expected %d entries, got %d", HistoryCap, len(history))
	}

	// The oldest entries are dropped, the newest kept.
	if history[len(history)-1].Name != fmt.Sprintf("pkg-%d", HistoryCap+19) {
		t.Errorf("newest entry missing: %+v", history[len(history)-1])
	}
	if history[0].Name != "pkg-20" {
		t.Errorf("expected oldest surviving entry pkg-20, got %s", history[0].Name)
	}
}

func TestPendingRoundTrip(t *testing.T) {
	store := newTestStore(t)

	pending := []PendingRemoval{
		{Manager: manager.Brew, Name: "wget", MarkedAt: time.Now().UTC()},
	}
	if err := store.SavePending(pending); err != nil {
		t.Fatalf("SavePending failed: %v", err)
	}

	loaded := store.LoadPending()
	if len(loaded) != 1 || loaded[0].Name != "wget" {
		t.Errorf("unexpected pending markers: %+v", loaded)
	}
}
