// Package history tracks package removals across collection passes.
//
// Classification of a removal as dashboard-initiated or external relies on
// a two-step protocol: the uninstall handler marks the identity as pending
// before invoking the manager, and the next snapshot diff consumes the
// marker. A package gone from the current pass with no matching marker was
// removed outside the dashboard.
package history

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/state"
)

// Tracker diffs collection passes and maintains the uninstall history log.
type Tracker struct {
	store *state.Store
	log   *zap.Logger
}

// New creates a Tracker over the state store.
func New(store *state.Store, log *zap.Logger) *Tracker {
	return &Tracker{store: store, log: log}
}

// MarkPending records that the dashboard is about to uninstall the
// identity. Must be called before the manager's uninstall command runs.
func (t *Tracker) MarkPending(id manager.Identity) error {
	pending := t.store.LoadPending()
	for _, p := range pending {
		if p.Manager == id.Manager && p.Name == id.Name {
			return nil // already marked
		}
	}
	pending = append(pending, state.PendingRemoval{
		Manager:  id.Manager,
		Name:     id.Name,
		MarkedAt: time.Now(),
	})
	return t.store.SavePending(pending)
}

// UnmarkPending withdraws a marker after a failed uninstall. A marker may
// only survive a successful dashboard removal the next snapshot diff has
// not consumed yet; leaving it behind would misclassify a later external
// removal as dashboard-initiated.
func (t *Tracker) UnmarkPending(id manager.Identity) error {
	pending := t.store.LoadPending()
	kept := pending[:0]
	for _, p := range pending {
		if p.Manager == id.Manager && p.Name == id.Name {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == len(pending) {
		return nil
	}
	return t.store.SavePending(kept)
}

// RecordSnapshot diffs the current record set against the previous
// snapshot, appends removal entries to the history log, persists the new
// snapshot, and returns the removals detected in this pass.
func (t *Tracker) RecordSnapshot(records []manager.PackageRecord) ([]state.HistoryEntry, error) {
	previous := t.store.LoadSnapshot()
	pending := t.store.LoadPending()

	current := &state.Snapshot{
		TakenAt:  time.Now(),
		Packages: make(map[string]string, len(records)),
	}
	for _, r := range records {
		current.Packages[r.Identity().Key()] = r.Version
	}

	entries, remaining := Diff(previous, current, pending, time.Now())

	if len(entries) > 0 {
		t.log.Info("packages removed since last pass", zap.Int("count", len(entries)))
		if err := t.store.AppendHistory(entries...); err != nil {
			return nil, err
		}
	}
	if len(remaining) != len(pending) {
		if err := t.store.SavePending(remaining); err != nil {
			return nil, err
		}
	}
	if err := t.store.SaveSnapshot(current); err != nil {
		return nil, err
	}

	return entries, nil
}

// Entries returns the persisted history log, oldest first.
func (t *Tracker) Entries() []state.HistoryEntry {
	return t.store.LoadHistory()
}

// Clear empties the history log.
func (t *Tracker) Clear() error {
	return t.store.ClearHistory()
}

// Diff computes removal entries: identities present in previous and absent
// from current. A matching pending marker classifies the removal as
// dashboard-initiated and is consumed; otherwise the removal is external.
// Returns the entries and the unconsumed markers. Pure function.
func Diff(previous, current *state.Snapshot, pending []state.PendingRemoval, now time.Time) ([]state.HistoryEntry, []state.PendingRemoval) {
	if previous == nil {
		return nil, pending
	}

	consumed := make(map[int]bool, len(pending))
	var entries []state.HistoryEntry

	for key, version := range previous.Packages {
		if _, stillThere := current.Packages[key]; stillThere {
			continue
		}

		id, ok := parseKey(key)
		if !ok {
			continue
		}

		source := state.SourceExternal
		for i, p := range pending {
			if consumed[i] {
				continue
			}
			if p.Manager == id.Manager && p.Name == id.Name {
				source = state.SourceDashboard
				consumed[i] = true
				break
			}
		}

		entries = append(entries, state.HistoryEntry{
			Manager:   id.Manager,
			Name:      id.Name,
			Version:   version,
			RemovedAt: now,
			Source:    source,
		})
	}

	var remaining []state.PendingRemoval
	for i, p := range pending {
		if !consumed[i] {
			remaining = append(remaining, p)
		}
	}

	// Map iteration order is random; keep the log stable.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Manager != entries[j].Manager {
			return entries[i].Manager < entries[j].Manager
		}
		return entries[i].Name < entries[j].Name
	})

	return entries, remaining
}

// parseKey splits an identity key "<manager>/<name>" back into an identity.
func parseKey(key string) (manager.Identity, bool) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			m, err := manager.ParseManager(key[:i])
			if err != nil || key[i+1:] == "" {
				return manager.Identity{}, false
			}
			return manager.Identity{Manager: m, Name: key[i+1:]}, true
		}
	}
	return manager.Identity{}, false
}
