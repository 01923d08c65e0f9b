// Package verifier runs per-package integrity checks and persists the
// latest status for each identity.
package verifier

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/state"
)

// DefaultWorkers bounds verify-all fan-out. Verification is dominated by
// external-process latency, so a small pool cuts wall-clock time without
// hammering the package managers.
const DefaultWorkers = 4

// BatchSummary reports per-status counts for one verify-all run.
type BatchSummary struct {
	Total  int                    `json:"total"`
	Counts map[manager.Status]int `json:"counts"`
}

// BatchResult is the outcome of a verify-all run.
type BatchResult struct {
	Summary  BatchSummary                          `json:"summary"`
	Statuses map[string]manager.VerificationStatus `json:"statuses"`
}

// Verifier dispatches verification to the right adapter and stores results.
type Verifier struct {
	registry *manager.Registry
	store    *state.Store
	workers  int
	log      *zap.Logger
}

// New creates a Verifier. workers <= 0 uses DefaultWorkers.
func New(registry *manager.Registry, store *state.Store, workers int, log *zap.Logger) *Verifier {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Verifier{registry: registry, store: store, workers: workers, log: log}
}

// VerifyOne verifies a single record and persists the result, overwriting
// any prior status for that identity. Verification itself is fail-soft:
// the returned error only reflects persistence problems.
func (v *Verifier) VerifyOne(ctx context.Context, rec manager.PackageRecord) (manager.VerificationStatus, error) {
	status := v.check(ctx, rec)

	statuses := v.store.LoadVerification()
	statuses[rec.Identity().Key()] = status
	if err := v.store.SaveVerification(statuses); err != nil {
		return status, err
	}
	return status, nil
}

// VerifyAll verifies every record with bounded parallelism. Any single
// verification failing or hanging (until its subprocess timeout) does not
// abort the batch; all statuses are collected and persisted in one write,
// then summarized. Result ordering is irrelevant: each identity's stored
// entry depends only on its own latest check.
func (v *Verifier) VerifyAll(ctx context.Context, records []manager.PackageRecord) (BatchResult, error) {
	results := make(map[string]manager.VerificationStatus, len(records))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(v.workers)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			status := v.check(ctx, rec)
			mu.Lock()
			results[rec.Identity().Key()] = status
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only orders the final read.
	g.Wait() //nolint:errcheck

	statuses := v.store.LoadVerification()
	for key, status := range results {
		statuses[key] = status
	}
	if err := v.store.SaveVerification(statuses); err != nil {
		return BatchResult{}, err
	}

	summary := BatchSummary{Total: len(results), Counts: make(map[manager.Status]int)}
	for _, status := range results {
		summary.Counts[status.Status]++
	}

	v.log.Info("verification batch complete",
		zap.Int("total", summary.Total),
		zap.Int("verified", summary.Counts[manager.StatusVerified]),
		zap.Int("failed", summary.Counts[manager.StatusFailed]),
		zap.Int("unknown", summary.Counts[manager.StatusUnknown]))

	return BatchResult{Summary: summary, Statuses: results}, nil
}

// Statuses returns the persisted status map. Identities never checked are
// absent; callers treat them as unverified.
func (v *Verifier) Statuses() map[string]manager.VerificationStatus {
	return v.store.LoadVerification()
}

// StatusFor returns the stored status for an identity, or unverified.
func (v *Verifier) StatusFor(id manager.Identity) manager.VerificationStatus {
	if status, ok := v.store.LoadVerification()[id.Key()]; ok {
		return status
	}
	return manager.VerificationStatus{
		Status:  manager.StatusUnverified,
		Message: "not verified yet",
	}
}

// check runs the adapter verification, converting a missing adapter into a
// fail-soft unknown status.
func (v *Verifier) check(ctx context.Context, rec manager.PackageRecord) manager.VerificationStatus {
	adapter, err := v.registry.Lookup(rec.Manager)
	if err != nil {
		return manager.VerificationStatus{
			Status:    manager.StatusUnknown,
			Message:   err.Error(),
			CheckedAt: time.Now(),
		}
	}
	return adapter.Verify(ctx, rec)
}
