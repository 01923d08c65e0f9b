package collector

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

// fakeAdapter is a scriptable Adapter for collector tests.
type fakeAdapter struct {
	m        manager.Manager
	detected bool
	records  []manager.PackageRecord
	listErr  error
}

func (f *fakeAdapter) Manager() manager.Manager { return f.m }
func (f *fakeAdapter) Detect() bool             { return f.detected }

func (f *fakeAdapter) List(ctx context.Context) ([]manager.PackageRecord, error) {
	return f.records, f.listErr
}

func (f *fakeAdapter) Verify(ctx context.Context, rec manager.PackageRecord) manager.VerificationStatus {
	return manager.VerificationStatus{Status: manager.StatusVerified}
}

func (f *fakeAdapter) Uninstall(ctx context.Context, name string) error { return nil }

func rec(m manager.Manager, name, version string, size int64) manager.PackageRecord {
	return manager.PackageRecord{Manager: m, Name: name, Version: version, SizeBytes: size}
}

func TestCollectMergesAllManagers(t *testing.T) {
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Pip, detected: true, records: []manager.PackageRecord{
			rec(manager.Pip, "requests", "2.31.0", 1000),
		}},
		&fakeAdapter{m: manager.Brew, detected: true, records: []manager.PackageRecord{
			rec(manager.Brew, "wget", "1.21.4", 2000),
		}},
		&fakeAdapter{m: manager.Npm, detected: true, records: []manager.PackageRecord{
			rec(manager.Npm, "typescript", "5.4.5", 3000),
		}},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	if len(result.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(result.Records))
	}
	if len(result.Advisories) != 0 {
		t.Errorf("expected no advisories, got %+v", result.Advisories)
	}
	if result.Stats.TotalPackages != 3 || result.Stats.TotalSizeBytes != 6000 {
		t.Errorf("unexpected stats: %+v", result.Stats)
	}
}

func TestCollectMissingManagerYieldsAdvisory(t *testing.T) {
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Pip, detected: true, records: []manager.PackageRecord{
			rec(manager.Pip, "requests", "2.31.0", 0),
		}},
		&fakeAdapter{m: manager.Brew, detected: true, records: []manager.PackageRecord{
			rec(manager.Brew, "wget", "1.21.4", 0),
		}},
		&fakeAdapter{m: manager.Npm, detected: false},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if len(result.Advisories) != 1 {
		t.Fatalf("expected 1 advisory, got %d", len(result.Advisories))
	}
	if result.Advisories[0].Manager != manager.Npm {
		t.Errorf("expected npm advisory, got %+v", result.Advisories[0])
	}
}

func TestCollectListFailureDoesNotAbortPass(t *testing.T) {
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Pip, detected: true, listErr: errors.New("pip exploded")},
		&fakeAdapter{m: manager.Brew, detected: true, records: []manager.PackageRecord{
			rec(manager.Brew, "wget", "1.21.4", 0),
		}},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(result.Records))
	}
	if len(result.Advisories) != 1 || result.Advisories[0].Manager != manager.Pip {
		t.Fatalf("expected pip advisory, got %+v", result.Advisories)
	}
}

func TestCollectOrdersRecords(t *testing.T) {
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Npm, detected: true, records: []manager.PackageRecord{
			rec(manager.Npm, "typescript", "5.4.5", 0),
			rec(manager.Npm, "eslint", "9.0.0", 0),
		}},
		&fakeAdapter{m: manager.Brew, detected: true, records: []manager.PackageRecord{
			rec(manager.Brew, "wget", "1.21.4", 0),
		}},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	want := []string{"brew/wget", "npm/eslint", "npm/typescript"}
	for i, key := range want {
		if got := result.Records[i].Identity().Key(); got != key {
			t.Errorf("record %d: expected %s, got %s", i, key, got)
		}
	}
}

func TestCollectKeepsDuplicateNamesAcrossManagers(t *testing.T) {
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Brew, detected: true, records: []manager.PackageRecord{
			rec(manager.Brew, "yarn", "1.22.19", 0),
		}},
		&fakeAdapter{m: manager.Npm, detected: true, records: []manager.PackageRecord{
			rec(manager.Npm, "yarn", "1.22.22", 0),
		}},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	if len(result.Records) != 2 {
		t.Fatalf("expected both yarn records, got %d", len(result.Records))
	}
}

func TestCollectDedupesWithinManager(t *testing.T) {
	// A distribution visible in both user and system site-packages is
	// listed twice by pip; the first listing wins.
	registry := manager.NewRegistryWith(
		&fakeAdapter{m: manager.Pip, detected: true, records: []manager.PackageRecord{
			rec(manager.Pip, "requests", "2.31.0", 1000),
			rec(manager.Pip, "numpy", "1.26.2", 500),
			rec(manager.Pip, "requests", "2.25.0", 900),
		}},
	)

	result := New(registry, zap.NewNop()).Collect(context.Background())

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(result.Records), result.Records)
	}

	seen := make(map[string]manager.PackageRecord, len(result.Records))
	for _, r := range result.Records {
		key := r.Identity().Key()
		if _, dup := seen[key]; dup {
			t.Fatalf("duplicate identity %s in collected set", key)
		}
		seen[key] = r
	}

	if got := seen["pip/requests"].Version; got != "2.31.0" {
		t.Errorf("expected first listing to win, got version %s", got)
	}
	if result.Stats.TotalPackages != 2 || result.Stats.TotalSizeBytes != 1500 {
		t.Errorf("stats should cover the deduplicated set: %+v", result.Stats)
	}
}

func TestComputeStats(t *testing.T) {
	records := []manager.PackageRecord{
		rec(manager.Pip, "a", "1", 100),
		rec(manager.Pip, "b", "1", 200),
		rec(manager.Npm, "c", "1", 300),
	}

	stats := ComputeStats(records)

	if stats.TotalPackages != 3 {
		t.Errorf("expected 3 packages, got %d", stats.TotalPackages)
	}
	if stats.TotalSizeBytes != 600 {
		t.Errorf("expected 600 bytes, got %d", stats.TotalSizeBytes)
	}
	if stats.PerManager[manager.Pip] != 2 || stats.PerManager[manager.Npm] != 1 {
		t.Errorf("unexpected per-manager counts: %+v", stats.PerManager)
	}
}
