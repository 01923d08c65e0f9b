// Package collector aggregates package records from every manager adapter.
package collector

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

// Advisory is a non-fatal warning about a manager that contributed no
// records to a collection pass.
type Advisory struct {
	Manager manager.Manager `json:"manager"`
	Message string          `json:"message"`
}

// Stats are aggregate figures over one collection pass, recomputed as a
// pure function of the record set.
type Stats struct {
	TotalPackages  int                     `json:"total_packages"`
	TotalSizeBytes int64                   `json:"total_size_bytes"`
	PerManager     map[manager.Manager]int `json:"per_manager"`
}

// Result is the outcome of one collection pass.
type Result struct {
	Records    []manager.PackageRecord `json:"packages"`
	Advisories []Advisory              `json:"advisories"`
	Stats      Stats                   `json:"stats"`
}

// Collector invokes every adapter and merges the results.
type Collector struct {
	registry *manager.Registry
	log      *zap.Logger
}

// New creates a Collector over the registry.
func New(registry *manager.Registry, log *zap.Logger) *Collector {
	return &Collector{registry: registry, log: log}
}

// Collect runs every adapter's List independently. A failing adapter
// contributes zero records and one advisory; it never aborts the pass.
// Records are ordered by (manager, name). Identity includes the manager,
// so the same name under two managers yields two records, but within one
// manager each (manager, name) pair appears at most once: a distribution
// visible twice (user and system site-packages) keeps its first listing.
func (c *Collector) Collect(ctx context.Context) Result {
	var records []manager.PackageRecord
	var advisories []Advisory
	seen := make(map[manager.Identity]bool)

	for _, adapter := range c.registry.Adapters() {
		m := adapter.Manager()

		if !adapter.Detect() {
			c.log.Warn("manager tool not installed, skipping", zap.String("manager", string(m)))
			advisories = append(advisories, Advisory{
				Manager: m,
				Message: (&manager.ToolMissingError{Manager: m, Tool: string(m)}).Error(),
			})
			continue
		}

		found, err := adapter.List(ctx)
		if err != nil {
			c.log.Warn("manager listing failed, skipping",
				zap.String("manager", string(m)), zap.Error(err))
			advisories = append(advisories, Advisory{Manager: m, Message: advisoryMessage(err)})
			continue
		}

		kept := 0
		for _, r := range found {
			id := r.Identity()
			if seen[id] {
				continue
			}
			seen[id] = true
			records = append(records, r)
			kept++
		}
		if kept < len(found) {
			c.log.Warn("duplicate listings dropped",
				zap.String("manager", string(m)), zap.Int("dropped", len(found)-kept))
		}

		c.log.Info("manager scanned",
			zap.String("manager", string(m)), zap.Int("packages", kept))
	}

	sort.Slice(records, func(i, j int) bool {
		if records[i].Manager != records[j].Manager {
			return records[i].Manager < records[j].Manager
		}
		return records[i].Name < records[j].Name
	})

	return Result{
		Records:    records,
		Advisories: advisories,
		Stats:      ComputeStats(records),
	}
}

// ComputeStats derives aggregate stats from a record set.
func ComputeStats(records []manager.PackageRecord) Stats {
	stats := Stats{
		TotalPackages: len(records),
		PerManager:    make(map[manager.Manager]int),
	}
	for _, r := range records {
		stats.TotalSizeBytes += r.SizeBytes
		stats.PerManager[r.Manager]++
	}
	return stats
}

// advisoryMessage flattens an adapter error into user-facing advisory text.
func advisoryMessage(err error) string {
	var missing *manager.ToolMissingError
	if errors.As(err, &missing) {
		return missing.Error()
	}
	var parse *manager.ParseError
	if errors.As(err, &parse) {
		return parse.Error()
	}
	return err.Error()
}
