// Package conflicts applies a fixed table of heuristic rules to the
// collected package set. This is explicitly not a dependency resolver:
// false positives and negatives are acceptable by design.
package conflicts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

// HealthProbe runs a manager's own consistency check (pip check, brew
// doctor) and returns its output. Injectable so the scanner stays
// deterministic under test.
type HealthProbe func(ctx context.Context) (string, error)

// Scanner holds the ordered rule list and the manager health probes.
type Scanner struct {
	rules      []Rule
	pipCheck   HealthProbe
	brewDoctor HealthProbe
	log        *zap.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithPipCheck overrides the pip health probe.
func WithPipCheck(probe HealthProbe) Option {
	return func(s *Scanner) { s.pipCheck = probe }
}

// WithBrewDoctor overrides the brew health probe.
func WithBrewDoctor(probe HealthProbe) Option {
	return func(s *Scanner) { s.brewDoctor = probe }
}

// New creates a Scanner with the built-in rules and the given
// incompatibility table.
func New(run *manager.Runner, table []VersionConflict, log *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		rules: []Rule{
			duplicateNameRule(),
			versionConflictRule(table),
			largePackagesRule(),
		},
		pipCheck: func(ctx context.Context) (string, error) {
			return run.Combined(ctx, "python3", "-m", "pip", "check")
		},
		brewDoctor: func(ctx context.Context) (string, error) {
			return run.Combined(ctx, "brew", "doctor")
		},
		log: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan evaluates every rule over the record set, then runs the per-manager
// health probes for managers that contributed records. Deterministic for a
// given record set and probe output, regardless of input ordering.
func (s *Scanner) Scan(ctx context.Context, records []manager.PackageRecord) []Finding {
	// Canonical ordering so rule output never depends on input order.
	sorted := make([]manager.PackageRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Manager != sorted[j].Manager {
			return sorted[i].Manager < sorted[j].Manager
		}
		return sorted[i].Name < sorted[j].Name
	})

	var findings []Finding
	for _, rule := range s.rules {
		findings = append(findings, rule.Check(sorted)...)
	}

	findings = append(findings, s.probeFindings(ctx, sorted)...)

	s.log.Info("conflict scan complete",
		zap.Int("packages", len(sorted)), zap.Int("findings", len(findings)))
	return findings
}

// probeFindings runs pip check and brew doctor when those managers have
// packages in the set. Probe failures are skipped, not fatal.
func (s *Scanner) probeFindings(ctx context.Context, records []manager.PackageRecord) []Finding {
	present := make(map[manager.Manager]bool)
	for _, r := range records {
		present[r.Manager] = true
	}

	var findings []Finding

	// pip check and brew doctor exit non-zero when they find problems, so
	// the probes are judged on their output: an error with no output means
	// the probe itself could not run and is skipped.
	if present[manager.Pip] {
		out, _ := s.pipCheck(ctx)
		if strings.TrimSpace(out) != "" && !strings.Contains(out, "No broken requirements found") {
			findings = append(findings, Finding{
				Rule:        "pip-check",
				Severity:    SeverityHigh,
				Title:       "Python dependency conflicts",
				Description: fmt.Sprintf("pip check reported broken requirements: %s", firstLine(out)),
				Suggestion:  "Run 'pip check' to see details",
			})
		}
	}

	if present[manager.Brew] {
		out, _ := s.brewDoctor(ctx)
		if strings.TrimSpace(out) != "" && !strings.Contains(out, "Your system is ready to brew") {
			findings = append(findings, Finding{
				Rule:        "brew-doctor",
				Severity:    SeverityMedium,
				Title:       "Homebrew system issues",
				Description: fmt.Sprintf("brew doctor found issues: %s", firstLine(out)),
				Suggestion:  "Run 'brew doctor' to fix issues",
			})
		}
	}

	return findings
}

// firstLine returns the first non-empty line of probe output.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
