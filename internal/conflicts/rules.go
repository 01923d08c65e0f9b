package conflicts

import (
	"fmt"
	"os"
	"sort"
	"strings"

	goversion "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"

	"github.com/blackwell-systems/pkglens/internal/manager"
)

// Severity classifies a conflict finding. Severity is a static property of
// the rule that fired, never derived from the data.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Finding is one detected conflict. Findings are recomputed on every scan
// and never persisted.
type Finding struct {
	Rule        string             `json:"rule"`
	Severity    Severity           `json:"severity"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Suggestion  string             `json:"suggestion"`
	Packages    []manager.Identity `json:"packages,omitempty"`
}

// Rule inspects the full record set and may emit zero or more findings.
// Rules are independent; evaluation order never changes the output set.
type Rule struct {
	ID    string
	Check func(records []manager.PackageRecord) []Finding
}

// largePackageThreshold and largePackageCount drive the storage-pressure
// rule: more than largePackageCount packages above the threshold fires it.
const (
	largePackageThreshold = 100 * 1024 * 1024
	largePackageCount     = 5
)

// VersionConstraint matches one package by manager, name, and optional
// version bounds. Empty bounds match any version; a version string that
// cannot be parsed makes the constraint not match rather than error, since
// manager-native versions are not guaranteed to be semver.
type VersionConstraint struct {
	Manager manager.Manager `yaml:"manager" json:"manager"`
	Name    string          `yaml:"name" json:"name"`
	Below   string          `yaml:"below,omitempty" json:"below,omitempty"`
	AtLeast string          `yaml:"at_least,omitempty" json:"at_least,omitempty"`
}

// Matches reports whether the record satisfies the constraint.
func (c VersionConstraint) Matches(rec manager.PackageRecord) bool {
	if rec.Manager != c.Manager || !strings.EqualFold(rec.Name, c.Name) {
		return false
	}
	if c.Below == "" && c.AtLeast == "" {
		return true
	}

	ver, err := goversion.NewVersion(rec.Version)
	if err != nil {
		return false
	}
	if c.Below != "" {
		bound, err := goversion.NewVersion(c.Below)
		if err != nil || !ver.LessThan(bound) {
			return false
		}
	}
	if c.AtLeast != "" {
		bound, err := goversion.NewVersion(c.AtLeast)
		if err != nil || ver.LessThan(bound) {
			return false
		}
	}
	return true
}

// VersionConflict is one entry of the incompatibility table: two
// constraints that must not be satisfied simultaneously.
type VersionConflict struct {
	A          VersionConstraint `yaml:"a" json:"a"`
	B          VersionConstraint `yaml:"b" json:"b"`
	Severity   Severity          `yaml:"severity" json:"severity"`
	Reason     string            `yaml:"reason" json:"reason"`
	Suggestion string            `yaml:"suggestion" json:"suggestion"`
}

// rulesFile is the YAML shape of an external rule table.
type rulesFile struct {
	VersionConflicts []VersionConflict `yaml:"version_conflicts"`
}

// DefaultVersionConflicts is the built-in incompatibility table. The table
// is hand-curated configuration, not a dependency resolver.
func DefaultVersionConflicts() []VersionConflict {
	return []VersionConflict{
		{
			A:          VersionConstraint{Manager: manager.Pip, Name: "numpy", Below: "1.20"},
			B:          VersionConstraint{Manager: manager.Pip, Name: "pandas", AtLeast: "2.0"},
			Severity:   SeverityHigh,
			Reason:     "pandas 2.x requires numpy >= 1.20",
			Suggestion: "Upgrade numpy or pin pandas below 2.0",
		},
	}
}

// LoadVersionConflicts reads an incompatibility table from a YAML file.
// A missing file returns the built-in table; a malformed file returns an
// error so the caller can warn and fall back.
func LoadVersionConflicts(path string) ([]VersionConflict, error) {
	if path == "" {
		return DefaultVersionConflicts(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultVersionConflicts(), nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if len(file.VersionConflicts) == 0 {
		return DefaultVersionConflicts(), nil
	}
	return file.VersionConflicts, nil
}

// duplicateNameRule flags the same (case-insensitive) name installed under
// more than one manager.
func duplicateNameRule() Rule {
	return Rule{
		ID: "duplicate-name",
		Check: func(records []manager.PackageRecord) []Finding {
			byName := make(map[string][]manager.PackageRecord)
			for _, r := range records {
				key := strings.ToLower(r.Name)
				byName[key] = append(byName[key], r)
			}

			names := make([]string, 0, len(byName))
			for name := range byName {
				names = append(names, name)
			}
			sort.Strings(names)

			var findings []Finding
			for _, name := range names {
				group := byName[name]
				managers := make(map[manager.Manager]bool)
				for _, r := range group {
					managers[r.Manager] = true
				}
				if len(managers) < 2 {
					continue
				}
				findings = append(findings, Finding{
					Rule:        "duplicate-name",
					Severity:    SeverityMedium,
					Title:       fmt.Sprintf("Duplicate package: %s", name),
					Description: fmt.Sprintf("Found %d installations of %s across managers", len(group), name),
					Suggestion:  "Consider removing duplicate installations",
					Packages:    identities(group),
				})
			}
			return findings
		},
	}
}

// largePackagesRule flags storage pressure from many oversized packages.
func largePackagesRule() Rule {
	return Rule{
		ID: "large-packages",
		Check: func(records []manager.PackageRecord) []Finding {
			var large []manager.PackageRecord
			for _, r := range records {
				if r.SizeBytes > largePackageThreshold {
					large = append(large, r)
				}
			}
			if len(large) <= largePackageCount {
				return nil
			}
			return []Finding{{
				Rule:        "large-packages",
				Severity:    SeverityLow,
				Title:       "Multiple large packages",
				Description: fmt.Sprintf("Found %d packages larger than 100 MB", len(large)),
				Suggestion:  "Consider reviewing large packages for cleanup",
				Packages:    identities(large),
			}}
		},
	}
}

// versionConflictRule compiles the incompatibility table into one rule.
func versionConflictRule(table []VersionConflict) Rule {
	return Rule{
		ID: "version-conflict",
		Check: func(records []manager.PackageRecord) []Finding {
			var findings []Finding
			for _, conflict := range table {
				var a, b []manager.PackageRecord
				for _, r := range records {
					if conflict.A.Matches(r) {
						a = append(a, r)
					}
					if conflict.B.Matches(r) {
						b = append(b, r)
					}
				}
				if len(a) == 0 || len(b) == 0 {
					continue
				}
				findings = append(findings, Finding{
					Rule:        "version-conflict",
					Severity:    conflict.Severity,
					Title:       fmt.Sprintf("Incompatible versions: %s / %s", conflict.A.Name, conflict.B.Name),
					Description: conflict.Reason,
					Suggestion:  conflict.Suggestion,
					Packages:    identities(append(a, b...)),
				})
			}
			return findings
		},
	}
}

// identities extracts sorted unique identities from records.
func identities(records []manager.PackageRecord) []manager.Identity {
	seen := make(map[manager.Identity]bool, len(records))
	var ids []manager.Identity
	for _, r := range records {
		id := r.Identity()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].Manager != ids[j].Manager {
			return ids[i].Manager < ids[j].Manager
		}
		return ids[i].Name < ids[j].Name
	})
	return ids
}
