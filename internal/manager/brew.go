package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// brewInfoOutput represents the structure of `brew info --json=v2` output.
type brewInfoOutput struct {
	Formulae []brewFormula `json:"formulae"`
	Casks    []brewCask    `json:"casks"`
}

// brewFormula represents a Homebrew formula in JSON output.
type brewFormula struct {
	Name      string                 `json:"name"`
	FullName  string                 `json:"full_name"`
	Tap       string                 `json:"tap"`
	Installed []brewInstalledVersion `json:"installed"`
	Versions  struct {
		Stable string `json:"stable"`
	} `json:"versions"`
}

// brewInstalledVersion represents one installed version of a formula.
type brewInstalledVersion struct {
	Version string `json:"version"`
}

// brewCask represents a Homebrew cask in JSON output.
type brewCask struct {
	Token     string `json:"token"`
	FullToken string `json:"full_token"`
	Tap       string `json:"tap"`
	Version   string `json:"version"`
}

// BrewAdapter wraps the Homebrew command-line tool.
type BrewAdapter struct {
	run *Runner
	log *zap.Logger
}

// NewBrewAdapter creates a Homebrew adapter.
func NewBrewAdapter(run *Runner, log *zap.Logger) *BrewAdapter {
	return &BrewAdapter{run: run, log: log}
}

// Manager returns Brew.
func (a *BrewAdapter) Manager() Manager { return Brew }

// Detect reports whether the brew binary is present.
func (a *BrewAdapter) Detect() bool {
	return toolExists("brew")
}

// List returns installed formulae and casks. `brew info --json=v2
// --installed` is preferred; `brew list --versions` is the fallback.
func (a *BrewAdapter) List(ctx context.Context) ([]PackageRecord, error) {
	if !a.Detect() {
		return nil, &ToolMissingError{Manager: Brew, Tool: "brew"}
	}

	prefix := a.prefix(ctx)

	out, err := a.run.Run(ctx, "brew", "info", "--json=v2", "--installed")
	if err == nil {
		records, perr := parseBrewInfo(out, prefix)
		if perr == nil {
			return records, nil
		}
		a.log.Warn("brew info output unparsable, falling back to brew list", zap.Error(perr))
	} else {
		a.log.Warn("brew info failed, falling back to brew list", zap.Error(err))
	}

	out, err = a.run.Run(ctx, "brew", "list", "--versions")
	if err != nil {
		return nil, fmt.Errorf("brew list failed: %w", err)
	}

	records := parseBrewListVersions(out, prefix)
	if len(records) == 0 && strings.TrimSpace(out) != "" {
		return nil, &ParseError{Manager: Brew, Source: "brew list --versions", Err: fmt.Errorf("no parsable lines")}
	}
	return records, nil
}

// prefix returns the Homebrew installation prefix, empty on failure.
func (a *BrewAdapter) prefix(ctx context.Context) string {
	out, err := a.run.Run(ctx, "brew", "--prefix")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

// parseBrewInfo parses `brew info --json=v2 --installed` output into records.
func parseBrewInfo(out, prefix string) ([]PackageRecord, error) {
	var info brewInfoOutput
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, err
	}

	var records []PackageRecord
	for _, formula := range info.Formulae {
		if formula.Name == "" {
			continue
		}
		version := formula.Versions.Stable
		if len(formula.Installed) > 0 {
			version = formula.Installed[len(formula.Installed)-1].Version
		}
		path := brewInstallPath(prefix, formula.Name)
		records = append(records, PackageRecord{
			Manager:     Brew,
			Name:        formula.Name,
			Version:     version,
			SizeBytes:   dirSize(path),
			InstallPath: path,
			Source:      "brew info --json=v2 --installed",
		})
	}

	for _, cask := range info.Casks {
		if cask.Token == "" {
			continue
		}
		path := ""
		if prefix != "" {
			caskroom := filepath.Join(prefix, "Caskroom", cask.Token)
			if _, err := os.Stat(caskroom); err == nil {
				path = caskroom
			}
		}
		records = append(records, PackageRecord{
			Manager:     Brew,
			Name:        cask.Token,
			Version:     cask.Version,
			SizeBytes:   dirSize(path),
			InstallPath: path,
			Source:      "brew info --json=v2 --installed",
		})
	}

	return records, nil
}

// parseBrewListVersions parses `brew list --versions` lines like
// "wget 1.21.3_1". Malformed lines are skipped.
func parseBrewListVersions(out, prefix string) []PackageRecord {
	var records []PackageRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		name := fields[0]
		path := brewInstallPath(prefix, name)
		records = append(records, PackageRecord{
			Manager:     Brew,
			Name:        name,
			Version:     strings.Join(fields[1:], " "),
			SizeBytes:   dirSize(path),
			InstallPath: path,
			Source:      "brew list --versions",
		})
	}
	return records
}

// brewInstallPath locates a formula under the prefix, trying opt then
// Cellar. Empty when the prefix is unknown or nothing exists.
func brewInstallPath(prefix, name string) string {
	if prefix == "" {
		return ""
	}
	for _, candidate := range []string{
		filepath.Join(prefix, "opt", name),
		filepath.Join(prefix, "Cellar", name),
	} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// Verify audits the formula with `brew audit --strict`. Audit output means
// failure; a probe that cannot run yields status unknown.
func (a *BrewAdapter) Verify(ctx context.Context, rec PackageRecord) VerificationStatus {
	now := time.Now()

	if !a.Detect() {
		return VerificationStatus{
			Status:    StatusUnknown,
			Message:   "brew not available for audit",
			CheckedAt: now,
		}
	}

	out, err := a.run.Combined(ctx, "brew", "audit", "--strict", rec.Name)
	trimmed := strings.TrimSpace(out)

	if err == nil && (trimmed == "" || strings.Contains(trimmed, "No problems")) {
		return VerificationStatus{
			Status:    StatusVerified,
			Message:   "brew audit passed",
			CheckedAt: now,
		}
	}

	if trimmed == "" && err != nil {
		return VerificationStatus{
			Status:    StatusUnknown,
			Message:   fmt.Sprintf("brew audit could not run: %v", err),
			CheckedAt: now,
		}
	}

	return VerificationStatus{
		Status:    StatusFailed,
		Message:   fmt.Sprintf("audit issues: %s", firstLine(trimmed)),
		CheckedAt: now,
	}
}

// Uninstall removes a formula or cask.
func (a *BrewAdapter) Uninstall(ctx context.Context, name string) error {
	if !a.Detect() {
		return &ToolMissingError{Manager: Brew, Tool: "brew"}
	}
	out, err := a.run.Combined(ctx, "brew", "uninstall", name)
	if err != nil {
		return fmt.Errorf("brew uninstall %s failed: %w (output: %s)", name, err, firstLine(strings.TrimSpace(out)))
	}
	return nil
}

// firstLine returns the first non-empty line of command output.
func firstLine(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if l := strings.TrimSpace(line); l != "" {
			return l
		}
	}
	return ""
}
