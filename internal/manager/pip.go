package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// pipMetadataScript dumps every distribution visible to the interpreter as a
// JSON array of {name, version, path}. One subprocess for the whole
// environment, and the only listing source that reports install paths.
const pipMetadataScript = `import json, importlib.metadata as md
items = []
for dist in md.distributions():
    name = dist.metadata.get("Name", "") or getattr(dist, "name", "")
    path = ""
    try:
        if dist.files:
            path = str(dist.locate_file(dist.files[0]).parent)
    except Exception:
        path = ""
    items.append({"name": name, "version": dist.version or "", "path": path})
print(json.dumps(items))
`

// pipDistribution mirrors one entry of the metadata dump.
type pipDistribution struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// pipListEntry mirrors one entry of `pip list --format=json`.
type pipListEntry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PipAdapter wraps pip and the Python interpreter behind it.
type PipAdapter struct {
	run *Runner
	log *zap.Logger
}

// NewPipAdapter creates a pip adapter.
func NewPipAdapter(run *Runner, log *zap.Logger) *PipAdapter {
	return &PipAdapter{run: run, log: log}
}

// Manager returns Pip.
func (a *PipAdapter) Manager() Manager { return Pip }

// Detect reports whether a usable Python or pip binary is present.
func (a *PipAdapter) Detect() bool {
	return toolExists("python3") || toolExists("pip")
}

// List returns installed Python packages. The importlib.metadata dump is
// preferred because it yields install paths in a single subprocess; plain
// `pip list` is the fallback.
func (a *PipAdapter) List(ctx context.Context) ([]PackageRecord, error) {
	if toolExists("python3") {
		out, err := a.run.Run(ctx, "python3", "-c", pipMetadataScript)
		if err == nil {
			records, perr := parsePipMetadata(out)
			if perr == nil {
				return records, nil
			}
			a.log.Warn("pip metadata dump unparsable, falling back to pip list", zap.Error(perr))
		} else {
			a.log.Warn("pip metadata dump failed, falling back to pip list", zap.Error(err))
		}
	}

	if !toolExists("pip") {
		return nil, &ToolMissingError{Manager: Pip, Tool: "pip"}
	}

	out, err := a.run.Run(ctx, "pip", "list", "--format=json")
	if err != nil {
		return nil, fmt.Errorf("pip list failed: %w", err)
	}

	records, perr := parsePipListJSON(out)
	if perr == nil {
		return records, nil
	}

	// Older pip versions print a plain table.
	records = parsePipListText(out)
	if len(records) == 0 {
		return nil, &ParseError{Manager: Pip, Source: "pip list --format=json", Err: perr}
	}
	return records, nil
}

// parsePipMetadata parses the importlib.metadata dump.
func parsePipMetadata(out string) ([]PackageRecord, error) {
	var dists []pipDistribution
	if err := json.Unmarshal([]byte(out), &dists); err != nil {
		return nil, err
	}

	var records []PackageRecord
	for _, d := range dists {
		if d.Name == "" {
			continue
		}
		records = append(records, PackageRecord{
			Manager:     Pip,
			Name:        d.Name,
			Version:     d.Version,
			SizeBytes:   dirSize(d.Path),
			InstallPath: d.Path,
			Source:      "importlib.metadata",
		})
	}
	return records, nil
}

// parsePipListJSON parses `pip list --format=json` output.
func parsePipListJSON(out string) ([]PackageRecord, error) {
	trimmed := strings.TrimSpace(out)
	if !strings.HasPrefix(trimmed, "[") {
		return nil, fmt.Errorf("not a JSON array")
	}

	var entries []pipListEntry
	if err := json.Unmarshal([]byte(trimmed), &entries); err != nil {
		return nil, err
	}

	var records []PackageRecord
	for _, e := range entries {
		if e.Name == "" {
			continue
		}
		records = append(records, PackageRecord{
			Manager: Pip,
			Name:    e.Name,
			Version: e.Version,
			Source:  "pip list --format=json",
		})
	}
	return records, nil
}

// parsePipListText parses the legacy tabular `pip list` output. Malformed
// lines are skipped.
func parsePipListText(out string) []PackageRecord {
	var records []PackageRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToLower(line), "package") || strings.HasPrefix(line, "-") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		records = append(records, PackageRecord{
			Manager: Pip,
			Name:    fields[0],
			Version: fields[1],
			Source:  "pip list",
		})
	}
	return records
}

// Verify checks that the package imports cleanly, then runs pip-audit when
// available. Fail-soft: a probe that cannot run yields status unknown.
func (a *PipAdapter) Verify(ctx context.Context, rec PackageRecord) VerificationStatus {
	now := time.Now()

	if !toolExists("python3") {
		return VerificationStatus{
			Status:    StatusUnknown,
			Message:   "python3 not available for import check",
			CheckedAt: now,
		}
	}

	// Distribution names use dashes where module names use underscores.
	module := strings.ReplaceAll(rec.Name, "-", "_")
	out, err := a.run.Combined(ctx, "python3", "-c", fmt.Sprintf("import %s", module))
	if err != nil {
		msg := strings.TrimSpace(out)
		if msg == "" {
			msg = err.Error()
		}
		return VerificationStatus{
			Status:    StatusFailed,
			Message:   fmt.Sprintf("import failed: %s", lastLine(msg)),
			CheckedAt: now,
		}
	}

	// Best-effort vulnerability audit; absence of pip-audit is not a failure.
	if auditOut, auditErr := a.run.Run(ctx, "python3", "-m", "pip_audit", "--format", "json"); auditErr == nil {
		if vulns := countPipAuditVulnerabilities(auditOut, rec.Name); vulns > 0 {
			return VerificationStatus{
				Status:    StatusFailed,
				Message:   fmt.Sprintf("package has %d known vulnerabilities", vulns),
				CheckedAt: now,
			}
		}
	}

	return VerificationStatus{
		Status:    StatusVerified,
		Message:   fmt.Sprintf("import ok (version %s)", rec.Version),
		CheckedAt: now,
	}
}

// pipAuditReport mirrors the parts of pip-audit's JSON output we read.
type pipAuditReport struct {
	Dependencies []struct {
		Name  string `json:"name"`
		Vulns []struct {
			ID string `json:"id"`
		} `json:"vulns"`
	} `json:"dependencies"`
}

// countPipAuditVulnerabilities returns the number of vulnerabilities
// pip-audit reported for the named package, or zero if unparsable.
func countPipAuditVulnerabilities(out, name string) int {
	var report pipAuditReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		return 0
	}
	for _, dep := range report.Dependencies {
		if strings.EqualFold(dep.Name, name) {
			return len(dep.Vulns)
		}
	}
	return 0
}

// Uninstall removes a package with pip.
func (a *PipAdapter) Uninstall(ctx context.Context, name string) error {
	var out string
	var err error
	if toolExists("python3") {
		out, err = a.run.Combined(ctx, "python3", "-m", "pip", "uninstall", "-y", name)
	} else if toolExists("pip") {
		out, err = a.run.Combined(ctx, "pip", "uninstall", "-y", name)
	} else {
		return &ToolMissingError{Manager: Pip, Tool: "pip"}
	}

	if err != nil {
		return fmt.Errorf("pip uninstall %s failed: %w (output: %s)", name, err, lastLine(out))
	}
	return nil
}

// lastLine returns the final non-empty line of command output, which for
// Python tracebacks is the actual error.
func lastLine(out string) string {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
