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

// npmListOutput represents the structure of `npm -g ls --depth=0 --json`.
type npmListOutput struct {
	Dependencies map[string]npmDependency `json:"dependencies"`
}

// npmDependency represents one globally installed package.
type npmDependency struct {
	Version string `json:"version"`
}

// NpmAdapter wraps the npm command-line tool (global packages only).
type NpmAdapter struct {
	run *Runner
	log *zap.Logger
}

// NewNpmAdapter creates an npm adapter.
func NewNpmAdapter(run *Runner, log *zap.Logger) *NpmAdapter {
	return &NpmAdapter{run: run, log: log}
}

// Manager returns Npm.
func (a *NpmAdapter) Manager() Manager { return Npm }

// Detect reports whether the npm binary is present.
func (a *NpmAdapter) Detect() bool {
	return toolExists("npm")
}

// List returns globally installed npm packages. JSON output is preferred;
// the tree-drawing text output is the fallback.
func (a *NpmAdapter) List(ctx context.Context) ([]PackageRecord, error) {
	if !a.Detect() {
		return nil, &ToolMissingError{Manager: Npm, Tool: "npm"}
	}

	root := a.globalRoot(ctx)

	// npm ls exits non-zero for peer-dependency problems while still
	// printing the full JSON tree, so parse whatever came back first.
	out, err := a.run.Run(ctx, "npm", "-g", "ls", "--depth=0", "--json")
	records, perr := parseNpmListJSON(out, root)
	if perr == nil {
		return records, nil
	}
	if err != nil {
		a.log.Warn("npm ls --json failed, falling back to text output", zap.Error(err))
	}

	out, err = a.run.Run(ctx, "npm", "-g", "ls", "--depth=0")
	if err != nil && strings.TrimSpace(out) == "" {
		return nil, fmt.Errorf("npm ls failed: %w", err)
	}

	records = parseNpmListText(out, root)
	if len(records) == 0 {
		return nil, &ParseError{Manager: Npm, Source: "npm -g ls --depth=0 --json", Err: perr}
	}
	return records, nil
}

// globalRoot returns the global node_modules directory, empty on failure.
func (a *NpmAdapter) globalRoot(ctx context.Context) string {
	out, err := a.run.Run(ctx, "npm", "config", "get", "prefix")
	if err != nil {
		return ""
	}
	prefix := strings.TrimSpace(out)
	if prefix == "" {
		return ""
	}
	return filepath.Join(prefix, "lib", "node_modules")
}

// parseNpmListJSON parses `npm -g ls --depth=0 --json` output.
func parseNpmListJSON(out, root string) ([]PackageRecord, error) {
	var list npmListOutput
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, err
	}
	if list.Dependencies == nil {
		return nil, fmt.Errorf("no dependencies object")
	}

	var records []PackageRecord
	for name, dep := range list.Dependencies {
		if name == "" {
			continue
		}
		path := npmInstallPath(root, name)
		records = append(records, PackageRecord{
			Manager:     Npm,
			Name:        name,
			Version:     dep.Version,
			SizeBytes:   dirSize(path),
			InstallPath: path,
			Source:      "npm -g ls --depth=0 --json",
		})
	}
	return records, nil
}

// parseNpmListText parses npm's tree-drawing text output, with lines like
// "├── typescript@5.4.5". Malformed lines are skipped.
func parseNpmListText(out, root string) []PackageRecord {
	var records []PackageRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if !strings.Contains(line, "──") {
			continue
		}
		entry := strings.TrimSpace(line[strings.Index(line, "──")+len("──"):])
		// Scoped packages (@scope/name) keep their leading @; the version
		// separator is the last @.
		at := strings.LastIndex(entry, "@")
		if at <= 0 {
			continue
		}
		name := entry[:at]
		version := entry[at+1:]
		if name == "" || version == "" {
			continue
		}
		path := npmInstallPath(root, name)
		records = append(records, PackageRecord{
			Manager:     Npm,
			Name:        name,
			Version:     version,
			SizeBytes:   dirSize(path),
			InstallPath: path,
			Source:      "npm -g ls --depth=0",
		})
	}
	return records
}

// npmInstallPath locates a package under the global node_modules root.
func npmInstallPath(root, name string) string {
	if root == "" {
		return ""
	}
	path := filepath.Join(root, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Verify audits the package's install directory with `npm audit`. A probe
// that cannot run (no npm, unknown install path) yields status unknown.
func (a *NpmAdapter) Verify(ctx context.Context, rec PackageRecord) VerificationStatus {
	now := time.Now()

	if !a.Detect() {
		return VerificationStatus{
			Status:    StatusUnknown,
			Message:   "npm not available for audit",
			CheckedAt: now,
		}
	}

	path := rec.InstallPath
	if path == "" {
		path = npmInstallPath(a.globalRoot(ctx), rec.Name)
	}
	if path == "" {
		return VerificationStatus{
			Status:    StatusUnknown,
			Message:   "install path unknown, cannot audit",
			CheckedAt: now,
		}
	}

	out, err := a.run.Combined(ctx, "npm", "audit", "--audit-level=moderate", "--prefix", path)
	if err == nil || strings.Contains(out, "found 0 vulnerabilities") {
		return VerificationStatus{
			Status:    StatusVerified,
			Message:   "npm audit passed",
			CheckedAt: now,
		}
	}

	return VerificationStatus{
		Status:    StatusFailed,
		Message:   fmt.Sprintf("audit issues: %s", firstLine(strings.TrimSpace(out))),
		CheckedAt: now,
	}
}

// Uninstall removes a global npm package.
func (a *NpmAdapter) Uninstall(ctx context.Context, name string) error {
	if !a.Detect() {
		return &ToolMissingError{Manager: Npm, Tool: "npm"}
	}
	out, err := a.run.Combined(ctx, "npm", "uninstall", "-g", name)
	if err != nil {
		return fmt.Errorf("npm uninstall %s failed: %w (output: %s)", name, err, firstLine(strings.TrimSpace(out)))
	}
	return nil
}
