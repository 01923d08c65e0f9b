package output

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/pkglens/internal/conflicts"
	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/state"
)

func TestRenderPackageTable(t *testing.T) {
	records := []manager.PackageRecord{
		{Manager: manager.Pip, Name: "requests", Version: "2.31.0", SizeBytes: 2 * 1024 * 1024, InstallPath: "/usr/lib/python3"},
		{Manager: manager.Brew, Name: "wget", Version: "1.21.4"},
	}

	out := RenderPackageTable(records)

	for _, want := range []string{"requests", "wget", "2.31.0", "1.21.4", "Manager", "Package"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	// brew sorts before pip.
	if strings.Index(out, "wget") > strings.Index(out, "requests") {
		t.Error("records not sorted by manager")
	}
}

func TestRenderPackageTableEmpty(t *testing.T) {
	if out := RenderPackageTable(nil); !strings.Contains(out, "No packages found") {
		t.Errorf("unexpected empty output: %q", out)
	}
}

func TestRenderConflictTable(t *testing.T) {
	findings := []conflicts.Finding{
		{
			Rule:        "duplicate-name",
			Severity:    conflicts.SeverityMedium,
			Title:       "Duplicate package: yarn",
			Description: "Found 2 installations of yarn across managers",
			Suggestion:  "Consider removing duplicate installations",
			Packages: []manager.Identity{
				{Manager: manager.Brew, Name: "yarn"},
				{Manager: manager.Npm, Name: "yarn"},
			},
		},
	}

	out := RenderConflictTable(findings)

	for _, want := range []string{"Duplicate package: yarn", "brew/yarn, npm/yarn", "Suggestion:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderConflictTableEmpty(t *testing.T) {
	if out := RenderConflictTable(nil); !strings.Contains(out, "No conflicts detected") {
		t.Errorf("unexpected empty output: %q", out)
	}
}

func TestRenderHistoryTableNewestFirst(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	entries := []state.HistoryEntry{
		{Manager: manager.Pip, Name: "older", Version: "1.0", RemovedAt: old, Source: state.SourceExternal},
		{Manager: manager.Npm, Name: "newer", Version: "2.0", RemovedAt: time.Now(), Source: state.SourceDashboard},
	}

	out := RenderHistoryTable(entries)

	if strings.Index(out, "newer") > strings.Index(out, "older") {
		t.Errorf("entries not newest-first:\n%s", out)
	}
	if !strings.Contains(out, "dashboard") || !strings.Contains(out, "external") {
		t.Errorf("sources missing:\n%s", out)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero is unknown", 0, "—"},
		{"mebibytes", 2 * 1024 * 1024, "2.0 MiB"},
		{"bytes", 512, "512 B"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSize(tt.bytes); got != tt.want {
				t.Errorf("FormatSize(%d) = %q, want %q", tt.bytes, got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"this-is-a-long-package-name", 10, "this-is..."},
	}

	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}
