// Package output provides terminal output utilities for pkglens:
// table rendering for packages, verification statuses, conflict findings
// and uninstall history, CSV export, and an animated spinner.
//
// Tables use ASCII characters and ANSI color codes for terminal output.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/blackwell-systems/pkglens/internal/collector"
	"github.com/blackwell-systems/pkglens/internal/conflicts"
	"github.com/blackwell-systems/pkglens/internal/manager"
	"github.com/blackwell-systems/pkglens/internal/state"
)

// ANSI color codes for severity and status display
const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// RenderPackageTable renders the collected package set.
func RenderPackageTable(records []manager.PackageRecord) string {
	if len(records) == 0 {
		return "No packages found.\n"
	}

	sorted := make([]manager.PackageRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Manager != sorted[j].Manager {
			return sorted[i].Manager < sorted[j].Manager
		}
		return sorted[i].Name < sorted[j].Name
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-8s %-28s %-16s %-9s %s\n",
		"Manager", "Package", "Version", "Size", "Path"))
	sb.WriteString(strings.Repeat("─", 96))
	sb.WriteString("\n")

	for _, r := range sorted {
		sb.WriteString(fmt.Sprintf("%-8s %-28s %-16s %-9s %s\n",
			r.Manager,
			truncate(r.Name, 28),
			truncate(r.Version, 16),
			FormatSize(r.SizeBytes),
			truncate(r.InstallPath, 40)))
	}

	return sb.String()
}

// RenderStats renders the aggregate line shown under the package table.
func RenderStats(stats collector.Stats) string {
	parts := make([]string, 0, len(stats.PerManager))
	for _, m := range manager.Managers {
		if n, ok := stats.PerManager[m]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d", m, n))
		}
	}
	return fmt.Sprintf("%d packages (%s) · %s",
		stats.TotalPackages, FormatSize(stats.TotalSizeBytes), strings.Join(parts, " · "))
}

// RenderAdvisories renders per-manager advisories, one warning line each.
func RenderAdvisories(advisories []collector.Advisory) string {
	var sb strings.Builder
	for _, a := range advisories {
		sb.WriteString(fmt.Sprintf("⚠ %s skipped: %s\n", a.Manager, a.Message))
	}
	return sb.String()
}

// RenderVerificationTable renders records with their stored statuses.
// statusFor maps identities that were never checked to unverified.
func RenderVerificationTable(records []manager.PackageRecord, statuses map[string]manager.VerificationStatus) string {
	if len(records) == 0 {
		return "No packages found.\n"
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-8s %-28s %-12s %s\n",
		"Manager", "Package", "Status", "Message"))
	sb.WriteString(strings.Repeat("─", 88))
	sb.WriteString("\n")

	for _, r := range records {
		status, ok := statuses[r.Identity().Key()]
		if !ok {
			status = manager.VerificationStatus{Status: manager.StatusUnverified, Message: "not verified yet"}
		}
		label := colorize(statusColor(status.Status), string(status.Status))
		sb.WriteString(fmt.Sprintf("%-8s %-28s %-12s %s\n",
			r.Manager,
			truncate(r.Name, 28),
			label,
			truncate(status.Message, 44)))
	}

	return sb.String()
}

// RenderConflictTable renders conflict findings grouped by severity.
func RenderConflictTable(findings []conflicts.Finding) string {
	if len(findings) == 0 {
		return "No conflicts detected.\n"
	}

	var sb strings.Builder
	for i, f := range findings {
		if i > 0 {
			sb.WriteString("\n")
		}
		badge := colorize(severityColor(f.Severity), strings.ToUpper(string(f.Severity)))
		sb.WriteString(fmt.Sprintf("[%s] %s\n", badge, f.Title))
		sb.WriteString(fmt.Sprintf("  %s\n", f.Description))
		if len(f.Packages) > 0 {
			ids := make([]string, len(f.Packages))
			for j, id := range f.Packages {
				ids[j] = id.Key()
			}
			sb.WriteString(fmt.Sprintf("  Packages: %s\n", strings.Join(ids, ", ")))
		}
		sb.WriteString(fmt.Sprintf("  Suggestion: %s\n", f.Suggestion))
	}

	return sb.String()
}

// RenderHistoryTable renders the uninstall history log, newest first.
func RenderHistoryTable(entries []state.HistoryEntry) string {
	if len(entries) == 0 {
		return "No uninstall history.\n"
	}

	sorted := make([]state.HistoryEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RemovedAt.After(sorted[j].RemovedAt)
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-8s %-28s %-16s %-10s %s\n",
		"Manager", "Package", "Version", "Source", "Removed"))
	sb.WriteString(strings.Repeat("─", 88))
	sb.WriteString("\n")

	for _, e := range sorted {
		sb.WriteString(fmt.Sprintf("%-8s %-28s %-16s %-10s %s\n",
			e.Manager,
			truncate(e.Name, 28),
			truncate(e.Version, 16),
			e.Source,
			humanize.Time(e.RemovedAt)))
	}

	return sb.String()
}

// FormatSize converts bytes to a human-readable size. Zero means the
// manager could not report a size.
func FormatSize(bytes int64) string {
	if bytes == 0 {
		return "—"
	}
	return humanize.IBytes(uint64(bytes))
}

// colorize wraps text in the given ANSI color code if color is enabled,
// otherwise returns the plain text.
func colorize(color, text string) string {
	if IsColorEnabled() {
		return color + text + colorReset
	}
	return text
}

// statusColor returns the ANSI color for a verification status.
func statusColor(s manager.Status) string {
	switch s {
	case manager.StatusVerified:
		return colorGreen
	case manager.StatusFailed:
		return colorRed
	case manager.StatusUnknown:
		return colorYellow
	default:
		return colorGray
	}
}

// severityColor returns the ANSI color for a conflict severity.
func severityColor(s conflicts.Severity) string {
	switch s {
	case conflicts.SeverityHigh:
		return colorRed
	case conflicts.SeverityMedium:
		return colorYellow
	default:
		return colorGreen
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
