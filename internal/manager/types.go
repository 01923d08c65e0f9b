package manager

import (
	"context"
	"fmt"
	"time"
)

// Manager identifies a supported package manager.
type Manager string

const (
	Pip  Manager = "pip"
	Brew Manager = "brew"
	Npm  Manager = "npm"
)

// Managers lists all supported managers in collection order.
var Managers = []Manager{Pip, Brew, Npm}

// ParseManager converts a string to a Manager, validating it.
func ParseManager(s string) (Manager, error) {
	switch Manager(s) {
	case Pip, Brew, Npm:
		return Manager(s), nil
	}
	return "", fmt.Errorf("unknown manager %q (expected pip, brew, or npm)", s)
}

// PackageRecord is one installed package as reported by a manager.
// Records are rebuilt fresh on every collection pass.
type PackageRecord struct {
	Manager     Manager `json:"manager"`
	Name        string  `json:"name"`
	Version     string  `json:"version"`
	SizeBytes   int64   `json:"size_bytes"`
	InstallPath string  `json:"install_path"`
	Source      string  `json:"source"` // command that produced the record
}

// Identity returns the record's (manager, name) identity.
func (r PackageRecord) Identity() Identity {
	return Identity{Manager: r.Manager, Name: r.Name}
}

// Identity uniquely identifies a package within a collection pass.
// The same name under two managers is two distinct identities.
type Identity struct {
	Manager Manager `json:"manager"`
	Name    string  `json:"name"`
}

// Key returns the identity's persistence key, "<manager>/<name>".
func (id Identity) Key() string {
	return string(id.Manager) + "/" + id.Name
}

func (id Identity) String() string {
	return id.Key()
}

// Status is the outcome of a verification check.
type Status string

const (
	StatusVerified   Status = "verified"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
	StatusUnverified Status = "unverified" // never checked
)

// VerificationStatus is the latest verification result for one identity.
// Re-verification overwrites it; no history of checks is kept.
type VerificationStatus struct {
	Status    Status    `json:"status"`
	Message   string    `json:"message"`
	CheckedAt time.Time `json:"checked_at"`
}

// Adapter wraps one package manager's command-line tool.
//
// List fails with *ToolMissingError when the tool is absent and *ParseError
// when its output is unusable; individual malformed entries are skipped, not
// fatal. Verify is fail-soft: it always returns a status (unknown with an
// explanatory message when the check itself cannot run), never an error.
type Adapter interface {
	Manager() Manager
	Detect() bool
	List(ctx context.Context) ([]PackageRecord, error)
	Verify(ctx context.Context, rec PackageRecord) VerificationStatus
	Uninstall(ctx context.Context, name string) error
}
