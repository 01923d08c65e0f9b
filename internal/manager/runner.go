package manager

import (
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"time"
)

// DefaultCommandTimeout bounds individual manager subprocess calls so a hung
// external tool cannot stall a whole batch.
const DefaultCommandTimeout = 60 * time.Second

// Runner executes manager subprocesses with a bounded timeout.
type Runner struct {
	timeout time.Duration
}

// NewRunner creates a Runner. A zero timeout falls back to the default.
func NewRunner(timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Runner{timeout: timeout}
}

// Run executes the command and returns its stdout. On a non-zero exit the
// error includes captured stderr. A timeout is reported as a plain error so
// callers treat it as an adapter failure.
func (r *Runner) Run(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("%s timed out after %s", name, r.timeout)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return string(output), fmt.Errorf("%s failed: %w (stderr: %s)", name, err, string(exitErr.Stderr))
		}
		return "", fmt.Errorf("%s failed: %w", name, err)
	}

	return string(output), nil
}

// Combined executes the command and returns stdout and stderr interleaved.
// Used for verification probes whose diagnostics go to either stream.
func (r *Runner) Combined(ctx context.Context, name string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("%s timed out after %s", name, r.timeout)
	}
	return string(output), err
}

// toolExists reports whether a command is available in PATH.
func toolExists(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// dirSize walks a directory and sums file sizes. Best-effort: unreadable
// entries are skipped and a missing path reports zero.
func dirSize(path string) int64 {
	if path == "" {
		return 0
	}

	var total int64
	filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error { //nolint:errcheck
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}
