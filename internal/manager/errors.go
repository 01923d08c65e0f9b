package manager

import "fmt"

// ToolMissingError indicates the manager's command-line tool is not installed.
// The collector degrades that manager to zero records and surfaces an advisory.
type ToolMissingError struct {
	Manager Manager
	Tool    string
}

func (e *ToolMissingError) Error() string {
	return fmt.Sprintf("%s: %s not found in PATH", e.Manager, e.Tool)
}

// ParseError indicates a manager produced output in an unexpected format.
type ParseError struct {
	Manager Manager
	Source  string // command whose output failed to parse
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: cannot parse output of %q: %v", e.Manager, e.Source, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
