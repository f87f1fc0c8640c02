// Package buildconfig carries version metadata injected at link time.
package buildconfig

import "fmt"

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func Version() string { return version }

func Commit() string { return commit }

func Date() string { return date }

// Short returns a one-line version string for logs and --version.
func Short() string {
	return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
}
