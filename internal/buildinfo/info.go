// Package buildinfo holds version details stamped in with -ldflags.
package buildinfo

import "fmt"

// Set with -ldflags "-X github.com/banksync/banksync/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String formats the version line printed by --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date)
}
