// Package version holds gridtech build metadata injected via ldflags:
//
//	-X github.com/gridtech/portfolio/internal/version.Version=v1.2.0
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders "<version> (<commit>, built <date>)".
func String() string {
	return fmt.Sprintf("%s (%s, built %s)", Version, Commit, Date)
}
