// Package version carries build metadata, set with -ldflags "-X" at build
// time.
package version

import "fmt"

var (
	Version   = "dev"
	GitSHA    = "unknown"
	BuildTime = "unknown"
)

// String formats the build metadata for the version subcommand.
func String() string {
	return fmt.Sprintf("drowsiness %s (%s, built %s)", Version, GitSHA, BuildTime)
}
