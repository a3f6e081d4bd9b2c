// Package version holds build metadata injected with -ldflags, e.g.
//
//	-X github.com/banshee-data/lanepilot/internal/version.Version=v0.3.0
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for -version output.
func String(binary string) string {
	return fmt.Sprintf("%s %s (git %s, built %s, %s)", binary, Version, GitSHA, BuildTime, runtime.Version())
}
