// Package version reports build metadata stamped via -ldflags.
package version

import (
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String renders a one-line build description.
func String() string {
	return "parla " + resolvedVersion() + " (commit=" + Commit + ", date=" + Date + ", go=" + runtime.Version() + ")"
}

// resolvedVersion falls back to module build info for `go install` builds.
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return Version
	}
	return info.Main.Version
}
