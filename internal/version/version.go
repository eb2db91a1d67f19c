// Package version exposes the build identity stamped in via ldflags.
package version

// Defaults apply to plain `go build`; release builds overwrite all three.
//
//nolint:revive // set by the linker, not by code.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
