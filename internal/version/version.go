// Package version carries the build identity stamped into the sweeper
// binary via -ldflags.
package version

var (
	// Version is the release tag, "0.1.0-dev" until a tagged build sets it.
	Version = "0.1.0-dev"
	// Commit is the short git hash of the build.
	Commit = "unknown"
	// BuildDate is when the binary was produced, RFC3339.
	BuildDate = "unknown"
)
