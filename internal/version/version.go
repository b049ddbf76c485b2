// Package version carries build metadata injected via -ldflags.
package version

var (
	// Version is the semantic version of the dealwatch binary.
	Version = "dev"
	// Commit is the git commit hash of the build.
	Commit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
