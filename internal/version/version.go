package version

import "runtime"

// Set at build time via -ldflags "-X github.com/tokligence/chatrelay/internal/version.Version=...".
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// Info returns the version string reported by /health.
func Info() string {
	return Version
}

// FullInfo returns complete build information on one line.
func FullInfo() string {
	return "chatrelay version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt + " go=" + runtime.Version()
}

// LogAttrs returns the build information as slog key/value pairs.
func LogAttrs() []any {
	return []any{"version", Version, "commit", Commit, "built_at", BuiltAt}
}
