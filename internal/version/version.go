// Package version holds the build version of lsgw.
package version

import "runtime/debug"

// Overridden at build time:
// go build -ldflags "-X lsgw/internal/version.Version=1.0.0 -X lsgw/internal/version.Commit=abc123"
var (
	// Version is the semantic version of lsgw
	Version = "0.4.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Info returns the version with a short commit suffix when known. It is
// also what backends see as the client version.
func Info() string {
	commit := Commit
	if commit == "unknown" {
		commit = vcsRevision()
	}
	if commit != "unknown" && len(commit) > 7 {
		return Version + " (" + commit[:7] + ")"
	}
	return Version
}

// Full returns complete version information
func Full() string {
	return "lsgw version " + Version + "\n" +
		"Commit: " + Commit + "\n" +
		"Built: " + BuildDate
}

// vcsRevision reads the revision the go tool stamped into the binary.
func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return s.Value
		}
	}
	return "unknown"
}
