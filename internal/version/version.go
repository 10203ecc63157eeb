package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the release of the generator. It can be overridden via ldflags.
	Version = "0.1.0"
	// Commit is the short git SHA embedded at build time (or "none").
	Commit = "none"
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = "unknown"
)

const (
	// unknownCommit is the value of Commit when no SHA was injected.
	unknownCommit = "none"
	// shortRevisionLength is the length of a revision taken from build info.
	shortRevisionLength = 7
)

// Short returns only the semantic version string.
func Short() string {
	return Version
}

// Revision returns Commit, or the revision recorded by the Go toolchain
// when the binary was built without ldflags.
func Revision() string {
	if Commit != "" && Commit != unknownCommit {
		return Commit
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknownCommit
	}

	return revisionFromSettings(info.Settings)
}

// revisionFromSettings extracts a short vcs.revision, marking modified trees as dirty.
func revisionFromSettings(settings []debug.BuildSetting) string {
	var (
		revision string
		modified bool
	)

	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value == "true"
		}
	}

	if revision == "" {
		return unknownCommit
	}

	if len(revision) > shortRevisionLength {
		revision = revision[:shortRevisionLength]
	}

	if modified {
		revision += "-dirty"
	}

	return revision
}

// Full returns the version line printed by the version command.
func Full() string {
	return fmt.Sprintf("addons-generator %s (commit: %s, built at: %s, %s/%s)",
		Version, Revision(), BuildTime, runtime.GOOS, runtime.GOARCH)
}
