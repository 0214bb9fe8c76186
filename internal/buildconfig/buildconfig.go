// Package buildconfig exposes values stamped in at link time, e.g.
//
//	go build -ldflags "-X github.com/Harshitk-cp/havi-knowledge/internal/buildconfig.version=v1.2.0"
package buildconfig

import "fmt"

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionString is the one-line form printed by the version command.
func VersionString() string {
	return fmt.Sprintf("havi-knowledge %s (commit: %s, built: %s)", version, commit, buildDate)
}

func VersionInfo() map[string]string {
	return map[string]string{
		"version":    version,
		"commit":     commit,
		"build_date": buildDate,
	}
}
