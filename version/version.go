// Package version defines aws-quicksight-tester version.
package version

import (
	"fmt"
	"time"
)

var (
	// GitCommit is the git commit on build.
	GitCommit = ""
	// ReleaseVersion is the release version.
	ReleaseVersion = ""
	// BuildTime is the build timestamp.
	BuildTime = ""
)

func init() {
	now := time.Now()
	if ReleaseVersion == "" {
		ReleaseVersion = fmt.Sprintf(
			"%d%02d%02d%02d%02d",
			now.Year(),
			int(now.Month()),
			now.Day(),
			now.Hour(),
			now.Minute(),
		)
	}
	if BuildTime == "" {
		BuildTime = now.String()
	}
}

// Version returns the version string for CLI output.
func Version() string {
	return fmt.Sprintf(
		"release-version: %s, git-commit: %s, build-time: %s",
		ReleaseVersion,
		GitCommit,
		BuildTime,
	)
}
