// Package version reports the build version of the Oscar service.
package version

import (
	"fmt"
	"strings"
)

// Version components. Override at build time with:
//
//	go build -ldflags "-X github.com/rotationalio/oscar/internal/version.Major=1 \
//	    -X github.com/rotationalio/oscar/internal/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	Major        = "0"
	Minor        = "1"
	Patch        = "0"
	ReleaseLevel = ""
	ReleaseNum   = ""
	GitCommit    = ""
)

// Short returns the semantic version without release level or commit (e.g. "0.1.0").
func Short() string {
	return fmt.Sprintf("%s.%s.%s", Major, Minor, Patch)
}

// Version returns the full version string including release level and commit
// when they are set (e.g. "0.1.0-beta.2 (abc1234)").
func Version() string {
	var b strings.Builder
	b.WriteString(Short())
	if ReleaseLevel != "" {
		b.WriteString("-" + ReleaseLevel)
		if ReleaseNum != "" {
			b.WriteString("." + ReleaseNum)
		}
	}
	if GitCommit != "" {
		b.WriteString(" (" + GitCommit + ")")
	}
	return b.String()
}
