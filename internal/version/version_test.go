package version_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rotationalio/oscar/internal/version"
)

func TestVersion(t *testing.T) {
	tests := []struct {
		name         string
		releaseLevel string
		releaseNum   string
		commit       string
		want         string
	}{
		{name: "plain", want: "0.1.0"},
		{name: "release level", releaseLevel: "beta", releaseNum: "2", want: "0.1.0-beta.2"},
		{name: "release level without number", releaseLevel: "rc", want: "0.1.0-rc"},
		{name: "with commit", commit: "abc1234", want: "0.1.0 (abc1234)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version.ReleaseLevel = tt.releaseLevel
			version.ReleaseNum = tt.releaseNum
			version.GitCommit = tt.commit
			defer func() {
				version.ReleaseLevel, version.ReleaseNum, version.GitCommit = "", "", ""
			}()

			assert.Equal(t, tt.want, version.Version())
			assert.Equal(t, "0.1.0", version.Short())
		})
	}
}
