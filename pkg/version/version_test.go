package version

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixed = Info{
	Version:   "0.3.0",
	GitCommit: "9f1c2ab",
	BuildTime: "2025-09-01T10:00:00Z",
	GoVersion: "go1.25.1",
}

func TestGet(t *testing.T) {
	info := Get()
	assert.Equal(t, Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}, info)
}

func TestInfo_String(t *testing.T) {
	assert.Equal(t, "Version: 0.3.0, GitCommit: 9f1c2ab, BuildTime: 2025-09-01T10:00:00Z, GoVersion: go1.25.1", fixed.String())

	withSkill := fixed
	withSkill.Skill = "postgres"
	assert.Equal(t, "Skill: postgres, Version: 0.3.0, GitCommit: 9f1c2ab, BuildTime: 2025-09-01T10:00:00Z, GoVersion: go1.25.1", withSkill.String())
}

func TestInfo_JSON(t *testing.T) {
	out, err := fixed.JSON()
	require.NoError(t, err)
	assert.Equal(t, `{
  "version": "0.3.0",
  "gitCommit": "9f1c2ab",
  "buildTime": "2025-09-01T10:00:00Z",
  "goVersion": "go1.25.1"
}`, out)
}

func TestFor(t *testing.T) {
	info := For("slack-notify")
	assert.Equal(t, "slack-notify", info.Skill)
	assert.Equal(t, Version, info.Version)

	out, err := info.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, "{\n  \"skill\": \"slack-notify\",\n  \"version\": ")
}
