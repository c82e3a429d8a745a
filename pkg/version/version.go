// Package version reports build information for the skill binaries.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	// Version is the skillkit release, set with -ldflags at build time
	Version = "dev"

	// GitCommit is the git commit SHA that was built
	GitCommit = "unknown"

	// BuildTime is the time the binary was built
	BuildTime = "unknown"
)

// Info represents version information
type Info struct {
	Skill     string `json:"skill,omitempty"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// For returns the version information labelled with a skill name
func For(skill string) Info {
	info := Get()
	info.Skill = skill
	return info
}

// String returns the string representation of version info
func (i Info) String() string {
	s := fmt.Sprintf("Version: %s, GitCommit: %s, BuildTime: %s, GoVersion: %s", i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
	if i.Skill != "" {
		s = "Skill: " + i.Skill + ", " + s
	}
	return s
}

// JSON returns the JSON representation of version info
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
