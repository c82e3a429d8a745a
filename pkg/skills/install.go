package skills

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// InstallResult reports where a skill was written.
type InstallResult struct {
	Path string
	// Updated is true when an existing SKILL.md was replaced.
	Updated bool
	// Unchanged is true when the installed copy already matched.
	Unchanged bool
}

// Install writes skill to <dir>/<name>/SKILL.md.
func Install(skill *Skill, dir string) (*InstallResult, error) {
	if skill == nil || skill.Name == "" {
		return nil, errors.New("skill has no name")
	}

	skillDir := filepath.Join(dir, skill.Name)
	path := filepath.Join(skillDir, skillFileName)
	result := &InstallResult{Path: path}

	existing, err := os.ReadFile(path)
	switch {
	case err == nil:
		if bytes.Equal(existing, skill.Raw) {
			result.Unchanged = true
			return result, nil
		}
		result.Updated = true
	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}

	if err := os.MkdirAll(skillDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", skillDir)
	}
	if err := os.WriteFile(path, skill.Raw, 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", path)
	}
	return result, nil
}

// InstallDir returns the global skills directory when global is set and the
// repo-local one otherwise.
func InstallDir(global bool) (string, error) {
	if global {
		return GlobalSkillsDir()
	}
	return LocalSkillsDir, nil
}
