package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/config"
	"github.com/jingkaihe/skillkit/pkg/skillerr"
	"github.com/jingkaihe/skillkit/pkg/version"
)

const testDoc = `---
name: demo
description: Demo skill for tests
---

# Demo

Run ` + "`demo hello`" + `.
`

func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SKILLKIT_LOG_LEVEL", "")
	t.Setenv("SKILLKIT_LOG_FORMAT", "")
	t.Setenv("ANKI_PROFILE", "")
	t.Setenv("NO_COLOR", "1")
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func newTestRoot(run func(cmd *cobra.Command) error) *cobra.Command {
	root := NewRootCommand("demo", "Demo skill")
	root.AddCommand(&cobra.Command{
		Use: "hello",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	})
	root.AddCommand(NewSkillCommand([]byte(testDoc)))
	root.AddCommand(NewVersionCommand("demo"))
	return root
}

func run(t *testing.T, root *cobra.Command, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), root, args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestExecute_ConfigInContext(t *testing.T) {
	isolate(t)
	t.Setenv("ANKI_PROFILE", "Work")

	var got *config.Config
	root := newTestRoot(func(cmd *cobra.Command) error {
		got = ConfigFrom(cmd.Context())
		Linef(cmd, "hello %s", got.Anki.Profile)
		return nil
	})

	code, out, errOut := run(t, root, "hello", "--log-level", "debug")
	assert.Equal(t, 0, code)
	assert.Equal(t, "hello Work\n", out)
	assert.Empty(t, errOut)
	require.NotNil(t, got)
	assert.Equal(t, "debug", got.LogLevel)
}

func TestExecute_ErrorIsOneLine(t *testing.T) {
	isolate(t)

	root := newTestRoot(func(*cobra.Command) error {
		return skillerr.NotFound("Deck not found: Spanish\nUse list-decks")
	})

	code, out, errOut := run(t, root, "hello")
	assert.Equal(t, 1, code)
	assert.Empty(t, out)
	assert.Equal(t, "[ERROR] Deck not found: Spanish Use list-decks\n", errOut)
}

func TestExecute_InvalidLogLevel(t *testing.T) {
	isolate(t)

	root := newTestRoot(func(*cobra.Command) error { return errors.New("not reached") })
	code, _, errOut := run(t, root, "hello", "--log-level", "loud")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "invalid log level")
}

func TestExecute_MissingConfigFile(t *testing.T) {
	isolate(t)

	root := newTestRoot(func(*cobra.Command) error { return nil })
	code, _, errOut := run(t, root, "hello", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "failed to read config file")
}

func TestConfigFrom_Default(t *testing.T) {
	isolate(t)

	cfg := ConfigFrom(context.Background())
	require.NotNil(t, cfg)
	assert.Equal(t, "User 1", cfg.Anki.Profile)
}

func TestSkillCommand_Print(t *testing.T) {
	isolate(t)

	code, out, _ := run(t, newTestRoot(nil), "skill")
	assert.Equal(t, 0, code)
	assert.Equal(t, testDoc, out)
}

func TestSkillCommand_Install(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	code, out, errOut := run(t, newTestRoot(nil), "skill", "install", "--dir", dir)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "Installed skill 'demo'")

	installed, err := os.ReadFile(filepath.Join(dir, "demo", "SKILL.md"))
	require.NoError(t, err)
	assert.Equal(t, testDoc, string(installed))

	code, out, _ = run(t, newTestRoot(nil), "skill", "install", "--dir", dir)
	require.Equal(t, 0, code)
	assert.Contains(t, out, "already up to date")
}

func TestSkillCommand_InstallLocalAndGlobal(t *testing.T) {
	home := isolate(t)

	code, _, errOut := run(t, newTestRoot(nil), "skill", "install")
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, filepath.Join(".claude", "skills", "demo", "SKILL.md"))

	code, _, errOut = run(t, newTestRoot(nil), "skill", "install", "-g")
	require.Equal(t, 0, code, errOut)
	assert.FileExists(t, filepath.Join(home, ".claude", "skills", "demo", "SKILL.md"))

	code, out, _ := run(t, newTestRoot(nil), "skill", "list")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "demo")
	assert.Contains(t, out, "Demo skill for tests")
}

func TestSkillCommand_ListEmpty(t *testing.T) {
	isolate(t)

	code, out, _ := run(t, newTestRoot(nil), "skill", "list")
	assert.Equal(t, 0, code)
	assert.Equal(t, "No skills installed\n", out)
}

func TestVersionCommand(t *testing.T) {
	isolate(t)

	code, out, _ := run(t, newTestRoot(nil), "version")
	require.Equal(t, 0, code)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "demo", info.Skill)
	assert.Equal(t, version.Version, info.Version)
}
