package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// isolate points HOME at an empty directory and clears every variable the
// loader reads.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range envBindings {
		t.Setenv(env, "")
	}
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return home
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "fmt", cfg.LogFormat)
	assert.Equal(t, "User 1", cfg.Anki.Profile)
	assert.Empty(t, cfg.Anki.CollectionPath)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "5432", cfg.Postgres.Port)
	assert.Equal(t, "disable", cfg.Postgres.SSLMode)
	assert.Empty(t, cfg.Slack.WebhookURL)
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("ANKI_COLLECTION_PATH", "/data/collection.anki2")
	t.Setenv("ANKI_PROFILE", "Work")
	t.Setenv("POSTGRES_URL", "postgres://u:p@db/app")
	t.Setenv("POSTGRES_PORT", "6543")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-1")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/X")
	t.Setenv("SKILLKIT_LOG_LEVEL", "debug")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, "/data/collection.anki2", cfg.Anki.CollectionPath)
	assert.Equal(t, "Work", cfg.Anki.Profile)
	assert.Equal(t, "postgres://u:p@db/app", cfg.Postgres.URL)
	assert.Equal(t, "6543", cfg.Postgres.Port)
	assert.Equal(t, "xoxb-1", cfg.Slack.BotToken)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", cfg.Slack.WebhookURL)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_FilePrecedence(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".skillkit")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
log_level: warn
anki:
  profile: FromFile
postgres:
  host: db.internal
  port: 5433
  db: app
`), 0o644))
	t.Setenv("POSTGRES_HOST", "env-host")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "", "")
	require.NoError(t, flags.Parse([]string{"--log-level", "error"}))

	v := viper.New()
	require.NoError(t, v.BindPFlag("log_level", flags.Lookup("log-level")))

	cfg, err := Load(v, "")
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel, "flag beats file")
	assert.Equal(t, "env-host", cfg.Postgres.Host, "env beats file")
	assert.Equal(t, "5433", cfg.Postgres.Port)
	assert.Equal(t, "app", cfg.Postgres.Database)
	assert.Equal(t, "FromFile", cfg.Anki.Profile)
}

func TestLoad_ExplicitFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "skills.yaml")
	require.NoError(t, os.WriteFile(path, []byte("slack:\n  bot_token: xoxb-file\n"), 0o644))

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-file", cfg.Slack.BotToken)

	_, err = Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindConfiguration))
}

func TestLoad_InvalidFile(t *testing.T) {
	isolate(t)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("anki: [unclosed\n"), 0o644))

	_, err := Load(viper.New(), path)
	require.Error(t, err)
	assert.True(t, skillerr.Is(err, skillerr.KindConfiguration))
}

func TestDefault(t *testing.T) {
	isolate(t)
	t.Setenv("SLACK_API_URL", "http://127.0.0.1:9/api/")

	cfg := Default()
	assert.Equal(t, "User 1", cfg.Anki.Profile)
	assert.Equal(t, "http://127.0.0.1:9/api/", cfg.Slack.APIURL)
}
