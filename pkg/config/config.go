// Package config loads skill settings from flags, environment variables and
// an optional YAML file using viper.
package config

import (
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/jingkaihe/skillkit/pkg/skillerr"
)

// Config holds the settings shared by every skill binary.
type Config struct {
	LogLevel  string         `mapstructure:"log_level"`
	LogFormat string         `mapstructure:"log_format"`
	Anki      AnkiConfig     `mapstructure:"anki"`
	Postgres  PostgresConfig `mapstructure:"postgres"`
	Slack     SlackConfig    `mapstructure:"slack"`
}

// AnkiConfig locates the Anki collection.
type AnkiConfig struct {
	CollectionPath string `mapstructure:"collection_path"`
	Profile        string `mapstructure:"profile"`
}

// PostgresConfig describes the database connection of the SQL skill.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Database string `mapstructure:"db"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// SlackConfig holds the Slack credentials.
type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	BotToken   string `mapstructure:"bot_token"`
	// APIURL overrides the Web API base URL.
	APIURL string `mapstructure:"api_url"`
}

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"log_level":            "SKILLKIT_LOG_LEVEL",
	"log_format":           "SKILLKIT_LOG_FORMAT",
	"anki.collection_path": "ANKI_COLLECTION_PATH",
	"anki.profile":         "ANKI_PROFILE",
	"postgres.url":         "POSTGRES_URL",
	"postgres.host":        "POSTGRES_HOST",
	"postgres.port":        "POSTGRES_PORT",
	"postgres.db":          "POSTGRES_DB",
	"postgres.user":        "POSTGRES_USER",
	"postgres.password":    "POSTGRES_PASSWORD",
	"postgres.sslmode":     "POSTGRES_SSLMODE",
	"slack.webhook_url":    "SLACK_WEBHOOK_URL",
	"slack.bot_token":      "SLACK_BOT_TOKEN",
	"slack.api_url":        "SLACK_API_URL",
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "fmt")
	v.SetDefault("anki.profile", "User 1")
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", "5432")
	v.SetDefault("postgres.sslmode", "disable")
}

// Load reads configuration into a Config. Flags must already be bound to v.
// An explicit configFile has to exist; otherwise config.yaml is looked up in
// $HOME/.skillkit and the working directory and skipped when absent.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, skillerr.Configuration("failed to read config file %s: %v", configFile, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.skillkit")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, skillerr.Configuration("failed to read config file %s: %v", v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, skillerr.Configuration("invalid configuration: %v", err)
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) error {
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return errors.Wrapf(err, "failed to bind %s", env)
		}
	}
	return nil
}

// Default returns the configuration produced by defaults and the
// environment alone, without reading any file.
func Default() *Config {
	v := viper.New()
	SetDefaults(v)
	_ = bindEnv(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}
