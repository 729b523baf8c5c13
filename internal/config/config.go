// Package config loads runtime settings and the static project registry.
//
// Settings come from an optional YAML file with environment-variable
// overrides; secrets (Slack tokens) are environment-only. The registry is a
// CUE file validated against an embedded schema before use.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds the process-level runtime configuration.
type Settings struct {
	AppName     string `yaml:"app_name"`
	Environment string `yaml:"environment"`
	DBPath      string `yaml:"db_path"`
	ListenAddr  string `yaml:"listen_addr"`

	// PermalinkTimeout bounds the external permalink lookup. The lookup
	// degrades to a local fallback URL, so this never blocks ingestion for
	// long.
	PermalinkTimeout time.Duration `yaml:"permalink_timeout"`

	// Environment-only secrets.
	SlackBotToken      string `yaml:"-"`
	SlackSigningSecret string `yaml:"-"`
}

// Defaults applied before the file and environment are consulted.
func defaultSettings() Settings {
	return Settings{
		AppName:          "dendrite",
		Environment:      "development",
		DBPath:           "dendrite.db",
		ListenAddr:       ":8080",
		PermalinkTimeout: 3 * time.Second,
	}
}

// LoadSettings reads settings from the YAML file at path (skipped when path
// is empty or the file does not exist), then applies environment overrides:
// APP_NAME, ENVIRONMENT, DENDRITE_DB, DENDRITE_ADDR, SLACK_BOT_TOKEN,
// SLACK_SIGNING_SECRET.
//
// Secrets are not validated here; RequireSlackSecrets gates the paths that
// actually need them so that offline commands work without tokens.
func LoadSettings(path string) (Settings, error) {
	s := defaultSettings()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Optional file; fall through to env.
		case err != nil:
			return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &s); err != nil {
				return Settings{}, fmt.Errorf("parse settings file %s: %w", path, err)
			}
		}
	}

	applyEnv(&s.AppName, "APP_NAME")
	applyEnv(&s.Environment, "ENVIRONMENT")
	applyEnv(&s.DBPath, "DENDRITE_DB")
	applyEnv(&s.ListenAddr, "DENDRITE_ADDR")
	applyEnv(&s.SlackBotToken, "SLACK_BOT_TOKEN")
	applyEnv(&s.SlackSigningSecret, "SLACK_SIGNING_SECRET")

	if s.AppName == "" {
		s.AppName = "dendrite"
	}
	if s.PermalinkTimeout <= 0 {
		s.PermalinkTimeout = 3 * time.Second
	}

	return s, nil
}

// RequireSlackSecrets fails when the Slack credentials needed by the serve
// path are missing.
func (s Settings) RequireSlackSecrets() error {
	var missing []string
	if s.SlackBotToken == "" {
		missing = append(missing, "SLACK_BOT_TOKEN")
	}
	if s.SlackSigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

func applyEnv(dst *string, name string) {
	if value := strings.TrimSpace(os.Getenv(name)); value != "" {
		*dst = value
	}
}
