package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no config path is given.
const DefaultPath = "config.yaml"

const envPrefix = "INBOX_"

type Config struct {
	Server       ServerConfig    `koanf:"server"`
	Storage      StorageConfig   `koanf:"storage"`
	Telemetry    TelemetryConfig `koanf:"telemetry"`
	DefaultInbox string          `koanf:"default_inbox"`
	Inboxes      []InboxConfig   `koanf:"inboxes"`
}

type ServerConfig struct {
	Port           int           `koanf:"port"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// InboxConfig describes one remote agent deployment.
type InboxConfig struct {
	ID              string   `koanf:"id"`
	Name            string   `koanf:"name"`
	DeploymentURL   string   `koanf:"deployment_url"`
	GraphID         string   `koanf:"graph_id"`
	APIKey          string   `koanf:"api_key"`
	RequiredSecrets []string `koanf:"required_secrets"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads the YAML file at path, then INBOX_ prefixed environment
// variables on top of it. A double underscore separates levels, so
// INBOX_SERVER__PORT sets server.port. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	defaults := map[string]any{
		"server.port":            8080,
		"server.request_timeout": "60s",
		"storage.type":           "sqlite",
		"storage.sqlite.path":    "inbox.db",
		"telemetry.service_name": "agent-inbox",
	}
	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	for i := range cfg.Inboxes {
		cfg.Inboxes[i].APIKey = substituteEnvVars(cfg.Inboxes[i].APIKey)
		cfg.Inboxes[i].DeploymentURL = substituteEnvVars(cfg.Inboxes[i].DeploymentURL)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the inbox list for missing and duplicate fields.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Inboxes))
	for i, ib := range c.Inboxes {
		if ib.ID == "" {
			return fmt.Errorf("inboxes[%d]: id is required", i)
		}
		if seen[ib.ID] {
			return fmt.Errorf("inboxes[%d]: duplicate id %q", i, ib.ID)
		}
		seen[ib.ID] = true
		if ib.DeploymentURL == "" {
			return fmt.Errorf("inbox %s: deployment_url is required", ib.ID)
		}
	}
	if c.DefaultInbox != "" && !seen[c.DefaultInbox] {
		return fmt.Errorf("default_inbox %q is not configured", c.DefaultInbox)
	}
	switch c.Storage.Type {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown storage type %q", c.Storage.Type)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
