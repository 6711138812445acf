// Package config loads the ALS settings from YAML with ALS_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/coffersTech/als/internal/printer"
	"github.com/coffersTech/als/internal/session"
)

const (
	MinListEntries     = 5
	MinParseSizeMiB    = 1
	MinFileAgeDays     = 1
	MinRefreshInterval = 10 * time.Millisecond
)

// Config is the complete ALS configuration.
type Config struct {
	LogDir      string `yaml:"log_dir"`
	ProjectName string `yaml:"project_name"`

	EnableFileLog             bool           `yaml:"enable_file_log"`
	CreateSessionOnlyIfLogged bool           `yaml:"create_session_only_if_logged"`
	SessionIDFormat           session.Format `yaml:"session_id_format"`
	ShowCallerName            bool           `yaml:"show_caller_name"`
	UniqueTaskMessages        bool           `yaml:"unique_task_messages"`
	UniqueInspectorMessages   bool           `yaml:"unique_inspector_messages"`

	MaxListEntries   int  `yaml:"max_list_entries"`
	MaxParseSizeMiB  int  `yaml:"max_parse_size_mib"`
	MaxFileAgeDays   int  `yaml:"max_file_age_days"`
	IncludeArchived  bool `yaml:"include_archived"`
	CompressArchives bool `yaml:"compress_archives"`

	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// Presets overrides printer presets by name, e.g. "PrintWarn".
	Presets map[string]printer.Config `yaml:"presets,omitempty"`

	Server ServerConfig `yaml:"server"`
}

// ServerConfig configures the viewer HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	User string `yaml:"user"`
	// PasswordHash is a bcrypt hash. Empty disables authentication.
	PasswordHash string `yaml:"password_hash"`
}

// Default returns the stock settings.
func Default() *Config {
	return &Config{
		LogDir:                  filepath.Join("Saved", "Logs", "ALS"),
		ProjectName:             "ALS",
		EnableFileLog:           true,
		SessionIDFormat:         session.FormatTime,
		UniqueTaskMessages:      true,
		UniqueInspectorMessages: true,
		MaxListEntries:          2000,
		MaxParseSizeMiB:         10,
		MaxFileAgeDays:          3,
		RefreshInterval:         100 * time.Millisecond,
		Server: ServerConfig{
			Addr: ":8089",
			User: "als",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	c.LogDir = getEnv("ALS_LOG_DIR", c.LogDir)
	c.ProjectName = getEnv("ALS_PROJECT", c.ProjectName)
	c.SessionIDFormat = session.Format(getEnv("ALS_SESSION_ID_FORMAT", string(c.SessionIDFormat)))
	c.Server.Addr = getEnv("ALS_SERVER_ADDR", c.Server.Addr)
	c.Server.User = getEnv("ALS_SERVER_USER", c.Server.User)
	c.Server.PasswordHash = getEnv("ALS_PASSWORD_HASH", c.Server.PasswordHash)

	var err error
	if c.EnableFileLog, err = getBool("ALS_ENABLE_FILE_LOG", c.EnableFileLog); err != nil {
		return err
	}
	if c.IncludeArchived, err = getBool("ALS_INCLUDE_ARCHIVED", c.IncludeArchived); err != nil {
		return err
	}
	if c.MaxListEntries, err = getInt("ALS_MAX_LIST_ENTRIES", c.MaxListEntries); err != nil {
		return err
	}
	if c.MaxParseSizeMiB, err = getInt("ALS_MAX_PARSE_SIZE_MIB", c.MaxParseSizeMiB); err != nil {
		return err
	}
	if c.MaxFileAgeDays, err = getInt("ALS_MAX_FILE_AGE_DAYS", c.MaxFileAgeDays); err != nil {
		return err
	}
	return nil
}

// Validate clamps numeric settings to their minimums and rejects invalid values.
func (c *Config) Validate() error {
	c.MaxListEntries = max(c.MaxListEntries, MinListEntries)
	c.MaxParseSizeMiB = max(c.MaxParseSizeMiB, MinParseSizeMiB)
	c.MaxFileAgeDays = max(c.MaxFileAgeDays, MinFileAgeDays)
	c.RefreshInterval = max(c.RefreshInterval, MinRefreshInterval)

	if c.LogDir == "" {
		return errors.New("log_dir must not be empty")
	}
	switch c.SessionIDFormat {
	case session.FormatTime, session.FormatUUID:
	default:
		return fmt.Errorf("invalid session_id_format %q (valid: time, uuid)", c.SessionIDFormat)
	}
	if _, err := c.PrinterPresets(); err != nil {
		return err
	}
	if c.Server.PasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Server.PasswordHash)); err != nil {
			return fmt.Errorf("invalid server.password_hash: %w", err)
		}
	}
	return nil
}

// PrinterPresets converts the named preset overrides.
func (c *Config) PrinterPresets() (map[printer.Preset]printer.Config, error) {
	out := make(map[printer.Preset]printer.Config, len(c.Presets))
	for name, cfg := range c.Presets {
		var p printer.Preset
		if err := p.UnmarshalText([]byte(name)); err != nil {
			return nil, err
		}
		out[p] = cfg
	}
	return out, nil
}

// HashPassword returns a bcrypt hash suitable for server.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getInt(key string, fallback int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}
