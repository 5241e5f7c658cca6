// Package config provides YAML-based configuration loading for Rentbell.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level Rentbell configuration, loaded from rentbell.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	WhatsApp WhatsAppConfig `yaml:"whatsapp"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Database DatabaseConfig `yaml:"database"`
	Audit    AuditConfig    `yaml:"audit"`
	Notify   NotifyConfig   `yaml:"notify"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds HTTP listener and auth settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	JWTSecret       string        `yaml:"jwt_secret"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WhatsAppConfig controls the per-tenant sessions.
type WhatsAppConfig struct {
	SessionDir        string        `yaml:"session_dir"`
	LowResource       bool          `yaml:"low_resource"`
	ReadyTimeout      time.Duration `yaml:"ready_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ScanWorkers       int           `yaml:"scan_workers"`
}

// DispatchConfig controls reminder sends.
type DispatchConfig struct {
	Delay       time.Duration `yaml:"delay"`
	CountryCode string        `yaml:"country_code"`
	Locale      string        `yaml:"locale"`
	Template    string        `yaml:"template"`
}

// DatabaseConfig selects the journal database.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite or mysql
	DSN    string `yaml:"dsn"`
}

// AuditConfig controls journal retention.
type AuditConfig struct {
	RetentionSchedule string        `yaml:"retention_schedule"`
	MaxAge            time.Duration `yaml:"max_age"`
}

// NotifyConfig holds optional operator alert sinks.
type NotifyConfig struct {
	Slack   ChatSinkConfig `yaml:"slack"`
	Discord ChatSinkConfig `yaml:"discord"`
}

// ChatSinkConfig is a bot token plus the channel alerts go to. A sink with
// no token is disabled.
type ChatSinkConfig struct {
	BotToken  string `yaml:"bot_token"`
	ChannelID string `yaml:"channel_id"`
}

// Enabled reports whether the sink has a token.
func (c ChatSinkConfig) Enabled() bool { return c.BotToken != "" }

// LogConfig controls the process logger.
type LogConfig struct {
	Mode       string `yaml:"mode"` // development or production
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Load reads a YAML config file from path and returns a validated Config.
// A .env file beside the config, if present, is loaded into the environment
// first; variables already set are left alone.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadDotEnv loads path into the process environment. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}

// Parse unmarshals YAML bytes into a validated Config, applying environment
// overrides.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.WhatsApp.SessionDir == "" {
		c.WhatsApp.SessionDir = "sessions"
	}
	if c.WhatsApp.ReadyTimeout == 0 {
		c.WhatsApp.ReadyTimeout = 60 * time.Second
	}
	if c.WhatsApp.HeartbeatInterval == 0 {
		c.WhatsApp.HeartbeatInterval = 5 * time.Second
	}
	if c.WhatsApp.ScanWorkers == 0 {
		c.WhatsApp.ScanWorkers = 4
	}
	if c.Dispatch.Delay == 0 {
		c.Dispatch.Delay = time.Second
	}
	if c.Dispatch.CountryCode == "" {
		c.Dispatch.CountryCode = "91"
	}
	if c.Dispatch.Locale == "" {
		c.Dispatch.Locale = "en-IN"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "rentbell.db"
	}
	if c.Audit.RetentionSchedule == "" {
		c.Audit.RetentionSchedule = "0 3 * * *"
	}
	if c.Audit.MaxAge == 0 {
		c.Audit.MaxAge = 30 * 24 * time.Hour
	}
	if c.Log.Mode == "" {
		c.Log.Mode = "development"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = 64
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = 7
	}
	if c.Log.MaxAgeDays == 0 {
		c.Log.MaxAgeDays = 7
	}
}

// applyEnv overrides secrets and deployment settings from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("JWT_SECRET"); ok && v != "" {
		c.Server.JWTSecret = v
	}
	if v, ok := lookup("RENTBELL_DB_DSN"); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup("SLACK_BOT_TOKEN"); ok && v != "" {
		c.Notify.Slack.BotToken = v
	}
	if v, ok := lookup("DISCORD_BOT_TOKEN"); ok && v != "" {
		c.Notify.Discord.BotToken = v
	}
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Server.JWTSecret == "" {
		errs = append(errs, "server.jwt_secret is required (or set JWT_SECRET)")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.WhatsApp.ScanWorkers < 0 {
		errs = append(errs, "whatsapp.scan_workers must not be negative")
	}
	if strings.Trim(c.Dispatch.CountryCode, "0123456789") != "" {
		errs = append(errs, "dispatch.country_code must be digits only")
	}
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not supported (sqlite, mysql)", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, "database.dsn is required")
	}
	if c.Notify.Slack.Enabled() && c.Notify.Slack.ChannelID == "" {
		errs = append(errs, "notify.slack.channel_id is required when a bot token is set")
	}
	if c.Notify.Discord.Enabled() && c.Notify.Discord.ChannelID == "" {
		errs = append(errs, "notify.discord.channel_id is required when a bot token is set")
	}
	switch c.Log.Mode {
	case "development", "production":
	default:
		errs = append(errs, fmt.Sprintf("log.mode %q must be development or production", c.Log.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
