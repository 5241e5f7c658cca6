package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"JWT_SECRET", "RENTBELL_DB_DSN", "SLACK_BOT_TOKEN", "DISCORD_BOT_TOKEN", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestLoad_FullFixture(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("testdata/valid_full.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want 5s", cfg.Server.ShutdownTimeout)
	}
	if !cfg.WhatsApp.LowResource {
		t.Error("WhatsApp.LowResource = false, want true")
	}
	if cfg.WhatsApp.ReadyTimeout != 90*time.Second {
		t.Errorf("WhatsApp.ReadyTimeout = %v, want 90s", cfg.WhatsApp.ReadyTimeout)
	}
	if cfg.WhatsApp.ScanWorkers != 8 {
		t.Errorf("WhatsApp.ScanWorkers = %d, want 8", cfg.WhatsApp.ScanWorkers)
	}
	if cfg.Dispatch.Delay != 1500*time.Millisecond {
		t.Errorf("Dispatch.Delay = %v, want 1.5s", cfg.Dispatch.Delay)
	}
	if cfg.Dispatch.CountryCode != "44" || cfg.Dispatch.Locale != "en-GB" {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Database.Driver != "mysql" {
		t.Errorf("Database.Driver = %q, want mysql", cfg.Database.Driver)
	}
	if cfg.Audit.MaxAge != 168*time.Hour {
		t.Errorf("Audit.MaxAge = %v, want 168h", cfg.Audit.MaxAge)
	}
	if !cfg.Notify.Slack.Enabled() || cfg.Notify.Discord.ChannelID != "998877" {
		t.Errorf("Notify = %+v", cfg.Notify)
	}
	if cfg.Log.Mode != "production" || cfg.Log.MaxAgeDays != 14 {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_MinimalFixture_AppliesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("testdata/minimal.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.WhatsApp.SessionDir != "sessions" {
		t.Errorf("WhatsApp.SessionDir = %q, want sessions", cfg.WhatsApp.SessionDir)
	}
	if cfg.WhatsApp.ReadyTimeout != 60*time.Second {
		t.Errorf("WhatsApp.ReadyTimeout = %v, want 60s", cfg.WhatsApp.ReadyTimeout)
	}
	if cfg.WhatsApp.HeartbeatInterval != 5*time.Second {
		t.Errorf("WhatsApp.HeartbeatInterval = %v, want 5s", cfg.WhatsApp.HeartbeatInterval)
	}
	if cfg.Dispatch.Delay != time.Second || cfg.Dispatch.CountryCode != "91" || cfg.Dispatch.Locale != "en-IN" {
		t.Errorf("Dispatch = %+v", cfg.Dispatch)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "rentbell.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Audit.RetentionSchedule != "0 3 * * *" || cfg.Audit.MaxAge != 720*time.Hour {
		t.Errorf("Audit = %+v", cfg.Audit)
	}
	if cfg.Notify.Slack.Enabled() || cfg.Notify.Discord.Enabled() {
		t.Error("chat sinks should be disabled by default")
	}
	if cfg.Log.Mode != "development" || cfg.Log.Level != "info" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_InvalidYAMLFixture(t *testing.T) {
	clearEnv(t)
	_, err := Load("testdata/invalid_yaml.yaml")
	if err == nil || !strings.Contains(err.Error(), "config: parse") {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/rentbell.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "config: read") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "config: read")
	}
}

func TestLoad_DotEnvBesideConfig(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "rentbell.yaml"), []byte("database:\n  driver: sqlite\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("JWT_SECRET=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	// godotenv does not override variables that are already set, even empty.
	os.Unsetenv("JWT_SECRET")

	cfg, err := Load(filepath.Join(dir, "rentbell.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.JWTSecret != "from-dotenv" {
		t.Errorf("JWTSecret = %q, want from-dotenv", cfg.Server.JWTSecret)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "env-secret")
	t.Setenv("RENTBELL_DB_DSN", "/tmp/other.db")
	t.Setenv("SLACK_BOT_TOKEN", "xoxb-env")
	t.Setenv("PORT", "7070")

	cfg, err := Parse([]byte("server:\n  jwt_secret: file-secret\nnotify:\n  slack:\n    channel_id: C1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env-secret", cfg.Server.JWTSecret)
	}
	if cfg.Database.DSN != "/tmp/other.db" {
		t.Errorf("DSN = %q", cfg.Database.DSN)
	}
	if cfg.Notify.Slack.BotToken != "xoxb-env" {
		t.Errorf("Slack token = %q", cfg.Notify.Slack.BotToken)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestParse_BadPortEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")
	_, err := Parse([]byte("server:\n  jwt_secret: x\n"))
	if err == nil || !strings.Contains(err.Error(), "PORT") {
		t.Errorf("err = %v, want PORT error", err)
	}
}

func TestParse_MissingSecret(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("server:\n  port: 5000\n"))
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret is required") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestParse_MultipleValidationErrors(t *testing.T) {
	clearEnv(t)
	yaml := `
server:
  port: 70000
dispatch:
  country_code: "+91"
database:
  driver: postgres
notify:
  discord:
    bot_token: abc
log:
  mode: verbose
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"jwt_secret is required",
		"server.port 70000 is out of range",
		"country_code must be digits only",
		`database.driver "postgres" is not supported`,
		"database.dsn is required",
		"notify.discord.channel_id is required",
		`log.mode "verbose"`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("error missing %q: %s", want, msg)
		}
	}
	if strings.Count(msg, "; ") != 6 {
		t.Errorf("want 7 joined errors, got %q", msg)
	}
}

func TestParse_MySQLRequiresDSN(t *testing.T) {
	clearEnv(t)
	_, err := Parse([]byte("server:\n  jwt_secret: x\ndatabase:\n  driver: mysql\n"))
	if err == nil || !strings.Contains(err.Error(), "database.dsn is required") {
		t.Errorf("err = %v, want dsn error", err)
	}
}

func TestLoadDotEnv_Missing(t *testing.T) {
	if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing .env should not error: %v", err)
	}
}
