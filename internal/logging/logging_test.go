package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zulandar/rentbell/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew_BadLevel(t *testing.T) {
	if _, err := New(config.LogConfig{Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNew_Level(t *testing.T) {
	log, err := New(config.LogConfig{Mode: "development", Level: "warn"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if log.Core().Enabled(zapcore.InfoLevel) {
		t.Error("info should be disabled at warn level")
	}
	if !log.Core().Enabled(zapcore.ErrorLevel) {
		t.Error("error should be enabled at warn level")
	}
}

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rentbell.log")
	log, err := New(config.LogConfig{
		Mode:       "production",
		Level:      "info",
		File:       path,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("session: ready", zap.String("tenant", "t1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"msg":"session: ready"`) || !strings.Contains(line, `"tenant":"t1"`) {
		t.Errorf("log file = %q", line)
	}
}

func TestInstall_ReplacesGlobal(t *testing.T) {
	log, done, err := Install(config.LogConfig{Mode: "development", Level: "debug"})
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if zap.L() != log {
		t.Error("zap.L() is not the installed logger")
	}
	done()
	if zap.L() == log {
		t.Error("global not restored")
	}
}
