package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/rentbell/internal/models"
)

func TestFormatSessions(t *testing.T) {
	out := formatSessions([]sessionRow{
		{TenantID: "pg-long-name", Paired: true},
		{TenantID: "b", Paired: false},
		{TenantID: "c", Err: "locked"},
	}, false)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4:\n%s", len(lines), out)
	}
	if lines[0] != "TENANT        PAIRED" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "pg-long-name  yes" || lines[2] != "b             no" || lines[3] != "c             error: locked" {
		t.Errorf("rows = %q", lines[1:])
	}
	if strings.Contains(out, "\033[") {
		t.Error("color codes without color")
	}
}

func TestFormatSessions_Color(t *testing.T) {
	out := formatSessions([]sessionRow{{TenantID: "a", Paired: true}}, true)
	if !strings.Contains(out, ansiGreen+"yes"+ansiReset) {
		t.Errorf("output = %q", out)
	}
}

func TestFormatRuns(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	runs := []models.DispatchRun{{
		ID:         "abcdef0123456789",
		TenantID:   "pg-1",
		Sent:       2,
		Failed:     0,
		Total:      2,
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
		Items: []models.DispatchItem{
			{Position: 0, Phone: "xxxxxx3210", Name: "A", Status: "sent"},
			{Position: 1, Phone: "xxxxxx1111", Name: "B", Status: "sent"},
		},
	}}

	out := formatRuns(runs, false, false)
	if !strings.HasPrefix(out, "2026-03-01 10:00  abcdef01  pg-1  2/2 sent (1.5s)") {
		t.Errorf("summary line = %q", out)
	}
	if strings.Contains(out, "xxxxxx3210") {
		t.Error("items shown without --items")
	}

	out = formatRuns(runs, true, false)
	if !strings.Contains(out, " 1. xxxxxx3210") || !strings.Contains(out, " 2. xxxxxx1111") {
		t.Errorf("items = %q", out)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %q", got)
	}
	if got := shortID("0123456789"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
}

func TestUseColor_NonTerminal(t *testing.T) {
	if useColor(new(bytes.Buffer)) {
		t.Error("buffer should not be treated as a terminal")
	}
}
