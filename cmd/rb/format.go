package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/zulandar/rentbell/internal/models"
	"golang.org/x/term"
)

const (
	ansiReset = "\033[0m"
	ansiGreen = "\033[32m"
	ansiRed   = "\033[31m"
	ansiDim   = "\033[2m"
)

// useColor reports whether out is a terminal and NO_COLOR is unset.
func useColor(out io.Writer) bool {
	f, ok := out.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func paint(s, code string, color bool) string {
	if !color {
		return s
	}
	return code + s + ansiReset
}

type sessionRow struct {
	TenantID string
	Paired   bool
	Err      string
}

// formatSessions renders the sessions list as an aligned table.
func formatSessions(rows []sessionRow, color bool) string {
	width := len("TENANT")
	for _, r := range rows {
		if len(r.TenantID) > width {
			width = len(r.TenantID)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-*s  %s\n", width, "TENANT", "PAIRED")
	for _, r := range rows {
		var status string
		switch {
		case r.Err != "":
			status = paint("error: "+r.Err, ansiRed, color)
		case r.Paired:
			status = paint("yes", ansiGreen, color)
		default:
			status = paint("no", ansiDim, color)
		}
		fmt.Fprintf(&b, "%-*s  %s\n", width, r.TenantID, status)
	}
	return b.String()
}

// formatRuns renders journaled runs, optionally with their items.
func formatRuns(runs []models.DispatchRun, items bool, color bool) string {
	var b strings.Builder
	for _, run := range runs {
		counts := fmt.Sprintf("%d/%d sent", run.Sent, run.Total)
		if run.Failed > 0 {
			counts += ", " + paint(fmt.Sprintf("%d failed", run.Failed), ansiRed, color)
		}
		fmt.Fprintf(&b, "%s  %-8s  %s  %s (%s)\n",
			run.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(run.ID),
			run.TenantID,
			counts,
			run.FinishedAt.Sub(run.StartedAt).Round(100*time.Millisecond),
		)
		if !items {
			continue
		}
		for _, it := range run.Items {
			line := fmt.Sprintf("    %2d. %-14s %-20s %s", it.Position+1, it.Phone, it.Name, it.Status)
			if it.Error != "" {
				line += ": " + it.Error
			}
			if it.Status == "failed" {
				line = paint(line, ansiRed, color)
			}
			b.WriteString(line + "\n")
		}
	}
	return b.String()
}

// shortID returns the first 8 characters of a run ID.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
