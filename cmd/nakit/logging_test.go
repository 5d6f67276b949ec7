package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelRouter(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var stdout, stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "nakit.log")
	logger, cleanup, err := setupLogger("info", logPath, &stdout, &stderr)
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("allocated", "pair", "HPI/rng")
	logger.Error("store down")
	cleanup()

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("debug record should be filtered at info level")
	}
	if !strings.Contains(stdout.String(), "allocated") || strings.Contains(stdout.String(), "store down") {
		t.Errorf("unexpected stdout: %q", stdout.String())
	}
	if !strings.Contains(stderr.String(), "store down") {
		t.Errorf("expected error on stderr, got %q", stderr.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "allocated") || !strings.Contains(string(data), "store down") {
		t.Errorf("log file should hold every level, got %q", data)
	}
}

func TestParseLevel(t *testing.T) {
	if _, err := parseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
	if l, _ := parseLevel("WARN"); l != slog.LevelWarn {
		t.Errorf("expected warn, got %v", l)
	}
}
