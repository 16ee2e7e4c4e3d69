package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLogLines(t *testing.T, dir string) []map[string]any {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(dir, "deskmate.log"))
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("log line is not valid JSON: %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLoggerWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelInfo)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Info("bridge started", "pid", 1234)

	entries := readLogLines(t, dir)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	if entries[0]["msg"] != "bridge started" {
		t.Errorf("unexpected msg: %v", entries[0]["msg"])
	}
	if entries[0]["pid"] != float64(1234) {
		t.Errorf("unexpected pid attribute: %v", entries[0]["pid"])
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelWarn)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := readLogLines(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries at WARN level, got %d", len(entries))
	}
	if entries[0]["msg"] != "warn message" || entries[1]["msg"] != "error message" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestWithComponentPropagatesToChildren(t *testing.T) {
	dir := t.TempDir()

	logger, err := NewLogger(dir, LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer logger.Close()

	child := logger.WithComponent("bridge").WithRequest("42")
	child.Info("request sent")

	// The parent logger must not inherit the child's attributes.
	logger.Info("plain")

	entries := readLogLines(t, dir)
	if len(entries) != 2 {
		t.Fatalf("expected 2 log entries, got %d", len(entries))
	}
	if entries[0]["component"] != "bridge" {
		t.Errorf("child entry missing component: %v", entries[0])
	}
	if entries[0]["request_id"] != "42" {
		t.Errorf("child entry missing request_id: %v", entries[0])
	}
	if _, ok := entries[1]["component"]; ok {
		t.Errorf("parent entry unexpectedly carries component: %v", entries[1])
	}
}

func TestParseLevelDefaultsToInfo(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"DEBUG", "DEBUG"},
		{"debug", "DEBUG"},
		{"WARN", "WARN"},
		{"nonsense", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		got := parseLevel(tt.input)
		want := parseLevel(tt.want)
		if got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, want)
		}
	}
}

func TestNopLoggerDoesNotPanic(t *testing.T) {
	logger := NopLogger()
	logger.Debug("a")
	logger.Info("b", "k", "v")
	logger.Warn("c")
	logger.Error("d")
	if err := logger.Close(); err != nil {
		t.Errorf("Close on NopLogger returned error: %v", err)
	}
}
