package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "aninamer.log")

	logger, err := New(Options{Level: "info", Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	logger.Info("monitor iteration complete", String(FieldDirectory, "/watch/Show A"), Int("moves", 3))

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "monitor iteration complete") {
		t.Fatalf("log output missing message: %q", out)
	}
	if !strings.Contains(out, `dir="/watch/Show A"`) {
		t.Fatalf("log output missing quoted dir attr: %q", out)
	}
	if !strings.Contains(out, "moves=3") {
		t.Fatalf("log output missing moves attr: %q", out)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestComponentPrefix(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := New(Options{Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	NewComponentLogger(logger, "executor").Info("stage move complete")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "executor: stage move complete") {
		t.Fatalf("expected component prefix, got %q", string(data))
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "out.log")

	logger, err := New(Options{Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("suppressed")
	logger.Warn("kept")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "suppressed") {
		t.Fatal("info record should be filtered at warn level")
	}
	if !strings.Contains(string(data), "kept") {
		t.Fatal("warn record missing")
	}
}
