package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger_CreatesFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	for _, name := range []string{InfoFile, WarningFile, ErrorFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Expected %s to exist: %v", name, err)
		}
	}
}

func TestLogger_WritesPerLevel(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Warning("model %s is slow", "yolov8m")
	l.Error("decode failed: %v", "bad bytes")

	warning, _ := os.ReadFile(filepath.Join(dir, WarningFile))
	if !strings.Contains(string(warning), "model yolov8m is slow") {
		t.Errorf("Warning log missing entry: %q", warning)
	}

	errLog, _ := os.ReadFile(filepath.Join(dir, ErrorFile))
	if !strings.Contains(string(errLog), "decode failed: bad bytes") {
		t.Errorf("Error log missing entry: %q", errLog)
	}
	if strings.Contains(string(errLog), "slow") {
		t.Error("Warning entry leaked into error log")
	}
}

func TestLogger_CleanLogs(t *testing.T) {
	dir := t.TempDir()

	l, err := NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer l.Close()

	l.Error("something broke")
	if err := l.CleanLogs(ErrorFile); err != nil {
		t.Fatalf("CleanLogs failed: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, ErrorFile))
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("Expected empty error log, got %d bytes", info.Size())
	}
}

func TestNewDiscard(t *testing.T) {
	l := NewDiscard()
	l.Info("ignored %d", 1)
	if err := l.CleanLogs(InfoFile); err != nil {
		t.Errorf("CleanLogs on discard logger should be a no-op, got %v", err)
	}
}
