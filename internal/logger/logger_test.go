package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAuditLinesReachTheFile(t *testing.T) {
	l := NewLoggerService(map[string]interface{}{"folder_path": t.TempDir(), "level": "error"})
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	path := l.CurrentFile()
	l.LogAudit("run 1 started")
	lg := l.Logger()
	lg.Info().Msg("filtered by level")
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[AUDIT] run 1 started") {
		t.Errorf("audit line missing:\n%s", data)
	}
	if strings.Contains(string(data), "filtered by level") {
		t.Errorf("info line written at error level:\n%s", data)
	}
}

func TestRotateIfNeeded(t *testing.T) {
	l := NewLoggerService(map[string]interface{}{"folder_path": t.TempDir()})
	if err := l.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer l.Stop()
	l.maxFileBytes = 16

	first := l.CurrentFile()
	lg := l.Logger()
	lg.Info().Msg("enough bytes to pass the limit")
	if err := l.rotateIfNeeded(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if l.CurrentFile() == first {
		t.Error("log file was not rotated")
	}
}

func TestZipAndCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerService(map[string]interface{}{"folder_path": dir, "retention_days": 1})
	old := filepath.Join(dir, "recon_20200101_000000.000.log")
	if err := os.WriteFile(old, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, "recon_fresh.log")
	if err := os.WriteFile(fresh, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if n := l.zipAndCleanOldLogs(); n != 1 {
		t.Fatalf("archived %d files, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old log not removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh log removed")
	}
	zips, _ := filepath.Glob(filepath.Join(dir, "logs_*.zip"))
	if len(zips) != 1 {
		t.Errorf("zips = %v", zips)
	}
}
