package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log failed: %v", err)
	}
	return string(content)
}

func TestResolveLogFilePathFallsBackToWorkdir(t *testing.T) {
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := resolveLogFilePath(Options{Filename: "  "})
	if err != nil {
		t.Fatalf("resolve log path failed: %v", err)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("blank filename should use default, got %s", filepath.Base(got))
	}
	if filepath.Base(filepath.Dir(got)) != defaultLogDirName {
		t.Fatalf("expected %s dir, got %s", defaultLogDirName, filepath.Dir(got))
	}
	if _, err := os.Stat(got); err != nil {
		t.Fatalf("log file should be created: %v", err)
	}
}

func TestReleaseModeWritesJSONFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "ledger.log"})
	log.Info("creds_batch_signed")
	log.Debug("creds_batch_debug_hidden")
	_ = log.Sync()

	text := readLog(t, filepath.Join(tmpDir, "ledger.log"))
	if !strings.Contains(text, `"message":"creds_batch_signed"`) {
		t.Fatalf("expected json entry, got %s", text)
	}
	if strings.Contains(text, "creds_batch_debug_hidden") {
		t.Fatalf("debug entries must be filtered in release mode")
	}
}

func TestDebugModeSkipsFile(t *testing.T) {
	tmpDir := t.TempDir()
	log := New(" Debug ", Options{Dir: tmpDir, Filename: "debug.log"})
	log.Debug("promotion_fetch_debug")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestComponentAndContextFields(t *testing.T) {
	tmpDir := t.TempDir()
	L = New("release", Options{Dir: tmpDir, Filename: "component.log"})
	t.Cleanup(func() { L = nil })

	Component(" promotion ").Infow("promotion_refresh_scheduled", "delay_seconds", 5)
	SW("order_id", "o-1").Infow("sku_order_paid")
	Sync()

	text := readLog(t, filepath.Join(tmpDir, "component.log"))
	for _, want := range []string{`"component":"promotion"`, `"delay_seconds":5`, `"order_id":"o-1"`, "sku_order_paid"} {
		if !strings.Contains(text, want) {
			t.Fatalf("log should contain %s, got %s", want, text)
		}
	}
}

func TestNormalizePositiveInt(t *testing.T) {
	if normalizePositiveInt(0, 7) != 7 || normalizePositiveInt(-1, 7) != 7 || normalizePositiveInt(3, 7) != 3 {
		t.Fatalf("unexpected normalization")
	}
}
