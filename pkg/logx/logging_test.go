package logx

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func TestFileSinkWritesStructuredFields(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "herald.log")
	svc, log := New(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})

	log = log.With(String("comp", "dispatch"))
	log.Info("send done",
		Int("n", 3),
		Int64("chat", -1001234),
		Bool("ok", true),
		Any("accounts", []string{"a1", "a2"}),
		Err(errors.New("boom")))
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record not JSON: %v", err)
	}
	if rec["message"] != "send done" || rec["comp"] != "dispatch" {
		t.Fatalf("record = %v", rec)
	}
	if rec["n"] != float64(3) || rec["ok"] != true {
		t.Fatalf("scalar fields = %v", rec)
	}
	if rec["err"] != "boom" {
		t.Fatalf("err field = %v", rec["err"])
	}
	ids, ok := rec["accounts"].([]any)
	if !ok || len(ids) != 2 || ids[0] != "a1" {
		t.Fatalf("accounts field = %v", rec["accounts"])
	}
	if caller, _ := rec["caller"].(string); !strings.Contains(caller, "logging_test.go") {
		t.Fatalf("caller = %v", rec["caller"])
	}
}

func TestApplyChangesLevelForExistingLoggers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "herald.log")
	file := FileConfig{Enabled: true, Path: path}
	svc, log := New(Config{Level: "info", File: file})

	log.Debug("hidden")
	svc.Apply(Config{Level: "debug", File: file})
	log.Debug("visible")
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 1 || !strings.Contains(lines[0], "visible") {
		t.Fatalf("lines = %v", lines)
	}
}

func TestZeroValueAndNopAreSafe(t *testing.T) {
	t.Parallel()
	var zero Logger
	zero.Info("dropped")
	if !zero.IsZero() {
		t.Fatal("zero logger must report IsZero")
	}
	n := Nop()
	n.Error("dropped", Err(nil))
	if n.IsZero() {
		t.Fatal("Nop logger is configured, not zero")
	}
	if c := NewConsole("DEBUG"); c.IsZero() {
		t.Fatal("console logger is configured, not zero")
	}
}
