package session

import (
	"os"
	"path/filepath"
	"testing"

	"herald/pkg/logx"
)

func TestCredentialsRoundTrip(t *testing.T) {
	t.Parallel()
	c, err := NewCredentials(t.TempDir(), logx.Nop())
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}

	if _, ok := c.Load("account_1"); ok {
		t.Fatal("expected absent credential before save")
	}

	if err := c.Save("account_1", "tok-a"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok := c.Load("account_1")
	if !ok || got != "tok-a" {
		t.Fatalf("Load = %q (ok=%v), want tok-a", got, ok)
	}

	// Relogin overwrites.
	if err := c.Save("account_1", "tok-b"); err != nil {
		t.Fatalf("Save overwrite: %v", err)
	}
	got, _ = c.Load("account_1")
	if got != "tok-b" {
		t.Fatalf("Load after overwrite = %q, want tok-b", got)
	}
}

func TestCredentialsEmptyFileIsAbsent(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := NewCredentials(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "account_2.session"), []byte("  \n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, ok := c.Load("account_2"); ok {
		t.Fatal("blank credential file should read as absent")
	}
}

func TestCredentialsNoTempLeftovers(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	c, err := NewCredentials(dir, logx.Nop())
	if err != nil {
		t.Fatalf("NewCredentials: %v", err)
	}
	if err := c.Save("account_3", "tok"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "account_3.session" {
		t.Fatalf("unexpected files after save: %v", entries)
	}
}
