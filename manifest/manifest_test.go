package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	m := Default()
	if m.Defaults.Irs != "\n" || m.Defaults.Ics != "," ||
		m.Defaults.Ors != "\n" || m.Defaults.Ocs != "," {
		t.Errorf("defaults: %+v", m.Defaults)
	}
	if m.Limits.MaxRecordSize != DefaultMaxRecordSize {
		t.Errorf("max record size: %d", m.Limits.MaxRecordSize)
	}
	if m.History.Enabled || m.Cache.Enabled {
		t.Error("history and cache should default off")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	contents := `
[defaults]
ics = ";"
ors = "\r\n"

[limits]
max-record-size = 4096

[history]
enabled = true
path = "/tmp/zed-test.db"

[cache]
enabled = true
dir = "/tmp/zed-test-cache"
`
	if err := os.WriteFile(filepath.Join(dir, "zed.toml"), []byte(contents), 0o644); err != nil {
		t.Fatalf("writing zed.toml: %v", err)
	}

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Defaults.Ics != ";" || m.Defaults.Ors != "\r\n" {
		t.Errorf("overridden defaults: %+v", m.Defaults)
	}
	// Unset fields keep the built-in defaults.
	if m.Defaults.Irs != "\n" || m.Defaults.Ocs != "," {
		t.Errorf("unset defaults: %+v", m.Defaults)
	}
	if m.Limits.MaxRecordSize != 4096 {
		t.Errorf("max record size: %d", m.Limits.MaxRecordSize)
	}
	if !m.History.Enabled || m.HistoryPath() != "/tmp/zed-test.db" {
		t.Errorf("history: %+v", m.History)
	}
	if !m.Cache.Enabled || m.CacheDir() != "/tmp/zed-test-cache" {
		t.Errorf("cache: %+v", m.Cache)
	}
}

func TestLoadRejectsBadToml(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "zed.toml"), []byte("[defaults\n"), 0o644); err != nil {
		t.Fatalf("writing zed.toml: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestFindAndLoadWalksUp(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "zed.toml"), []byte("[limits]\nmax-record-size = 99\n"), 0o644); err != nil {
		t.Fatalf("writing zed.toml: %v", err)
	}

	m, err := FindAndLoad(sub)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m.Limits.MaxRecordSize != 99 {
		t.Errorf("got %d, want 99", m.Limits.MaxRecordSize)
	}
}

func TestFindAndLoadFallsBackToDefaults(t *testing.T) {
	// A bare temp dir has no zed.toml anywhere up the chain that sets
	// a 99-byte record limit; we at least get a usable manifest.
	m, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m.Limits.MaxRecordSize <= 0 {
		t.Errorf("unusable manifest: %+v", m)
	}
}
