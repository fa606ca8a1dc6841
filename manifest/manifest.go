// Package manifest handles zed.toml runtime configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultMaxRecordSize caps record length when the manifest does not
// override it.
const DefaultMaxRecordSize = 1 << 20

// Manifest represents a zed.toml configuration.
type Manifest struct {
	Defaults Defaults `toml:"defaults"`
	Limits   Limits   `toml:"limits"`
	History  History  `toml:"history"`
	Cache    Cache    `toml:"cache"`

	// Dir is the directory containing the zed.toml file (set at load time).
	Dir string `toml:"-"`
}

// Defaults configures the separator globals before onInit runs.
type Defaults struct {
	Irs string `toml:"irs"`
	Ics string `toml:"ics"`
	Ors string `toml:"ors"`
	Ocs string `toml:"ocs"`
}

// Limits bounds resource use while reading records.
type Limits struct {
	MaxRecordSize int `toml:"max-record-size"`
}

// History configures the sqlite run log.
type History struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Cache configures the compiled-program cache.
type Cache struct {
	Enabled bool   `toml:"enabled"`
	Dir     string `toml:"dir"`
}

// Default returns the built-in configuration used when no zed.toml is
// found.
func Default() *Manifest {
	return &Manifest{
		Defaults: Defaults{Irs: "\n", Ics: ",", Ors: "\n", Ocs: ","},
		Limits:   Limits{MaxRecordSize: DefaultMaxRecordSize},
	}
}

// Load parses a zed.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "zed.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	// Defaults for fields the file left empty.
	if m.Defaults.Irs == "" {
		m.Defaults.Irs = "\n"
	}
	if m.Defaults.Ics == "" {
		m.Defaults.Ics = ","
	}
	if m.Defaults.Ors == "" {
		m.Defaults.Ors = "\n"
	}
	if m.Defaults.Ocs == "" {
		m.Defaults.Ocs = ","
	}
	if m.Limits.MaxRecordSize <= 0 {
		m.Limits.MaxRecordSize = DefaultMaxRecordSize
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a zed.toml file, then
// loads and returns the manifest. Returns the built-in defaults if no
// manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "zed.toml")); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// HistoryPath resolves the run-history database location, defaulting to
// the user state directory.
func (m *Manifest) HistoryPath() string {
	if m.History.Path != "" {
		return m.History.Path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "zed-history.db"
	}
	return filepath.Join(home, ".local", "state", "zed", "history.db")
}

// CacheDir resolves the compile-cache directory, defaulting to the user
// cache directory.
func (m *Manifest) CacheDir() string {
	if m.Cache.Dir != "" {
		return m.Cache.Dir
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".zed-cache"
	}
	return filepath.Join(dir, "zed")
}
