// Package cache stores compiled programs on disk, keyed by a digest of
// the source text, so unchanged programs skip lex, parse and compile.
// The cache envelope is canonical CBOR; it is internal to this
// implementation and unrelated to the .zbc interchange format.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"

	"github.com/chazu/zed/pkg/bytecode"
)

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// envelopeVersion guards against stale envelopes after format changes.
const envelopeVersion = 1

// envelope is the on-disk cache entry.
type envelope struct {
	Version int       `cbor:"version"`
	Digest  uint64    `cbor:"digest"`
	Events  [5][]byte `cbor:"events"`
}

// Cache is a directory of compiled-program envelopes.
type Cache struct {
	dir string
}

// Open creates the cache directory if needed.
func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Digest computes the cache key for a program source.
func Digest(src []byte) uint64 {
	return xxh3.Hash(src)
}

func (c *Cache) entryPath(digest uint64) string {
	return filepath.Join(c.dir, fmt.Sprintf("%016x.zc", digest))
}

// Get returns the cached program for a source digest, or nil on a miss.
// Corrupt or stale entries read as misses.
func (c *Cache) Get(digest uint64) *bytecode.Program {
	data, err := os.ReadFile(c.entryPath(digest))
	if err != nil {
		return nil
	}
	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		return nil
	}
	if env.Version != envelopeVersion || env.Digest != digest {
		return nil
	}
	prog := &bytecode.Program{}
	prog.Events = env.Events
	return prog
}

// Put stores a compiled program under a source digest.
func (c *Cache) Put(digest uint64, prog *bytecode.Program) error {
	env := envelope{
		Version: envelopeVersion,
		Digest:  digest,
		Events:  prog.Events,
	}
	data, err := cborEncMode.Marshal(&env)
	if err != nil {
		return fmt.Errorf("cache: marshal envelope: %w", err)
	}
	if err := os.WriteFile(c.entryPath(digest), data, 0o644); err != nil {
		return fmt.Errorf("cache: write envelope: %w", err)
	}
	return nil
}
