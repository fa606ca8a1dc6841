package hash

import (
	"github.com/zeebo/xxh3"

	"github.com/chazu/zed/compiler"
)

// HashFunc computes the 64-bit content digest of a function literal.
//
// The digest is computed over the canonical textual rendering of the
// function node, which is stable across runs and across parses of the
// same source. The VM uses it to cache compiled closures: a func
// instruction whose digest is already cached is skipped wholesale via
// its skip operand.
func HashFunc(fn *compiler.FuncLit) uint64 {
	return xxh3.HashString(Render(fn))
}
