package compiler

import "fmt"

// ---------------------------------------------------------------------------
// Compilation error kinds
// ---------------------------------------------------------------------------

// ErrorKind classifies a compile-time failure.
type ErrorKind int

const (
	// ErrLex indicates a tokenization failure.
	ErrLex ErrorKind = iota

	// ErrParse indicates a syntax error.
	ErrParse

	// ErrReadOnlyGlobal indicates an assignment to @file, @frnum or @rnum.
	ErrReadOnlyGlobal

	// ErrUnsupportedNode indicates an AST variant the compiler refuses.
	ErrUnsupportedNode

	// ErrBytecodeOverflow indicates an operand that would exceed 16 bits.
	ErrBytecodeOverflow

	// ErrNoEnclosingLoop indicates break or continue outside a loop.
	ErrNoEnclosingLoop
)

var errorKindNames = map[ErrorKind]string{
	ErrLex:              "lex",
	ErrParse:            "parse",
	ErrReadOnlyGlobal:   "read-only global",
	ErrUnsupportedNode:  "unsupported node",
	ErrBytecodeOverflow: "bytecode overflow",
	ErrNoEnclosingLoop:  "no enclosing loop",
}

// String returns the human-readable name of the error kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is a compile-time error carrying the offending source offset.
type Error struct {
	Kind   ErrorKind
	Offset int // byte offset into the program text
	Msg    string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (offset %d)", e.Kind, e.Msg, e.Offset)
}

// NewError creates a compile error at the given offset.
func NewError(kind ErrorKind, offset int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// LineCol converts a byte offset into a 1-based line and column by
// scanning the cached source text. Offsets past the end report the
// position just after the last byte.
func LineCol(src []byte, offset int) (line, col int) {
	if offset > len(src) {
		offset = len(src)
	}
	line, col = 1, 1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

// FormatError renders err as "<filename>:<line>:<col>: <kind>: <msg>"
// when err is a *Error, or "<filename>: <msg>" otherwise.
func FormatError(filename string, src []byte, err error) string {
	if ce, ok := err.(*Error); ok {
		line, col := LineCol(src, ce.Offset)
		return fmt.Sprintf("%s:%d:%d: %s: %s", filename, line, col, ce.Kind, ce.Msg)
	}
	return fmt.Sprintf("%s: %v", filename, err)
}
