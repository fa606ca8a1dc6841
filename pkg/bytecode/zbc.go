package bytecode

import (
	"fmt"
	"os"
)

// ---------------------------------------------------------------------------
// Precompiled bytecode files (*.zbc)
//
// Five back-to-back records, one per event in the fixed order init,
// file, rec, rules, exit:
//
//	len:  u16 little-endian
//	data: len × u8
//
// No header, no checksum, no version field. All embedded multi-byte
// operands inside data are little-endian; the format is not safe to
// transport between producers that disagree on operand byte order.
// ---------------------------------------------------------------------------

// MarshalZBC encodes the program in .zbc format.
func MarshalZBC(prog *Program) ([]byte, error) {
	size := 0
	for _, code := range prog.Events {
		size += 2 + len(code)
	}
	out := make([]byte, 0, size)
	for i, code := range prog.Events {
		if len(code) > maxOperand {
			return nil, fmt.Errorf("event %s bytecode is %d bytes, exceeds record limit %d",
				Event(i), len(code), maxOperand)
		}
		out = appendUint16(out, uint16(len(code)))
		out = append(out, code...)
	}
	return out, nil
}

// UnmarshalZBC decodes a .zbc payload. Files shorter than the five
// declared records, or with trailing bytes, are refused.
func UnmarshalZBC(data []byte) (*Program, error) {
	prog := &Program{}
	pos := 0
	for i := 0; i < EventCount; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("truncated bytecode file: missing %s record length", Event(i))
		}
		n := int(readUint16(data, pos))
		pos += 2
		if pos+n > len(data) {
			return nil, fmt.Errorf("truncated bytecode file: %s record declares %d bytes, %d remain",
				Event(i), n, len(data)-pos)
		}
		prog.Events[i] = make([]byte, n)
		copy(prog.Events[i], data[pos:pos+n])
		pos += n
	}
	if pos != len(data) {
		return nil, fmt.Errorf("trailing %d bytes after the five event records", len(data)-pos)
	}
	return prog, nil
}

// WriteZBCFile writes the program to path in .zbc format.
func WriteZBCFile(path string, prog *Program) error {
	data, err := MarshalZBC(prog)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// ReadZBCFile loads a .zbc file from path.
func ReadZBCFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	prog, err := UnmarshalZBC(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}
