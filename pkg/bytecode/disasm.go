package bytecode

import (
	"fmt"
	"math"
	"strings"
)

// Disassemble returns a human-readable listing of all five event
// programs. Empty events are listed with a header only.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	for i, code := range p.Events {
		sb.WriteString(fmt.Sprintf("; === %s (%d bytes) ===\n", Event(i), len(code)))
		sb.WriteString(DisassembleCode(code, ""))
	}
	return sb.String()
}

// DisassembleCode renders one byte string as a listing, one instruction
// per line with its byte offset. indent prefixes every line, letting
// nested function bodies and rule actions render indented.
func DisassembleCode(code []byte, indent string) string {
	var sb strings.Builder
	offset := 0
	for offset < len(code) {
		line, nested, n := disassembleInstruction(code, offset)
		sb.WriteString(fmt.Sprintf("%s%04X  %s\n", indent, offset, line))
		if nested != nil {
			sb.WriteString(DisassembleCode(nested, indent+"      | "))
		}
		if n <= 0 {
			sb.WriteString(fmt.Sprintf("%s      <decode stalled>\n", indent))
			break
		}
		offset += n
	}
	return sb.String()
}

// disassembleInstruction decodes one instruction. It returns the
// rendered line, the nested byte string for func bodies and rule
// actions (nil otherwise), and the instruction length.
func disassembleInstruction(code []byte, offset int) (string, []byte, int) {
	op := Opcode(code[offset])
	info := GetOpcodeInfo(op)
	i := offset + 1

	bad := func() (string, []byte, int) {
		return fmt.Sprintf("%s <truncated>", info.Name), nil, len(code) - offset
	}

	switch info.Operands {
	case OperandsNone:
		return info.Name, nil, 1

	case OperandsOff:
		if i+2 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s off=%d", info.Name, readUint16(code, i)), nil, 3

	case OperandsRaw8:
		if i+8 > len(code) {
			return bad()
		}
		raw := readUint64(code, i)
		switch op {
		case OpFloat:
			return fmt.Sprintf("%-12s %g", info.Name, math.Float64frombits(raw)), nil, 9
		case OpInt:
			return fmt.Sprintf("%-12s %d", info.Name, int64(raw)), nil, 9
		default:
			return fmt.Sprintf("%-12s %d", info.Name, raw), nil, 9
		}

	case OperandsCStr:
		s, n, ok := readCStr(code, i)
		if !ok {
			return bad()
		}
		return fmt.Sprintf("%-12s %q", info.Name, s), nil, 1 + n

	case OperandsOffCStr:
		if i+2 > len(code) {
			return bad()
		}
		off := readUint16(code, i)
		s, n, ok := readCStr(code, i+2)
		if !ok {
			return bad()
		}
		return fmt.Sprintf("%-12s off=%d %q", info.Name, off, s), nil, 3 + n

	case OperandsLen:
		if i+2 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s len=%d", info.Name, readUint16(code, i)), nil, 3

	case OperandsOffLen:
		if i+4 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s off=%d len=%d", info.Name,
			readUint16(code, i), readUint16(code, i+2)), nil, 5

	case OperandsScope:
		if i+1 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s %s", info.Name, ScopeType(code[i])), nil, 2

	case OperandsOffByte:
		if i+3 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s off=%d arg=%d", info.Name,
			readUint16(code, i), code[i+2]), nil, 4

	case OperandsByte:
		if i+1 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s id=%d", info.Name, code[i]), nil, 2

	case OperandsBuiltin:
		if i+4 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s %s off=%d argc=%d", info.Name,
			BuiltinName(code[i]), readUint16(code, i+1), code[i+3]), nil, 5

	case OperandsStore:
		if i+3 > len(code) {
			return bad()
		}
		off := readUint16(code, i)
		combo := code[i+2]
		s, n, ok := readCStr(code, i+3)
		if !ok {
			return bad()
		}
		return fmt.Sprintf("%-12s off=%d combo=%d %q", info.Name, off, combo, s), nil, 4 + n

	case OperandsTarget:
		if i+2 > len(code) {
			return bad()
		}
		return fmt.Sprintf("%-12s -> %04X", info.Name, readUint16(code, i)), nil, 3

	case OperandsFunc:
		if i+2 > len(code) {
			return bad()
		}
		skip := int(readUint16(code, i))
		if i+2+skip > len(code) || skip < 8 {
			return bad()
		}
		digest := readUint64(code, i+2)
		name, n, ok := readCStr(code, i+10)
		if !ok {
			return bad()
		}
		p := i + 10 + n
		paramc := int(readUint16(code, p))
		p += 2
		params := make([]string, 0, paramc)
		for j := 0; j < paramc; j++ {
			param, pn, ok := readCStr(code, p)
			if !ok {
				return bad()
			}
			params = append(params, param)
			p += pn
		}
		bodyLen := int(readUint16(code, p))
		p += 2
		if p+bodyLen > len(code) {
			return bad()
		}
		body := code[p : p+bodyLen]
		return fmt.Sprintf("%-12s %q(%s) hash=%016x bodylen=%d",
			info.Name, name, strings.Join(params, ", "), digest, bodyLen), body, 3 + skip

	case OperandsRecRange:
		if i+4 > len(code) {
			return bad()
		}
		id := code[i]
		exclusive := code[i+1]
		actionLen := int(readUint16(code, i+2))
		p := i + 4
		if p+actionLen+2 > len(code) {
			return bad()
		}
		action := code[p : p+actionLen]
		hasFrom := code[p+actionLen]
		hasTo := code[p+actionLen+1]
		return fmt.Sprintf("%-12s id=%d excl=%d from=%d to=%d actionlen=%d",
			info.Name, id, exclusive, hasFrom, hasTo, actionLen), action, 5 + actionLen + 2
	}

	return fmt.Sprintf("%s ?", info.Name), nil, 1
}
