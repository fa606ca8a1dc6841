package bytecode

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the runtime type of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindStr
	KindList
	KindMap
	KindRange
	KindFunc
)

var kindNames = map[Kind]string{
	KindNil:   "nil",
	KindBool:  "bool",
	KindInt:   "int",
	KindUint:  "uint",
	KindFloat: "float",
	KindStr:   "string",
	KindList:  "list",
	KindMap:   "map",
	KindRange: "range",
	KindFunc:  "function",
}

// String returns the kind's name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// RangeVal is a numeric range value.
type RangeVal struct {
	From      int64
	To        int64
	Inclusive bool
}

// Len returns the number of elements the range spans.
func (r *RangeVal) Len() int64 {
	n := r.To - r.From
	if r.Inclusive {
		n++
	}
	if n < 0 {
		return 0
	}
	return n
}

// FuncVal is a compiled function value. Body is the self-contained byte
// string emitted for the function's body; Hash identifies it in the
// VM's closure cache.
type FuncVal struct {
	Name   string
	Params []string
	Body   []byte
	Hash   uint64
}

// Value is a runtime value. The zero Value is nil.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	list []Value
	m    map[string]Value
	r    *RangeVal
	fn   *FuncVal
}

// Nil is the nil value.
var Nil = Value{}

// Constructors.

func BoolValue(b bool) Value       { return Value{kind: KindBool, b: b} }
func IntValue(i int64) Value       { return Value{kind: KindInt, i: i} }
func UintValue(u uint64) Value     { return Value{kind: KindUint, u: u} }
func FloatValue(f float64) Value   { return Value{kind: KindFloat, f: f} }
func StrValue(s string) Value      { return Value{kind: KindStr, s: s} }
func ListValue(l []Value) Value    { return Value{kind: KindList, list: l} }
func MapValue(m map[string]Value) Value { return Value{kind: KindMap, m: m} }
func RangeValue(r *RangeVal) Value { return Value{kind: KindRange, r: r} }
func FuncValue(fn *FuncVal) Value  { return Value{kind: KindFunc, fn: fn} }

// Accessors.

func (v Value) Kind() Kind            { return v.kind }
func (v Value) IsNil() bool           { return v.kind == KindNil }
func (v Value) Bool() bool            { return v.b }
func (v Value) Int() int64            { return v.i }
func (v Value) Uint() uint64          { return v.u }
func (v Value) Float() float64        { return v.f }
func (v Value) Str() string           { return v.s }
func (v Value) List() []Value         { return v.list }
func (v Value) Map() map[string]Value { return v.m }
func (v Value) Range() *RangeVal      { return v.r }
func (v Value) Func() *FuncVal        { return v.fn }

// Truthy reports the value's truthiness: nil, false, numeric zero, the
// empty string and empty containers are falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindNil:
		return false
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindUint:
		return v.u != 0
	case KindFloat:
		return v.f != 0
	case KindStr:
		return v.s != ""
	case KindList:
		return len(v.list) > 0
	case KindMap:
		return len(v.m) > 0
	}
	return true
}

// IsNumeric reports whether the value is int, uint or float.
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindUint || v.kind == KindFloat
}

// AsFloat converts a numeric value to float64.
func (v Value) AsFloat() float64 {
	switch v.kind {
	case KindInt:
		return float64(v.i)
	case KindUint:
		return float64(v.u)
	case KindFloat:
		return v.f
	}
	return 0
}

// AsInt converts a numeric value to int64, truncating floats.
func (v Value) AsInt() int64 {
	switch v.kind {
	case KindInt:
		return v.i
	case KindUint:
		return int64(v.u)
	case KindFloat:
		return int64(v.f)
	}
	return 0
}

// String renders the value for output and key use. nil renders empty;
// lists and maps render in literal-ish form.
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindStr:
		return v.s
	case KindList:
		var sb strings.Builder
		sb.WriteString("[")
		for i, e := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteString("]")
		return sb.String()
	case KindMap:
		// Deterministic order for display.
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sortStrings(keys)
		var sb strings.Builder
		sb.WriteString("{")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(k)
			sb.WriteString(": ")
			sb.WriteString(v.m[k].String())
		}
		sb.WriteString("}")
		return sb.String()
	case KindRange:
		op := ".."
		if v.r.Inclusive {
			op = "..="
		}
		return fmt.Sprintf("%d%s%d", v.r.From, op, v.r.To)
	case KindFunc:
		if v.fn.Name != "" {
			return fmt.Sprintf("fn %s", v.fn.Name)
		}
		return "fn"
	}
	return ""
}

// Equal reports deep equality. Numeric values compare across kinds.
func (v Value) Equal(other Value) bool {
	if v.IsNumeric() && other.IsNumeric() {
		if v.kind == KindFloat || other.kind == KindFloat {
			return v.AsFloat() == other.AsFloat()
		}
		return v.AsInt() == other.AsInt()
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == other.b
	case KindStr:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	case KindRange:
		return v.r.From == other.r.From && v.r.To == other.r.To && v.r.Inclusive == other.r.Inclusive
	case KindFunc:
		return v.fn == other.fn
	}
	return false
}

// sortStrings is an insertion sort; map displays are small.
func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
