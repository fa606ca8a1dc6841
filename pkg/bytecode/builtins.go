package bytecode

import (
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Builtins: fixed-id functions callable without a load
// ---------------------------------------------------------------------------

// Builtin ids. The id is part of the bytecode format; never renumber.
const (
	BuiltinPrint    byte = 0
	BuiltinLen      byte = 1
	BuiltinStr      byte = 2
	BuiltinNum      byte = 3
	BuiltinSubstr   byte = 4
	BuiltinUpper    byte = 5
	BuiltinLower    byte = 6
	BuiltinTrim     byte = 7
	BuiltinSplit    byte = 8
	BuiltinJoin     byte = 9
	BuiltinContains byte = 10
)

// builtinIDs maps spellings to ids. Builtin names are reserved: an
// identifier call by one of these names always lowers to OpBuiltin.
var builtinIDs = map[string]byte{
	"print":    BuiltinPrint,
	"len":      BuiltinLen,
	"str":      BuiltinStr,
	"num":      BuiltinNum,
	"substr":   BuiltinSubstr,
	"upper":    BuiltinUpper,
	"lower":    BuiltinLower,
	"trim":     BuiltinTrim,
	"split":    BuiltinSplit,
	"join":     BuiltinJoin,
	"contains": BuiltinContains,
}

var builtinNames = func() map[byte]string {
	m := make(map[byte]string, len(builtinIDs))
	for name, id := range builtinIDs {
		m[id] = name
	}
	return m
}()

// BuiltinID resolves a name to its builtin id.
func BuiltinID(name string) (byte, bool) {
	id, ok := builtinIDs[name]
	return id, ok
}

// BuiltinName returns the spelling for a builtin id.
func BuiltinName(id byte) string {
	if name, ok := builtinNames[id]; ok {
		return name
	}
	return "?"
}

// callBuiltin dispatches a builtin call. args are in natural order.
func (vm *VM) callBuiltin(id byte, off int, args []Value) (Value, error) {
	switch id {
	case BuiltinPrint:
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = a.String()
		}
		vm.out.WriteString(strings.Join(parts, string(vm.Globals.Ocs)))
		return Nil, nil

	case BuiltinLen:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "len expects 1 argument, got %d", len(args))
		}
		switch args[0].Kind() {
		case KindStr:
			return IntValue(int64(len(args[0].Str()))), nil
		case KindList:
			return IntValue(int64(len(args[0].List()))), nil
		case KindMap:
			return IntValue(int64(len(args[0].Map()))), nil
		case KindRange:
			return IntValue(args[0].Range().Len()), nil
		case KindNil:
			return IntValue(0), nil
		}
		return Nil, vm.errorf(off, "len of %s", args[0].Kind())

	case BuiltinStr:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "str expects 1 argument, got %d", len(args))
		}
		return StrValue(args[0].String()), nil

	case BuiltinNum:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "num expects 1 argument, got %d", len(args))
		}
		return numValue(args[0]), nil

	case BuiltinSubstr:
		if len(args) < 2 || len(args) > 3 {
			return Nil, vm.errorf(off, "substr expects 2 or 3 arguments, got %d", len(args))
		}
		s := args[0].String()
		start := int(args[1].AsInt())
		if start < 0 {
			start = 0
		}
		if start > len(s) {
			start = len(s)
		}
		end := len(s)
		if len(args) == 3 {
			end = start + int(args[2].AsInt())
			if end > len(s) {
				end = len(s)
			}
			if end < start {
				end = start
			}
		}
		return StrValue(s[start:end]), nil

	case BuiltinUpper:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "upper expects 1 argument, got %d", len(args))
		}
		return StrValue(strings.ToUpper(args[0].String())), nil

	case BuiltinLower:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "lower expects 1 argument, got %d", len(args))
		}
		return StrValue(strings.ToLower(args[0].String())), nil

	case BuiltinTrim:
		if len(args) != 1 {
			return Nil, vm.errorf(off, "trim expects 1 argument, got %d", len(args))
		}
		return StrValue(strings.TrimSpace(args[0].String())), nil

	case BuiltinSplit:
		if len(args) != 2 {
			return Nil, vm.errorf(off, "split expects 2 arguments, got %d", len(args))
		}
		parts := strings.Split(args[0].String(), args[1].String())
		list := make([]Value, len(parts))
		for i, p := range parts {
			list[i] = StrValue(p)
		}
		return ListValue(list), nil

	case BuiltinJoin:
		if len(args) != 2 {
			return Nil, vm.errorf(off, "join expects 2 arguments, got %d", len(args))
		}
		if args[0].Kind() != KindList {
			return Nil, vm.errorf(off, "join expects a list, got %s", args[0].Kind())
		}
		elems := args[0].List()
		parts := make([]string, len(elems))
		for i, e := range elems {
			parts[i] = e.String()
		}
		return StrValue(strings.Join(parts, args[1].String())), nil

	case BuiltinContains:
		if len(args) != 2 {
			return Nil, vm.errorf(off, "contains expects 2 arguments, got %d", len(args))
		}
		if args[0].Kind() == KindList {
			for _, e := range args[0].List() {
				if e.Equal(args[1]) {
					return BoolValue(true), nil
				}
			}
			return BoolValue(false), nil
		}
		return BoolValue(strings.Contains(args[0].String(), args[1].String())), nil
	}

	return Nil, vm.errorf(off, "unknown builtin id %d", id)
}

// numValue coerces a value to int or float.
func numValue(v Value) Value {
	switch v.Kind() {
	case KindInt, KindUint, KindFloat:
		return v
	case KindBool:
		if v.Bool() {
			return IntValue(1)
		}
		return IntValue(0)
	case KindStr:
		s := strings.TrimSpace(v.Str())
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntValue(i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return FloatValue(f)
		}
		return IntValue(0)
	}
	return IntValue(0)
}
