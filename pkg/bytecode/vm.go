package bytecode

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// VM: stack interpreter over the compiled event programs
// ---------------------------------------------------------------------------

// RuntimeError is a VM failure carrying the source offset embedded in
// the faulting instruction.
type RuntimeError struct {
	Offset int
	Msg    string
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %s (offset %d)", e.Msg, e.Offset)
}

// errFuncReturn unwinds the interpreter out of a function body. The
// return value is left on the stack.
var errFuncReturn = errors.New("func return")

// Globals is the shared global state the driver and programs exchange.
type Globals struct {
	File  string  // @file: current input filename (read-only)
	Frnum uint64  // @frnum: 1-based record number within the file (read-only)
	Rnum  uint64  // @rnum: 1-based record number across all files (read-only)
	Irs   string  // @irs: input record separator
	Ics   string  // @ics: input column separator
	Ors   string  // @ors: output record separator
	Ocs   string  // @ocs: output column separator
	Rec   string  // @rec: current record
	Cols  []Value // @cols: current record's columns
}

// NewGlobals returns globals with the default separators.
func NewGlobals() *Globals {
	return &Globals{Irs: "\n", Ics: ",", Ors: "\n", Ocs: ","}
}

// scopeFrame is one entry of the shared scope stack.
type scopeFrame struct {
	kind ScopeType
	vars map[string]Value
}

// VM executes the five event programs against shared runtime state.
// The scope stack and globals persist across event invocations, so a
// variable defined in the init program is visible to every later
// event. The value stack is reset per invocation; values left on it
// when an invocation ends are flushed to the output buffer.
type VM struct {
	prog    *Program
	Globals *Globals

	out    *bytes.Buffer
	stack  []Value
	scopes []*scopeFrame

	// funcs caches compiled closures by their 64-bit content hash so
	// repeated executions of a func instruction skip redecoding.
	funcs map[uint64]*FuncVal

	// ranges tracks record-range rule activation by rule id.
	ranges map[byte]bool

	lastOff int
}

// NewVM creates a VM for the program writing to the given output buffer.
func NewVM(prog *Program, out *bytes.Buffer) *VM {
	vm := &VM{
		prog:    prog,
		Globals: NewGlobals(),
		out:     out,
		funcs:   make(map[uint64]*FuncVal),
		ranges:  make(map[byte]bool),
	}
	vm.scopes = []*scopeFrame{{kind: ScopeBlock, vars: make(map[string]Value)}}
	return vm
}

// Out returns the output buffer.
func (vm *VM) Out() *bytes.Buffer {
	return vm.out
}

// RunEvent executes one event program. The value stack starts empty;
// any values remaining on it afterwards are flushed to the output
// buffer in natural order, joined by @ocs (nil values are dropped).
func (vm *VM) RunEvent(e Event) error {
	vm.stack = vm.stack[:0]
	err := vm.exec(vm.prog.Events[e])
	if err == errFuncReturn {
		return vm.errorf(vm.lastOff, "return outside function")
	}
	if err != nil {
		return err
	}
	vm.flushLeftovers()
	return nil
}

// flushLeftovers appends unconsumed statement values to the output.
func (vm *VM) flushLeftovers() {
	var parts []string
	for _, v := range vm.stack {
		if v.IsNil() {
			continue
		}
		parts = append(parts, v.String())
	}
	if len(parts) > 0 {
		vm.out.WriteString(strings.Join(parts, vm.Globals.Ocs))
	}
	vm.stack = vm.stack[:0]
}

func (vm *VM) errorf(off int, format string, args ...interface{}) error {
	return &RuntimeError{Offset: off, Msg: fmt.Sprintf(format, args...)}
}

// ---------------------------------------------------------------------------
// Stack and scope helpers
// ---------------------------------------------------------------------------

func (vm *VM) push(v Value) {
	vm.stack = append(vm.stack, v)
}

func (vm *VM) pop() (Value, error) {
	n := len(vm.stack)
	if n == 0 {
		return Nil, vm.errorf(vm.lastOff, "stack underflow")
	}
	v := vm.stack[n-1]
	vm.stack = vm.stack[:n-1]
	return v, nil
}

// popN pops n values in natural order (last pushed first).
func (vm *VM) popN(n int) ([]Value, error) {
	if len(vm.stack) < n {
		return nil, vm.errorf(vm.lastOff, "stack underflow")
	}
	out := make([]Value, n)
	for i := 0; i < n; i++ {
		out[i] = vm.stack[len(vm.stack)-1-i]
	}
	vm.stack = vm.stack[:len(vm.stack)-n]
	return out, nil
}

func (vm *VM) pushScope(kind ScopeType) {
	vm.scopes = append(vm.scopes, &scopeFrame{kind: kind, vars: make(map[string]Value)})
}

func (vm *VM) popScope() error {
	if len(vm.scopes) <= 1 {
		return vm.errorf(vm.lastOff, "scope stack underflow")
	}
	vm.scopes = vm.scopes[:len(vm.scopes)-1]
	return nil
}

// popScopeKind exits a scope. Loop exits unwind through any block
// scopes still open inside the iteration (break jumps out of them
// without running their scope_out instructions) up to and including the
// nearest loop frame.
func (vm *VM) popScopeKind(kind ScopeType) error {
	if kind != ScopeLoop {
		return vm.popScope()
	}
	for len(vm.scopes) > 1 {
		top := vm.scopes[len(vm.scopes)-1]
		vm.scopes = vm.scopes[:len(vm.scopes)-1]
		if top.kind == ScopeLoop {
			return nil
		}
	}
	return vm.errorf(vm.lastOff, "scope stack underflow")
}

// defineVar binds a name in the innermost scope.
func (vm *VM) defineVar(name string, v Value) {
	vm.scopes[len(vm.scopes)-1].vars[name] = v
}

// lookupVar resolves a name, innermost scope first. Unbound names read
// as nil.
func (vm *VM) lookupVar(name string) Value {
	for i := len(vm.scopes) - 1; i >= 0; i-- {
		if v, ok := vm.scopes[i].vars[name]; ok {
			return v
		}
	}
	return Nil
}

// storeVar updates an existing binding, or creates one in the root
// scope so assignments made in one event survive into later events.
func (vm *VM) storeVar(name string, combo byte, rhs Value, off int) error {
	for i := len(vm.scopes) - 1; i >= 0; i-- {
		if old, ok := vm.scopes[i].vars[name]; ok {
			nv, err := vm.applyCombo(combo, old, rhs, off)
			if err != nil {
				return err
			}
			vm.scopes[i].vars[name] = nv
			return nil
		}
	}
	nv, err := vm.applyCombo(combo, Nil, rhs, off)
	if err != nil {
		return err
	}
	vm.scopes[0].vars[name] = nv
	return nil
}

// applyCombo combines an existing value with the right-hand side
// according to the assignment's combo tag.
func (vm *VM) applyCombo(combo byte, old, rhs Value, off int) (Value, error) {
	switch combo {
	case 0: // =
		return rhs, nil
	case 1:
		return vm.binaryValue(OpAdd, old, rhs, off)
	case 2:
		return vm.binaryValue(OpSub, old, rhs, off)
	case 3:
		return vm.binaryValue(OpMul, old, rhs, off)
	case 4:
		return vm.binaryValue(OpDiv, old, rhs, off)
	case 5:
		return vm.binaryValue(OpMod, old, rhs, off)
	case 6: // ?=
		if old.IsNil() {
			return rhs, nil
		}
		return old, nil
	}
	return Nil, vm.errorf(off, "unknown combo tag %d", combo)
}

// ---------------------------------------------------------------------------
// Decode helpers
// ---------------------------------------------------------------------------

// readCStr reads a nul-terminated byte run starting at i, returning the
// string and the number of bytes consumed including the terminator.
func readCStr(code []byte, i int) (string, int, bool) {
	end := bytes.IndexByte(code[i:], 0)
	if end < 0 {
		return "", 0, false
	}
	return string(code[i : i+end]), end + 1, true
}

// ---------------------------------------------------------------------------
// Interpreter loop
// ---------------------------------------------------------------------------

func (vm *VM) exec(code []byte) error {
	ip := 0
	for ip < len(code) {
		op := Opcode(code[ip])
		ip++

		switch op {
		case OpPop:
			// A short-circuit statement may legitimately leave nothing
			// behind for its terminator pop.
			if n := len(vm.stack); n > 0 {
				vm.stack = vm.stack[:n-1]
			}

		case OpTrue, OpFalse, OpNil:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			switch op {
			case OpTrue:
				vm.push(BoolValue(true))
			case OpFalse:
				vm.push(BoolValue(false))
			default:
				vm.push(Nil)
			}

		case OpFloat:
			vm.push(FloatValue(math.Float64frombits(readUint64(code, ip))))
			ip += 8

		case OpInt:
			vm.push(IntValue(int64(readUint64(code, ip))))
			ip += 8

		case OpUint:
			vm.push(UintValue(readUint64(code, ip)))
			ip += 8

		case OpPlain:
			s, n, ok := readCStr(code, ip)
			if !ok {
				return vm.errorf(vm.lastOff, "truncated plain operand")
			}
			ip += n
			vm.push(StrValue(s))

		case OpFormat:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			spec, n, ok := readCStr(code, ip)
			if !ok {
				return vm.errorf(off, "truncated format operand")
			}
			ip += n
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(StrValue(formatValue(spec, v)))

		case OpString:
			count := int(readUint16(code, ip))
			ip += 2
			segs, err := vm.popN(count)
			if err != nil {
				return err
			}
			var sb strings.Builder
			for _, seg := range segs {
				sb.WriteString(seg.String())
			}
			vm.push(StrValue(sb.String()))

		case OpScopeIn:
			vm.pushScope(ScopeType(code[ip]))
			ip++

		case OpScopeOut:
			kind := ScopeType(code[ip])
			ip++
			if err := vm.popScopeKind(kind); err != nil {
				return err
			}

		case OpBuiltin:
			id := code[ip]
			off := int(readUint16(code, ip+1))
			argc := int(code[ip+3])
			ip += 4
			vm.lastOff = off
			args, err := vm.popN(argc)
			if err != nil {
				return err
			}
			result, err := vm.callBuiltin(id, off, args)
			if err != nil {
				return err
			}
			vm.push(result)

		case OpCall:
			off := int(readUint16(code, ip))
			argc := int(code[ip+2])
			ip += 3
			vm.lastOff = off
			if err := vm.callFunction(off, argc); err != nil {
				return err
			}

		case OpFunc:
			n, err := vm.defineFunc(code, ip)
			if err != nil {
				return err
			}
			ip += n

		case OpFuncReturn:
			return errFuncReturn

		case OpDefine:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			name, n, ok := readCStr(code, ip)
			if !ok {
				return vm.errorf(off, "truncated define operand")
			}
			ip += n
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.defineVar(name, v)

		case OpLoad:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			name, n, ok := readCStr(code, ip)
			if !ok {
				return vm.errorf(off, "truncated load operand")
			}
			ip += n
			vm.push(vm.lookupVar(name))

		case OpStore:
			off := int(readUint16(code, ip))
			combo := code[ip+2]
			ip += 3
			vm.lastOff = off
			name, n, ok := readCStr(code, ip)
			if !ok {
				return vm.errorf(off, "truncated store operand")
			}
			ip += n
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.storeVar(name, combo, v, off); err != nil {
				return err
			}

		case OpSet:
			off := int(readUint16(code, ip))
			combo := code[ip+2]
			ip += 3
			vm.lastOff = off
			container, err := vm.pop()
			if err != nil {
				return err
			}
			index, err := vm.pop()
			if err != nil {
				return err
			}
			rhs, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.setIndex(container, index, combo, rhs, off); err != nil {
				return err
			}

		case OpGlobal:
			id := code[ip]
			ip++
			v, err := vm.loadGlobal(id)
			if err != nil {
				return err
			}
			vm.push(v)

		case OpGstore:
			off := int(readUint16(code, ip))
			id := code[ip+2]
			ip += 3
			vm.lastOff = off
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.storeGlobal(id, v, off); err != nil {
				return err
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpMod,
			OpLt, OpLte, OpGt, OpGte, OpEq, OpNeq,
			OpConcat, OpRepeat:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			b, err := vm.pop()
			if err != nil {
				return err
			}
			a, err := vm.pop()
			if err != nil {
				return err
			}
			result, err := vm.binaryValue(op, a, b, off)
			if err != nil {
				return err
			}
			vm.push(result)

		case OpNeg:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			v, err := vm.pop()
			if err != nil {
				return err
			}
			nv := numValue(v)
			switch nv.Kind() {
			case KindFloat:
				vm.push(FloatValue(-nv.Float()))
			default:
				vm.push(IntValue(-nv.AsInt()))
			}

		case OpNot:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(BoolValue(!v.Truthy()))

		case OpList:
			count := int(readUint16(code, ip))
			ip += 2
			elems, err := vm.popN(count)
			if err != nil {
				return err
			}
			vm.push(ListValue(elems))

		case OpMap:
			off := int(readUint16(code, ip))
			count := int(readUint16(code, ip+2))
			ip += 4
			vm.lastOff = off
			m := make(map[string]Value, count)
			for i := 0; i < count; i++ {
				v, err := vm.pop()
				if err != nil {
					return err
				}
				k, err := vm.pop()
				if err != nil {
					return err
				}
				m[k.String()] = v
			}
			vm.push(MapValue(m))

		case OpRange:
			off := int(readUint16(code, ip))
			inclusive := code[ip+2] == 1
			ip += 3
			vm.lastOff = off
			to, err := vm.pop()
			if err != nil {
				return err
			}
			from, err := vm.pop()
			if err != nil {
				return err
			}
			vm.push(RangeValue(&RangeVal{
				From:      numValue(from).AsInt(),
				To:        numValue(to).AsInt(),
				Inclusive: inclusive,
			}))

		case OpSubscript:
			off := int(readUint16(code, ip))
			ip += 2
			vm.lastOff = off
			container, err := vm.pop()
			if err != nil {
				return err
			}
			index, err := vm.pop()
			if err != nil {
				return err
			}
			v, err := vm.subscript(container, index, off)
			if err != nil {
				return err
			}
			vm.push(v)

		case OpJump:
			ip = int(readUint16(code, ip))

		case OpJumpTrue, OpJumpFalse:
			target := int(readUint16(code, ip))
			ip += 2
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if v.Truthy() == (op == OpJumpTrue) {
				ip = target
			}

		case OpRecRange:
			n, err := vm.runRecRange(code, ip)
			if err != nil {
				return err
			}
			ip += n

		case OpRedir:
			off := int(readUint16(code, ip))
			clobber := code[ip+2] == 1
			ip += 3
			vm.lastOff = off
			target, err := vm.pop()
			if err != nil {
				return err
			}
			v, err := vm.pop()
			if err != nil {
				return err
			}
			if err := vm.redirect(target.String(), v.String(), clobber, off); err != nil {
				return err
			}

		case OpSprint:
			off := int(readUint16(code, ip))
			argc := int(code[ip+2])
			ip += 3
			vm.lastOff = off
			args, err := vm.popN(argc)
			if err != nil {
				return err
			}
			parts := make([]string, len(args))
			for i, a := range args {
				parts[i] = a.String()
			}
			vm.push(StrValue(strings.Join(parts, vm.Globals.Ocs)))

		default:
			return vm.errorf(vm.lastOff, "unknown opcode 0x%02X", byte(op))
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

// defineFunc decodes (or retrieves from cache) a func instruction
// starting at the skip operand and returns the bytes consumed.
func (vm *VM) defineFunc(code []byte, ip int) (int, error) {
	skip := int(readUint16(code, ip))
	p := ip + 2
	digest := readUint64(code, p)

	fn, cached := vm.funcs[digest]
	if !cached {
		p += 8
		name, n, ok := readCStr(code, p)
		if !ok {
			return 0, vm.errorf(vm.lastOff, "truncated func name")
		}
		p += n
		paramc := int(readUint16(code, p))
		p += 2
		params := make([]string, 0, paramc)
		for i := 0; i < paramc; i++ {
			param, n, ok := readCStr(code, p)
			if !ok {
				return 0, vm.errorf(vm.lastOff, "truncated func parameter")
			}
			p += n
			params = append(params, param)
		}
		bodyLen := int(readUint16(code, p))
		p += 2
		if p+bodyLen > len(code) {
			return 0, vm.errorf(vm.lastOff, "truncated func body")
		}
		fn = &FuncVal{
			Name:   name,
			Params: params,
			Body:   code[p : p+bodyLen],
			Hash:   digest,
		}
		vm.funcs[digest] = fn
	}

	if fn.Name != "" {
		vm.defineVar(fn.Name, FuncValue(fn))
	}
	vm.push(FuncValue(fn))
	return 2 + skip, nil
}

// callFunction invokes the function on top of the stack with argc
// arguments beneath it. The function body runs in a fresh function
// scope on its own value stack, so its pops never reach the caller's
// operands; missing arguments bind to nil, extras are dropped. A body that
// ends without an explicit return yields its final unconsumed value, or
// nil.
func (vm *VM) callFunction(off, argc int) error {
	callee, err := vm.pop()
	if err != nil {
		return err
	}
	if callee.Kind() != KindFunc {
		return vm.errorf(off, "cannot call %s", callee.Kind())
	}
	fn := callee.Func()

	args, err := vm.popN(argc)
	if err != nil {
		return err
	}

	scopeDepth := len(vm.scopes)
	callerStack := vm.stack
	vm.stack = nil

	vm.pushScope(ScopeFunction)
	for i, param := range fn.Params {
		if i < len(args) {
			vm.defineVar(param, args[i])
		} else {
			vm.defineVar(param, Nil)
		}
	}

	execErr := vm.exec(fn.Body)

	result := Nil
	if execErr == nil || execErr == errFuncReturn {
		if len(vm.stack) > 0 {
			result = vm.stack[len(vm.stack)-1]
		}
		execErr = nil
	}

	vm.scopes = vm.scopes[:scopeDepth]
	vm.stack = callerStack

	if execErr != nil {
		return execErr
	}
	vm.push(result)
	return nil
}

// ---------------------------------------------------------------------------
// Record-range rules
// ---------------------------------------------------------------------------

// runRecRange decodes and evaluates a record-range rule starting at its
// id operand, returning the bytes consumed. Bound values (if present)
// were pushed by the preceding instructions: to first, then from.
func (vm *VM) runRecRange(code []byte, ip int) (int, error) {
	id := code[ip]
	exclusive := code[ip+1] == 1
	p := ip + 2
	actionLen := int(readUint16(code, p))
	p += 2
	if p+actionLen > len(code) {
		return 0, vm.errorf(vm.lastOff, "truncated rule action")
	}
	action := code[p : p+actionLen]
	p += actionLen
	hasFrom := code[p] == 1
	hasTo := code[p+1] == 1
	p += 2

	var from, to Value
	var err error
	if hasFrom {
		if from, err = vm.pop(); err != nil {
			return 0, err
		}
	}
	if hasTo {
		if to, err = vm.pop(); err != nil {
			return 0, err
		}
	}

	active := vm.ranges[id]
	run := false

	if !active {
		// A rule without a from bound opens at the first record only.
		entered := vm.Globals.Rnum == 1
		if hasFrom {
			entered = vm.matchBound(from)
		}
		if entered {
			if hasTo && vm.matchBound(to) {
				// One-record range: runs unless the end is exclusive.
				run = !exclusive
			} else {
				active = true
				run = true
			}
		}
	} else {
		if hasTo && vm.matchBound(to) {
			active = false
			run = !exclusive
		} else {
			run = true
		}
	}
	vm.ranges[id] = active

	if run && len(action) > 0 {
		if err := vm.exec(action); err != nil {
			return 0, err
		}
	}
	return p - ip, nil
}

// matchBound evaluates a range bound against the current record:
// numbers match the overall record number, strings match as substrings
// of the record, ranges match when the record number falls inside, and
// anything else matches by truthiness.
func (vm *VM) matchBound(v Value) bool {
	switch v.Kind() {
	case KindInt, KindUint, KindFloat:
		return v.AsInt() == int64(vm.Globals.Rnum)
	case KindStr:
		return strings.Contains(vm.Globals.Rec, v.Str())
	case KindRange:
		n := int64(vm.Globals.Rnum)
		if v.Range().Inclusive {
			return n >= v.Range().From && n <= v.Range().To
		}
		return n >= v.Range().From && n < v.Range().To
	}
	return v.Truthy()
}

// ---------------------------------------------------------------------------
// Redirection
// ---------------------------------------------------------------------------

// redirect writes data plus @ors to the named file, truncating when
// clobber is set and appending otherwise.
func (vm *VM) redirect(name, data string, clobber bool, off int) error {
	flags := os.O_WRONLY | os.O_CREATE
	if clobber {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(name, flags, 0o644)
	if err != nil {
		return vm.errorf(off, "cannot open %q: %v", name, err)
	}
	defer f.Close()
	if _, err := f.WriteString(data + vm.Globals.Ors); err != nil {
		return vm.errorf(off, "cannot write %q: %v", name, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

func (vm *VM) loadGlobal(id byte) (Value, error) {
	g := vm.Globals
	switch id {
	case 0: // @cols
		return ListValue(g.Cols), nil
	case 1: // @file
		return StrValue(g.File), nil
	case 2: // @frnum
		return UintValue(g.Frnum), nil
	case 3: // @ics
		return StrValue(g.Ics), nil
	case 4: // @irs
		return StrValue(g.Irs), nil
	case 5: // @ocs
		return StrValue(g.Ocs), nil
	case 6: // @ors
		return StrValue(g.Ors), nil
	case 7: // @rec
		return StrValue(g.Rec), nil
	case 8: // @rnum
		return UintValue(g.Rnum), nil
	}
	return Nil, vm.errorf(vm.lastOff, "unknown global id %d", id)
}

func (vm *VM) storeGlobal(id byte, v Value, off int) error {
	g := vm.Globals
	switch id {
	case 0: // @cols
		if v.Kind() != KindList {
			return vm.errorf(off, "@cols expects a list, got %s", v.Kind())
		}
		g.Cols = v.List()
		return nil
	case 3: // @ics
		g.Ics = v.String()
		return nil
	case 4: // @irs
		g.Irs = v.String()
		return nil
	case 5: // @ocs
		g.Ocs = v.String()
		return nil
	case 6: // @ors
		g.Ors = v.String()
		return nil
	case 7: // @rec
		g.Rec = v.String()
		return nil
	case 1, 2, 8:
		// The compiler rejects these; refuse defensively for
		// hand-crafted bytecode.
		return vm.errorf(off, "global id %d is read-only", id)
	}
	return vm.errorf(off, "unknown global id %d", id)
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// binaryValue applies a binary operator to two operand values.
func (vm *VM) binaryValue(op Opcode, a, b Value, off int) (Value, error) {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv, OpMod:
		return vm.arith(op, a, b, off)

	case OpEq:
		return BoolValue(a.Equal(b)), nil
	case OpNeq:
		return BoolValue(!a.Equal(b)), nil

	case OpLt, OpLte, OpGt, OpGte:
		var cmp int
		if a.IsNumeric() && b.IsNumeric() {
			af, bf := a.AsFloat(), b.AsFloat()
			switch {
			case af < bf:
				cmp = -1
			case af > bf:
				cmp = 1
			}
		} else {
			cmp = strings.Compare(a.String(), b.String())
		}
		switch op {
		case OpLt:
			return BoolValue(cmp < 0), nil
		case OpLte:
			return BoolValue(cmp <= 0), nil
		case OpGt:
			return BoolValue(cmp > 0), nil
		default:
			return BoolValue(cmp >= 0), nil
		}

	case OpConcat:
		return StrValue(a.String() + b.String()), nil

	case OpRepeat:
		count := int(numValue(b).AsInt())
		if count < 0 {
			count = 0
		}
		if a.Kind() == KindList {
			out := make([]Value, 0, len(a.List())*count)
			for i := 0; i < count; i++ {
				out = append(out, a.List()...)
			}
			return ListValue(out), nil
		}
		return StrValue(strings.Repeat(a.String(), count)), nil
	}
	return Nil, vm.errorf(off, "unknown binary op %s", op)
}

// arith performs numeric arithmetic with AWK-style string coercion:
// ints stay integral, uints combine to uint, any float operand widens
// the result.
func (vm *VM) arith(op Opcode, a, b Value, off int) (Value, error) {
	na, nb := numValue(a), numValue(b)

	if na.Kind() == KindFloat || nb.Kind() == KindFloat {
		af, bf := na.AsFloat(), nb.AsFloat()
		switch op {
		case OpAdd:
			return FloatValue(af + bf), nil
		case OpSub:
			return FloatValue(af - bf), nil
		case OpMul:
			return FloatValue(af * bf), nil
		case OpDiv:
			return FloatValue(af / bf), nil
		case OpMod:
			return FloatValue(math.Mod(af, bf)), nil
		}
	}

	if na.Kind() == KindUint && nb.Kind() == KindUint {
		au, bu := na.Uint(), nb.Uint()
		switch op {
		case OpAdd:
			return UintValue(au + bu), nil
		case OpSub:
			return UintValue(au - bu), nil
		case OpMul:
			return UintValue(au * bu), nil
		case OpDiv:
			if bu == 0 {
				return Nil, vm.errorf(off, "division by zero")
			}
			return UintValue(au / bu), nil
		case OpMod:
			if bu == 0 {
				return Nil, vm.errorf(off, "division by zero")
			}
			return UintValue(au % bu), nil
		}
	}

	ai, bi := na.AsInt(), nb.AsInt()
	switch op {
	case OpAdd:
		return IntValue(ai + bi), nil
	case OpSub:
		return IntValue(ai - bi), nil
	case OpMul:
		return IntValue(ai * bi), nil
	case OpDiv:
		if bi == 0 {
			return Nil, vm.errorf(off, "division by zero")
		}
		return IntValue(ai / bi), nil
	case OpMod:
		if bi == 0 {
			return Nil, vm.errorf(off, "division by zero")
		}
		return IntValue(ai % bi), nil
	}
	return Nil, vm.errorf(off, "unknown arithmetic op %s", op)
}

// subscript indexes a container value.
func (vm *VM) subscript(container, index Value, off int) (Value, error) {
	switch container.Kind() {
	case KindList:
		i := int(numValue(index).AsInt())
		list := container.List()
		if i < 0 || i >= len(list) {
			return Nil, vm.errorf(off, "list index %d out of range (len %d)", i, len(list))
		}
		return list[i], nil

	case KindMap:
		v, ok := container.Map()[index.String()]
		if !ok {
			return Nil, nil
		}
		return v, nil

	case KindStr:
		i := int(numValue(index).AsInt())
		s := container.Str()
		if i < 0 || i >= len(s) {
			return Nil, vm.errorf(off, "string index %d out of range (len %d)", i, len(s))
		}
		return StrValue(s[i : i+1]), nil

	case KindRange:
		r := container.Range()
		i := numValue(index).AsInt()
		if i < 0 || i >= r.Len() {
			return Nil, vm.errorf(off, "range index %d out of range (len %d)", i, r.Len())
		}
		return IntValue(r.From + i), nil
	}
	return Nil, vm.errorf(off, "cannot index %s", container.Kind())
}

// setIndex stores into an indexed container, combining with the combo.
func (vm *VM) setIndex(container, index Value, combo byte, rhs Value, off int) error {
	switch container.Kind() {
	case KindList:
		i := int(numValue(index).AsInt())
		list := container.List()
		if i < 0 || i >= len(list) {
			return vm.errorf(off, "list index %d out of range (len %d)", i, len(list))
		}
		nv, err := vm.applyCombo(combo, list[i], rhs, off)
		if err != nil {
			return err
		}
		list[i] = nv
		return nil

	case KindMap:
		m := container.Map()
		key := index.String()
		nv, err := vm.applyCombo(combo, m[key], rhs, off)
		if err != nil {
			return err
		}
		m[key] = nv
		return nil
	}
	return vm.errorf(off, "cannot index-assign %s", container.Kind())
}

// formatValue applies a printf-style format spec, converting the value
// to the verb's natural type.
func formatValue(spec string, v Value) string {
	if spec == "" {
		return v.String()
	}
	switch spec[len(spec)-1] {
	case 'd', 'b', 'o', 'x', 'X', 'c':
		return fmt.Sprintf(spec, numValue(v).AsInt())
	case 'f', 'F', 'e', 'E', 'g', 'G':
		return fmt.Sprintf(spec, numValue(v).AsFloat())
	case 't':
		return fmt.Sprintf(spec, v.Truthy())
	case 'q', 's', 'v':
		return fmt.Sprintf(spec, v.String())
	}
	return v.String()
}
