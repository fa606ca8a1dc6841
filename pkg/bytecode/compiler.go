package bytecode

import (
	"math"

	"github.com/chazu/zed/compiler"
	"github.com/chazu/zed/compiler/hash"
)

// Compiler lowers a parsed program into the five event byte strings.
//
// Compilation state is a stack of emission contexts; the top context is
// the one being appended to. Each event program, nested function body
// and record-range action is compiled in its own context so the
// resulting byte string is self-contained. Jump targets are absolute
// byte indices within the context that emitted them.
type Compiler struct {
	ctxs []*emitCtx
}

// CompileProgram compiles all five event node lists, in the fixed order
// init, file, rec, rules, exit. Each event is compiled independently
// with a freshly pushed emission context. The first error aborts
// compilation.
func CompileProgram(prog *compiler.Program) (*Program, error) {
	c := &Compiler{}
	events := [EventCount][]compiler.Node{
		prog.Inits, prog.Files, prog.Recs, prog.Rules, prog.Exits,
	}

	out := &Program{}
	for i, nodes := range events {
		c.pushContext()
		for _, node := range nodes {
			if err := c.compileNode(node); err != nil {
				return nil, err
			}
		}
		out.Events[i] = c.popContext()
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Emission context management
// ---------------------------------------------------------------------------

func (c *Compiler) pushContext() {
	c.ctxs = append(c.ctxs, &emitCtx{code: make([]byte, 0, 64)})
}

func (c *Compiler) popContext() []byte {
	top := c.ctxs[len(c.ctxs)-1]
	c.ctxs = c.ctxs[:len(c.ctxs)-1]
	return top.code
}

func (c *Compiler) cur() *emitCtx {
	return c.ctxs[len(c.ctxs)-1]
}

// ---------------------------------------------------------------------------
// Emit helpers
// ---------------------------------------------------------------------------

func (c *Compiler) emit(op Opcode) {
	ctx := c.cur()
	ctx.code = append(ctx.code, byte(op))
}

func (c *Compiler) emitByte(b byte) {
	ctx := c.cur()
	ctx.code = append(ctx.code, b)
}

func (c *Compiler) emitUint16(v int, off int) error {
	if v < 0 || v > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, off, "operand %d exceeds 16 bits", v)
	}
	ctx := c.cur()
	ctx.code = appendUint16(ctx.code, uint16(v))
	return nil
}

func (c *Compiler) emitOffset(off int) error {
	return c.emitUint16(off, off)
}

func (c *Compiler) emitUint64(v uint64) {
	ctx := c.cur()
	ctx.code = appendUint64(ctx.code, v)
}

// emitName appends name bytes plus the nul terminator.
func (c *Compiler) emitName(name string) {
	ctx := c.cur()
	ctx.code = append(ctx.code, name...)
	ctx.code = append(ctx.code, 0)
}

// emitOp emits an opcode followed by its source offset.
func (c *Compiler) emitOp(op Opcode, off int) error {
	c.emit(op)
	return c.emitOffset(off)
}

// emitJump emits a jump opcode with a placeholder target and returns
// the index of the target's operand bytes for later patching.
func (c *Compiler) emitJump(op Opcode) int {
	ctx := c.cur()
	ctx.code = append(ctx.code, byte(op))
	idx := len(ctx.code)
	ctx.code = append(ctx.code, 0xFF, 0xFF)
	return idx
}

// patchJump resolves a placeholder to the current position.
func (c *Compiler) patchJump(idx int, off int) error {
	ctx := c.cur()
	target := len(ctx.code)
	if target > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, off, "jump target %d exceeds 16 bits", target)
	}
	putUint16(ctx.code, idx, uint16(target))
	return nil
}

// ---------------------------------------------------------------------------
// Loop bookkeeping
// ---------------------------------------------------------------------------

func (c *Compiler) pushLoop() {
	ctx := c.cur()
	ctx.loopStarts = append(ctx.loopStarts, len(ctx.code))
	ctx.jumpSets = append(ctx.jumpSets, nil)
}

// popLoop patches every pending exit jump of the innermost loop to the
// current position.
func (c *Compiler) popLoop(off int) error {
	ctx := c.cur()
	set := ctx.jumpSets[len(ctx.jumpSets)-1]
	ctx.jumpSets = ctx.jumpSets[:len(ctx.jumpSets)-1]
	ctx.loopStarts = ctx.loopStarts[:len(ctx.loopStarts)-1]
	for _, idx := range set {
		if err := c.patchJump(idx, off); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) inLoop() bool {
	return len(c.cur().loopStarts) > 0
}

func (c *Compiler) loopStart() int {
	ctx := c.cur()
	return ctx.loopStarts[len(ctx.loopStarts)-1]
}

// registerExit records a placeholder in the innermost loop's jump set.
func (c *Compiler) registerExit(idx int) {
	ctx := c.cur()
	ctx.jumpSets[len(ctx.jumpSets)-1] = append(ctx.jumpSets[len(ctx.jumpSets)-1], idx)
}

// ---------------------------------------------------------------------------
// Node lowering
// ---------------------------------------------------------------------------

func (c *Compiler) compileNodes(nodes []compiler.Node) error {
	for _, node := range nodes {
		if err := c.compileNode(node); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileNode(node compiler.Node) error {
	switch n := node.(type) {
	case *compiler.BoolLit:
		if n.Value {
			return c.emitOp(OpTrue, n.Offset)
		}
		return c.emitOp(OpFalse, n.Offset)

	case *compiler.NilLit:
		return c.emitOp(OpNil, n.Offset)

	case *compiler.FloatLit:
		c.emit(OpFloat)
		c.emitUint64(math.Float64bits(n.Value))
		return nil

	case *compiler.IntLit:
		c.emit(OpInt)
		c.emitUint64(uint64(n.Value))
		return nil

	case *compiler.UintLit:
		c.emit(OpUint)
		c.emitUint64(n.Value)
		return nil

	case *compiler.StringLit:
		return c.compileString(n)

	case *compiler.Ident:
		if err := c.emitOp(OpLoad, n.Offset); err != nil {
			return err
		}
		c.emitName(n.Name)
		return nil

	case *compiler.Global:
		c.emit(OpGlobal)
		c.emitByte(byte(n.Tag))
		return nil

	case *compiler.Define:
		if err := c.compileNode(n.Value); err != nil {
			return err
		}
		if err := c.emitOp(OpDefine, n.Offset); err != nil {
			return err
		}
		c.emitName(n.Name.Name)
		return nil

	case *compiler.Assign:
		return c.compileAssign(n)

	case *compiler.Infix:
		return c.compileInfix(n)

	case *compiler.Prefix:
		return c.compilePrefix(n)

	case *compiler.Conditional:
		return c.compileConditional(n)

	case *compiler.Loop:
		if n.IsDo {
			return c.compileDoWhile(n)
		}
		return c.compileWhile(n)

	case *compiler.LoopBreak:
		return c.compileBreak(n)

	case *compiler.LoopContinue:
		return c.compileContinue(n)

	case *compiler.FuncLit:
		return c.compileFunc(n)

	case *compiler.FuncReturn:
		if n.Value != nil {
			if err := c.compileNode(n.Value); err != nil {
				return err
			}
		} else {
			if err := c.emitOp(OpNil, n.Offset); err != nil {
				return err
			}
		}
		c.emit(OpFuncReturn)
		return nil

	case *compiler.Call:
		return c.compileCall(n)

	case *compiler.ListLit:
		// Elements are emitted in reverse so the VM pops them in
		// natural order.
		for i := len(n.Elems) - 1; i >= 0; i-- {
			if err := c.compileNode(n.Elems[i]); err != nil {
				return err
			}
		}
		c.emit(OpList)
		return c.emitUint16(len(n.Elems), n.Offset)

	case *compiler.MapLit:
		for _, e := range n.Entries {
			if err := c.compileNode(e.Key); err != nil {
				return err
			}
			if err := c.compileNode(e.Value); err != nil {
				return err
			}
		}
		if err := c.emitOp(OpMap, n.Offset); err != nil {
			return err
		}
		return c.emitUint16(len(n.Entries), n.Offset)

	case *compiler.RangeLit:
		if n.From == nil || n.To == nil {
			return compiler.NewError(compiler.ErrUnsupportedNode, n.Offset, "open range outside rule position")
		}
		if err := c.compileNode(n.From); err != nil {
			return err
		}
		if err := c.compileNode(n.To); err != nil {
			return err
		}
		if err := c.emitOp(OpRange, n.Offset); err != nil {
			return err
		}
		if n.Inclusive {
			c.emitByte(1)
		} else {
			c.emitByte(0)
		}
		return nil

	case *compiler.Subscript:
		if err := c.compileNode(n.Index); err != nil {
			return err
		}
		if err := c.compileNode(n.Container); err != nil {
			return err
		}
		return c.emitOp(OpSubscript, n.Offset)

	case *compiler.RecRange:
		return c.compileRecRange(n)

	case *compiler.Redir:
		return c.compileRedir(n)

	case *compiler.StmtEnd:
		c.emit(OpPop)
		return nil
	}

	return compiler.NewError(compiler.ErrUnsupportedNode, node.Off(), "cannot compile %T", node)
}

// compileString emits string segments in reverse order so the VM
// concatenates them in natural order after OpString.
func (c *Compiler) compileString(n *compiler.StringLit) error {
	for i := len(n.Segments) - 1; i >= 0; i-- {
		seg := n.Segments[i]
		if seg.Interp == nil {
			c.emit(OpPlain)
			ctx := c.cur()
			ctx.code = append(ctx.code, seg.Lit...)
			ctx.code = append(ctx.code, 0)
			continue
		}

		c.emit(OpScopeIn)
		c.emitByte(byte(ScopeBlock))
		if err := c.compileNodes(seg.Interp); err != nil {
			return err
		}
		c.emit(OpScopeOut)
		c.emitByte(byte(ScopeBlock))
		if seg.Format != "" {
			if err := c.emitOp(OpFormat, seg.Offset); err != nil {
				return err
			}
			c.emitName(seg.Format)
		}
	}
	c.emit(OpString)
	return c.emitUint16(len(n.Segments), n.Offset)
}

// compileAssign dispatches on the lvalue shape.
func (c *Compiler) compileAssign(n *compiler.Assign) error {
	if err := c.compileNode(n.Value); err != nil {
		return err
	}

	switch target := n.Target.(type) {
	case *compiler.Ident:
		if err := c.emitOp(OpStore, n.Offset); err != nil {
			return err
		}
		c.emitByte(byte(n.Combo))
		c.emitName(target.Name)
		return nil

	case *compiler.Global:
		if target.Tag.ReadOnly() {
			return compiler.NewError(compiler.ErrReadOnlyGlobal, n.Offset, "%s is read-only", target.Tag)
		}
		// gstore carries no combo operand; only plain assignment is
		// encodable for globals.
		if n.Combo != compiler.ComboSet {
			return compiler.NewError(compiler.ErrUnsupportedNode, n.Offset,
				"compound assignment to %s", target.Tag)
		}
		if err := c.emitOp(OpGstore, n.Offset); err != nil {
			return err
		}
		c.emitByte(byte(target.Tag))
		return nil

	case *compiler.Subscript:
		if err := c.compileNode(target.Index); err != nil {
			return err
		}
		if err := c.compileNode(target.Container); err != nil {
			return err
		}
		if err := c.emitOp(OpSet, n.Offset); err != nil {
			return err
		}
		c.emitByte(byte(n.Combo))
		return nil
	}

	return compiler.NewError(compiler.ErrUnsupportedNode, n.Offset, "invalid assignment target %T", n.Target)
}

// compileInfix lowers binary operators. Logical and/or short-circuit
// with conditional jumps; all others push left then right and emit the
// operator.
func (c *Compiler) compileInfix(n *compiler.Infix) error {
	switch n.Op {
	case compiler.TokenAnd:
		if err := c.compileNode(n.Left); err != nil {
			return err
		}
		idx := c.emitJump(OpJumpFalse)
		if err := c.compileNode(n.Right); err != nil {
			return err
		}
		return c.patchJump(idx, n.Offset)

	case compiler.TokenOr:
		if err := c.compileNode(n.Left); err != nil {
			return err
		}
		idx := c.emitJump(OpJumpTrue)
		if err := c.compileNode(n.Right); err != nil {
			return err
		}
		return c.patchJump(idx, n.Offset)
	}

	if err := c.compileNode(n.Left); err != nil {
		return err
	}
	if err := c.compileNode(n.Right); err != nil {
		return err
	}

	var op Opcode
	switch n.Op {
	case compiler.TokenPlus:
		op = OpAdd
	case compiler.TokenMinus:
		op = OpSub
	case compiler.TokenStar:
		op = OpMul
	case compiler.TokenSlash:
		op = OpDiv
	case compiler.TokenPercent:
		op = OpMod
	case compiler.TokenLt:
		op = OpLt
	case compiler.TokenLte:
		op = OpLte
	case compiler.TokenGt:
		op = OpGt
	case compiler.TokenGte:
		op = OpGte
	case compiler.TokenEqEq:
		op = OpEq
	case compiler.TokenBangEq:
		op = OpNeq
	case compiler.TokenConcat:
		op = OpConcat
	case compiler.TokenRepeat:
		op = OpRepeat
	default:
		return compiler.NewError(compiler.ErrUnsupportedNode, n.Offset, "unsupported infix operator %s", n.Op)
	}
	return c.emitOp(op, n.Offset)
}

func (c *Compiler) compilePrefix(n *compiler.Prefix) error {
	if err := c.compileNode(n.Operand); err != nil {
		return err
	}
	switch n.Op {
	case compiler.TokenMinus:
		return c.emitOp(OpNeg, n.Offset)
	case compiler.TokenBang, compiler.TokenNot:
		return c.emitOp(OpNot, n.Offset)
	}
	return compiler.NewError(compiler.ErrUnsupportedNode, n.Offset, "unsupported prefix operator %s", n.Op)
}

// compileConditional emits:
//
//	cond; jump_false P1; scope_in; then; scope_out; jump P2;
//	P1: scope_in; else; scope_out; P2:
func (c *Compiler) compileConditional(n *compiler.Conditional) error {
	if err := c.compileNode(n.Cond); err != nil {
		return err
	}
	elseJump := c.emitJump(OpJumpFalse)

	c.emit(OpScopeIn)
	c.emitByte(byte(ScopeBlock))
	if err := c.compileNodes(n.Then); err != nil {
		return err
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeBlock))
	endJump := c.emitJump(OpJump)

	if err := c.patchJump(elseJump, n.Offset); err != nil {
		return err
	}
	c.emit(OpScopeIn)
	c.emitByte(byte(ScopeBlock))
	if err := c.compileNodes(n.Else); err != nil {
		return err
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeBlock))

	return c.patchJump(endJump, n.Offset)
}

// compileWhile emits:
//
//	L: cond; jump_false PE; scope_in loop; body; scope_out loop;
//	jump L; PE (and breaks): nil
func (c *Compiler) compileWhile(n *compiler.Loop) error {
	c.pushLoop()

	if err := c.compileNode(n.Cond); err != nil {
		return err
	}
	exit := c.emitJump(OpJumpFalse)
	c.registerExit(exit)

	c.emit(OpScopeIn)
	c.emitByte(byte(ScopeLoop))
	if err := c.compileNodes(n.Body); err != nil {
		return err
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeLoop))

	if err := c.emitJumpTo(OpJump, c.loopStart(), n.Offset); err != nil {
		return err
	}

	if err := c.popLoop(n.Offset); err != nil {
		return err
	}
	return c.emitOp(OpNil, n.Offset)
}

// emitJumpTo emits a jump with a known absolute target.
func (c *Compiler) emitJumpTo(op Opcode, target, off int) error {
	if target > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, off, "jump target %d exceeds 16 bits", target)
	}
	idx := c.emitJump(op)
	putUint16(c.cur().code, idx, uint16(target))
	return nil
}

// compileDoWhile emits:
//
//	L: scope_in loop; body; scope_out loop; cond; jump_true L;
//	breaks: nil
func (c *Compiler) compileDoWhile(n *compiler.Loop) error {
	c.pushLoop()

	c.emit(OpScopeIn)
	c.emitByte(byte(ScopeLoop))
	if err := c.compileNodes(n.Body); err != nil {
		return err
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeLoop))

	if err := c.compileNode(n.Cond); err != nil {
		return err
	}
	if err := c.emitJumpTo(OpJumpTrue, c.loopStart(), n.Offset); err != nil {
		return err
	}

	if err := c.popLoop(n.Offset); err != nil {
		return err
	}
	return c.emitOp(OpNil, n.Offset)
}

func (c *Compiler) compileBreak(n *compiler.LoopBreak) error {
	if !c.inLoop() {
		return compiler.NewError(compiler.ErrNoEnclosingLoop, n.Offset, "break outside loop")
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeLoop))
	idx := c.emitJump(OpJump)
	c.registerExit(idx)
	return nil
}

func (c *Compiler) compileContinue(n *compiler.LoopContinue) error {
	if !c.inLoop() {
		return compiler.NewError(compiler.ErrNoEnclosingLoop, n.Offset, "continue outside loop")
	}
	c.emit(OpScopeOut)
	c.emitByte(byte(ScopeLoop))
	return c.emitJumpTo(OpJump, c.loopStart(), n.Offset)
}

// compileFunc compiles the body in a fresh context, then emits:
//
//	func skip:u16 hash:u64 name\0 paramc:u16 param\0… bodylen:u16 body
//
// skip counts the bytes following it up to and including the body, so
// a VM that already has the hash cached can fast-skip the definition.
func (c *Compiler) compileFunc(n *compiler.FuncLit) error {
	c.pushContext()
	if err := c.compileNodes(n.Body); err != nil {
		c.popContext()
		return err
	}
	body := c.popContext()

	if len(body) > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "function body %d bytes exceeds 16 bits", len(body))
	}

	digest := hash.HashFunc(n)

	c.emit(OpFunc)
	ctx := c.cur()
	skipIdx := len(ctx.code)
	ctx.code = append(ctx.code, 0, 0) // skip placeholder
	c.emitUint64(digest)
	c.emitName(n.Name)
	if err := c.emitUint16(len(n.Params), n.Offset); err != nil {
		return err
	}
	for _, param := range n.Params {
		c.emitName(param)
	}
	ctx = c.cur()
	ctx.code = appendUint16(ctx.code, uint16(len(body)))
	ctx.code = append(ctx.code, body...)

	skip := len(ctx.code) - skipIdx - 2
	if skip > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "function definition %d bytes exceeds 16 bits", skip)
	}
	putUint16(ctx.code, skipIdx, uint16(skip))
	return nil
}

// compileCall lowers builtin calls by id and everything else through
// OpCall. Arguments are compiled in reverse order so the VM pops them
// naturally.
func (c *Compiler) compileCall(n *compiler.Call) error {
	if ident, ok := n.Callee.(*compiler.Ident); ok {
		if id, ok := BuiltinID(ident.Name); ok {
			return c.compileBuiltin(n, id)
		}
	}

	if len(n.Args) > 0xFF {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "too many call arguments (%d)", len(n.Args))
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		if err := c.compileNode(n.Args[i]); err != nil {
			return err
		}
	}
	if err := c.compileNode(n.Callee); err != nil {
		return err
	}
	if err := c.emitOp(OpCall, n.Offset); err != nil {
		return err
	}
	c.emitByte(byte(len(n.Args)))
	return nil
}

func (c *Compiler) compileBuiltin(n *compiler.Call, id byte) error {
	if len(n.Args) > 0xFF {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "too many call arguments (%d)", len(n.Args))
	}
	for i := len(n.Args) - 1; i >= 0; i-- {
		if err := c.compileNode(n.Args[i]); err != nil {
			return err
		}
	}
	c.emit(OpBuiltin)
	c.emitByte(id)
	if err := c.emitOffset(n.Offset); err != nil {
		return err
	}
	c.emitByte(byte(len(n.Args)))
	return nil
}

// compileRecRange compiles the action in its own context, pushes the
// bound expressions (to first, then from), then emits:
//
//	rec_range id:u8 exclusive:u8 actionlen:u16 action has_from:u8 has_to:u8
func (c *Compiler) compileRecRange(n *compiler.RecRange) error {
	var action []byte
	if len(n.Action) > 0 {
		c.pushContext()
		if err := c.compileNodes(n.Action); err != nil {
			c.popContext()
			return err
		}
		action = c.popContext()
	}
	if len(action) > maxOperand {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "rule action %d bytes exceeds 16 bits", len(action))
	}
	if n.ID > 0xFF {
		return compiler.NewError(compiler.ErrBytecodeOverflow, n.Offset, "rule id %d exceeds 8 bits", n.ID)
	}

	if n.To != nil {
		if err := c.compileNode(n.To); err != nil {
			return err
		}
	}
	if n.From != nil {
		if err := c.compileNode(n.From); err != nil {
			return err
		}
	}

	c.emit(OpRecRange)
	c.emitByte(byte(n.ID))
	if n.Exclusive {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	ctx := c.cur()
	ctx.code = appendUint16(ctx.code, uint16(len(action)))
	ctx.code = append(ctx.code, action...)
	if n.From != nil {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	if n.To != nil {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	return nil
}

// compileRedir lowers "expr -> target". A print call on the left is
// lowered to sprint so the formatted text is redirected instead of
// appended to the output buffer.
func (c *Compiler) compileRedir(n *compiler.Redir) error {
	if call, ok := n.Expr.(*compiler.Call); ok {
		if ident, ok := call.Callee.(*compiler.Ident); ok && ident.Name == "print" {
			if len(call.Args) > 0xFF {
				return compiler.NewError(compiler.ErrBytecodeOverflow, call.Offset, "too many call arguments (%d)", len(call.Args))
			}
			for i := len(call.Args) - 1; i >= 0; i-- {
				if err := c.compileNode(call.Args[i]); err != nil {
					return err
				}
			}
			if err := c.emitOp(OpSprint, call.Offset); err != nil {
				return err
			}
			c.emitByte(byte(len(call.Args)))
			return c.finishRedir(n)
		}
	}

	if err := c.compileNode(n.Expr); err != nil {
		return err
	}
	return c.finishRedir(n)
}

func (c *Compiler) finishRedir(n *compiler.Redir) error {
	if err := c.compileNode(n.Target); err != nil {
		return err
	}
	if err := c.emitOp(OpRedir, n.Offset); err != nil {
		return err
	}
	if n.Clobber {
		c.emitByte(1)
	} else {
		c.emitByte(0)
	}
	return nil
}
