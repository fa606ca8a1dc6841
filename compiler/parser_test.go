package compiler

import (
	"errors"
	"testing"
)

func parseProgram(t *testing.T, src string) *Program {
	t.Helper()
	prog, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", src, err)
	}
	return prog
}

func TestParseEventRouting(t *testing.T) {
	prog := parseProgram(t, `
		onInit { 1; }
		onFile { 2; }
		onRec { 3; }
		onExit { 4; }
		5;
	`)
	if len(prog.Inits) == 0 || len(prog.Files) == 0 || len(prog.Recs) == 0 ||
		len(prog.Exits) == 0 || len(prog.Rules) == 0 {
		t.Fatalf("event routing: %d/%d/%d/%d/%d",
			len(prog.Inits), len(prog.Files), len(prog.Recs), len(prog.Rules), len(prog.Exits))
	}
}

func TestParseRepeatedEventBlocksAppend(t *testing.T) {
	prog := parseProgram(t, "onInit { 1; } onInit { 2; }")
	// Two statements, each int + stmt_end.
	if len(prog.Inits) != 4 {
		t.Errorf("got %d init nodes, want 4", len(prog.Inits))
	}
}

func TestParseStatementTerminators(t *testing.T) {
	prog := parseProgram(t, "onInit { 1; 2 }")
	// 1; -> IntLit + StmtEnd; trailing 2 -> IntLit only.
	if len(prog.Inits) != 3 {
		t.Fatalf("got %d nodes, want 3", len(prog.Inits))
	}
	if _, ok := prog.Inits[1].(*StmtEnd); !ok {
		t.Errorf("node 1: got %T, want StmtEnd", prog.Inits[1])
	}
	if _, ok := prog.Inits[2].(*IntLit); !ok {
		t.Errorf("node 2: got %T, want IntLit", prog.Inits[2])
	}
}

func TestParsePrecedence(t *testing.T) {
	prog := parseProgram(t, "1 + 2 * 3;")
	add, ok := prog.Rules[0].(*Infix)
	if !ok || add.Op != TokenPlus {
		t.Fatalf("root: got %T", prog.Rules[0])
	}
	mul, ok := add.Right.(*Infix)
	if !ok || mul.Op != TokenStar {
		t.Fatalf("right: got %T", add.Right)
	}
}

func TestParseComparisonBindsLooser(t *testing.T) {
	prog := parseProgram(t, "a + 1 < b * 2;")
	cmp, ok := prog.Rules[0].(*Infix)
	if !ok || cmp.Op != TokenLt {
		t.Fatalf("root: got %T", prog.Rules[0])
	}
}

func TestParseLogicalPrecedence(t *testing.T) {
	// or binds loosest: (a and b) or c
	prog := parseProgram(t, "a and b or c;")
	or, ok := prog.Rules[0].(*Infix)
	if !ok || or.Op != TokenOr {
		t.Fatalf("root: got %T", prog.Rules[0])
	}
	and, ok := or.Left.(*Infix)
	if !ok || and.Op != TokenAnd {
		t.Fatalf("left: got %T", or.Left)
	}
}

func TestParseUnary(t *testing.T) {
	prog := parseProgram(t, "-x; !y; not z;")
	ops := []TokenType{TokenMinus, TokenBang, TokenNot}
	idx := 0
	for _, node := range prog.Rules {
		if p, ok := node.(*Prefix); ok {
			if p.Op != ops[idx] {
				t.Errorf("prefix %d: got %s, want %s", idx, p.Op, ops[idx])
			}
			idx++
		}
	}
	if idx != 3 {
		t.Errorf("got %d prefix nodes, want 3", idx)
	}
}

func TestParseLet(t *testing.T) {
	prog := parseProgram(t, "onInit { let x = 1 + 2; }")
	def, ok := prog.Inits[0].(*Define)
	if !ok {
		t.Fatalf("got %T, want Define", prog.Inits[0])
	}
	if def.Name.Name != "x" {
		t.Errorf("name: got %q", def.Name.Name)
	}
	if _, ok := def.Value.(*Infix); !ok {
		t.Errorf("value: got %T", def.Value)
	}
	// No StmtEnd after a define.
	if len(prog.Inits) != 1 {
		t.Errorf("got %d nodes, want 1", len(prog.Inits))
	}
}

func TestParseAssignCombos(t *testing.T) {
	tests := []struct {
		src   string
		combo ComboOp
	}{
		{"x = 1;", ComboSet},
		{"x += 1;", ComboAdd},
		{"x -= 1;", ComboSub},
		{"x *= 1;", ComboMul},
		{"x /= 1;", ComboDiv},
		{"x %= 1;", ComboMod},
		{"x ?= 1;", ComboMaybe},
	}
	for _, tt := range tests {
		prog := parseProgram(t, tt.src)
		assign, ok := prog.Rules[0].(*Assign)
		if !ok {
			t.Fatalf("%s: got %T", tt.src, prog.Rules[0])
		}
		if assign.Combo != tt.combo {
			t.Errorf("%s: combo got %s, want %s", tt.src, assign.Combo, tt.combo)
		}
	}
}

func TestParseAssignTargets(t *testing.T) {
	prog := parseProgram(t, "x = 1; @rec = \"r\"; xs[0] = 2;")
	targets := []interface{}{&Ident{}, &Global{}, &Subscript{}}
	idx := 0
	for _, node := range prog.Rules {
		a, ok := node.(*Assign)
		if !ok {
			continue
		}
		switch targets[idx].(type) {
		case *Ident:
			if _, ok := a.Target.(*Ident); !ok {
				t.Errorf("target %d: got %T", idx, a.Target)
			}
		case *Global:
			if _, ok := a.Target.(*Global); !ok {
				t.Errorf("target %d: got %T", idx, a.Target)
			}
		case *Subscript:
			if _, ok := a.Target.(*Subscript); !ok {
				t.Errorf("target %d: got %T", idx, a.Target)
			}
		}
		idx++
	}
	if idx != 3 {
		t.Errorf("got %d assigns, want 3", idx)
	}
}

func TestParseInvalidAssignTarget(t *testing.T) {
	_, err := Parse("1 + 2 = 3;")
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != ErrParse {
		t.Fatalf("got %v, want parse error", err)
	}
}

func TestParseConditional(t *testing.T) {
	prog := parseProgram(t, "if (x) { 1 } else { 2 };")
	cond, ok := prog.Rules[0].(*Conditional)
	if !ok {
		t.Fatalf("got %T", prog.Rules[0])
	}
	if len(cond.Then) != 1 || len(cond.Else) != 1 {
		t.Errorf("branches: %d/%d", len(cond.Then), len(cond.Else))
	}
	if _, ok := prog.Rules[1].(*StmtEnd); !ok {
		t.Errorf("missing StmtEnd after conditional")
	}
}

func TestParseElseIfNests(t *testing.T) {
	prog := parseProgram(t, "if (a) { 1 } else if (b) { 2 } else { 3 };")
	outer := prog.Rules[0].(*Conditional)
	if len(outer.Else) != 1 {
		t.Fatalf("outer else: %d nodes", len(outer.Else))
	}
	inner, ok := outer.Else[0].(*Conditional)
	if !ok {
		t.Fatalf("nested: got %T", outer.Else[0])
	}
	if len(inner.Else) != 1 {
		t.Errorf("inner else: %d nodes", len(inner.Else))
	}
}

func TestParseLoops(t *testing.T) {
	prog := parseProgram(t, "while (x) { break }; do { continue } while (y);")
	loop1, ok := prog.Rules[0].(*Loop)
	if !ok || loop1.IsDo {
		t.Fatalf("first loop: %T", prog.Rules[0])
	}
	if _, ok := loop1.Body[0].(*LoopBreak); !ok {
		t.Errorf("body: got %T", loop1.Body[0])
	}

	loop2, ok := prog.Rules[2].(*Loop)
	if !ok || !loop2.IsDo {
		t.Fatalf("second loop: %T", prog.Rules[2])
	}
	if _, ok := loop2.Body[0].(*LoopContinue); !ok {
		t.Errorf("body: got %T", loop2.Body[0])
	}
}

func TestParseFunctions(t *testing.T) {
	prog := parseProgram(t, "fn add(a, b) { return a + b };")
	fn, ok := prog.Rules[0].(*FuncLit)
	if !ok {
		t.Fatalf("got %T", prog.Rules[0])
	}
	if fn.Name != "add" || len(fn.Params) != 2 {
		t.Errorf("got %q/%v", fn.Name, fn.Params)
	}
	ret, ok := fn.Body[0].(*FuncReturn)
	if !ok {
		t.Fatalf("body: got %T", fn.Body[0])
	}
	if ret.Value == nil {
		t.Error("return value missing")
	}
}

func TestParseAnonymousFunction(t *testing.T) {
	prog := parseProgram(t, "onInit { let f = fn (x) { return x }; }")
	def := prog.Inits[0].(*Define)
	fn, ok := def.Value.(*FuncLit)
	if !ok || fn.Name != "" {
		t.Fatalf("got %T name %q", def.Value, fn.Name)
	}
}

func TestParseCallsAndSubscripts(t *testing.T) {
	prog := parseProgram(t, "f(1)(2); xs[0][1];")
	call, ok := prog.Rules[0].(*Call)
	if !ok {
		t.Fatalf("got %T", prog.Rules[0])
	}
	if _, ok := call.Callee.(*Call); !ok {
		t.Errorf("curried callee: got %T", call.Callee)
	}

	sub, ok := prog.Rules[2].(*Subscript)
	if !ok {
		t.Fatalf("got %T", prog.Rules[2])
	}
	if _, ok := sub.Container.(*Subscript); !ok {
		t.Errorf("chained container: got %T", sub.Container)
	}
}

func TestParseListAndMap(t *testing.T) {
	prog := parseProgram(t, `[1, 2, 3]; {"k": 1, "j": 2};`)
	list, ok := prog.Rules[0].(*ListLit)
	if !ok || len(list.Elems) != 3 {
		t.Fatalf("list: got %T", prog.Rules[0])
	}
	m, ok := prog.Rules[2].(*MapLit)
	if !ok || len(m.Entries) != 2 {
		t.Fatalf("map: got %T", prog.Rules[2])
	}
}

func TestParseRecRangeForms(t *testing.T) {
	prog := parseProgram(t, `
		1..5 { a; };
		1..=5 { b; };
		..5 { c; };
		3.. { d; };
	`)
	var rules []*RecRange
	for _, node := range prog.Rules {
		if rr, ok := node.(*RecRange); ok {
			rules = append(rules, rr)
		}
	}
	if len(rules) != 4 {
		t.Fatalf("got %d rec ranges", len(rules))
	}

	if rules[0].From == nil || rules[0].To == nil || !rules[0].Exclusive {
		t.Error("rule 0: want from+to exclusive")
	}
	if rules[1].Exclusive {
		t.Error("rule 1: want inclusive")
	}
	if rules[2].From != nil || rules[2].To == nil {
		t.Error("rule 2: want to-only")
	}
	if rules[3].From == nil || rules[3].To != nil {
		t.Error("rule 3: want from-only")
	}

	for i, rr := range rules {
		if rr.ID != i {
			t.Errorf("rule %d: id %d", i, rr.ID)
		}
	}
}

func TestParseRecRangeOnlyAtTopLevel(t *testing.T) {
	// Inside an event block a range followed by { is a syntax error,
	// not a rule.
	_, err := Parse("onInit { 1..5 { x; }; }")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestParseRedir(t *testing.T) {
	prog := parseProgram(t, `x -> "a"; y ->> "b";`)
	r1, ok := prog.Rules[0].(*Redir)
	if !ok {
		t.Fatalf("got %T", prog.Rules[0])
	}
	if !r1.Clobber {
		t.Error("-> should clobber")
	}
	r2, ok := prog.Rules[1].(*Redir)
	if !ok {
		t.Fatalf("got %T", prog.Rules[1])
	}
	if r2.Clobber {
		t.Error("->> should append")
	}
}

func TestParseStringSegments(t *testing.T) {
	prog := parseProgram(t, `"a${x}b${y:%d}";`)
	lit, ok := prog.Rules[0].(*StringLit)
	if !ok {
		t.Fatalf("got %T", prog.Rules[0])
	}
	if len(lit.Segments) != 4 {
		t.Fatalf("got %d segments, want 4", len(lit.Segments))
	}
	if string(lit.Segments[0].Lit) != "a" || lit.Segments[0].Interp != nil {
		t.Errorf("segment 0: %+v", lit.Segments[0])
	}
	if lit.Segments[1].Interp == nil || lit.Segments[1].Format != "" {
		t.Errorf("segment 1: %+v", lit.Segments[1])
	}
	if string(lit.Segments[2].Lit) != "b" {
		t.Errorf("segment 2: %+v", lit.Segments[2])
	}
	if lit.Segments[3].Interp == nil || lit.Segments[3].Format != "%d" {
		t.Errorf("segment 3: %+v", lit.Segments[3])
	}
}

func TestParseInterpolationOffsets(t *testing.T) {
	// Offsets inside interpolations are program-wide, not local to the
	// re-lexed body.
	prog := parseProgram(t, `"ab${xy}";`)
	lit := prog.Rules[0].(*StringLit)
	id, ok := lit.Segments[1].Interp[0].(*Ident)
	if !ok {
		t.Fatalf("got %T", lit.Segments[1].Interp[0])
	}
	// `"ab${xy}";` — x is at byte 5.
	if id.Offset != 5 {
		t.Errorf("interp ident offset: got %d, want 5", id.Offset)
	}
}

func TestParseStringEscapes(t *testing.T) {
	prog := parseProgram(t, `"a\tb\\c";`)
	lit := prog.Rules[0].(*StringLit)
	if len(lit.Segments) != 1 || string(lit.Segments[0].Lit) != "a\tb\\c" {
		t.Errorf("got %q", lit.Segments[0].Lit)
	}
}

func TestParseGlobalTags(t *testing.T) {
	prog := parseProgram(t, "@cols; @file; @frnum; @ics; @irs; @ocs; @ors; @rec; @rnum;")
	want := []GlobalTag{
		GlobalCols, GlobalFile, GlobalFrnum, GlobalIcs, GlobalIrs,
		GlobalOcs, GlobalOrs, GlobalRec, GlobalRnum,
	}
	idx := 0
	for _, node := range prog.Rules {
		if g, ok := node.(*Global); ok {
			if g.Tag != want[idx] {
				t.Errorf("global %d: got %s, want %s", idx, g.Tag, want[idx])
			}
			idx++
		}
	}
	if idx != len(want) {
		t.Errorf("got %d globals, want %d", idx, len(want))
	}
}

func TestGlobalReadOnly(t *testing.T) {
	readOnly := map[GlobalTag]bool{
		GlobalFile: true, GlobalFrnum: true, GlobalRnum: true,
	}
	for tag := GlobalCols; tag <= GlobalRnum; tag++ {
		if tag.ReadOnly() != readOnly[tag] {
			t.Errorf("%s: ReadOnly got %v", tag, tag.ReadOnly())
		}
	}
}

func TestParseErrorsCarryOffsets(t *testing.T) {
	_, err := Parse("onInit { let = 1; }")
	var ce *Error
	if !errors.As(err, &ce) {
		t.Fatalf("got %T", err)
	}
	if ce.Kind != ErrParse || ce.Offset <= 0 {
		t.Errorf("got kind %s offset %d", ce.Kind, ce.Offset)
	}
}

func TestParseUnterminatedBlock(t *testing.T) {
	_, err := Parse("onInit { 1;")
	if err == nil {
		t.Fatal("expected parse error")
	}
}
