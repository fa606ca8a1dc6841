package bytecode

import (
	"strings"
	"testing"
)

func TestDisassembleListsAllEvents(t *testing.T) {
	prog := compileSource(t, "onInit { print(1); } onRec { @rec }")
	listing := prog.Disassemble()
	for i := 0; i < EventCount; i++ {
		if !strings.Contains(listing, "=== "+Event(i).String()) {
			t.Errorf("listing missing %s header", Event(i))
		}
	}
}

func TestDisassembleMnemonics(t *testing.T) {
	code := compileRules(t, `if (x) { print("y") };`)
	listing := DisassembleCode(code, "")

	for _, want := range []string{"LOAD", "JUMP_FALSE", "SCOPE_IN", "BUILTIN", "print", "POP"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestDisassembleFuncNestsBody(t *testing.T) {
	code := compileRules(t, "fn inc(n) { return n + 1 };")
	listing := DisassembleCode(code, "")

	if !strings.Contains(listing, `FUNC`) || !strings.Contains(listing, `"inc"`) {
		t.Fatalf("listing missing func header:\n%s", listing)
	}
	// The body renders indented beneath the definition.
	if !strings.Contains(listing, "| ") || !strings.Contains(listing, "ADD") {
		t.Errorf("listing missing nested body:\n%s", listing)
	}
}

func TestDisassembleRecRangeNestsAction(t *testing.T) {
	code := compileRules(t, "1..=2 { print(@rec) };")
	listing := DisassembleCode(code, "")

	if !strings.Contains(listing, "REC_RANGE") {
		t.Fatalf("listing missing REC_RANGE:\n%s", listing)
	}
	if !strings.Contains(listing, "GLOBAL") {
		t.Errorf("listing missing nested action:\n%s", listing)
	}
}

func TestDisassembleDecodesEveryByte(t *testing.T) {
	prog := compileSource(t, `
		onInit { let m = {"k": [1, 2.5, 3u]}; fn f(a) { return a }; }
		onRec { @rec; }
		while (x) { break };
	`)
	for i, code := range prog.Events {
		listing := DisassembleCode(code, "")
		if strings.Contains(listing, "stalled") || strings.Contains(listing, "truncated") {
			t.Errorf("event %s: decode failure:\n%s", Event(i), listing)
		}
	}
}
