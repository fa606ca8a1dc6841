package bytecode

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestZBCRoundTrip(t *testing.T) {
	prog := compileSource(t, `
		onInit { let x = 1; }
		onRec { print(@rec); }
		1..=2 { print("rule"); };
		onExit { print(x); }
	`)

	data, err := MarshalZBC(prog)
	if err != nil {
		t.Fatalf("MarshalZBC failed: %v", err)
	}
	loaded, err := UnmarshalZBC(data)
	if err != nil {
		t.Fatalf("UnmarshalZBC failed: %v", err)
	}

	for i := range prog.Events {
		if !bytes.Equal(prog.Events[i], loaded.Events[i]) {
			t.Errorf("event %s: round-trip mismatch", Event(i))
		}
	}
}

func TestZBCFileRoundTrip(t *testing.T) {
	prog := compileSource(t, "onRec { @rec }")
	path := filepath.Join(t.TempDir(), "prog.zbc")

	if err := WriteZBCFile(path, prog); err != nil {
		t.Fatalf("WriteZBCFile failed: %v", err)
	}
	loaded, err := ReadZBCFile(path)
	if err != nil {
		t.Fatalf("ReadZBCFile failed: %v", err)
	}
	for i := range prog.Events {
		if !bytes.Equal(prog.Events[i], loaded.Events[i]) {
			t.Errorf("event %s: file round-trip mismatch", Event(i))
		}
	}
}

func TestZBCRefusesTruncated(t *testing.T) {
	prog := compileSource(t, "onRec { @rec } onExit { print(1); }")
	data, err := MarshalZBC(prog)
	if err != nil {
		t.Fatalf("MarshalZBC failed: %v", err)
	}

	for cut := 0; cut < len(data); cut++ {
		if _, err := UnmarshalZBC(data[:cut]); err == nil {
			t.Errorf("truncation at %d bytes not refused", cut)
		}
	}
}

func TestZBCRefusesTrailingBytes(t *testing.T) {
	prog := compileSource(t, "onRec { @rec }")
	data, err := MarshalZBC(prog)
	if err != nil {
		t.Fatalf("MarshalZBC failed: %v", err)
	}
	if _, err := UnmarshalZBC(append(data, 0x00)); err == nil {
		t.Error("trailing byte not refused")
	}
}

func TestZBCEmptyProgram(t *testing.T) {
	prog := &Program{}
	data, err := MarshalZBC(prog)
	if err != nil {
		t.Fatalf("MarshalZBC failed: %v", err)
	}
	// Five empty records: just the five little-endian length fields.
	if len(data) != EventCount*2 {
		t.Fatalf("got %d bytes, want %d", len(data), EventCount*2)
	}
	if _, err := UnmarshalZBC(data); err != nil {
		t.Fatalf("UnmarshalZBC failed: %v", err)
	}
}

func TestZBCLengthsAreLittleEndian(t *testing.T) {
	prog := &Program{}
	prog.Events[EventInit] = []byte{byte(OpPop), byte(OpPop), byte(OpPop)}
	data, err := MarshalZBC(prog)
	if err != nil {
		t.Fatalf("MarshalZBC failed: %v", err)
	}
	if data[0] != 3 || data[1] != 0 {
		t.Errorf("length field: got % X, want 03 00", data[:2])
	}
}
