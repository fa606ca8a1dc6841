// Package driver runs compiled ZED programs over a sequence of input
// files: it dispatches the five event programs around the record loop
// and owns the shared runtime state.
package driver

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/zed/pkg/bytecode"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("zed.driver")

// Stats summarizes one completed run.
type Stats struct {
	Files    int
	Records  uint64
	BytesOut int
}

// Driver executes a compiled program against input files. The output
// buffer accumulates across all events and is flushed to Stdout once
// the exit program has run.
type Driver struct {
	vm  *bytecode.VM
	out *bytes.Buffer

	// MaxRecordSize caps a single record's length; longer records fail
	// the run instead of growing without bound.
	MaxRecordSize int

	// Stdin and Stdout default to the process streams; tests override
	// them.
	Stdin  io.Reader
	Stdout io.Writer
}

// New creates a driver for the program.
func New(prog *bytecode.Program) *Driver {
	out := &bytes.Buffer{}
	return &Driver{
		vm:            bytecode.NewVM(prog, out),
		out:           out,
		MaxRecordSize: 1 << 20,
		Stdin:         os.Stdin,
		Stdout:        os.Stdout,
	}
}

// Globals exposes the shared global state for configuration before Run.
func (d *Driver) Globals() *bytecode.Globals {
	return d.vm.Globals
}

// Run executes init, the per-file record loops, and exit, then flushes
// the output buffer. A data file named "-" reads standard input. With
// no data files only init and exit run.
func (d *Driver) Run(files []string) (Stats, error) {
	var stats Stats

	if err := d.vm.RunEvent(bytecode.EventInit); err != nil {
		return stats, err
	}

	d.vm.Globals.Rnum = 1
	for _, name := range files {
		if err := d.runFile(name, &stats); err != nil {
			return stats, err
		}
		stats.Files++
	}

	if err := d.vm.RunEvent(bytecode.EventExit); err != nil {
		return stats, err
	}

	stats.BytesOut = d.out.Len()
	if _, err := d.Stdout.Write(d.out.Bytes()); err != nil {
		return stats, fmt.Errorf("writing output: %w", err)
	}
	return stats, nil
}

// runFile processes one input file's records. The handle is opened just
// before the record loop and closed on every exit path.
func (d *Driver) runFile(name string, stats *Stats) error {
	var r io.Reader
	if name == "-" {
		r = d.Stdin
	} else {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("opening %s: %w", name, err)
		}
		defer f.Close()
		r = f
	}

	g := d.vm.Globals
	g.File = name
	g.Frnum = 1
	log.Debugf("processing %s", name)

	if err := d.vm.RunEvent(bytecode.EventFile); err != nil {
		return err
	}

	br := bufio.NewReader(r)
	for {
		delim := byte('\n')
		if len(g.Irs) > 0 {
			delim = g.Irs[0]
		}
		record, err := d.readRecord(br, delim)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", name, err)
		}

		if err := d.runRecord(record); err != nil {
			return err
		}
		stats.Records++
	}

	log.Debugf("finished %s (%d records total)", name, g.Rnum-1)
	return nil
}

// readRecord reads up to the delimiter, which is not included in the
// result. io.EOF is returned only when no bytes remain; a final
// unterminated record is still delivered. Records longer than
// MaxRecordSize fail the run.
func (d *Driver) readRecord(br *bufio.Reader, delim byte) (string, error) {
	var buf []byte
	for {
		chunk, err := br.ReadSlice(delim)
		buf = append(buf, chunk...)
		size := len(buf)
		if err == nil {
			size-- // the delimiter is not part of the record
		}
		if size > d.MaxRecordSize {
			return "", fmt.Errorf("record exceeds %d bytes", d.MaxRecordSize)
		}
		switch err {
		case nil:
			return string(buf[:len(buf)-1]), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(buf) == 0 {
				return "", io.EOF
			}
			return string(buf), nil
		default:
			return "", err
		}
	}
}

// runRecord dispatches the rec and rules events for one record and
// appends @ors when they grew the output.
func (d *Driver) runRecord(record string) error {
	g := d.vm.Globals
	g.Rec = record

	before := d.out.Len()

	if err := d.vm.RunEvent(bytecode.EventRec); err != nil {
		return err
	}

	// The rec program may rewrite @rec; columns split after it ran.
	g.Cols = splitColumns(g.Rec, g.Ics)

	if err := d.vm.RunEvent(bytecode.EventRules); err != nil {
		return err
	}

	if d.out.Len() > before {
		d.out.WriteString(g.Ors)
	}

	g.Rnum++
	g.Frnum++
	return nil
}

// splitColumns splits a record into column values by the input column
// separator. An empty separator yields the whole record as one column.
func splitColumns(record, sep string) []bytecode.Value {
	if sep == "" {
		return []bytecode.Value{bytecode.StrValue(record)}
	}
	parts := strings.Split(record, sep)
	cols := make([]bytecode.Value, len(parts))
	for i, p := range parts {
		cols[i] = bytecode.StrValue(p)
	}
	return cols
}
