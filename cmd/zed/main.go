// ZED CLI - compiles and runs ZED programs over record streams.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/chazu/zed/cache"
	"github.com/chazu/zed/compiler"
	"github.com/chazu/zed/driver"
	"github.com/chazu/zed/history"
	"github.com/chazu/zed/manifest"
	"github.com/chazu/zed/pkg/bytecode"
)

var log = commonlog.GetLogger("zed")

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (1 = info, 2 = debug)")
	compileOut := flag.String("o", "", "Compile to the given .zbc file and exit")
	disasm := flag.Bool("S", false, "Print a disassembly listing and exit")
	noConfig := flag.Bool("no-config", false, "Skip loading zed.toml")
	noCache := flag.Bool("no-cache", false, "Skip the compiled-program cache")
	noHistory := flag.Bool("no-history", false, "Skip recording run history")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: zed [options] <program-file> [<data-file>...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs the ZED program over the data files. A data file of '-'\n")
		fmt.Fprintf(os.Stderr, "reads standard input; with no data files only onInit and onExit run.\n")
		fmt.Fprintf(os.Stderr, "Program files ending in .zbc load precompiled bytecode.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  zed prog.zed data.csv        # run over a file\n")
		fmt.Fprintf(os.Stderr, "  cat data | zed prog.zed -    # run over stdin\n")
		fmt.Fprintf(os.Stderr, "  zed -o prog.zbc prog.zed     # precompile\n")
		fmt.Fprintf(os.Stderr, "  zed -S prog.zed              # inspect bytecode\n")
	}
	flag.Parse()

	commonlog.Configure(*verbosity, nil)

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	progName := args[0]
	dataFiles := args[1:]

	m := manifest.Default()
	if !*noConfig {
		var err error
		m, err = manifest.FindAndLoad(".")
		if err != nil {
			fmt.Fprintf(os.Stderr, "zed: %v\n", err)
			os.Exit(1)
		}
	}

	prog, src, err := loadProgram(progName, m, *noCache)
	if err != nil {
		fmt.Fprintln(os.Stderr, compiler.FormatError(progName, src, err))
		os.Exit(1)
	}

	if *compileOut != "" {
		if err := bytecode.WriteZBCFile(*compileOut, prog); err != nil {
			fmt.Fprintf(os.Stderr, "zed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *disasm {
		fmt.Print(prog.Disassemble())
		return
	}

	d := driver.New(prog)
	g := d.Globals()
	g.Irs = m.Defaults.Irs
	g.Ics = m.Defaults.Ics
	g.Ors = m.Defaults.Ors
	g.Ocs = m.Defaults.Ocs
	d.MaxRecordSize = m.Limits.MaxRecordSize

	start := time.Now()
	stats, runErr := d.Run(dataFiles)

	if m.History.Enabled && !*noHistory {
		recordHistory(m, progName, stats, time.Since(start), runErr)
	}

	if runErr != nil {
		fmt.Fprintln(os.Stderr, formatRunError(progName, src, runErr))
		os.Exit(1)
	}
}

// loadProgram obtains the five event byte strings: precompiled .zbc
// files load directly, everything else goes through lex, parse and
// compile, consulting the cache when enabled. The returned source is
// empty for .zbc programs.
func loadProgram(name string, m *manifest.Manifest, noCache bool) (*bytecode.Program, []byte, error) {
	if strings.HasSuffix(name, ".zbc") {
		prog, err := bytecode.ReadZBCFile(name)
		return prog, nil, err
	}

	src, err := os.ReadFile(name)
	if err != nil {
		return nil, nil, err
	}

	var store *cache.Cache
	var digest uint64
	if m.Cache.Enabled && !noCache {
		store, err = cache.Open(m.CacheDir())
		if err != nil {
			// A broken cache never blocks a run.
			store = nil
		}
		if store != nil {
			digest = cache.Digest(src)
			if prog := store.Get(digest); prog != nil {
				return prog, src, nil
			}
		}
	}

	parsed, err := compiler.Parse(string(src))
	if err != nil {
		return nil, src, err
	}
	prog, err := bytecode.CompileProgram(parsed)
	if err != nil {
		return nil, src, err
	}

	if store != nil {
		if err := store.Put(digest, prog); err != nil {
			log.Warningf("cache write failed: %v", err)
		}
	}
	return prog, src, nil
}

// formatRunError renders runtime errors with their embedded source
// position when the source is available.
func formatRunError(name string, src []byte, err error) string {
	if re, ok := err.(*bytecode.RuntimeError); ok && len(src) > 0 {
		line, col := compiler.LineCol(src, re.Offset)
		return fmt.Sprintf("%s:%d:%d: runtime error: %s", name, line, col, re.Msg)
	}
	return fmt.Sprintf("%s: %v", name, err)
}

// recordHistory appends the run to the history database; failures are
// logged, never fatal.
func recordHistory(m *manifest.Manifest, progName string, stats driver.Stats, elapsed time.Duration, runErr error) {
	store, err := history.Open(m.HistoryPath())
	if err != nil {
		log.Warningf("history unavailable: %v", err)
		return
	}
	defer store.Close()

	status := "ok"
	if runErr != nil {
		status = "error"
	}
	err = store.Record(history.Run{
		Program:  progName,
		Files:    stats.Files,
		Records:  stats.Records,
		BytesOut: stats.BytesOut,
		Duration: elapsed,
		Status:   status,
		When:     time.Now(),
	})
	if err != nil {
		log.Warningf("history write failed: %v", err)
	}
}
