package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"twyne/internal/compiler"
	"twyne/internal/diag"
)

const version = "twyne 0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: twyne [-hV] [-vq] [-l [LOGFILE]] [-o OUTPUT] INPUT\n")
	fmt.Fprintf(os.Stderr, "Compile a Twee story into a Z-Machine version 8 story file.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	fmt.Fprintf(os.Stderr, "  -h          show this help and exit\n")
	fmt.Fprintf(os.Stderr, "  -V          show the version and exit\n")
	fmt.Fprintf(os.Stderr, "  -v          verbose: log pipeline stage progress\n")
	fmt.Fprintf(os.Stderr, "  -q          quiet: suppress warning diagnostics\n")
	fmt.Fprintf(os.Stderr, "  -l[LOGFILE] write log output to LOGFILE (default: twyne.log)\n")
	fmt.Fprintf(os.Stderr, "  -o OUTPUT   output path (default: INPUT with its extension replaced by .z8)\n")
}

func main() {
	os.Exit(run(os.Args[1:]))
}

// run implements the CLI's exit-code contract: 0 success, 1 compilation
// error, 2 usage error, 3 I/O error.
func run(args []string) int {
	var (
		input   string
		output  string
		verbose bool
		quiet   bool
		logging bool
		logPath string
	)

	i := 0
	for i < len(args) {
		arg := args[i]
		switch {
		case arg == "-h":
			usage()
			return 0
		case arg == "-V":
			fmt.Println(version)
			return 0
		case arg == "-v":
			verbose = true
			i++
		case arg == "-q":
			quiet = true
			i++
		case arg == "-l":
			logging = true
			i++
		case strings.HasPrefix(arg, "-l"):
			logging = true
			logPath = strings.TrimPrefix(strings.TrimPrefix(arg, "-l"), "=")
			i++
		case arg == "-o":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "twyne: -o requires an argument")
				return 2
			}
			output = args[i+1]
			i += 2
		case strings.HasPrefix(arg, "-") && arg != "-":
			fmt.Fprintf(os.Stderr, "twyne: unknown option: %s\n", arg)
			usage()
			return 2
		default:
			if input != "" {
				fmt.Fprintf(os.Stderr, "twyne: unexpected argument: %s\n", arg)
				return 2
			}
			input = arg
			i++
		}
	}

	if input == "" {
		fmt.Fprintln(os.Stderr, "twyne: no input file given")
		usage()
		return 2
	}
	if output == "" {
		output = withExtension(input, ".z8")
	}

	logger, closeLog, err := openLogger(logging, logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "twyne: %v\n", err)
		return 3
	}
	defer closeLog()

	c := compiler.New(logger)
	c.Verbose = verbose

	src, err := compiler.ReadSource(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "twyne: %v\n", err)
		return 3
	}

	result := c.Compile(src, input)
	reportDiagnostics(result.Diagnostics, quiet)

	if result.HasErrors() {
		return 1
	}

	if err := compiler.WriteOutput(output, result.Image); err != nil {
		fmt.Fprintf(os.Stderr, "twyne: %v\n", err)
		return 3
	}

	if verbose {
		fmt.Printf("twyne: wrote %s (%d bytes)\n", output, len(result.Image))
	}
	return 0
}

// openLogger returns the *log.Logger the compiler should report progress
// to, and a close function the caller must always call. Without -l the
// log (written only with -v) goes to stderr; with -l it goes to the named
// file, or to twyne.log when no name is attached to the flag.
func openLogger(enabled bool, path string) (*log.Logger, func(), error) {
	if !enabled {
		return log.New(os.Stderr, "", 0), func() {}, nil
	}
	if path == "" {
		path = "twyne.log"
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
	}
	return log.New(f, "", log.LstdFlags), func() { f.Close() }, nil
}

func reportDiagnostics(diags []diag.Diagnostic, quiet bool) {
	for _, d := range diags {
		if quiet && d.Severity == diag.Warning {
			continue
		}
		fmt.Fprintln(os.Stderr, d.String())
	}
}

func withExtension(path, ext string) string {
	base := path[:len(path)-len(filepath.Ext(path))]
	return base + ext
}
