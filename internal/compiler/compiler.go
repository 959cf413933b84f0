// Package compiler drives the full twee-to-story-file pipeline: lex,
// parse, resolve, lower, encode. It is the Go-native replacement for
// gasm's own internal/asm.Assembler, restructured around a pipeline of
// independent stages (rather than one combined encode+relocate+build
// pass) since each stage here is an independent compiler pass with its
// own diagnostic set.
package compiler

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"twyne/internal/diag"
	"twyne/internal/lexer"
	"twyne/internal/lower"
	"twyne/internal/parser"
	"twyne/internal/resolve"
	"twyne/internal/span"
	"twyne/internal/zmachine"
)

// Compiler drives the pipeline, logging stage progress when Verbose is
// set (the CLI's "-v" flag).
type Compiler struct {
	Logger  *log.Logger
	Verbose bool
}

func New(logger *log.Logger) *Compiler {
	return &Compiler{Logger: logger}
}

func (c *Compiler) logf(format string, args ...interface{}) {
	if c.Verbose && c.Logger != nil {
		c.Logger.Printf(format, args...)
	}
}

// Result carries a finished compile's story-file bytes (nil on failure)
// and every diagnostic gathered across every stage.
type Result struct {
	Image       []byte
	Diagnostics []diag.Diagnostic
}

// HasErrors reports whether any diagnostic in the result is fatal.
func (r *Result) HasErrors() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == diag.Error {
			return true
		}
	}
	return false
}

// Compile runs every pipeline stage over src, accumulating diagnostics
// from each one before deciding whether to proceed to the next: multiple
// lex/parse/resolve errors are collected before aborting rather than
// stopping at the first one. Image is nil if any stage reports a fatal
// error.
func (c *Compiler) Compile(src, filename string) *Result {
	var all []diag.Diagnostic

	c.logf("lexing %s", filename)
	lx := lexer.New(src, filename)
	toks, diags := lx.Tokenize()
	all = append(all, diags...)
	if hasErrors(diags) {
		return &Result{Diagnostics: all}
	}

	c.logf("parsing %d tokens", len(toks))
	p := parser.New(toks)
	story, diags := p.ParseStory()
	all = append(all, diags...)
	if hasErrors(diags) {
		return &Result{Diagnostics: all}
	}

	c.logf("resolving %d passages", len(story.Passages))
	res := resolve.Resolve(story)
	all = append(all, res.Diagnostics...)
	if hasErrors(res.Diagnostics) {
		return &Result{Diagnostics: all}
	}

	c.logf("lowering to IR")
	mod, diags := lower.Lower(story, res)
	all = append(all, diags...)
	if hasErrors(diags) {
		return &Result{Diagnostics: all}
	}

	c.logf("encoding %d routines", len(mod.Routines))
	img, err := zmachine.Assemble(mod)
	if err != nil {
		all = append(all, diag.Errorf(diag.EncodeError, span.Span{File: filename}, "%v", err))
		return &Result{Diagnostics: all}
	}

	return &Result{Image: img, Diagnostics: all}
}

func hasErrors(diags []diag.Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == diag.Error {
			return true
		}
	}
	return false
}

// ReadSource reads a twee source file, stripping a leading UTF-8 byte
// order mark if present. Twee files are commonly exported from Twine on
// Windows, where editors routinely prepend one.
func ReadSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	return string(data), nil
}

// WriteOutput writes data to path atomically: it writes to a temporary
// file in the same directory, then renames it over the destination, so a
// crash or interrupted write never leaves a half-written story file in
// the output's place.
func WriteOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".twyne-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}
	return nil
}
