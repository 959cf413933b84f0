// Package diag provides the diagnostic (error/warning) types shared by
// every compiler stage, grouping error kinds by the pipeline stage that
// produced them.
package diag

import (
	"fmt"

	"twyne/internal/span"
)

// Severity distinguishes a fatal diagnostic from an informational one.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// Kind names the compiler stage (and error kind) that produced a
// diagnostic.
type Kind string

const (
	LexError     Kind = "lex"
	ParseError   Kind = "parse"
	ResolveError Kind = "resolve"
	TypeError    Kind = "type"
	EncodeError  Kind = "encode"
	IOError      Kind = "io"
	Unreachable  Kind = "unreachable-passage"
	UnusedVar    Kind = "unused-variable"
)

// Diagnostic is a single compiler message with a source location.
type Diagnostic struct {
	Kind     Kind
	Severity Severity
	Span     span.Span
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: [%s] %s: %s", d.Span, d.Severity, d.Kind, d.Message)
}

func Errorf(kind Kind, s span.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: kind, Severity: Error, Span: s, Message: fmt.Sprintf(format, args...)}
}

func Warningf(kind Kind, s span.Span, format string, args ...interface{}) Diagnostic {
	return Diagnostic{Kind: kind, Severity: Warning, Span: s, Message: fmt.Sprintf(format, args...)}
}

// Bag accumulates diagnostics across a pipeline stage. It lets the lexer,
// parser, and resolver each collect every independent error they find
// before the driver decides whether to abort: the driver collects
// multiple lex/parse/resolve errors before aborting rather than stopping
// at the first one.
type Bag struct {
	items []Diagnostic
}

func (b *Bag) Add(d Diagnostic) { b.items = append(b.items, d) }

func (b *Bag) Errorf(kind Kind, s span.Span, format string, args ...interface{}) {
	b.Add(Errorf(kind, s, format, args...))
}

func (b *Bag) Warningf(kind Kind, s span.Span, format string, args ...interface{}) {
	b.Add(Warningf(kind, s, format, args...))
}

func (b *Bag) All() []Diagnostic { return b.items }

// HasErrors reports whether any accumulated diagnostic is fatal.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

func (b *Bag) Errors() []Diagnostic {
	var out []Diagnostic
	for _, d := range b.items {
		if d.Severity == Error {
			out = append(out, d)
		}
	}
	return out
}

func (b *Bag) Warnings() []Diagnostic {
	var out []Diagnostic
	for _, d := range b.items {
		if d.Severity == Warning {
			out = append(out, d)
		}
	}
	return out
}

func (b *Bag) Extend(other *Bag) {
	b.items = append(b.items, other.items...)
}
