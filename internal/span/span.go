// Package span provides source position and span types shared by every
// stage of the compiler, from the lexer through the image assembler's
// diagnostics.
package span

import "fmt"

// Position is a single point in a source file.
type Position struct {
	Offset int // byte offset from the start of the file
	Line   int // 1-based line number
	Column int // 1-based column number
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open byte range [Start, End) in a named source file,
// carried by every token and AST node; it never influences code
// generation.
type Span struct {
	File  string
	Start Position
	End   Position
}

func (s Span) String() string {
	if s.File == "" {
		return fmt.Sprintf("%s-%s", s.Start, s.End)
	}
	return fmt.Sprintf("%s:%s-%s", s.File, s.Start, s.End)
}

// Len reports the byte length of the span.
func (s Span) Len() int {
	return s.End.Offset - s.Start.Offset
}

// Join returns the smallest span covering both a and b. Both must share
// the same file.
func Join(a, b Span) Span {
	start, end := a.Start, a.End
	if b.Start.Offset < start.Offset {
		start = b.Start
	}
	if b.End.Offset > end.Offset {
		end = b.End
	}
	return Span{File: a.File, Start: start, End: end}
}
