// Package ast defines the story AST produced by internal/parser: passages
// built from prose, styled runs, links, and embedded script macros. It
// follows gasm's own Node-interface-with-marker-method pattern
// (internal/ast/ast.go), widened from an assembly file's items to a Twee
// story's passages.
package ast

import "twyne/internal/span"

// Node is any AST node that carries a source span.
type Node interface {
	node()
	Span() span.Span
}

// Story is the root of a compiled Twee source file: the full set of
// passages in declaration order.
type Story struct {
	Passages []*Passage
}

// Passage is a single "::Name [tags]" section and its body.
type Passage struct {
	Name string
	Tags []string
	Body []BodyNode
	Sp   span.Span
}

func (p *Passage) node()        {}
func (p *Passage) Span() span.Span { return p.Sp }

// BodyNode is one element of a passage's body: prose text, a styled run,
// a link, or a macro invocation.
type BodyNode interface {
	Node
	bodyNode()
}

// Text is a literal run of prose, emitted to the transcript verbatim.
type Text struct {
	Value string
	Sp    span.Span
}

func (t *Text) node()            {}
func (t *Text) Span() span.Span  { return t.Sp }
func (t *Text) bodyNode()        {}

// StyleKind names which of the three Twee style markers a Styled node uses.
type StyleKind int

const (
	StyleBold StyleKind = iota
	StyleItalic
	StyleMono
)

// Styled wraps a run of body nodes in a bold/italic/monospace span.
type Styled struct {
	Kind     StyleKind
	Children []BodyNode
	Sp       span.Span
}

func (s *Styled) node()           {}
func (s *Styled) Span() span.Span { return s.Sp }
func (s *Styled) bodyNode()       {}

// Link is a "[[Label|Target]]" or "[[Target]]" reference to another
// passage. For the single-argument form the parser fills Label with the
// bracketed text and derives Target from that same text.
type Link struct {
	Label  []BodyNode
	Target string
	Sp     span.Span
}

func (l *Link) node()           {}
func (l *Link) Span() span.Span { return l.Sp }
func (l *Link) bodyNode()       {}

// Macro wraps a single macro invocation ("<<...>>") as a body node.
type Macro struct {
	Call MacroCall
	Sp   span.Span
}

func (m *Macro) node()           {}
func (m *Macro) Span() span.Span { return m.Sp }
func (m *Macro) bodyNode()       {}

// MacroCall is the parsed content of a "<<...>>" block.
type MacroCall interface {
	Node
	macroCall()
}

// SetStmt implements "<<set $name to expr>>".
type SetStmt struct {
	Var   string
	Value Expr
	Sp    span.Span
}

func (s *SetStmt) node()           {}
func (s *SetStmt) Span() span.Span { return s.Sp }
func (s *SetStmt) macroCall()      {}

// PrintStmt implements "<<print expr>>".
type PrintStmt struct {
	Value Expr
	Sp    span.Span
}

func (p *PrintStmt) node()           {}
func (p *PrintStmt) Span() span.Span { return p.Sp }
func (p *PrintStmt) macroCall()      {}

// PrintShorthand implements the "<<$name>>" shorthand for printing a
// variable without the "print" keyword.
type PrintShorthand struct {
	Var string
	Sp  span.Span
}

func (p *PrintShorthand) node()           {}
func (p *PrintShorthand) Span() span.Span { return p.Sp }
func (p *PrintShorthand) macroCall()      {}

// DisplayStmt implements "<<display "Target">>", splicing another
// passage's body in place.
type DisplayStmt struct {
	Target string
	Sp     span.Span
}

func (d *DisplayStmt) node()           {}
func (d *DisplayStmt) Span() span.Span { return d.Sp }
func (d *DisplayStmt) macroCall()      {}

// IfStmt implements "<<if cond>>...<<else>>...<<endif>>". Else is nil when
// the source omitted the else branch.
type IfStmt struct {
	Cond Expr
	Then []BodyNode
	Else []BodyNode
	Sp   span.Span
}

func (i *IfStmt) node()           {}
func (i *IfStmt) Span() span.Span { return i.Sp }
func (i *IfStmt) macroCall()      {}

// IfOpenMarker, ElseMarker, and EndifMarker are control-flow markers
// consumed by the story parser (internal/parser/parser.go) to group
// Then/Else bodies; they never appear in the final AST returned to
// internal/lower.
type IfOpenMarker struct {
	Cond Expr
	Sp   span.Span
}

func (m *IfOpenMarker) node()           {}
func (m *IfOpenMarker) Span() span.Span { return m.Sp }
func (m *IfOpenMarker) macroCall()      {}

type ElseMarker struct{ Sp span.Span }

func (m *ElseMarker) node()           {}
func (m *ElseMarker) Span() span.Span { return m.Sp }
func (m *ElseMarker) macroCall()      {}

type EndifMarker struct{ Sp span.Span }

func (m *EndifMarker) node()           {}
func (m *EndifMarker) Span() span.Span { return m.Sp }
func (m *EndifMarker) macroCall()      {}

// Expr is any expression in the embedded script sublanguage.
type Expr interface {
	Node
	expr()
}

type IntLit struct {
	Value int64
	Sp    span.Span
}

func (e *IntLit) node()           {}
func (e *IntLit) Span() span.Span { return e.Sp }
func (e *IntLit) expr()           {}

type BoolLit struct {
	Value bool
	Sp    span.Span
}

func (e *BoolLit) node()           {}
func (e *BoolLit) Span() span.Span { return e.Sp }
func (e *BoolLit) expr()           {}

type StrLit struct {
	Value string
	Sp    span.Span
}

func (e *StrLit) node()           {}
func (e *StrLit) Span() span.Span { return e.Sp }
func (e *StrLit) expr()           {}

// VarRef references a script variable by name (without its leading '$').
type VarRef struct {
	Name string
	Sp   span.Span
}

func (e *VarRef) node()           {}
func (e *VarRef) Span() span.Span { return e.Sp }
func (e *VarRef) expr()           {}

// BinExpr is a binary operation: arithmetic (+ - * /), comparison
// (== != < <= > >= and their "is" synonym), or logical (and/or).
type BinExpr struct {
	Op    string
	Left  Expr
	Right Expr
	Sp    span.Span
}

func (e *BinExpr) node()           {}
func (e *BinExpr) Span() span.Span { return e.Sp }
func (e *BinExpr) expr()           {}

// UnaryExpr is a unary operation: "not" or unary minus.
type UnaryExpr struct {
	Op string
	X  Expr
	Sp span.Span
}

func (e *UnaryExpr) node()           {}
func (e *UnaryExpr) Span() span.Span { return e.Sp }
func (e *UnaryExpr) expr()           {}

// CallExpr is a built-in function call, namely "random(lo, hi)".
type CallExpr struct {
	Name string
	Args []Expr
	Sp   span.Span
}

func (e *CallExpr) node()           {}
func (e *CallExpr) Span() span.Span { return e.Sp }
func (e *CallExpr) expr()           {}
