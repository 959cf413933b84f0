// Package lexer implements the context-sensitive Twee scanner: a small
// finite state machine with states
// {Prose, Macro, LinkLabel, LinkTarget, PassageHead}, modeled as a mode
// stack rather than an ambiguous grammar (prose and script have disjoint
// token sets), grounded on the rune-at-a-time read/unread scanner in
// gasm's own internal/ast/x86_64/lexer.go and the nested-mode stack
// technique in _examples/duhaifeng-light-lang's template-string lexer.
package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"twyne/internal/diag"
	"twyne/internal/span"
	"twyne/internal/token"
)

type mode int

const (
	modeProse mode = iota
	modeMacro
	modeLinkLabel
	modeLinkTarget
)

// Lexer tokenizes Twee source. It is restartable: Checkpoint/Restore let a
// caller save and rewind to a prior position.
type Lexer struct {
	src      []rune
	filename string

	pos  int
	line int
	col  int

	atLineStart bool
	stack       []mode

	boldOpen, italicOpen, monoOpen bool

	diags diag.Bag
}

// Checkpoint is an opaque, restorable lexer position.
type Checkpoint struct {
	pos, line, col                 int
	atLineStart                    bool
	stack                          []mode
	boldOpen, italicOpen, monoOpen bool
}

func New(src, filename string) *Lexer {
	return &Lexer{
		src:         []rune(src),
		filename:    filename,
		line:        1,
		col:         1,
		atLineStart: true,
	}
}

// Tokenize scans the entire source and returns every token plus any
// diagnostics accumulated along the way; the driver collects multiple
// lex errors before aborting rather than stopping at the first one.
func (l *Lexer) Tokenize() ([]token.Token, []diag.Diagnostic) {
	var toks []token.Token
	for {
		t := l.Next()
		toks = append(toks, t)
		if t.Kind == token.EOF {
			break
		}
	}
	return toks, l.diags.All()
}

func (l *Lexer) Checkpoint() Checkpoint {
	stack := make([]mode, len(l.stack))
	copy(stack, l.stack)
	return Checkpoint{l.pos, l.line, l.col, l.atLineStart, stack, l.boldOpen, l.italicOpen, l.monoOpen}
}

func (l *Lexer) Restore(c Checkpoint) {
	l.pos, l.line, l.col = c.pos, c.line, c.col
	l.atLineStart = c.atLineStart
	l.stack = c.stack
	l.boldOpen, l.italicOpen, l.monoOpen = c.boldOpen, c.italicOpen, c.monoOpen
}

// ---- rune cursor ----

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) peek() rune {
	if l.eof() {
		return 0
	}
	return l.src[l.pos]
}

func (l *Lexer) peekAt(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *Lexer) advance() rune {
	r := l.src[l.pos]
	l.pos++
	if r == '\n' {
		l.line++
		l.col = 1
		l.atLineStart = true
	} else {
		l.col++
		l.atLineStart = false
	}
	return r
}

func (l *Lexer) curPos() span.Position {
	return span.Position{Offset: l.pos, Line: l.line, Column: l.col}
}

func (l *Lexer) spanFrom(start span.Position) span.Span {
	return span.Span{File: l.filename, Start: start, End: l.curPos()}
}

func (l *Lexer) curMode() mode {
	if len(l.stack) == 0 {
		return modeProse
	}
	return l.stack[len(l.stack)-1]
}

func (l *Lexer) push(m mode) { l.stack = append(l.stack, m) }

func (l *Lexer) pop() {
	if len(l.stack) > 0 {
		l.stack = l.stack[:len(l.stack)-1]
	}
}

func (l *Lexer) setTop(m mode) {
	if len(l.stack) > 0 {
		l.stack[len(l.stack)-1] = m
	} else {
		l.stack = append(l.stack, m)
	}
}

func (l *Lexer) errorf(kind diag.Kind, s span.Span, format string, args ...interface{}) {
	l.diags.Errorf(kind, s, format, args...)
}

// ---- top level dispatch ----

// Next returns the next token, dispatching on the current mode.
func (l *Lexer) Next() token.Token {
	if l.atLineStart && l.curMode() == modeProse && l.peek() == ':' && l.peekAt(1) == ':' {
		return l.lexPassageHeader()
	}

	switch l.curMode() {
	case modeMacro:
		return l.lexMacro()
	case modeLinkLabel:
		return l.lexLinkText(modeLinkLabel)
	case modeLinkTarget:
		return l.lexLinkText(modeLinkTarget)
	default:
		return l.lexProse()
	}
}

// ---- passage headers ----

func (l *Lexer) lexPassageHeader() token.Token {
	start := l.curPos()
	l.advance() // ':'
	l.advance() // ':'
	for l.peek() == ' ' || l.peek() == '\t' {
		l.advance()
	}

	var name strings.Builder
	for !l.eof() && l.peek() != '\n' && l.peek() != '[' {
		name.WriteRune(l.advance())
	}

	var tags []string
	if l.peek() == '[' {
		l.advance()
		var cur strings.Builder
		for !l.eof() && l.peek() != ']' && l.peek() != '\n' {
			r := l.advance()
			if r == ' ' || r == '\t' {
				if cur.Len() > 0 {
					tags = append(tags, cur.String())
					cur.Reset()
				}
				continue
			}
			cur.WriteRune(r)
		}
		if cur.Len() > 0 {
			tags = append(tags, cur.String())
		}
		if l.peek() == ']' {
			l.advance()
		} else {
			l.errorf(diag.LexError, l.spanFrom(start), "unterminated tag list in passage header")
		}
	}

	for !l.eof() && l.peek() != '\n' {
		l.advance()
	}

	return token.Token{
		Kind:   token.PASSAGE_HEADER,
		Lexeme: strings.TrimSpace(name.String()),
		Span:   l.spanFrom(start),
		Tags:   tags,
	}
}

// ---- prose ----

func (l *Lexer) lexProse() token.Token {
	if l.eof() {
		return token.Token{Kind: token.EOF, Span: l.spanFrom(l.curPos())}
	}

	start := l.curPos()

	if l.peek() == '\n' {
		l.advance()
		return token.Token{Kind: token.NEWLINE, Lexeme: "\n", Span: l.spanFrom(start)}
	}

	if l.peek() == '/' && l.peekAt(1) == '%' {
		l.skipComment(start)
		return l.lexProse()
	}

	if l.peek() == '\'' && l.peekAt(1) == '\'' {
		l.advance()
		l.advance()
		l.boldOpen = !l.boldOpen
		return l.styleToken(token.StyleBold, l.boldOpen, start)
	}
	if l.peek() == '/' && l.peekAt(1) == '/' {
		l.advance()
		l.advance()
		l.italicOpen = !l.italicOpen
		return l.styleToken(token.StyleItalic, l.italicOpen, start)
	}
	if l.peek() == '{' && l.peekAt(1) == '{' && l.peekAt(2) == '{' {
		l.advance()
		l.advance()
		l.advance()
		if l.monoOpen {
			l.errorf(diag.LexError, l.spanFrom(start), "nested monospace span")
		}
		l.monoOpen = true
		return l.styleToken(token.StyleMono, true, start)
	}
	if l.peek() == '}' && l.peekAt(1) == '}' && l.peekAt(2) == '}' {
		l.advance()
		l.advance()
		l.advance()
		l.monoOpen = false
		return l.styleToken(token.StyleMono, false, start)
	}
	if l.peek() == '[' && l.peekAt(1) == '[' {
		l.advance()
		l.advance()
		l.push(modeLinkLabel)
		return token.Token{Kind: token.LINK_OPEN, Lexeme: "[[", Span: l.spanFrom(start)}
	}
	if l.peek() == '<' && l.peekAt(1) == '<' {
		l.advance()
		l.advance()
		l.push(modeMacro)
		return token.Token{Kind: token.MACRO_OPEN, Lexeme: "<<", Span: l.spanFrom(start)}
	}

	var text strings.Builder
	for !l.eof() {
		if l.peek() == '\n' {
			break
		}
		if l.peek() == '/' && l.peekAt(1) == '%' {
			break
		}
		if l.peek() == '\'' && l.peekAt(1) == '\'' {
			break
		}
		if l.peek() == '/' && l.peekAt(1) == '/' {
			break
		}
		if l.peek() == '{' && l.peekAt(1) == '{' && l.peekAt(2) == '{' {
			break
		}
		if l.peek() == '}' && l.peekAt(1) == '}' && l.peekAt(2) == '}' {
			break
		}
		if l.peek() == '[' && l.peekAt(1) == '[' {
			break
		}
		if l.peek() == '<' && l.peekAt(1) == '<' {
			break
		}
		text.WriteRune(l.advance())
	}
	return token.Token{Kind: token.TEXT, Lexeme: text.String(), Span: l.spanFrom(start)}
}

func (l *Lexer) styleToken(kind token.StyleKind, opening bool, start span.Position) token.Token {
	k := token.STYLE_CLOSE
	if opening {
		k = token.STYLE_OPEN
	}
	return token.Token{Kind: k, Lexeme: kind.String(), Span: l.spanFrom(start)}
}

func (l *Lexer) skipComment(start span.Position) {
	l.advance() // '/'
	l.advance() // '%'
	for {
		if l.eof() {
			l.errorf(diag.LexError, l.spanFrom(start), "unterminated comment")
			return
		}
		if l.peek() == '%' && l.peekAt(1) == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
}

// ---- links ----

func (l *Lexer) lexLinkText(m mode) token.Token {
	start := l.curPos()
	if l.eof() {
		l.errorf(diag.LexError, l.spanFrom(start), "unterminated link")
		l.pop()
		return token.Token{Kind: token.EOF, Span: l.spanFrom(start)}
	}

	if m == modeLinkLabel {
		if l.peek() == '\'' && l.peekAt(1) == '\'' {
			l.advance()
			l.advance()
			l.boldOpen = !l.boldOpen
			return l.styleToken(token.StyleBold, l.boldOpen, start)
		}
		if l.peek() == '/' && l.peekAt(1) == '/' {
			l.advance()
			l.advance()
			l.italicOpen = !l.italicOpen
			return l.styleToken(token.StyleItalic, l.italicOpen, start)
		}
		if l.peek() == '|' {
			l.advance()
			l.setTop(modeLinkTarget)
			return token.Token{Kind: token.LINK_MID, Lexeme: "|", Span: l.spanFrom(start)}
		}
	}

	if l.peek() == ']' && l.peekAt(1) == ']' {
		l.advance()
		l.advance()
		l.pop()
		return token.Token{Kind: token.LINK_CLOSE, Lexeme: "]]", Span: l.spanFrom(start)}
	}

	var text strings.Builder
	for !l.eof() {
		if l.peek() == ']' && l.peekAt(1) == ']' {
			break
		}
		if m == modeLinkLabel && l.peek() == '|' {
			break
		}
		if m == modeLinkLabel && l.peek() == '\'' && l.peekAt(1) == '\'' {
			break
		}
		if m == modeLinkLabel && l.peek() == '/' && l.peekAt(1) == '/' {
			break
		}
		if l.peek() == '\n' {
			break
		}
		text.WriteRune(l.advance())
	}
	return token.Token{Kind: token.TEXT, Lexeme: text.String(), Span: l.spanFrom(start)}
}

// ---- macro / script tokens ----

func (l *Lexer) lexMacro() token.Token {
	for !l.eof() && (l.peek() == ' ' || l.peek() == '\t' || l.peek() == '\n') {
		l.advance()
	}
	if l.eof() {
		l.errorf(diag.LexError, l.spanFrom(l.curPos()), "unterminated macro")
		l.pop()
		return token.Token{Kind: token.EOF, Span: l.spanFrom(l.curPos())}
	}

	start := l.curPos()

	if l.peek() == '>' && l.peekAt(1) == '>' {
		l.advance()
		l.advance()
		l.pop()
		return token.Token{Kind: token.MACRO_CLOSE, Lexeme: ">>", Span: l.spanFrom(start)}
	}

	if l.peek() == '"' || l.peek() == '\'' {
		return l.lexStringLit(start, l.peek())
	}

	if l.peek() == '$' {
		l.advance()
		var name strings.Builder
		for !l.eof() && isIdentPart(l.peek()) {
			name.WriteRune(l.advance())
		}
		return token.Token{Kind: token.VARIABLE, Lexeme: name.String(), Span: l.spanFrom(start)}
	}

	if unicode.IsDigit(l.peek()) {
		var num strings.Builder
		for !l.eof() && unicode.IsDigit(l.peek()) {
			num.WriteRune(l.advance())
		}
		v, _ := strconv.ParseInt(num.String(), 10, 64)
		return token.Token{Kind: token.INT_LIT, Lexeme: num.String(), IntValue: v, Span: l.spanFrom(start)}
	}

	if isIdentStart(l.peek()) {
		var id strings.Builder
		for !l.eof() && isIdentPart(l.peek()) {
			id.WriteRune(l.advance())
		}
		lit := id.String()
		lower := strings.ToLower(lit)
		if lower == "true" || lower == "false" {
			return token.Token{Kind: token.BOOL_LIT, Lexeme: lit, BoolVal: lower == "true", Span: l.spanFrom(start)}
		}
		if token.IsKeyword(lower) {
			return token.Token{Kind: token.KEYWORD, Lexeme: lower, Span: l.spanFrom(start)}
		}
		return token.Token{Kind: token.IDENT, Lexeme: lit, Span: l.spanFrom(start)}
	}

	return l.lexOperator(start)
}

// lexStringLit scans a macro-mode string literal opened with quote, either
// '"' or '\'' — display accepts passage names in either quoting style, so
// the closing delimiter must match whichever one opened it.
func (l *Lexer) lexStringLit(start span.Position, quote rune) token.Token {
	l.advance() // opening quote
	var sb strings.Builder
	for {
		if l.eof() {
			l.errorf(diag.LexError, l.spanFrom(start), "unterminated string literal")
			return token.Token{Kind: token.STR_LIT, Lexeme: sb.String(), Span: l.spanFrom(start)}
		}
		if l.peek() == quote {
			l.advance()
			return token.Token{Kind: token.STR_LIT, Lexeme: sb.String(), Span: l.spanFrom(start)}
		}
		if l.peek() == '\\' {
			l.advance()
			if l.eof() {
				break
			}
			esc := l.advance()
			switch esc {
			case 'n':
				sb.WriteRune('\n')
			case 't':
				sb.WriteRune('\t')
			case '\\':
				sb.WriteRune('\\')
			default:
				// Includes an escaped '"' or '\'': whichever delimiter
				// opened this literal, or any other character, is
				// passed through unescaped.
				sb.WriteRune(esc)
			}
			continue
		}
		sb.WriteRune(l.advance())
	}
	l.errorf(diag.LexError, l.spanFrom(start), "unterminated string literal")
	return token.Token{Kind: token.STR_LIT, Lexeme: sb.String(), Span: l.spanFrom(start)}
}

func (l *Lexer) lexOperator(start span.Position) token.Token {
	r := l.advance()
	two := func(next rune, lexeme string) (token.Token, bool) {
		if l.peek() == next {
			l.advance()
			return token.Token{Kind: token.OP, Lexeme: lexeme, Span: l.spanFrom(start)}, true
		}
		return token.Token{}, false
	}

	switch r {
	case '=':
		if t, ok := two('=', "=="); ok {
			return t
		}
	case '!':
		if t, ok := two('=', "!="); ok {
			return t
		}
	case '<':
		if t, ok := two('=', "<="); ok {
			return t
		}
		return token.Token{Kind: token.OP, Lexeme: "<", Span: l.spanFrom(start)}
	case '>':
		if t, ok := two('=', ">="); ok {
			return t
		}
		return token.Token{Kind: token.OP, Lexeme: ">", Span: l.spanFrom(start)}
	case '+', '-', '*', '/', '(', ')', ',':
		return token.Token{Kind: token.OP, Lexeme: string(r), Span: l.spanFrom(start)}
	}

	l.errorf(diag.LexError, l.spanFrom(start), "illegal character %q in macro", r)
	return token.Token{Kind: token.ILLEGAL, Lexeme: string(r), Span: l.spanFrom(start)}
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
