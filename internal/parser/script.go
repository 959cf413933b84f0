// script.go implements the embedded script sublanguage's recursive-descent
// expression parser and its surrounding statement forms:
// "or" < "and" < "not" < comparison < additive < multiplicative <
// unary-minus < primary, restructured from the binding-power ladder in
// _examples/duhaifeng-light-lang's internal/parser/parser.go and the
// parseExprLevel1/2/Factor recursive-descent style in gasm's own
// internal/parser/parser.go.
package parser

import (
	"strings"

	"twyne/internal/ast"
	"twyne/internal/diag"
	"twyne/internal/span"
	"twyne/internal/token"
)

// ScriptParser parses the token stream captured between a MACRO_OPEN and
// MACRO_CLOSE pair.
type ScriptParser struct {
	toks  []token.Token
	pos   int
	diags *diag.Bag
}

func NewScriptParser(toks []token.Token, diags *diag.Bag) *ScriptParser {
	return &ScriptParser{toks: toks, diags: diags}
}

func (p *ScriptParser) peek() token.Token {
	if p.pos >= len(p.toks) {
		if len(p.toks) > 0 {
			return token.Token{Kind: token.EOF, Span: p.toks[len(p.toks)-1].Span}
		}
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *ScriptParser) advance() token.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *ScriptParser) atEnd() bool { return p.pos >= len(p.toks) }

func (p *ScriptParser) errorf(s span.Span, format string, args ...interface{}) {
	p.diags.Errorf(diag.ParseError, s, format, args...)
}

// ---- macro-level dispatch ----

// ParseMacroBody parses one "<<...>>" block's content into a MacroCall.
// sp is the span of the whole macro block, used when the body is empty or
// malformed.
func (p *ScriptParser) ParseMacroBody(sp span.Span) ast.MacroCall {
	if p.atEnd() {
		p.errorf(sp, "empty macro")
		return &ast.PrintStmt{Value: &ast.StrLit{Value: ""}, Sp: sp}
	}

	if p.peek().Kind == token.KEYWORD {
		switch p.peek().Lexeme {
		case "set":
			return p.parseSet(sp)
		case "print":
			return p.parsePrint(sp)
		case "display":
			return p.parseDisplay(sp)
		case "if":
			return p.parseIf(sp)
		case "else":
			p.advance()
			return &ast.ElseMarker{Sp: sp}
		case "endif":
			p.advance()
			return &ast.EndifMarker{Sp: sp}
		}
	}

	if p.peek().Kind == token.VARIABLE && p.pos == len(p.toks)-1 {
		v := p.advance()
		return &ast.PrintShorthand{Var: v.Lexeme, Sp: sp}
	}

	if p.peek().Kind == token.STR_LIT && p.pos == len(p.toks)-1 {
		s := p.advance()
		return &ast.PrintStmt{Value: &ast.StrLit{Value: s.Lexeme, Sp: s.Span}, Sp: sp}
	}

	// A bare identifier ("<<Name>>") displays the passage of that name;
	// internal/resolve reports it if no such passage exists.
	if p.peek().Kind == token.IDENT && p.pos == len(p.toks)-1 {
		id := p.advance()
		return &ast.DisplayStmt{Target: id.Lexeme, Sp: sp}
	}

	p.errorf(sp, "unrecognized macro form")
	expr := p.parseExpr()
	return &ast.PrintStmt{Value: expr, Sp: sp}
}

func (p *ScriptParser) parseSet(sp span.Span) ast.MacroCall {
	p.advance() // "set"
	if p.peek().Kind != token.VARIABLE {
		p.errorf(sp, "expected variable after set")
		return &ast.SetStmt{Sp: sp}
	}
	v := p.advance()
	if p.peek().Kind == token.KEYWORD && p.peek().Lexeme == "to" {
		p.advance()
	} else {
		p.errorf(sp, "expected 'to' in set statement")
	}
	value := p.parseExpr()
	return &ast.SetStmt{Var: v.Lexeme, Value: value, Sp: sp}
}

func (p *ScriptParser) parsePrint(sp span.Span) ast.MacroCall {
	p.advance() // "print"
	return &ast.PrintStmt{Value: p.parseExpr(), Sp: sp}
}

func (p *ScriptParser) parseDisplay(sp span.Span) ast.MacroCall {
	p.advance() // "display"
	t := p.peek()
	var target string
	switch t.Kind {
	case token.STR_LIT:
		p.advance()
		target = t.Lexeme
	case token.IDENT:
		p.advance()
		target = t.Lexeme
	default:
		p.errorf(sp, "expected passage name after display")
	}
	return &ast.DisplayStmt{Target: target, Sp: sp}
}

func (p *ScriptParser) parseIf(sp span.Span) ast.MacroCall {
	p.advance() // "if"
	cond := p.parseExpr()
	return &ast.IfOpenMarker{Cond: cond, Sp: sp}
}

// ---- expression precedence ladder ----

func (p *ScriptParser) parseExpr() ast.Expr { return p.parseOr() }

func (p *ScriptParser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.peek().Kind == token.KEYWORD && p.peek().Lexeme == "or" {
		op := p.advance()
		right := p.parseAnd()
		left = &ast.BinExpr{Op: "or", Left: left, Right: right, Sp: span.Join(left.Span(), op.Span)}
	}
	return left
}

func (p *ScriptParser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.peek().Kind == token.KEYWORD && p.peek().Lexeme == "and" {
		op := p.advance()
		right := p.parseNot()
		left = &ast.BinExpr{Op: "and", Left: left, Right: right, Sp: span.Join(left.Span(), op.Span)}
	}
	return left
}

func (p *ScriptParser) parseNot() ast.Expr {
	if p.peek().Kind == token.KEYWORD && p.peek().Lexeme == "not" {
		op := p.advance()
		x := p.parseNot()
		return &ast.UnaryExpr{Op: "not", X: x, Sp: span.Join(op.Span, x.Span())}
	}
	return p.parseComparison()
}

func isComparisonOp(t token.Token) (string, bool) {
	if t.Kind == token.OP {
		switch t.Lexeme {
		case "==", "!=", "<", "<=", ">", ">=":
			return t.Lexeme, true
		}
	}
	if t.Kind == token.KEYWORD && t.Lexeme == "is" {
		return "==", true
	}
	return "", false
}

func (p *ScriptParser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	if op, ok := isComparisonOp(p.peek()); ok {
		opTok := p.advance()
		right := p.parseAdditive()
		left = &ast.BinExpr{Op: op, Left: left, Right: right, Sp: span.Join(left.Span(), opTok.Span)}
	}
	return left
}

func (p *ScriptParser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.peek().Kind == token.OP && (p.peek().Lexeme == "+" || p.peek().Lexeme == "-") {
		op := p.advance()
		right := p.parseMultiplicative()
		left = &ast.BinExpr{Op: op.Lexeme, Left: left, Right: right, Sp: span.Join(left.Span(), op.Span)}
	}
	return left
}

func (p *ScriptParser) parseMultiplicative() ast.Expr {
	left := p.parseUnaryMinus()
	for p.peek().Kind == token.OP && (p.peek().Lexeme == "*" || p.peek().Lexeme == "/") {
		op := p.advance()
		right := p.parseUnaryMinus()
		left = &ast.BinExpr{Op: op.Lexeme, Left: left, Right: right, Sp: span.Join(left.Span(), op.Span)}
	}
	return left
}

func (p *ScriptParser) parseUnaryMinus() ast.Expr {
	if p.peek().Kind == token.OP && p.peek().Lexeme == "-" {
		op := p.advance()
		x := p.parseUnaryMinus()
		return &ast.UnaryExpr{Op: "-", X: x, Sp: span.Join(op.Span, x.Span())}
	}
	return p.parsePrimary()
}

func (p *ScriptParser) parsePrimary() ast.Expr {
	t := p.peek()
	switch t.Kind {
	case token.INT_LIT:
		p.advance()
		return &ast.IntLit{Value: t.IntValue, Sp: t.Span}
	case token.BOOL_LIT:
		p.advance()
		return &ast.BoolLit{Value: t.BoolVal, Sp: t.Span}
	case token.STR_LIT:
		p.advance()
		return &ast.StrLit{Value: t.Lexeme, Sp: t.Span}
	case token.VARIABLE:
		p.advance()
		return &ast.VarRef{Name: t.Lexeme, Sp: t.Span}
	case token.OP:
		if t.Lexeme == "(" {
			p.advance()
			inner := p.parseExpr()
			if p.peek().Kind == token.OP && p.peek().Lexeme == ")" {
				p.advance()
			} else {
				p.errorf(t.Span, "expected ')'")
			}
			return inner
		}
	case token.KEYWORD:
		if t.Lexeme == "random" {
			return p.parseRandomCall()
		}
	case token.IDENT:
		if strings.EqualFold(t.Lexeme, "random") {
			return p.parseRandomCall()
		}
	}

	p.errorf(t.Span, "expected expression, found %s", t.Kind)
	p.advance()
	return &ast.IntLit{Value: 0, Sp: t.Span}
}

func (p *ScriptParser) parseRandomCall() ast.Expr {
	start := p.advance() // "random"
	var args []ast.Expr
	if p.peek().Kind == token.OP && p.peek().Lexeme == "(" {
		p.advance()
		if !(p.peek().Kind == token.OP && p.peek().Lexeme == ")") {
			args = append(args, p.parseExpr())
			for p.peek().Kind == token.OP && p.peek().Lexeme == "," {
				p.advance()
				args = append(args, p.parseExpr())
			}
		}
		end := p.peek()
		if p.peek().Kind == token.OP && p.peek().Lexeme == ")" {
			p.advance()
		} else {
			p.errorf(start.Span, "expected ')' after random arguments")
		}
		return &ast.CallExpr{Name: "random", Args: args, Sp: span.Join(start.Span, end.Span)}
	}
	p.errorf(start.Span, "expected '(' after random")
	return &ast.CallExpr{Name: "random", Args: args, Sp: start.Span}
}
