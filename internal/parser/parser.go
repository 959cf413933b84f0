// parser.go implements the story parser: it consumes the token stream
// produced by internal/lexer, partitions it on PASSAGE_HEADER tokens, and
// assembles each passage's body tree, structurally matching style/link/
// macro open-close pairs and grouping <<if>>/<<else>>/<<endif>> triples
// into a single ast.IfStmt. The token-stream-partitioning style follows
// gasm's own top-level ParseFile().
package parser

import (
	"strings"

	"twyne/internal/ast"
	"twyne/internal/diag"
	"twyne/internal/span"
	"twyne/internal/token"
)

type terminator int

const (
	termNone terminator = iota
	termElse
	termEndif
)

// Parser builds a story AST from a flat token stream.
type Parser struct {
	toks  []token.Token
	pos   int
	diags diag.Bag
}

func New(toks []token.Token) *Parser {
	return &Parser{toks: toks}
}

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.toks) {
		if len(p.toks) > 0 {
			return token.Token{Kind: token.EOF, Span: p.toks[len(p.toks)-1].Span}
		}
		return token.Token{Kind: token.EOF}
	}
	return p.toks[p.pos]
}

func (p *Parser) advance() token.Token {
	t := p.peek()
	if p.pos < len(p.toks) {
		p.pos++
	}
	return t
}

func (p *Parser) errorf(kind diag.Kind, s span.Span, format string, args ...interface{}) {
	p.diags.Errorf(kind, s, format, args...)
}

// ParseStory tokenizes the whole file into a story AST, returning every
// diagnostic accumulated along the way.
func (p *Parser) ParseStory() (*ast.Story, []diag.Diagnostic) {
	story := &ast.Story{}

	for p.peek().Kind != token.PASSAGE_HEADER && p.peek().Kind != token.EOF {
		p.advance()
	}

	for p.peek().Kind == token.PASSAGE_HEADER {
		header := p.advance()
		body, term, _ := p.parseBodyUntil(false)
		if term != termNone {
			p.errorf(diag.ParseError, header.Span, "unmatched else/endif in passage %q", header.Lexeme)
		}
		story.Passages = append(story.Passages, &ast.Passage{
			Name: header.Lexeme,
			Tags: header.Tags,
			Body: body,
			Sp:   header.Span,
		})
	}

	return story, p.diags.All()
}

// parseBodyUntil parses body nodes until EOF, a new passage header, or (if
// insideIf) an else/endif macro at this nesting level, which is returned
// as the terminator rather than being included in the result.
func (p *Parser) parseBodyUntil(insideIf bool) ([]ast.BodyNode, terminator, span.Span) {
	var nodes []ast.BodyNode
	for {
		t := p.peek()
		switch t.Kind {
		case token.EOF, token.PASSAGE_HEADER:
			return nodes, termNone, t.Span

		case token.NEWLINE:
			p.advance()
			nodes = append(nodes, &ast.Text{Value: "\n", Sp: t.Span})

		case token.TEXT:
			p.advance()
			nodes = append(nodes, &ast.Text{Value: t.Lexeme, Sp: t.Span})

		case token.STYLE_OPEN:
			nodes = append(nodes, p.parseStyled())

		case token.LINK_OPEN:
			nodes = append(nodes, p.parseLink())

		case token.MACRO_OPEN:
			call, sp := p.parseMacroBlock()
			switch c := call.(type) {
			case *ast.IfOpenMarker:
				thenNodes, term, _ := p.parseBodyUntil(true)
				var elseNodes []ast.BodyNode
				if term == termElse {
					elseNodes, term, _ = p.parseBodyUntil(true)
				}
				if term != termEndif {
					p.errorf(diag.ParseError, sp, "if without matching endif")
				}
				nodes = append(nodes, &ast.Macro{Call: &ast.IfStmt{Cond: c.Cond, Then: thenNodes, Else: elseNodes, Sp: sp}, Sp: sp})
			case *ast.ElseMarker:
				if insideIf {
					return nodes, termElse, sp
				}
				p.errorf(diag.ParseError, sp, "else without matching if")
			case *ast.EndifMarker:
				if insideIf {
					return nodes, termEndif, sp
				}
				p.errorf(diag.ParseError, sp, "endif without matching if")
			case ast.MacroCall:
				nodes = append(nodes, &ast.Macro{Call: c, Sp: sp})
			}

		default:
			p.errorf(diag.ParseError, t.Span, "unexpected token %s in passage body", t.Kind)
			p.advance()
		}
	}
}

func styleKindFromLexeme(lexeme string) ast.StyleKind {
	switch lexeme {
	case "bold":
		return ast.StyleBold
	case "italic":
		return ast.StyleItalic
	default:
		return ast.StyleMono
	}
}

func (p *Parser) parseStyled() ast.BodyNode {
	open := p.advance() // STYLE_OPEN
	kind := styleKindFromLexeme(open.Lexeme)
	var children []ast.BodyNode
	end := open.Span

	for {
		t := p.peek()
		if t.Kind == token.EOF || t.Kind == token.PASSAGE_HEADER {
			p.errorf(diag.ParseError, open.Span, "unterminated %s span", open.Lexeme)
			break
		}
		if t.Kind == token.STYLE_CLOSE && t.Lexeme == open.Lexeme {
			p.advance()
			end = t.Span
			break
		}
		switch t.Kind {
		case token.NEWLINE:
			p.advance()
			children = append(children, &ast.Text{Value: "\n", Sp: t.Span})
		case token.TEXT:
			p.advance()
			children = append(children, &ast.Text{Value: t.Lexeme, Sp: t.Span})
		case token.STYLE_OPEN:
			children = append(children, p.parseStyled())
		case token.LINK_OPEN:
			children = append(children, p.parseLink())
		case token.MACRO_OPEN:
			call, sp := p.parseMacroBlock()
			if mc, ok := call.(ast.MacroCall); ok {
				switch mc.(type) {
				case *ast.IfOpenMarker, *ast.ElseMarker, *ast.EndifMarker:
					p.errorf(diag.ParseError, sp, "if/else/endif is not supported inside a styled span")
				default:
					children = append(children, &ast.Macro{Call: mc, Sp: sp})
				}
			}
		default:
			p.advance()
		}
	}

	return &ast.Styled{Kind: kind, Children: children, Sp: span.Join(open.Span, end)}
}

func (p *Parser) parseLink() ast.BodyNode {
	open := p.advance() // LINK_OPEN
	var label []ast.BodyNode
	hadMid := false
	end := open.Span

	for {
		t := p.peek()
		if t.Kind == token.EOF || t.Kind == token.PASSAGE_HEADER {
			p.errorf(diag.ParseError, open.Span, "unterminated link")
			return &ast.Link{Label: label, Target: renderPlain(label), Sp: span.Join(open.Span, end)}
		}
		if t.Kind == token.LINK_MID {
			p.advance()
			hadMid = true
			break
		}
		if t.Kind == token.LINK_CLOSE {
			p.advance()
			end = t.Span
			return &ast.Link{Label: label, Target: renderPlain(label), Sp: span.Join(open.Span, end)}
		}
		switch t.Kind {
		case token.STYLE_OPEN:
			label = append(label, p.parseStyled())
		case token.TEXT:
			p.advance()
			label = append(label, &ast.Text{Value: t.Lexeme, Sp: t.Span})
		default:
			p.advance()
		}
	}

	if !hadMid {
		return &ast.Link{Label: label, Target: renderPlain(label), Sp: span.Join(open.Span, end)}
	}

	var target strings.Builder
	for {
		t := p.peek()
		if t.Kind == token.LINK_CLOSE {
			p.advance()
			end = t.Span
			break
		}
		if t.Kind == token.EOF || t.Kind == token.PASSAGE_HEADER {
			p.errorf(diag.ParseError, open.Span, "unterminated link")
			break
		}
		if t.Kind == token.TEXT {
			target.WriteString(t.Lexeme)
		}
		p.advance()
	}

	return &ast.Link{Label: label, Target: strings.TrimSpace(target.String()), Sp: span.Join(open.Span, end)}
}

func renderPlain(nodes []ast.BodyNode) string {
	var sb strings.Builder
	for _, n := range nodes {
		switch v := n.(type) {
		case *ast.Text:
			sb.WriteString(v.Value)
		case *ast.Styled:
			sb.WriteString(renderPlain(v.Children))
		}
	}
	return strings.TrimSpace(sb.String())
}

// parseMacroBlock consumes a full "<<...>>" block and parses its content
// with a fresh ScriptParser.
func (p *Parser) parseMacroBlock() (ast.MacroCall, span.Span) {
	open := p.advance() // MACRO_OPEN
	var body []token.Token
	for p.peek().Kind != token.MACRO_CLOSE && p.peek().Kind != token.EOF && p.peek().Kind != token.PASSAGE_HEADER {
		body = append(body, p.advance())
	}

	closeSp := open.Span
	if p.peek().Kind == token.MACRO_CLOSE {
		c := p.advance()
		closeSp = c.Span
	} else {
		p.errorf(diag.ParseError, open.Span, "unterminated macro")
	}

	sp := span.Join(open.Span, closeSp)
	sub := NewScriptParser(body, &p.diags)
	return sub.ParseMacroBody(sp), sp
}
