package lexer

import (
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/token"
)

func kinds(toks []token.Token) []token.Kind {
	out := make([]token.Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizePassageHeaderWithTags(t *testing.T) {
	toks, diags := New(":: Start [Start widget]\nhi\n", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	be.Equal(t, toks[0].Kind, token.PASSAGE_HEADER)
	be.Equal(t, toks[0].Lexeme, "Start")
	be.Equal(t, toks[0].Tags, []string{"Start", "widget"})
}

func TestTokenizeStyleMarkersToggle(t *testing.T) {
	toks, diags := New("''bold''", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	be.Equal(t, toks[0].Kind, token.STYLE_OPEN)
	be.Equal(t, toks[2].Kind, token.STYLE_CLOSE)
}

func TestTokenizeLinkWithTarget(t *testing.T) {
	toks, diags := New("[[label|Target]]", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	got := kinds(toks)
	be.Equal(t, got[0], token.LINK_OPEN)
	be.Equal(t, got[len(got)-2], token.LINK_CLOSE)
}

func TestTokenizeMacroVariableAndKeyword(t *testing.T) {
	toks, diags := New("<<set $x to 3>>", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	be.Equal(t, toks[0].Kind, token.MACRO_OPEN)
	be.Equal(t, toks[1].Kind, token.KEYWORD)
	be.Equal(t, toks[1].Lexeme, "set")
	be.Equal(t, toks[2].Kind, token.VARIABLE)
	be.Equal(t, toks[2].Lexeme, "x")
	be.Equal(t, toks[3].Kind, token.KEYWORD)
	be.Equal(t, toks[4].Kind, token.INT_LIT)
	be.Equal(t, toks[4].IntValue, int64(3))
}

func TestTokenizeStringLiteralEscapes(t *testing.T) {
	toks, diags := New(`<<print "a\"b"+"\n">>`, "t").Tokenize()
	be.Equal(t, len(diags), 0)
	be.Equal(t, toks[2].Kind, token.STR_LIT)
	be.Equal(t, toks[2].Lexeme, `a"b`)
}

func TestTokenizeSingleQuotedStringLiteral(t *testing.T) {
	toks, diags := New("<<display 'Aside'>>", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	be.Equal(t, toks[2].Kind, token.STR_LIT)
	be.Equal(t, toks[2].Lexeme, "Aside")
}

func TestTokenizeUnterminatedMacroReportsLexError(t *testing.T) {
	_, diags := New("<<set $x to 1", "t").Tokenize()
	be.True(t, len(diags) > 0)
}

func TestTokenizeUnterminatedStringReportsLexError(t *testing.T) {
	_, diags := New(`<<print "never closed>>`, "t").Tokenize()
	be.True(t, len(diags) > 0)
}

func TestTokenizeComparisonOperators(t *testing.T) {
	toks, diags := New("<<if $x >= 3>>", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	var ops []string
	for _, tok := range toks {
		if tok.Kind == token.OP {
			ops = append(ops, tok.Lexeme)
		}
	}
	be.Equal(t, ops, []string{">="})
}

func TestTokenizeSkipsComments(t *testing.T) {
	toks, diags := New("before /% a comment %/ after\n", "t").Tokenize()
	be.Equal(t, len(diags), 0)
	var text string
	for _, tok := range toks {
		if tok.Kind == token.TEXT {
			text += tok.Lexeme
		}
	}
	be.Equal(t, text, "before  after")
}
