package parser

import (
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/ast"
	"twyne/internal/lexer"
)

func parse(t *testing.T, src string) (*ast.Story, []interface{}) {
	t.Helper()
	toks, lexDiags := lexer.New(src, "t").Tokenize()
	be.Equal(t, len(lexDiags), 0)
	p := New(toks)
	story, diags := p.ParseStory()
	out := make([]interface{}, len(diags))
	for i, d := range diags {
		out[i] = d
	}
	return story, out
}

func TestParseStoryWithOnePassage(t *testing.T) {
	story, diags := parse(t, ":: Start\nHello.\n")
	be.Equal(t, len(diags), 0)
	be.Equal(t, len(story.Passages), 1)
	be.Equal(t, story.Passages[0].Name, "Start")
}

func TestParseIfElseEndifGroupsBranches(t *testing.T) {
	story, diags := parse(t, ""+
		":: Start\n"+
		"<<if $x>>\nyes\n<<else>>\nno\n<<endif>>\n")
	be.Equal(t, len(diags), 0)

	body := story.Passages[0].Body
	var ifNode *ast.IfStmt
	for _, n := range body {
		if m, ok := n.(*ast.Macro); ok {
			if ifs, ok := m.Call.(*ast.IfStmt); ok {
				ifNode = ifs
			}
		}
	}
	be.True(t, ifNode != nil)
	be.True(t, len(ifNode.Then) > 0)
	be.True(t, len(ifNode.Else) > 0)
}

func TestParseIfWithoutElse(t *testing.T) {
	story, diags := parse(t, ":: Start\n<<if $x>>\nyes\n<<endif>>\n")
	be.Equal(t, len(diags), 0)
	be.Equal(t, len(story.Passages[0].Body), 3) // newline, if, newline
}

func TestParseStringLiteralShorthandPrintsLiteral(t *testing.T) {
	story, diags := parse(t, ":: Start\n<<\"hi there\">>\n")
	be.Equal(t, len(diags), 0)

	var print *ast.PrintStmt
	for _, n := range story.Passages[0].Body {
		if m, ok := n.(*ast.Macro); ok {
			if p, ok := m.Call.(*ast.PrintStmt); ok {
				print = p
			}
		}
	}
	be.True(t, print != nil)
	lit, ok := print.Value.(*ast.StrLit)
	be.True(t, ok)
	be.Equal(t, lit.Value, "hi there")
}

func TestParseDisplayAcceptsSingleQuotedTarget(t *testing.T) {
	story, diags := parse(t, ":: Start\n<<display 'Aside'>>\n\n:: Aside\nA fine day.\n")
	be.Equal(t, len(diags), 0)

	var display *ast.DisplayStmt
	for _, n := range story.Passages[0].Body {
		if m, ok := n.(*ast.Macro); ok {
			if d, ok := m.Call.(*ast.DisplayStmt); ok {
				display = d
			}
		}
	}
	be.True(t, display != nil)
	be.Equal(t, display.Target, "Aside")
}

func TestParseLinkWithPipeTarget(t *testing.T) {
	story, diags := parse(t, ":: Start\n[[Go north|North]]\n\n:: North\nok\n")
	be.Equal(t, len(diags), 0)

	var link *ast.Link
	for _, n := range story.Passages[0].Body {
		if l, ok := n.(*ast.Link); ok {
			link = l
		}
	}
	be.True(t, link != nil)
	be.Equal(t, link.Target, "North")
}

func TestParseLinkWithoutPipeUsesLabelAsTarget(t *testing.T) {
	story, diags := parse(t, ":: Start\n[[North]]\n\n:: North\nok\n")
	be.Equal(t, len(diags), 0)

	var link *ast.Link
	for _, n := range story.Passages[0].Body {
		if l, ok := n.(*ast.Link); ok {
			link = l
		}
	}
	be.True(t, link != nil)
	be.Equal(t, link.Target, "North")
}

func TestParseUnmatchedEndifReportsError(t *testing.T) {
	_, diags := parse(t, ":: Start\n<<endif>>\n")
	be.True(t, len(diags) > 0)
}

func TestParseUnterminatedStyledSpanReportsError(t *testing.T) {
	_, diags := parse(t, ":: Start\n''never closed\n")
	be.True(t, len(diags) > 0)
}

func TestParseMultiplePassages(t *testing.T) {
	story, diags := parse(t, ":: Start\na\n\n:: Second\nb\n")
	be.Equal(t, len(diags), 0)
	be.Equal(t, len(story.Passages), 2)
	be.Equal(t, story.Passages[1].Name, "Second")
}
