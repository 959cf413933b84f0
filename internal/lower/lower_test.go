package lower

import (
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/ast"
	"twyne/internal/diag"
	"twyne/internal/ir"
	"twyne/internal/resolve"
)

func storyWith(passages ...*ast.Passage) (*ast.Story, *resolve.Result) {
	story := &ast.Story{Passages: passages}
	res := resolve.Resolve(story)
	return story, res
}

func findRoutine(mod *ir.Module, name string) *ir.Routine {
	return mod.FindRoutine(name)
}

func TestLowerNamesRoutinesBySanitizedPassageName(t *testing.T) {
	story, res := storyWith(
		&ast.Passage{Name: "Start", Body: []ast.BodyNode{&ast.Link{Target: "The Dark Woods!"}}},
		&ast.Passage{Name: "The Dark Woods!"},
	)
	mod, diags := Lower(story, res)
	be.Equal(t, len(diags), 0)
	be.True(t, findRoutine(mod, "R_The_Dark_Woods_") != nil)
}

func TestLowerTextEmitsPrintStr(t *testing.T) {
	story, res := storyWith(&ast.Passage{
		Name: "Start",
		Body: []ast.BodyNode{&ast.Text{Value: "hi"}},
	})
	mod, _ := Lower(story, res)
	r := findRoutine(mod, "R_Start")
	be.Equal(t, len(r.Instrs), 1)
	be.Equal(t, r.Instrs[0].Op, ir.OpPrintStr)
	be.Equal(t, mod.Strings[r.Instrs[0].Operands[0].StringIdx], "hi")
}

func TestLowerLinkAppendsDispatchAfterAllLinks(t *testing.T) {
	story, res := storyWith(
		&ast.Passage{
			Name: "Start",
			Body: []ast.BodyNode{
				&ast.Link{Target: "North", Label: []ast.BodyNode{&ast.Text{Value: "go north"}}},
				&ast.Link{Target: "South", Label: []ast.BodyNode{&ast.Text{Value: "go south"}}},
			},
		},
		&ast.Passage{Name: "North"},
		&ast.Passage{Name: "South"},
	)
	mod, diags := Lower(story, res)
	be.Equal(t, len(diags), 0)

	r := findRoutine(mod, "R_Start")
	be.Equal(t, len(r.Links), 2)
	be.Equal(t, r.Links[0].Target, "R_North")
	be.Equal(t, r.Links[1].Target, "R_South")

	// The dispatch tail reads the player's choice with a read_choice op.
	var sawReadChoice bool
	for _, ins := range r.Instrs {
		if ins.Op == ir.OpReadChoice {
			sawReadChoice = true
		}
	}
	be.True(t, sawReadChoice)
}

func TestLowerSetNumericUsesGlobalStore(t *testing.T) {
	story, res := storyWith(&ast.Passage{
		Name: "Start",
		Body: []ast.BodyNode{
			&ast.Macro{Call: &ast.SetStmt{Var: "x", Value: &ast.IntLit{Value: 3}}},
		},
	})
	mod, diags := Lower(story, res)
	be.Equal(t, len(diags), 0)
	r := findRoutine(mod, "R_Start")

	var sawStore bool
	for _, ins := range r.Instrs {
		if ins.Op == ir.OpStore {
			sawStore = true
			be.Equal(t, ins.Operands[0].Kind, ir.OpGlobalVar)
		}
	}
	be.True(t, sawStore)
}

func TestLowerStringConcatRequiresConstantFold(t *testing.T) {
	story, res := storyWith(&ast.Passage{
		Name: "Start",
		Body: []ast.BodyNode{
			&ast.Macro{Call: &ast.SetStmt{Var: "greeting", Value: &ast.BinExpr{
				Op:    "+",
				Left:  &ast.StrLit{Value: "hi "},
				Right: &ast.VarRef{Name: "name"},
			}}},
		},
	})
	_, diags := Lower(story, res)
	be.True(t, hasKind(diags, diag.TypeError))
}

func TestLowerStringConcatFoldsConstants(t *testing.T) {
	story, res := storyWith(&ast.Passage{
		Name: "Start",
		Body: []ast.BodyNode{
			&ast.Macro{Call: &ast.SetStmt{Var: "greeting", Value: &ast.BinExpr{
				Op:    "+",
				Left:  &ast.StrLit{Value: "hi "},
				Right: &ast.StrLit{Value: "there"},
			}}},
			&ast.Macro{Call: &ast.PrintShorthand{Var: "greeting"}},
		},
	})
	mod, diags := Lower(story, res)
	be.Equal(t, len(diags), 0)

	var found bool
	for _, s := range mod.Strings {
		if s == "hi there" {
			found = true
		}
	}
	be.True(t, found)
}

func TestLowerRandomCallDecomposesToRangeAndOffset(t *testing.T) {
	story, res := storyWith(&ast.Passage{
		Name: "Start",
		Body: []ast.BodyNode{
			&ast.Macro{Call: &ast.SetStmt{Var: "roll", Value: &ast.CallExpr{
				Name: "random",
				Args: []ast.Expr{&ast.IntLit{Value: 1}, &ast.IntLit{Value: 6}},
			}}},
		},
	})
	mod, diags := Lower(story, res)
	be.Equal(t, len(diags), 0)
	r := findRoutine(mod, "R_Start")

	var sawRandom bool
	for _, ins := range r.Instrs {
		if ins.Op == ir.OpRandom {
			sawRandom = true
		}
	}
	be.True(t, sawRandom)
}

func hasKind(diags []diag.Diagnostic, kind diag.Kind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
