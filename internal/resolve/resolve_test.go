package resolve

import (
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/ast"
	"twyne/internal/diag"
)

func passage(name string, tags []string, body ...ast.BodyNode) *ast.Passage {
	return &ast.Passage{Name: name, Tags: tags, Body: body}
}

func TestResolveRequiresExactlyOneStart(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Lonely", nil),
	}}
	res := Resolve(story)
	be.True(t, hasError(res.Diagnostics, diag.ResolveError))
	be.True(t, res.Start == nil)
}

func TestResolveRejectsMultipleStarts(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil),
		passage("Start", nil),
	}}
	res := Resolve(story)
	be.True(t, hasError(res.Diagnostics, diag.ResolveError))
	be.Equal(t, res.Start.Name, "Start")
}

func TestResolveRejectsDuplicatePassageNames(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Meadow", nil),
		passage("Meadow", nil),
	}}
	res := Resolve(story)
	be.True(t, hasError(res.Diagnostics, diag.ResolveError))
}

func TestResolveRejectsUnknownLinkTarget(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil, &ast.Link{Target: "Nowhere"}),
	}}
	res := Resolve(story)
	be.True(t, hasError(res.Diagnostics, diag.ResolveError))
}

func TestResolveRejectsUnknownDisplayTarget(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil, &ast.Macro{Call: &ast.DisplayStmt{Target: "Nowhere"}}),
	}}
	res := Resolve(story)
	be.True(t, hasError(res.Diagnostics, diag.ResolveError))
}

func TestResolveComputesReachability(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil, &ast.Link{Target: "Next"}),
		passage("Next", nil),
		passage("Orphan", nil),
	}}
	res := Resolve(story)
	be.True(t, !hasError(res.Diagnostics, diag.ResolveError))
	be.True(t, res.Reachable["Start"])
	be.True(t, res.Reachable["Next"])
	be.True(t, !res.Reachable["Orphan"])
	be.True(t, hasWarning(res.Diagnostics, diag.Unreachable))
}

func TestResolveReachabilityToleratesCycles(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil, &ast.Link{Target: "Back"}),
		passage("Back", nil, &ast.Link{Target: "Start"}),
	}}
	res := Resolve(story)
	be.True(t, !hasError(res.Diagnostics, diag.ResolveError))
	be.True(t, res.Reachable["Back"])
}

func TestResolveFlagsUnusedVariable(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil, &ast.Macro{Call: &ast.SetStmt{Var: "x", Value: &ast.IntLit{Value: 1}}}),
	}}
	res := Resolve(story)
	be.True(t, hasWarning(res.Diagnostics, diag.UnusedVar))
}

func TestResolveDoesNotFlagReadVariable(t *testing.T) {
	story := &ast.Story{Passages: []*ast.Passage{
		passage("Start", nil,
			&ast.Macro{Call: &ast.SetStmt{Var: "x", Value: &ast.IntLit{Value: 1}}},
			&ast.Macro{Call: &ast.PrintShorthand{Var: "x"}},
		),
	}}
	res := Resolve(story)
	be.True(t, !hasWarning(res.Diagnostics, diag.UnusedVar))
}

func hasError(diags []diag.Diagnostic, kind diag.Kind) bool {
	for _, d := range diags {
		if d.Kind == kind && d.Severity == diag.Error {
			return true
		}
	}
	return false
}

func hasWarning(diags []diag.Diagnostic, kind diag.Kind) bool {
	for _, d := range diags {
		if d.Kind == kind && d.Severity == diag.Warning {
			return true
		}
	}
	return false
}
