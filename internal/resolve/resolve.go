// Package resolve implements the semantic-checking pass that runs between
// parsing and IR lowering: it confirms there is exactly one Start passage,
// resolves every link/display target against the declared passage set,
// computes reachability from Start by breadth-first search, and flags
// variables that are written but never read. It is the Go-native
// equivalent of the original zwreec compiler's frontend/screener pass,
// widened from that pass's single responsibility (stream sanitation) to
// this fuller set of semantic checks, and grounded on gasm's own
// duplicate-symbol check in internal/asm/assembler.go's Assemble().
package resolve

import (
	"twyne/internal/ast"
	"twyne/internal/diag"
	"twyne/internal/span"
)

// Result carries the information later pipeline stages (internal/lower)
// need beyond the bare AST: which passage is Start and which passages are
// reachable from it.
type Result struct {
	Start       *ast.Passage
	Reachable   map[string]bool
	Diagnostics []diag.Diagnostic
}

// Resolve validates a story's cross-passage references and returns the
// fatal diagnostics alongside informational warnings. Callers should treat
// any diag.Error among Result.Diagnostics as fatal and still proceed past
// warnings.
func Resolve(story *ast.Story) *Result {
	var bag diag.Bag
	res := &Result{Reachable: map[string]bool{}}

	byName := map[string]*ast.Passage{}
	for _, p := range story.Passages {
		if prev, dup := byName[p.Name]; dup {
			bag.Errorf(diag.ResolveError, p.Sp, "passage %q redeclared (first declared at %s)", p.Name, prev.Sp)
			continue
		}
		byName[p.Name] = p
	}

	var starts []*ast.Passage
	for _, p := range story.Passages {
		if p.Name == "Start" {
			starts = append(starts, p)
		}
	}
	switch len(starts) {
	case 0:
		bag.Errorf(diag.ResolveError, storySpan(story), "no passage named Start")
	case 1:
		res.Start = starts[0]
	default:
		for _, p := range starts[1:] {
			bag.Errorf(diag.ResolveError, p.Sp, "multiple passages named Start (first at %s)", starts[0].Sp)
		}
		res.Start = starts[0]
	}

	for _, p := range story.Passages {
		walkBody(p.Body, func(n ast.BodyNode) {
			switch v := n.(type) {
			case *ast.Link:
				if _, ok := byName[v.Target]; !ok {
					bag.Errorf(diag.ResolveError, v.Sp, "link target %q does not exist", v.Target)
				}
			}
		})
		walkMacros(p.Body, func(m ast.MacroCall) {
			if d, ok := m.(*ast.DisplayStmt); ok {
				if _, ok := byName[d.Target]; !ok {
					bag.Errorf(diag.ResolveError, d.Sp, "display target %q does not exist", d.Target)
				}
			}
		})
	}

	if res.Start != nil {
		reachable := bfsReachable(res.Start, byName)
		res.Reachable = reachable
		for _, p := range story.Passages {
			if !reachable[p.Name] {
				bag.Warningf(diag.Unreachable, p.Sp, "passage %q is not reachable from Start", p.Name)
			}
		}
	}

	checkUnusedVars(story, &bag)

	res.Diagnostics = bag.All()
	return res
}

// storySpan returns a best-effort span for a diagnostic that has no single
// passage to point at, preferring the first declared passage.
func storySpan(story *ast.Story) span.Span {
	if len(story.Passages) > 0 {
		return story.Passages[0].Sp
	}
	return span.Span{}
}

// bfsReachable walks the Link/Display edge graph from start using a
// visited set rather than recursion, so cycles between passages (a
// passage linking back to one of its ancestors) terminate normally.
func bfsReachable(start *ast.Passage, byName map[string]*ast.Passage) map[string]bool {
	visited := map[string]bool{start.Name: true}
	queue := []*ast.Passage{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		var targets []string
		walkBody(cur.Body, func(n ast.BodyNode) {
			if v, ok := n.(*ast.Link); ok {
				targets = append(targets, v.Target)
			}
		})
		walkMacros(cur.Body, func(m ast.MacroCall) {
			if d, ok := m.(*ast.DisplayStmt); ok {
				targets = append(targets, d.Target)
			}
		})

		for _, t := range targets {
			if visited[t] {
				continue
			}
			next, ok := byName[t]
			if !ok {
				continue
			}
			visited[t] = true
			queue = append(queue, next)
		}
	}
	return visited
}

// checkUnusedVars flags script variables that are only ever the target of
// a "set" and never read by a "print", a condition, or another "set"'s
// value expression.
func checkUnusedVars(story *ast.Story, bag *diag.Bag) {
	written := map[string]bool{}
	read := map[string]bool{}
	firstSet := map[string]ast.MacroCall{}

	var visitExpr func(e ast.Expr)
	visitExpr = func(e ast.Expr) {
		switch v := e.(type) {
		case *ast.VarRef:
			read[v.Name] = true
		case *ast.BinExpr:
			visitExpr(v.Left)
			visitExpr(v.Right)
		case *ast.UnaryExpr:
			visitExpr(v.X)
		case *ast.CallExpr:
			for _, a := range v.Args {
				visitExpr(a)
			}
		}
	}

	for _, p := range story.Passages {
		walkMacros(p.Body, func(m ast.MacroCall) {
			switch v := m.(type) {
			case *ast.SetStmt:
				written[v.Var] = true
				if _, ok := firstSet[v.Var]; !ok {
					firstSet[v.Var] = v
				}
				if v.Value != nil {
					visitExpr(v.Value)
				}
			case *ast.PrintStmt:
				visitExpr(v.Value)
			case *ast.PrintShorthand:
				read[v.Var] = true
			case *ast.IfStmt:
				visitExpr(v.Cond)
			}
		})
	}

	for name := range written {
		if !read[name] {
			m := firstSet[name]
			bag.Warningf(diag.UnusedVar, m.Span(), "variable %q is set but never read", name)
		}
	}
}

// walkBody visits every BodyNode in a passage body, recursing into styled
// spans, link labels, and if/else branches.
func walkBody(nodes []ast.BodyNode, fn func(ast.BodyNode)) {
	for _, n := range nodes {
		fn(n)
		switch v := n.(type) {
		case *ast.Styled:
			walkBody(v.Children, fn)
		case *ast.Link:
			walkBody(v.Label, fn)
		case *ast.Macro:
			if ifs, ok := v.Call.(*ast.IfStmt); ok {
				walkBody(ifs.Then, fn)
				walkBody(ifs.Else, fn)
			}
		}
	}
}

// walkMacros visits every MacroCall reachable from a passage body,
// including those nested inside if/else branches.
func walkMacros(nodes []ast.BodyNode, fn func(ast.MacroCall)) {
	walkBody(nodes, func(n ast.BodyNode) {
		if m, ok := n.(*ast.Macro); ok {
			fn(m.Call)
		}
	})
}
