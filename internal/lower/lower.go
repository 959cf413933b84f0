// Package lower translates a resolved story AST into the ir.Module that
// internal/zmachine encodes: one routine per passage, an expression-stack
// strategy built on the Z-Machine stack variable (0x00), and a dynamic-
// typing discipline where a script variable's type is fixed on first
// assignment and promoted to string the moment any assignment to it is a
// string literal. Follows gasm's own ast/asm package split
// (internal/ast feeding internal/asm.Assemble), widened from one assembly
// file to one routine per Twee passage.
package lower

import (
	"fmt"

	"twyne/internal/ast"
	"twyne/internal/diag"
	"twyne/internal/ir"
	"twyne/internal/resolve"
)

// VarKind is the statically inferred storage kind of a script variable.
type VarKind int

const (
	KindNum VarKind = iota
	KindStr
)

type lowerer struct {
	mod       *ir.Module
	diags     diag.Bag
	varKinds  map[string]VarKind
	selectors map[string][]int // var name -> distinct interned string indices it may hold
	labelSeq  int
}

// Lower builds an ir.Module from a resolved story. The diagnostics it
// returns are TypeErrors (a non-constant string assignment, a string
// literal in a numeric context, an unknown function); the passage-level
// fatal conditions (missing Start, unresolved targets) have already been
// reported by internal/resolve.
func Lower(story *ast.Story, res *resolve.Result) (*ir.Module, []diag.Diagnostic) {
	lw := &lowerer{
		mod:       &ir.Module{},
		varKinds:  inferVarKinds(story),
		selectors: map[string][]int{},
	}

	if res.Start != nil {
		lw.mod.Start = routineName(res.Start.Name)
	}

	lw.collectStringSelectors(story)

	for _, p := range story.Passages {
		r := &ir.Routine{Name: routineName(p.Name)}
		lw.lowerBody(r, p.Body)
		if len(r.Links) > 0 {
			lw.emitLinkDispatch(r)
		}
		lw.mod.Routines = append(lw.mod.Routines, r)
	}

	return lw.mod, lw.diags.All()
}

// emitLinkDispatch reads the player's choice number and calls the chosen
// link's target routine, following the same linear read/compare/call
// pattern op.rs grounds for op_read_char and op_print_num_var: no jump
// table, just a chain of equality branches since a passage rarely offers
// more than a handful of links.
func (lw *lowerer) emitLinkDispatch(r *ir.Routine) {
	scratch := lw.scratch(0)
	r.Emit(&ir.Instr{Op: ir.OpReadChoice})
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}})
	for _, link := range r.Links {
		next := lw.newLabel("link_next")
		r.Emit(&ir.Instr{
			Op:       ir.OpJE,
			Operands: []ir.Operand{ir.Global(scratch), ir.Imm(int64(link.Index))},
			Target:   next,
			Negate:   true,
		})
		r.Emit(&ir.Instr{Op: ir.OpCall, Operands: []ir.Operand{ir.RoutineRef(link.Target)}})
		r.Emit(&ir.Instr{Op: ir.OpReturn})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: next})
	}
}

func routineName(passageName string) string {
	return "R_" + sanitize(passageName)
}

func sanitize(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

func (lw *lowerer) newLabel(prefix string) string {
	lw.labelSeq++
	return fmt.Sprintf("%s_%d", prefix, lw.labelSeq)
}

// ---- variable type inference ----

func walkAllMacros(story *ast.Story, fn func(ast.MacroCall)) {
	var walk func(nodes []ast.BodyNode)
	walk = func(nodes []ast.BodyNode) {
		for _, n := range nodes {
			switch v := n.(type) {
			case *ast.Styled:
				walk(v.Children)
			case *ast.Link:
				walk(v.Label)
			case *ast.Macro:
				fn(v.Call)
				if ifs, ok := v.Call.(*ast.IfStmt); ok {
					walk(ifs.Then)
					walk(ifs.Else)
				}
			}
		}
	}
	for _, p := range story.Passages {
		walk(p.Body)
	}
}

func inferVarKinds(story *ast.Story) map[string]VarKind {
	kind := map[string]VarKind{}
	setExprs := map[string][]ast.Expr{}

	walkAllMacros(story, func(m ast.MacroCall) {
		if s, ok := m.(*ast.SetStmt); ok && s.Value != nil {
			setExprs[s.Var] = append(setExprs[s.Var], s.Value)
		}
	})

	for i := 0; i < 5; i++ {
		changed := false
		for name, exprs := range setExprs {
			for _, e := range exprs {
				if apparentKind(e, kind) == KindStr && kind[name] != KindStr {
					kind[name] = KindStr
					changed = true
				}
			}
		}
		if !changed {
			break
		}
	}
	return kind
}

func apparentKind(e ast.Expr, kind map[string]VarKind) VarKind {
	switch v := e.(type) {
	case *ast.StrLit:
		return KindStr
	case *ast.VarRef:
		return kind[v.Name]
	case *ast.BinExpr:
		if v.Op == "+" {
			if apparentKind(v.Left, kind) == KindStr || apparentKind(v.Right, kind) == KindStr {
				return KindStr
			}
		}
		return KindNum
	default:
		return KindNum
	}
}

// foldConstStr folds a string literal or a "+" chain of string literals
// into its compile-time value. `set $v to a + b` is accepted only when
// both sides are compile-time string constants; anything else is a
// TypeError, since the Z-Machine has no runtime string heap to build a
// computed string into.
func foldConstStr(e ast.Expr) (string, bool) {
	switch v := e.(type) {
	case *ast.StrLit:
		return v.Value, true
	case *ast.BinExpr:
		if v.Op == "+" {
			l, ok1 := foldConstStr(v.Left)
			r, ok2 := foldConstStr(v.Right)
			if ok1 && ok2 {
				return l + r, true
			}
		}
	}
	return "", false
}

// collectStringSelectors interns every string literal ever assigned to a
// string-kind variable, so a later "print $var" can branch over the small
// fixed set of strings that variable might hold at runtime.
func (lw *lowerer) collectStringSelectors(story *ast.Story) {
	seen := map[string]map[int]bool{}
	walkAllMacros(story, func(m ast.MacroCall) {
		s, ok := m.(*ast.SetStmt)
		if !ok || lw.varKinds[s.Var] != KindStr {
			return
		}
		folded, ok := foldConstStr(s.Value)
		if !ok {
			lw.diags.Errorf(diag.TypeError, s.Sp, "set %q to a non-constant string expression: the Z-Machine has no runtime string heap, so concatenation onto a string variable must fold to a compile-time constant", s.Var)
			return
		}
		sidx := lw.mod.InternString(folded)
		if seen[s.Var] == nil {
			seen[s.Var] = map[int]bool{}
		}
		if !seen[s.Var][sidx] {
			seen[s.Var][sidx] = true
			lw.selectors[s.Var] = append(lw.selectors[s.Var], sidx)
		}
	})
}

// ---- body lowering ----

func (lw *lowerer) lowerBody(r *ir.Routine, nodes []ast.BodyNode) {
	for _, n := range nodes {
		switch v := n.(type) {
		case *ast.Text:
			lw.emitPrintStr(r, v.Value)
		case *ast.Styled:
			lw.lowerStyled(r, v)
		case *ast.Link:
			lw.lowerLink(r, v)
		case *ast.Macro:
			lw.lowerMacro(r, v.Call)
		}
	}
}

func (lw *lowerer) emitPrintStr(r *ir.Routine, s string) {
	idx := lw.mod.InternString(s)
	r.Emit(&ir.Instr{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(idx)}})
}

func styleFlag(kind ast.StyleKind) int64 {
	switch kind {
	case ast.StyleBold:
		return 0x02
	case ast.StyleItalic:
		return 0x04
	default:
		return 0x08
	}
}

func (lw *lowerer) lowerStyled(r *ir.Routine, s *ast.Styled) {
	r.Emit(&ir.Instr{Op: ir.OpSetStyle, Operands: []ir.Operand{ir.Imm(styleFlag(s.Kind))}})
	lw.lowerBody(r, s.Children)
	r.Emit(&ir.Instr{Op: ir.OpSetStyle, Operands: []ir.Operand{ir.Imm(0)}})
}

func (lw *lowerer) lowerLink(r *ir.Routine, l *ast.Link) {
	n := len(r.Links) + 1
	r.Links = append(r.Links, ir.LinkEntry{Index: n, Target: routineName(l.Target)})
	lw.emitPrintStr(r, fmt.Sprintf("[%d] ", n))
	lw.lowerBody(r, l.Label)
	r.Emit(&ir.Instr{Op: ir.OpNewline})
}

func (lw *lowerer) lowerMacro(r *ir.Routine, call ast.MacroCall) {
	switch v := call.(type) {
	case *ast.SetStmt:
		lw.lowerSet(r, v)
	case *ast.PrintStmt:
		lw.printExpr(r, v.Value)
	case *ast.PrintShorthand:
		lw.printVar(r, v.Var)
	case *ast.DisplayStmt:
		r.Emit(&ir.Instr{Op: ir.OpCall, Operands: []ir.Operand{ir.RoutineRef(routineName(v.Target))}})
	case *ast.IfStmt:
		lw.lowerIf(r, v)
	}
}

func (lw *lowerer) lowerSet(r *ir.Routine, s *ast.SetStmt) {
	idx := lw.mod.GlobalIndex(s.Var)
	if lw.varKinds[s.Var] == KindStr {
		// collectStringSelectors already reported a TypeError for any
		// non-constant right-hand side; fall back to the empty string so
		// lowering can still produce a well-formed (if meaningless) image.
		sidx := lw.mod.InternString("")
		if folded, ok := foldConstStr(s.Value); ok {
			sidx = lw.mod.InternString(folded)
		}
		r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(idx), ir.Imm(int64(sidx))}})
		return
	}
	lw.toStack(r, s.Value, 0)
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(idx), ir.Stack()}})
}

// printExpr flattens "+" concatenation into sequential print instructions
// rather than building a runtime string: the Z-Machine has no heap to
// hold a computed string, so concatenation in a print position lowers to
// one print per operand in evaluation order.
func (lw *lowerer) printExpr(r *ir.Routine, e ast.Expr) {
	if bin, ok := e.(*ast.BinExpr); ok && bin.Op == "+" {
		lw.printExpr(r, bin.Left)
		lw.printExpr(r, bin.Right)
		return
	}
	switch v := e.(type) {
	case *ast.StrLit:
		lw.emitPrintStr(r, v.Value)
	case *ast.VarRef:
		lw.printVar(r, v.Name)
	default:
		lw.toStack(r, e, 0)
		r.Emit(&ir.Instr{Op: ir.OpPrintNum, Operands: []ir.Operand{ir.Stack()}})
	}
}

func (lw *lowerer) printVar(r *ir.Routine, name string) {
	idx := lw.mod.GlobalIndex(name)
	if lw.varKinds[name] != KindStr {
		r.Emit(&ir.Instr{Op: ir.OpPrintNum, Operands: []ir.Operand{ir.Global(idx)}})
		return
	}
	end := lw.newLabel("strsel_end")
	for _, sidx := range lw.selectors[name] {
		next := lw.newLabel("strsel_next")
		r.Emit(&ir.Instr{
			Op:       ir.OpJE,
			Operands: []ir.Operand{ir.Global(idx), ir.Imm(int64(sidx))},
			Target:   next,
			Negate:   true, // skip this candidate's print when not equal
		})
		r.Emit(&ir.Instr{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(sidx)}})
		r.Emit(&ir.Instr{Op: ir.OpJump, Target: end})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: next})
	}
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: end})
}

func (lw *lowerer) lowerIf(r *ir.Routine, s *ast.IfStmt) {
	lw.toStack(r, s.Cond, 0)
	elseLabel := lw.newLabel("if_else")
	endLabel := lw.newLabel("if_end")
	r.Emit(&ir.Instr{Op: ir.OpJE, Operands: []ir.Operand{ir.Stack(), ir.Imm(0)}, Target: elseLabel})
	lw.lowerBody(r, s.Then)
	r.Emit(&ir.Instr{Op: ir.OpJump, Target: endLabel})
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: elseLabel})
	lw.lowerBody(r, s.Else)
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: endLabel})
}

// ---- expression-to-stack lowering ----

func (lw *lowerer) scratch(depth int) int {
	return lw.mod.GlobalIndex(fmt.Sprintf("__t%d", depth))
}

func (lw *lowerer) toStack(r *ir.Routine, e ast.Expr, depth int) {
	switch v := e.(type) {
	case *ast.IntLit:
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(v.Value)}})
	case *ast.BoolLit:
		n := int64(0)
		if v.Value {
			n = 1
		}
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(n)}})
	case *ast.VarRef:
		idx := lw.mod.GlobalIndex(v.Name)
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Global(idx)}})
	case *ast.StrLit:
		lw.diags.Errorf(diag.TypeError, v.Sp, "string literal used in a numeric context")
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
	case *ast.UnaryExpr:
		lw.lowerUnary(r, v, depth)
	case *ast.CallExpr:
		lw.lowerCall(r, v, depth)
	case *ast.BinExpr:
		lw.lowerBin(r, v, depth)
	default:
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
	}
}

func (lw *lowerer) lowerUnary(r *ir.Routine, v *ast.UnaryExpr, depth int) {
	switch v.Op {
	case "not":
		lw.toStack(r, v.X, depth)
		trueLabel := lw.newLabel("not_true")
		endLabel := lw.newLabel("not_end")
		r.Emit(&ir.Instr{Op: ir.OpJE, Operands: []ir.Operand{ir.Stack(), ir.Imm(0)}, Target: trueLabel})
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
		r.Emit(&ir.Instr{Op: ir.OpJump, Target: endLabel})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: trueLabel})
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(1)}})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: endLabel})
	case "-":
		lw.toStack(r, v.X, depth)
		r.Emit(&ir.Instr{Op: ir.OpNeg, Operands: []ir.Operand{ir.Stack()}})
	}
}

// lowerCall lowers random(lo, hi), the one built-in function the script
// language has. The Z-Machine's own random instruction only draws a value
// in 1..range, so an inclusive lo..hi draw is built from it: lo and hi
// are swapped at runtime when lo > hi, then range = hi-lo+1,
// draw = random(range), result = draw-1+lo.
func (lw *lowerer) lowerCall(r *ir.Routine, v *ast.CallExpr, depth int) {
	if v.Name != "random" || len(v.Args) != 2 {
		lw.diags.Errorf(diag.TypeError, v.Sp, "unknown function %q", v.Name)
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
		return
	}
	loSlot := lw.scratch(depth)
	hiSlot := lw.scratch(depth + 1)
	rangeSlot := lw.scratch(depth + 2)

	lw.toStack(r, v.Args[0], depth)
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(loSlot), ir.Stack()}})
	lw.toStack(r, v.Args[1], depth+1)
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(hiSlot), ir.Stack()}})

	ordered := lw.newLabel("rand_ordered")
	r.Emit(&ir.Instr{Op: ir.OpJL, Operands: []ir.Operand{ir.Global(hiSlot), ir.Global(loSlot)}, Target: ordered, Negate: true})
	r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Global(loSlot)}})
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(loSlot), ir.Global(hiSlot)}})
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(hiSlot), ir.Stack()}})
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: ordered})

	r.Emit(&ir.Instr{Op: ir.OpSub, Operands: []ir.Operand{ir.Global(hiSlot), ir.Global(loSlot)}})
	r.Emit(&ir.Instr{Op: ir.OpAdd, Operands: []ir.Operand{ir.Stack(), ir.Imm(1)}})
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(rangeSlot), ir.Stack()}})

	r.Emit(&ir.Instr{Op: ir.OpRandom, Operands: []ir.Operand{ir.Global(rangeSlot)}})
	r.Emit(&ir.Instr{Op: ir.OpSub, Operands: []ir.Operand{ir.Stack(), ir.Imm(1)}})
	r.Emit(&ir.Instr{Op: ir.OpAdd, Operands: []ir.Operand{ir.Stack(), ir.Global(loSlot)}})
}

func binOpToIR(op string) ir.Op {
	switch op {
	case "+":
		return ir.OpAdd
	case "-":
		return ir.OpSub
	case "*":
		return ir.OpMul
	case "/":
		return ir.OpDiv
	}
	return ir.OpAdd
}

func comparisonOp(op string) (ir.Op, bool) {
	switch op {
	case "==":
		return ir.OpJE, false
	case "!=":
		return ir.OpJE, true
	case "<":
		return ir.OpJL, false
	case ">=":
		return ir.OpJL, true
	case ">":
		return ir.OpJG, false
	case "<=":
		return ir.OpJG, true
	}
	return ir.OpJE, false
}

func isComparison(op string) bool {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (lw *lowerer) lowerBin(r *ir.Routine, v *ast.BinExpr, depth int) {
	switch {
	case v.Op == "and" || v.Op == "or":
		lw.lowerLogical(r, v, depth)
	case isComparison(v.Op):
		lw.lowerComparison(r, v, depth)
	default:
		lw.toStack(r, v.Left, depth)
		scratch := lw.scratch(depth)
		r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}})
		lw.toStack(r, v.Right, depth+1)
		r.Emit(&ir.Instr{Op: binOpToIR(v.Op), Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}})
	}
}

func (lw *lowerer) lowerComparison(r *ir.Routine, v *ast.BinExpr, depth int) {
	lw.toStack(r, v.Left, depth)
	scratch := lw.scratch(depth)
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}})
	lw.toStack(r, v.Right, depth+1)

	op, negate := comparisonOp(v.Op)
	trueLabel := lw.newLabel("cmp_true")
	endLabel := lw.newLabel("cmp_end")
	r.Emit(&ir.Instr{Op: op, Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}, Target: trueLabel, Negate: negate})
	r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
	r.Emit(&ir.Instr{Op: ir.OpJump, Target: endLabel})
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: trueLabel})
	r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(1)}})
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: endLabel})
}

func (lw *lowerer) lowerLogical(r *ir.Routine, v *ast.BinExpr, depth int) {
	lw.toStack(r, v.Left, depth)
	scratch := lw.scratch(depth)
	r.Emit(&ir.Instr{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(scratch), ir.Stack()}})

	branchLabel := lw.newLabel("logic_branch")
	endLabel := lw.newLabel("logic_end")

	if v.Op == "and" {
		r.Emit(&ir.Instr{Op: ir.OpJE, Operands: []ir.Operand{ir.Global(scratch), ir.Imm(0)}, Target: branchLabel})
		lw.toStack(r, v.Right, depth)
		r.Emit(&ir.Instr{Op: ir.OpJump, Target: endLabel})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: branchLabel})
		r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(0)}})
		r.Emit(&ir.Instr{Op: ir.OpLabel, Label: endLabel})
		return
	}

	r.Emit(&ir.Instr{Op: ir.OpJE, Operands: []ir.Operand{ir.Global(scratch), ir.Imm(0)}, Target: branchLabel})
	r.Emit(&ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(1)}})
	r.Emit(&ir.Instr{Op: ir.OpJump, Target: endLabel})
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: branchLabel})
	lw.toStack(r, v.Right, depth)
	r.Emit(&ir.Instr{Op: ir.OpLabel, Label: endLabel})
}
