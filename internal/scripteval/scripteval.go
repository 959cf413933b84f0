// Package scripteval implements a small tree-walking interpreter over the
// embedded script sublanguage internal/ast defines (set/print/if,
// arithmetic, comparisons, random), for cmd/twyne-repl: a way to try out
// a story's variable logic interactively without compiling a full story
// file and running it under an interpreter. Grounded on
// _examples/duhaifeng-light-lang's internal/runtime package: the
// interface-Value-with-concrete-variants style (value.go) and the
// Environment map (env.go), adapted from that language's full object
// model down to the int, string, and bool values this script language has.
package scripteval

import (
	"fmt"
	"io"
	"math/rand"

	"twyne/internal/ast"
)

// Value is a runtime value the interpreter produces: an IntVal, a
// StringVal, or a BoolVal. The real Z-Machine compiler never has a runtime value
// representation of its own (everything is folded into Z-Machine stack
// operations at compile time) — this type exists purely for the REPL.
type Value interface {
	String() string
}

type IntVal int64

func (v IntVal) String() string { return fmt.Sprintf("%d", int64(v)) }

type StringVal string

func (v StringVal) String() string { return string(v) }

type BoolVal bool

func (v BoolVal) String() string {
	if v {
		return "true"
	}
	return "false"
}

// Environment holds the REPL session's script variables.
type Environment struct {
	vars map[string]Value
}

func NewEnvironment() *Environment {
	return &Environment{vars: map[string]Value{}}
}

func (e *Environment) Get(name string) Value {
	if v, ok := e.vars[name]; ok {
		return v
	}
	return IntVal(0)
}

func (e *Environment) Set(name string, v Value) { e.vars[name] = v }

// Interpreter evaluates script AST nodes against an Environment, writing
// any "print" output to Out.
type Interpreter struct {
	Env *Environment
	Out io.Writer
}

func New(out io.Writer) *Interpreter {
	return &Interpreter{Env: NewEnvironment(), Out: out}
}

// Run executes every body node in order: prose text is written verbatim,
// a styled run recurses into its children, and a macro is dispatched to
// Exec. A link's label is printed but never followed — the REPL has no
// multi-passage story loaded to navigate to.
func (it *Interpreter) Run(nodes []ast.BodyNode) error {
	for _, n := range nodes {
		if err := it.runNode(n); err != nil {
			return err
		}
	}
	return nil
}

func (it *Interpreter) runNode(n ast.BodyNode) error {
	switch v := n.(type) {
	case *ast.Text:
		fmt.Fprint(it.Out, v.Value)
		return nil
	case *ast.Styled:
		return it.Run(v.Children)
	case *ast.Link:
		return it.Run(v.Label)
	case *ast.Macro:
		return it.Exec(v.Call)
	default:
		return nil
	}
}

// Exec runs one macro call: set/print/if. Display is rejected since the
// REPL has no other passages to splice in.
func (it *Interpreter) Exec(call ast.MacroCall) error {
	switch v := call.(type) {
	case *ast.SetStmt:
		val, err := it.Eval(v.Value)
		if err != nil {
			return err
		}
		it.Env.Set(v.Var, val)
		return nil
	case *ast.PrintStmt:
		val, err := it.Eval(v.Value)
		if err != nil {
			return err
		}
		fmt.Fprint(it.Out, val.String())
		return nil
	case *ast.PrintShorthand:
		fmt.Fprint(it.Out, it.Env.Get(v.Var).String())
		return nil
	case *ast.IfStmt:
		cond, err := it.Eval(v.Cond)
		if err != nil {
			return err
		}
		if truthy(cond) {
			return it.Run(v.Then)
		}
		return it.Run(v.Else)
	case *ast.DisplayStmt:
		return fmt.Errorf("scripteval: <<display>> has no story loaded to splice %q from", v.Target)
	default:
		return fmt.Errorf("scripteval: unsupported macro %T", call)
	}
}

// Eval evaluates a script expression to a Value.
func (it *Interpreter) Eval(e ast.Expr) (Value, error) {
	switch v := e.(type) {
	case *ast.IntLit:
		return IntVal(v.Value), nil
	case *ast.BoolLit:
		return BoolVal(v.Value), nil
	case *ast.StrLit:
		return StringVal(v.Value), nil
	case *ast.VarRef:
		return it.Env.Get(v.Name), nil
	case *ast.UnaryExpr:
		return it.evalUnary(v)
	case *ast.BinExpr:
		return it.evalBin(v)
	case *ast.CallExpr:
		return it.evalCall(v)
	default:
		return nil, fmt.Errorf("scripteval: unsupported expression %T", e)
	}
}

func (it *Interpreter) evalUnary(v *ast.UnaryExpr) (Value, error) {
	x, err := it.Eval(v.X)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "not":
		return BoolVal(!truthy(x)), nil
	case "-":
		n, ok := x.(IntVal)
		if !ok {
			return nil, fmt.Errorf("scripteval: unary - on non-numeric value %v", x)
		}
		return -n, nil
	default:
		return nil, fmt.Errorf("scripteval: unknown unary operator %q", v.Op)
	}
}

func (it *Interpreter) evalBin(v *ast.BinExpr) (Value, error) {
	if v.Op == "and" || v.Op == "or" {
		l, err := it.Eval(v.Left)
		if err != nil {
			return nil, err
		}
		if v.Op == "and" && !truthy(l) {
			return BoolVal(false), nil
		}
		if v.Op == "or" && truthy(l) {
			return BoolVal(true), nil
		}
		r, err := it.Eval(v.Right)
		if err != nil {
			return nil, err
		}
		return BoolVal(truthy(r)), nil
	}

	l, err := it.Eval(v.Left)
	if err != nil {
		return nil, err
	}
	r, err := it.Eval(v.Right)
	if err != nil {
		return nil, err
	}

	if ls, ok := l.(StringVal); ok {
		rs, ok := r.(StringVal)
		if !ok || v.Op != "+" {
			return nil, fmt.Errorf("scripteval: operator %q not defined on strings", v.Op)
		}
		return StringVal(string(ls) + string(rs)), nil
	}

	ln, lok := l.(IntVal)
	rn, rok := r.(IntVal)
	if !lok || !rok {
		return nil, fmt.Errorf("scripteval: operator %q needs two numbers, got %v and %v", v.Op, l, r)
	}

	switch v.Op {
	case "+":
		return ln + rn, nil
	case "-":
		return ln - rn, nil
	case "*":
		return ln * rn, nil
	case "/":
		if rn == 0 {
			return nil, fmt.Errorf("scripteval: division by zero")
		}
		return ln / rn, nil
	case "==", "is":
		return BoolVal(ln == rn), nil
	case "!=":
		return BoolVal(ln != rn), nil
	case "<":
		return BoolVal(ln < rn), nil
	case "<=":
		return BoolVal(ln <= rn), nil
	case ">":
		return BoolVal(ln > rn), nil
	case ">=":
		return BoolVal(ln >= rn), nil
	default:
		return nil, fmt.Errorf("scripteval: unknown binary operator %q", v.Op)
	}
}

// evalCall evaluates "random(lo, hi)", the one built-in function,
// matching the Z-Machine compiler's inclusive-range semantics
// (internal/lower's lowerCall) rather than Go's exclusive rand.Intn; like
// the compiled code, it swaps the bounds when lo > hi.
func (it *Interpreter) evalCall(v *ast.CallExpr) (Value, error) {
	if v.Name != "random" || len(v.Args) != 2 {
		return nil, fmt.Errorf("scripteval: unknown function %q", v.Name)
	}
	loV, err := it.Eval(v.Args[0])
	if err != nil {
		return nil, err
	}
	hiV, err := it.Eval(v.Args[1])
	if err != nil {
		return nil, err
	}
	lo, ok1 := loV.(IntVal)
	hi, ok2 := hiV.(IntVal)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("scripteval: random() needs two numbers")
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	span := int64(hi-lo) + 1
	return IntVal(rand.Int63n(span) + int64(lo)), nil
}

func truthy(v Value) bool {
	switch x := v.(type) {
	case BoolVal:
		return bool(x)
	case IntVal:
		return x != 0
	case StringVal:
		return x != ""
	default:
		return false
	}
}
