// Package ir defines the intermediate representation that internal/lower
// produces from the story AST and internal/zmachine consumes: one Routine
// per passage, a flat interned string pool, and a Globals table addressed
// by position. Operand is a struct with a Kind tag
// rather than a Go sum type, following the same kind-tagged-struct
// convention internal/token uses for lexer payloads, since Go has no
// algebraic enum with per-variant fields.
package ir

// Module is the whole compiled story: every routine, the interned string
// pool shared across them, and the global variable table.
type Module struct {
	Routines []*Routine
	Strings  []string
	Globals  []string
	Start    string // name of the entry routine, "R_"+<Start passage name>
}

func (m *Module) InternString(s string) int {
	for i, v := range m.Strings {
		if v == s {
			return i
		}
	}
	m.Strings = append(m.Strings, s)
	return len(m.Strings) - 1
}

func (m *Module) GlobalIndex(name string) int {
	for i, n := range m.Globals {
		if n == name {
			return i
		}
	}
	m.Globals = append(m.Globals, name)
	return len(m.Globals) - 1
}

func (m *Module) FindRoutine(name string) *Routine {
	for _, r := range m.Routines {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// LinkEntry records one "[[Label|Target]]" choice printed by a routine,
// numbered in declaration order so the runtime read/dispatch helper can
// match a typed choice number back to its target routine.
type LinkEntry struct {
	Index  int
	Target string // target routine name ("R_" + sanitized passage name), resolved to an address by internal/zmachine
}

// Routine is a single Z-machine routine lowered from one passage body.
// Expression evaluation uses the Z-machine stack (variable 0x00); Routine
// has no general-purpose locals beyond that, matching the "no runtime
// heap, stack-based expression strategy" design.
type Routine struct {
	Name   string
	Instrs []*Instr
	Links  []LinkEntry
}

func (r *Routine) Emit(i *Instr) { r.Instrs = append(r.Instrs, i) }

// OperandKind tags which field of Operand is meaningful.
type OperandKind int

const (
	OpImm OperandKind = iota
	OpGlobalVar
	OpStackVar
	OpStringRef
	OpLabelRef
	OpRoutineRef
)

// Operand is one instruction operand. Only the field matching Kind is set.
type Operand struct {
	Kind      OperandKind
	IntVal    int64
	GlobalIdx int
	StringIdx int
	Label     string
	Routine   string
}

func Imm(v int64) Operand              { return Operand{Kind: OpImm, IntVal: v} }
func Global(idx int) Operand           { return Operand{Kind: OpGlobalVar, GlobalIdx: idx} }
func Stack() Operand                   { return Operand{Kind: OpStackVar} }
func StrRef(idx int) Operand           { return Operand{Kind: OpStringRef, StringIdx: idx} }
func LabelRef(name string) Operand     { return Operand{Kind: OpLabelRef, Label: name} }
func RoutineRef(name string) Operand   { return Operand{Kind: OpRoutineRef, Routine: name} }

// Op names the abstract operation an Instr performs. internal/zmachine's
// encoder maps each Op to a concrete Z-Machine opcode and operand form.
type Op string

const (
	OpPrintStr   Op = "print_str"   // print the interned string named by operand 0
	OpPrintNum   Op = "print_num"   // print the numeric value of operand 0
	OpNewline    Op = "newline"     // print a line break
	OpSetStyle   Op = "set_style"   // set_text_style, operand 0 is the flag bitmask
	OpAdd        Op = "add"
	OpSub        Op = "sub"
	OpMul        Op = "mul"
	OpDiv        Op = "div"
	OpNot        Op = "not"
	OpNeg        Op = "neg"
	OpJE         Op = "je"  // branch to Instr.Target if operand0 == operand1 (or != if Negate)
	OpJL         Op = "jl"  // branch if operand0 < operand1
	OpJG         Op = "jg"  // branch if operand0 > operand1
	OpJump       Op = "jump"
	OpLabel      Op = "label"
	OpStore      Op = "store" // store operand1 into operand0 (a global or the stack)
	OpLoad       Op = "load"  // push operand0's value onto the stack
	OpRandom     Op = "random" // push a uniform draw in [1, operand0] (the Z-Machine's native range)
	OpReadChoice Op = "read_choice" // read a line, parse a 1-based choice number, push it
	OpCall       Op = "call"        // call operand0 (a routine ref), discard result
	OpReturn     Op = "return"
)

// Instr is one IR instruction. Not every field applies to every Op: Target
// and Negate apply to the branch family (je/jl/jg/jump), Label applies
// only to OpLabel.
type Instr struct {
	Op       Op
	Operands []Operand
	Label    string // defined label name, for Op == OpLabel
	Target   string // branch target label name
	Negate   bool   // branch on the inverse sense (je != instead of ==)
}
