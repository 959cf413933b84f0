// Package zmachine lowers ir.Module into a Z-Machine version 8 story file.
// It splits the work the same way gasm's own x86_64 backend splits
// instruction encoding from container layout: encoder.go turns each
// ir.Instr into Z-Machine opcode bytes, and image.go (its companion)
// lays out the header, tables, and routine/string pool that those bytes
// live in. Grounded on _examples/original_source/src/zwreec/backend/zcode,
// particularly op.rs's opcode table and zfile.rs's instruction writer.
package zmachine

import (
	"fmt"

	"twyne/internal/ir"
)

// Real Z-Machine opcode numbers, Standard Document §14/§15. Only the
// instructions this compiler ever emits are named.
const (
	op2JE      = 1
	op2JL      = 2
	op2JG      = 3
	op2Store   = 13
	op2Add     = 20
	op2Sub     = 21
	op2Mul     = 22
	op2Div     = 23
	op2CallVn2 = 26 // unused; kept for completeness of the 2OP family table

	op1Jump       = 12
	op1PrintPaddr = 13

	op0Rtrue   = 0
	op0Newline = 11

	opVPrintNum     = 6
	opVRandom       = 7
	opVPush         = 8
	opVSread        = 4 // unused; link choices are read with read_char
	opVReadChar     = 22
	opVCallVn       = 25
	opVSetTextStyle = 17
)

// operandType is the 2-bit Z-Machine operand type tag.
type operandType byte

const (
	otLargeConst operandType = 0
	otSmallConst operandType = 1
	otVariable   operandType = 2
	otOmitted    operandType = 3
)

// patchKind names what a deferred 2-byte slot in an encoded routine must
// be filled with once the image's memory layout is known.
type patchKind int

const (
	patchString patchKind = iota
	patchRoutine
)

// Patch records one 2-byte slot inside a routine's encoded byte buffer
// that could not be resolved until every routine and string had an
// address, mirroring gasm's own Reloc concept (arch_base.go/
// format_base.go) narrowed to the only two forward-reference kinds this
// compiler ever produces: a packed string address and a packed routine
// address.
type Patch struct {
	RoutineIndex int
	Offset       int // byte offset within that routine's encoded buffer
	Kind         patchKind
	StringIndex  int
	RoutineName  string
}

// encodedOperand is an operand rendered to bytes, with a patch recorded
// separately when its value is a forward reference.
type encodedOperand struct {
	typ   operandType
	bytes []byte
}

func encodeOperand(op ir.Operand) (encodedOperand, *Patch) {
	switch op.Kind {
	case ir.OpImm:
		if op.IntVal >= 0 && op.IntVal <= 255 {
			return encodedOperand{typ: otSmallConst, bytes: []byte{byte(op.IntVal)}}, nil
		}
		v := uint16(int16(op.IntVal))
		return encodedOperand{typ: otLargeConst, bytes: []byte{byte(v >> 8), byte(v)}}, nil
	case ir.OpGlobalVar:
		return encodedOperand{typ: otVariable, bytes: []byte{byte(16 + op.GlobalIdx)}}, nil
	case ir.OpStackVar:
		return encodedOperand{typ: otVariable, bytes: []byte{0}}, nil
	case ir.OpStringRef:
		return encodedOperand{typ: otLargeConst, bytes: []byte{0, 0}}, &Patch{Kind: patchString, StringIndex: op.StringIdx}
	case ir.OpRoutineRef:
		return encodedOperand{typ: otLargeConst, bytes: []byte{0, 0}}, &Patch{Kind: patchRoutine, RoutineName: op.Routine}
	default:
		return encodedOperand{typ: otSmallConst, bytes: []byte{0}}, nil
	}
}

// routineEncoder accumulates one routine's instruction bytes, recording
// label offsets as it goes so every branch can resolve to a local byte
// offset in the same pass that emits it (no branch ever crosses a
// routine boundary).
type routineEncoder struct {
	buf     []byte
	labels  map[string]int
	patches []Patch
	idx     int
}

// EncodeRoutine renders one ir.Routine to its Z-Machine byte form: a
// single locals-count byte (always 0 — this compiler keeps every value on
// the stack or in globals, never in true Z-Machine locals) followed by
// its instructions. Call/print-string operands referencing another
// routine or the string pool are left as zeroed placeholders and recorded
// as Patch entries for image.go's patching pass to fill in once it knows
// the final memory layout.
func EncodeRoutine(r *ir.Routine, routineIndex int) ([]byte, []Patch, error) {
	labels := map[string]int{}
	offset := 1 // after the locals-count byte
	for _, ins := range r.Instrs {
		if ins.Op == ir.OpLabel {
			labels[ins.Label] = offset
			continue
		}
		size, err := instrSize(ins)
		if err != nil {
			return nil, nil, err
		}
		offset += size
	}

	re := &routineEncoder{buf: []byte{0}, labels: labels, idx: routineIndex}
	for _, ins := range r.Instrs {
		if ins.Op == ir.OpLabel {
			continue
		}
		if err := re.emit(ins); err != nil {
			return nil, nil, err
		}
	}
	return re.buf, re.patches, nil
}

// instrSize reports the exact encoded byte length of ins. Every branch in
// this compiler always uses the long (2-byte offset) branch form and
// every multi-byte constant always uses the large-constant (2-byte) form
// when a forward reference is involved, so size never depends on the
// final memory layout — only on ins.Op and the already-known values of
// its immediate operands. Code-size optimization is out of scope, so
// there is no short-branch/small-constant shrink pass.
func instrSize(ins *ir.Instr) (int, error) {
	switch ins.Op {
	case ir.OpPrintStr:
		return 1 + 2, nil // short 1OP form: opcode byte + large-const operand
	case ir.OpPrintNum:
		return varFormSize(ins.Operands, false), nil
	case ir.OpRandom:
		return varFormSize(ins.Operands, true), nil
	case ir.OpNewline:
		return 1, nil
	case ir.OpSetStyle:
		return varFormSize(ins.Operands, false), nil
	case ir.OpAdd, ir.OpSub, ir.OpMul, ir.OpDiv:
		return twoOpStoreSize(ins.Operands), nil
	case ir.OpNeg:
		return twoOpStoreSize([]ir.Operand{ir.Imm(0), ins.Operands[0]}), nil
	case ir.OpJE, ir.OpJL, ir.OpJG:
		return twoOpBranchSize(ins.Operands), nil
	case ir.OpJump:
		return 1 + 2, nil // short 1OP form, operand is a plain signed word
	case ir.OpStore:
		return twoOpNoStoreSize(ins.Operands), nil
	case ir.OpLoad:
		return varFormSize(ins.Operands, false), nil
	case ir.OpReadChoice:
		return varFormSize([]ir.Operand{ir.Imm(1), ir.Imm(0)}, true) + twoOpStoreSize([]ir.Operand{ir.Stack(), ir.Imm(int64('0'))}), nil
	case ir.OpCall:
		return varFormSize([]ir.Operand{ins.Operands[0]}, false), nil
	case ir.OpReturn:
		return 1, nil
	default:
		return 0, fmt.Errorf("zmachine: no size rule for ir.Op %q", ins.Op)
	}
}

// varFormSize is the encoded size of a VAR-form instruction with the
// given operands: 1 opcode byte, 1 operand-types byte, each operand's
// bytes, and (when store is set) a trailing store-variable byte.
func varFormSize(operands []ir.Operand, store bool) int {
	n := 2
	for _, op := range operands {
		enc, _ := encodeOperand(op)
		n += len(enc.bytes)
	}
	if store {
		n++
	}
	return n
}

// twoOpStoreSize is a 2OP instruction (add/sub/mul/div) that always
// stores its result to the stack: operands, then one store-variable byte.
// Any large-constant operand forces the variable form (an extra types
// byte); long form packs both operand-type bits into the opcode byte.
func twoOpStoreSize(operands []ir.Operand) int {
	return twoOpBaseSize(operands) + 1
}

// twoOpNoStoreSize is a 2OP instruction (store) with no separate
// store-variable byte: "store" writes directly into its first operand.
func twoOpNoStoreSize(operands []ir.Operand) int {
	return twoOpBaseSize(operands)
}

// twoOpBranchSize is a 2OP branch instruction (je/jl/jg): operands, then
// the always-2-byte long branch form.
func twoOpBranchSize(operands []ir.Operand) int {
	return twoOpBaseSize(operands) + 2
}

func twoOpBaseSize(operands []ir.Operand) int {
	needsVarForm := false
	total := 0
	for _, op := range operands {
		enc, _ := encodeOperand(op)
		total += len(enc.bytes)
		if enc.typ == otLargeConst {
			needsVarForm = true
		}
	}
	if needsVarForm {
		return 1 + 1 + total // opcode + types byte + operands
	}
	return 1 + total // long form opcode byte packs both operand types
}

// emit appends ins's encoded bytes to re.buf, recording any forward
// references as Patches at their final byte offset.
func (re *routineEncoder) emit(ins *ir.Instr) error {
	switch ins.Op {
	case ir.OpPrintStr:
		return re.emit1OP(op1PrintPaddr, ins.Operands[0])
	case ir.OpPrintNum:
		return re.emitVAR(opVPrintNum, ins.Operands, false)
	case ir.OpRandom:
		return re.emitVAR(opVRandom, ins.Operands, true)
	case ir.OpNewline:
		re.buf = append(re.buf, 0xB0|op0Newline)
		return nil
	case ir.OpSetStyle:
		return re.emitVAR(opVSetTextStyle, ins.Operands, false)
	case ir.OpAdd:
		return re.emit2OPStore(op2Add, ins.Operands)
	case ir.OpSub:
		return re.emit2OPStore(op2Sub, ins.Operands)
	case ir.OpMul:
		return re.emit2OPStore(op2Mul, ins.Operands)
	case ir.OpDiv:
		return re.emit2OPStore(op2Div, ins.Operands)
	case ir.OpNeg:
		return re.emit2OPStore(op2Sub, []ir.Operand{ir.Imm(0), ins.Operands[0]})
	case ir.OpJE:
		return re.emit2OPBranch(op2JE, ins.Operands, ins.Target, ins.Negate)
	case ir.OpJL:
		return re.emit2OPBranch(op2JL, ins.Operands, ins.Target, ins.Negate)
	case ir.OpJG:
		return re.emit2OPBranch(op2JG, ins.Operands, ins.Target, ins.Negate)
	case ir.OpJump:
		return re.emitJump(ins.Target)
	case ir.OpStore:
		return re.emitStoreInstr(ins.Operands[0], ins.Operands[1])
	case ir.OpLoad:
		// push (VAR:8), not "store 0": store to the stack variable writes
		// the top of stack in place instead of pushing a new value.
		return re.emitVAR(opVPush, ins.Operands, false)
	case ir.OpReadChoice:
		return re.emitReadChoice()
	case ir.OpCall:
		return re.emitVAR(opVCallVn, ins.Operands, false)
	case ir.OpReturn:
		re.buf = append(re.buf, 0xB0|op0Rtrue)
		return nil
	default:
		return fmt.Errorf("zmachine: no encoding rule for ir.Op %q", ins.Op)
	}
}

// emit1OP writes the short 1OP form: one opcode+type byte (bits 5-4 carry
// the operand's type, 0xB0 excluded since that range is reserved for
// 0OP), followed by the operand's bytes.
func (re *routineEncoder) emit1OP(opcode byte, operand ir.Operand) error {
	enc, patch := encodeOperand(operand)
	typeBits := byte(enc.typ)
	if typeBits == byte(otOmitted) {
		return fmt.Errorf("zmachine: 1OP instruction %d given no operand", opcode)
	}
	re.buf = append(re.buf, 0x80|(typeBits<<4)|opcode)
	re.recordPatch(patch, len(re.buf))
	re.buf = append(re.buf, enc.bytes...)
	return nil
}

// emitJump writes the unconditional jump instruction (1OP:12). Its
// operand is a plain signed word, not a branch field, but the offset
// arithmetic is identical to a branch's: dest - (address after the
// operand) + 2. The target is always a label in this same routine, so
// (unlike a call or a printed string) it resolves immediately.
func (re *routineEncoder) emitJump(target string) error {
	re.buf = append(re.buf, 0x80|(byte(otLargeConst)<<4)|op1Jump)
	slot := len(re.buf)
	re.buf = append(re.buf, 0, 0)
	dest, ok := re.labels[target]
	if !ok {
		return fmt.Errorf("zmachine: jump to undefined label %q", target)
	}
	offset := dest - (slot + 2) + 2
	re.buf[slot] = byte(uint16(offset) >> 8)
	re.buf[slot+1] = byte(uint16(offset))
	return nil
}

// emitVAR writes the variable form shared by every VAR-family opcode
// (call_vn, print_num, random, push, set_text_style, read_char): one
// opcode byte with the top three bits set, an operand-types byte (2 bits
// per operand, up to 4, unused slots marked omitted), then each operand's
// bytes. store controls whether a trailing store-variable byte (always the
// stack, 0) follows for instructions that produce a result (random,
// read_char).
func (re *routineEncoder) emitVAR(opcode byte, operands []ir.Operand, store bool) error {
	if len(operands) > 4 {
		return fmt.Errorf("zmachine: VAR instruction %d given %d operands (max 4)", opcode, len(operands))
	}
	re.buf = append(re.buf, 0xE0|opcode)
	typesByte := byte(0)
	encoded := make([]encodedOperand, len(operands))
	patches := make([]*Patch, len(operands))
	for i, op := range operands {
		enc, patch := encodeOperand(op)
		encoded[i] = enc
		patches[i] = patch
		typesByte |= byte(enc.typ) << uint((3-i)*2)
	}
	for i := len(operands); i < 4; i++ {
		typesByte |= byte(otOmitted) << uint((3-i)*2)
	}
	re.buf = append(re.buf, typesByte)
	for i, enc := range encoded {
		re.recordPatch(patches[i], len(re.buf))
		re.buf = append(re.buf, enc.bytes...)
	}
	if store {
		re.buf = append(re.buf, 0) // store result onto the stack
	}
	return nil
}

// emitReadChoice reads a single key press with VAR:22 read_char (no line
// buffer is involved) and converts the typed ZSCII digit into its numeric
// choice value on the stack. Only single-digit choices can be entered.
func (re *routineEncoder) emitReadChoice() error {
	if err := re.emitVAR(opVReadChar, []ir.Operand{ir.Imm(1), ir.Imm(0)}, true); err != nil {
		return err
	}
	// read_char leaves a ZSCII code on the stack; subtract '0' (48) to
	// turn the typed digit character into its numeric choice value.
	return re.emit2OPStore(op2Sub, []ir.Operand{ir.Stack(), ir.Imm(int64('0'))})
}

// emit2OPStore writes a 2OP instruction that stores its result onto the
// stack (add/sub/mul/div), choosing long form when both operands fit
// (small constant or variable) and variable form otherwise.
func (re *routineEncoder) emit2OPStore(opcode byte, operands []ir.Operand) error {
	if err := re.emit2OPOperands(opcode, operands); err != nil {
		return err
	}
	re.buf = append(re.buf, 0) // store result onto the stack
	return nil
}

// varNumberOperand encodes the literal Z-Machine variable number that
// dest refers to (0 for the stack, 16+idx for a global), as a constant
// operand. This must NOT go through the ordinary encodeOperand path: the
// Z-Machine's "variable" operand type means "read this variable's
// current value", but store's destination operand means "the variable
// number is this value" — encoding a global destination with type
// Variable would make store indirect through that global's contents
// instead of writing to the global itself.
func varNumberOperand(dest ir.Operand) (encodedOperand, error) {
	switch dest.Kind {
	case ir.OpStackVar:
		return encodedOperand{typ: otSmallConst, bytes: []byte{0}}, nil
	case ir.OpGlobalVar:
		return encodedOperand{typ: otSmallConst, bytes: []byte{byte(16 + dest.GlobalIdx)}}, nil
	default:
		return encodedOperand{}, fmt.Errorf("zmachine: store destination must be a variable, got %v", dest.Kind)
	}
}

// emitStoreInstr writes 2OP:13 store dest,value — store's destination
// operand is always encoded as a direct small-constant variable number
// (see varNumberOperand), never as a "variable" operand, since the value
// operand may still need the variable form.
func (re *routineEncoder) emitStoreInstr(dest, value ir.Operand) error {
	destEnc, err := varNumberOperand(dest)
	if err != nil {
		return err
	}
	valueEnc, patch := encodeOperand(value)

	if valueEnc.typ == otLargeConst {
		re.buf = append(re.buf, 0xC0|op2Store)
		re.buf = append(re.buf, byte(destEnc.typ)<<6|byte(valueEnc.typ)<<4|byte(otOmitted)<<2|byte(otOmitted))
	} else {
		b := byte(op2Store)
		if valueEnc.typ == otVariable {
			b |= 0x20
		}
		re.buf = append(re.buf, b)
	}
	re.buf = append(re.buf, destEnc.bytes...)
	re.recordPatch(patch, len(re.buf))
	re.buf = append(re.buf, valueEnc.bytes...)
	return nil
}

func (re *routineEncoder) emit2OPOperands(opcode byte, operands []ir.Operand) error {
	if len(operands) != 2 {
		return fmt.Errorf("zmachine: 2OP instruction %d given %d operands", opcode, len(operands))
	}
	e0, p0 := encodeOperand(operands[0])
	e1, p1 := encodeOperand(operands[1])
	if e0.typ == otLargeConst || e1.typ == otLargeConst {
		re.buf = append(re.buf, 0xC0|opcode)
		typesByte := byte(e0.typ)<<6 | byte(e1.typ)<<4 | byte(otOmitted)<<2 | byte(otOmitted)
		re.buf = append(re.buf, typesByte)
	} else {
		b := opcode
		if e0.typ == otVariable {
			b |= 0x40
		}
		if e1.typ == otVariable {
			b |= 0x20
		}
		re.buf = append(re.buf, b)
	}
	re.recordPatch(p0, len(re.buf))
	re.buf = append(re.buf, e0.bytes...)
	re.recordPatch(p1, len(re.buf))
	re.buf = append(re.buf, e1.bytes...)
	return nil
}

// emit2OPBranch writes a 2OP branch instruction (je/jl/jg) in long form
// (large-constant comparison operands never occur for these — every
// je/jl/jg this compiler emits compares a global/stack value against a
// small immediate or another global/stack value) plus the always-2-byte
// branch field: bit 7 set means "branch if condition holds", bit 6 clear
// selects the 2-byte form, the low 14 bits are a 2-byte offset filled in
// once the target label's local address is known.
func (re *routineEncoder) emit2OPBranch(opcode byte, operands []ir.Operand, target string, negate bool) error {
	if err := re.emit2OPOperands(opcode, operands); err != nil {
		return err
	}
	branchOnTrue := !negate
	first := byte(0x00) // bit6=0 selects the 2-byte branch form
	if branchOnTrue {
		first |= 0x80
	}
	branchSlot := len(re.buf)
	re.buf = append(re.buf, first, 0)
	dest, ok := re.labels[target]
	if !ok {
		return fmt.Errorf("zmachine: branch to undefined label %q", target)
	}
	offset := dest - (branchSlot + 2) + 2
	writeBranchOffset(re.buf[branchSlot:branchSlot+2], offset)
	return nil
}

// writeBranchOffset packs a signed 14-bit branch offset into the 2-byte
// branch field, preserving whatever sense/form bits are already in the
// first byte (top 2 bits).
func writeBranchOffset(slot []byte, offset int) {
	top := slot[0] & 0xC0
	v := uint16(offset) & 0x3FFF
	slot[0] = top | byte(v>>8)
	slot[1] = byte(v)
}

// recordPatch appends a deferred-reference patch at the given byte
// offset within the routine currently being encoded.
func (re *routineEncoder) recordPatch(p *Patch, offset int) {
	if p == nil {
		return
	}
	p.RoutineIndex = re.idx
	p.Offset = offset
	re.patches = append(re.patches, *p)
}
