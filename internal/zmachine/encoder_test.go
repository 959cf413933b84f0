package zmachine

import (
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/ir"
)

func TestEncodeRoutineLocalsByteAlwaysZero(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpReturn},
	}}
	bytes, _, err := EncodeRoutine(r, 0)
	be.Err(t, err, nil)
	be.Equal(t, bytes[0], byte(0))
}

func TestEncodeRoutineSizeMatchesInstrSize(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(0)}},
		{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(41)}},
		{Op: ir.OpAdd, Operands: []ir.Operand{ir.Stack(), ir.Imm(1)}},
		{Op: ir.OpStore, Operands: []ir.Operand{ir.Global(3), ir.Stack()}},
		{Op: ir.OpReturn},
	}}

	wantSize := 1 // locals-count byte
	for _, ins := range r.Instrs {
		n, err := instrSize(ins)
		be.Err(t, err, nil)
		wantSize += n
	}

	bytes, _, err := EncodeRoutine(r, 0)
	be.Err(t, err, nil)
	be.Equal(t, len(bytes), wantSize)
}

func TestEncodeRoutineRecordsStringPatch(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(2)}},
		{Op: ir.OpReturn},
	}}
	bytes, patches, err := EncodeRoutine(r, 0)
	be.Err(t, err, nil)
	be.Equal(t, len(patches), 1)
	be.Equal(t, patches[0].Kind, patchString)
	be.Equal(t, patches[0].StringIndex, 2)
	be.True(t, patches[0].Offset < len(bytes))
}

func TestEncodeRoutineRecordsRoutinePatch(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpCall, Operands: []ir.Operand{ir.RoutineRef("R_other")}},
		{Op: ir.OpReturn},
	}}
	_, patches, err := EncodeRoutine(r, 0)
	be.Err(t, err, nil)
	be.Equal(t, len(patches), 1)
	be.Equal(t, patches[0].Kind, patchRoutine)
	be.Equal(t, patches[0].RoutineName, "R_other")
}

// TestEncodeRoutineJumpOffset pins down the exact jump-offset arithmetic: a
// jump past a dead print_str instruction must land exactly on the byte
// offset the label records, not one off in either direction.
func TestEncodeRoutineJumpOffset(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpJump, Target: "end"},
		{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(0)}},
		{Op: ir.OpLabel, Label: "end"},
		{Op: ir.OpReturn},
	}}
	bytes, _, err := EncodeRoutine(r, 0)
	be.Err(t, err, nil)

	want := []byte{
		0,          // locals count
		0x8C,       // 1OP:12 jump, large-const operand
		0x00, 0x05, // offset = 7 - (2+2) + 2
		0x8D,       // 1OP:13 print_paddr, large-const operand (unpatched placeholder)
		0x00, 0x00,
		0xB0, // 0OP:0 rtrue
	}
	be.Equal(t, bytes, want)
}

func TestEncodeRoutineUndefinedJumpTargetErrors(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpJump, Target: "nowhere"},
	}}
	_, _, err := EncodeRoutine(r, 0)
	be.True(t, err != nil)
}

func TestEncodeRoutineUndefinedBranchTargetErrors(t *testing.T) {
	r := &ir.Routine{Name: "R_test", Instrs: []*ir.Instr{
		{Op: ir.OpJE, Operands: []ir.Operand{ir.Imm(1), ir.Imm(1)}, Target: "nowhere"},
	}}
	_, _, err := EncodeRoutine(r, 0)
	be.True(t, err != nil)
}

func TestVarNumberOperandStackIsZero(t *testing.T) {
	enc, err := varNumberOperand(ir.Stack())
	be.Err(t, err, nil)
	be.Equal(t, enc.bytes, []byte{0})
}

func TestVarNumberOperandGlobalOffsetsBy16(t *testing.T) {
	enc, err := varNumberOperand(ir.Global(5))
	be.Err(t, err, nil)
	be.Equal(t, enc.bytes, []byte{21})
}

func TestVarNumberOperandRejectsNonVariable(t *testing.T) {
	_, err := varNumberOperand(ir.Imm(3))
	be.True(t, err != nil)
}
