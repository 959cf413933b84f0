package zmachine

import (
	"encoding/binary"
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"twyne/internal/ir"
)

func minimalModule() *ir.Module {
	mod := &ir.Module{Start: "R_Start"}
	idx := mod.InternString("hello")
	r := &ir.Routine{Name: "R_Start", Instrs: []*ir.Instr{
		{Op: ir.OpPrintStr, Operands: []ir.Operand{ir.StrRef(idx)}},
		{Op: ir.OpReturn},
	}}
	mod.Routines = append(mod.Routines, r)
	return mod
}

func TestAssembleProducesV8Header(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)
	be.True(t, len(img) >= headerSize)
	be.Equal(t, img[0x00], byte(8))
}

func TestAssembleChecksumIsConsistent(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)

	claimed := binary.BigEndian.Uint16(img[0x1C:])
	var sum uint32
	for _, b := range img[0x40:] {
		sum += uint32(b)
	}
	be.Equal(t, claimed, uint16(sum&0xFFFF))
}

func TestAssembleFileLengthMatchesImage(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)
	declared := int(binary.BigEndian.Uint16(img[0x1A:])) * packingFactor
	be.Equal(t, declared, len(img))
}

func TestAssembleEntryPointCallsStart(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)

	pc := binary.BigEndian.Uint16(img[0x06:])
	be.True(t, int(pc) < len(img))
	// The entry routine's only real instruction is call_vn R_Start; its
	// opcode is the VAR-form call (0xE0 | 25).
	be.Equal(t, img[pc], byte(0xE0|opVCallVn))
}

func TestAssembleAddressesAreDistinctAndOrdered(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)

	dict := binary.BigEndian.Uint16(img[0x08:])
	obj := binary.BigEndian.Uint16(img[0x0A:])
	globals := binary.BigEndian.Uint16(img[0x0C:])
	static := binary.BigEndian.Uint16(img[0x0E:])
	highMem := binary.BigEndian.Uint16(img[0x04:])
	abbr := binary.BigEndian.Uint16(img[0x18:])

	be.True(t, globals < obj)
	be.True(t, obj == static)
	be.True(t, obj < dict)
	be.True(t, dict < abbr)
	be.True(t, int(abbr) < int(highMem))
}

func TestAssembleAlphabetTableWrittenVerbatim(t *testing.T) {
	img, err := Assemble(minimalModule())
	be.Err(t, err, nil)
	alphaAddr := binary.BigEndian.Uint16(img[0x34:])
	be.Equal(t, string(img[alphaAddr:int(alphaAddr)+78]), alphabetConst())
}

func alphabetConst() string {
	return "abcdefghijklmnopqrstuvwxyz" +
		"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
		" \n0123456789.,!?_#'\"/\\-:()"
}

func TestAssembleRejectsTooManyGlobals(t *testing.T) {
	mod := minimalModule()
	for i := 0; i < globalsCount+1; i++ {
		mod.GlobalIndex(fmt.Sprintf("g%d", i))
	}
	_, err := Assemble(mod)
	be.True(t, err != nil)
}

func TestAssembleRejectsMissingStart(t *testing.T) {
	mod := &ir.Module{}
	_, err := Assemble(mod)
	be.True(t, err != nil)
}

func TestAssembleRejectsOversizedRoutine(t *testing.T) {
	mod := &ir.Module{Start: "R_Start"}
	r := &ir.Routine{Name: "R_Start"}
	// A long chain of load-immediate instructions to blow past 64 KB.
	for i := 0; i < 30000; i++ {
		r.Instrs = append(r.Instrs, &ir.Instr{Op: ir.OpLoad, Operands: []ir.Operand{ir.Imm(int64(i % 200))}})
	}
	r.Instrs = append(r.Instrs, &ir.Instr{Op: ir.OpReturn})
	mod.Routines = append(mod.Routines, r)

	_, err := Assemble(mod)
	be.True(t, err != nil)
	be.True(t, strings.Contains(err.Error(), "64 KB"))
}

func TestAssembleIsDeterministic(t *testing.T) {
	img1, err := Assemble(minimalModule())
	be.Err(t, err, nil)
	img2, err := Assemble(minimalModule())
	be.Err(t, err, nil)
	be.Equal(t, img1, img2)
}

func TestRoundUp8(t *testing.T) {
	be.Equal(t, roundUp8(0), 0)
	be.Equal(t, roundUp8(1), 8)
	be.Equal(t, roundUp8(8), 8)
	be.Equal(t, roundUp8(9), 16)
}
