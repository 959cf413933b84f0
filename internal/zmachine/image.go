// image.go assembles the encoded routines and string pool encoder.go
// produces into a complete Z-Machine version 8 story file: header,
// custom alphabet table, header extension, Unicode translation table,
// globals table, a minimal object table, an empty dictionary, and high
// memory holding every routine and interned string, 8-byte aligned
// throughout so every address packs cleanly by a factor of 8. Follows a
// two-pass Sizing -> Emitting -> Patching -> Checksumming -> Done state
// machine, grounded on
// _examples/original_source/src/zwreec/backend/zcode/zfile.rs's header
// and table layout, adapted from zfile.rs's fixed-address scheme to a
// proper two-pass layout (see DESIGN.md for why the Unicode table is
// sized to the story's actual rune count here, instead of zfile.rs's
// fixed worst-case allocation).
package zmachine

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"

	"twyne/internal/ir"
	"twyne/internal/zstring"
)

const (
	headerSize         = 0x40
	globalsCount       = 240
	globalsTableSize   = globalsCount * 2
	objectDefaultWords = 63 // v4+ object table format (applies through v8)
	objectEntrySize    = 14
	packingFactor      = 8

	storyVersion = 8
)

// entryRoutineName is the synthesized entry point the image needs: a
// tiny routine whose only job is to call the Start passage's routine
// and then quit cleanly if it ever returns.
const entryRoutineName = "R__entry"

// encodedRoutine is one routine's encoder.go output together with the
// book-keeping image.go needs to place and patch it.
type encodedRoutine struct {
	name    string
	bytes   []byte
	patches []Patch
	addr    int // assigned once layout is computed
}

// encodedString is one interned string's packed Z-character bytes.
type encodedString struct {
	bytes []byte
	addr  int
}

// Assemble renders a complete ir.Module into Z-Machine v8 story-file
// bytes. It checks for overflow (routine > 64 KB, more than 240 globals,
// string section beyond the addressable range) and returns an error
// instead of producing a malformed image.
func Assemble(mod *ir.Module) ([]byte, error) {
	if len(mod.Globals) > globalsCount {
		return nil, fmt.Errorf("zmachine: %d global variables declared, only %d available", len(mod.Globals), globalsCount)
	}
	if mod.Start == "" {
		return nil, fmt.Errorf("zmachine: module has no Start routine")
	}

	routines, err := encodeRoutines(mod)
	if err != nil {
		return nil, err
	}

	table := &zstring.UnicodeTable{}
	strings := make([]encodedString, len(mod.Strings))
	for i, s := range mod.Strings {
		bytes, err := zstring.EncodeBytes(s, table)
		if err != nil {
			return nil, fmt.Errorf("zmachine: encoding string %d: %w", i, err)
		}
		strings[i] = encodedString{bytes: bytes}
	}

	layout, err := computeLayout(routines, strings, table)
	if err != nil {
		return nil, err
	}

	img := make([]byte, layout.fileSize)
	writeAlphabetTable(img, layout)
	writeExtensionTable(img, layout)
	writeUnicodeTable(img, layout, table)
	writeObjectTable(img, layout)
	writeDictionary(img, layout)
	writeRoutinesAndStrings(img, layout, routines, strings)
	if err := patchReferences(img, routines, strings, mod); err != nil {
		return nil, err
	}
	writeHeader(img, layout, routines)
	writeChecksum(img)

	return img, nil
}

func encodeRoutines(mod *ir.Module) ([]encodedRoutine, error) {
	out := make([]encodedRoutine, 0, len(mod.Routines)+1)
	for i, r := range mod.Routines {
		bytes, patches, err := EncodeRoutine(r, i)
		if err != nil {
			return nil, fmt.Errorf("zmachine: encoding routine %s: %w", r.Name, err)
		}
		if len(bytes) > 0xFFFF {
			return nil, fmt.Errorf("zmachine: routine %s is %d bytes, exceeds the 64 KB limit", r.Name, len(bytes))
		}
		out = append(out, encodedRoutine{name: r.Name, bytes: bytes, patches: patches})
	}

	entryIdx := len(out)
	entryBytes, entryPatches, err := EncodeRoutine(&ir.Routine{
		Name: entryRoutineName,
		Instrs: []*ir.Instr{
			{Op: ir.OpCall, Operands: []ir.Operand{ir.RoutineRef(mod.Start)}},
		},
	}, entryIdx)
	if err != nil {
		return nil, fmt.Errorf("zmachine: encoding entry routine: %w", err)
	}
	entryBytes = append(entryBytes, 0xB0|10) // 0OP:10 quit
	out = append(out, encodedRoutine{name: entryRoutineName, bytes: entryBytes, patches: entryPatches})

	return out, nil
}

// layout holds every computed address the header, tables, and patch pass
// need.
type layout struct {
	alphaAddr     int
	extensionAddr int
	unicodeAddr   int
	globalsAddr   int
	objectAddr    int
	objTextAddr   int // object's empty short-name/property table
	dictAddr      int
	abbrAddr      int
	staticAddr    int
	highMemAddr   int
	fileSize      int
}

// abbrWords is the fixed size of the abbreviations table the Z-Machine
// standard mandates: 3 sets of 32 entries, regardless of whether a story
// actually uses any abbreviations. This compiler never emits an
// abbreviation Z-character, so every entry stays zero; the table is
// still allocated so the header's abbreviations-table address points at
// real, present memory rather than a dangling pointer.
const abbrWords = 96

func roundUp8(n int) int { return (n + 7) / 8 * 8 }

func computeLayout(routines []encodedRoutine, strings []encodedString, table *zstring.UnicodeTable) (*layout, error) {
	l := &layout{}
	l.alphaAddr = headerSize
	l.extensionAddr = l.alphaAddr + 78
	l.unicodeAddr = l.extensionAddr + 8
	unicodeTableSize := 1 + 2*len(table.Runes())
	l.globalsAddr = l.unicodeAddr + unicodeTableSize
	l.objectAddr = l.globalsAddr + globalsTableSize

	// One dummy object with an empty property table (a single terminator
	// byte: zero extra bytes of short name, no properties).
	l.objTextAddr = l.objectAddr + objectDefaultWords*2 + objectEntrySize
	objectTableEnd := l.objTextAddr + 1

	l.staticAddr = l.objectAddr // static memory begins at the first read-only structure
	l.dictAddr = objectTableEnd
	// Dictionary header with zero word separators, zero entries: n(1) +
	// separators(0) + entry-length(1) + num-entries(2).
	dictSize := 4

	l.abbrAddr = l.dictAddr + dictSize
	l.highMemAddr = roundUp8(l.abbrAddr + abbrWords*2)
	if l.highMemAddr > 0xFFFF {
		return nil, fmt.Errorf("zmachine: static memory extends past the 64 KB addressable range (%d bytes)", l.highMemAddr)
	}

	addr := l.highMemAddr
	for i := range routines {
		addr = roundUp8(addr)
		routines[i].addr = addr
		addr += len(routines[i].bytes)
	}
	for i := range strings {
		addr = roundUp8(addr)
		strings[i].addr = addr
		addr += len(strings[i].bytes)
	}
	if addr/packingFactor > 0xFFFF {
		return nil, fmt.Errorf("zmachine: story data extends past the addressable range for packed addresses (%d bytes)", addr)
	}

	l.fileSize = roundUp8(addr)
	return l, nil
}

func writeAlphabetTable(img []byte, l *layout) {
	copy(img[l.alphaAddr:l.alphaAddr+78], []byte(zstring.Alphabet))
}

// writeExtensionTable writes the header extension table: word count (3),
// then mouse X, mouse Y (unused, both 0), then the Unicode table address.
func writeExtensionTable(img []byte, l *layout) {
	binary.BigEndian.PutUint16(img[l.extensionAddr:], 3)
	binary.BigEndian.PutUint16(img[l.extensionAddr+2:], 0)
	binary.BigEndian.PutUint16(img[l.extensionAddr+4:], 0)
	binary.BigEndian.PutUint16(img[l.extensionAddr+6:], uint16(l.unicodeAddr))
}

func writeUnicodeTable(img []byte, l *layout, table *zstring.UnicodeTable) {
	runes := table.Runes()
	img[l.unicodeAddr] = byte(len(runes))
	for i, r := range runes {
		binary.BigEndian.PutUint16(img[l.unicodeAddr+1+2*i:], uint16(r))
	}
}

// writeObjectTable writes the v4+ format object table: 63 words of
// (unused) default property values, followed by a single dummy object
// with no attributes, no parent/sibling/child, and an empty property
// table. The compiler has no object model of its own — Twee passages and
// script variables never need one — but the Z-Machine standard requires
// the table and its address to be structurally present and well-formed.
func writeObjectTable(img []byte, l *layout) {
	entryAddr := l.objectAddr + objectDefaultWords*2
	// v4+ object entry: 6 bytes of attribute flags, 2 bytes each of
	// parent/sibling/child, then the 2-byte property table address at
	// offset 12.
	binary.BigEndian.PutUint16(img[entryAddr+12:], uint16(l.objTextAddr))
	img[l.objTextAddr] = 0 // short name length 0, no properties follow
}

// writeDictionary writes an empty dictionary: zero word separators, an
// entry length wide enough for a v4+ 9-Z-character (6-byte) encoded
// word, and zero entries. Nothing in this compiler's Twee corpus needs
// interpreter-side word parsing, so an empty dictionary is sufficient.
func writeDictionary(img []byte, l *layout) {
	img[l.dictAddr] = 0 // no word separators
	img[l.dictAddr+1] = 6
	binary.BigEndian.PutUint16(img[l.dictAddr+2:], 0)
}

func writeRoutinesAndStrings(img []byte, l *layout, routines []encodedRoutine, strings []encodedString) {
	for _, r := range routines {
		copy(img[r.addr:r.addr+len(r.bytes)], r.bytes)
	}
	for _, s := range strings {
		copy(img[s.addr:s.addr+len(s.bytes)], s.bytes)
	}
}

// patchReferences fills in every deferred packed address: a routine
// call target or a printed string, recorded by encoder.go as a
// Patch against a zeroed 2-byte slot.
func patchReferences(img []byte, routines []encodedRoutine, strings []encodedString, mod *ir.Module) error {
	byName := map[string]*encodedRoutine{}
	for i := range routines {
		byName[routines[i].name] = &routines[i]
	}

	apply := func(r *encodedRoutine, p Patch) error {
		slot := r.addr + p.Offset
		switch p.Kind {
		case patchString:
			if p.StringIndex < 0 || p.StringIndex >= len(strings) {
				return fmt.Errorf("zmachine: routine %s references unknown string %d", r.name, p.StringIndex)
			}
			binary.BigEndian.PutUint16(img[slot:], uint16(strings[p.StringIndex].addr/packingFactor))
		case patchRoutine:
			target, ok := byName[p.RoutineName]
			if !ok {
				return fmt.Errorf("zmachine: routine %s calls undefined routine %s", r.name, p.RoutineName)
			}
			binary.BigEndian.PutUint16(img[slot:], uint16(target.addr/packingFactor))
		}
		return nil
	}

	for i := range routines {
		for _, p := range routines[i].patches {
			if err := apply(&routines[i], p); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeHeader(img []byte, l *layout, routines []encodedRoutine) {
	img[0x00] = storyVersion
	img[0x01] = 0 // flags 1

	binary.BigEndian.PutUint16(img[0x04:], uint16(l.highMemAddr))

	var entryAddr int
	for _, r := range routines {
		if r.name == entryRoutineName {
			entryAddr = r.addr + 1 // skip the locals-count byte
		}
	}
	binary.BigEndian.PutUint16(img[0x06:], uint16(entryAddr))

	binary.BigEndian.PutUint16(img[0x08:], uint16(l.dictAddr))
	binary.BigEndian.PutUint16(img[0x0A:], uint16(l.objectAddr))
	binary.BigEndian.PutUint16(img[0x0C:], uint16(l.globalsAddr))
	binary.BigEndian.PutUint16(img[0x0E:], uint16(l.staticAddr))

	binary.BigEndian.PutUint16(img[0x02:], 1) // release number
	copy(img[0x12:0x18], []byte(serialNumber()))

	binary.BigEndian.PutUint16(img[0x18:], uint16(l.abbrAddr))
	binary.BigEndian.PutUint16(img[0x1A:], uint16(len(img)/packingFactor)) // file length / 8 for v8
	binary.BigEndian.PutUint16(img[0x34:], uint16(l.alphaAddr))
	binary.BigEndian.PutUint16(img[0x36:], uint16(l.extensionAddr))
	img[0x32] = 1 // standard revision major
	img[0x33] = 0 // standard revision minor
}

// serialNumber is the six-digit ASCII compile date the header records,
// overridable via SOURCE_DATE_EPOCH for reproducible test builds.
func serialNumber() string {
	t := time.Now().UTC()
	if v := os.Getenv("SOURCE_DATE_EPOCH"); v != "" {
		if sec, err := parseEpoch(v); err == nil {
			t = time.Unix(sec, 0).UTC()
		}
	}
	return t.Format("060102")
}

func parseEpoch(s string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func writeChecksum(img []byte) {
	var sum uint32
	for _, b := range img[0x40:] {
		sum += uint32(b)
	}
	binary.BigEndian.PutUint16(img[0x1C:], uint16(sum&0xFFFF))
}
