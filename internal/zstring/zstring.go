// Package zstring implements the ZSCII/Z-character encoder: three
// Z-characters packed per 16-bit word, alphabets A0
// (lowercase), A1 (uppercase), and A2 (digits/punctuation/newline)
// selected by shift codes 4 and 5, with an escape-to-ZSCII sequence for
// anything outside the three alphabets. Grounded directly on
// _examples/original_source/src/zwreec/backend/zcode/ztext.rs, including
// its 78-entry ALPHABET layout and its string_to_zchar/shift encoding
// rules; its #[test] expected-output vectors are reproduced here as
// table-driven Go tests.
package zstring

import (
	"fmt"
	"strings"
)

// Alphabet is the 78-character table: 26 lowercase (A0), 26 uppercase
// (A1), and 26 "special" characters (A2) — space, newline, the ten
// digits, and fourteen punctuation marks — in the exact order ztext.rs
// uses, since position within each third determines the encoded Z-char.
const Alphabet = "abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	" \n0123456789.,!?_#'\"/\\-:()"

var (
	a0 = Alphabet[0:26]
	a1 = Alphabet[26:52]
	a2 = Alphabet[52:78]
)

// shiftPad is the Z-character emitted to pad an incomplete trailing group
// to three characters; the Z-Machine standard reserves it as a shift code
// with no following character, making it a safe, self-terminating filler.
const shiftPad = 5

// UnicodeTable accumulates the distinct non-Latin runes a story uses, in
// first-seen order, so they can be written into the story file's Unicode
// translation table (header extension word 3) and referenced from text by
// a 10-bit escape code.
type UnicodeTable struct {
	runes []rune
}

func (t *UnicodeTable) indexOf(r rune) int {
	for i, x := range t.runes {
		if x == r {
			return i
		}
	}
	t.runes = append(t.runes, r)
	return len(t.runes) - 1
}

// Runes returns the accumulated table in encoding order.
func (t *UnicodeTable) Runes() []rune { return t.runes }

// ToZchars converts a Go string into its unpacked Z-character stream (one
// byte per Z-character, values 0-31), the form ztext.rs's
// string_to_zchar produces before packing. Runes in the printable ASCII
// range (32-126) that aren't in the 78-char alphabet are ZSCII-escaped
// using their own code point; only runes above 0x9B go through table, the
// Unicode translation table. Anything else — the C0/C1 control ranges and
// DEL — has no legal Z-Machine representation and is rejected.
func ToZchars(s string, table *UnicodeTable) ([]byte, error) {
	var out []byte
	for _, r := range s {
		switch {
		case r == ' ':
			out = append(out, 0)
		case strings.ContainsRune(a0, r):
			out = append(out, byte(strings.IndexRune(a0, r)+6))
		case strings.ContainsRune(a1, r):
			out = append(out, 4, byte(strings.IndexRune(a1, r)+6))
		case r != ' ' && strings.ContainsRune(a2, r):
			out = append(out, 5, byte(strings.IndexRune(a2, r)+6))
		case r >= 32 && r <= 126:
			out = append(out, 5, 6, byte((r>>5)&0x1f), byte(r&0x1f))
		case r > 0x9B:
			idx := table.indexOf(r)
			code := 155 + idx
			out = append(out, 5, 6, byte((code>>5)&0x1f), byte(code&0x1f))
		default:
			return nil, fmt.Errorf("zstring: illegal control character %U", r)
		}
	}
	return out, nil
}

// PackWords packs a Z-character stream three-to-a-word, padding the final
// group with shiftPad and setting the end-of-string bit (0x8000) on the
// last word.
func PackWords(zchars []byte) []uint16 {
	padded := make([]byte, len(zchars))
	copy(padded, zchars)
	for len(padded)%3 != 0 {
		padded = append(padded, shiftPad)
	}

	words := make([]uint16, 0, len(padded)/3)
	for i := 0; i < len(padded); i += 3 {
		w := uint16(padded[i])<<10 | uint16(padded[i+1])<<5 | uint16(padded[i+2])
		words = append(words, w)
	}
	if len(words) > 0 {
		words[len(words)-1] |= 0x8000
	} else {
		words = append(words, 0x8000)
	}
	return words
}

// Encode converts a Go string directly into its packed Z-Machine word
// sequence, interning any non-Latin runes into table.
func Encode(s string, table *UnicodeTable) ([]uint16, error) {
	zchars, err := ToZchars(s, table)
	if err != nil {
		return nil, err
	}
	return PackWords(zchars), nil
}

// EncodeBytes renders Encode's words as big-endian bytes, ready to append
// to the story file's string area.
func EncodeBytes(s string, table *UnicodeTable) ([]byte, error) {
	words, err := Encode(s, table)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(words)*2)
	for _, w := range words {
		out = append(out, byte(w>>8), byte(w))
	}
	return out, nil
}
