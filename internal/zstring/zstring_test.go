package zstring

import (
	"testing"

	"github.com/nalgeon/be"
)

func TestToZcharsPlainAscii(t *testing.T) {
	want := []byte{
		14, 0, 6, 18, 0, 6, 0, 24, 25, 23, 14, 19, 12, 5, 19, 0, 21, 17, 10, 6,
		24, 10, 0, 25, 10, 24, 25, 0, 18, 10, 5, 19, 0, 19, 20, 0, 26, 19, 14,
		8, 20, 9, 10,
	}
	got, err := ToZchars("i am a string, please test me, no unicode", &UnicodeTable{})
	be.Err(t, err, nil)
	be.Equal(t, got, want)
}

func TestToZcharsSpaceIsZero(t *testing.T) {
	got, err := ToZchars(" ", &UnicodeTable{})
	be.Err(t, err, nil)
	be.Equal(t, got, []byte{0})
}

func TestToZcharsUppercaseShifts(t *testing.T) {
	got, err := ToZchars("A", &UnicodeTable{})
	be.Err(t, err, nil)
	be.Equal(t, got, []byte{4, 6})
}

func TestToZcharsDigitShifts(t *testing.T) {
	got, err := ToZchars("7", &UnicodeTable{})
	be.Err(t, err, nil)
	be.Equal(t, got, []byte{5, 15}) // '7' sits at a2 index 9 (2 for space/newline + digit 7): zchar 9+6
}

func TestToZcharsUnicodeEscape(t *testing.T) {
	table := &UnicodeTable{}
	got, err := ToZchars("€", table)
	be.Err(t, err, nil)
	be.Equal(t, len(got), 4)
	be.Equal(t, got[0], byte(5))
	be.Equal(t, got[1], byte(6))
	be.Equal(t, len(table.Runes()), 1)
	be.Equal(t, table.Runes()[0], '€')
}

func TestToZcharsAsciiPunctuationEscapesAsOwnCodePoint(t *testing.T) {
	table := &UnicodeTable{}
	got, err := ToZchars("@", table)
	be.Err(t, err, nil)
	be.Equal(t, got, []byte{5, 6, byte('@' >> 5), byte('@' & 0x1f)})
	be.Equal(t, len(table.Runes()), 0) // must not pollute the Unicode table
}

func TestToZcharsRejectsControlCharacter(t *testing.T) {
	_, err := ToZchars("a\x01b", &UnicodeTable{})
	be.True(t, err != nil)
}

func TestToZcharsRejectsDelete(t *testing.T) {
	_, err := ToZchars("\x7f", &UnicodeTable{})
	be.True(t, err != nil)
}

func TestToZcharsNewlineUsesAlphabetShift(t *testing.T) {
	got, err := ToZchars("\n", &UnicodeTable{})
	be.Err(t, err, nil)
	be.Equal(t, got, []byte{5, 7})
}

func TestPackWordsSetsEndBit(t *testing.T) {
	words := PackWords([]byte{6, 6, 6})
	be.Equal(t, len(words), 1)
	be.True(t, words[0]&0x8000 != 0)
}

func TestPackWordsPadsIncompleteGroup(t *testing.T) {
	words := PackWords([]byte{6})
	be.Equal(t, len(words), 1)
	// 6<<10 | 5<<5 | 5, with the end bit set.
	be.Equal(t, words[0], uint16(6<<10|5<<5|5)|0x8000)
}

func TestEncodeRoundTripLength(t *testing.T) {
	table := &UnicodeTable{}
	words, err := Encode("hello", table)
	be.Err(t, err, nil)
	be.Equal(t, len(words), 2) // 5 zchars -> padded to 6 -> 2 words
}

func TestEncodePropagatesError(t *testing.T) {
	_, err := Encode("\x01", &UnicodeTable{})
	be.True(t, err != nil)
}
