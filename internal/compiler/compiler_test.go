package compiler

import (
	"encoding/binary"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"twyne/debug"
	"twyne/internal/diag"
)

func compileOK(t *testing.T, src string) []byte {
	t.Helper()
	c := New(log.New(os.Stderr, "", 0))
	res := c.Compile(src, "<test>")
	if res.HasErrors() {
		var msgs []string
		for _, d := range res.Diagnostics {
			msgs = append(msgs, d.String())
		}
		t.Fatalf("unexpected compile errors:\n%s", strings.Join(msgs, "\n"))
	}
	be.True(t, len(res.Image) > 0)
	return res.Image
}

func assertValidImage(t *testing.T, img []byte) {
	t.Helper()
	be.True(t, len(img) >= 0x40)
	be.Equal(t, img[0x00], byte(8)) // story version 8
	claimed := binary.BigEndian.Uint16(img[0x1C:])
	be.Equal(t, claimed, debug.HeaderChecksum(img))
}

func TestCompileMinimalStory(t *testing.T) {
	src := ":: Start\nHello, world.\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileArithmeticPrint(t *testing.T) {
	src := "" +
		":: Start\n" +
		"<<set $x to 2 + 3 * 4>>\n" +
		"<<print $x>>\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileVariableSetPrint(t *testing.T) {
	src := "" +
		":: Start\n" +
		"<<set $count to 1>>\n" +
		"<<set $count to $count + 1>>\n" +
		"<<print $count>>\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileIfElse(t *testing.T) {
	src := "" +
		":: Start\n" +
		"<<set $x to 5>>\n" +
		"<<if $x > 3>>\n" +
		"big\n" +
		"<<else>>\n" +
		"small\n" +
		"<<endif>>\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileLinkAndDisplay(t *testing.T) {
	src := "" +
		":: Start\n" +
		"<<display \"Aside\">>\n" +
		"[[Go north|North]]\n" +
		"\n" +
		":: North\n" +
		"You arrive in a clearing.\n" +
		"\n" +
		":: Aside\n" +
		"A fine day.\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileUnicodeEscape(t *testing.T) {
	src := ":: Start\nThe café is closed. €5 please.\n"
	img := compileOK(t, src)
	assertValidImage(t, img)
}

func TestCompileMissingStart(t *testing.T) {
	c := New(nil)
	res := c.Compile(":: Lonely\nNo tag here.\n", "<test>")
	be.True(t, res.HasErrors())
	be.True(t, res.Image == nil)
	be.True(t, hasKind(res.Diagnostics, diag.ResolveError))
}

func TestCompileUnresolvedLinkTarget(t *testing.T) {
	c := New(nil)
	src := ":: Start\n[[Go nowhere|Nowhere]]\n"
	res := c.Compile(src, "<test>")
	be.True(t, res.HasErrors())
	be.True(t, hasKind(res.Diagnostics, diag.ResolveError))
}

func TestCompileUnterminatedMacro(t *testing.T) {
	c := New(nil)
	src := ":: Start\n<<set $x to 1\n"
	res := c.Compile(src, "<test>")
	be.True(t, res.HasErrors())
	be.True(t, hasKind(res.Diagnostics, diag.LexError))
}

func TestCompileStringConcatTypeError(t *testing.T) {
	c := New(nil)
	src := ":: Start\n<<set $name to \"Al\" + $suffix>>\n<<print $name>>\n"
	res := c.Compile(src, "<test>")
	be.True(t, res.HasErrors())
	be.True(t, hasKind(res.Diagnostics, diag.TypeError))
}

func TestCompileDeterministicWithFixedSerial(t *testing.T) {
	os.Setenv("SOURCE_DATE_EPOCH", "1700000000")
	defer os.Unsetenv("SOURCE_DATE_EPOCH")

	src := ":: Start\nHello again.\n"
	img1 := compileOK(t, src)
	img2 := compileOK(t, src)
	be.Equal(t, img1, img2)
}

func hasKind(diags []diag.Diagnostic, kind diag.Kind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}
