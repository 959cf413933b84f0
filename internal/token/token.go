// Package token defines the tokens produced by internal/lexer, covering
// both Twee prose/structure tokens and the embedded script sublanguage's
// tokens.
package token

import (
	"fmt"

	"twyne/internal/span"
)

type Kind int

const (
	ILLEGAL Kind = iota
	EOF
	NEWLINE

	// Story structure
	PASSAGE_HEADER // "::Name [tag tag]"
	TEXT           // a run of prose
	STYLE_OPEN     // '' // {{{
	STYLE_CLOSE    // '' // }}}
	LINK_OPEN      // [[
	LINK_MID       // |
	LINK_CLOSE     // ]]
	MACRO_OPEN     // <<
	MACRO_CLOSE    // >>

	// Script sublanguage, produced while the lexer is inside a macro body
	KEYWORD  // set to print display if else endif and or not is true false random
	IDENT    // bare identifier (passage name, macro name)
	VARIABLE // $name
	INT_LIT
	STR_LIT
	BOOL_LIT
	OP // + - * / == != < <= > >= ( ) ,
)

// StyleKind distinguishes which style a STYLE_OPEN/STYLE_CLOSE token
// belongs to.
type StyleKind int

const (
	StyleNone StyleKind = iota
	StyleBold
	StyleItalic
	StyleMono
)

func (k StyleKind) String() string {
	switch k {
	case StyleBold:
		return "bold"
	case StyleItalic:
		return "italic"
	case StyleMono:
		return "mono"
	default:
		return "none"
	}
}

var kindNames = map[Kind]string{
	ILLEGAL:        "ILLEGAL",
	EOF:            "EOF",
	NEWLINE:        "NEWLINE",
	PASSAGE_HEADER: "PASSAGE_HEADER",
	TEXT:           "TEXT",
	STYLE_OPEN:     "STYLE_OPEN",
	STYLE_CLOSE:    "STYLE_CLOSE",
	LINK_OPEN:      "LINK_OPEN",
	LINK_MID:       "LINK_MID",
	LINK_CLOSE:     "LINK_CLOSE",
	MACRO_OPEN:     "MACRO_OPEN",
	MACRO_CLOSE:    "MACRO_CLOSE",
	KEYWORD:        "KEYWORD",
	IDENT:          "IDENT",
	VARIABLE:       "VARIABLE",
	INT_LIT:        "INT_LIT",
	STR_LIT:        "STR_LIT",
	BOOL_LIT:       "BOOL_LIT",
	OP:             "OP",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

var keywords = map[string]bool{
	"set": true, "to": true, "print": true, "display": true,
	"if": true, "else": true, "endif": true,
	"and": true, "or": true, "not": true, "is": true,
	"true": true, "false": true, "random": true,
}

// IsKeyword reports whether lit names one of the script sublanguage's
// reserved words.
func IsKeyword(lit string) bool { return keywords[lit] }

// Token is a single lexical unit with its source location. Kind-specific
// payloads (tag list, integer value) live alongside the raw lexeme rather
// than behind a sum type, since Go has no enum-with-payload: callers
// switch on Kind and read the field that applies.
type Token struct {
	Kind   Kind
	Lexeme string
	Span   span.Span

	IntValue int64    // set when Kind == INT_LIT
	BoolVal  bool     // set when Kind == BOOL_LIT
	Tags     []string // set when Kind == PASSAGE_HEADER
}

func (t Token) String() string {
	return fmt.Sprintf("%s %q %s", t.Kind, t.Lexeme, t.Span.Start)
}
