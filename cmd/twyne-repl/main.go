// Command twyne-repl is a supplemental tool for trying out a story's
// script logic interactively: set/print/if, arithmetic, comparisons, and
// random(), without compiling a full story file. Grounded on
// _examples/duhaifeng-light-lang's cmd/light/repl.go.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"twyne/internal/diag"
	"twyne/internal/lexer"
	"twyne/internal/parser"
	"twyne/internal/scripteval"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorGray  = "\033[90m"
	colorBold  = "\033[1m"
	colorCyan  = "\033[36m"
)

func main() {
	historyFile := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyFile = filepath.Join(home, ".twyne_history")
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            colorGreen + "twyne> " + colorReset,
		HistoryFile:       historyFile,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "readline init failed: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "%s%stwyne REPL%s %s(try set/print/if, or a bare expression; 'exit' or Ctrl+D to quit)%s\n\n",
		colorBold, colorCyan, colorReset, colorGray, colorReset)

	interp := scripteval.New(rl.Stdout())

	var accumulated strings.Builder
	ifDepth := 0

	for {
		if ifDepth > 0 {
			rl.SetPrompt(colorGray + "...     " + colorReset)
		} else {
			rl.SetPrompt(colorGreen + "twyne> " + colorReset)
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if ifDepth > 0 {
					accumulated.Reset()
					ifDepth = 0
					continue
				}
				fmt.Fprintf(rl.Stdout(), "\n%s(use 'exit' or Ctrl+D to quit)%s\n", colorGray, colorReset)
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(rl.Stdout())
			}
			break
		}

		if ifDepth == 0 && strings.TrimSpace(line) == "exit" {
			break
		}

		ifDepth += strings.Count(line, "<<if") - strings.Count(line, "<<endif>>")
		accumulated.WriteString(line)
		accumulated.WriteString("\n")

		if ifDepth > 0 {
			continue
		}
		ifDepth = 0

		source := accumulated.String()
		accumulated.Reset()
		if strings.TrimSpace(source) == "" {
			continue
		}

		evalLine(interp, wrapMacro(source), rl.Stdout(), rl.Stderr())
	}
}

// wrapMacro wraps raw REPL input in a macro block and a throwaway passage
// header, unless the user already typed an explicit "<<...>>" or
// "::passage" form, so "set $x to 3" works without ceremony. Input that
// does not start with a macro keyword is treated as an expression to
// print, so "2 + 3" prints 5.
func wrapMacro(line string) string {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "::") {
		return line
	}
	if strings.Contains(trimmed, "<<") {
		return "::repl\n" + line
	}
	body := strings.TrimRight(line, "\n")
	if fields := strings.Fields(trimmed); len(fields) > 0 {
		switch strings.ToLower(fields[0]) {
		case "set", "print", "display", "if", "else", "endif":
		default:
			body = "print " + body
		}
	}
	return "::repl\n<<" + body + ">>\n"
}

func evalLine(interp *scripteval.Interpreter, source string, out, errOut io.Writer) {
	l := lexer.New(source, "<repl>")
	toks, lexDiags := l.Tokenize()
	if len(lexDiags) > 0 {
		printDiagsColored(errOut, lexDiags)
		return
	}

	p := parser.New(toks)
	story, parseDiags := p.ParseStory()
	if len(parseDiags) > 0 {
		printDiagsColored(errOut, parseDiags)
		return
	}

	for _, passage := range story.Passages {
		if err := interp.Run(passage.Body); err != nil {
			fmt.Fprintf(errOut, "%serror: %s%s\n", colorRed, err, colorReset)
			return
		}
	}
	fmt.Fprintln(out)
}

func printDiagsColored(w io.Writer, diags []diag.Diagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s%s%s\n", colorRed, d.String(), colorReset)
	}
}
