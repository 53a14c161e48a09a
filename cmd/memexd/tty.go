package main

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/memexd/memexd/pkg/models"
)

const (
	ansiDim   = "\x1b[2m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiReset = "\x1b[0m"
)

// isOutputTerminal reports whether w is a terminal memexd should colorize
// tool-event summaries for, rather than a redirected file or pipe.
func isOutputTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// printToolEvents writes a one-line summary per tool event, colorized when
// w is an interactive terminal.
func printToolEvents(w io.Writer, events []models.ToolEvent, colorize bool) {
	for _, ev := range events {
		switch {
		case !colorize:
			fmt.Fprintf(w, "  [%s] %s %s\n", ev.Type, ev.Tool, ev.Action)
		case ev.OK != nil && !*ev.OK:
			fmt.Fprintf(w, "  %s[%s]%s %s %s\n", ansiRed, ev.Type, ansiReset, ev.Tool, ev.Action)
		case ev.Type == models.ToolEventResult:
			fmt.Fprintf(w, "  %s[%s]%s %s %s\n", ansiGreen, ev.Type, ansiReset, ev.Tool, ev.Action)
		default:
			fmt.Fprintf(w, "  %s[%s] %s %s%s\n", ansiDim, ev.Type, ev.Tool, ev.Action, ansiReset)
		}
	}
}
