package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/mscrnt/homecards/pkg/card"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
	faint  = color.New(color.Faint)
)

// Cards renders cards in the order given
func Cards(w io.Writer, cards []card.Card) {
	if len(cards) == 0 {
		green.Fprintln(w, "✓ Nothing needs your attention")
		return
	}
	for i, c := range cards {
		if i > 0 {
			fmt.Fprintln(w)
		}
		Card(w, c)
	}
}

// Card renders a single card
func Card(w io.Writer, c card.Card) {
	switch c.Kind() {
	case card.KindCondition:
		yellow.Fprint(w, "● ")
	case card.KindSuggestion:
		cyan.Fprint(w, "★ ")
	default:
		fmt.Fprint(w, "  ")
	}
	bold.Fprint(w, c.Title())
	faint.Fprintf(w, "  [%s]\n", c.ID())

	if c.Summary() != "" {
		fmt.Fprintf(w, "  %s\n", c.Summary())
	}
	if c.HasAction() {
		cyan.Fprintf(w, "  → %s\n", c.ActionLabel())
	}
}

// RefreshHeader introduces one refreshed list in watch output
func RefreshHeader(w io.Writer, trigger string, at time.Time, count int) {
	faint.Fprintf(w, "── %s  %s  %d card(s) ──\n", at.Format("15:04:05"), trigger, count)
}

// Success prints a success message in green with a checkmark prefix
func Success(w io.Writer, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	green.Fprint(w, msg)
}

// Warning prints a warning message in yellow
func Warning(w io.Writer, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "⚠️") {
		msg = "⚠️  " + msg
	}
	yellow.Fprint(w, msg)
}

// Error prints a formatted error with an explanation and suggestions to stderr
// and returns an error carrying only the title, for Cobra
func Error(title string, explanation string, suggestions []string) error {
	red.Fprintf(os.Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(os.Stderr, "%s\n", explanation)
	}

	if len(suggestions) > 0 {
		fmt.Fprintf(os.Stderr, "\n")
		if len(suggestions) == 1 {
			fmt.Fprintf(os.Stderr, "%s\n", suggestions[0])
		} else {
			fmt.Fprintf(os.Stderr, "Either:\n")
			for i, suggestion := range suggestions {
				fmt.Fprintf(os.Stderr, "  %d. %s\n", i+1, suggestion)
			}
		}
	}

	return fmt.Errorf("%s", title)
}
