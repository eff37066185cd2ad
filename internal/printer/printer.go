// Package printer writes coloured status lines for the CLI.
package printer

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/JakeFAU/artist-crawler/internal/dispatcher"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
	bold   = color.New(color.Bold)
)

// Success prints a message in green with a checkmark prefix.
func Success(w io.Writer, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if !strings.HasPrefix(msg, "✓") {
		msg = "✓ " + msg
	}
	_, _ = green.Fprintln(w, msg)
}

// Warning prints a message in yellow.
func Warning(w io.Writer, format string, a ...any) {
	_, _ = yellow.Fprintln(w, "! "+fmt.Sprintf(format, a...))
}

// Step prints a progress line in cyan.
func Step(w io.Writer, format string, a ...any) {
	_, _ = cyan.Fprintln(w, "→ "+fmt.Sprintf(format, a...))
}

// Error prints title in red to stderr with the cause and returns an error
// carrying only the title, so cobra does not print it twice.
func Error(title string, cause error, suggestions ...string) error {
	_, _ = red.Fprintf(os.Stderr, "%s\n", title)
	if cause != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", cause)
	}
	for _, s := range suggestions {
		fmt.Fprintf(os.Stderr, "  - %s\n", s)
	}
	return fmt.Errorf("%s", title)
}

// Summary prints the totals of one run.
func Summary(w io.Writer, s dispatcher.Summary) {
	_, _ = bold.Fprintf(w, "Run %s\n", s.RunID)
	if s.Claimed == 0 {
		Warning(w, "no locations to crawl")
		return
	}
	fmt.Fprintf(w, "  claimed:       %d\n", s.Claimed)
	fmt.Fprintf(w, "  processed:     %d\n", s.Processed)
	_, _ = green.Fprintf(w, "  done:          %d\n", s.Done)
	failed := fmt.Sprintf("  failed:        %d\n", s.Failed)
	if s.Failed > 0 {
		_, _ = red.Fprint(w, failed)
	} else {
		fmt.Fprint(w, failed)
	}
	fmt.Fprintf(w, "  artists added: %d\n", s.ArtistsAdded)
	if s.Released > 0 {
		_, _ = yellow.Fprintf(w, "  released:      %d\n", s.Released)
	}
	fmt.Fprintf(w, "  elapsed:       %s\n", s.Elapsed.Round(time.Millisecond))
}
