// Package report renders run summaries as Markdown.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/artist-crawler/internal/dispatcher"
)

// Writer renders run summaries to an io.Writer.
type Writer struct {
	output io.Writer
}

// NewWriter creates a Writer that outputs to output.
func NewWriter(output io.Writer) *Writer {
	return &Writer{output: output}
}

// Write renders one run. generatedAt stamps the report header.
func (w *Writer) Write(s dispatcher.Summary, generatedAt time.Time) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Artist Crawler Run")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + s.RunID + "`"},
			{"Generated", generatedAt.UTC().Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
		},
	})
	md.PlainText("")

	md.H2("Locations")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Count"},
		Rows: [][]string{
			{"Claimed", strconv.Itoa(s.Claimed)},
			{"Processed", strconv.FormatInt(s.Processed, 10)},
			{"Done", strconv.FormatInt(s.Done, 10)},
			{"Failed", strconv.FormatInt(s.Failed, 10)},
			{"Released", strconv.FormatInt(s.Released, 10)},
			{"**Artists added**", "**" + strconv.FormatInt(s.ArtistsAdded, 10) + "**"},
		},
	})
	md.PlainText("")

	switch {
	case s.Claimed == 0:
		md.Note("No unclaimed locations with a website were found.")
	case s.Failed > 0:
		md.Warningf("%d of %d location(s) failed; see scrape_actions for error labels.", s.Failed, s.Processed)
	case s.Released > 0:
		md.Importantf("%d location(s) were released unprocessed and will be claimed again next run.", s.Released)
	default:
		md.Tip("All claimed locations finished.")
	}
	md.PlainText("")

	if err := md.Build(); err != nil {
		return fmt.Errorf("build markdown report: %w", err)
	}
	return nil
}
