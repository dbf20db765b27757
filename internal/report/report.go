// Package report renders the end-of-run report and the live progress view.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"
)

const maxErrorWidth = 100

// Failure is a line that errored unexpectedly.
type Failure struct {
	Line string
	Err  string
}

// Corpus holds the counters of one language (or combined) corpus.
type Corpus struct {
	Language string
	Dir      string

	Lines     int
	Admitted  int
	Resumed   int
	Annotated int

	Samples      int
	Hours        float64
	VocabSize    int
	ArchiveBytes uint64

	Rejected map[string]int
	Failures []Failure
}

// Report describes a finished run.
type Report struct {
	RunID       string
	Command     string
	Elapsed     time.Duration
	Slots       int
	FailedSlots int
	Interrupted bool
	Corpora     []Corpus
}

// Rejections returns the total number of rejected lines.
func (c Corpus) Rejections() int {
	n := 0
	for _, v := range c.Rejected {
		n += v
	}
	return n
}

func (c Corpus) reasons() []string {
	keys := make([]string, 0, len(c.Rejected))
	for k, v := range c.Rejected {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (r Report) status() string {
	if r.Interrupted {
		return "interrupted, re-run to resume"
	}
	return "finished"
}

// Markdown renders the report as a markdown document.
func (r Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# corpusprep %s\n\n", r.Command)
	fmt.Fprintf(&b, "Run `%s` %s in %s with %d workers", r.RunID, r.status(), r.Elapsed.Round(time.Second), r.Slots)
	if r.FailedSlots > 0 {
		fmt.Fprintf(&b, " (%d failed to start)", r.FailedSlots)
	}
	b.WriteString(".\n\n")

	b.WriteString("| Corpus | Lines | Admitted | Resumed | Samples | Hours | Vocab | Archive |\n")
	b.WriteString("|---|---:|---:|---:|---:|---:|---:|---:|\n")
	for _, c := range r.Corpora {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %.2f | %d | %s |\n",
			c.Language,
			humanize.Comma(int64(c.Lines)),
			humanize.Comma(int64(c.Admitted)),
			humanize.Comma(int64(c.Resumed)),
			humanize.Comma(int64(c.Samples)),
			c.Hours,
			c.VocabSize,
			humanize.Bytes(c.ArchiveBytes),
		)
	}

	var rejected bool
	for _, c := range r.Corpora {
		if c.Rejections() > 0 {
			rejected = true
		}
	}
	if rejected {
		b.WriteString("\n## Rejected\n\n| Corpus | Reason | Lines |\n|---|---|---:|\n")
		for _, c := range r.Corpora {
			for _, reason := range c.reasons() {
				fmt.Fprintf(&b, "| %s | %s | %s |\n", c.Language, reason, humanize.Comma(int64(c.Rejected[reason])))
			}
		}
	}

	for _, c := range r.Corpora {
		if len(c.Failures) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n## Errors (%s)\n\n", c.Language)
		for _, f := range c.Failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.Line, oneLine(f.Err))
		}
	}
	return b.String()
}

// Plain renders the report as aligned text for non-terminal output.
func (r Report) Plain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "corpusprep %s: run %s %s in %s (%d workers", r.Command, r.RunID, r.status(), r.Elapsed.Round(time.Second), r.Slots)
	if r.FailedSlots > 0 {
		fmt.Fprintf(&b, ", %d failed", r.FailedSlots)
	}
	b.WriteString(")\n\n")

	rows := [][]string{{"corpus", "lines", "admitted", "resumed", "samples", "hours", "vocab"}}
	for _, c := range r.Corpora {
		rows = append(rows, []string{
			c.Language,
			fmt.Sprint(c.Lines),
			fmt.Sprint(c.Admitted),
			fmt.Sprint(c.Resumed),
			fmt.Sprint(c.Samples),
			fmt.Sprintf("%.2f", c.Hours),
			fmt.Sprint(c.VocabSize),
		})
	}
	writeTable(&b, rows)

	for _, c := range r.Corpora {
		for _, reason := range c.reasons() {
			fmt.Fprintf(&b, "rejected %s %s: %d\n", c.Language, reason, c.Rejected[reason])
		}
		for _, f := range c.Failures {
			fmt.Fprintf(&b, "error %s %s: %s\n", c.Language, f.Line, oneLine(f.Err))
		}
	}
	return b.String()
}

func writeTable(b *strings.Builder, rows [][]string) {
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]))
		}
		b.WriteString("\n")
	}
}

func oneLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate.StringWithTail(s, maxErrorWidth, "...")
}

// RenderOptions controls Render.
type RenderOptions struct {
	// TTY selects the glamour-rendered report.
	TTY   bool
	Width int
	// Style is a glamour style name; empty or "auto" detects the background.
	Style string
}

// Render writes the report to w.
func Render(w io.Writer, r Report, opts RenderOptions) error {
	if !opts.TTY {
		_, err := io.WriteString(w, r.Plain())
		return err
	}

	width := opts.Width
	if width <= 0 || width > 120 {
		width = 100
	}
	style := glamour.WithAutoStyle()
	if opts.Style != "" && opts.Style != "auto" {
		style = glamour.WithStandardStyle(opts.Style)
	}
	renderer, err := glamour.NewTermRenderer(
		style,
		glamour.WithColorProfile(termenv.EnvColorProfile()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("error creating glamour renderer: %w", err)
	}
	out, err := renderer.Render(r.Markdown())
	if err != nil {
		return fmt.Errorf("error rendering report: %w", err)
	}
	if r.Interrupted {
		out += warningStyle.Render("  Interrupted: completed records are kept, run again to resume.") + "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}

var warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C")).Bold(true)
