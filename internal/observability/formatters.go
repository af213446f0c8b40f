// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/bookmeta/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// descriptionLines caps how much of a description is shown
	descriptionLines = 4
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// PrintRecord outputs a human-readable summary of a resolved metadata record.
func (p *Printer) PrintRecord(record *types.MetadataRecord) {
	if record == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:     %s\n", record.Title))
	sb.WriteString(fmt.Sprintf("Authors:   %s\n", strings.Join(record.Authors, ", ")))
	if record.Publisher != "" {
		sb.WriteString(fmt.Sprintf("Publisher: %s\n", record.Publisher))
	}
	if record.PublishedAt != nil {
		sb.WriteString(fmt.Sprintf("Published: %s\n", record.PublishedAt.Format("2006-01-02")))
	}

	if len(record.Identifiers) > 0 {
		keys := make([]string, 0, len(record.Identifiers))
		for k := range record.Identifiers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nIdentifiers:\n")
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  • %s: %s\n", k, record.Identifiers[k]))
		}
	}

	if record.CoverURL != "" {
		sb.WriteString(fmt.Sprintf("\nCover: %s\n", record.CoverURL))
	}

	if desc := strings.TrimSpace(record.Description); desc != "" {
		sb.WriteString("\nDescription:\n")
		lines := wrap(desc, boxWidth-6)
		count := min(len(lines), descriptionLines)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  %s\n", lines[i]))
		}
		if len(lines) > descriptionLines {
			sb.WriteString(fmt.Sprintf("  ... and %d more lines\n", len(lines)-descriptionLines))
		}
	}

	title := "RESOLVED RECORD"
	if record.Source != "" {
		title = fmt.Sprintf("RESOLVED RECORD (%s)", record.Source)
	}
	p.printBox(title, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintCandidates outputs the search keywords that will be tried, in order.
func (p *Printer) PrintCandidates(candidates []string) {
	if len(candidates) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Search stages: %d\n\n", len(candidates)))
	for i, c := range candidates {
		sb.WriteString(fmt.Sprintf("#%d  %q\n", i+1, c))
	}

	p.printBox("SEARCH CANDIDATES", strings.TrimSuffix(sb.String(), "\n"))
}

// BatchResult is the outcome of one batch lookup.
type BatchResult struct {
	Line  int
	Title string
	Err   error
}

// PrintBatchSummary outputs match counts and the first few failures of a batch run.
func (p *Printer) PrintBatchSummary(results []BatchResult) {
	if len(results) == 0 {
		return
	}

	var failed []BatchResult
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Requests: %d\n", len(results)))
	sb.WriteString(fmt.Sprintf("Matched:  %d\n", len(results)-len(failed)))
	sb.WriteString(fmt.Sprintf("Failed:   %d\n", len(failed)))

	if len(failed) > 0 {
		sb.WriteString("\n")
		count := min(len(failed), maxItemsToShow)
		for i := 0; i < count; i++ {
			f := failed[i]
			sb.WriteString(fmt.Sprintf("⚠ line %d: %s\n", f.Line, f.Title))
			sb.WriteString(fmt.Sprintf("  %s\n", f.Err))
		}
		if len(failed) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more failures\n", len(failed)-maxItemsToShow))
		}
	}

	p.printBox("BATCH SUMMARY", strings.TrimSuffix(sb.String(), "\n"))
}

// wrap splits text into lines of at most width runes on word boundaries.
func wrap(text string, width int) []string {
	var lines []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(word) > width {
			lines = append(lines, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		lines = append(lines, cur.String())
	}
	return lines
}
