// Package report renders PatternMatch results for human consumption: a
// markdown-ish table per match (one row per matched pattern event) plus a
// colorized summary line, in the teacher's table-formatting idiom.
package report

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// Formatter renders PatternMatches for the CLI's --print_instances output.
type Formatter struct {
	// MaxWidth truncates overly long signature text in a cell.
	MaxWidth int
}

// NewFormatter creates a Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{MaxWidth: 60}
}

// FormatMatch renders one PatternMatch as a table with one row per matched
// pattern event, plus a colorized summary line above it.
func (f *Formatter) FormatMatch(index int, m stream.PatternMatch) string {
	out := &strings.Builder{}

	summary := color.New(color.FgGreen, color.Bold).Sprintf("match #%d", index)
	fmt.Fprintf(out, "%s  id=%s  span=[%d, %d]\n", summary, m.ID.String(), m.EarliestTime, m.LatestTime)

	table := tablewriter.NewTable(out,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"pattern event", "kind", "subject", "object", "start", "end", "input event ids"})

	for _, ev := range m.Events {
		table.Append([]string{
			fmt.Sprintf("%d", ev.PatternEventID),
			kindLabel(ev),
			fmt.Sprintf("%d", ev.SubjectID()),
			fmt.Sprintf("%d", ev.ObjectID()),
			fmt.Sprintf("%d", ev.StartTime),
			fmt.Sprintf("%d", ev.EndTime),
			f.truncate(idList(ev.EventIDs())),
		})
	}
	table.Render()

	return out.String()
}

// FormatMatches renders every match in order, separated by a blank line.
func (f *Formatter) FormatMatches(matches []stream.PatternMatch) string {
	out := &strings.Builder{}
	for i, m := range matches {
		out.WriteString(f.FormatMatch(i, m))
		out.WriteString("\n")
	}
	if len(matches) == 0 {
		out.WriteString(color.New(color.FgYellow).Sprint("no matches\n"))
	}
	return out.String()
}

func kindLabel(ev stream.MatchEvent) string {
	switch {
	case ev.IsFlow:
		return "Flow"
	case ev.Kind == stream.MatchMultiple:
		return "Frequency"
	default:
		return "Default"
	}
}

func idList(ids []uint64) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}

func (f *Formatter) truncate(s string) string {
	if f.MaxWidth <= 0 || len(s) <= f.MaxWidth {
		return s
	}
	return s[:f.MaxWidth] + "..."
}
