package annotations

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
)

// OutputFormatter formats events for human-readable display on stderr/stdout.
type OutputFormatter struct {
	useColor bool
	writer   io.Writer
}

// NewOutputFormatter creates a formatter with color support detection.
func NewOutputFormatter(w io.Writer) *OutputFormatter {
	if w == nil {
		w = os.Stderr
	}
	useColor := false
	if f, ok := w.(*os.File); ok {
		useColor = isTerminal(f.Fd())
	}
	return &OutputFormatter{useColor: useColor, writer: w}
}

// Handle implements the Handler function signature, printing events as they occur.
func (f *OutputFormatter) Handle(event Event) {
	if out := f.Format(event); out != "" {
		fmt.Fprintln(f.writer, out)
	}
}

// Format converts an event to a human-readable string.
func (f *OutputFormatter) Format(event Event) string {
	latency := f.formatLatency(event.Latency)

	switch event.Name {
	case PatternParsed:
		return fmt.Sprintf("%s Parsed pattern with %s, %s",
			latency,
			f.colorizeCount("entities", event.Data["entity.count"].(int)),
			f.colorizeCount("events", event.Data["event.count"].(int)))

	case PatternDecomposed:
		return fmt.Sprintf("%s Decomposed into %s",
			latency, f.colorizeCount("sub-patterns", event.Data["subpattern.count"].(int)))

	case StateTableBuilt:
		return fmt.Sprintf("%s Built state table with %s",
			latency, f.colorizeCount("rows", event.Data["row.count"].(int)))

	case BatchRead:
		return fmt.Sprintf("%s Read batch of %s at t=%v",
			latency,
			f.colorizeCount("input events", event.Data["event.count"].(int)),
			event.Data["timestamp"])

	case BatchConsumed:
		return fmt.Sprintf("%s Consumed batch of %s, %s extended",
			latency,
			f.colorizeCount("events", event.Data["event.count"].(int)),
			f.colorizeCount("instances", event.Data["instance.count"].(int)))

	case InstanceEvicted:
		return fmt.Sprintf("%s Evicted %s below window bound %v",
			latency, f.colorizeCount("instances", event.Data["evicted.count"].(int)), event.Data["window.bound"])

	case SubPatternMatchEmit:
		return fmt.Sprintf("%s %s %s emitted",
			latency,
			f.colorize("→", color.FgGreen),
			f.colorizeCount("sub-pattern matches", event.Data["match.count"].(int)))

	case JoinTreeBuilt:
		return fmt.Sprintf("%s Built join tree with %s leaves",
			latency, f.colorizeCount("", event.Data["leaf.count"].(int)))

	case BufferMerged:
		left := event.Data["left.size"].(int)
		right := event.Data["right.size"].(int)
		result := event.Data["result.size"].(int)
		return fmt.Sprintf("%s %s buffer(%d) × buffer(%d) → %d",
			latency, f.colorize("join", color.FgYellow), left, right, result)

	case WindowEvicted:
		return fmt.Sprintf("%s Evicted %s past window bound",
			latency, f.colorizeCount("matches", event.Data["evicted.count"].(int)))

	case PatternMatchEmit:
		return fmt.Sprintf("%s %s full pattern match %v",
			latency, f.colorize("===", color.FgGreen), event.Data["match.id"])

	case ErrorPatternParsing, ErrorDecode:
		return fmt.Sprintf("%s %s %v",
			latency, f.colorize("✗", color.FgRed), event.Data["error"])

	default:
		return fmt.Sprintf("%s %s %v", latency, event.Name, event.Data)
	}
}

func (f *OutputFormatter) formatLatency(d time.Duration) string {
	if d < time.Millisecond {
		s := fmt.Sprintf("[%dµs]", d.Microseconds())
		if !f.useColor {
			return s
		}
		return color.GreenString(s)
	}

	ms := float64(d.Microseconds()) / 1000.0
	s := fmt.Sprintf("[%.1fms]", ms)
	if !f.useColor {
		return s
	}
	switch {
	case ms < 50:
		return color.GreenString(s)
	case ms < 200:
		return color.YellowString(s)
	default:
		return color.RedString(s)
	}
}

func (f *OutputFormatter) colorizeCount(label string, count int) string {
	text := fmt.Sprintf("%d %s", count, label)
	if !f.useColor {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(color.CyanString(text))
}

func (f *OutputFormatter) colorize(text string, attrs ...color.Attribute) string {
	if !f.useColor {
		return text
	}
	return color.New(attrs...).Sprint(text)
}

// ConsoleHandler creates a handler that prints formatted events to stderr.
func ConsoleHandler() Handler {
	formatter := NewOutputFormatter(os.Stderr)
	return formatter.Handle
}

// isTerminal reports whether the file descriptor looks like stdout/stderr.
// A simplified check; a full implementation would use golang.org/x/term.
func isTerminal(fd uintptr) bool {
	return fd == uintptr(1) || fd == uintptr(2)
}
