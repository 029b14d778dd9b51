// Command ipmes-match reads a behavioral pattern and a provenance event
// stream, and prints every occurrence of the pattern found within the
// stream's sliding time window.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ipmes-go/provenance-matcher/ipmes/annotations"
	"github.com/ipmes-go/provenance-matcher/ipmes/composition"
	"github.com/ipmes-go/provenance-matcher/ipmes/ingest"
	"github.com/ipmes-go/provenance-matcher/ipmes/join"
	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/report"
)

func main() {
	var windowSeconds float64
	var printInstances bool
	var verbose bool

	flag.Float64Var(&windowSeconds, "window_size", 1800, "sliding window size, in seconds")
	flag.BoolVar(&printInstances, "print_instances", false, "print the matched events contributing to each pattern match")
	flag.BoolVar(&verbose, "verbose", false, "print pipeline annotations to stderr as matching proceeds")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] <pattern-file> <input-file>\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Streams <input-file> against the behavioral pattern in <pattern-file>,\n")
		fmt.Fprintf(os.Stderr, "reporting every occurrence found within the sliding window.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	patternPath, inputPath := flag.Arg(0), flag.Arg(1)

	runID := uuid.New()

	var handler annotations.Handler
	if verbose {
		formatter := annotations.NewOutputFormatter(os.Stderr)
		handler = formatter.Handle
	}
	collector := annotations.NewCollector(handler)

	if err := run(patternPath, inputPath, windowSeconds, printInstances, collector, runID); err != nil {
		fmt.Fprintf(os.Stderr, "ipmes-match: run %s: %v\n", runID, err)
		os.Exit(1)
	}
}

func run(patternPath, inputPath string, windowSeconds float64, printInstances bool, collector *annotations.Collector, runID uuid.UUID) error {
	p, subPatterns, err := loadPattern(patternPath)
	if err != nil {
		collector.Add(annotations.Event{Name: annotations.ErrorPatternParsing, Data: map[string]interface{}{
			"path": patternPath, "error": err.Error(),
		}})
		return fmt.Errorf("loading pattern: %w", err)
	}
	collector.Add(annotations.Event{Name: annotations.PatternParsed, Data: map[string]interface{}{
		"entity.count": len(p.Entities), "event.count": len(p.Events), "run.id": runID.String(),
	}})
	collector.Add(annotations.Event{Name: annotations.PatternDecomposed, Data: map[string]interface{}{
		"subpattern.count": len(subPatterns),
	}})

	windowSize := uint64(windowSeconds * 1000)

	compositionLayer, err := composition.NewLayer(p, windowSize, collector)
	if err != nil {
		return fmt.Errorf("building composition layer: %w", err)
	}
	joinLayer := join.NewLayer(0, p, subPatterns, windowSize, collector)

	input, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input: %w", err)
	}
	defer input.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	formatter := report.NewFormatter()

	reader := ingest.NewReader(input, collector)
	matchIndex := 0
	for {
		batch, ok := reader.Next()
		if !ok {
			break
		}
		for _, subMatch := range compositionLayer.ProcessBatch(batch) {
			for _, m := range joinLayer.Push(subMatch) {
				if printInstances {
					fmt.Fprint(out, formatter.FormatMatch(matchIndex, m))
					fmt.Fprintln(out)
				} else {
					fmt.Fprintf(out, "match #%d  id=%s  span=[%d, %d]\n", matchIndex, m.ID.String(), m.EarliestTime, m.LatestTime)
				}
				matchIndex++
			}
		}
	}

	if matchIndex == 0 {
		fmt.Fprintln(out, "no matches")
	}
	return nil
}

func loadPattern(path string) (*pattern.Pattern, []pattern.SubPattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	var p *pattern.Pattern
	if strings.EqualFold(filepath.Ext(path), ".yaml") || strings.EqualFold(filepath.Ext(path), ".yml") {
		p, err = pattern.ParseYAML(data)
	} else {
		p, err = pattern.Parse(data)
	}
	if err != nil {
		return nil, nil, err
	}

	return p, pattern.Decompose(p), nil
}
