// Package composition implements IPMES's composition layer: per-sub-pattern
// regex dispatch against incoming input events, Frequency aggregation, flow
// reachability tracking, and the windowed instance storage that ties a
// sub-pattern's partial matches together into completed SubPatternMatches.
package composition

import (
	"regexp"

	"github.com/ipmes-go/provenance-matcher/ipmes/annotations"
	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// SubPatternMatch is a completed match of one sub-pattern, handed to the
// join layer.
type SubPatternMatch struct {
	SubPatternID int
	Instance     *MatchInstance
}

// Layer is the composition layer runtime for one compiled pattern: the
// state table, windowed instance storage, flow reachability tracking, and
// the per-pattern-event joint regular expressions used to dispatch incoming
// input events.
type Layer struct {
	pattern     *pattern.Pattern
	subPatterns []pattern.SubPattern
	table       *StateTable
	storage     *InstanceStorage
	flowRunner  *FlowRunner
	window      uint64

	jointRegex map[int]*regexp.Regexp // pattern event id -> Default/Frequency joint regex
	eventRows  map[int][]int          // pattern event id -> state row indices (1 for Default, 2 for Frequency)

	collector *annotations.Collector
}

// NewLayer compiles a pattern into a composition-layer runtime. windowSize
// is the sliding window, in the same units as input timestamps
// (milliseconds). collector may be nil to disable instrumentation.
func NewLayer(p *pattern.Pattern, windowSize uint64, collector *annotations.Collector) (*Layer, error) {
	subPatterns := pattern.Decompose(p)
	table := BuildStateTable(p, subPatterns)

	flowRunner, err := NewFlowRunner(p, windowSize)
	if err != nil {
		return nil, err
	}

	jointRegex := make(map[int]*regexp.Regexp)
	for _, ev := range p.Events {
		if ev.Type == pattern.Flow {
			continue
		}
		subjectEntity, _ := p.EntityByID(ev.SubjectID)
		objectEntity, _ := p.EntityByID(ev.ObjectID)
		re, err := compileJointSignature(ev, subjectEntity, objectEntity, p.UseRegex)
		if err != nil {
			return nil, err
		}
		jointRegex[ev.ID] = re
	}

	eventRows := make(map[int][]int)
	for idx, row := range table.Rows {
		if row.Kind == StateOutput {
			continue
		}
		eventRows[row.PatternEventID] = append(eventRows[row.PatternEventID], idx)
	}

	l := &Layer{
		pattern:     p,
		subPatterns: subPatterns,
		table:       table,
		storage:     NewInstanceStorage(table, collector),
		flowRunner:  flowRunner,
		window:      windowSize,
		jointRegex:  jointRegex,
		eventRows:   eventRows,
		collector:   collector,
	}
	if collector != nil {
		collector.Add(annotations.Event{Name: annotations.StateTableBuilt, Data: map[string]interface{}{
			"row.count":    len(table.Rows),
			"sub_patterns": len(subPatterns),
		}})
	}
	return l, nil
}

// ProcessBatch advances every pattern event against one batch of
// same-timestamp input events and returns every SubPatternMatch that
// reached a terminal Output row as a result.
func (l *Layer) ProcessBatch(batch []*stream.InputEvent) []SubPatternMatch {
	if len(batch) == 0 {
		return nil
	}
	bound := windowBound(batch[0].Timestamp, l.window)

	extended := 0
	for _, ev := range batch {
		for patternEventID, re := range l.jointRegex {
			if !re.MatchString(ev.CombinedSignature()) {
				continue
			}
			extended += l.dispatchDefaultOrFrequency(patternEventID, ev, bound)
		}
	}

	for _, fm := range l.flowRunner.ProcessBatch(batch) {
		extended += l.dispatchFlow(fm, bound)
	}

	if l.collector != nil {
		l.collector.Add(annotations.Event{Name: annotations.BatchConsumed, Data: map[string]interface{}{
			"event.count": len(batch), "instance.count": extended,
		}})
	}

	var out []SubPatternMatch
	for _, sp := range l.subPatterns {
		for _, inst := range l.storage.DrainOutputs(sp.ID) {
			out = append(out, SubPatternMatch{SubPatternID: sp.ID, Instance: inst})
			if l.collector != nil {
				l.collector.Add(annotations.Event{Name: annotations.SubPatternMatchEmit, Data: map[string]interface{}{
					"match.count":    1,
					"sub_pattern_id": sp.ID,
					"event_count":    len(inst.MatchEvents),
				}})
			}
		}
	}
	return out
}

// dispatchDefaultOrFrequency advances the one or two state rows belonging
// to a Default or Frequency pattern event given one freshly matched input
// event.
func (l *Layer) dispatchDefaultOrFrequency(patternEventID int, ev *stream.InputEvent, bound uint64) int {
	rows := l.eventRows[patternEventID]
	patternEvent := l.pattern.Events[patternEventID]

	switch len(rows) {
	case 1:
		return l.advanceDefault(rows[0], patternEvent, ev, bound)
	case 2:
		return l.advanceFrequency(rows[0], rows[1], patternEvent, ev, bound)
	}
	return 0
}

func (l *Layer) advanceDefault(rowIdx int, patternEvent pattern.Event, ev *stream.InputEvent, bound uint64) int {
	row := l.table.Rows[rowIdx]
	matchEvent := stream.NewSingleMatchEvent(patternEvent.ID, ev)

	count := 0
	for _, candidate := range l.candidatesFor(row.Filter, ev.SubjectID, ev.ObjectID, bound) {
		extended, ok := candidate.CloneExtend(matchEvent, patternEvent.SubjectID, patternEvent.ObjectID, row.Filter.Kind, row.Next)
		if !ok {
			continue
		}
		l.storage.Store(extended, l.table)
		count++
	}
	return count
}

func (l *Layer) advanceFrequency(initRow, aggRow int, patternEvent pattern.Event, ev *stream.InputEvent, bound uint64) int {
	initFilter := l.table.Rows[initRow].Filter
	aggFilter := l.table.Rows[aggRow].Filter

	count := 0
	// Continue any aggregation already keyed to this exact endpoint pair.
	// Iterate over a copy, since DropFreq shifts the stored slice in place.
	pending := append([]*FreqInstance(nil), l.storage.QueryFreq(aggFilter.MatchIdx, ev.SubjectID, ev.ObjectID)...)
	for _, freq := range pending {
		if freq.Consumed[ev.ID] || freq.StartTime < bound {
			continue
		}
		freq.Consumed[ev.ID] = true
		freq.Events = append(freq.Events, ev)
		freq.Remaining--
		if ev.Timestamp > freq.LatestEnd {
			freq.LatestEnd = ev.Timestamp
		}
		if freq.Remaining > 0 {
			continue
		}

		l.storage.DropFreq(aggFilter.MatchIdx, ev.SubjectID, ev.ObjectID, freq)
		aggregated := stream.NewMultipleMatchEvent(patternEvent.ID, freq.Events, freq.StartTime, freq.LatestEnd)
		extended, ok := freq.Base.CloneExtend(aggregated, freq.SubjectPatternID, freq.ObjectPatternID, freq.FilterKind, freq.NextState)
		if !ok {
			continue
		}
		l.storage.Store(extended, l.table)
		count++
	}

	// Start a fresh aggregation from every candidate waiting at the init row.
	for _, candidate := range l.candidatesFor(initFilter, ev.SubjectID, ev.ObjectID, bound) {
		l.storage.StartFreq(aggFilter.MatchIdx, ev.SubjectID, ev.ObjectID, &FreqInstance{
			Base:             candidate,
			PatternEventID:   patternEvent.ID,
			SubjectPatternID: patternEvent.SubjectID,
			ObjectPatternID:  patternEvent.ObjectID,
			FilterKind:       initFilter.Kind,
			NextState:        l.table.Rows[aggRow].Next,
			Frequency:        patternEvent.Frequency,
			Remaining:        patternEvent.Frequency - 1,
			Consumed:         map[uint64]bool{ev.ID: true},
			Events:           []*stream.InputEvent{ev},
			StartTime:        ev.Timestamp,
			LatestEnd:        ev.Timestamp,
		})
	}
	return count
}

func (l *Layer) dispatchFlow(fm FlowMatch, bound uint64) int {
	rows := l.eventRows[fm.PatternEventID]
	if len(rows) != 1 {
		return 0
	}
	row := l.table.Rows[rows[0]]
	patternEvent := l.pattern.Events[fm.PatternEventID]
	matchEvent := stream.NewFlowMatchEvent(fm.PatternEventID, fm.Subject, fm.Object, fm.StartTime, fm.EndTime)

	count := 0
	for _, candidate := range l.candidatesFor(row.Filter, fm.Subject, fm.Object, bound) {
		extended, ok := candidate.CloneExtendFlow(matchEvent, patternEvent.SubjectID, patternEvent.ObjectID, row.Filter.Kind, row.Next)
		if !ok {
			continue
		}
		l.storage.Store(extended, l.table)
		count++
	}
	return count
}

// candidatesFor looks up the instances currently waiting at a state row,
// given the concrete subject/object of the event about to try to advance
// past it.
func (l *Layer) candidatesFor(filter FilterInfo, subjectID, objectID uint64, bound uint64) []*MatchInstance {
	switch filter.Kind {
	case FilterMatchIdxOnly:
		if inst := l.storage.QuerySimple(filter.MatchIdx); inst != nil {
			return []*MatchInstance{inst}
		}
		return nil
	case FilterSubject:
		return l.storage.QuerySubject(filter.MatchIdx, subjectID, bound)
	case FilterObject:
		return l.storage.QueryObject(filter.MatchIdx, objectID, bound)
	case FilterEndpoints:
		return l.storage.QueryEndpoints(filter.MatchIdx, subjectID, objectID, bound)
	default:
		return nil
	}
}

// compileJointSignature builds the single regular expression matched
// against an input event's NUL-joined CombinedSignature: the event's own
// signature, its subject entity's signature, and its object entity's
// signature, joined the same way.
func compileJointSignature(ev pattern.Event, subject, object pattern.Entity, useRegex bool) (*regexp.Regexp, error) {
	eventPart := signaturePart(ev.Signature, useRegex)
	subjectPart := signaturePart(subject.Signature, useRegex)
	objectPart := signaturePart(object.Signature, useRegex)
	return regexp.Compile("^" + eventPart + "\x00" + subjectPart + "\x00" + objectPart + "$")
}

func signaturePart(sig string, useRegex bool) string {
	if sig == "" {
		return ".*"
	}
	if useRegex {
		return sig
	}
	return regexp.QuoteMeta(sig)
}
