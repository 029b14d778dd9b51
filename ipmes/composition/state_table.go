package composition

import "github.com/ipmes-go/provenance-matcher/ipmes/pattern"

// FilterKind selects which InstanceStorage map a state row's candidates are
// drawn from.
type FilterKind int

const (
	// FilterNone rows need no storage lookup (terminal Output rows).
	FilterNone FilterKind = iota
	// FilterMatchIdxOnly rows draw from simple_instances: neither endpoint
	// is bound yet.
	FilterMatchIdxOnly
	// FilterSubject rows draw from subject_instances: only the subject is
	// already bound.
	FilterSubject
	// FilterObject rows draw from object_instances: only the object is
	// already bound.
	FilterObject
	// FilterEndpoints rows draw from endpoints_instances (or, for AggFreq
	// rows, freq_instances): both endpoints are already bound.
	FilterEndpoints
)

// FilterInfo tells the composition runner which InstanceStorage bucket to
// query for a state row's candidates, and how to derive the bucket's
// composite key from a matching input event.
type FilterInfo struct {
	Kind       FilterKind
	MatchIdx   int
	SubjectEnc EntityEnc
	ObjectEnc  EntityEnc
}

// StateKind distinguishes the behavior of a state row.
type StateKind int

const (
	StateDefault StateKind = iota
	StateInitFreq
	StateAggFreq
	StateOutput
)

// StateRow is one row of a sub-pattern's linear state machine.
type StateRow struct {
	Kind           StateKind
	PatternEventID int // the pattern event this row advances toward, meaningless for StateOutput
	SubPatternID   int
	Frequency      int // required repeat count, set only on StateAggFreq rows
	Filter         FilterInfo
	Next           int // index of the successor row in StateTable.Rows
}

// StateTable is the flattened state machine for every sub-pattern: all rows
// across all sub-patterns share one dense index space so FilterInfo.MatchIdx
// values (and StateRow.Next pointers) are globally unique.
type StateTable struct {
	Rows []StateRow
	// FirstRow maps a sub-pattern id to the row index of its first state,
	// i.e. the state a freshly allocated "empty instance" sentinel starts
	// in before it has matched anything.
	FirstRow map[int]int
}

// BuildStateTable compiles every sub-pattern's linearized event sequence
// into StateTable rows, per the shared-node derivation in the pattern
// preparation design.
func BuildStateTable(p *pattern.Pattern, subPatterns []pattern.SubPattern) *StateTable {
	table := &StateTable{FirstRow: make(map[int]int, len(subPatterns))}
	matchIdx := 0

	for _, sp := range subPatterns {
		table.FirstRow[sp.ID] = len(table.Rows)
		entityBinding := make(map[int]EntityEnc) // pattern entity id -> most recent binding encode

		for k, eventID := range sp.Events {
			ev := p.Events[eventID]
			filter := deriveFilter(entityBinding, ev, matchIdx)
			matchIdx++

			switch ev.Type {
			case pattern.Frequency:
				initRow := len(table.Rows)
				table.Rows = append(table.Rows, StateRow{
					Kind:           StateInitFreq,
					PatternEventID: eventID,
					SubPatternID:   sp.ID,
					Filter:         filter,
				})
				aggFilter := FilterInfo{
					Kind:       FilterEndpoints,
					MatchIdx:   filter.MatchIdx,
					SubjectEnc: SubjectOf(k),
					ObjectEnc:  ObjectOf(k),
				}
				table.Rows = append(table.Rows, StateRow{
					Kind:           StateAggFreq,
					PatternEventID: eventID,
					SubPatternID:   sp.ID,
					Frequency:      ev.Frequency,
					Filter:         aggFilter,
				})
				table.Rows[initRow].Next = initRow + 1
			default: // Default, Flow
				table.Rows = append(table.Rows, StateRow{
					Kind:           StateDefault,
					PatternEventID: eventID,
					SubPatternID:   sp.ID,
					Filter:         filter,
				})
			}

			entityBinding[ev.SubjectID] = SubjectOf(k)
			entityBinding[ev.ObjectID] = ObjectOf(k)

			// Wire Next for the row(s) just appended to the row about to be
			// appended for the next position (or the Output row below).
			last := len(table.Rows) - 1
			table.Rows[last].Next = last + 1
		}

		table.Rows = append(table.Rows, StateRow{
			Kind:         StateOutput,
			SubPatternID: sp.ID,
			Filter:       FilterInfo{Kind: FilterNone},
		})
	}

	return table
}

// deriveFilter computes the FilterInfo for a pattern event given which
// entities are already bound by earlier events in the same sub-pattern.
func deriveFilter(entityBinding map[int]EntityEnc, ev pattern.Event, matchIdx int) FilterInfo {
	subjectEnc, subjectBound := entityBinding[ev.SubjectID]
	objectEnc, objectBound := entityBinding[ev.ObjectID]

	switch {
	case subjectBound && objectBound:
		return FilterInfo{Kind: FilterEndpoints, MatchIdx: matchIdx, SubjectEnc: subjectEnc, ObjectEnc: objectEnc}
	case subjectBound:
		return FilterInfo{Kind: FilterSubject, MatchIdx: matchIdx, SubjectEnc: subjectEnc}
	case objectBound:
		return FilterInfo{Kind: FilterObject, MatchIdx: matchIdx, ObjectEnc: objectEnc}
	default:
		return FilterInfo{Kind: FilterMatchIdxOnly, MatchIdx: matchIdx}
	}
}
