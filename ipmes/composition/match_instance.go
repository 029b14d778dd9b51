package composition

import (
	"math"
	"sort"

	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// EntityBinding ties one already-bound input entity to the pattern entity it
// satisfies.
type EntityBinding struct {
	InputEntityID   uint64
	PatternEntityID int
}

// MatchInstance is a partial progress of one sub-pattern match.
type MatchInstance struct {
	StartTime     uint64
	MatchEvents   []stream.MatchEvent // ordered by sub-pattern event position
	MatchEntities []EntityBinding      // sorted by InputEntityID, each input entity at most once
	EventIDs      []uint64             // sorted, for whole-instance uniqueness
	StateID       int
}

// NewEmptyInstance creates the sentinel instance representing "no events
// matched yet", awaiting its first event at stateID.
func NewEmptyInstance(stateID int) *MatchInstance {
	return &MatchInstance{StartTime: math.MaxUint64, StateID: stateID}
}

// CloneExtend attempts to extend the instance with a newly matched event,
// honoring the shared-node constraint implied by filterKind: an already
// FilterSubject/FilterObject/FilterEndpoints-bound endpoint was already
// verified consistent by the storage lookup that found this instance, so
// only the remaining ("new") endpoint(s) need to be bound here.
func (m *MatchInstance) CloneExtend(ev stream.MatchEvent, subjectPatternID, objectPatternID int, kind FilterKind, nextState int) (*MatchInstance, bool) {
	mergedEventIDs, ok := mergeUnique(m.EventIDs, ev.EventIDs())
	if !ok {
		return nil, false
	}

	pairs := newEntityPairs(ev.SubjectID(), subjectPatternID, ev.ObjectID(), objectPatternID, kind)
	mergedEntities, ok := mergeEntities(m.MatchEntities, pairs)
	if !ok {
		return nil, false
	}

	return m.finish(ev, mergedEventIDs, mergedEntities, nextState), true
}

// CloneExtendFlow extends the instance with flow-tracer evidence. Flow
// arcs are not added to EventIDs: they are not required to be globally
// unique the way Default/Frequency input events are.
func (m *MatchInstance) CloneExtendFlow(ev stream.MatchEvent, subjectPatternID, objectPatternID int, kind FilterKind, nextState int) (*MatchInstance, bool) {
	pairs := newEntityPairs(ev.SubjectID(), subjectPatternID, ev.ObjectID(), objectPatternID, kind)
	mergedEntities, ok := mergeEntities(m.MatchEntities, pairs)
	if !ok {
		return nil, false
	}
	return m.finish(ev, m.EventIDs, mergedEntities, nextState), true
}

func (m *MatchInstance) finish(ev stream.MatchEvent, eventIDs []uint64, entities []EntityBinding, nextState int) *MatchInstance {
	events := make([]stream.MatchEvent, len(m.MatchEvents)+1)
	copy(events, m.MatchEvents)
	events[len(m.MatchEvents)] = ev

	start := m.StartTime
	if ev.StartTime < start {
		start = ev.StartTime
	}

	return &MatchInstance{
		StartTime:     start,
		MatchEvents:   events,
		MatchEntities: entities,
		EventIDs:      eventIDs,
		StateID:       nextState,
	}
}

type entityPair struct {
	inputID   uint64
	patternID int
}

// newEntityPairs returns the endpoint bindings that still need to be
// checked/added, given which endpoints filterKind already guaranteed bound.
func newEntityPairs(subjectInput uint64, subjectPattern int, objectInput uint64, objectPattern int, kind FilterKind) []entityPair {
	switch kind {
	case FilterSubject:
		return []entityPair{{objectInput, objectPattern}}
	case FilterObject:
		return []entityPair{{subjectInput, subjectPattern}}
	case FilterEndpoints:
		return nil
	default: // FilterMatchIdxOnly, FilterNone
		return []entityPair{{subjectInput, subjectPattern}, {objectInput, objectPattern}}
	}
}

// mergeUnique merges two sorted uint64 slices, failing if they share any element.
func mergeUnique(a, b []uint64) ([]uint64, bool) {
	if len(b) == 0 {
		return a, true
	}
	sorted := append([]uint64(nil), b...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := make([]uint64, 0, len(a)+len(sorted))
	i, j := 0, 0
	for i < len(a) && j < len(sorted) {
		switch {
		case a[i] < sorted[j]:
			out = append(out, a[i])
			i++
		case a[i] > sorted[j]:
			out = append(out, sorted[j])
			j++
		default:
			return nil, false // duplicate input event id
		}
	}
	out = append(out, a[i:]...)
	out = append(out, sorted[j:]...)
	return out, true
}

// mergeEntities merges new (input, pattern) bindings into the sorted
// binding list, rejecting the merge if any new binding conflicts with an
// existing one (same input entity bound to a different pattern entity, or
// the reverse) or with another binding among the new pairs themselves.
func mergeEntities(existing []EntityBinding, pairs []entityPair) ([]EntityBinding, bool) {
	if len(pairs) == 0 {
		return existing, true
	}

	merged := append([]EntityBinding(nil), existing...)
	for _, p := range pairs {
		for _, b := range merged {
			if b.InputEntityID == p.inputID && b.PatternEntityID != p.patternID {
				return nil, false
			}
			if b.PatternEntityID == p.patternID && b.InputEntityID != p.inputID {
				return nil, false
			}
		}
		merged = append(merged, EntityBinding{InputEntityID: p.inputID, PatternEntityID: p.patternID})
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].InputEntityID < merged[j].InputEntityID })
	return merged, true
}
