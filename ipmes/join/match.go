// Package join implements IPMES's join layer: a balanced binary tree of
// sub-pattern buffers that progressively merges sub-pattern matches into
// full pattern matches, enforcing temporal order, shared-entity,
// event-uniqueness and entity-uniqueness constraints with sliding-window
// expiry.
package join

import (
	"sort"

	"github.com/ipmes-go/provenance-matcher/ipmes/composition"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// PartialMatch is a sub-pattern or full-pattern match as it climbs the join
// tree: a sparse map from whole-pattern event id to its matched evidence,
// the sorted input event ids consumed so far (for global event uniqueness),
// the sorted input-entity/pattern-entity bindings (for global entity
// uniqueness), and the match's time span.
type PartialMatch struct {
	MatchEvents  map[int]*stream.MatchEvent
	EventIDs     []uint64
	MatchEntities []composition.EntityBinding
	EarliestTime uint64
	LatestTime   uint64
}

// fromSubPatternMatch lifts a composition-layer result into the join
// layer's representation.
func fromSubPatternMatch(m *composition.MatchInstance) *PartialMatch {
	events := make(map[int]*stream.MatchEvent, len(m.MatchEvents))
	latest := m.StartTime
	for i := range m.MatchEvents {
		ev := &m.MatchEvents[i]
		events[ev.PatternEventID] = ev
		if ev.EndTime > latest {
			latest = ev.EndTime
		}
	}
	return &PartialMatch{
		MatchEvents:   events,
		EventIDs:      append([]uint64(nil), m.EventIDs...),
		MatchEntities: append([]composition.EntityBinding(nil), m.MatchEntities...),
		EarliestTime:  m.StartTime,
		LatestTime:    latest,
	}
}

// ToPatternMatch converts a fully joined root-level PartialMatch into the
// deterministic, content-addressed PatternMatch handed to the external
// caller. patternID seeds MatchID derivation so multiple concurrently
// running patterns never collide on id.
func (m *PartialMatch) ToPatternMatch(patternID int) stream.PatternMatch {
	events := make([]stream.MatchEvent, 0, len(m.MatchEvents))
	for _, ev := range m.MatchEvents {
		events = append(events, *ev)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].PatternEventID < events[j].PatternEventID })

	return stream.PatternMatch{
		ID:            stream.NewMatchID(patternID, m.EventIDs),
		Events:        events,
		EarliestTime:  m.EarliestTime,
		LatestTime:    m.LatestTime,
	}
}

// mergeMatches attempts to merge two sibling PartialMatches per the join
// engine's rules: disjoint event ids, compatible entity bindings, and every
// precomputed order constraint satisfied. Returns (nil, false) on any
// rejection — a failed merge is a silent skip, never an error.
func mergeMatches(rel *Relation, a, b *PartialMatch) (*PartialMatch, bool) {
	eventIDs, ok := mergeSortedUnique(a.EventIDs, b.EventIDs)
	if !ok {
		return nil, false
	}

	events := mergeEventMaps(a.MatchEvents, b.MatchEvents)

	if !rel.checkOrder(events) {
		return nil, false
	}

	entities, ok := mergeEntityBindings(a.MatchEntities, b.MatchEntities)
	if !ok {
		return nil, false
	}

	earliest := a.EarliestTime
	if b.EarliestTime < earliest {
		earliest = b.EarliestTime
	}
	latest := a.LatestTime
	if b.LatestTime > latest {
		latest = b.LatestTime
	}

	return &PartialMatch{
		MatchEvents:   events,
		EventIDs:      eventIDs,
		MatchEntities: entities,
		EarliestTime:  earliest,
		LatestTime:    latest,
	}, true
}

func mergeEventMaps(a, b map[int]*stream.MatchEvent) map[int]*stream.MatchEvent {
	merged := make(map[int]*stream.MatchEvent, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v // disjoint by sub-pattern construction; no conflict possible
	}
	return merged
}

// mergeSortedUnique merges two sorted uint64 slices, rejecting the merge if
// they share any element (two sub-pattern matches cannot consume the same
// input event, even though sub-patterns are event-disjoint by construction,
// since one input event can independently satisfy two distinct pattern
// events).
func mergeSortedUnique(a, b []uint64) ([]uint64, bool) {
	out := make([]uint64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			return nil, false
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out, true
}

// mergeEntityBindings merges two sorted (by InputEntityID) EntityBinding
// lists, requiring that entries naming the same input entity id agree on
// pattern entity (no input entity plays two pattern roles) and that entries
// naming the same pattern entity id agree on input entity (shared-entity
// satisfaction).
func mergeEntityBindings(a, b []composition.EntityBinding) ([]composition.EntityBinding, bool) {
	usedPattern := make(map[int]uint64)
	out := make([]composition.EntityBinding, 0, len(a)+len(b))

	take := func(eb composition.EntityBinding) bool {
		if input, ok := usedPattern[eb.PatternEntityID]; ok && input != eb.InputEntityID {
			return false
		}
		usedPattern[eb.PatternEntityID] = eb.InputEntityID
		out = append(out, eb)
		return true
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].InputEntityID < b[j].InputEntityID:
			if !take(a[i]) {
				return nil, false
			}
			i++
		case a[i].InputEntityID > b[j].InputEntityID:
			if !take(b[j]) {
				return nil, false
			}
			j++
		default:
			if a[i].PatternEntityID != b[j].PatternEntityID {
				return nil, false
			}
			if !take(a[i]) {
				return nil, false
			}
			i++
			j++
		}
	}
	for ; i < len(a); i++ {
		if !take(a[i]) {
			return nil, false
		}
	}
	for ; j < len(b); j++ {
		if !take(b[j]) {
			return nil, false
		}
	}

	return out, true
}
