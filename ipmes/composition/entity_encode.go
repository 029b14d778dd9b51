package composition

import "github.com/ipmes-go/provenance-matcher/ipmes/stream"

// EntityEnc packs a position within a sub-pattern's match_events prefix and
// a subject/object role bit into one integer: (eventIndex<<1)|role, with
// role 0 meaning subject and role 1 meaning object. It tells the state
// machine how to extract an already-bound input entity from the events
// matched so far, without keeping a separate side-table.
type EntityEnc uint32

// SubjectOf packs the subject role of the event at eventIndex.
func SubjectOf(eventIndex int) EntityEnc {
	return EntityEnc(eventIndex << 1)
}

// ObjectOf packs the object role of the event at eventIndex.
func ObjectOf(eventIndex int) EntityEnc {
	return EntityEnc(eventIndex<<1 | 1)
}

// EventIndex returns the packed event position.
func (e EntityEnc) EventIndex() int {
	return int(e >> 1)
}

// IsObject reports whether the packed role is object (true) or subject (false).
func (e EntityEnc) IsObject() bool {
	return e&1 == 1
}

// Extract resolves the packed reference against a sub-pattern's matched
// event prefix, returning the bound runtime entity id.
func (e EntityEnc) Extract(matchEvents []stream.MatchEvent) uint64 {
	me := &matchEvents[e.EventIndex()]
	if e.IsObject() {
		return me.ObjectID()
	}
	return me.SubjectID()
}
