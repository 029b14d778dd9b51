// Package pattern parses behavioral pattern descriptions into the dense,
// index-based form the composition and join layers operate on: entities and
// events renumbered to small contiguous integers, a precomputed temporal
// order relation, and a decomposition into tree-shaped sub-patterns.
package pattern

// EventType distinguishes how a pattern event must be satisfied by input
// evidence.
type EventType int

const (
	// Default events are satisfied by a single matching input event.
	Default EventType = iota
	// Frequency events require Frequency distinct matching input events
	// sharing the same subject/object pair.
	Frequency
	// Flow events are satisfied by a time-monotone reachability path
	// between a subject-matching and an object-matching entity.
	Flow
)

func (t EventType) String() string {
	switch t {
	case Default:
		return "Default"
	case Frequency:
		return "Frequency"
	case Flow:
		return "Flow"
	default:
		return "Unknown"
	}
}

// Entity is a pattern-side entity: a dense id and the regular expression (or
// literal string, when UseRegex is false) its bound input entities must
// satisfy in events that reference it.
type Entity struct {
	ID        int
	Signature string
}

// Event is a pattern-side event after id renumbering.
type Event struct {
	ID        int
	Type      EventType
	Signature string
	SubjectID int
	ObjectID  int
	// Frequency holds the required repeat count for Frequency events. It is
	// always zero for Flow events; on Default events the declared value is
	// kept but unused.
	Frequency int
	// Parents holds the renumbered ids of this event's declared
	// predecessors in the order DAG. Empty means "root only".
	Parents []int
}

// Pattern is the fully parsed, validated, dense-indexed behavioral pattern.
type Pattern struct {
	UseRegex bool
	Entities []Entity
	Events   []Event
	Order    *OrderRelation
}

// EntityByID returns the entity with the given id, or false if it does not exist.
func (p *Pattern) EntityByID(id int) (Entity, bool) {
	for _, e := range p.Entities {
		if e.ID == id {
			return e, true
		}
	}
	return Entity{}, false
}
