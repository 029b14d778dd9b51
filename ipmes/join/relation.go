package join

import (
	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// timeOrder records which side of an event pair must finish first.
type timeOrder int

const (
	firstToSecond timeOrder = iota
	secondToFirst
)

// orderConstraint is one precomputed cross-buffer order check: pattern
// event eventID1 (from the left child) and eventID2 (from the right child)
// have exactly one of dist(1,2)/dist(2,1) finite, recorded as order.
type orderConstraint struct {
	eventID1 int
	eventID2 int
	order    timeOrder
}

// Relation holds everything needed to validate a merge between two sibling
// sub-pattern buffers without re-walking the pattern: which pattern
// entities are shared between them, and every cross-buffer temporal order
// constraint implied by the order DAG.
type Relation struct {
	SharedEntities []bool // indexed by pattern entity id
	orders         []orderConstraint
}

// buildRelation precomputes the Relation between two sibling buffers, given
// the events each one covers.
func buildRelation(p *pattern.Pattern, leftEvents, rightEvents []int) *Relation {
	shared := make([]bool, len(p.Entities))
	nodesOf := func(eventID int) (int, int) {
		ev := p.Events[eventID]
		return ev.SubjectID, ev.ObjectID
	}
	leftNodes := make(map[int]bool)
	for _, e := range leftEvents {
		s, o := nodesOf(e)
		leftNodes[s] = true
		leftNodes[o] = true
	}
	for _, e := range rightEvents {
		s, o := nodesOf(e)
		if leftNodes[s] {
			shared[s] = true
		}
		if leftNodes[o] {
			shared[o] = true
		}
	}

	var orders []orderConstraint
	for _, e1 := range leftEvents {
		for _, e2 := range rightEvents {
			_, ok12 := p.Order.Distance(e1, e2)
			_, ok21 := p.Order.Distance(e2, e1)
			switch {
			case ok12 && !ok21:
				orders = append(orders, orderConstraint{e1, e2, firstToSecond})
			case ok21 && !ok12:
				orders = append(orders, orderConstraint{e1, e2, secondToFirst})
			}
		}
	}

	return &Relation{SharedEntities: shared, orders: orders}
}

// checkOrder verifies every precomputed order constraint against the
// concrete timestamps in a merged match_event_map, failing closed if either
// side of a constrained pair has no matched evidence (which should not
// happen once both sub-patterns covering the constrained events have
// contributed to the merge, but is checked defensively).
func (r *Relation) checkOrder(events map[int]*stream.MatchEvent) bool {
	for _, c := range r.orders {
		e1, ok1 := events[c.eventID1]
		e2, ok2 := events[c.eventID2]
		if !ok1 || !ok2 {
			return false
		}
		switch c.order {
		case firstToSecond:
			if e1.EndTime > e2.StartTime {
				return false
			}
		case secondToFirst:
			if e2.EndTime > e1.StartTime {
				return false
			}
		}
	}
	return true
}
