package pattern

import "fmt"

const infDistance = -1

// OrderRelation is the precomputed all-pairs shortest-path closure of the
// pattern's temporal order DAG. Node 0 is the synthetic root that dominates
// every event with no declared predecessor; event with id e occupies node
// e+1. A finite distance dist[u][v] means "the event at u must end no later
// than the event at v begins"; infDistance means no path leads from u to v
// (v precedes u, or the two are concurrent).
type OrderRelation struct {
	numNodes int
	dist     [][]int
}

// buildOrderRelation constructs the order relation from renumbered events
// and validates that the DAG is acyclic. Events index by their position in
// the slice, which must already equal their dense id.
func buildOrderRelation(events []Event) (*OrderRelation, error) {
	n := len(events) + 1 // +1 for the synthetic root at node 0

	adj := make([][]int, n)
	for _, e := range events {
		node := e.ID + 1
		if len(e.Parents) == 0 {
			adj[0] = append(adj[0], node)
			continue
		}
		for _, p := range e.Parents {
			if p < 0 || p >= len(events) {
				return nil, fmt.Errorf("%w: event %d has parent %d", ErrUndefinedEvent, e.ID, p)
			}
			adj[p+1] = append(adj[p+1], node)
		}
	}

	if err := checkAcyclic(n, adj); err != nil {
		return nil, err
	}

	dist := make([][]int, n)
	for i := range dist {
		dist[i] = make([]int, n)
		for j := range dist[i] {
			dist[i][j] = infDistance
		}
		dist[i][i] = 0
	}
	for u, neighbors := range adj {
		for _, v := range neighbors {
			dist[u][v] = 1
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if dist[i][k] == infDistance {
				continue
			}
			for j := 0; j < n; j++ {
				if dist[k][j] == infDistance {
					continue
				}
				nd := dist[i][k] + dist[k][j]
				if dist[i][j] == infDistance || nd < dist[i][j] {
					dist[i][j] = nd
				}
			}
		}
	}

	return &OrderRelation{numNodes: n, dist: dist}, nil
}

// checkAcyclic runs a three-color DFS over the order DAG, failing on any
// back edge (an edge into a node still on the current recursion stack).
func checkAcyclic(n int, adj [][]int) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make([]int, n)

	var visit func(u int) error
	visit = func(u int) error {
		color[u] = gray
		for _, v := range adj[u] {
			switch color[v] {
			case gray:
				return fmt.Errorf("%w: event %d", ErrDependencyCycle, v-1)
			case white:
				if err := visit(v); err != nil {
					return err
				}
			}
		}
		color[u] = black
		return nil
	}

	for u := 0; u < n; u++ {
		if color[u] == white {
			if err := visit(u); err != nil {
				return err
			}
		}
	}
	return nil
}

// Distance returns the shortest-path distance in events from pattern event a
// to pattern event b, and whether a path exists at all.
func (o *OrderRelation) Distance(a, b int) (int, bool) {
	d := o.dist[a+1][b+1]
	return d, d != infDistance
}

// Precedes reports whether event a must end no later than event b begins.
func (o *OrderRelation) Precedes(a, b int) bool {
	if a == b {
		return false
	}
	d, ok := o.Distance(a, b)
	return ok && d > 0
}

// Concurrent reports whether neither event precedes the other (no order
// constraint applies between them).
func (o *OrderRelation) Concurrent(a, b int) bool {
	return !o.Precedes(a, b) && !o.Precedes(b, a)
}
