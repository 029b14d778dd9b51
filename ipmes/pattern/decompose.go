package pattern

import "sort"

// SubPattern is a connected, tree-shaped subset of pattern events: every
// event after the first in Events shares at least one entity (subject or
// object) with some earlier event in Events.
// Decomposition partitions all pattern events across the returned
// sub-patterns.
type SubPattern struct {
	ID     int
	Events []int // pattern event ids, in decomposition order
}

// Decompose partitions p's events into sub-patterns using the greedy
// algorithm: enumerate every connected (by declared order-DAG edge) event
// sequence that also stays shared-endpoint-connected, sort candidates by
// size descending (ties broken by generation order), then greedily claim
// disjoint candidates until every event belongs to exactly one sub-pattern.
func Decompose(p *Pattern) []SubPattern {
	adjacency := buildAdjacency(p.Events)
	candidates := generateSubPatterns(p.Events, adjacency)
	return selectSubPatterns(candidates, len(p.Events))
}

// buildAdjacency returns the forward (parent -> child) adjacency list
// induced by the pattern's declared Parents edges: adj[e] lists the events
// that declare e as a parent. Traversal never follows an edge from child
// back to parent or across siblings.
func buildAdjacency(events []Event) [][]int {
	adj := make([][]int, len(events))
	for _, e := range events {
		for _, parent := range e.Parents {
			adj[parent] = append(adj[parent], e.ID)
		}
	}
	for i := range adj {
		sort.Ints(adj[i])
	}
	return adj
}

// hasSharedNode reports whether candidateEvent shares its subject or object
// with any event already present in seq.
func hasSharedNode(events []Event, seq []int, candidateEvent int) bool {
	cand := events[candidateEvent]
	for _, id := range seq {
		e := events[id]
		if e.SubjectID == cand.SubjectID || e.SubjectID == cand.ObjectID ||
			e.ObjectID == cand.SubjectID || e.ObjectID == cand.ObjectID {
			return true
		}
	}
	return false
}

// generateSubPatterns enumerates every shared-endpoint-connected event
// sequence reachable by DFS strictly along the order DAG (parent to child,
// never child to parent or across siblings), rooted at each event in turn.
// Every prefix encountered is itself recorded as a candidate, since a
// smaller candidate may be the only one still available once larger ones
// have claimed its events.
func generateSubPatterns(events []Event, adjacency [][]int) [][]int {
	var candidates [][]int
	visited := make([]bool, len(events))

	var dfs func(seq []int)
	dfs = func(seq []int) {
		rec := append([]int(nil), seq...)
		candidates = append(candidates, rec)

		cur := seq[len(seq)-1]
		for _, next := range adjacency[cur] {
			if visited[next] {
				continue
			}
			if !hasSharedNode(events, seq, next) {
				continue
			}
			visited[next] = true
			dfs(append(seq, next))
			visited[next] = false
		}
	}

	for _, e := range events {
		visited[e.ID] = true
		dfs([]int{e.ID})
		visited[e.ID] = false
	}

	return candidates
}

// selectSubPatterns greedily picks the largest still-unclaimed candidates,
// assigning dense sub-pattern ids in pick order, until every event is
// covered.
func selectSubPatterns(candidates [][]int, numEvents int) []SubPattern {
	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i]) > len(candidates[j])
	})

	claimed := make([]bool, numEvents)
	var result []SubPattern

	for _, cand := range candidates {
		if containsClaimedEvent(claimed, cand) {
			continue
		}
		for _, id := range cand {
			claimed[id] = true
		}
		result = append(result, SubPattern{ID: len(result), Events: cand})
	}

	return result
}

func containsClaimedEvent(claimed []bool, cand []int) bool {
	for _, id := range cand {
		if claimed[id] {
			return true
		}
	}
	return false
}
