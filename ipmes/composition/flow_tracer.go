package composition

// ReachSet maps an entity u that can reach some fixed entity v along a
// time-monotone path to the latest timestamp at which that reachability was
// established.
type ReachSet map[uint64]uint64

// Arc is one edge of a flow batch: src can reach dst directly.
type Arc struct {
	Src uint64
	Dst uint64
}

// FlowTracer maintains a ReachSet for every entity seen within the current
// window and answers "what newly became reachable" as batches of
// same-timestamp arcs arrive.
type FlowTracer struct {
	window uint64
	sets   map[uint64]ReachSet
}

// NewFlowTracer creates a tracer with the given window size (same units as
// input timestamps, milliseconds).
func NewFlowTracer(window uint64) *FlowTracer {
	return &FlowTracer{window: window, sets: make(map[uint64]ReachSet)}
}

// AddBatch ingests every arc in a single time-batch (all arcs share
// timestamp t). Because the batch may itself contain cycles, strongly
// connected components are contracted first so reachability through a cycle
// is resolved in one pass; the condensation is then propagated in
// topological order. matchesSubject reports whether an entity satisfies the
// flow pattern event's subject signature, making it a valid flow source.
// Returns, for each destination entity that changed, the set of sources
// that became newly reachable to it.
func (t *FlowTracer) AddBatch(arcs []Arc, ts uint64, matchesSubject func(entity uint64) bool) map[uint64][]uint64 {
	if len(arcs) == 0 {
		return nil
	}

	nodes, adj := batchGraph(arcs)
	sccOf, members := tarjanSCC(nodes, adj)

	bound := windowBound(ts, t.window)

	merged := make(map[int]ReachSet, len(members))
	for scc, nodeList := range members {
		rs := make(ReachSet)
		for _, v := range nodeList {
			for u, when := range t.sets[v] {
				if when >= bound && (rs[u] < when || !containsKey(rs, u)) {
					rs[u] = when
				}
			}
			if matchesSubject(v) {
				rs[v] = ts
			}
		}
		merged[scc] = rs
	}

	condEdges := condensationEdges(arcs, sccOf)
	order := topoSort(len(members), condEdges)

	for _, scc := range order {
		for _, nextScc := range condEdges[scc] {
			unionInto(merged[nextScc], merged[scc], bound)
		}
	}

	changed := make(map[uint64][]uint64)
	for scc, nodeList := range members {
		final := merged[scc]
		for _, v := range nodeList {
			old := t.sets[v]
			var newly []uint64
			for u, when := range final {
				if when < bound {
					continue
				}
				if prev, ok := old[u]; !ok || prev < when {
					newly = append(newly, u)
				}
			}
			t.sets[v] = cloneReachSet(final, bound)
			if len(newly) > 0 {
				changed[v] = newly
			}
		}
	}

	return changed
}

// Prune drops entries older than ts-window from every tracked ReachSet,
// removing empty sets entirely.
func (t *FlowTracer) Prune(ts uint64) {
	bound := windowBound(ts, t.window)
	for v, rs := range t.sets {
		for u, when := range rs {
			if when < bound {
				delete(rs, u)
			}
		}
		if len(rs) == 0 {
			delete(t.sets, v)
		}
	}
}

// Reachable returns the live ReachSet for v (copy-on-read not performed;
// callers must not mutate the result).
func (t *FlowTracer) Reachable(v uint64) ReachSet {
	return t.sets[v]
}

// GetUpdateTime returns the latest timestamp at which src was recorded as
// able to reach dst (the ReachSet entry AddBatch keeps for that pair), and
// whether such an entry exists at all.
func (t *FlowTracer) GetUpdateTime(dst, src uint64) (uint64, bool) {
	rs, ok := t.sets[dst]
	if !ok {
		return 0, false
	}
	when, ok := rs[src]
	return when, ok
}

func windowBound(ts, window uint64) uint64 {
	if ts < window {
		return 0
	}
	return ts - window
}

func containsKey(m ReachSet, k uint64) bool {
	_, ok := m[k]
	return ok
}

func cloneReachSet(rs ReachSet, bound uint64) ReachSet {
	out := make(ReachSet, len(rs))
	for k, v := range rs {
		if v >= bound {
			out[k] = v
		}
	}
	return out
}

func unionInto(dst, src ReachSet, bound uint64) {
	for k, v := range src {
		if v < bound {
			continue
		}
		if cur, ok := dst[k]; !ok || cur < v {
			dst[k] = v
		}
	}
}

func batchGraph(arcs []Arc) ([]uint64, map[uint64][]uint64) {
	seen := make(map[uint64]bool)
	var nodes []uint64
	adj := make(map[uint64][]uint64)
	add := func(n uint64) {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	for _, a := range arcs {
		add(a.Src)
		add(a.Dst)
		adj[a.Src] = append(adj[a.Src], a.Dst)
	}
	return nodes, adj
}

func condensationEdges(arcs []Arc, sccOf map[uint64]int) map[int][]int {
	seen := make(map[[2]int]bool)
	edges := make(map[int][]int)
	for _, a := range arcs {
		su, sv := sccOf[a.Src], sccOf[a.Dst]
		if su == sv {
			continue
		}
		key := [2]int{su, sv}
		if seen[key] {
			continue
		}
		seen[key] = true
		edges[su] = append(edges[su], sv)
	}
	return edges
}

// topoSort returns a topological order (sources first) of SCC ids 0..n-1
// given condensation edges. The condensation is always acyclic.
func topoSort(n int, edges map[int][]int) []int {
	indegree := make([]int, n)
	for _, dsts := range edges {
		for _, d := range dsts {
			indegree[d]++
		}
	}

	var queue []int
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range edges[u] {
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}
	return order
}
