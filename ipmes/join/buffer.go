package join

import (
	"container/heap"
	"sort"

	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
)

// Buffer holds every PartialMatch produced for one node of the join tree
// (a leaf sub-pattern, or an internal node formed by merging two
// children), plus the precomputed Relation shared with its sibling.
type Buffer struct {
	ID       int
	SiblingID int
	ParentID int

	events []int // pattern event ids covered by this buffer's sub-tree

	Relation *Relation

	buffer        matchHeap // settled matches, ordered by EarliestTime ascending
	newMatchBuffer matchHeap // matches that arrived this round, not yet folded into buffer
}

// matchHeap is a container/heap min-heap of PartialMatches ordered by
// EarliestTime, used for windowed eviction (oldest first).
type matchHeap []*PartialMatch

func (h matchHeap) Len() int            { return len(h) }
func (h matchHeap) Less(i, j int) bool  { return h[i].EarliestTime < h[j].EarliestTime }
func (h matchHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *matchHeap) Push(x interface{}) { *h = append(*h, x.(*PartialMatch)) }
func (h *matchHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// evictExpired drops every match whose EarliestTime falls outside the
// window relative to currentTime, returning how many were dropped.
func (b *Buffer) evictExpired(currentTime, window uint64) int {
	bound := uint64(0)
	if currentTime > window {
		bound = currentTime - window
	}
	dropped := 0
	for b.buffer.Len() > 0 && b.buffer[0].EarliestTime < bound {
		heap.Pop(&b.buffer)
		dropped++
	}
	return dropped
}

// Tree is the full binary join tree: 2*len(subPatterns)-1 buffers, the
// first len(subPatterns) of which are leaves.
type Tree struct {
	Buffers []*Buffer
	RootID  int
}

// BuildTree constructs the join tree for a decomposed pattern: pair
// leaves (and the buffers produced by pairing them) greedily by minimizing
// resulting tree height, requiring every pair to share at least one pattern
// entity, using a priority queue keyed by (height_after_merge, i, j) and a
// union-find to track current roots and per-root height.
func BuildTree(p *pattern.Pattern, subPatterns []pattern.SubPattern) *Tree {
	n := len(subPatterns)
	total := 2*n - 1
	buffers := make([]*Buffer, n, total)

	for i, sp := range subPatterns {
		buffers[i] = &Buffer{ID: i, SiblingID: -1, ParentID: -1, events: append([]int(nil), sp.Events...)}
	}

	uf := newUnionFind(total)
	merged := make([]bool, total)

	sharedWith := sharedNodeLists(p, buffers[:n])

	pq := &pairHeap{}
	heap.Init(pq)
	for i, neighbors := range sharedWith {
		for _, j := range neighbors {
			if j <= i {
				continue
			}
			heap.Push(pq, pairItem{height: 2, i: i, j: j})
		}
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pairItem)
		if merged[item.i] || merged[item.j] {
			continue
		}
		merged[item.i] = true
		merged[item.j] = true

		newID := len(buffers)
		left, right := buffers[item.i], buffers[item.j]
		rel := buildRelation(p, left.events, right.events)
		left.Relation = rel
		right.Relation = rel
		left.SiblingID, right.SiblingID = right.ID, left.ID
		left.ParentID, right.ParentID = newID, newID

		parent := &Buffer{
			ID:        newID,
			SiblingID: -1,
			ParentID:  -1,
			events:    append(append([]int(nil), left.events...), right.events...),
		}
		buffers = append(buffers, parent)

		uf.merge(item.i, item.j, newID)

		visited := map[int]bool{newID: true}
		for k := 0; k < n; k++ {
			root := uf.find(k)
			if visited[root] {
				continue
			}
			for _, id := range sharedWith[k] {
				if uf.find(id) == newID {
					newHeight := item.height
					if uf.height[root] > newHeight {
						newHeight = uf.height[root]
					}
					newHeight++
					heap.Push(pq, pairItem{height: newHeight, i: newID, j: root})
					visited[root] = true
					break
				}
			}
		}
	}

	return &Tree{Buffers: buffers, RootID: len(buffers) - 1}
}

// sharedNodeLists returns, for each leaf sub-pattern, the ids of every
// other leaf it shares at least one pattern entity with.
func sharedNodeLists(p *pattern.Pattern, leaves []*Buffer) [][]int {
	entitySets := make([]map[int]bool, len(leaves))
	for i, b := range leaves {
		set := make(map[int]bool)
		for _, eid := range b.events {
			ev := p.Events[eid]
			set[ev.SubjectID] = true
			set[ev.ObjectID] = true
		}
		entitySets[i] = set
	}

	lists := make([][]int, len(leaves))
	for i := range leaves {
		for j := i + 1; j < len(leaves); j++ {
			if hasCommonEntity(entitySets[i], entitySets[j]) {
				lists[i] = append(lists[i], j)
				lists[j] = append(lists[j], i)
			}
		}
	}
	for i := range lists {
		sort.Ints(lists[i])
	}
	return lists
}

func hasCommonEntity(a, b map[int]bool) bool {
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}

// pairItem is one candidate merge in the priority queue: buffers i and j
// can be merged, resulting in a tree of the given height.
type pairItem struct {
	height int
	i, j   int
}

// pairHeap is a min-heap ordered by (height, i, j), matching Reverse(Min-heap)
// semantics from the reference implementation.
type pairHeap []pairItem

func (h pairHeap) Len() int { return len(h) }
func (h pairHeap) Less(i, j int) bool {
	if h[i].height != h[j].height {
		return h[i].height < h[j].height
	}
	if h[i].i != h[j].i {
		return h[i].i < h[j].i
	}
	return h[i].j < h[j].j
}
func (h pairHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pairHeap) Push(x interface{}) { *h = append(*h, x.(pairItem)) }
func (h *pairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// unionFind tracks, for the join tree's buffer ids, which root each
// belongs to and that root's current height, so a newly merged buffer can
// be compared for height against every other still-unmerged root.
type unionFind struct {
	parent []int
	height []int
}

func newUnionFind(n int) *unionFind {
	parent := make([]int, n)
	height := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, height: height}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// merge unions the roots of a and b under newRoot (the freshly created
// parent buffer id), recording newRoot's height as one more than the taller
// of its two children.
func (u *unionFind) merge(a, b, newRoot int) {
	ra, rb := u.find(a), u.find(b)
	h := u.height[ra]
	if u.height[rb] > h {
		h = u.height[rb]
	}
	u.parent[ra] = newRoot
	u.parent[rb] = newRoot
	u.parent[newRoot] = newRoot
	u.height[newRoot] = h + 1
}
