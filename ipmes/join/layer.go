package join

import (
	"container/heap"

	"github.com/ipmes-go/provenance-matcher/ipmes/annotations"
	"github.com/ipmes-go/provenance-matcher/ipmes/composition"
	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// Layer is the join-layer runtime for one compiled pattern: the
// sub-pattern buffer tree and the window size governing eviction.
type Layer struct {
	patternID  int
	tree       *Tree
	windowSize uint64
	collector  *annotations.Collector
}

// NewLayer builds the join tree for a decomposed pattern. Leaf buffer ids
// equal their sub-pattern id, per BuildTree/Decompose's shared indexing.
func NewLayer(patternID int, p *pattern.Pattern, subPatterns []pattern.SubPattern, windowSize uint64, collector *annotations.Collector) *Layer {
	tree := BuildTree(p, subPatterns)
	if collector != nil {
		collector.Add(annotations.Event{Name: annotations.JoinTreeBuilt, Data: map[string]interface{}{
			"leaf.count": len(subPatterns),
			"buffers":    len(tree.Buffers),
		}})
	}
	return &Layer{patternID: patternID, tree: tree, windowSize: windowSize, collector: collector}
}

// Push feeds one newly completed sub-pattern match into its leaf buffer and
// climbs the tree, merging with the sibling buffer at each level, until
// either a level produces no new matches or the root is reached. Every
// PatternMatch produced at the root is returned.
func (l *Layer) Push(m composition.SubPatternMatch) []stream.PatternMatch {
	leaf := l.tree.Buffers[m.SubPatternID]
	partial := fromSubPatternMatch(m.Instance)
	heap.Push(&leaf.newMatchBuffer, partial)

	currentTime := partial.LatestTime
	bufferID := m.SubPatternID

	for {
		buf := l.tree.Buffers[bufferID]
		if bufferID == l.tree.RootID {
			return l.drainRoot(buf)
		}

		sibling := l.tree.Buffers[buf.SiblingID]
		if dropped := sibling.evictExpired(currentTime, l.windowSize); dropped > 0 && l.collector != nil {
			l.collector.Add(annotations.Event{Name: annotations.WindowEvicted, Data: map[string]interface{}{
				"evicted.count": dropped,
				"buffer":        sibling.ID,
			}})
		}

		leftSize, rightSize := buf.newMatchBuffer.Len(), sibling.buffer.Len()
		joined := l.joinWithSibling(buf, sibling)

		parent := l.tree.Buffers[buf.ParentID]
		for _, pm := range joined {
			heap.Push(&parent.newMatchBuffer, pm)
		}

		for buf.newMatchBuffer.Len() > 0 {
			heap.Push(&buf.buffer, heap.Pop(&buf.newMatchBuffer))
		}

		if parent.newMatchBuffer.Len() == 0 {
			return nil
		}
		if l.collector != nil {
			l.collector.Add(annotations.Event{Name: annotations.BufferMerged, Data: map[string]interface{}{
				"left.size": leftSize, "right.size": rightSize,
				"result.size": parent.newMatchBuffer.Len(),
				"from":        buf.ID, "to": parent.ID,
			}})
		}

		bufferID = buf.ParentID
	}
}

// joinWithSibling attempts merge_matches for every pair drawn from buf's
// new_match_buffer and sibling's settled buffer.
func (l *Layer) joinWithSibling(buf, sibling *Buffer) []*PartialMatch {
	var out []*PartialMatch
	for _, a := range buf.newMatchBuffer {
		for _, b := range sibling.buffer {
			if merged, ok := mergeMatches(buf.Relation, a, b); ok {
				out = append(out, merged)
			}
		}
	}
	return out
}

// drainRoot moves every match in the root buffer (settled and newly
// arrived) into PatternMatches. Full-match deduplication is an external
// collaborator's responsibility, not this layer's.
func (l *Layer) drainRoot(root *Buffer) []stream.PatternMatch {
	var out []stream.PatternMatch
	for root.newMatchBuffer.Len() > 0 {
		pm := heap.Pop(&root.newMatchBuffer).(*PartialMatch)
		converted := pm.ToPatternMatch(l.patternID)
		out = append(out, converted)
		if l.collector != nil {
			l.collector.Add(annotations.Event{Name: annotations.PatternMatchEmit, Data: map[string]interface{}{
				"match.id": converted.ID.String(), "earliest": pm.EarliestTime, "latest": pm.LatestTime,
			}})
		}
	}
	for root.buffer.Len() > 0 {
		pm := heap.Pop(&root.buffer).(*PartialMatch)
		out = append(out, pm.ToPatternMatch(l.patternID))
	}
	return out
}
