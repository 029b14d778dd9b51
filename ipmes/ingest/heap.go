package ingest

import "github.com/ipmes-go/provenance-matcher/ipmes/stream"

// inputHeap is a container/heap min-heap of *stream.InputEvent ordered by
// timestamp, used to buffer read-ahead records until every record earlier
// than the current boundary can be flushed together as one batch.
type inputHeap []*stream.InputEvent

func (h inputHeap) Len() int            { return len(h) }
func (h inputHeap) Less(i, j int) bool  { return h[i].Less(h[j]) }
func (h inputHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *inputHeap) Push(x interface{}) { *h = append(*h, x.(*stream.InputEvent)) }
func (h *inputHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
