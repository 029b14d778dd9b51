package join

import (
	"container/heap"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
)

func twoLeafSharedEntityPattern(t *testing.T) (*pattern.Pattern, []pattern.SubPattern) {
	t.Helper()
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [
			{"ID": 0, "Signature": "a"},
			{"ID": 1, "Signature": "b"},
			{"ID": 2, "Signature": "c"}
		],
		"Events": [
			{"ID": 0, "Type": "Default", "SubjectID": 0, "ObjectID": 1, "Parents": []},
			{"ID": 1, "Type": "Default", "SubjectID": 1, "ObjectID": 2, "Parents": []}
		]
	}`))
	require.NoError(t, err)
	subs := pattern.Decompose(p)
	require.Len(t, subs, 2, "events share no Parents edge so each must decompose into its own leaf")
	return p, subs
}

func TestBuildTree_MergesTwoLeavesSharingAnEntity(t *testing.T) {
	p, subs := twoLeafSharedEntityPattern(t)
	tree := BuildTree(p, subs)

	require.Len(t, tree.Buffers, 3) // 2 leaves + 1 root
	assert.Equal(t, 2, tree.RootID)

	leftLeaf, rightLeaf := tree.Buffers[0], tree.Buffers[1]
	assert.Equal(t, rightLeaf.ID, leftLeaf.SiblingID)
	assert.Equal(t, leftLeaf.ID, rightLeaf.SiblingID)
	assert.Equal(t, tree.RootID, leftLeaf.ParentID)
	assert.Equal(t, tree.RootID, rightLeaf.ParentID)
	require.NotNil(t, leftLeaf.Relation)
	assert.Same(t, leftLeaf.Relation, rightLeaf.Relation)

	root := tree.Buffers[tree.RootID]
	assert.Equal(t, -1, root.ParentID)
	assert.ElementsMatch(t, []int{0, 1}, root.events)
}

func TestBuildTree_SingleSubPatternHasNoMerge(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [{"ID": 0, "Signature": "a"}, {"ID": 1, "Signature": "b"}],
		"Events": [{"ID": 0, "Type": "Default", "SubjectID": 0, "ObjectID": 1, "Parents": []}]
	}`))
	require.NoError(t, err)
	subs := pattern.Decompose(p)
	require.Len(t, subs, 1)

	tree := BuildTree(p, subs)
	require.Len(t, tree.Buffers, 1)
	assert.Equal(t, 0, tree.RootID)
	assert.Equal(t, -1, tree.Buffers[0].ParentID)
}

func TestBuffer_EvictExpiredDropsOldMatches(t *testing.T) {
	b := &Buffer{}
	heap.Push(&b.buffer, &PartialMatch{EarliestTime: 10})
	heap.Push(&b.buffer, &PartialMatch{EarliestTime: 500})

	b.evictExpired(600, 100) // bound = 500

	require.Equal(t, 1, b.buffer.Len())
	assert.Equal(t, uint64(500), b.buffer[0].EarliestTime)
}

func TestMatchHeap_OrdersByEarliestTimeAscending(t *testing.T) {
	h := &matchHeap{}
	heap.Push(h, &PartialMatch{EarliestTime: 30})
	heap.Push(h, &PartialMatch{EarliestTime: 10})
	heap.Push(h, &PartialMatch{EarliestTime: 20})

	var order []uint64
	for h.Len() > 0 {
		order = append(order, heap.Pop(h).(*PartialMatch).EarliestTime)
	}
	assert.Equal(t, []uint64{10, 20, 30}, order)
}
