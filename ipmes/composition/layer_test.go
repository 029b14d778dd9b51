package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

func defaultChainPattern() *pattern.Pattern {
	return &pattern.Pattern{
		UseRegex: true,
		Entities: []pattern.Entity{
			{ID: 0, Signature: ".*"},
			{ID: 1, Signature: ".*"},
			{ID: 2, Signature: ".*"},
		},
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Default, Signature: "open", SubjectID: 0, ObjectID: 1},
			{ID: 1, Type: pattern.Default, Signature: "write", SubjectID: 1, ObjectID: 2, Parents: []int{0}},
		},
	}
}

func batchOf(events ...stream.InputEvent) []*stream.InputEvent {
	out := make([]*stream.InputEvent, len(events))
	for i := range events {
		out[i] = &events[i]
	}
	return out
}

func TestLayer_DefaultChain_EmitsSubPatternMatch(t *testing.T) {
	layer, err := NewLayer(defaultChainPattern(), 10000, nil)
	require.NoError(t, err)

	out := layer.ProcessBatch(batchOf(
		stream.NewInputEvent(10, 1, 100, 200, "open", "proc", "fileA"),
	))
	assert.Empty(t, out)

	out = layer.ProcessBatch(batchOf(
		stream.NewInputEvent(20, 2, 200, 300, "write", "fileA", "fileB"),
	))
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].SubPatternID)
	assert.Len(t, out[0].Instance.MatchEvents, 2)
}

func TestLayer_DefaultChain_RejectsBrokenEntityChain(t *testing.T) {
	layer, err := NewLayer(defaultChainPattern(), 10000, nil)
	require.NoError(t, err)

	layer.ProcessBatch(batchOf(
		stream.NewInputEvent(10, 1, 100, 200, "open", "proc", "fileA"),
	))
	// The second event's subject (999) does not match entity 1's binding
	// (200) established by the first event, so it must not extend.
	out := layer.ProcessBatch(batchOf(
		stream.NewInputEvent(20, 2, 999, 300, "write", "other", "fileB"),
	))
	assert.Empty(t, out)
}

func TestLayer_DefaultChain_WindowMissDropsOldInstance(t *testing.T) {
	layer, err := NewLayer(defaultChainPattern(), 100, nil) // small window
	require.NoError(t, err)

	layer.ProcessBatch(batchOf(
		stream.NewInputEvent(10, 1, 100, 200, "open", "proc", "fileA"),
	))
	// second event arrives well past the window bound relative to first
	out := layer.ProcessBatch(batchOf(
		stream.NewInputEvent(5000, 2, 200, 300, "write", "fileA", "fileB"),
	))
	assert.Empty(t, out)
}

func TestLayer_Frequency_CompletesAfterRequiredCount(t *testing.T) {
	p := &pattern.Pattern{
		UseRegex: true,
		Entities: []pattern.Entity{{ID: 0, Signature: ".*"}, {ID: 1, Signature: ".*"}},
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Frequency, Frequency: 3, Signature: "read", SubjectID: 0, ObjectID: 1},
		},
	}
	layer, err := NewLayer(p, 10000, nil)
	require.NoError(t, err)

	out := layer.ProcessBatch(batchOf(stream.NewInputEvent(10, 1, 100, 200, "read", "proc", "file")))
	assert.Empty(t, out)
	out = layer.ProcessBatch(batchOf(stream.NewInputEvent(20, 2, 100, 200, "read", "proc", "file")))
	assert.Empty(t, out)
	out = layer.ProcessBatch(batchOf(stream.NewInputEvent(30, 3, 100, 200, "read", "proc", "file")))
	require.Len(t, out, 1)
	assert.Len(t, out[0].Instance.MatchEvents, 1)
	assert.Equal(t, stream.MatchMultiple, out[0].Instance.MatchEvents[0].Kind)
}

func TestLayer_Flow_EmitsOnReachability(t *testing.T) {
	p := &pattern.Pattern{
		UseRegex: true,
		Entities: []pattern.Entity{{ID: 0, Signature: "^proc$"}, {ID: 1, Signature: "^file$"}},
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Flow, SubjectID: 0, ObjectID: 1},
		},
	}
	layer, err := NewLayer(p, 10000, nil)
	require.NoError(t, err)

	out := layer.ProcessBatch(batchOf(
		stream.NewInputEvent(10, 1, 100, 200, "exec", "proc", "file"),
	))
	require.Len(t, out, 1)
	assert.True(t, out[0].Instance.MatchEvents[0].IsFlow)
}
