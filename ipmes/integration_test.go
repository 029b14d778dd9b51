package ipmes_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipmes-go/provenance-matcher/ipmes/composition"
	"github.com/ipmes-go/provenance-matcher/ipmes/join"
	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// pipeline wires a composition layer and a join layer for one compiled
// pattern, feeding batches through both and returning every resulting
// PatternMatch.
type pipeline struct {
	composition *composition.Layer
	join        *join.Layer
}

func newPipeline(t *testing.T, p *pattern.Pattern, windowMillis uint64) *pipeline {
	t.Helper()
	subPatterns := pattern.Decompose(p)

	compLayer, err := composition.NewLayer(p, windowMillis, nil)
	require.NoError(t, err)

	joinLayer := join.NewLayer(0, p, subPatterns, windowMillis, nil)
	return &pipeline{composition: compLayer, join: joinLayer}
}

func (pl *pipeline) feed(events ...stream.InputEvent) []stream.PatternMatch {
	batch := make([]*stream.InputEvent, len(events))
	for i := range events {
		batch[i] = &events[i]
	}

	var matches []stream.PatternMatch
	for _, sub := range pl.composition.ProcessBatch(batch) {
		matches = append(matches, pl.join.Push(sub)...)
	}
	return matches
}

func chainPattern(t *testing.T) *pattern.Pattern {
	t.Helper()
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [
			{"ID": 0, "Signature": "v0"},
			{"ID": 1, "Signature": "v1"},
			{"ID": 2, "Signature": "v2"},
			{"ID": 3, "Signature": "v3"}
		],
		"Events": [
			{"ID": 0, "Type": "Default", "Signature": "e0", "SubjectID": 0, "ObjectID": 1, "Parents": []},
			{"ID": 1, "Type": "Default", "Signature": "e1", "SubjectID": 1, "ObjectID": 2, "Parents": [0]},
			{"ID": 2, "Type": "Default", "Signature": "e2", "SubjectID": 2, "ObjectID": 3, "Parents": [1]}
		]
	}`))
	require.NoError(t, err)
	return p
}

// Scenario 1: basic path, unbounded window.
func TestEndToEnd_BasicPath(t *testing.T) {
	pl := newPipeline(t, chainPattern(t), ^uint64(0))

	assert.Empty(t, pl.feed(stream.NewInputEvent(0, 0, 0, 1, "e0", "v0", "v1")))
	assert.Empty(t, pl.feed(stream.NewInputEvent(1, 1, 1, 2, "e1", "v1", "v2")))
	matches := pl.feed(stream.NewInputEvent(2, 2, 2, 3, "e2", "v2", "v3"))

	require.Len(t, matches, 1)
	m := matches[0]
	assert.Equal(t, uint64(0), m.EarliestTime)
	assert.Equal(t, uint64(2), m.LatestTime)
	assert.ElementsMatch(t, []uint64{0, 1, 2}, m.AllEventIDs())
}

// Scenario 4: window miss — same pattern, a window too small to bridge the
// first and last event.
func TestEndToEnd_WindowMiss(t *testing.T) {
	pl := newPipeline(t, chainPattern(t), 3)

	pl.feed(stream.NewInputEvent(0, 0, 0, 1, "e0", "v0", "v1"))
	pl.feed(stream.NewInputEvent(1, 1, 1, 2, "e1", "v1", "v2"))
	matches := pl.feed(stream.NewInputEvent(4, 2, 2, 3, "e2", "v2", "v3"))

	assert.Empty(t, matches)
}

// Scenario 2: event uniqueness — a single input event cannot satisfy two
// distinct pattern events.
func TestEndToEnd_EventUniquenessRejectsDoubleUse(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [
			{"ID": 0, "Signature": "v0"},
			{"ID": 1, "Signature": "v1"},
			{"ID": 2, "Signature": "v2"}
		],
		"Events": [
			{"ID": 0, "Type": "Default", "Signature": "e0", "SubjectID": 0, "ObjectID": 1, "Parents": []},
			{"ID": 1, "Type": "Default", "Signature": "e1", "SubjectID": 1, "ObjectID": 2, "Parents": [0]},
			{"ID": 2, "Type": "Default", "Signature": "e.", "SubjectID": 1, "ObjectID": 2, "Parents": [0]}
		]
	}`))
	require.NoError(t, err)
	p.UseRegex = true

	pl := newPipeline(t, p, ^uint64(0))
	pl.feed(stream.NewInputEvent(0, 0, 0, 1, "e0", "v0", "v1"))
	matches := pl.feed(stream.NewInputEvent(1, 1, 1, 2, "e1", "v1", "v2"))

	assert.Empty(t, matches, "one input event cannot satisfy both e1 and e.")
}

// Scenario 3: entity uniqueness — the same input entity cannot bind to two
// distinct pattern entities within one match.
func TestEndToEnd_EntityUniquenessRejectsDualBinding(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [
			{"ID": 0, "Signature": "v0"},
			{"ID": 1, "Signature": "v1"},
			{"ID": 2, "Signature": "v2"},
			{"ID": 3, "Signature": "v3"}
		],
		"Events": [
			{"ID": 0, "Type": "Default", "Signature": "e0", "SubjectID": 0, "ObjectID": 1, "Parents": []},
			{"ID": 1, "Type": "Default", "Signature": "e1", "SubjectID": 1, "ObjectID": 2, "Parents": [0]},
			{"ID": 2, "Type": "Default", "Signature": "e2", "SubjectID": 1, "ObjectID": 3, "Parents": [0]}
		]
	}`))
	require.NoError(t, err)

	pl := newPipeline(t, p, ^uint64(0))
	pl.feed(stream.NewInputEvent(0, 0, 0, 1, "e0", "v0", "v1"))
	pl.feed(stream.NewInputEvent(1, 1, 1, 2, "e1", "v1", "v2"))
	// Input entity 2 (already bound to pattern entity 2 / v2) now tries to
	// also bind to pattern entity 3 (v3): must be rejected.
	matches := pl.feed(stream.NewInputEvent(2, 2, 1, 2, "e2", "v1", "v3"))

	assert.Empty(t, matches)
}

// Scenario 5: frequency — the middle event requires three distinct matching
// input events before the aggregation completes.
func TestEndToEnd_Frequency(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"Entities": [
			{"ID": 0, "Signature": "v0"},
			{"ID": 1, "Signature": "v1"},
			{"ID": 2, "Signature": "v2"},
			{"ID": 3, "Signature": "v3"}
		],
		"Events": [
			{"ID": 0, "Type": "Default", "Signature": "e0", "SubjectID": 0, "ObjectID": 1, "Parents": []},
			{"ID": 1, "Type": "Frequency", "Frequency": 3, "Signature": "e1", "SubjectID": 1, "ObjectID": 2, "Parents": [0]},
			{"ID": 2, "Type": "Default", "Signature": "e2", "SubjectID": 2, "ObjectID": 3, "Parents": [1]}
		]
	}`))
	require.NoError(t, err)

	pl := newPipeline(t, p, ^uint64(0))
	pl.feed(stream.NewInputEvent(0, 0, 0, 1, "e0", "v0", "v1"))
	pl.feed(stream.NewInputEvent(1, 1, 1, 2, "e1", "v1", "v2"))
	pl.feed(stream.NewInputEvent(2, 2, 1, 2, "e1", "v1", "v2"))
	assert.Empty(t, pl.feed(stream.NewInputEvent(3, 3, 1, 2, "e1", "v1", "v2")))
	matches := pl.feed(stream.NewInputEvent(4, 4, 2, 3, "e2", "v2", "v3"))

	require.Len(t, matches, 1)
	var freqEvent *stream.MatchEvent
	for i := range matches[0].Events {
		if matches[0].Events[i].PatternEventID == 1 {
			freqEvent = &matches[0].Events[i]
		}
	}
	require.NotNil(t, freqEvent)
	assert.Equal(t, uint64(1), freqEvent.StartTime)
	assert.Equal(t, uint64(3), freqEvent.EndTime)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, freqEvent.EventIDs())
}

// Scenario 6: flow — a time-monotone reachability path satisfies the Flow
// event even though no single input event directly connects subject to
// object.
func TestEndToEnd_FlowTransitivePath(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"UseRegex": true,
		"Entities": [
			{"ID": 0, "Signature": "^u$"},
			{"ID": 1, "Signature": "^v$"}
		],
		"Events": [
			{"ID": 0, "Type": "Flow", "SubjectID": 0, "ObjectID": 1, "Parents": []}
		]
	}`))
	require.NoError(t, err)

	pl := newPipeline(t, p, ^uint64(0))
	pl.feed(stream.NewInputEvent(1, 0, 0, 1, "?", "u", "x"))
	pl.feed(stream.NewInputEvent(1, 1, 1, 2, "?", "x", "x"))
	matches := pl.feed(stream.NewInputEvent(3, 2, 2, 3, "?", "x", "v"))

	require.Len(t, matches, 1)
	flowEv := matches[0].Events[0]
	assert.True(t, flowEv.IsFlow)
	assert.Equal(t, uint64(1), flowEv.StartTime)
	assert.Equal(t, uint64(3), flowEv.EndTime)
}

// Scenario 6 (direct case): a single input event whose subject/object
// signatures both match must also satisfy the Flow event.
func TestEndToEnd_FlowDirectMatch(t *testing.T) {
	p, err := pattern.Parse([]byte(`{
		"Version": "0.2.0",
		"UseRegex": true,
		"Entities": [
			{"ID": 0, "Signature": "^u$"},
			{"ID": 1, "Signature": "^v$"}
		],
		"Events": [
			{"ID": 0, "Type": "Flow", "SubjectID": 0, "ObjectID": 1, "Parents": []}
		]
	}`))
	require.NoError(t, err)

	pl := newPipeline(t, p, ^uint64(0))
	matches := pl.feed(stream.NewInputEvent(1, 0, 0, 1, "?", "u", "v"))

	require.Len(t, matches, 1)
	assert.True(t, matches[0].Events[0].IsFlow)
}
