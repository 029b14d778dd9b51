package composition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
)

func TestBuildStateTable_TwoEventChain(t *testing.T) {
	p := &pattern.Pattern{
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Default, SubjectID: 0, ObjectID: 1},
			{ID: 1, Type: pattern.Default, SubjectID: 1, ObjectID: 2, Parents: []int{0}},
		},
	}
	subs := []pattern.SubPattern{{ID: 0, Events: []int{0, 1}}}

	table := BuildStateTable(p, subs)

	require.Len(t, table.Rows, 3) // event0, event1, Output
	assert.Equal(t, 0, table.FirstRow[0])

	row0 := table.Rows[0]
	assert.Equal(t, StateDefault, row0.Kind)
	assert.Equal(t, 0, row0.PatternEventID)
	assert.Equal(t, FilterMatchIdxOnly, row0.Filter.Kind)
	assert.Equal(t, 1, row0.Next)

	row1 := table.Rows[1]
	assert.Equal(t, StateDefault, row1.Kind)
	assert.Equal(t, 1, row1.PatternEventID)
	// event1's subject is entity 1, which event0's object (index 0) already bound.
	assert.Equal(t, FilterSubject, row1.Filter.Kind)
	assert.Equal(t, ObjectOf(0), row1.Filter.SubjectEnc)
	assert.Equal(t, 2, row1.Next)

	output := table.Rows[2]
	assert.Equal(t, StateOutput, output.Kind)
	assert.Equal(t, FilterNone, output.Filter.Kind)
}

func TestBuildStateTable_FrequencyEventEmitsInitAndAggRows(t *testing.T) {
	p := &pattern.Pattern{
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Frequency, Frequency: 3, SubjectID: 0, ObjectID: 1},
		},
	}
	subs := []pattern.SubPattern{{ID: 0, Events: []int{0}}}

	table := BuildStateTable(p, subs)

	require.Len(t, table.Rows, 3) // Init, Agg, Output
	initRow := table.Rows[0]
	aggRow := table.Rows[1]

	assert.Equal(t, StateInitFreq, initRow.Kind)
	assert.Equal(t, 0, initRow.PatternEventID)
	assert.Equal(t, 1, initRow.Next)

	assert.Equal(t, StateAggFreq, aggRow.Kind)
	assert.Equal(t, 3, aggRow.Frequency)
	assert.Equal(t, FilterEndpoints, aggRow.Filter.Kind)
	assert.Equal(t, SubjectOf(0), aggRow.Filter.SubjectEnc)
	assert.Equal(t, ObjectOf(0), aggRow.Filter.ObjectEnc)
	assert.Equal(t, 2, aggRow.Next)
}

func TestBuildStateTable_BothEndpointsBoundUsesFilterEndpoints(t *testing.T) {
	// event1 reuses both of event0's endpoints (subject<->object swapped),
	// so by the time it's compiled both its subject and object are already
	// bound by event0.
	p := &pattern.Pattern{
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Default, SubjectID: 0, ObjectID: 1},
			{ID: 1, Type: pattern.Default, SubjectID: 1, ObjectID: 0, Parents: []int{0}},
		},
	}
	subs := []pattern.SubPattern{{ID: 0, Events: []int{0, 1}}}

	table := BuildStateTable(p, subs)

	row1 := table.Rows[1]
	assert.Equal(t, FilterEndpoints, row1.Filter.Kind)
	assert.Equal(t, ObjectOf(0), row1.Filter.SubjectEnc)
	assert.Equal(t, SubjectOf(0), row1.Filter.ObjectEnc)
}

func TestBuildStateTable_MultipleSubPatternsGetDistinctRowRanges(t *testing.T) {
	p := &pattern.Pattern{
		Events: []pattern.Event{
			{ID: 0, Type: pattern.Default, SubjectID: 0, ObjectID: 1},
			{ID: 1, Type: pattern.Default, SubjectID: 2, ObjectID: 3},
		},
	}
	subs := []pattern.SubPattern{
		{ID: 0, Events: []int{0}},
		{ID: 1, Events: []int{1}},
	}

	table := BuildStateTable(p, subs)

	require.Len(t, table.Rows, 4) // event, Output, event, Output
	assert.Equal(t, 0, table.FirstRow[0])
	assert.Equal(t, 2, table.FirstRow[1])
	assert.Equal(t, 0, table.Rows[0].SubPatternID)
	assert.Equal(t, 1, table.Rows[2].SubPatternID)
	// MatchIdx values are globally unique across sub-patterns.
	assert.NotEqual(t, table.Rows[0].Filter.MatchIdx, table.Rows[2].Filter.MatchIdx)
}
