package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoEventChain = `{
	"Version": "0.2.0",
	"Entities": [
		{"ID": 0, "Signature": "proc.*"},
		{"ID": 1, "Signature": "file.*"}
	],
	"Events": [
		{"ID": 0, "Type": "Default", "Signature": "open", "SubjectID": 0, "ObjectID": 1, "Parents": []},
		{"ID": 1, "Type": "Default", "Signature": "write", "SubjectID": 0, "ObjectID": 1, "Parents": [0]}
	]
}`

func TestParse_Basic(t *testing.T) {
	p, err := Parse([]byte(twoEventChain))
	require.NoError(t, err)

	assert.True(t, p.UseRegex)
	assert.Len(t, p.Entities, 2)
	assert.Len(t, p.Events, 2)
	assert.Equal(t, Default, p.Events[0].Type)
	assert.Equal(t, []int{0}, p.Events[1].Parents)
	assert.True(t, p.Order.Precedes(0, 1))
	assert.False(t, p.Order.Precedes(1, 0))
}

func TestParse_RejectsWrongVersion(t *testing.T) {
	_, err := Parse([]byte(`{"Version": "9.9.9", "Events": [{"ID":0,"SubjectID":0,"ObjectID":0}]}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestParse_RejectsNoEvents(t *testing.T) {
	_, err := Parse([]byte(`{"Version": "0.2.0", "Events": []}`))
	assert.ErrorIs(t, err, ErrNoEvents)
}

func TestParse_RejectsUndefinedEntity(t *testing.T) {
	doc := `{
		"Version": "0.2.0",
		"Entities": [{"ID": 0, "Signature": "proc"}],
		"Events": [{"ID": 0, "Type": "Default", "SubjectID": 0, "ObjectID": 7, "Parents": []}]
	}`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrUndefinedEntity)
}

func TestParse_RejectsLowFrequency(t *testing.T) {
	doc := `{
		"Version": "0.2.0",
		"Entities": [{"ID": 0, "Signature": "proc"}, {"ID": 1, "Signature": "file"}],
		"Events": [{"ID": 0, "Type": "Frequency", "Frequency": 1, "SubjectID": 0, "ObjectID": 1, "Parents": []}]
	}`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrInvalidFrequency)
}

func TestParse_RejectsFlowWithFrequency(t *testing.T) {
	doc := `{
		"Version": "0.2.0",
		"Entities": [{"ID": 0, "Signature": "proc"}, {"ID": 1, "Signature": "file"}],
		"Events": [{"ID": 0, "Type": "Flow", "Frequency": 3, "SubjectID": 0, "ObjectID": 1, "Parents": []}]
	}`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrFlowFrequencyUnsupported)
}

func TestParse_RejectsDependencyCycle(t *testing.T) {
	doc := `{
		"Version": "0.2.0",
		"Entities": [{"ID": 0, "Signature": "proc"}, {"ID": 1, "Signature": "file"}],
		"Events": [
			{"ID": 0, "Type": "Default", "SubjectID": 0, "ObjectID": 1, "Parents": [1]},
			{"ID": 1, "Type": "Default", "SubjectID": 0, "ObjectID": 1, "Parents": [0]}
		]
	}`
	_, err := Parse([]byte(doc))
	assert.ErrorIs(t, err, ErrDependencyCycle)
}

func TestParse_RejectsMalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPattern)
}

func TestParseYAML_AcceptsEquivalentDocument(t *testing.T) {
	doc := `
Version: "0.2.0"
Entities:
  - ID: 0
    Signature: "proc.*"
  - ID: 1
    Signature: "file.*"
Events:
  - ID: 0
    Type: Default
    Signature: "open"
    SubjectID: 0
    ObjectID: 1
  - ID: 1
    Type: Default
    Signature: "write"
    SubjectID: 0
    ObjectID: 1
    Parents: [0]
`
	p, err := ParseYAML([]byte(doc))
	require.NoError(t, err)
	assert.Len(t, p.Events, 2)
	assert.True(t, p.Order.Precedes(0, 1))
}
