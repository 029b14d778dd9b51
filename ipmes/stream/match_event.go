package stream

// MatchEventKind distinguishes the raw evidence backing a MatchEvent.
type MatchEventKind int

const (
	// MatchSingle is backed by exactly one input event (Default). Flow
	// events also use this kind but carry no input event.
	MatchSingle MatchEventKind = iota
	// MatchMultiple is backed by several input events sharing a
	// subject/object pair (Frequency).
	MatchMultiple
)

// MatchEvent is a matched pattern event plus the concrete input evidence
// for it: either one input event, several (Frequency), or — for Flow — a
// time interval and endpoint pair with no individually tracked arc ids.
type MatchEvent struct {
	Kind           MatchEventKind
	PatternEventID int

	// Single holds the matched input event for a non-Flow MatchSingle. It is
	// nil for Flow events, whose internal arcs are owned by the flow tracer,
	// not this struct.
	Single *InputEvent
	// Multiple holds the input events consumed by a Frequency aggregation,
	// populated only when Kind == MatchMultiple.
	Multiple []*InputEvent

	// IsFlow marks a MatchEvent produced by the flow tracer: its
	// subject/object ids and [StartTime,EndTime] interval are authoritative
	// evidence on their own; there is no single underlying InputEvent id to
	// fold into event_ids uniqueness tracking.
	IsFlow       bool
	FlowSubject  uint64
	FlowObject   uint64
	StartTime    uint64
	EndTime      uint64
}

// NewSingleMatchEvent wraps a single input event match for a Default pattern event.
func NewSingleMatchEvent(patternEventID int, ev *InputEvent) MatchEvent {
	return MatchEvent{
		Kind:           MatchSingle,
		PatternEventID: patternEventID,
		Single:         ev,
		StartTime:      ev.Timestamp,
		EndTime:        ev.Timestamp,
	}
}

// NewFlowMatchEvent wraps a flow-tracer reachability result for a Flow
// pattern event.
func NewFlowMatchEvent(patternEventID int, subject, object uint64, startTime, endTime uint64) MatchEvent {
	return MatchEvent{
		Kind:           MatchSingle,
		PatternEventID: patternEventID,
		IsFlow:         true,
		FlowSubject:    subject,
		FlowObject:     object,
		StartTime:      startTime,
		EndTime:        endTime,
	}
}

// NewMultipleMatchEvent wraps the accumulated events of a completed
// Frequency aggregation.
func NewMultipleMatchEvent(patternEventID int, events []*InputEvent, startTime, endTime uint64) MatchEvent {
	return MatchEvent{
		Kind:           MatchMultiple,
		PatternEventID: patternEventID,
		Multiple:       events,
		StartTime:      startTime,
		EndTime:        endTime,
	}
}

// SubjectID returns the runtime entity id bound to this event's subject role.
func (m *MatchEvent) SubjectID() uint64 {
	if m.IsFlow {
		return m.FlowSubject
	}
	if m.Kind == MatchMultiple {
		return m.Multiple[0].SubjectID
	}
	return m.Single.SubjectID
}

// ObjectID returns the runtime entity id bound to this event's object role.
func (m *MatchEvent) ObjectID() uint64 {
	if m.IsFlow {
		return m.FlowObject
	}
	if m.Kind == MatchMultiple {
		return m.Multiple[0].ObjectID
	}
	return m.Single.ObjectID
}

// EventIDs returns the input event ids that must be tracked for
// whole-pattern uniqueness. Flow evidence contributes none: a flow's
// internal arcs are not required to be unique across sibling matches.
func (m *MatchEvent) EventIDs() []uint64 {
	if m.IsFlow {
		return nil
	}
	if m.Kind == MatchMultiple {
		ids := make([]uint64, len(m.Multiple))
		for i, e := range m.Multiple {
			ids[i] = e.ID
		}
		return ids
	}
	return []uint64{m.Single.ID}
}
