package stream

// InputEvent is one timestamped edge from the provenance stream: a
// timestamp in milliseconds, a globally unique id, the entity ids it
// connects, and the concatenated "event\x00subject\x00object" signature
// string used for a single combined regex match against a pattern event's
// joint signature.
type InputEvent struct {
	Timestamp uint64
	ID        uint64
	SubjectID uint64
	ObjectID  uint64

	signature   string
	eventLen    int
	subjectLen  int
}

// NewInputEvent builds an InputEvent from its three component signature
// strings, precomputing the offsets used by EventSignature/SubjectSignature/
// ObjectSignature.
func NewInputEvent(timestamp, id, subjectID, objectID uint64, eventSig, subjectSig, objectSig string) InputEvent {
	return InputEvent{
		Timestamp:  timestamp,
		ID:         id,
		SubjectID:  subjectID,
		ObjectID:   objectID,
		signature:  eventSig + "\x00" + subjectSig + "\x00" + objectSig,
		eventLen:   len(eventSig),
		subjectLen: len(subjectSig),
	}
}

// CombinedSignature returns the NUL-joined event/subject/object signature
// string matched in a single regex evaluation.
func (e *InputEvent) CombinedSignature() string {
	return e.signature
}

// EventSignature returns just the event portion of the combined signature.
func (e *InputEvent) EventSignature() string {
	return e.signature[:e.eventLen]
}

// SubjectSignature returns just the subject portion of the combined signature.
func (e *InputEvent) SubjectSignature() string {
	start := e.eventLen + 1
	return e.signature[start : start+e.subjectLen]
}

// ObjectSignature returns just the object portion of the combined signature.
func (e *InputEvent) ObjectSignature() string {
	start := e.eventLen + 1 + e.subjectLen + 1
	return e.signature[start:]
}

// Less orders input events by timestamp only, matching the min-heap used by
// ingest to deliver equal-timestamp batches.
func (e *InputEvent) Less(other *InputEvent) bool {
	return e.Timestamp < other.Timestamp
}
