package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// Record is one decoded line of the input graph: two floating-point
// timestamps in seconds, a NUL-joined "event\x00subject\x00object"
// signature string, a 64-bit event id, and the subject/object entity ids.
type Record struct {
	Timestamp1 float64
	Timestamp2 float64
	Signature  string
	ID         uint64
	Subject    uint64
	Object     uint64
}

func parseRecord(fields []string) (Record, error) {
	if len(fields) != 6 {
		return Record{}, fmt.Errorf("%w: expected 6 fields, got %d", ErrMalformedRecord, len(fields))
	}

	t1, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp1: %v", ErrMalformedRecord, err)
	}
	t2, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: timestamp2: %v", ErrMalformedRecord, err)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: id: %v", ErrMalformedRecord, err)
	}
	subject, err := strconv.ParseUint(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: subject: %v", ErrMalformedRecord, err)
	}
	object, err := strconv.ParseUint(strings.TrimSpace(fields[5]), 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("%w: object: %v", ErrMalformedRecord, err)
	}

	return Record{
		Timestamp1: t1,
		Timestamp2: t2,
		Signature:  fields[2],
		ID:         id,
		Subject:    subject,
		Object:     object,
	}, nil
}

// toInputEvents converts a record to one or two InputEvents: two when its
// timestamps differ (start and end of a long-running event sharing one
// id), one otherwise. Timestamps are rounded from seconds to milliseconds.
func toInputEvents(r Record) (stream.InputEvent, *stream.InputEvent) {
	parts := strings.SplitN(r.Signature, "\x00", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}

	ts1 := toMillis(r.Timestamp1)
	first := stream.NewInputEvent(ts1, r.ID, r.Subject, r.Object, parts[0], parts[1], parts[2])

	ts2 := toMillis(r.Timestamp2)
	if ts2 == ts1 {
		return first, nil
	}
	second := stream.NewInputEvent(ts2, r.ID, r.Subject, r.Object, parts[0], parts[1], parts[2])
	return first, &second
}

func toMillis(seconds float64) uint64 {
	return uint64(math.Round(seconds * 1000))
}
