// Package ingest decodes the streamed input graph (CSV records) into
// timestamp-ordered batches of input events, per the record format and
// batching rule in the external interfaces section of the specification.
package ingest

import (
	"container/heap"
	"encoding/csv"
	"io"
	"math"

	"github.com/ipmes-go/provenance-matcher/ipmes/annotations"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// Reader decodes CSV records into a min-heap-buffered stream of batches:
// each batch holds every buffered input event earlier than the latest
// record's first timestamp, in ascending timestamp order, so events sharing
// a timestamp are delivered together. A batch can span several timestamps
// when a long-running record's second event is buffered, and after the
// input is exhausted.
type Reader struct {
	csv          *csv.Reader
	buffer       inputHeap
	boundaryTime uint64
	exhausted    bool
	collector    *annotations.Collector
}

// NewReader wraps r as a header-less, six-field CSV input. collector may be
// nil to disable instrumentation.
func NewReader(r io.Reader, collector *annotations.Collector) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // validated explicitly in parseRecord
	return &Reader{csv: cr, collector: collector}
}

// Next returns the next batch of input events (see Reader for what one
// batch holds), or (nil, false) once the input is exhausted and every
// buffered event has been flushed.
func (r *Reader) Next() ([]*stream.InputEvent, bool) {
	for r.nothingToSend() {
		rec, ok := r.nextValidRecord()
		if !ok {
			r.boundaryTime = math.MaxUint64
			break
		}
		first, second := toInputEvents(rec)
		r.boundaryTime = first.Timestamp
		heap.Push(&r.buffer, &first)
		if second != nil {
			heap.Push(&r.buffer, second)
		}
	}

	batch := r.flush()
	if len(batch) == 0 {
		return nil, false
	}
	if r.collector != nil {
		r.collector.Add(annotations.Event{Name: annotations.BatchRead, Data: map[string]interface{}{
			"event.count": len(batch), "timestamp": batch[0].Timestamp,
		}})
	}
	return batch, true
}

func (r *Reader) nothingToSend() bool {
	if r.exhausted {
		return false
	}
	if len(r.buffer) == 0 {
		return true
	}
	return r.buffer[0].Timestamp >= r.boundaryTime
}

func (r *Reader) flush() []*stream.InputEvent {
	var batch []*stream.InputEvent
	for len(r.buffer) > 0 && r.buffer[0].Timestamp < r.boundaryTime {
		batch = append(batch, heap.Pop(&r.buffer).(*stream.InputEvent))
	}
	if r.boundaryTime == math.MaxUint64 {
		// Input exhausted: drain whatever remains in one final call, even if
		// it spans more than one timestamp. Nothing later could split it
		// further anyway.
		for len(r.buffer) > 0 {
			batch = append(batch, heap.Pop(&r.buffer).(*stream.InputEvent))
		}
		r.exhausted = true
	}
	return batch
}

func (r *Reader) nextValidRecord() (Record, bool) {
	for {
		fields, err := r.csv.Read()
		if err == io.EOF {
			return Record{}, false
		}
		if err != nil {
			if r.collector != nil {
				r.collector.Add(annotations.Event{Name: annotations.ErrorDecode, Data: map[string]interface{}{"error": err.Error()}})
			}
			continue
		}

		rec, err := parseRecord(fields)
		if err != nil {
			if r.collector != nil {
				r.collector.Add(annotations.Event{Name: annotations.RecordSkipped, Data: map[string]interface{}{"error": err.Error()}})
			}
			continue
		}
		return rec, true
	}
}
