package composition

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ipmes-go/provenance-matcher/ipmes/annotations"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// storageKey hashes a small tuple of uint64s into the composite keys used
// by InstanceStorage's maps. Keeping key derivation explicit (rather than
// relying on Go's native struct-key hashing) makes the bucket a value can
// land in independent of struct layout, and is cheap to compute per lookup.
func storageKey(parts ...uint64) uint64 {
	var buf [8]byte
	d := xxhash.New()
	for _, p := range parts {
		binary.LittleEndian.PutUint64(buf[:], p)
		d.Write(buf[:])
	}
	return d.Sum64()
}

func key1(matchIdx int) uint64 {
	return storageKey(uint64(matchIdx))
}

func key2(matchIdx int, a uint64) uint64 {
	return storageKey(uint64(matchIdx), a)
}

func key3(matchIdx int, a, b uint64) uint64 {
	return storageKey(uint64(matchIdx), a, b)
}

// FreqInstance tracks an in-progress Frequency aggregation: the base
// MatchInstance as it stood before the Frequency event was ever matched, the
// remaining count before the aggregation completes, and the set of consumed
// input event ids (so a single input event cannot be counted twice). Several
// FreqInstances can share the same (matchIdx, subjectID, objectID) key when
// their Base instances differ in bindings from earlier sub-pattern events,
// so InstanceStorage keeps them in a slice per key, mirroring endpoints_instances.
type FreqInstance struct {
	Base             *MatchInstance
	PatternEventID   int
	SubjectPatternID int
	ObjectPatternID  int
	FilterKind       FilterKind
	NextState        int
	Frequency        int
	Remaining        int
	Consumed         map[uint64]bool
	Events           []*stream.InputEvent
	StartTime        uint64
	LatestEnd        uint64
}

// InstanceStorage holds every in-flight MatchInstance, bucketed by the
// FilterKind of the state row whose candidates they represent, plus
// in-progress Frequency aggregations and a per-sub-pattern output buffer
// for instances that reached a terminal Output row.
type InstanceStorage struct {
	simple    map[uint64]*MatchInstance
	subject   map[uint64][]*MatchInstance
	object    map[uint64][]*MatchInstance
	endpoints map[uint64][]*MatchInstance
	freq      map[uint64][]*FreqInstance

	output map[int][]*MatchInstance // sub-pattern id -> completed instances

	collector *annotations.Collector
}

// NewInstanceStorage creates empty storage and seeds each sub-pattern's
// first state with its sentinel "no events matched yet" instance. collector
// may be nil to disable instrumentation.
func NewInstanceStorage(table *StateTable, collector *annotations.Collector) *InstanceStorage {
	s := &InstanceStorage{
		simple:    make(map[uint64]*MatchInstance),
		subject:   make(map[uint64][]*MatchInstance),
		object:    make(map[uint64][]*MatchInstance),
		endpoints: make(map[uint64][]*MatchInstance),
		freq:      make(map[uint64][]*FreqInstance),
		output:    make(map[int][]*MatchInstance),
		collector: collector,
	}
	for subPatternID, rowIdx := range table.FirstRow {
		row := table.Rows[rowIdx]
		s.simple[key1(row.Filter.MatchIdx)] = NewEmptyInstance(rowIdx)
		_ = subPatternID
	}
	return s
}

// evictTracked runs evict over instances and reports the number dropped via
// InstanceEvicted, if instrumentation is enabled and any were actually
// dropped.
func (s *InstanceStorage) evictTracked(instances []*MatchInstance, windowBound uint64) []*MatchInstance {
	before := len(instances)
	live := evict(instances, windowBound)
	if dropped := before - len(live); dropped > 0 && s.collector != nil {
		s.collector.Add(annotations.Event{Name: annotations.InstanceEvicted, Data: map[string]interface{}{
			"evicted.count": dropped,
			"window.bound":  windowBound,
		}})
	}
	return live
}

// QuerySimple returns the sentinel instance for matchIdx. No window check is
// applied: the sentinel carries no real timestamp, so it is never evicted.
func (s *InstanceStorage) QuerySimple(matchIdx int) *MatchInstance {
	return s.simple[key1(matchIdx)]
}

// QuerySubject returns live (non-expired) candidate instances keyed by
// (matchIdx, boundSubjectID), evicting expired ones first.
func (s *InstanceStorage) QuerySubject(matchIdx int, boundSubjectID uint64, windowBound uint64) []*MatchInstance {
	k := key2(matchIdx, boundSubjectID)
	s.subject[k] = s.evictTracked(s.subject[k], windowBound)
	return s.subject[k]
}

// QueryObject is the symmetric counterpart of QuerySubject.
func (s *InstanceStorage) QueryObject(matchIdx int, boundObjectID uint64, windowBound uint64) []*MatchInstance {
	k := key2(matchIdx, boundObjectID)
	s.object[k] = s.evictTracked(s.object[k], windowBound)
	return s.object[k]
}

// QueryEndpoints returns live candidates keyed by (matchIdx, subjectID, objectID).
func (s *InstanceStorage) QueryEndpoints(matchIdx int, subjectID, objectID uint64, windowBound uint64) []*MatchInstance {
	k := key3(matchIdx, subjectID, objectID)
	s.endpoints[k] = s.evictTracked(s.endpoints[k], windowBound)
	return s.endpoints[k]
}

// QueryFreq returns every in-progress Frequency aggregation keyed by
// (matchIdx, subjectID, objectID).
func (s *InstanceStorage) QueryFreq(matchIdx int, subjectID, objectID uint64) []*FreqInstance {
	return s.freq[key3(matchIdx, subjectID, objectID)]
}

// StartFreq begins a new Frequency aggregation, keyed on the base
// instance's newly bound subject/object pair.
func (s *InstanceStorage) StartFreq(matchIdx int, subjectID, objectID uint64, f *FreqInstance) {
	k := key3(matchIdx, subjectID, objectID)
	s.freq[k] = append(s.freq[k], f)
}

// DropFreq removes one completed or abandoned Frequency aggregation from its bucket.
func (s *InstanceStorage) DropFreq(matchIdx int, subjectID, objectID uint64, f *FreqInstance) {
	k := key3(matchIdx, subjectID, objectID)
	list := s.freq[k]
	for i, cand := range list {
		if cand == f {
			s.freq[k] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// Store routes a newly produced instance to the bucket implied by its
// current state row, or to the output buffer if that row is terminal.
func (s *InstanceStorage) Store(inst *MatchInstance, table *StateTable) {
	row := table.Rows[inst.StateID]
	if row.Kind == StateOutput {
		s.output[row.SubPatternID] = append(s.output[row.SubPatternID], inst)
		return
	}

	filter := row.Filter
	switch filter.Kind {
	case FilterMatchIdxOnly:
		s.simple[key1(filter.MatchIdx)] = inst
	case FilterSubject:
		k := key2(filter.MatchIdx, filter.SubjectEnc.Extract(inst.MatchEvents))
		s.subject[k] = append(s.subject[k], inst)
	case FilterObject:
		k := key2(filter.MatchIdx, filter.ObjectEnc.Extract(inst.MatchEvents))
		s.object[k] = append(s.object[k], inst)
	case FilterEndpoints:
		subj := filter.SubjectEnc.Extract(inst.MatchEvents)
		obj := filter.ObjectEnc.Extract(inst.MatchEvents)
		k := key3(filter.MatchIdx, subj, obj)
		s.endpoints[k] = append(s.endpoints[k], inst)
	}
}

// DrainOutputs removes and returns every instance accumulated in a
// sub-pattern's output buffer.
func (s *InstanceStorage) DrainOutputs(subPatternID int) []*MatchInstance {
	out := s.output[subPatternID]
	delete(s.output, subPatternID)
	return out
}

func evict(instances []*MatchInstance, windowBound uint64) []*MatchInstance {
	live := instances[:0]
	for _, inst := range instances {
		if inst.StartTime >= windowBound {
			live = append(live, inst)
		}
	}
	return live
}
