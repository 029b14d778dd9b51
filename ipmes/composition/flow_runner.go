package composition

import (
	"fmt"
	"regexp"

	"github.com/ipmes-go/provenance-matcher/ipmes/pattern"
	"github.com/ipmes-go/provenance-matcher/ipmes/stream"
)

// flowSignature holds the compiled subject/object matchers for one Flow
// pattern event, plus its own FlowTracer. Each Flow event gets an
// independent tracer because "matches the subject signature" is evaluated
// against that event's own pattern, not a shared graph property.
type flowSignature struct {
	patternEventID int
	subjectRe      *regexp.Regexp
	objectRe       *regexp.Regexp
	tracer         *FlowTracer
}

// FlowRunner drives every Flow pattern event's FlowTracer against each
// incoming batch of input events, reporting newly established
// subject-to-object reachability.
type FlowRunner struct {
	signatures []*flowSignature
}

// NewFlowRunner compiles the subject/object regular expressions for every
// Flow-typed event in p.
func NewFlowRunner(p *pattern.Pattern, window uint64) (*FlowRunner, error) {
	r := &FlowRunner{}
	for _, ev := range p.Events {
		if ev.Type != pattern.Flow {
			continue
		}
		subjectEntity, ok := p.EntityByID(ev.SubjectID)
		if !ok {
			return nil, fmt.Errorf("flow event %d: undefined subject entity %d", ev.ID, ev.SubjectID)
		}
		objectEntity, ok := p.EntityByID(ev.ObjectID)
		if !ok {
			return nil, fmt.Errorf("flow event %d: undefined object entity %d", ev.ID, ev.ObjectID)
		}

		subjectRe, err := compileSignature(subjectEntity.Signature, p.UseRegex)
		if err != nil {
			return nil, fmt.Errorf("flow event %d subject signature: %w", ev.ID, err)
		}
		objectRe, err := compileSignature(objectEntity.Signature, p.UseRegex)
		if err != nil {
			return nil, fmt.Errorf("flow event %d object signature: %w", ev.ID, err)
		}

		r.signatures = append(r.signatures, &flowSignature{
			patternEventID: ev.ID,
			subjectRe:      subjectRe,
			objectRe:       objectRe,
			tracer:         NewFlowTracer(window),
		})
	}
	return r, nil
}

// FlowMatch reports one newly established (src, dst) reachability pair for
// a given Flow pattern event.
type FlowMatch struct {
	PatternEventID int
	Subject        uint64
	Object         uint64
	StartTime      uint64
	EndTime        uint64
}

// ProcessBatch feeds a batch of same-timestamp input events (used as flow
// arcs regardless of their own event signature, since flow reachability
// runs over the whole provenance graph) into every Flow event's tracer, and
// returns every newly matching (subject, object) pair.
func (r *FlowRunner) ProcessBatch(batch []*stream.InputEvent) []FlowMatch {
	if len(batch) == 0 || len(r.signatures) == 0 {
		return nil
	}

	ts := batch[0].Timestamp
	arcs := make([]Arc, len(batch))
	for i, ev := range batch {
		arcs[i] = Arc{Src: ev.SubjectID, Dst: ev.ObjectID}
	}

	var matches []FlowMatch
	for _, sig := range r.signatures {
		subjectMatch := make(map[uint64]bool)
		objectMatch := make(map[uint64]bool)
		for _, ev := range batch {
			if sig.subjectRe.MatchString(ev.SubjectSignature()) {
				subjectMatch[ev.SubjectID] = true
			}
			if sig.objectRe.MatchString(ev.ObjectSignature()) {
				objectMatch[ev.ObjectID] = true
			}
		}

		changed := sig.tracer.AddBatch(arcs, ts, func(e uint64) bool { return subjectMatch[e] })
		for dst, sources := range changed {
			if !objectMatch[dst] {
				continue
			}
			for _, src := range sources {
				startTime, ok := sig.tracer.GetUpdateTime(dst, src)
				if !ok {
					startTime = ts
				}
				matches = append(matches, FlowMatch{
					PatternEventID: sig.patternEventID,
					Subject:        src,
					Object:         dst,
					StartTime:      startTime,
					EndTime:        ts,
				})
			}
		}
		sig.tracer.Prune(ts)
	}

	return matches
}

func compileSignature(sig string, useRegex bool) (*regexp.Regexp, error) {
	if sig == "" {
		return regexp.Compile(".*")
	}
	if useRegex {
		return regexp.Compile(sig)
	}
	return regexp.Compile("^" + regexp.QuoteMeta(sig) + "$")
}
