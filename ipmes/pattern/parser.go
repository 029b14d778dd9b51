package pattern

import (
	"encoding/json"
	"fmt"
	"regexp"
)

const supportedVersion = "0.2.0"

// rawEntity and rawEvent mirror the on-disk JSON/YAML pattern schema before
// id renumbering and validation.
type rawEntity struct {
	ID        int    `json:"ID" yaml:"ID"`
	Signature string `json:"Signature" yaml:"Signature"`
}

type rawEvent struct {
	ID        int    `json:"ID" yaml:"ID"`
	Type      string `json:"Type" yaml:"Type"`
	Signature string `json:"Signature" yaml:"Signature"`
	SubjectID int    `json:"SubjectID" yaml:"SubjectID"`
	ObjectID  int    `json:"ObjectID" yaml:"ObjectID"`
	Parents   []int  `json:"Parents" yaml:"Parents"`
	Frequency int    `json:"Frequency" yaml:"Frequency"`
}

type rawPattern struct {
	Version  string      `json:"Version" yaml:"Version"`
	UseRegex *bool       `json:"UseRegex" yaml:"UseRegex"`
	Entities []rawEntity `json:"Entities" yaml:"Entities"`
	Events   []rawEvent  `json:"Events" yaml:"Events"`
}

// Parse parses a pattern document in its canonical JSON form.
func Parse(data []byte) (*Pattern, error) {
	var raw rawPattern
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPattern, err)
	}
	return build(raw)
}

func build(raw rawPattern) (*Pattern, error) {
	if raw.Version != supportedVersion {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrUnsupportedVersion, raw.Version, supportedVersion)
	}
	if len(raw.Events) == 0 {
		return nil, ErrNoEvents
	}

	useRegex := true
	if raw.UseRegex != nil {
		useRegex = *raw.UseRegex
	}

	entityIDs := make(map[int]bool, len(raw.Entities))
	entities := make([]Entity, len(raw.Entities))
	for i, re := range raw.Entities {
		entities[i] = Entity{ID: re.ID, Signature: re.Signature}
		entityIDs[re.ID] = true
	}

	// Renumber event ids densely from 0, preserving input order, and build
	// the old-id -> new-id mapping used to rewrite Parents references.
	renumber := make(map[int]int, len(raw.Events))
	for i, re := range raw.Events {
		renumber[re.ID] = i
	}

	events := make([]Event, len(raw.Events))
	for i, re := range raw.Events {
		eventType, err := parseEventType(re.Type)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", re.ID, err)
		}

		if !entityIDs[re.SubjectID] {
			return nil, fmt.Errorf("%w: event %d subject %d", ErrUndefinedEntity, re.ID, re.SubjectID)
		}
		if !entityIDs[re.ObjectID] {
			return nil, fmt.Errorf("%w: event %d object %d", ErrUndefinedEntity, re.ID, re.ObjectID)
		}

		if eventType == Frequency && re.Frequency < 2 {
			return nil, fmt.Errorf("%w: event %d has Frequency=%d", ErrInvalidFrequency, re.ID, re.Frequency)
		}
		if eventType == Flow && re.Frequency != 0 {
			return nil, fmt.Errorf("%w: event %d", ErrFlowFrequencyUnsupported, re.ID)
		}

		parents := make([]int, 0, len(re.Parents))
		for _, p := range re.Parents {
			newP, ok := renumber[p]
			if !ok {
				return nil, fmt.Errorf("%w: event %d parent %d", ErrUndefinedEvent, re.ID, p)
			}
			parents = append(parents, newP)
		}

		events[i] = Event{
			ID:        i,
			Type:      eventType,
			Signature: re.Signature,
			SubjectID: re.SubjectID,
			ObjectID:  re.ObjectID,
			Frequency: re.Frequency,
			Parents:   parents,
		}
	}

	order, err := buildOrderRelation(events)
	if err != nil {
		return nil, err
	}

	if useRegex {
		for _, e := range events {
			if e.Signature == "" {
				continue
			}
			if _, err := regexp.Compile(e.Signature); err != nil {
				return nil, fmt.Errorf("%w: event %d: %v", ErrRegexCompile, e.ID, err)
			}
		}
	}

	return &Pattern{
		UseRegex: useRegex,
		Entities: entities,
		Events:   events,
		Order:    order,
	}, nil
}

func parseEventType(s string) (EventType, error) {
	switch s {
	case "", "Default":
		return Default, nil
	case "Frequency":
		return Frequency, nil
	case "Flow":
		return Flow, nil
	default:
		return Default, fmt.Errorf("%w: %q", ErrUnknownEventType, s)
	}
}
