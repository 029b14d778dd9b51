package pattern

import "errors"

// Sentinel errors returned (wrapped with context via fmt.Errorf's %w) by
// Parse and ParseYAML. Callers distinguish failure kinds with errors.Is.
var (
	ErrMalformedPattern          = errors.New("malformed pattern document")
	ErrUnsupportedVersion        = errors.New("unsupported pattern version")
	ErrNoEvents                  = errors.New("pattern declares no events")
	ErrUndefinedEntity           = errors.New("event references undefined entity id")
	ErrUndefinedEvent            = errors.New("order relation references undefined event id")
	ErrUnknownEventType          = errors.New("unknown event type")
	ErrInvalidFrequency          = errors.New("frequency events require Frequency >= 2")
	ErrDependencyCycle           = errors.New("cycle in event order relation")
	ErrFlowFrequencyUnsupported  = errors.New("an event cannot combine Flow with Frequency")
	ErrRegexCompile              = errors.New("failed to compile signature regular expression")
)
