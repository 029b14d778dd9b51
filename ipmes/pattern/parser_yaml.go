package pattern

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseYAML parses a pattern document authored in YAML rather than the
// canonical JSON form. It accepts the same schema and applies identical
// validation; this is an additive convenience for hand-authored patterns,
// never a replacement for the JSON format.
func ParseYAML(data []byte) (*Pattern, error) {
	var raw rawPattern
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPattern, err)
	}
	return build(raw)
}
