package models

// ModelDescriptor describes a model resolved from the registry. Values are
// copied on lookup; callers must treat them as read-only.
type ModelDescriptor struct {
	Category     string         `json:"category" yaml:"category"`
	Variant      string         `json:"variant" yaml:"variant"`
	Name         string         `json:"name" yaml:"name"`
	Version      string         `json:"version" yaml:"version"`
	Provider     string         `json:"provider,omitempty" yaml:"provider"`
	Capabilities []string       `json:"capabilities" yaml:"capabilities"`
	Parameters   map[string]any `json:"parameters,omitempty" yaml:"parameters"`
}

// Key returns the "category/variant" registry key.
func (m ModelDescriptor) Key() string {
	return m.Category + "/" + m.Variant
}

// HasCapability reports whether the model advertises c.
func (m ModelDescriptor) HasCapability(c string) bool {
	for _, have := range m.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}
