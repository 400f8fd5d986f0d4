// Package registry resolves "category/variant" keys to model descriptors.
package registry

import (
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/pario-ai/orchestra/pkg/models"
)

// DefaultKey is returned for unknown keys.
const DefaultKey = "text/general"

// Capabilities advertised by built-in descriptors.
const (
	CapText          = "text"
	CapImage         = "image"
	CapImageEdit     = "image_edit"
	CapEntities      = "entities"
	CapKeywords      = "keywords"
	CapTopics        = "topics"
	CapSentiment     = "sentiment"
	CapSyntax        = "syntax"
	CapSEO           = "seo"
	CapVisualization = "visualization"
)

// Builtin returns the descriptors every registry starts with.
func Builtin() []models.ModelDescriptor {
	return []models.ModelDescriptor{
		{Category: "text", Variant: "general", Name: "general", Version: "1",
			Capabilities: []string{CapText},
			Parameters:   map[string]any{"max_tokens": 1000, "temperature": 0.7, "top_p": 0.9}},
		{Category: "text", Variant: "creative", Name: "general", Version: "1",
			Capabilities: []string{CapText},
			Parameters:   map[string]any{"max_tokens": 1000, "temperature": 0.9, "top_p": 0.95}},
		{Category: "text", Variant: "precise", Name: "general", Version: "1",
			Capabilities: []string{CapText},
			Parameters:   map[string]any{"max_tokens": 1000, "temperature": 0.2, "top_p": 0.8}},
		{Category: "image", Variant: "general", Name: "image", Version: "1",
			Capabilities: []string{CapImage},
			Parameters:   map[string]any{"size": "1024x1024", "n": 1, "style": "natural"}},
		{Category: "image", Variant: "enhance", Name: "image", Version: "1",
			Capabilities: []string{CapImageEdit},
			Parameters:   map[string]any{"strength": 0.5}},
		{Category: "analysis", Variant: "general", Name: "nlp", Version: "1",
			Capabilities: []string{CapEntities, CapKeywords, CapTopics, CapSentiment, CapSyntax}},
		{Category: "seo", Variant: "general", Name: "general", Version: "1",
			Capabilities: []string{CapText, CapSEO},
			Parameters:   map[string]any{"temperature": 0.4}},
		{Category: "visualization", Variant: "general", Name: "general", Version: "1",
			Capabilities: []string{CapVisualization},
			Parameters:   map[string]any{"chart_type": "bar"}},
	}
}

// Registry is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]models.ModelDescriptor
}

// New returns a registry of the built-in descriptors overlaid with extra.
// An extra descriptor replaces the built-in with the same key.
func New(extra []models.ModelDescriptor) *Registry {
	r := &Registry{models: make(map[string]models.ModelDescriptor)}
	for _, m := range Builtin() {
		r.models[m.Key()] = m
	}
	for _, m := range extra {
		r.Register(m)
	}
	return r
}

// Register adds or replaces m. A missing variant means "general".
func (r *Registry) Register(m models.ModelDescriptor) {
	if m.Variant == "" {
		m.Variant = "general"
	}
	r.mu.Lock()
	r.models[m.Key()] = clone(m)
	r.mu.Unlock()
}

// Resolve returns the descriptor for category/variant. Unknown variants fall
// back to the category's "general" variant, then to DefaultKey. The result
// is a copy.
func (r *Registry) Resolve(category, variant string) models.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range []string{category + "/" + variant, category + "/general", DefaultKey} {
		if m, ok := r.models[key]; ok {
			return clone(m)
		}
	}
	return models.ModelDescriptor{Category: "text", Variant: "general"}
}

// Lookup returns the descriptor registered under key exactly.
func (r *Registry) Lookup(key string) (models.ModelDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[key]
	if !ok {
		return models.ModelDescriptor{}, false
	}
	return clone(m), true
}

// List returns every descriptor sorted by key.
func (r *Registry) List() []models.ModelDescriptor {
	r.mu.RLock()
	out := make([]models.ModelDescriptor, 0, len(r.models))
	for _, m := range r.models {
		out = append(out, clone(m))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func clone(m models.ModelDescriptor) models.ModelDescriptor {
	m.Capabilities = slices.Clone(m.Capabilities)
	m.Parameters = maps.Clone(m.Parameters)
	return m
}
