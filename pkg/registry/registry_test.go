package registry

import (
	"testing"

	"github.com/pario-ai/orchestra/pkg/models"
)

func TestResolveFallbacks(t *testing.T) {
	r := New(nil)

	if m := r.Resolve("text", "creative"); m.Key() != "text/creative" {
		t.Errorf("expected exact match, got %s", m.Key())
	}
	if m := r.Resolve("image", "watercolor"); m.Key() != "image/general" {
		t.Errorf("expected category fallback, got %s", m.Key())
	}
	if m := r.Resolve("audio", "speech"); m.Key() != DefaultKey {
		t.Errorf("expected default fallback, got %s", m.Key())
	}
}

func TestResolveReturnsCopy(t *testing.T) {
	r := New(nil)
	m := r.Resolve("text", "general")
	m.Parameters["temperature"] = 2.0
	m.Capabilities[0] = "mutated"

	again := r.Resolve("text", "general")
	if again.Parameters["temperature"] != 0.7 || again.Capabilities[0] != CapText {
		t.Errorf("registry state was mutated: %+v", again)
	}
}

func TestOverride(t *testing.T) {
	r := New([]models.ModelDescriptor{
		{Category: "text", Variant: "general", Name: "gemini-2.0-flash", Provider: "gemini", Capabilities: []string{CapText}},
		{Category: "seo", Name: "x"},
	})
	m := r.Resolve("text", "general")
	if m.Name != "gemini-2.0-flash" || m.Provider != "gemini" {
		t.Errorf("expected override, got %+v", m)
	}
	if r.Resolve("seo", "").Name != "x" {
		t.Error("missing variant should register as general")
	}
	if len(r.List()) != len(Builtin()) {
		t.Errorf("overrides should replace, not add: %d", len(r.List()))
	}
	if _, ok := r.Lookup("analysis/general"); !ok {
		t.Error("expected builtin analysis model")
	}
	if !r.Resolve("analysis", "general").HasCapability(CapSentiment) {
		t.Error("analysis model should advertise sentiment")
	}
}
