package orchestrator

import (
	"maps"
	"strings"

	"github.com/pario-ai/orchestra/pkg/models"
)

// Public operation names. They key cache entries, metrics, audit rows,
// routes and per-operation cache TTLs.
const (
	OpGenerateText           = "generate_text"
	OpGenerateImage          = "generate_image"
	OpAnalyzeContent         = "analyze_content"
	OpGenerateSEOSuggestions = "generate_seo_suggestions"
	OpGenerateVariations     = "generate_variations"
	OpEnhanceImage           = "enhance_image"
	OpGenerateVisualization  = "generate_visualization"
	OpStreamText             = "stream_text"
)

// DefaultVariations is the number of variations generated when unset.
const DefaultVariations = 3

// Float returns a pointer to f, for optional option fields.
func Float(f float64) *float64 { return &f }

// TextOptions tune GenerateText. Zero fields take the defaults of the
// selected model descriptor (max_tokens=1000, temperature=0.7, top_p=0.9
// for text/general).
type TextOptions struct {
	// Variant selects the text descriptor: general, creative or precise.
	Variant     string
	Model       string
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	System      string
	// Params are passed to the provider as-is and override the above.
	Params map[string]any
}

func (o TextOptions) params(desc models.ModelDescriptor) map[string]any {
	p := defaults(desc)
	if o.MaxTokens > 0 {
		p["max_tokens"] = o.MaxTokens
	}
	if o.Temperature != nil {
		p["temperature"] = *o.Temperature
	}
	if o.TopP != nil {
		p["top_p"] = *o.TopP
	}
	if o.System != "" {
		p["system"] = o.System
	}
	maps.Copy(p, o.Params)
	return p
}

// ImageOptions tune GenerateImage. Defaults: size=1024x1024, n=1,
// style=natural.
type ImageOptions struct {
	Model          string
	Size           string
	N              int
	Style          string
	Quality        string
	NegativePrompt string
	Params         map[string]any
}

func (o ImageOptions) params(desc models.ModelDescriptor) map[string]any {
	p := defaults(desc)
	if o.Size != "" {
		p["size"] = o.Size
	}
	if o.N > 0 {
		p["n"] = o.N
	}
	if o.Style != "" {
		p["style"] = o.Style
	}
	if o.Quality != "" {
		p["quality"] = o.Quality
	}
	if o.NegativePrompt != "" {
		p["negative_prompt"] = o.NegativePrompt
	}
	maps.Copy(p, o.Params)
	return p
}

// EnhanceOptions tune EnhanceImage.
type EnhanceOptions struct {
	Model string
	// Operations name the enhancements, for example "upscale" or "denoise".
	// Default: ["enhance"].
	Operations []string
	Strength   *float64
	// Prompt optionally describes the desired result.
	Prompt string
	Params map[string]any
}

func (o EnhanceOptions) params(desc models.ModelDescriptor) map[string]any {
	p := defaults(desc)
	if o.Strength != nil {
		p["strength"] = *o.Strength
	}
	maps.Copy(p, o.Params)
	return p
}

func (o EnhanceOptions) operations() []string {
	if len(o.Operations) == 0 {
		return []string{"enhance"}
	}
	return o.Operations
}

// AnalysisPart is one provider-backed analysis of AnalyzeContent.
type AnalysisPart string

const (
	PartEntities     AnalysisPart = "entities"
	PartKeywords     AnalysisPart = "keywords"
	PartTopics       AnalysisPart = "topics"
	PartSentiment    AnalysisPart = "sentiment"
	PartDependencies AnalysisPart = "dependencies"
	PartPOSTags      AnalysisPart = "pos"
)

// DefaultParts are analysed when AnalyzeOptions.Parts is empty.
var DefaultParts = []AnalysisPart{PartEntities, PartKeywords, PartTopics, PartSentiment}

// AnalyzeOptions tune AnalyzeContent.
type AnalyzeOptions struct {
	Model string
	Parts []AnalysisPart
	// SkipMetrics omits the local readability report.
	SkipMetrics bool
}

func (o AnalyzeOptions) parts() []AnalysisPart {
	if len(o.Parts) == 0 {
		return DefaultParts
	}
	seen := make(map[AnalysisPart]bool, len(o.Parts))
	out := make([]AnalysisPart, 0, len(o.Parts))
	for _, p := range o.Parts {
		p = AnalysisPart(strings.ToLower(string(p)))
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// SEOOptions tune GenerateSEOSuggestions.
type SEOOptions struct {
	Model string
	// TargetKeywords are the phrases the content should rank for.
	TargetKeywords []string
	Params         map[string]any
}

// VariationOptions tune GenerateVariations. Variations default to the
// text/creative descriptor.
type VariationOptions struct {
	TextOptions
	// Count defaults to DefaultVariations.
	Count int
}

// VisualizationOptions tune GenerateVisualization. ChartType defaults to
// "bar".
type VisualizationOptions struct {
	Model     string
	ChartType string
	Title     string
	Params    map[string]any
}

func (o VisualizationOptions) params(desc models.ModelDescriptor) map[string]any {
	p := defaults(desc)
	if o.ChartType != "" {
		p["chart_type"] = o.ChartType
	}
	if o.Title != "" {
		p["title"] = o.Title
	}
	maps.Copy(p, o.Params)
	return p
}

func defaults(desc models.ModelDescriptor) map[string]any {
	p := maps.Clone(desc.Parameters)
	if p == nil {
		p = map[string]any{}
	}
	return p
}
