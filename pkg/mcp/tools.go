package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/orchestrator"
)

type tool struct {
	def        ToolDefinition
	needsCache bool
	handle     func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult
}

func schema(required []string, props map[string]any) map[string]any {
	m := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		m["required"] = required
	}
	return m
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func list(description string) map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": description}
}

var tools = []tool{
	{
		def: ToolDefinition{
			Name:        "orchestra_generate_text",
			Description: "Generate text from a prompt. Identical requests are served from the result cache.",
			InputSchema: schema([]string{"prompt"}, map[string]any{
				"prompt":      prop("string", "The prompt"),
				"variant":     prop("string", "Model variant: general, creative or precise (optional)"),
				"max_tokens":  prop("integer", "Maximum tokens to generate (optional, default 1000)"),
				"temperature": prop("number", "Sampling temperature (optional, default 0.7)"),
			}),
		},
		handle: handleGenerateText,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_generate_image",
			Description: "Generate images from a prompt.",
			InputSchema: schema([]string{"prompt"}, map[string]any{
				"prompt": prop("string", "The image description"),
				"size":   prop("string", "Image size (optional, default 1024x1024)"),
				"n":      prop("integer", "Number of images (optional, default 1)"),
				"style":  prop("string", "Image style (optional, default natural)"),
			}),
		},
		handle: handleGenerateImage,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_enhance_image",
			Description: "Enhance an image given by URL or base64 data.",
			InputSchema: schema([]string{"image"}, map[string]any{
				"image":      prop("string", "Image URL or base64 data"),
				"operations": list("Enhancements such as upscale or denoise (optional)"),
				"prompt":     prop("string", "Desired result (optional)"),
			}),
		},
		handle: handleEnhanceImage,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_analyze",
			Description: "Analyze text: readability metrics plus entities, keywords, topics and sentiment.",
			InputSchema: schema([]string{"text"}, map[string]any{
				"text":  prop("string", "The text to analyze"),
				"parts": list("Analyses: entities, keywords, topics, sentiment, dependencies, pos (optional)"),
			}),
		},
		handle: handleAnalyze,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_seo",
			Description: "Suggest a title, meta description, keywords and improvements for content.",
			InputSchema: schema([]string{"content"}, map[string]any{
				"content":  prop("string", "The content to optimize"),
				"keywords": list("Target keywords (optional)"),
			}),
		},
		handle: handleSEO,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_variations",
			Description: "Generate several alternative texts for a prompt.",
			InputSchema: schema([]string{"prompt"}, map[string]any{
				"prompt": prop("string", "The prompt"),
				"count":  prop("integer", "Number of variations (optional, default 3)"),
			}),
		},
		handle: handleVariations,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_visualize",
			Description: "Design a chart for a dataset.",
			InputSchema: schema(nil, map[string]any{
				"description": prop("string", "What the chart should show"),
				"data":        map[string]any{"description": "The data to chart (any JSON)"},
				"chart_type":  prop("string", "Chart type (optional, default bar)"),
			}),
		},
		handle: handleVisualize,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_health",
			Description: "Ping every configured provider.",
			InputSchema: schema(nil, map[string]any{}),
		},
		handle: handleHealth,
	},
	{
		def: ToolDefinition{
			Name:        "orchestra_cache_stats",
			Description: "Show result cache statistics (entries, hits, misses, hit rate).",
			InputSchema: schema(nil, map[string]any{}),
		},
		needsCache: true,
		handle:     handleCacheStats,
	},
}

var toolByName = func() map[string]tool {
	m := make(map[string]tool, len(tools))
	for _, t := range tools {
		m[t.def.Name] = t
	}
	return m
}()

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func invalidArgs(err error) ToolCallResult {
	return errorResult("invalid arguments: " + err.Error())
}

// failure renders an orchestration error as its structured form.
func failure(err error) ToolCallResult {
	data, merr := json.Marshal(aierr.AsFailure(err))
	if merr != nil {
		return errorResult(err.Error())
	}
	return errorResult(string(data))
}

func jsonResult(v any) ToolCallResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult("encode result: " + err.Error())
	}
	return textResult(string(data))
}

func handleGenerateText(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Prompt      string   `json:"prompt"`
		Variant     string   `json:"variant"`
		MaxTokens   int      `json:"max_tokens"`
		Temperature *float64 `json:"temperature"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.GenerateText(ctx, s.caller, args.Prompt, orchestrator.TextOptions{
		Variant:     args.Variant,
		MaxTokens:   args.MaxTokens,
		Temperature: args.Temperature,
	})
	if err != nil {
		return failure(err)
	}
	return textResult(res.Text)
}

func handleGenerateImage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Prompt string `json:"prompt"`
		Size   string `json:"size"`
		N      int    `json:"n"`
		Style  string `json:"style"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.GenerateImage(ctx, s.caller, args.Prompt, orchestrator.ImageOptions{
		Size: args.Size, N: args.N, Style: args.Style,
	})
	if err != nil {
		return failure(err)
	}
	return jsonResult(res)
}

func handleEnhanceImage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Image      string   `json:"image"`
		Operations []string `json:"operations"`
		Prompt     string   `json:"prompt"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.EnhanceImage(ctx, s.caller, args.Image, orchestrator.EnhanceOptions{
		Operations: args.Operations, Prompt: args.Prompt,
	})
	if err != nil {
		return failure(err)
	}
	return jsonResult(res)
}

func handleAnalyze(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Text  string   `json:"text"`
		Parts []string `json:"parts"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	var opts orchestrator.AnalyzeOptions
	for _, p := range args.Parts {
		opts.Parts = append(opts.Parts, orchestrator.AnalysisPart(p))
	}
	report, err := s.svc.AnalyzeContent(ctx, s.caller, args.Text, opts)
	if err != nil {
		return failure(err)
	}
	return jsonResult(report)
}

func handleSEO(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Content  string   `json:"content"`
		Keywords []string `json:"keywords"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.GenerateSEOSuggestions(ctx, s.caller, args.Content, orchestrator.SEOOptions{TargetKeywords: args.Keywords})
	if err != nil {
		return failure(err)
	}
	return jsonResult(res)
}

func handleVariations(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Prompt string `json:"prompt"`
		Count  int    `json:"count"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.GenerateVariations(ctx, s.caller, args.Prompt, orchestrator.VariationOptions{Count: args.Count})
	if err != nil {
		return failure(err)
	}
	var b strings.Builder
	for i, v := range res {
		fmt.Fprintf(&b, "%d. %s\n", i+1, v.Text)
	}
	return textResult(b.String())
}

func handleVisualize(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	var args struct {
		Description string `json:"description"`
		Data        any    `json:"data"`
		ChartType   string `json:"chart_type"`
	}
	if err := decodeArgs(raw, &args); err != nil {
		return invalidArgs(err)
	}
	res, err := s.svc.GenerateVisualization(ctx, s.caller, args.Description, args.Data,
		orchestrator.VisualizationOptions{ChartType: args.ChartType})
	if err != nil {
		return failure(err)
	}
	return jsonResult(res)
}

func handleHealth(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	report := s.svc.Health(ctx)
	res := jsonResult(report)
	res.IsError = !report.Healthy
	return res
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	return textResult(fmt.Sprintf("Cache Statistics\n"+
		"  Entries:  %d\n"+
		"  Expired:  %d\n"+
		"  Bytes:    %d\n"+
		"  Hits:     %d\n"+
		"  Misses:   %d\n"+
		"  Hit Rate: %.1f%%\n",
		stats.Total, stats.Expired, stats.Size, stats.Hits, stats.Misses, hitRate))
}
