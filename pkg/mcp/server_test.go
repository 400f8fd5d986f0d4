package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/normalize"
	"github.com/pario-ai/orchestra/pkg/orchestrator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrchestrator records the last call and returns canned results.
type fakeOrchestrator struct {
	caller  string
	prompt  string
	text    normalize.TextResult
	err     error
	health  orchestrator.HealthReport
	analyze orchestrator.AnalyzeOptions
}

func (f *fakeOrchestrator) GenerateText(_ context.Context, caller, prompt string, _ orchestrator.TextOptions) (normalize.TextResult, error) {
	f.caller, f.prompt = caller, prompt
	return f.text, f.err
}

func (f *fakeOrchestrator) GenerateImage(_ context.Context, caller, prompt string, _ orchestrator.ImageOptions) (normalize.ImageResult, error) {
	f.caller, f.prompt = caller, prompt
	return normalize.ImageResult{Images: []normalize.Image{{URL: "https://img.example/1.png"}}}, f.err
}

func (f *fakeOrchestrator) EnhanceImage(_ context.Context, caller, image string, _ orchestrator.EnhanceOptions) (normalize.ImageResult, error) {
	f.caller, f.prompt = caller, image
	return normalize.ImageResult{Images: []normalize.Image{{URL: "https://img.example/2.png"}}}, f.err
}

func (f *fakeOrchestrator) AnalyzeContent(_ context.Context, caller, text string, opts orchestrator.AnalyzeOptions) (*orchestrator.AnalysisReport, error) {
	f.caller, f.prompt, f.analyze = caller, text, opts
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.AnalysisReport{
		Sentiment: &normalize.SentimentResult{Label: normalize.SentimentLabel("positive"), Score: 0.8, Confidence: 0.9},
	}, nil
}

func (f *fakeOrchestrator) GenerateSEOSuggestions(_ context.Context, caller, content string, _ orchestrator.SEOOptions) (*orchestrator.SEOSuggestions, error) {
	f.caller, f.prompt = caller, content
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.SEOSuggestions{Title: "Better Title"}, nil
}

func (f *fakeOrchestrator) GenerateVariations(_ context.Context, caller, prompt string, opts orchestrator.VariationOptions) ([]normalize.TextResult, error) {
	f.caller, f.prompt = caller, prompt
	if f.err != nil {
		return nil, f.err
	}
	out := make([]normalize.TextResult, opts.Count)
	for i := range out {
		out[i] = normalize.TextResult{Text: "variant"}
	}
	return out, nil
}

func (f *fakeOrchestrator) GenerateVisualization(_ context.Context, caller, description string, _ any, opts orchestrator.VisualizationOptions) (*orchestrator.Visualization, error) {
	f.caller, f.prompt = caller, description
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Visualization{ChartType: opts.ChartType, Labels: []string{"a"}}, nil
}

func (f *fakeOrchestrator) Health(context.Context) orchestrator.HealthReport { return f.health }

// fakeCache implements CacheStatter for testing.
type fakeCache struct {
	stats models.CacheStats
}

func (f *fakeCache) Stats(context.Context) (models.CacheStats, error) { return f.stats, nil }

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	require.NoError(t, err)
	line = append(line, '\n')

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(line), &out))

	var resp Response
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp), "raw: %s", out.String())
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, err := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	require.NoError(t, err)
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`7`),
		Method:  "tools/call",
		Params:  params,
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	require.NoError(t, json.Unmarshal(data, &result))
	require.NotEmpty(t, result.Content)
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})
	require.Nil(t, resp.Error)

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	require.NoError(t, json.Unmarshal(data, &result))

	assert.Equal(t, ProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "orchestra", result.ServerInfo.Name)
	assert.Equal(t, "test", result.ServerInfo.Version)
}

func TestToolsList(t *testing.T) {
	list := func(srv *Server) map[string]bool {
		resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"})
		require.Nil(t, resp.Error)
		data, _ := json.Marshal(resp.Result)
		var result ToolsListResult
		require.NoError(t, json.Unmarshal(data, &result))
		names := make(map[string]bool)
		for _, tool := range result.Tools {
			names[tool.Name] = true
		}
		return names
	}

	names := list(New(&fakeOrchestrator{}, "test"))
	for _, want := range []string{
		"orchestra_generate_text", "orchestra_generate_image", "orchestra_enhance_image",
		"orchestra_analyze", "orchestra_seo", "orchestra_variations",
		"orchestra_visualize", "orchestra_health",
	} {
		assert.True(t, names[want], "missing tool: %s", want)
	}
	assert.False(t, names["orchestra_cache_stats"], "cache tool listed without a cache")

	names = list(New(&fakeOrchestrator{}, "test", WithCache(&fakeCache{})))
	assert.True(t, names["orchestra_cache_stats"])
}

func TestGenerateTextTool(t *testing.T) {
	fake := &fakeOrchestrator{text: normalize.TextResult{Text: "Hello there"}}
	srv := New(fake, "test", WithCaller("agent-7"))

	result := callTool(t, srv, "orchestra_generate_text", `{"prompt":"say hi","max_tokens":50}`)
	assert.False(t, result.IsError)
	assert.Equal(t, "Hello there", result.Content[0].Text)
	assert.Equal(t, "agent-7", fake.caller)
	assert.Equal(t, "say hi", fake.prompt)
}

func TestDefaultCaller(t *testing.T) {
	fake := &fakeOrchestrator{}
	callTool(t, New(fake, "test"), "orchestra_generate_text", `{"prompt":"x"}`)
	assert.Equal(t, "mcp", fake.caller)
}

func TestToolFailureIsStructured(t *testing.T) {
	fake := &fakeOrchestrator{err: aierr.RateLimited("generate_text", "hourly limit reached")}
	srv := New(fake, "test")

	result := callTool(t, srv, "orchestra_generate_text", `{"prompt":"x"}`)
	require.True(t, result.IsError)

	var f aierr.Failure
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &f))
	assert.Equal(t, aierr.KindRateLimited, f.Kind)
	assert.Contains(t, f.Message, "hourly limit reached")
}

func TestInvalidArguments(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")
	result := callTool(t, srv, "orchestra_generate_text", `{"prompt":42}`)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "invalid arguments")
}

func TestAnalyzeTool(t *testing.T) {
	fake := &fakeOrchestrator{}
	srv := New(fake, "test")

	result := callTool(t, srv, "orchestra_analyze", `{"text":"Great product.","parts":["sentiment"]}`)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "positive")
	assert.Equal(t, []orchestrator.AnalysisPart{orchestrator.PartSentiment}, fake.analyze.Parts)
}

func TestVariationsTool(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")
	result := callTool(t, srv, "orchestra_variations", `{"prompt":"tagline","count":2}`)
	assert.Equal(t, "1. variant\n2. variant\n", result.Content[0].Text)
}

func TestImageAndStructuredTools(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")

	assert.Contains(t, callTool(t, srv, "orchestra_generate_image", `{"prompt":"a fox"}`).Content[0].Text, "1.png")
	assert.Contains(t, callTool(t, srv, "orchestra_enhance_image", `{"image":"https://x/y.png"}`).Content[0].Text, "2.png")
	assert.Contains(t, callTool(t, srv, "orchestra_seo", `{"content":"text"}`).Content[0].Text, "Better Title")
	assert.Contains(t, callTool(t, srv, "orchestra_visualize", `{"description":"sales","data":[1,2],"chart_type":"line"}`).Content[0].Text, "line")
}

func TestHealthTool(t *testing.T) {
	fake := &fakeOrchestrator{health: orchestrator.HealthReport{
		Providers: []orchestrator.ProviderHealth{{Name: "p1", Error: "connection refused"}},
	}}
	result := callTool(t, New(fake, "test"), "orchestra_health", ``)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "connection refused")
}

func TestToolCallCacheStats(t *testing.T) {
	cache := &fakeCache{stats: models.CacheStats{Total: 42, Hits: 10, Misses: 5}}
	srv := New(&fakeOrchestrator{}, "test", WithCache(cache))

	text := callTool(t, srv, "orchestra_cache_stats", ``).Content[0].Text
	assert.Contains(t, text, "42")
	assert.Contains(t, text, "66.7%")
}

func TestUnknownTool(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")
	result := callTool(t, srv, "orchestra_cache_stats", ``)
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(result.Content[0].Text, "unknown tool"))
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")

	line, _ := json.Marshal(Request{JSONRPC: "2.0", Method: "notifications/initialized"})
	line = append(line, '\n')

	var out bytes.Buffer
	require.NoError(t, srv.Run(context.Background(), bytes.NewReader(line), &out))
	assert.Zero(t, out.Len(), "expected no output for notification, got: %s", out.String())
}

func TestUnknownMethod(t *testing.T) {
	srv := New(&fakeOrchestrator{}, "test")
	resp := sendAndReceive(t, srv, Request{JSONRPC: "2.0", ID: json.RawMessage(`9`), Method: "unknown/method"})

	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}
