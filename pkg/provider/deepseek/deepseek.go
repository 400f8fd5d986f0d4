// Package deepseek speaks the OpenAI-compatible chat completions format used
// by DeepSeek.
package deepseek

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/provider"
)

const (
	// DefaultBaseURL is the public DeepSeek API endpoint.
	DefaultBaseURL = "https://api.deepseek.com"
	// DefaultModel is used when the provider config names none.
	DefaultModel = "deepseek-chat"
)

const jsonSystemPrompt = "You are a precise text analysis service. Answer with a single JSON document and nothing else."

// Dialect implements provider.Dialect for DeepSeek.
type Dialect struct{}

// New returns a client for cfg, filling in the public endpoint and default
// model when unset.
func New(cfg config.ProviderConfig, opts ...provider.ClientOption) (*provider.HTTPClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return provider.NewHTTPClient(cfg, Dialect{}, opts...)
}

func (Dialect) Name() string { return "deepseek" }

func (Dialect) Request(endpoint string, p provider.Payload, stream bool) (string, []byte, error) {
	prompt, err := provider.Prompt(endpoint, p)
	if err != nil {
		return "", nil, err
	}

	req := models.ChatCompletionRequest{Model: p.Model, Stream: stream}
	if provider.IsStructured(endpoint) {
		req.Messages = append(req.Messages, models.ChatMessage{Role: "system", Content: jsonSystemPrompt})
		req.ResponseFormat = &models.ResponseFormat{Type: "json_object"}
	} else if sys, ok := provider.StringParam(p.Params, "system"); ok {
		req.Messages = append(req.Messages, models.ChatMessage{Role: "system", Content: sys})
	}
	req.Messages = append(req.Messages, models.ChatMessage{Role: "user", Content: prompt})

	if n, ok := provider.IntParam(p.Params, "max_tokens"); ok {
		req.MaxTokens = &n
	}
	if v, ok := provider.FloatParam(p.Params, "temperature"); ok {
		req.Temperature = &v
	}
	if v, ok := provider.FloatParam(p.Params, "top_p"); ok {
		req.TopP = &v
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, err
	}
	return "/chat/completions", body, nil
}

func (Dialect) Authorize(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

func (Dialect) Decode(endpoint string, body []byte) (provider.Decoded, error) {
	var resp models.ChatCompletionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Decoded{}, err
	}
	if len(resp.Choices) == 0 {
		return provider.Decoded{}, fmt.Errorf("response has no choices")
	}
	data, err := provider.ModelData(endpoint, resp.Choices[0].Message.Content)
	if err != nil {
		return provider.Decoded{}, err
	}
	return provider.Decoded{Data: data, Usage: resp.Usage, Model: resp.Model}, nil
}

func (Dialect) ErrorMessage(body []byte) string {
	return provider.ErrorMessage(body)
}

var _ provider.Dialect = Dialect{}
