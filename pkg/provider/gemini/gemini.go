// Package gemini speaks the Gemini generateContent wire format.
package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/provider"
)

const (
	// DefaultBaseURL is the public Gemini API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	// DefaultAPIVersion is the API version path segment.
	DefaultAPIVersion = "v1beta"
	// DefaultModel is used when the provider config names none.
	DefaultModel = "gemini-2.0-flash"
)

// Dialect implements provider.Dialect for Gemini.
type Dialect struct {
	APIVersion string
}

// New returns a client for cfg, filling in the public endpoint and default
// model when unset.
func New(cfg config.ProviderConfig, opts ...provider.ClientOption) (*provider.HTTPClient, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return provider.NewHTTPClient(cfg, Dialect{APIVersion: DefaultAPIVersion}, opts...)
}

func (Dialect) Name() string { return "gemini" }

type part struct {
	Text string `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	TopK             int      `json:"topK,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type request struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

func (d Dialect) Request(endpoint string, p provider.Payload, stream bool) (string, []byte, error) {
	prompt, err := provider.Prompt(endpoint, p)
	if err != nil {
		return "", nil, err
	}
	if p.Model == "" {
		return "", nil, fmt.Errorf("model is required")
	}

	req := request{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	}
	if n, ok := provider.IntParam(p.Params, "max_tokens"); ok {
		req.GenerationConfig.MaxOutputTokens = n
	}
	if v, ok := provider.FloatParam(p.Params, "temperature"); ok {
		req.GenerationConfig.Temperature = &v
	}
	if v, ok := provider.FloatParam(p.Params, "top_p"); ok {
		req.GenerationConfig.TopP = &v
	}
	if n, ok := provider.IntParam(p.Params, "top_k"); ok {
		req.GenerationConfig.TopK = n
	}
	if sys, ok := provider.StringParam(p.Params, "system"); ok {
		req.SystemInstruction = &content{Parts: []part{{Text: sys}}}
	}
	if provider.IsStructured(endpoint) {
		req.GenerationConfig.ResponseMimeType = "application/json"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", nil, err
	}

	version := d.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	path := fmt.Sprintf("/%s/models/%s:generateContent", version, url.PathEscape(p.Model))
	if stream {
		path = fmt.Sprintf("/%s/models/%s:streamGenerateContent?alt=sse", version, url.PathEscape(p.Model))
	}
	return path, body, nil
}

func (Dialect) Authorize(h http.Header, apiKey string) {
	h.Set("x-goog-api-key", apiKey)
}

type response struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	ModelVersion string `json:"modelVersion,omitempty"`
}

func (Dialect) Decode(endpoint string, body []byte) (provider.Decoded, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Decoded{}, err
	}
	if len(resp.Candidates) == 0 {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return provider.Decoded{}, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return provider.Decoded{}, fmt.Errorf("response has no candidates")
	}

	var text strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	data, err := provider.ModelData(endpoint, text.String())
	if err != nil {
		return provider.Decoded{}, err
	}

	dec := provider.Decoded{
		Data:  data,
		Meta:  provider.Meta{Version: resp.ModelVersion},
		Model: resp.ModelVersion,
	}
	if u := resp.UsageMetadata; u != nil {
		dec.Usage = &models.Usage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return dec, nil
}

func (Dialect) ErrorMessage(body []byte) string {
	return provider.ErrorMessage(body)
}

var _ provider.Dialect = Dialect{}
