package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/provider"
)

func TestCallText(t *testing.T) {
	var gotPath, gotKey string
	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{
			"candidates":[{"content":{"role":"model","parts":[{"text":"Hello "},{"text":"world"}]},"finishReason":"STOP"}],
			"usageMetadata":{"promptTokenCount":3,"candidatesTokenCount":2,"totalTokenCount":5},
			"modelVersion":"gemini-2.0-flash-001"
		}`))
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{Name: "gemini", URL: srv.URL, APIKey: "g-key"})
	if err != nil {
		t.Fatal(err)
	}
	resp, err := c.Call(context.Background(), provider.EndpointText, provider.Payload{
		Prompt: "say hello",
		Params: map[string]any{"max_tokens": 1000, "temperature": 0.7, "top_p": 0.9},
	}, provider.CallOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if gotPath != "/v1beta/models/gemini-2.0-flash:generateContent" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("unexpected api key header %q", gotKey)
	}
	if gotReq.Contents[0].Parts[0].Text != "say hello" {
		t.Errorf("unexpected contents %+v", gotReq.Contents)
	}
	gc := gotReq.GenerationConfig
	if gc.MaxOutputTokens != 1000 || gc.Temperature == nil || *gc.Temperature != 0.7 || gc.TopP == nil || *gc.TopP != 0.9 {
		t.Errorf("unexpected generation config %+v", gc)
	}
	if string(resp.Data) != `{"text":"Hello world"}` {
		t.Errorf("unexpected data %s", resp.Data)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 5 {
		t.Errorf("unexpected usage %+v", resp.Usage)
	}
	if resp.Model != "gemini-2.0-flash-001" {
		t.Errorf("unexpected model %q", resp.Model)
	}
}

func TestCallStructured(t *testing.T) {
	var gotReq request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"label\":\"positive\",\"score\":0.6}"}]}}]}`))
	}))
	defer srv.Close()

	c, _ := New(config.ProviderConfig{Name: "gemini", URL: srv.URL, APIKey: "k"})
	resp, err := c.Call(context.Background(), provider.EndpointSentiment, provider.Payload{Text: "I love it"}, provider.CallOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if gotReq.GenerationConfig.ResponseMimeType != "application/json" {
		t.Error("structured endpoints should request JSON output")
	}
	if !strings.Contains(gotReq.Contents[0].Parts[0].Text, "I love it") {
		t.Error("input missing from prompt")
	}
	if string(resp.Data) != `{"label":"positive","score":0.6}` {
		t.Errorf("unexpected data %s", resp.Data)
	}
}

func TestBlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	c, _ := New(config.ProviderConfig{Name: "gemini", URL: srv.URL, APIKey: "k"})
	_, err := c.Call(context.Background(), provider.EndpointText, provider.Payload{Prompt: "x"}, provider.CallOptions{})
	if aierr.KindOf(err) != aierr.KindValidation || !strings.Contains(err.Error(), "SAFETY") {
		t.Errorf("expected validation error mentioning block reason, got %v", err)
	}
}

func TestImageUnsupported(t *testing.T) {
	c, _ := New(config.ProviderConfig{Name: "gemini", APIKey: "k"})
	_, err := c.Call(context.Background(), provider.EndpointImage, provider.Payload{Prompt: "a cat"}, provider.CallOptions{})
	if !errors.Is(err, provider.ErrUnsupported) || !errors.Is(err, aierr.ErrConfig) {
		t.Errorf("expected unsupported config error, got %v", err)
	}
}

func TestStreamPath(t *testing.T) {
	path, _, err := Dialect{}.Request(provider.EndpointText, provider.Payload{Prompt: "x", Model: "m"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if path != "/v1beta/models/m:streamGenerateContent?alt=sse" {
		t.Errorf("unexpected stream path %q", path)
	}
}
