package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/provider"
)

func TestCallEntities(t *testing.T) {
	var got models.ChatCompletionRequest
	var gotAuth, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(models.ChatCompletionResponse{
			Model: "deepseek-chat",
			Choices: []models.Choice{{Message: models.ChatMessage{
				Role:    "assistant",
				Content: "```json\n{\"entities\":[{\"text\":\"Paris\",\"type\":\"LOCATION\",\"confidence\":0.9}]}\n```",
			}}},
			Usage: &models.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		})
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{Name: "deepseek", URL: srv.URL, APIKey: "ds-key"})
	require.NoError(t, err)

	resp, err := c.Call(context.Background(), provider.EndpointEntities, provider.Payload{Text: "I flew to Paris."}, provider.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Bearer ds-key", gotAuth)
	assert.Equal(t, "/chat/completions", gotPath)
	assert.Equal(t, DefaultModel, got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)

	assert.JSONEq(t, `{"entities":[{"text":"Paris","type":"LOCATION","confidence":0.9}]}`, string(resp.Data))
	assert.Equal(t, 15, resp.Usage.TotalTokens)
}

func TestCallTextParams(t *testing.T) {
	var got models.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}}]}`))
	}))
	defer srv.Close()

	c, err := New(config.ProviderConfig{Name: "deepseek", URL: srv.URL, APIKey: "k", Model: "deepseek-reasoner"})
	require.NoError(t, err)
	resp, err := c.Call(context.Background(), provider.EndpointText, provider.Payload{
		Prompt: "hello",
		Params: map[string]any{"max_tokens": 50, "temperature": 0.2, "system": "be brief"},
	}, provider.CallOptions{})
	require.NoError(t, err)

	assert.Equal(t, "deepseek-reasoner", got.Model)
	require.NotNil(t, got.MaxTokens)
	assert.Equal(t, 50, *got.MaxTokens)
	assert.Nil(t, got.ResponseFormat)
	assert.Equal(t, "be brief", got.Messages[0].Content)
	assert.JSONEq(t, `{"text":"hi there"}`, string(resp.Data))
}

func TestCallNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c, _ := New(config.ProviderConfig{Name: "deepseek", URL: srv.URL, APIKey: "k"})
	_, err := c.Call(context.Background(), provider.EndpointText, provider.Payload{Prompt: "x"}, provider.CallOptions{})
	assert.Equal(t, aierr.KindValidation, aierr.KindOf(err))
}

func TestRateLimitedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	c, _ := New(config.ProviderConfig{Name: "deepseek", URL: srv.URL, APIKey: "k"})
	_, err := c.Call(context.Background(), provider.EndpointText, provider.Payload{Prompt: "x"}, provider.CallOptions{})
	assert.True(t, aierr.IsRetryable(err))
	assert.Equal(t, "Rate limit reached", aierr.AsFailure(err).Message)
}
