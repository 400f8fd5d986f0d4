// Package provider is the transport layer between the orchestrator and AI
// backends. A Client speaks one backend's wire format; HTTPClient is the
// shared implementation parameterized by a Dialect.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/pario-ai/orchestra/pkg/models"
)

// Logical endpoints. Dialects map them to concrete paths.
const (
	EndpointText          = "text/generate"
	EndpointImage         = "image/generate"
	EndpointImageEnhance  = "image/enhance"
	EndpointEntities      = "analyze/entities"
	EndpointKeywords      = "analyze/keywords"
	EndpointTopics        = "analyze/topics"
	EndpointSentiment     = "analyze/sentiment"
	EndpointDependencies  = "analyze/dependencies"
	EndpointPOSTags       = "analyze/pos"
	EndpointSEO           = "seo/suggestions"
	EndpointVisualization = "visualization/generate"
)

// CorrelationHeader carries the per-request correlation id.
const CorrelationHeader = "X-Correlation-ID"

// ErrUnsupported is wrapped by errors for endpoints a dialect cannot serve.
var ErrUnsupported = errors.New("endpoint not supported by provider")

// Payload is the provider-neutral request body.
type Payload struct {
	Prompt string         `json:"prompt,omitempty"`
	Text   string         `json:"text,omitempty"`
	Data   any            `json:"data,omitempty"`
	Model  string         `json:"model,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Input returns the primary content of the payload.
func (p Payload) Input() string {
	if p.Prompt != "" {
		return p.Prompt
	}
	return p.Text
}

// CallOptions tune a single request.
type CallOptions struct {
	// Timeout overrides the client's request timeout.
	Timeout time.Duration
	// Headers are added to the request.
	Headers map[string]string
	// CorrelationID is generated when empty.
	CorrelationID string
	// ChunkSize is the Stream read size. Default 4096.
	ChunkSize int
	// IdleTimeout aborts a Stream when no bytes arrive for this long.
	// Zero disables it.
	IdleTimeout time.Duration
}

// Meta is response metadata reported by the backend.
type Meta struct {
	Version        string  `json:"version,omitempty"`
	ProcessingTime float64 `json:"processing_time,omitempty"`
}

// Response is the provider-neutral envelope.
type Response struct {
	Provider      string
	Model         string
	StatusCode    int
	Headers       http.Header
	Body          []byte
	Data          json.RawMessage
	Meta          Meta
	Usage         *models.Usage
	CorrelationID string
	Latency       time.Duration
}

// Client issues requests to one backend.
type Client interface {
	Name() string
	Call(ctx context.Context, endpoint string, payload Payload, opts CallOptions) (*Response, error)
	Stream(ctx context.Context, endpoint string, payload Payload, fn func(chunk []byte) error, opts CallOptions) error
}

// Pinger is implemented by clients that support health checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Set is a concurrency-safe registry of clients by name.
type Set struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewSet returns a Set holding clients.
func NewSet(clients ...Client) *Set {
	s := &Set{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		s.clients[c.Name()] = c
	}
	return s
}

// Add registers c, replacing any client with the same name.
func (s *Set) Add(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients == nil {
		s.clients = make(map[string]Client)
	}
	s.clients[c.Name()] = c
}

// Get returns the client called name.
func (s *Set) Get(name string) (Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.clients))
	for n := range s.clients {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of clients.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
