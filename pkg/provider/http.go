package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/config"
	"github.com/pario-ai/orchestra/pkg/models"
)

// Defaults for HTTPClient.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultChunkSize        = 4096
	DefaultMaxResponseBytes = 16 << 20
)

// Doer is the subset of *http.Client used by HTTPClient.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Decoded is a successful response body translated by a Dialect.
type Decoded struct {
	Data  json.RawMessage
	Meta  Meta
	Usage *models.Usage
	Model string
}

// Dialect translates between the provider-neutral payload and one backend's
// wire format.
type Dialect interface {
	// Name identifies the dialect in logs and errors.
	Name() string
	// Request returns the path (relative to the base URL) and body for
	// endpoint. Unsupported endpoints return an error wrapping ErrUnsupported.
	Request(endpoint string, p Payload, stream bool) (path string, body []byte, err error)
	// Authorize attaches credentials.
	Authorize(h http.Header, apiKey string)
	// Decode translates a 2xx body.
	Decode(endpoint string, body []byte) (Decoded, error)
	// ErrorMessage extracts an error message from body, or "" when body
	// carries no error.
	ErrorMessage(body []byte) string
}

// HTTPClient is a Client over HTTP.
type HTTPClient struct {
	name        string
	baseURL     string
	apiKey      string
	model       string
	timeout     time.Duration
	idleTimeout time.Duration
	maxBody     int64
	headers     map[string]string
	dialect     Dialect
	doer        Doer
	newID       func() string
}

// ClientOption customizes an HTTPClient.
type ClientOption func(*HTTPClient)

// WithDoer replaces the HTTP transport.
func WithDoer(d Doer) ClientOption {
	return func(c *HTTPClient) { c.doer = d }
}

// WithIDGenerator replaces the correlation id generator.
func WithIDGenerator(f func() string) ClientOption {
	return func(c *HTTPClient) { c.newID = f }
}

// NewHTTPClient builds a client for cfg speaking dialect d. A missing API key
// is reported on the first call, not here.
func NewHTTPClient(cfg config.ProviderConfig, d Dialect, opts ...ClientOption) (*HTTPClient, error) {
	if cfg.Name == "" {
		return nil, aierr.Config("provider", "provider name is required")
	}
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		return nil, aierr.Config("provider", "provider %q: url is required", cfg.Name)
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, aierr.Config("provider", "provider %q: invalid url %q", cfg.Name, cfg.URL)
	}

	c := &HTTPClient{
		name:        cfg.Name,
		baseURL:     base,
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		idleTimeout: cfg.StreamIdleTimeout,
		maxBody:     cfg.MaxResponseBytes,
		headers:     cfg.Headers,
		dialect:     d,
		doer:        http.DefaultClient,
		newID:       uuid.NewString,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxResponseBytes
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Name returns the configured provider name.
func (c *HTTPClient) Name() string { return c.name }

// Model returns the default model.
func (c *HTTPClient) Model() string { return c.model }

// Dialect returns the wire dialect.
func (c *HTTPClient) Dialect() Dialect { return c.dialect }

// Call sends one request and returns the decoded envelope.
func (c *HTTPClient) Call(ctx context.Context, endpoint string, payload Payload, opts CallOptions) (*Response, error) {
	id := c.correlationID(opts)
	timeout := c.timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, model, err := c.newRequest(reqCtx, endpoint, payload, false, opts, id)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, err, id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, c.transportError(ctx, fmt.Errorf("read response: %w", err), id)
	}
	if int64(len(body)) > c.maxBody {
		if err := c.statusError(resp.StatusCode, body[:min(len(body), 64<<10)], id); err != nil {
			return nil, err
		}
		return nil, c.tag(aierr.Validation(c.op(), "response exceeds %d bytes", c.maxBody), id)
	}
	if err := c.statusError(resp.StatusCode, body, id); err != nil {
		return nil, err
	}

	dec, err := c.dialect.Decode(endpoint, body)
	if err != nil {
		return nil, c.tag(aierr.Validation(c.op(), "unparseable response: %v", err), id)
	}
	if dec.Model != "" {
		model = dec.Model
	}

	return &Response{
		Provider:      c.name,
		Model:         model,
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		Data:          dec.Data,
		Meta:          dec.Meta,
		Usage:         dec.Usage,
		CorrelationID: id,
		Latency:       time.Since(start),
	}, nil
}

// Stream sends a streaming request and hands the raw body to fn in reads of
// at most opts.ChunkSize bytes. The chunk slice is reused between calls.
// There is no total timeout; opts.IdleTimeout (or the configured stream idle
// timeout) bounds the gap between reads.
func (c *HTTPClient) Stream(ctx context.Context, endpoint string, payload Payload, fn func(chunk []byte) error, opts CallOptions) error {
	id := c.correlationID(opts)
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req, _, err := c.newRequest(reqCtx, endpoint, payload, true, opts, id)
	if err != nil {
		return err
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return c.transportError(ctx, err, id)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return c.statusError(resp.StatusCode, body, id)
	}

	idle := c.idleTimeout
	if opts.IdleTimeout > 0 {
		idle = opts.IdleTimeout
	}
	var timer *time.Timer
	if idle > 0 {
		timer = time.AfterFunc(idle, cancel)
		defer timer.Stop()
	}

	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}
	buf := make([]byte, size)
	for {
		n, err := resp.Body.Read(buf)
		if timer != nil {
			timer.Reset(idle)
		}
		if n > 0 {
			if cbErr := fn(buf[:n]); cbErr != nil {
				return cbErr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return c.tag(aierr.Wrap(aierr.KindCanceled, c.op(), ctx.Err()), id)
			}
			e := aierr.Wrap(aierr.KindProvider, c.op(), fmt.Errorf("stream read: %w", err))
			if reqCtx.Err() != nil {
				e.Message = fmt.Sprintf("stream idle for %s", idle)
			}
			return c.tag(e, id)
		}
	}
}

// Ping checks that the base URL answers without a server error.
func (c *HTTPClient) Ping(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return aierr.Config(c.op(), "build request: %v", err)
	}
	id := c.newID()
	req.Header.Set(CorrelationHeader, id)
	c.dialect.Authorize(req.Header, c.apiKey)

	resp, err := c.doer.Do(req)
	if err != nil {
		return c.transportError(ctx, err, id)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	if resp.StatusCode >= 500 {
		return c.tag(aierr.Provider(c.op(), resp.StatusCode, ""), id)
	}
	return nil
}

func (c *HTTPClient) newRequest(ctx context.Context, endpoint string, payload Payload, stream bool, opts CallOptions, id string) (*http.Request, string, error) {
	if c.apiKey == "" {
		return nil, "", c.tag(aierr.Config(c.op(), "missing API key"), id)
	}
	if payload.Model == "" {
		payload.Model = c.model
	}

	path, body, err := c.dialect.Request(endpoint, payload, stream)
	if err != nil {
		if errors.Is(err, ErrUnsupported) {
			e := aierr.Wrap(aierr.KindConfig, c.op(), err)
			return nil, "", c.tag(e, id)
		}
		return nil, "", c.tag(aierr.Validation(c.op(), "encode request: %v", err), id)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, "", c.tag(aierr.Config(c.op(), "build request: %v", err), id)
	}
	req.Header.Set("Content-Type", "application/json")
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(CorrelationHeader, id)
	c.dialect.Authorize(req.Header, c.apiKey)
	return req, payload.Model, nil
}

func (c *HTTPClient) statusError(status int, body []byte, id string) error {
	msg := c.dialect.ErrorMessage(body)
	if status >= 200 && status < 300 && msg == "" {
		return nil
	}
	return c.tag(aierr.Provider(c.op(), status, msg), id)
}

// transportError classifies a failed round trip. Cancellation by the caller
// is not retryable; our own request timeout is.
func (c *HTTPClient) transportError(parent context.Context, err error, id string) error {
	if parent.Err() != nil {
		return c.tag(aierr.Wrap(aierr.KindCanceled, c.op(), parent.Err()), id)
	}
	return c.tag(aierr.Transport(c.op(), err), id)
}

func (c *HTTPClient) tag(e *aierr.Error, id string) *aierr.Error {
	e.Provider = c.name
	e.CorrelationID = id
	return e
}

func (c *HTTPClient) op() string { return c.dialect.Name() + " call" }

func (c *HTTPClient) correlationID(opts CallOptions) string {
	if opts.CorrelationID != "" {
		return opts.CorrelationID
	}
	return c.newID()
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Pinger = (*HTTPClient)(nil)
)
