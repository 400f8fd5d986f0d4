// Package mcp serves the orchestration operations as Model Context Protocol
// tools over a line-delimited JSON-RPC 2.0 stream, typically stdio.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/normalize"
	"github.com/pario-ai/orchestra/pkg/orchestrator"
)

// Orchestrator is the subset of *orchestrator.Service the tools call.
type Orchestrator interface {
	GenerateText(ctx context.Context, caller, prompt string, opts orchestrator.TextOptions) (normalize.TextResult, error)
	GenerateImage(ctx context.Context, caller, prompt string, opts orchestrator.ImageOptions) (normalize.ImageResult, error)
	EnhanceImage(ctx context.Context, caller, image string, opts orchestrator.EnhanceOptions) (normalize.ImageResult, error)
	AnalyzeContent(ctx context.Context, caller, text string, opts orchestrator.AnalyzeOptions) (*orchestrator.AnalysisReport, error)
	GenerateSEOSuggestions(ctx context.Context, caller, content string, opts orchestrator.SEOOptions) (*orchestrator.SEOSuggestions, error)
	GenerateVariations(ctx context.Context, caller, prompt string, opts orchestrator.VariationOptions) ([]normalize.TextResult, error)
	GenerateVisualization(ctx context.Context, caller, description string, data any, opts orchestrator.VisualizationOptions) (*orchestrator.Visualization, error)
	Health(ctx context.Context) orchestrator.HealthReport
}

var _ Orchestrator = (*orchestrator.Service)(nil)

// CacheStatter reports result cache statistics.
type CacheStatter interface {
	Stats(ctx context.Context) (models.CacheStats, error)
}

// Server is a minimal MCP server.
type Server struct {
	svc     Orchestrator
	cache   CacheStatter
	caller  string
	version string
	log     logging.Sink
}

// Option customizes a Server.
type Option func(*Server)

// WithCache enables the cache statistics tool.
func WithCache(c CacheStatter) Option { return func(s *Server) { s.cache = c } }

// WithCaller sets the rate limit identity of tool calls. Default "mcp".
func WithCaller(caller string) Option { return func(s *Server) { s.caller = caller } }

// WithLogger sets the log sink for write failures.
func WithLogger(l logging.Sink) Option { return func(s *Server) { s.log = l } }

// New creates a Server over svc.
func New(svc Orchestrator, version string, opts ...Option) *Server {
	s := &Server{svc: svc, caller: "mcp", version: version}
	for _, opt := range opts {
		opt(s)
	}
	s.log = logging.OrNop(s.log)
	return s
}

// Run reads requests from r line by line and writes responses to w. It
// blocks until r is exhausted or ctx is canceled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 8*1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{JSONRPC: "2.0", Error: &RPCError{Code: CodeParseError, Message: "parse error"}})
			continue
		}
		if resp := s.dispatch(ctx, &req); resp != nil {
			s.write(w, *resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return s.reply(req, InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      ServerInfo{Name: "orchestra", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return s.reply(req, map[string]any{})
	case "tools/list":
		return s.reply(req, ToolsListResult{Tools: s.tools()})
	case "tools/call":
		return s.call(ctx, req)
	default:
		if len(req.ID) == 0 {
			return nil
		}
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
		}
	}
}

func (s *Server) call(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return &Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidParams, Message: "invalid params"},
		}
	}
	t, ok := toolByName[params.Name]
	if !ok || (t.needsCache && s.cache == nil) {
		return s.reply(req, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return s.reply(req, t.handle(ctx, s, params.Arguments))
}

func (s *Server) tools() []ToolDefinition {
	out := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		if t.needsCache && s.cache == nil {
			continue
		}
		out = append(out, t.def)
	}
	return out
}

func (s *Server) reply(req *Request, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: req.ID, Result: result}
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Log(logging.LevelError, "mcp: marshal response", logging.Fields{"error": err})
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.log.Log(logging.LevelError, "mcp: write response", logging.Fields{"error": err})
	}
}
