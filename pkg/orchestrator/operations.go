package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/models"
	"github.com/pario-ai/orchestra/pkg/normalize"
	"github.com/pario-ai/orchestra/pkg/provider"
	"github.com/pario-ai/orchestra/pkg/router"
	"github.com/pario-ai/orchestra/pkg/telemetry"
	"github.com/pario-ai/orchestra/pkg/textmetrics"
)

// fanOut bounds concurrent provider calls within one operation.
const fanOut = 4

// GenerateText generates text for prompt.
func (s *Service) GenerateText(ctx context.Context, caller, prompt string, opts TextOptions) (normalize.TextResult, error) {
	return run(s, ctx, OpGenerateText, caller, func(ctx context.Context, rec *outcome) (normalize.TextResult, error) {
		if blank(prompt) {
			return normalize.TextResult{}, aierr.Validation(OpGenerateText, "prompt is empty")
		}
		desc := s.registry.Resolve("text", orDefault(opts.Variant, "general"))
		return s.text(ctx, rec, prompt, modelFor(opts.Model, desc), opts.params(desc))
	})
}

func (s *Service) text(ctx context.Context, rec *outcome, prompt, model string, params map[string]any) (normalize.TextResult, error) {
	res, err := s.step(ctx, rec, request{
		endpoint: provider.EndpointText,
		kind:     normalize.KindText,
		payload:  provider.Payload{Prompt: prompt, Model: model, Params: params},
	})
	if err != nil {
		return normalize.TextResult{}, err
	}
	return as[normalize.TextResult](rec.op, res)
}

// GenerateImage generates images for prompt.
func (s *Service) GenerateImage(ctx context.Context, caller, prompt string, opts ImageOptions) (normalize.ImageResult, error) {
	return run(s, ctx, OpGenerateImage, caller, func(ctx context.Context, rec *outcome) (normalize.ImageResult, error) {
		if blank(prompt) {
			return normalize.ImageResult{}, aierr.Validation(OpGenerateImage, "prompt is empty")
		}
		desc := s.registry.Resolve("image", "general")
		res, err := s.step(ctx, rec, request{
			endpoint: provider.EndpointImage,
			kind:     normalize.KindImage,
			payload:  provider.Payload{Prompt: prompt, Model: modelFor(opts.Model, desc), Params: opts.params(desc)},
		})
		if err != nil {
			return normalize.ImageResult{}, err
		}
		return nonEmptyImages(OpGenerateImage, res)
	})
}

// EnhanceImage applies opts.Operations to image, given as an http(s) URL or
// base64 data.
func (s *Service) EnhanceImage(ctx context.Context, caller, image string, opts EnhanceOptions) (normalize.ImageResult, error) {
	return run(s, ctx, OpEnhanceImage, caller, func(ctx context.Context, rec *outcome) (normalize.ImageResult, error) {
		if blank(image) {
			return normalize.ImageResult{}, aierr.Validation(OpEnhanceImage, "image is empty")
		}
		desc := s.registry.Resolve("image", "enhance")
		res, err := s.step(ctx, rec, request{
			endpoint: provider.EndpointImageEnhance,
			kind:     normalize.KindImage,
			payload: provider.Payload{
				Prompt: opts.Prompt,
				Data:   map[string]any{"image": strings.TrimSpace(image), "operations": opts.operations()},
				Model:  modelFor(opts.Model, desc),
				Params: opts.params(desc),
			},
		})
		if err != nil {
			return normalize.ImageResult{}, err
		}
		return nonEmptyImages(OpEnhanceImage, res)
	})
}

// AnalysisReport is the result of AnalyzeContent. Parts that were not
// requested are nil. Parts whose provider call failed are nil and have an
// entry in Errors.
type AnalysisReport struct {
	Metrics      *textmetrics.Report             `json:"metrics,omitempty"`
	Entities     *normalize.EntityList           `json:"entities,omitempty"`
	Keywords     *normalize.KeywordList          `json:"keywords,omitempty"`
	Topics       *normalize.TopicList            `json:"topics,omitempty"`
	Sentiment    *normalize.SentimentResult      `json:"sentiment,omitempty"`
	Dependencies *normalize.DependencyList       `json:"dependencies,omitempty"`
	POSTags      *normalize.POSTagList           `json:"pos_tags,omitempty"`
	Errors       map[AnalysisPart]*aierr.Failure `json:"errors,omitempty"`
}

var partEndpoints = map[AnalysisPart]struct {
	endpoint string
	kind     normalize.Kind
}{
	PartEntities:     {provider.EndpointEntities, normalize.KindEntities},
	PartKeywords:     {provider.EndpointKeywords, normalize.KindKeywords},
	PartTopics:       {provider.EndpointTopics, normalize.KindTopics},
	PartSentiment:    {provider.EndpointSentiment, normalize.KindSentiment},
	PartDependencies: {provider.EndpointDependencies, normalize.KindDependencies},
	PartPOSTags:      {provider.EndpointPOSTags, normalize.KindPOSTags},
}

// AnalyzeContent computes local readability metrics for text and runs the
// requested provider analyses concurrently. A failed part is reported in
// Errors; the call fails only when every requested part fails.
func (s *Service) AnalyzeContent(ctx context.Context, caller, text string, opts AnalyzeOptions) (*AnalysisReport, error) {
	return run(s, ctx, OpAnalyzeContent, caller, func(ctx context.Context, rec *outcome) (*AnalysisReport, error) {
		if blank(text) {
			return nil, aierr.Validation(OpAnalyzeContent, "text is empty")
		}
		parts := opts.parts()
		for _, p := range parts {
			if _, ok := partEndpoints[p]; !ok {
				return nil, aierr.Validation(OpAnalyzeContent, "unknown analysis part %q", p)
			}
		}

		report := &AnalysisReport{}
		if !opts.SkipMetrics {
			m := s.analyzer.Analyze(ctx, text)
			report.Metrics = &m
		}

		desc := s.registry.Resolve("analysis", "general")
		model := modelFor(opts.Model, desc)
		params := defaults(desc)

		var (
			mu   sync.Mutex
			errs = make(map[AnalysisPart]error)
			g    errgroup.Group
		)
		g.SetLimit(fanOut)
		for _, part := range parts {
			ep := partEndpoints[part]
			g.Go(func() error {
				res, err := s.step(ctx, rec, request{
					endpoint: ep.endpoint,
					kind:     ep.kind,
					payload:  provider.Payload{Text: text, Model: model, Params: params},
				})
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					err = report.set(res)
				}
				if err != nil {
					errs[part] = aierr.Annotate(err, OpAnalyzeContent, "")
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(errs) == len(parts) && len(parts) > 0 {
			return nil, errs[parts[0]]
		}
		for part, err := range errs {
			if report.Errors == nil {
				report.Errors = make(map[AnalysisPart]*aierr.Failure, len(errs))
			}
			report.Errors[part] = aierr.AsFailure(err)
		}
		return report, nil
	})
}

func (r *AnalysisReport) set(res normalize.Result) error {
	switch v := res.(type) {
	case normalize.EntityList:
		r.Entities = &v
	case normalize.KeywordList:
		r.Keywords = &v
	case normalize.TopicList:
		r.Topics = &v
	case normalize.SentimentResult:
		r.Sentiment = &v
	case normalize.DependencyList:
		r.Dependencies = &v
	case normalize.POSTagList:
		r.POSTags = &v
	default:
		return aierr.Validation(OpAnalyzeContent, "unexpected %s result", res.Kind())
	}
	return nil
}

// SEOSuggestions are search optimizations for a piece of content.
type SEOSuggestions struct {
	Title           string             `json:"title"`
	MetaDescription string             `json:"meta_description"`
	Keywords        []string           `json:"keywords"`
	Suggestions     []string           `json:"suggestions"`
	Metrics         textmetrics.Report `json:"metrics"`
}

// GenerateSEOSuggestions asks the provider for a title, meta description,
// keywords and improvement suggestions, and attaches readability metrics.
func (s *Service) GenerateSEOSuggestions(ctx context.Context, caller, content string, opts SEOOptions) (*SEOSuggestions, error) {
	return run(s, ctx, OpGenerateSEOSuggestions, caller, func(ctx context.Context, rec *outcome) (*SEOSuggestions, error) {
		if blank(content) {
			return nil, aierr.Validation(OpGenerateSEOSuggestions, "content is empty")
		}
		desc := s.registry.Resolve("seo", "general")
		params := defaults(desc)
		maps.Copy(params, opts.Params)
		payload := provider.Payload{Text: content, Model: modelFor(opts.Model, desc), Params: params}
		if len(opts.TargetKeywords) > 0 {
			payload.Data = map[string]any{"target_keywords": opts.TargetKeywords}
		}

		res, err := s.step(ctx, rec, request{endpoint: provider.EndpointSEO, kind: normalize.KindGeneric, payload: payload})
		if err != nil {
			return nil, err
		}
		out := &SEOSuggestions{}
		if err := decodeGeneric(OpGenerateSEOSuggestions, res, out); err != nil {
			return nil, err
		}
		if out.Title == "" && out.MetaDescription == "" && len(out.Keywords) == 0 && len(out.Suggestions) == 0 {
			return nil, aierr.Validation(OpGenerateSEOSuggestions, "provider returned no suggestions")
		}
		out.Metrics = s.analyzer.Analyze(ctx, content)
		return out, nil
	})
}

// GenerateVariations generates opts.Count alternative texts for prompt. The
// calls run concurrently; any failure fails the whole operation.
func (s *Service) GenerateVariations(ctx context.Context, caller, prompt string, opts VariationOptions) ([]normalize.TextResult, error) {
	return run(s, ctx, OpGenerateVariations, caller, func(ctx context.Context, rec *outcome) ([]normalize.TextResult, error) {
		if blank(prompt) {
			return nil, aierr.Validation(OpGenerateVariations, "prompt is empty")
		}
		count := opts.Count
		if count <= 0 {
			count = DefaultVariations
		}
		desc := s.registry.Resolve("text", orDefault(opts.Variant, "creative"))
		model := modelFor(opts.Model, desc)
		base := opts.params(desc)

		out := make([]normalize.TextResult, count)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(fanOut)
		for i := range count {
			params := maps.Clone(base)
			params["variation"] = i + 1
			g.Go(func() error {
				res, err := s.text(gctx, rec, prompt, model, params)
				if err != nil {
					return err
				}
				out[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

// Dataset is one data series of a chart.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Visualization is a chart specification.
type Visualization struct {
	ChartType string    `json:"chart_type"`
	Title     string    `json:"title"`
	Labels    []string  `json:"labels"`
	Datasets  []Dataset `json:"datasets"`
}

// GenerateVisualization asks the provider to design a chart for data as
// described by description. Datasets whose length does not match the labels
// are dropped.
func (s *Service) GenerateVisualization(ctx context.Context, caller, description string, data any, opts VisualizationOptions) (*Visualization, error) {
	return run(s, ctx, OpGenerateVisualization, caller, func(ctx context.Context, rec *outcome) (*Visualization, error) {
		if blank(description) && data == nil {
			return nil, aierr.Validation(OpGenerateVisualization, "description and data are empty")
		}
		desc := s.registry.Resolve("visualization", "general")
		params := opts.params(desc)

		res, err := s.step(ctx, rec, request{
			endpoint: provider.EndpointVisualization,
			kind:     normalize.KindGeneric,
			payload:  provider.Payload{Text: description, Data: data, Model: modelFor(opts.Model, desc), Params: params},
		})
		if err != nil {
			return nil, err
		}
		var raw struct {
			ChartType string           `json:"chart_type"`
			Title     string           `json:"title"`
			Labels    []string         `json:"labels"`
			Datasets  []map[string]any `json:"datasets"`
		}
		if err := decodeGeneric(OpGenerateVisualization, res, &raw); err != nil {
			return nil, err
		}

		v := &Visualization{ChartType: raw.ChartType, Title: raw.Title, Labels: raw.Labels}
		if v.ChartType == "" {
			v.ChartType, _ = params["chart_type"].(string)
		}
		if v.Title == "" {
			v.Title = opts.Title
		}
		for _, d := range raw.Datasets {
			ds, ok := dataset(d)
			if !ok || (len(v.Labels) > 0 && len(ds.Data) != len(v.Labels)) {
				s.metrics.Dropped("visualization", 1)
				continue
			}
			v.Datasets = append(v.Datasets, ds)
		}
		if len(v.Datasets) == 0 {
			return nil, aierr.Validation(OpGenerateVisualization, "provider returned no usable datasets")
		}
		return v, nil
	})
}

func dataset(m map[string]any) (Dataset, bool) {
	label, _ := m["label"].(string)
	values, ok := m["data"].([]any)
	if !ok || len(values) == 0 {
		return Dataset{}, false
	}
	ds := Dataset{Label: label, Data: make([]float64, 0, len(values))}
	for _, v := range values {
		f, ok := toFloat(v)
		if !ok {
			return Dataset{}, false
		}
		ds.Data = append(ds.Data, f)
	}
	return ds, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// StreamText streams generated text for prompt to fn. Streams are neither
// cached nor retried; a provider that fails before delivering the first
// chunk falls back to the next route.
func (s *Service) StreamText(ctx context.Context, caller, prompt string, opts TextOptions, fn func(chunk []byte) error) error {
	_, err := run(s, ctx, OpStreamText, caller, func(ctx context.Context, rec *outcome) (struct{}, error) {
		if blank(prompt) {
			return struct{}{}, aierr.Validation(OpStreamText, "prompt is empty")
		}
		desc := s.registry.Resolve("text", orDefault(opts.Variant, "general"))
		routes, err := s.router.Resolve(OpStreamText, modelFor(opts.Model, desc))
		if err != nil {
			return struct{}{}, aierr.Config(OpStreamText, "%v", err)
		}
		s.record(ctx, rec)

		params := opts.params(desc)
		var lastErr error
		for _, route := range routes {
			client, ok := s.clients.Get(route.Provider.Name)
			if !ok {
				continue
			}
			rec.attempt(client.Name(), route.Model)
			started := false
			cctx, span := s.tracer.StartCall(ctx, client.Name(), provider.EndpointText, 1)
			err := safeStream(cctx, client, provider.Payload{Prompt: prompt, Model: route.Model, Params: params},
				provider.CallOptions{IdleTimeout: route.Provider.StreamIdleTimeout},
				func(chunk []byte) error {
					started = true
					return fn(chunk)
				})
			telemetry.End(span, err)
			s.metrics.ProviderCall(client.Name(), outcomeLabel(err))
			if err == nil {
				return struct{}{}, nil
			}
			lastErr = err
			if started || ctx.Err() != nil || !router.ShouldFallback(err) {
				break
			}
		}
		if lastErr == nil {
			lastErr = aierr.Config(OpStreamText, "no provider client available")
		}
		return struct{}{}, lastErr
	})
	return err
}

func safeStream(ctx context.Context, c provider.Client, p provider.Payload, opts provider.CallOptions, fn func([]byte) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &aierr.Error{
				Kind:     aierr.KindProvider,
				Op:       provider.EndpointText,
				Provider: c.Name(),
				Message:  "provider client panicked",
				Err:      fmt.Errorf("panic: %v", r),
			}
		}
	}()
	return c.Stream(ctx, provider.EndpointText, p, fn, opts)
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// modelFor picks the model sent to providers: an explicit request wins,
// then a descriptor bound to a concrete provider model. Otherwise the
// provider's configured default applies.
func modelFor(requested string, desc models.ModelDescriptor) string {
	if requested != "" {
		return requested
	}
	if desc.Provider != "" {
		return desc.Name
	}
	return ""
}

func as[T normalize.Result](op string, r normalize.Result) (T, error) {
	v, ok := r.(T)
	if !ok {
		var zero T
		return zero, aierr.Validation(op, "unexpected %s result", r.Kind())
	}
	return v, nil
}

func nonEmptyImages(op string, r normalize.Result) (normalize.ImageResult, error) {
	img, err := as[normalize.ImageResult](op, r)
	if err != nil {
		return img, err
	}
	if len(img.Images) == 0 {
		return img, aierr.Validation(op, "provider returned no usable images (%d dropped)", img.Dropped)
	}
	return img, nil
}

// decodeGeneric re-decodes the sanitized fields of a generic result into out.
func decodeGeneric(op string, r normalize.Result, out any) error {
	g, err := as[normalize.GenericResult](op, r)
	if err != nil {
		return err
	}
	data, err := json.Marshal(g.Fields)
	if err != nil {
		return aierr.Validation(op, "encode result: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return aierr.Validation(op, "unexpected result shape: %v", err)
	}
	return nil
}
