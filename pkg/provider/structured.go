package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Chat-style backends have no structured NLP endpoints. They are asked to
// answer in JSON instead, using these shapes.
var instructions = map[string]string{
	EndpointEntities: `Extract the named entities from the text. Respond with JSON only, shaped as
{"entities":[{"text":string,"type":string,"confidence":number between 0 and 1}]}.`,
	EndpointKeywords: `Extract the most important keywords from the text. Respond with JSON only, shaped as
{"keywords":[{"text":string,"relevance":number between 0 and 1}]}.`,
	EndpointTopics: `Identify the main topics of the text. Respond with JSON only, shaped as
{"topics":[{"name":string,"relevance":number between 0 and 1}]}.`,
	EndpointSentiment: `Classify the overall sentiment of the text. Respond with JSON only, shaped as
{"label":"negative"|"neutral"|"positive","score":number between -1 and 1,"confidence":number between 0 and 1}.`,
	EndpointDependencies: `Produce a dependency parse of the text. Respond with JSON only, shaped as
{"dependencies":[{"token":string,"head":string,"relation":string,"confidence":number between 0 and 1}]}.`,
	EndpointPOSTags: `Tag each token of the text with its part of speech. Respond with JSON only, shaped as
{"tokens":[{"token":string,"tag":string,"confidence":number between 0 and 1}]}.`,
	EndpointSEO: `Suggest search engine optimizations for the content. Respond with JSON only, shaped as
{"title":string,"meta_description":string,"keywords":[string],"suggestions":[string]}.`,
	EndpointVisualization: `Design a chart for the data described. Respond with JSON only, shaped as
{"chart_type":string,"title":string,"labels":[string],"datasets":[{"label":string,"data":[number]}]}.`,
}

// IsStructured reports whether endpoint expects a JSON document rather than
// free text.
func IsStructured(endpoint string) bool {
	_, ok := instructions[endpoint]
	return ok
}

// Prompt renders the chat prompt for endpoint. Text generation passes the
// prompt through; structured endpoints wrap the input in a JSON instruction.
// Image endpoints are unsupported.
func Prompt(endpoint string, p Payload) (string, error) {
	if endpoint == EndpointText {
		return p.Input(), nil
	}
	inst, ok := instructions[endpoint]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, endpoint)
	}

	var b strings.Builder
	b.WriteString(inst)
	if hint, ok := p.Params["chart_type"].(string); ok && endpoint == EndpointVisualization {
		fmt.Fprintf(&b, "\nUse chart_type %q.", hint)
	}
	b.WriteString("\n\nText:\n")
	b.WriteString(p.Input())
	if p.Data != nil {
		data, err := json.Marshal(p.Data)
		if err != nil {
			return "", err
		}
		b.WriteString("\n\nData:\n")
		b.Write(data)
	}
	return b.String(), nil
}

// ModelData converts a chat model's answer into the data field of the
// envelope. Structured endpoints must answer with JSON, optionally inside a
// Markdown code fence; text endpoints are wrapped as {"text": ...}.
func ModelData(endpoint, text string) (json.RawMessage, error) {
	if !IsStructured(endpoint) {
		return json.Marshal(map[string]string{"text": text})
	}
	doc := extractJSON(text)
	if doc == nil {
		return nil, fmt.Errorf("model answer is not JSON")
	}
	return doc, nil
}

func extractJSON(text string) json.RawMessage {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		s = strings.TrimSpace(rest)
	}
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return nil
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return nil
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil
	}
	return bytes.Clone(candidate)
}
