// Package normalize turns provider payloads into the stable result schema.
// Malformed elements inside a batch are dropped and counted; only a payload
// whose overall shape is wrong fails.
package normalize

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/pario-ai/orchestra/pkg/aierr"
	"github.com/pario-ai/orchestra/pkg/logging"
	"github.com/pario-ai/orchestra/pkg/markup"
)

// Field aliases accepted from providers, in order of preference.
var (
	textKeys       = []string{"text", "name", "entity", "word"}
	typeKeys       = []string{"type", "label", "category"}
	topicKeys      = []string{"name", "topic", "label", "text"}
	keywordKeys    = []string{"text", "keyword", "term", "name"}
	tokenKeys      = []string{"token", "word", "text"}
	headKeys       = []string{"head", "governor", "parent"}
	relationKeys   = []string{"relation", "dep", "deprel", "label"}
	tagKeys        = []string{"tag", "pos", "upos", "xpos"}
	confidenceKeys = []string{"confidence", "score", "probability", "salience"}
	relevanceKeys  = []string{"relevance", "score", "weight", "confidence", "salience"}
)

// Normalizer converts raw provider data into Result values. The zero value
// is usable.
type Normalizer struct {
	log logging.Sink
}

// New creates a Normalizer that reports dropped elements to log.
func New(log logging.Sink) *Normalizer {
	return &Normalizer{log: logging.OrNop(log)}
}

// Process dispatches on kind.
func (n *Normalizer) Process(kind Kind, raw json.RawMessage) (Result, error) {
	switch kind {
	case KindText:
		return n.ProcessText(raw)
	case KindImage:
		return n.ProcessImage(raw)
	case KindEntities:
		return n.ProcessEntities(raw)
	case KindTopics:
		return n.ProcessTopics(raw)
	case KindKeywords:
		return n.ProcessKeywords(raw)
	case KindSentiment:
		return n.ProcessSentiment(raw)
	case KindDependencies:
		return n.ProcessDependencies(raw)
	case KindPOSTags:
		return n.ProcessPOSTags(raw)
	default:
		return n.ProcessGeneric(raw)
	}
}

// ProcessEntities requires text and type on every entity.
func (n *Normalizer) ProcessEntities(raw json.RawMessage) (Result, error) {
	items, err := list(raw, "entities", "ner")
	if err != nil {
		return nil, err
	}
	out := EntityList{Entities: []Entity{}}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out.Dropped++
			continue
		}
		text, ok1 := field(m, textKeys)
		typ, ok2 := field(m, typeKeys)
		conf, ok3 := score(m, confidenceKeys)
		if !ok1 || !ok2 || !ok3 {
			out.Dropped++
			continue
		}
		out.Entities = append(out.Entities, Entity{Text: text, Type: typ, Confidence: conf})
	}
	n.dropped(KindEntities, out.Dropped)
	return out, nil
}

// ProcessTopics accepts objects or bare strings.
func (n *Normalizer) ProcessTopics(raw json.RawMessage) (Result, error) {
	items, err := list(raw, "topics", "categories")
	if err != nil {
		return nil, err
	}
	out := TopicList{Topics: []Topic{}}
	for _, item := range items {
		name, rel, ok := named(item, topicKeys)
		if !ok {
			out.Dropped++
			continue
		}
		out.Topics = append(out.Topics, Topic{Name: name, Relevance: rel})
	}
	n.dropped(KindTopics, out.Dropped)
	return out, nil
}

// ProcessKeywords accepts objects or bare strings.
func (n *Normalizer) ProcessKeywords(raw json.RawMessage) (Result, error) {
	items, err := list(raw, "keywords", "keyphrases")
	if err != nil {
		return nil, err
	}
	out := KeywordList{Keywords: []Keyword{}}
	for _, item := range items {
		text, rel, ok := named(item, keywordKeys)
		if !ok {
			out.Dropped++
			continue
		}
		out.Keywords = append(out.Keywords, Keyword{Text: text, Relevance: rel})
	}
	n.dropped(KindKeywords, out.Dropped)
	return out, nil
}

// ProcessDependencies requires token and relation; head is optional.
func (n *Normalizer) ProcessDependencies(raw json.RawMessage) (Result, error) {
	items, err := list(raw, "dependencies", "arcs")
	if err != nil {
		return nil, err
	}
	out := DependencyList{Dependencies: []Dependency{}}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out.Dropped++
			continue
		}
		token, ok1 := field(m, tokenKeys)
		rel, ok2 := field(m, relationKeys)
		conf, ok3 := score(m, confidenceKeys)
		if !ok1 || !ok2 || !ok3 {
			out.Dropped++
			continue
		}
		head, _ := field(m, headKeys)
		out.Dependencies = append(out.Dependencies, Dependency{
			Token: token, Head: head, Relation: rel, Confidence: conf,
		})
	}
	n.dropped(KindDependencies, out.Dropped)
	return out, nil
}

// ProcessPOSTags requires token and tag.
func (n *Normalizer) ProcessPOSTags(raw json.RawMessage) (Result, error) {
	items, err := list(raw, "tokens", "pos", "tags")
	if err != nil {
		return nil, err
	}
	out := POSTagList{Tokens: []POSTag{}}
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			out.Dropped++
			continue
		}
		token, ok1 := field(m, tokenKeys)
		tag, ok2 := field(m, tagKeys)
		conf, ok3 := score(m, confidenceKeys)
		if !ok1 || !ok2 || !ok3 {
			out.Dropped++
			continue
		}
		out.Tokens = append(out.Tokens, POSTag{Token: token, Tag: strings.ToUpper(tag), Confidence: conf})
	}
	n.dropped(KindPOSTags, out.Dropped)
	return out, nil
}

// ProcessSentiment maps label taxonomies and polarity scores onto the fixed
// negative/neutral/positive enum.
func (n *Normalizer) ProcessSentiment(raw json.RawMessage) (Result, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if s, ok := v.(string); ok {
		label, ok := mapLabel(s)
		if !ok {
			return nil, aierr.Validation("normalize sentiment", "unknown sentiment label %q", s)
		}
		return SentimentResult{Label: label, Score: labelScore(label)}, nil
	}
	if items, ok := v.([]any); ok {
		if v, err = topLabel(items); err != nil {
			return nil, err
		}
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, aierr.Validation("normalize sentiment", "expected object, got %s", typeName(v))
	}
	if inner, ok := m["sentiment"].(map[string]any); ok {
		m = inner
	}

	conf, ok := score(m, []string{"confidence", "probability"})
	if !ok {
		return nil, aierr.Validation("normalize sentiment", "confidence out of range")
	}

	if scores, ok := m["scores"].(map[string]any); ok {
		return fromScores(scores, conf)
	}

	res := SentimentResult{Confidence: conf}
	labelText, hasLabel := field(m, []string{"label", "sentiment", "polarity_label"})
	if label, known := mapLabel(labelText); hasLabel && known {
		// Next to a label, "score" is the classifier's confidence unless it
		// is negative; explicit polarity keys always win.
		res.Label = label
		res.Score = labelScore(label)
		polarity, hasPolarity, err := polarityOf(m, "polarity", "compound")
		if err != nil {
			return nil, err
		}
		if hasPolarity {
			res.Score = round((polarity + 1) / 2)
		}
		raw, ok := m["score"]
		if !ok || raw == nil {
			return res, nil
		}
		f, ok := number(raw)
		switch {
		case !ok || f < -1 || f > 1:
			return nil, aierr.Validation("normalize sentiment", "score must be a number in [-1,1]")
		case f < 0:
			if !hasPolarity {
				res.Score = round((f + 1) / 2)
			}
		case res.Confidence == 0:
			res.Confidence = round(f)
		}
		return res, nil
	}

	polarity, hasPolarity, err := polarityOf(m, "score", "polarity", "compound")
	if err != nil {
		return nil, err
	}
	switch {
	case hasPolarity:
		res.Label = polarityLabel(polarity)
		res.Score = round((polarity + 1) / 2)
	case hasLabel:
		return nil, aierr.Validation("normalize sentiment", "unknown sentiment label %q", labelText)
	default:
		return nil, aierr.Validation("normalize sentiment", "no label or score")
	}
	return res, nil
}

// topLabel unwraps classifier output given as a list of label/score objects,
// possibly nested once per input, and returns the highest-scoring one.
func topLabel(items []any) (any, error) {
	if len(items) == 1 {
		if inner, ok := items[0].([]any); ok {
			items = inner
		}
	}
	if len(items) == 0 {
		return nil, aierr.Validation("normalize sentiment", "empty sentiment list")
	}
	if len(items) == 1 {
		return items[0], nil
	}
	var best map[string]any
	bestScore := -1.0
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			return nil, aierr.Validation("normalize sentiment", "expected object, got %s", typeName(it))
		}
		f, ok := number(m["score"])
		if !ok || f < 0 || f > 1 {
			return nil, aierr.Validation("normalize sentiment", "list entries need a score in [0,1]")
		}
		if f > bestScore {
			best, bestScore = m, f
		}
	}
	return best, nil
}

// ProcessText sanitizes generated text, keeping a small set of formatting
// tags.
func (n *Normalizer) ProcessText(raw json.RawMessage) (Result, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	var text string
	switch t := v.(type) {
	case string:
		text = t
	case map[string]any:
		for _, k := range []string{"text", "content", "output", "completion"} {
			if s, ok := t[k].(string); ok {
				text = s
				break
			}
		}
		if text == "" {
			return nil, aierr.Validation("normalize text", "no text field in response")
		}
	default:
		return nil, aierr.Validation("normalize text", "expected string or object, got %s", typeName(v))
	}
	return TextResult{Text: strings.TrimSpace(markup.Clean(markup.SafeHTML(text)))}, nil
}

// ProcessImage keeps images with an http(s) URL or valid base64 data.
func (n *Normalizer) ProcessImage(raw json.RawMessage) (Result, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case map[string]any:
		for _, k := range []string{"images", "data", "results"} {
			if arr, ok := t[k].([]any); ok {
				items = arr
				break
			}
		}
		if items == nil {
			items = []any{t}
		}
	default:
		return nil, aierr.Validation("normalize image", "expected object or array, got %s", typeName(v))
	}

	out := ImageResult{Images: []Image{}}
	for _, item := range items {
		img, ok := image(item)
		if !ok {
			out.Dropped++
			continue
		}
		out.Images = append(out.Images, img)
	}
	n.dropped(KindImage, out.Dropped)
	if len(out.Images) == 0 {
		return nil, aierr.Validation("normalize image", "response contains no usable image")
	}
	return out, nil
}

// ProcessGeneric accepts any JSON object and sanitizes every string in it.
func (n *Normalizer) ProcessGeneric(raw json.RawMessage) (Result, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, aierr.Validation("normalize", "expected object, got %s", typeName(v))
	}
	return GenericResult{Fields: sanitizeValue(m).(map[string]any)}, nil
}

// Sanitize strips markup and control characters and collapses whitespace.
func Sanitize(s string) string {
	return strings.Join(strings.Fields(markup.Clean(markup.Text(s))), " ")
}

func (n *Normalizer) dropped(kind Kind, count int) {
	if count == 0 || n.log == nil {
		return
	}
	n.log.Log(logging.LevelDebug, "dropped invalid elements", logging.Fields{
		"kind":    string(kind),
		"dropped": count,
	})
}

func decode(raw json.RawMessage) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, aierr.Validation("normalize", "empty response")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, aierr.Validation("normalize", "invalid JSON: %v", err)
	}
	return v, nil
}

// list returns the batch held either as a bare array or under one of keys.
func list(raw json.RawMessage, keys ...string) ([]any, error) {
	v, err := decode(raw)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		for _, k := range keys {
			if arr, ok := t[k].([]any); ok {
				return arr, nil
			}
		}
		return nil, aierr.Validation("normalize", "object has none of %v", keys)
	default:
		return nil, aierr.Validation("normalize", "expected array or object, got %s", typeName(v))
	}
}

// field returns the first non-empty string under keys, sanitized.
func field(m map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		s, ok := m[k].(string)
		if !ok {
			continue
		}
		if s = Sanitize(s); s != "" {
			return s, true
		}
	}
	return "", false
}

// score returns the first score present under keys. A missing score is 0; a
// present one must be numeric and within [0,1].
func score(m map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		f, ok := number(v)
		if !ok || f < 0 || f > 1 {
			return 0, false
		}
		return f, true
	}
	return 0, true
}

// number coerces v to a finite float. NaN and infinities are rejected.
func number(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = n
	case float64:
		f = t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// named handles list items that are either a bare string or an object with a
// name and a relevance score.
func named(item any, nameKeys []string) (string, float64, bool) {
	switch t := item.(type) {
	case string:
		s := Sanitize(t)
		return s, 0, s != ""
	case map[string]any:
		name, ok := field(t, nameKeys)
		if !ok {
			return "", 0, false
		}
		rel, ok := score(t, relevanceKeys)
		if !ok {
			return "", 0, false
		}
		return name, rel, true
	default:
		return "", 0, false
	}
}

func image(item any) (Image, bool) {
	switch t := item.(type) {
	case string:
		if !httpURL(t) {
			return Image{}, false
		}
		return Image{URL: t}, true
	case map[string]any:
		var img Image
		if u, ok := t["url"].(string); ok && httpURL(u) {
			img.URL = u
		}
		if b, ok := t["b64_json"].(string); ok && b != "" {
			if _, err := base64.StdEncoding.DecodeString(b); err == nil {
				img.B64JSON = b
			}
		}
		if img.URL == "" && img.B64JSON == "" {
			return Image{}, false
		}
		if p, ok := t["revised_prompt"].(string); ok {
			img.RevisedPrompt = Sanitize(p)
		}
		return img, true
	default:
		return Image{}, false
	}
}

func httpURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func mapLabel(s string) (SentimentLabel, bool) {
	l := strings.ToLower(strings.TrimSpace(s))
	switch {
	case l == "":
		return "", false
	case strings.Contains(l, "neg"), l == "bad", l == "1 star", l == "2 stars":
		return Negative, true
	case strings.Contains(l, "pos"), l == "good", l == "4 stars", l == "5 stars":
		return Positive, true
	case strings.Contains(l, "neu"), l == "mixed", l == "3 stars":
		return Neutral, true
	default:
		return "", false
	}
}

// polarityOf reads a signed polarity in [-1,1].
func polarityOf(m map[string]any, keys ...string) (float64, bool, error) {
	for _, k := range keys {
		v, ok := m[k]
		if !ok || v == nil {
			continue
		}
		f, ok := number(v)
		if !ok || f < -1 || f > 1 {
			return 0, false, aierr.Validation("normalize sentiment", "%s must be a number in [-1,1]", k)
		}
		return f, true, nil
	}
	return 0, false, nil
}

func polarityLabel(p float64) SentimentLabel {
	switch {
	case p <= -0.25:
		return Negative
	case p >= 0.25:
		return Positive
	default:
		return Neutral
	}
}

func labelScore(l SentimentLabel) float64 {
	switch l {
	case Negative:
		return 0
	case Positive:
		return 1
	default:
		return 0.5
	}
}

// fromScores picks the label with the highest probability.
func fromScores(scores map[string]any, conf float64) (Result, error) {
	probs := map[SentimentLabel]float64{}
	for k, v := range scores {
		label, ok := mapLabel(k)
		if !ok {
			continue
		}
		f, ok := number(v)
		if !ok || f < 0 || f > 1 {
			return nil, aierr.Validation("normalize sentiment", "score for %q out of range", k)
		}
		probs[label] = f
	}
	if len(probs) == 0 {
		return nil, aierr.Validation("normalize sentiment", "scores has no known labels")
	}
	best, bestP := Neutral, -1.0
	for _, l := range []SentimentLabel{Negative, Neutral, Positive} {
		if p, ok := probs[l]; ok && p > bestP {
			best, bestP = l, p
		}
	}
	if conf == 0 {
		conf = bestP
	}
	return SentimentResult{
		Label:      best,
		Score:      round((probs[Positive] - probs[Negative] + 1) / 2),
		Confidence: conf,
	}, nil
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = sanitizeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = sanitizeValue(val)
		}
		return out
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return t
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return "unknown"
	}
}

func round(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
