package normalize

// Kind discriminates Result variants.
type Kind string

const (
	KindText         Kind = "text"
	KindImage        Kind = "image"
	KindEntities     Kind = "entities"
	KindTopics       Kind = "topics"
	KindKeywords     Kind = "keywords"
	KindSentiment    Kind = "sentiment"
	KindDependencies Kind = "dependencies"
	KindPOSTags      Kind = "pos_tags"
	KindGeneric      Kind = "generic"
)

// Result is a normalized provider answer. The set of implementations is
// closed.
type Result interface {
	Kind() Kind
	result()
}

// TextResult is generated text with unsafe markup removed.
type TextResult struct {
	Text string `json:"text"`
}

// Image is one generated image, referenced by URL or inline base64.
type Image struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

// ImageResult lists generated images.
type ImageResult struct {
	Images  []Image `json:"images"`
	Dropped int     `json:"dropped"`
}

// Entity is a named entity mention.
type Entity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
}

// EntityList lists entities; Dropped counts invalid elements.
type EntityList struct {
	Entities []Entity `json:"entities"`
	Dropped  int      `json:"dropped"`
}

// Topic is a subject the text is about.
type Topic struct {
	Name      string  `json:"name"`
	Relevance float64 `json:"relevance"`
}

// TopicList lists topics.
type TopicList struct {
	Topics  []Topic `json:"topics"`
	Dropped int     `json:"dropped"`
}

// Keyword is a salient term.
type Keyword struct {
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}

// KeywordList lists keywords.
type KeywordList struct {
	Keywords []Keyword `json:"keywords"`
	Dropped  int       `json:"dropped"`
}

// SentimentLabel is the fixed sentiment taxonomy.
type SentimentLabel string

const (
	Negative SentimentLabel = "negative"
	Neutral  SentimentLabel = "neutral"
	Positive SentimentLabel = "positive"
)

// SentimentResult is the overall sentiment. Score is polarity mapped to
// [0,1]: 0 is most negative, 0.5 neutral, 1 most positive.
type SentimentResult struct {
	Label      SentimentLabel `json:"label"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
}

// Dependency is one arc of a dependency parse.
type Dependency struct {
	Token      string  `json:"token"`
	Head       string  `json:"head"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// DependencyList lists dependency arcs.
type DependencyList struct {
	Dependencies []Dependency `json:"dependencies"`
	Dropped      int          `json:"dropped"`
}

// POSTag is a part-of-speech tag for one token.
type POSTag struct {
	Token      string  `json:"token"`
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// POSTagList lists tagged tokens.
type POSTagList struct {
	Tokens  []POSTag `json:"tokens"`
	Dropped int      `json:"dropped"`
}

// GenericResult is any JSON object with every string sanitized.
type GenericResult struct {
	Fields map[string]any `json:"fields"`
}

func (TextResult) Kind() Kind      { return KindText }
func (ImageResult) Kind() Kind     { return KindImage }
func (EntityList) Kind() Kind      { return KindEntities }
func (TopicList) Kind() Kind       { return KindTopics }
func (KeywordList) Kind() Kind     { return KindKeywords }
func (SentimentResult) Kind() Kind { return KindSentiment }
func (DependencyList) Kind() Kind  { return KindDependencies }
func (POSTagList) Kind() Kind      { return KindPOSTags }
func (GenericResult) Kind() Kind   { return KindGeneric }

func (TextResult) result()      {}
func (ImageResult) result()     {}
func (EntityList) result()      {}
func (TopicList) result()       {}
func (KeywordList) result()     {}
func (SentimentResult) result() {}
func (DependencyList) result()  {}
func (POSTagList) result()      {}
func (GenericResult) result()   {}
