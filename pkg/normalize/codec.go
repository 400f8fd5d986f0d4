package normalize

import (
	"encoding/json"
	"fmt"
)

type envelope struct {
	Kind   Kind            `json:"kind"`
	Result json.RawMessage `json:"result"`
}

// Marshal encodes r with its kind so Unmarshal can restore the variant.
func Marshal(r Result) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Kind: r.Kind(), Result: raw})
}

// Unmarshal decodes a value written by Marshal.
func Unmarshal(data []byte) (Result, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Kind {
	case KindText:
		return decodeAs[TextResult](env.Result)
	case KindImage:
		return decodeAs[ImageResult](env.Result)
	case KindEntities:
		return decodeAs[EntityList](env.Result)
	case KindTopics:
		return decodeAs[TopicList](env.Result)
	case KindKeywords:
		return decodeAs[KeywordList](env.Result)
	case KindSentiment:
		return decodeAs[SentimentResult](env.Result)
	case KindDependencies:
		return decodeAs[DependencyList](env.Result)
	case KindPOSTags:
		return decodeAs[POSTagList](env.Result)
	case KindGeneric:
		return decodeAs[GenericResult](env.Result)
	default:
		return nil, fmt.Errorf("normalize: unknown result kind %q", env.Kind)
	}
}

func decodeAs[T Result](raw json.RawMessage) (Result, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
