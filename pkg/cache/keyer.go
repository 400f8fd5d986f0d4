package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Key derives the semantic cache key for an operation. The input is
// whitespace-normalized when it is a string; params are canonicalized so map
// ordering never changes the key.
func Key(operation string, input any, params map[string]any) (string, error) {
	if s, ok := input.(string); ok {
		input = strings.Join(strings.Fields(s), " ")
	}
	in, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}
	p, err := canonicalize(toAny(params))
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize params: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(operation))
	h.Write([]byte{0})
	h.Write(in)
	h.Write([]byte{0})
	h.Write(p)
	return operation + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// ContentHash is the key for pure functions of a text input.
func ContentHash(namespace, content string) string {
	sum := sha256.Sum256([]byte(content))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

func toAny(m map[string]any) any {
	if m == nil {
		return nil
	}
	return m
}

// canonicalize produces a deterministic JSON representation of v.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		// Structs and typed maps round-trip through any so nested maps are
		// sorted as well.
		if len(raw) > 0 && (raw[0] == '{' || raw[0] == '[') {
			var generic any
			if err := json.Unmarshal(raw, &generic); err != nil {
				return nil, err
			}
			switch g := generic.(type) {
			case map[string]any:
				return canonicalizeMap(g)
			case []any:
				return canonicalizeSlice(g)
			}
		}
		return raw, nil
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')
	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}
		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')
	return result, nil
}
