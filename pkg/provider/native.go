package provider

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Native is the orchestration layer's own wire contract: POST
// {prompt|text|data, model, params} to <base>/<endpoint> with Bearer auth,
// answered by {data, meta:{version, processing_time}} or {error:{message}}.
type Native struct{}

func (Native) Name() string { return "native" }

func (Native) Request(endpoint string, p Payload, stream bool) (string, []byte, error) {
	if stream {
		if p.Params == nil {
			p.Params = map[string]any{}
		} else {
			params := make(map[string]any, len(p.Params)+1)
			for k, v := range p.Params {
				params[k] = v
			}
			p.Params = params
		}
		p.Params["stream"] = true
	}
	body, err := json.Marshal(p)
	if err != nil {
		return "", nil, err
	}
	return "/" + endpoint, body, nil
}

func (Native) Authorize(h http.Header, apiKey string) {
	h.Set("Authorization", "Bearer "+apiKey)
}

type nativeEnvelope struct {
	Data json.RawMessage `json:"data"`
	Meta Meta            `json:"meta"`
}

func (Native) Decode(_ string, body []byte) (Decoded, error) {
	var env nativeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Decoded{}, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return Decoded{}, fmt.Errorf("response has no data")
	}
	return Decoded{Data: env.Data, Meta: env.Meta}, nil
}

func (Native) ErrorMessage(body []byte) string {
	return ErrorMessage(body)
}

// ErrorMessage extracts the message from {error:{message}} or {error:"..."}
// bodies. It returns "" for anything else.
func ErrorMessage(body []byte) string {
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Error) == 0 || string(env.Error) == "null" {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(env.Error, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(env.Error, &s); err == nil {
		return s
	}
	return string(env.Error)
}

var _ Dialect = Native{}
