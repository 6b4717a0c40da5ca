package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// maxResponseBytes bounds how much of a vendor response is read.
const maxResponseBytes = 8 << 20

// Vendor captures what differs between plain-HTTP chat vendors: where to
// post, how to authenticate, how to shape the body and where the generated
// text sits in the response envelope.
type Vendor interface {
	Name() string
	DefaultBaseURL() string
	RequiresKey() bool
	Endpoint(baseURL, model string) string
	AuthHeader(apiKey string) (name, value string)
	Body(model string, req Request) any
	TextPath() string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func chatMessages(req Request) []chatMessage {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	return append(msgs, chatMessage{Role: "user", Content: req.Prompt})
}

// OpenRouter speaks the OpenAI-compatible chat completions protocol.
type OpenRouter struct{}

func (OpenRouter) Name() string           { return ProviderOpenRouter }
func (OpenRouter) DefaultBaseURL() string { return "https://openrouter.ai/api/v1" }
func (OpenRouter) RequiresKey() bool      { return true }
func (OpenRouter) TextPath() string       { return "choices.0.message.content" }

func (OpenRouter) Endpoint(baseURL, _ string) string {
	return strings.TrimRight(baseURL, "/") + "/chat/completions"
}

func (OpenRouter) AuthHeader(apiKey string) (string, string) {
	return "Authorization", "Bearer " + apiKey
}

func (OpenRouter) Body(model string, req Request) any {
	return map[string]any{
		"model":      model,
		"messages":   chatMessages(req),
		"max_tokens": req.MaxTokens,
	}
}

// Ollama talks to a local Ollama server; no credential is needed.
type Ollama struct{}

func (Ollama) Name() string           { return ProviderOllama }
func (Ollama) DefaultBaseURL() string { return "http://localhost:11434" }
func (Ollama) RequiresKey() bool      { return false }
func (Ollama) TextPath() string       { return "message.content" }

func (Ollama) Endpoint(baseURL, _ string) string {
	return strings.TrimRight(baseURL, "/") + "/api/chat"
}

func (Ollama) AuthHeader(string) (string, string) { return "", "" }

func (Ollama) Body(model string, req Request) any {
	body := map[string]any{
		"model":    model,
		"messages": chatMessages(req),
		"stream":   false,
	}
	if req.MaxTokens > 0 {
		body["options"] = map[string]any{"num_predict": req.MaxTokens}
	}
	return body
}

// HTTPBackend dispatches requests to a Vendor over plain HTTP.
type HTTPBackend struct {
	vendor  Vendor
	baseURL string
	model   string
	apiKey  string
	client  *http.Client
}

// NewHTTPBackend creates a backend for v. An empty baseURL selects the
// vendor default.
func NewHTTPBackend(v Vendor, apiKey, model, baseURL string, httpClient *http.Client) *HTTPBackend {
	if baseURL == "" {
		baseURL = v.DefaultBaseURL()
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPBackend{vendor: v, baseURL: baseURL, model: model, apiKey: apiKey, client: httpClient}
}

func (h *HTTPBackend) Name() string { return h.vendor.Name() }

func (h *HTTPBackend) Available() bool {
	return h.apiKey != "" || !h.vendor.RequiresKey()
}

func (h *HTTPBackend) Complete(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(h.vendor.Body(h.model, req))
	if err != nil {
		return "", fmt.Errorf("encode %s request: %w", h.Name(), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.vendor.Endpoint(h.baseURL, h.model), bytes.NewReader(payload))
	if err != nil {
		return "", dispatchError(h.Name(), 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if name, value := h.vendor.AuthHeader(h.apiKey); name != "" && h.apiKey != "" {
		httpReq.Header.Set(name, value)
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return "", dispatchError(h.Name(), 0, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", dispatchError(h.Name(), resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", dispatchError(h.Name(), resp.StatusCode, fmt.Errorf("%s", errorMessage(body, resp.Status)))
	}

	text := gjson.GetBytes(body, h.vendor.TextPath())
	if !text.Exists() || strings.TrimSpace(text.String()) == "" {
		return "", dispatchError(h.Name(), resp.StatusCode, fmt.Errorf("response has no text at %q", h.vendor.TextPath()))
	}
	return text.String(), nil
}

// errorMessage pulls a vendor error message out of body, falling back to status.
func errorMessage(body []byte, status string) string {
	for _, path := range []string{"error.message", "error", "message"} {
		if r := gjson.GetBytes(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return status
}
