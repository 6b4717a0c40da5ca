package grading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// Gemini grades through the Gemini GenerateContent API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini backend. Without an API key the backend is
// returned unavailable rather than failing.
func NewGemini(ctx context.Context, apiKey, model, baseURL string, httpClient *http.Client) (*Gemini, error) {
	g := &Gemini{model: model}
	if apiKey == "" {
		return g, nil
	}

	cfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	g.client = client
	return g, nil
}

func (g *Gemini) Name() string { return ProviderGemini }

func (g *Gemini) Available() bool { return g.client != nil }

func (g *Gemini) Complete(ctx context.Context, req Request) (string, error) {
	if g.client == nil {
		return "", ErrUnavailable
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)},
		cfg,
	)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", dispatchError(g.Name(), apiErr.Code, err)
		}
		return "", dispatchError(g.Name(), 0, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", dispatchError(g.Name(), 0, fmt.Errorf("no text content in API response"))
	}
	return text, nil
}
