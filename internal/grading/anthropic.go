package grading

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Anthropic grades through the Messages API.
type Anthropic struct {
	api   *anthropic.Client
	model anthropic.Model
	key   string
}

// NewAnthropic creates an Anthropic backend. baseURL and httpClient are optional.
func NewAnthropic(apiKey, model, baseURL string, httpClient *http.Client) *Anthropic {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)
	return &Anthropic{
		api:   &client,
		model: anthropic.Model(model),
		key:   apiKey,
	}
}

func (a *Anthropic) Name() string { return ProviderAnthropic }

func (a *Anthropic) Available() bool { return a.key != "" }

func (a *Anthropic) Complete(ctx context.Context, req Request) (string, error) {
	msg, err := a.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: int64(req.MaxTokens),
		System: []anthropic.TextBlockParam{
			{Text: req.System},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", dispatchError(a.Name(), apiErr.StatusCode, err)
		}
		return "", dispatchError(a.Name(), 0, err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", dispatchError(a.Name(), 0, fmt.Errorf("no text content in API response"))
}
