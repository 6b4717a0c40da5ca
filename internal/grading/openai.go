package grading

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

// OpenAI grades through the Responses API.
type OpenAI struct {
	client openai.Client
	model  string
	key    string
}

// NewOpenAI creates an OpenAI backend. baseURL and httpClient are optional.
func NewOpenAI(apiKey, model, baseURL string, httpClient *http.Client) *OpenAI {
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
	return &OpenAI{
		client: openai.NewClient(opts...),
		model:  model,
		key:    apiKey,
	}
}

func (o *OpenAI) Name() string { return ProviderOpenAI }

func (o *OpenAI) Available() bool { return o.key != "" }

func (o *OpenAI) Complete(ctx context.Context, req Request) (string, error) {
	params := responses.ResponseNewParams{
		Model:        o.model,
		Instructions: openai.String(req.System),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Prompt),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(req.MaxTokens))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", dispatchError(o.Name(), apiErr.StatusCode, err)
		}
		return "", dispatchError(o.Name(), 0, err)
	}
	if msg := strings.TrimSpace(resp.Error.Message); msg != "" {
		return "", dispatchError(o.Name(), 0, fmt.Errorf("response failed: %s", msg))
	}

	out := strings.TrimSpace(resp.OutputText())
	if out == "" {
		return "", dispatchError(o.Name(), 0, fmt.Errorf("response did not contain output text"))
	}
	return out, nil
}
