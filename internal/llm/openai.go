package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"genai-demos/internal/models"
)

// webSearchContextSize is how much retrieved web context the backend may use.
const webSearchContextSize = "medium"

// OpenAICompleter calls the Chat Completions API of Azure OpenAI
// (provider "azure") or any OpenAI-compatible endpoint (provider "openai").
type OpenAICompleter struct {
	maxRetries int
	httpClient *http.Client
}

// NewOpenAICompleter builds a completer. httpClient may be nil.
func NewOpenAICompleter(maxRetries int, httpClient *http.Client) *OpenAICompleter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &OpenAICompleter{maxRetries: maxRetries, httpClient: httpClient}
}

func (c *OpenAICompleter) Complete(ctx context.Context, d models.Descriptor, req Request) (string, error) {
	if c == nil {
		return "", fmt.Errorf("nil openai completer")
	}
	cli := openai.NewClient(c.requestOptions(d)...)
	req = req.For(d)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(d.Deployment),
		Messages: buildMessages(req.Messages),
	}
	applyParams(&params, req.Params)
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if req.WebSearch {
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: webSearchContextSize,
		}
	}

	resp, err := cli.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &StatusError{Code: apiErr.StatusCode, Err: err}
		}
		return "", fmt.Errorf("openai chat request: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAICompleter) requestOptions(d models.Descriptor) []option.RequestOption {
	opts := []option.RequestOption{option.WithMaxRetries(c.maxRetries)}
	if c.httpClient != nil {
		opts = append(opts, option.WithHTTPClient(c.httpClient))
	}
	switch d.Provider {
	case models.ProviderAzure:
		opts = append(opts,
			azure.WithEndpoint(d.Endpoint, d.APIVersion),
			azure.WithAPIKey(d.APIKey),
		)
	default:
		opts = append(opts, option.WithAPIKey(d.APIKey))
		if d.Endpoint != "" {
			opts = append(opts, option.WithBaseURL(d.Endpoint))
		}
	}
	return opts
}

// applyParams copies the dialect params onto the typed request fields. Keys
// absent from p are left unset and therefore never serialised.
func applyParams(params *openai.ChatCompletionNewParams, p models.Params) {
	if t, ok := p.Temperature(); ok {
		params.Temperature = openai.Float(t)
	}
	switch key, n := p.TokenLimit(); key {
	case models.ParamMaxTokens:
		params.MaxTokens = openai.Int(n)
	case models.ParamMaxCompletionTokens:
		params.MaxCompletionTokens = openai.Int(n)
	}
}

func buildMessages(msgs Conversation) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if m.ImageURL == "" {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, 2)
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: m.ImageURL,
			}))
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}
