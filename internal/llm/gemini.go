package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"genai-demos/internal/models"
	"genai-demos/internal/retry"
)

// GeminiCompleter calls the Gemini API (provider "gemini").
type GeminiCompleter struct {
	attempts int
	backoff  time.Duration
}

// NewGeminiCompleter builds a completer that retries transient failures
// (429 and 5xx) up to maxRetries extra times.
func NewGeminiCompleter(maxRetries int) *GeminiCompleter {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GeminiCompleter{attempts: maxRetries + 1, backoff: 500 * time.Millisecond}
}

func (c *GeminiCompleter) Complete(ctx context.Context, d models.Descriptor, req Request) (string, error) {
	if c == nil {
		return "", fmt.Errorf("nil gemini completer")
	}
	req = req.For(d)
	cfg := &genai.ClientConfig{
		APIKey:  d.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if d.Endpoint != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: d.Endpoint}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}

	contents, system, err := buildGeminiContents(req.Messages)
	if err != nil {
		return "", err
	}
	config := buildGeminiConfig(req, system)

	var resp *genai.GenerateContentResponse
	err = retry.Do(ctx, c.attempts, c.backoff, isTransient, func() error {
		var callErr error
		resp, callErr = client.Models.GenerateContent(ctx, d.Deployment, contents, config)
		return wrapGeminiError(callErr)
	})
	if err != nil {
		return "", err
	}
	return geminiText(resp)
}

func buildGeminiConfig(req Request, system *genai.Content) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if t, ok := req.Params.Temperature(); ok {
		config.Temperature = genai.Ptr(float32(t))
	}
	if _, n := req.Params.TokenLimit(); n > 0 {
		config.MaxOutputTokens = int32(min(n, math.MaxInt32))
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}
	if req.WebSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	return config
}

// buildGeminiContents splits system turns into the system instruction and
// maps assistant turns onto the "model" role.
func buildGeminiContents(msgs Conversation) ([]*genai.Content, *genai.Content, error) {
	var system *genai.Content
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, genai.NewPartFromText(m.Content))
		case RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{genai.NewPartFromText(m.Content)},
			})
		default:
			var parts []*genai.Part
			if m.Content != "" {
				parts = append(parts, genai.NewPartFromText(m.Content))
			}
			if m.ImageURL != "" {
				data, mimeType, err := decodeDataURL(m.ImageURL)
				if err != nil {
					return nil, nil, err
				}
				parts = append(parts, genai.NewPartFromBytes(data, mimeType))
			}
			contents = append(contents, &genai.Content{Role: "user", Parts: parts})
		}
	}
	return contents, system, nil
}

// decodeDataURL parses data:<mime>;base64,<payload>.
func decodeDataURL(url string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, "", fmt.Errorf("gemini backend needs an embedded data URL image")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || mimeType == "" {
		return nil, "", fmt.Errorf("data URL must be base64 encoded with a media type")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	return data, mimeType, nil
}

func wrapGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &StatusError{Code: apiErrPtr.Code, Err: err}
	}
	return fmt.Errorf("failed to generate content: %w", err)
}

func isTransient(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
}

func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", ErrEmptyResponse
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return "", ErrEmptyResponse
	}
	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return b.String(), nil
}
