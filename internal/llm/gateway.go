package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"genai-demos/internal/models"
)

const (
	defaultTemperature = 0.7
	defaultMaxTokens   = 4096
	defaultCallTimeout = 120 * time.Second

	extractMaxTokens = 2000

	unavailableMessage = "Sorry, I am unable to process your request at the moment."
)

// ExtractInstruction is sent with every image to transcribe.
const ExtractInstruction = "Extract all of the text and tables from this image and return them as markdown. " +
	"Reproduce tables as markdown tables and keep the reading order of the page. " +
	"If a page number is visible, begin the output with a line of the form \"Page: <number>\"."

// Resolver turns a logical model name into a descriptor.
type Resolver interface {
	Resolve(name string) (models.Descriptor, error)
}

// Options are the per-call knobs. Zero values pick the operation's defaults.
type Options struct {
	Model       string
	Temperature *float64
	MaxTokens   int
	// JSON requests structured output. The content is still returned as text.
	JSON bool
}

// Float is a helper for Options.Temperature.
func Float(v float64) *float64 { return &v }

// Gateway is the uniform call surface over all configured backends.
type Gateway struct {
	registry   Resolver
	completers map[models.Provider]Completer
	log        *slog.Logger
	timeout    time.Duration
}

// NewGateway wires a resolver to one completer per provider.
func NewGateway(registry Resolver, completers map[models.Provider]Completer, log *slog.Logger, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		registry:   registry,
		completers: completers,
		log:        log,
		timeout:    timeout,
	}
}

// Ask sends a single system + user turn with no history.
func (g *Gateway) Ask(ctx context.Context, prompt, systemPrompt string, opts Options) Result {
	msgs := Conversation{
		{Role: RoleSystem, Content: systemPrompt},
		{Role: RoleUser, Content: prompt},
	}
	return g.call(ctx, "ask", msgs, opts, false)
}

// Chat appends prompt as a new user turn to a copy of history and sends it.
func (g *Gateway) Chat(ctx context.Context, prompt string, history Conversation, opts Options) Result {
	msgs := history.With(Message{Role: RoleUser, Content: prompt})
	return g.call(ctx, "chat", msgs, opts, false)
}

// Search is Chat with live web search enabled on the backend.
func (g *Gateway) Search(ctx context.Context, prompt string, history Conversation, opts Options) Result {
	msgs := history.With(Message{Role: RoleUser, Content: prompt})
	return g.call(ctx, "search", msgs, opts, true)
}

// ExtractFromImage transcribes text and tables from an embedded image
// reference. Temperature defaults to 0 and the token limit to 2000.
func (g *Gateway) ExtractFromImage(ctx context.Context, imageURL string, opts Options) Result {
	if opts.Temperature == nil {
		opts.Temperature = Float(0)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = extractMaxTokens
	}
	msgs := Conversation{
		{Role: RoleUser, Content: ExtractInstruction, ImageURL: imageURL},
	}
	return g.call(ctx, "extract", msgs, opts, false)
}

// Summarize asks the model to summarise text using the given system prompt.
func (g *Gateway) Summarize(ctx context.Context, text, prompt string, opts Options) Result {
	return g.Ask(ctx, SummarizeInput(text), prompt, opts)
}

// Compare asks the model to compare two documents using the given system prompt.
func (g *Gateway) Compare(ctx context.Context, first, second, prompt string, opts Options) Result {
	return g.Ask(ctx, CompareInput(first, second), prompt, opts)
}

// SummarizeInput formats the user turn of a summarisation request.
func SummarizeInput(text string) string {
	return "Input:\n" + text
}

// CompareInput wraps each document, in order, in numbered start/end markers.
func CompareInput(first, second string) string {
	var b strings.Builder
	for i, doc := range []string{first, second} {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "<<<DOCUMENT %d START>>>\n%s\n<<<DOCUMENT %d END>>>", i+1, doc, i+1)
	}
	return b.String()
}

func (g *Gateway) call(ctx context.Context, op string, msgs Conversation, opts Options, webSearch bool) (res Result) {
	log := g.log.With("op", op, "requested_model", opts.Model)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("panic recovered in backend call", "panic", rec)
			res = failure(unavailableMessage)
		}
	}()

	d, err := g.registry.Resolve(opts.Model)
	if err != nil {
		log.Warn("model resolution failed", "err", err)
		return failure(fmt.Sprintf("Model %q is not available: %v", displayModel(opts.Model), err))
	}
	log = log.With("model", d.Name, "provider", d.Provider)
	if d.UsedFallback {
		log.Warn("model is using the global fallback credentials")
	}
	completer, ok := g.completers[d.Provider]
	if !ok || completer == nil {
		log.Error("no completer registered for provider")
		return failure(fmt.Sprintf("No backend is configured for provider %q.", d.Provider))
	}

	base := models.Base{Temperature: opts.Temperature, MaxTokens: opts.MaxTokens}
	if base.Temperature == nil {
		base.Temperature = Float(defaultTemperature)
	}
	if base.MaxTokens <= 0 {
		base.MaxTokens = defaultMaxTokens
	}
	req := Request{
		Messages:  msgs,
		Params:    models.BuildParams(d, base),
		JSON:      opts.JSON,
		WebSearch: webSearch,
	}

	// Callers may stop waiting, but an issued call runs to completion or timeout.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	start := time.Now()
	content, err := completer.Complete(callCtx, d, req)
	if err != nil {
		log.Error("backend call failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return failure(diagnose(err))
	}
	if strings.TrimSpace(content) == "" {
		log.Warn("backend returned empty content")
		return failure("The model returned an empty response.")
	}
	log.Info("backend call succeeded", "duration_ms", time.Since(start).Milliseconds())
	return Result{Success: true, Content: content}
}

func failure(msg string) Result {
	return Result{Success: false, Content: msg}
}

func diagnose(err error) string {
	var statusErr *StatusError
	switch {
	case errors.As(err, &statusErr):
		return fmt.Sprintf("%s The request failed with status code: %d", unavailableMessage, statusErr.Code)
	case errors.Is(err, context.DeadlineExceeded):
		return unavailableMessage + " The request timed out."
	case errors.Is(err, ErrEmptyResponse):
		return "The model returned an empty response."
	default:
		return fmt.Sprintf("%s The request failed: %v", unavailableMessage, err)
	}
}

func displayModel(name string) string {
	if strings.TrimSpace(name) == "" {
		return "default"
	}
	return name
}
