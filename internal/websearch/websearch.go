package websearch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"genai-demos/internal/llm"
)

// Searcher is the part of the gateway the agent needs.
type Searcher interface {
	Search(ctx context.Context, prompt string, history llm.Conversation, opts llm.Options) llm.Result
}

// Thread is one web search conversation. The ID identifies it to the caller
// across requests.
type Thread struct {
	ID       uuid.UUID        `json:"id"`
	Messages llm.Conversation `json:"messages"`
}

// NewThread starts a thread seeded with systemPrompt.
func NewThread(systemPrompt string) Thread {
	return Thread{
		ID:       uuid.New(),
		Messages: llm.Conversation{{Role: llm.RoleSystem, Content: systemPrompt}},
	}
}

// Agent answers prompts with a web-search-enabled model.
type Agent struct {
	searcher Searcher
	model    string
	log      *slog.Logger
}

// NewAgent binds the agent to model. An empty model uses the registry default.
func NewAgent(searcher Searcher, model string, log *slog.Logger) *Agent {
	return &Agent{searcher: searcher, model: model, log: log}
}

// Search sends prompt with the thread history and returns the thread with the
// user and assistant turns appended. The input thread is not modified. A
// failed search leaves the returned thread without the new turns.
func (a *Agent) Search(ctx context.Context, thread Thread, prompt string) (Thread, llm.Result) {
	if thread.ID == uuid.Nil {
		thread.ID = uuid.New()
	}
	res := a.searcher.Search(ctx, prompt, thread.Messages, llm.Options{Model: a.model})
	if !res.Success {
		a.log.Warn("web search failed", "thread_id", thread.ID, "result", res.Content)
		return thread, res
	}
	thread.Messages = thread.Messages.
		With(llm.Message{Role: llm.RoleUser, Content: prompt}).
		With(llm.Message{Role: llm.RoleAssistant, Content: res.Content})
	a.log.Info("web search answered", "thread_id", thread.ID, "turns", len(thread.Messages))
	return thread, res
}
