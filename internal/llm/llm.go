package llm

import (
	"context"
	"errors"
	"fmt"

	"genai-demos/internal/models"
)

// ErrEmptyResponse is returned by backends that answered without any text.
var ErrEmptyResponse = errors.New("empty response from model")

// Completer is one backend wire API. Implementations return raw errors; the
// Gateway is responsible for turning them into a Result.
type Completer interface {
	Complete(ctx context.Context, d models.Descriptor, req Request) (string, error)
}

// Request is a fully resolved call: messages in order plus dialect params.
type Request struct {
	Messages Conversation
	Params   models.Params
	// JSON asks the backend for a syntactically valid JSON document.
	JSON bool
	// WebSearch lets the backend ground its answer on a live web search.
	WebSearch bool
}

// For drops the request features d declares unsupported. The call still goes
// out; JSON falls back to whatever the prompt asks for and search to plain chat.
func (r Request) For(d models.Descriptor) Request {
	if r.JSON && !d.Supports(models.ParamResponseFormat) {
		r.JSON = false
	}
	if r.WebSearch && !d.Supports(models.ParamWebSearch) {
		r.WebSearch = false
	}
	return r
}

// Role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn. ImageURL carries an embedded image reference
// (usually a data: URL) sent alongside Content on user turns.
type Message struct {
	Role     Role   `json:"role" validate:"required,oneof=system user assistant"`
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// Conversation is an ordered list of messages. Order is never changed.
type Conversation []Message

// With returns a copy of c with msg appended; c itself is untouched.
func (c Conversation) With(msg Message) Conversation {
	out := make(Conversation, len(c), len(c)+1)
	copy(out, c)
	return append(out, msg)
}

// Visible returns the messages meant for display, skipping system turns.
func (c Conversation) Visible() Conversation {
	out := make(Conversation, 0, len(c))
	for _, m := range c {
		if m.Role != RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// System returns the first system message, if any.
func (c Conversation) System() (Message, bool) {
	for _, m := range c {
		if m.Role == RoleSystem {
			return m, true
		}
	}
	return Message{}, false
}

// Result is the only value returned across the Gateway boundary.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content"`
}

// StatusError is a transport failure with a known status code.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
