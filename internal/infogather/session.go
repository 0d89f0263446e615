package infogather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"

	"genai-demos/internal/llm"
)

const (
	greeting        = "Hi there! I'll help you fill out some information. Let's start by getting your name. What should I call you?"
	resetGreeting   = "Let's start over! What's your name?"
	fallbackMessage = "I'm having trouble processing your response. Let's try again."
	missingMessage  = "I didn't get that. Could you please try again?"
)

var (
	// ErrInvalidResponse means the model reply was not the expected JSON envelope.
	ErrInvalidResponse = errors.New("invalid JSON response received from the model")
	// ErrUnavailable means the gateway call itself failed.
	ErrUnavailable = errors.New("model call failed")
)

// Chatter is the part of the gateway a gathering session needs.
type Chatter interface {
	Chat(ctx context.Context, prompt string, history llm.Conversation, opts llm.Options) llm.Result
}

// envelope is the reply shape the model is instructed to produce.
type envelope struct {
	MessageToUser string          `json:"message_to_user"`
	UpdatedJSON   json.RawMessage `json:"updated_json"`
}

// Session is the state of one gathering conversation. It is owned by the
// caller and carried between requests; nothing is kept server side.
type Session struct {
	Messages  llm.Conversation `json:"messages"`
	Collected json.RawMessage  `json:"collected"`
}

// Turn is the outcome of one Step.
type Turn struct {
	Message   string          `json:"message"`
	Collected json.RawMessage `json:"collected"`
	Raw       string          `json:"raw,omitempty"`
	Warnings  []string        `json:"warnings,omitempty"`
	Err       error           `json:"-"`
}

// NewSession starts a conversation: the form instructions followed by the
// assistant greeting, with nothing collected yet.
func NewSession(form *Form) Session {
	return Session{
		Messages: llm.Conversation{
			{Role: llm.RoleSystem, Content: form.instructions()},
			assistantTurn(greeting, emptyObject()),
		},
		Collected: emptyObject(),
	}
}

// Reset keeps the system message and re-seeds the greeting. A session that
// has lost its system message is rebuilt from form.
func (s *Session) Reset(form *Form) {
	sys, ok := s.Messages.System()
	if !ok {
		*s = NewSession(form)
		return
	}
	s.Messages = llm.Conversation{sys, assistantTurn(resetGreeting, emptyObject())}
	s.Collected = emptyObject()
}

// Step sends input with the conversation so far and folds the reply into the
// session. On any failure the previously collected data is kept and a
// fallback assistant turn is recorded so the conversation can continue.
func (s *Session) Step(ctx context.Context, chatter Chatter, form *Form, input string, opts llm.Options) Turn {
	if len(s.Collected) == 0 {
		s.Collected = emptyObject()
	}
	opts.JSON = true
	res := chatter.Chat(ctx, input, s.Messages, opts)
	user := llm.Message{Role: llm.RoleUser, Content: input}

	if !res.Success {
		s.Messages = s.Messages.With(user).With(assistantTurn(fallbackMessage, s.Collected))
		return Turn{
			Message:   res.Content,
			Collected: s.Collected,
			Err:       fmt.Errorf("%w: %s", ErrUnavailable, res.Content),
		}
	}

	msg, collected, err := parseReply(res.Content)
	if err != nil {
		s.Messages = s.Messages.With(user).With(assistantTurn(fallbackMessage, s.Collected))
		return Turn{
			Message:   fallbackMessage,
			Collected: s.Collected,
			Raw:       res.Content,
			Err:       err,
		}
	}
	if collected != nil {
		s.Collected = collected
	}
	s.Messages = s.Messages.With(user).With(llm.Message{Role: llm.RoleAssistant, Content: res.Content})
	return Turn{
		Message:   msg,
		Collected: s.Collected,
		Raw:       res.Content,
		Warnings:  form.Check(s.Collected),
	}
}

// parseReply extracts the user message and the updated structure. A missing
// updated_json yields nil so the caller keeps its current data.
func parseReply(content string) (string, json.RawMessage, error) {
	if !gjson.Valid(content) {
		return "", nil, ErrInvalidResponse
	}
	parsed := gjson.Parse(content)
	if !parsed.IsObject() {
		return "", nil, fmt.Errorf("%w: reply is not an object", ErrInvalidResponse)
	}
	msg := missingMessage
	if m := parsed.Get("message_to_user"); m.Exists() && m.Type == gjson.String {
		msg = m.String()
	}
	updated := parsed.Get("updated_json")
	if !updated.Exists() {
		return msg, nil, nil
	}
	if !updated.IsObject() {
		return "", nil, fmt.Errorf("%w: updated_json is not an object", ErrInvalidResponse)
	}
	return msg, json.RawMessage(updated.Raw), nil
}

// DisplayText returns what should be shown for a stored assistant turn: the
// message_to_user field when the content is an envelope, the content otherwise.
func DisplayText(content string) string {
	if !gjson.Valid(content) {
		return content
	}
	if m := gjson.Get(content, "message_to_user"); m.Exists() {
		return m.String()
	}
	return content
}

// Transcript is the conversation as it should be rendered.
func (s Session) Transcript() llm.Conversation {
	visible := s.Messages.Visible()
	for i, m := range visible {
		if m.Role == llm.RoleAssistant {
			visible[i].Content = DisplayText(m.Content)
		}
	}
	return visible
}

func assistantTurn(msg string, collected json.RawMessage) llm.Message {
	data, _ := json.Marshal(envelope{MessageToUser: msg, UpdatedJSON: collected})
	return llm.Message{Role: llm.RoleAssistant, Content: string(data)}
}

func emptyObject() json.RawMessage {
	return json.RawMessage(`{}`)
}

