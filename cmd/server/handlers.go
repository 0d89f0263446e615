package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"genai-demos/internal/app"
	"genai-demos/internal/documents"
	"genai-demos/internal/httputil"
	"genai-demos/internal/infogather"
	"genai-demos/internal/llm"
	"genai-demos/internal/prompts"
	"genai-demos/internal/websearch"
)

const defaultChatSystemPrompt = "You are a helpful assistant."

// modelParams are the per-call knobs shared by every model request.
type modelParams struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `json:"max_tokens,omitempty" validate:"gte=0,lte=1000000"`
}

func (p modelParams) options() llm.Options {
	return llm.Options{Model: p.Model, Temperature: p.Temperature, MaxTokens: p.MaxTokens}
}

type echoRequest struct {
	Message string `json:"message" validate:"required"`
}

type askRequest struct {
	modelParams
	Prompt       string `json:"prompt" validate:"required"`
	SystemPrompt string `json:"system_prompt"`
}

type chatRequest struct {
	modelParams
	Prompt  string        `json:"prompt" validate:"required"`
	History []llm.Message `json:"history" validate:"dive"`
	JSON    bool          `json:"json,omitempty"`
}

type chatResponse struct {
	llm.Result
	History []llm.Message `json:"history"`
}

type summarizeRequest struct {
	modelParams
	File   string `json:"file" validate:"required_without=Text"`
	Text   string `json:"text"`
	Prompt string `json:"prompt_name"`
}

type compareRequest struct {
	modelParams
	Files  []string `json:"files" validate:"omitempty,len=2"`
	Texts  []string `json:"texts" validate:"omitempty,len=2"`
	Prompt string   `json:"prompt_name"`
}

type extractRequest struct {
	modelParams
	ImageURL string `json:"image_url" validate:"required"`
}

type saveAsRequest struct {
	Name string `json:"name" validate:"required"`
	Body string `json:"body"`
}

type saveRequest struct {
	Body string `json:"body"`
}

type infoGatherRequest struct {
	modelParams
	Session *infogather.Session `json:"session,omitempty"`
	Input   string              `json:"input"`
	Reset   bool                `json:"reset,omitempty"`
}

type infoGatherResponse struct {
	Session    infogather.Session `json:"session"`
	Turn       *infogather.Turn   `json:"turn,omitempty"`
	Transcript []llm.Message      `json:"transcript"`
	Error      string             `json:"error,omitempty"`
}

type webSearchRequest struct {
	Thread *websearch.Thread `json:"thread,omitempty"`
	Prompt string            `json:"prompt" validate:"required"`
	// PromptName picks the websearch template seeding a new thread.
	PromptName string `json:"prompt_name"`
}

type webSearchResponse struct {
	llm.Result
	Thread websearch.Thread `json:"thread"`
}

func modelsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"default": deps.Registry.DefaultName(),
			"models":  deps.Registry.List(),
		})
	}
}

func echoHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req echoRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, llm.Result{Success: true, Content: "Echo: " + req.Message})
	}
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req askRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		res := deps.Gateway.Ask(r.Context(), req.Prompt, req.SystemPrompt, req.options())
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func chatHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		history := llm.Conversation(req.History)
		if len(history) == 0 {
			history = llm.Conversation{{Role: llm.RoleSystem, Content: defaultChatSystemPrompt}}
		}
		opts := req.options()
		opts.JSON = req.JSON
		res := deps.Gateway.Chat(r.Context(), req.Prompt, history, opts)
		if res.Success {
			history = history.
				With(llm.Message{Role: llm.RoleUser, Content: req.Prompt}).
				With(llm.Message{Role: llm.RoleAssistant, Content: res.Content})
		}
		httputil.WriteJSON(w, http.StatusOK, chatResponse{Result: res, History: history})
	}
}

func summarizeHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req summarizeRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		prompt, err := loadPrompt(deps, prompts.CategorySummarize, req.Prompt)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load prompt", err, storeStatus(err))
			return
		}
		text := req.Text
		if req.File != "" {
			if text, err = deps.Library.Load(req.File); err != nil {
				httputil.Fail(deps.Log, w, "failed to load document", err, storeStatus(err))
				return
			}
		}
		res := deps.Gateway.Summarize(r.Context(), text, prompt, req.options())
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func compareHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req compareRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		if len(req.Files) != 2 && len(req.Texts) != 2 {
			httputil.Fail(deps.Log, w, "invalid request", errors.New("two files or two texts are required"), http.StatusBadRequest)
			return
		}
		prompt, err := loadPrompt(deps, prompts.CategoryComparison, req.Prompt)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load prompt", err, storeStatus(err))
			return
		}
		texts := req.Texts
		if len(req.Files) == 2 {
			texts = make([]string, 2)
			for i, file := range req.Files {
				if texts[i], err = deps.Library.Load(file); err != nil {
					httputil.Fail(deps.Log, w, "failed to load document", err, storeStatus(err))
					return
				}
			}
		}
		res := deps.Gateway.Compare(r.Context(), texts[0], texts[1], prompt, req.options())
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func extractHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extractRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		res := deps.Gateway.ExtractFromImage(r.Context(), req.ImageURL, req.options())
		httputil.WriteJSON(w, http.StatusOK, res)
	}
}

func listPromptsHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		if body, ok := prompts.Defaults[category]; ok {
			if err := deps.Prompts.EnsureCategory(category, body); err != nil {
				httputil.Fail(deps.Log, w, "failed to initialize category", err, storeStatus(err))
				return
			}
		}
		names, err := deps.Prompts.List(category)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to list prompts", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"category":  category,
			"templates": names,
		})
	}
}

func getPromptHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")
		body, err := deps.Prompts.Load(category, name)
		if err != nil {
			httputil.Fail(deps.Log, w, "failed to load prompt", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, prompts.Template{Category: category, Name: name, Body: body})
	}
}

func savePromptHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category, name := chi.URLParam(r, "category"), chi.URLParam(r, "name")
		var req saveRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		if err := deps.Prompts.Save(category, name, req.Body); err != nil {
			httputil.Fail(deps.Log, w, "failed to save prompt", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusOK, prompts.Template{Category: category, Name: name, Body: req.Body})
	}
}

func saveAsPromptHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		category := chi.URLParam(r, "category")
		var req saveAsRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		if err := deps.Prompts.SaveAs(category, req.Name, req.Body); err != nil {
			httputil.Fail(deps.Log, w, "failed to save prompt", err, storeStatus(err))
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, prompts.Template{Category: category, Name: req.Name, Body: req.Body})
	}
}

// infoGatherFormHandler returns the blank form the session fills in.
func infoGatherFormHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"form": deps.Form.Template()})
	}
}

func infoGatherHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req infoGatherRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		var session infogather.Session
		if req.Session == nil || len(req.Session.Messages) == 0 {
			session = infogather.NewSession(deps.Form)
		} else {
			session = *req.Session
		}
		if req.Reset {
			session.Reset(deps.Form)
		}

		resp := infoGatherResponse{}
		if req.Input != "" {
			turn := session.Step(r.Context(), deps.Gateway, deps.Form, req.Input, req.options())
			if turn.Err != nil {
				deps.Log.Warn("info gathering turn failed", "err", turn.Err)
				resp.Error = turn.Err.Error()
			}
			resp.Turn = &turn
		}
		resp.Session = session
		resp.Transcript = session.Transcript()
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}

func webSearchHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req webSearchRequest
		if err := httputil.Decode(r, &req); err != nil {
			httputil.Fail(deps.Log, w, "invalid request", err, httputil.DecodeStatus(err))
			return
		}
		var thread websearch.Thread
		if req.Thread != nil && len(req.Thread.Messages) > 0 {
			thread = *req.Thread
		} else {
			system, err := loadPrompt(deps, prompts.CategoryWebSearch, req.PromptName)
			if err != nil {
				httputil.Fail(deps.Log, w, "failed to load prompt", err, storeStatus(err))
				return
			}
			thread = websearch.NewThread(system)
		}
		next, res := deps.WebSearch.Search(r.Context(), thread, req.Prompt)
		httputil.WriteJSON(w, http.StatusOK, webSearchResponse{Result: res, Thread: next})
	}
}

// loadPrompt reads a template, seeding the category first so the default
// template is always available.
func loadPrompt(deps app.Deps, category, name string) (string, error) {
	if name == "" {
		name = prompts.DefaultName
	}
	if err := deps.Prompts.EnsureCategory(category, prompts.Defaults[category]); err != nil {
		return "", err
	}
	return deps.Prompts.Load(category, name)
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, prompts.ErrNotFound), errors.Is(err, documents.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, prompts.ErrCollision):
		return http.StatusConflict
	case errors.Is(err, prompts.ErrInvalidName), errors.Is(err, documents.ErrInvalidName), errors.Is(err, documents.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, documents.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}
