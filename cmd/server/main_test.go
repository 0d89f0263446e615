package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"genai-demos/internal/app"
	"genai-demos/internal/config"
	"genai-demos/internal/infogather"
	"genai-demos/internal/llm"
	"genai-demos/internal/logger"
	"genai-demos/internal/models"
	"genai-demos/internal/prompts"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func newTestDeps(t *testing.T, completer *llm.MockCompleter) app.Deps {
	t.Helper()
	cfg := config.LoadFrom(map[string]string{
		"OPENAI_API_KEY":      "test-key",
		"OPENAI_API_ENDPOINT": "https://example.openai.azure.com",
	})
	dir := t.TempDir()
	cfg.PromptDir = filepath.Join(dir, "prompt")
	cfg.DocumentDir = filepath.Join(dir, "markdown_output")
	cfg.MaxUploadSize = 1024 * 1024 // 1MB for tests

	deps, err := app.Assemble(cfg, map[string]string{}, logger.Discard(), map[models.Provider]llm.Completer{
		models.ProviderAzure:  completer,
		models.ProviderOpenAI: completer,
	})
	require.NoError(t, err)
	return deps
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthAndModels(t *testing.T) {
	h := newRouter(newTestDeps(t, new(llm.MockCompleter)))

	w := doJSON(t, h, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())

	w = doJSON(t, h, http.MethodGet, "/api/models", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Default string         `json:"default"`
		Models  []models.Model `json:"models"`
	}](t, w)
	assert.Equal(t, "gpt-4o", got.Default)
	require.NotEmpty(t, got.Models)
	assert.True(t, got.Models[0].Default)
}

func TestEchoHandler(t *testing.T) {
	h := newRouter(newTestDeps(t, new(llm.MockCompleter)))

	w := doJSON(t, h, http.MethodPost, "/api/echo", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, llm.Result{Success: true, Content: "Echo: hello"}, decode[llm.Result](t, w))

	w = doJSON(t, h, http.MethodPost, "/api/echo", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAskHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setup      func(*llm.MockCompleter)
		wantStatus int
		want       llm.Result
	}{
		{
			name: "success",
			body: map[string]any{"prompt": "What is Go?", "system_prompt": "Be brief."},
			setup: func(c *llm.MockCompleter) {
				c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("A language.", nil).Once()
			},
			wantStatus: http.StatusOK,
			want:       llm.Result{Success: true, Content: "A language."},
		},
		{
			name: "backend failure is a failed result",
			body: map[string]any{"prompt": "What is Go?"},
			setup: func(c *llm.MockCompleter) {
				c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
					Return("", &llm.StatusError{Code: 429, Err: errors.New("rate limited")}).Once()
			},
			wantStatus: http.StatusOK,
			want: llm.Result{
				Success: false,
				Content: "Sorry, I am unable to process your request at the moment. The request failed with status code: 429",
			},
		},
		{
			name:       "missing prompt",
			body:       map[string]any{"system_prompt": "x"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "temperature out of range",
			body:       map[string]any{"prompt": "x", "temperature": 5},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "max tokens out of range",
			body:       map[string]any{"prompt": "x", "max_tokens": int64(1) << 32},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(llm.MockCompleter)
			if tt.setup != nil {
				tt.setup(c)
			}
			h := newRouter(newTestDeps(t, c))

			w := doJSON(t, h, http.MethodPost, "/api/ask", tt.body)

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.want, decode[llm.Result](t, w))
			}
			c.AssertExpectations(t)
		})
	}
}

func TestChatHandlerSeedsAndExtendsHistory(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return len(req.Messages) == 2 && req.Messages[0].Content == defaultChatSystemPrompt
	})).Return("Hi! How can I help?", nil).Once()
	h := newRouter(newTestDeps(t, c))

	w := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{"prompt": "Hello"})

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[chatResponse](t, w)
	assert.True(t, got.Success)
	require.Len(t, got.History, 3)
	assert.Equal(t, llm.Message{Role: llm.RoleAssistant, Content: "Hi! How can I help?"}, got.History[2])
	c.AssertExpectations(t)
}

func TestChatHandlerRejectsBadRole(t *testing.T) {
	h := newRouter(newTestDeps(t, new(llm.MockCompleter)))

	w := doJSON(t, h, http.MethodPost, "/api/chat", map[string]any{
		"prompt":  "Hello",
		"history": []map[string]string{{"role": "wizard", "content": "x"}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummarizeHandler(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Messages[0].Content == prompts.Defaults[prompts.CategorySummarize] &&
			req.Messages[1].Content == "Input:\n# Report"
	})).Return("A short report.", nil).Once()
	deps := newTestDeps(t, c)
	_, err := deps.Library.Save("report", "# Report")
	require.NoError(t, err)
	h := newRouter(deps)

	w := doJSON(t, h, http.MethodPost, "/api/summarize", map[string]any{"file": "report_output.md"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, llm.Result{Success: true, Content: "A short report."}, decode[llm.Result](t, w))

	w = doJSON(t, h, http.MethodPost, "/api/summarize", map[string]any{"file": "missing.md"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/summarize", map[string]any{"text": "x", "prompt_name": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	c.AssertExpectations(t)
}

func TestCompareHandler(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		body := req.Messages[1].Content
		return strings.Index(body, "alpha") < strings.Index(body, "beta") &&
			strings.Contains(body, "<<<DOCUMENT 2 END>>>")
	})).Return("They differ.", nil).Once()
	h := newRouter(newTestDeps(t, c))

	w := doJSON(t, h, http.MethodPost, "/api/compare", map[string]any{"texts": []string{"alpha", "beta"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[llm.Result](t, w).Success)

	w = doJSON(t, h, http.MethodPost, "/api/compare", map[string]any{"texts": []string{"only one"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/compare", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	c.AssertExpectations(t)
}

func TestExtractHandler(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.Messages[0].ImageURL == "data:image/png;base64,AAAA"
	})).Return("# Page", nil).Once()
	h := newRouter(newTestDeps(t, c))

	w := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"image_url": "data:image/png;base64,AAAA"})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "# Page", decode[llm.Result](t, w).Content)
}

func TestExtractHandlerRejectsOversizedBody(t *testing.T) {
	c := new(llm.MockCompleter)
	h := newRouter(newTestDeps(t, c))

	image := "data:image/png;base64," + strings.Repeat("A", 2*1024*1024)
	w := doJSON(t, h, http.MethodPost, "/api/extract", map[string]any{"image_url": image})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	c.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, mock.Anything)
}

func TestPromptHandlersMapStoreErrors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		setup      func(*prompts.MockStore)
		wantStatus int
	}{
		{
			name:   "load missing",
			method: http.MethodGet,
			path:   "/api/prompts/summarize/gone",
			setup: func(s *prompts.MockStore) {
				s.On("Load", "summarize", "gone").Return("", fmt.Errorf("load: %w", prompts.ErrNotFound)).Once()
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "save as collision",
			method: http.MethodPost,
			path:   "/api/prompts/summarize",
			body:   map[string]string{"name": "terse", "body": "x"},
			setup: func(s *prompts.MockStore) {
				s.On("SaveAs", "summarize", "terse", "x").Return(prompts.ErrCollision).Once()
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "save invalid name",
			method: http.MethodPut,
			path:   "/api/prompts/summarize/bad",
			body:   map[string]string{"body": "x"},
			setup: func(s *prompts.MockStore) {
				s.On("Save", "summarize", "bad", "x").Return(prompts.ErrInvalidName).Once()
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:   "list fails",
			method: http.MethodGet,
			path:   "/api/prompts/summarize",
			setup: func(s *prompts.MockStore) {
				s.On("EnsureCategory", "summarize", prompts.Defaults[prompts.CategorySummarize]).Return(nil).Once()
				s.On("List", "summarize").Return(nil, errors.New("disk gone")).Once()
			},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(prompts.MockStore)
			tt.setup(store)
			deps := newTestDeps(t, new(llm.MockCompleter))
			deps.Prompts = store
			h := newRouter(deps)

			w := doJSON(t, h, tt.method, tt.path, tt.body)

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			store.AssertExpectations(t)
		})
	}
}

func TestPromptHandlers(t *testing.T) {
	h := newRouter(newTestDeps(t, new(llm.MockCompleter)))

	w := doJSON(t, h, http.MethodGet, "/api/prompts/summarize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[struct {
		Templates []string `json:"templates"`
	}](t, w)
	assert.Equal(t, []string{prompts.DefaultName}, list.Templates)

	w = doJSON(t, h, http.MethodGet, "/api/prompts/summarize/default", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, prompts.Defaults[prompts.CategorySummarize], decode[prompts.Template](t, w).Body)

	w = doJSON(t, h, http.MethodPost, "/api/prompts/summarize", map[string]string{"name": "terse", "body": "Be terse."})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/prompts/summarize", map[string]string{"name": "terse", "body": "Other."})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doJSON(t, h, http.MethodPut, "/api/prompts/summarize/terse", map[string]string{"body": "Be very terse."})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, h, http.MethodGet, "/api/prompts/summarize/terse", nil)
	assert.Equal(t, "Be very terse.", decode[prompts.Template](t, w).Body)

	w = doJSON(t, h, http.MethodPut, "/api/prompts/summarize/missing", map[string]string{"body": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodPost, "/api/prompts/summarize", map[string]string{"name": ".hidden", "body": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func newMultipart(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range files {
		field, filename, _ := strings.Cut(name, ":")
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadHandler(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		files      map[string][]byte
		setup      func(*llm.MockCompleter)
		wantStatus int
		wantFile   string
	}{
		{
			name:       "typed text",
			fields:     map[string]string{"name": "notes", "text": "# Notes"},
			wantStatus: http.StatusCreated,
			wantFile:   "notes_output.md",
		},
		{
			name:       "text file",
			files:      map[string][]byte{"file:memo.txt": []byte("hello there")},
			wantStatus: http.StatusCreated,
			wantFile:   "memo_output.md",
		},
		{
			name:  "image is extracted",
			files: map[string][]byte{"file:scan.png": pngBytes},
			setup: func(c *llm.MockCompleter) {
				c.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("# Scan", nil).Once()
			},
			wantStatus: http.StatusCreated,
			wantFile:   "scan_output.md",
		},
		{
			name:  "extraction failure",
			files: map[string][]byte{"file:scan.png": pngBytes},
			setup: func(c *llm.MockCompleter) {
				c.On("Complete", mock.Anything, mock.Anything, mock.Anything).
					Return("", &llm.StatusError{Code: 500, Err: errors.New("boom")}).Once()
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "text without name",
			fields:     map[string]string{"text": "# Notes"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "nothing uploaded",
			fields:     map[string]string{"name": "x"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too large",
			files:      map[string][]byte{"file:big.txt": bytes.Repeat([]byte("a"), 2*1024*1024)},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := new(llm.MockCompleter)
			if tt.setup != nil {
				tt.setup(c)
			}
			deps := newTestDeps(t, c)
			w := httptest.NewRecorder()

			uploadHandler(deps)(w, newMultipart(t, tt.fields, tt.files))

			require.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantFile != "" {
				files, err := deps.Library.List()
				require.NoError(t, err)
				assert.Equal(t, []string{tt.wantFile}, files)
			}
			c.AssertExpectations(t)
		})
	}
}

func TestDocumentHandlers(t *testing.T) {
	deps := newTestDeps(t, new(llm.MockCompleter))
	_, err := deps.Library.Save("a", "alpha")
	require.NoError(t, err)
	h := newRouter(deps)

	w := doJSON(t, h, http.MethodGet, "/api/documents", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a_output.md"}, decode[map[string][]string](t, w)["documents"])

	w = doJSON(t, h, http.MethodGet, "/api/documents/a_output.md", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alpha", decode[map[string]string](t, w)["content"])

	w = doJSON(t, h, http.MethodGet, "/api/documents/missing.md", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInfoGatherHandler(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.JSON
	})).Return(`{"message_to_user":"Nice to meet you, Ann!","updated_json":{"personal_info":{"full_name":"Ann"}}}`, nil).Once()
	h := newRouter(newTestDeps(t, c))

	w := doJSON(t, h, http.MethodPost, "/api/infogather", map[string]any{})
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[infoGatherResponse](t, w)
	require.Len(t, start.Transcript, 1)
	assert.Contains(t, start.Transcript[0].Content, "What should I call you?")

	w = doJSON(t, h, http.MethodPost, "/api/infogather", map[string]any{"session": start.Session, "input": "I'm Ann"})
	require.Equal(t, http.StatusOK, w.Code)
	next := decode[infoGatherResponse](t, w)
	require.NotNil(t, next.Turn)
	assert.Equal(t, "Nice to meet you, Ann!", next.Turn.Message)
	assert.JSONEq(t, `{"personal_info":{"full_name":"Ann"}}`, string(next.Session.Collected))
	assert.Empty(t, next.Error)
	assert.Len(t, next.Transcript, 3)

	w = doJSON(t, h, http.MethodPost, "/api/infogather", map[string]any{"session": next.Session, "reset": true})
	require.Equal(t, http.StatusOK, w.Code)
	reset := decode[infoGatherResponse](t, w)
	assert.JSONEq(t, `{}`, string(reset.Session.Collected))
	c.AssertExpectations(t)
}

func TestInfoGatherFormHandler(t *testing.T) {
	h := newRouter(newTestDeps(t, new(llm.MockCompleter)))

	w := doJSON(t, h, http.MethodGet, "/api/infogather/form", nil)

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[struct {
		Form json.RawMessage `json:"form"`
	}](t, w)
	assert.JSONEq(t, infogather.HomeInsuranceTemplate, string(got.Form))
}

func TestWebSearchHandler(t *testing.T) {
	c := new(llm.MockCompleter)
	c.On("Complete", mock.Anything, mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return req.WebSearch && req.Messages[0].Content == prompts.Defaults[prompts.CategoryWebSearch]
	})).Return("Go 1.25 is the latest.", nil).Once()
	h := newRouter(newTestDeps(t, c))

	w := doJSON(t, h, http.MethodPost, "/api/websearch", map[string]any{"prompt": "latest Go?"})

	require.Equal(t, http.StatusOK, w.Code)
	got := decode[webSearchResponse](t, w)
	assert.True(t, got.Success)
	assert.Equal(t, "Go 1.25 is the latest.", got.Content)
	assert.Len(t, got.Thread.Messages, 3)
	c.AssertExpectations(t)
}
