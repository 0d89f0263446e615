package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"sort"

	"github.com/joho/godotenv"

	"genai-demos/internal/config"
	"genai-demos/internal/documents"
	"genai-demos/internal/infogather"
	"genai-demos/internal/llm"
	"genai-demos/internal/logger"
	"genai-demos/internal/models"
	"genai-demos/internal/prompts"
	"genai-demos/internal/websearch"
)

// Deps bundles common runtime dependencies for the server.
type Deps struct {
	Config    config.Config
	Log       *slog.Logger
	Registry  *models.Registry
	Gateway   *llm.Gateway
	Prompts   prompts.Store
	Library   *documents.Library
	Ingestor  *documents.Ingestor
	Form      *infogather.Form
	WebSearch *websearch.Agent
}

// Build loads .env (if present), config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	environ := config.Environ()
	cfg := config.LoadFrom(environ)
	log := logger.NewWithFormat(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	return Assemble(cfg, environ, log, Completers(cfg))
}

// Completers returns the backend for each provider.
func Completers(cfg config.Config) map[models.Provider]llm.Completer {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	openAI := llm.NewOpenAICompleter(cfg.MaxRetries, httpClient)
	return map[models.Provider]llm.Completer{
		models.ProviderAzure:  openAI,
		models.ProviderOpenAI: openAI,
		models.ProviderGemini: llm.NewGeminiCompleter(cfg.MaxRetries),
	}
}

// Assemble wires the components from an explicit configuration and
// environment snapshot.
func Assemble(cfg config.Config, environ map[string]string, log *slog.Logger, completers map[models.Provider]llm.Completer) (Deps, error) {
	registry, err := buildRegistry(cfg, environ, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize model registry: %w", err)
	}
	gateway := llm.NewGateway(registry, completers, log, cfg.RequestTimeout)

	store, err := buildPrompts(cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize prompt store: %w", err)
	}
	library := documents.NewLibrary(cfg.DocumentDir)

	return Deps{
		Config:    cfg,
		Log:       log,
		Registry:  registry,
		Gateway:   gateway,
		Prompts:   store,
		Library:   library,
		Ingestor:  documents.NewIngestor(library, gateway, log),
		Form:      infogather.DefaultForm(),
		WebSearch: websearch.NewAgent(gateway, cfg.WebSearchModel, log),
	}, nil
}

func buildRegistry(cfg config.Config, environ map[string]string, log *slog.Logger) (*models.Registry, error) {
	var catalog models.Catalog
	if cfg.ModelCatalogFile != "" {
		c, err := models.LoadCatalog(cfg.ModelCatalogFile)
		if err != nil {
			return nil, err
		}
		catalog = c
		log.Info("loaded model catalog", "path", cfg.ModelCatalogFile, "models", len(c.Models))
	}
	registry := models.NewRegistry(environ, models.Options{
		DefaultModel:      cfg.DefaultModel,
		FallbackKey:       cfg.OpenAIKey,
		FallbackEndpoint:  cfg.OpenAIEndpoint,
		DefaultAPIVersion: cfg.OpenAIAPIVersion,
		AllowFallback:     cfg.CredentialFallback,
		Catalog:           catalog,
	})
	names := make([]string, 0)
	for _, m := range registry.List() {
		names = append(names, m.Name)
	}
	log.Info("model registry ready", "default", registry.DefaultName(), "models", names, "fallback", cfg.CredentialFallback)
	return registry, nil
}

func buildPrompts(cfg config.Config, log *slog.Logger) (prompts.Store, error) {
	store := prompts.NewFileStore(cfg.PromptDir)
	categories := make([]string, 0, len(prompts.Defaults))
	for category := range prompts.Defaults {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	for _, category := range categories {
		if err := store.EnsureCategory(category, prompts.Defaults[category]); err != nil {
			return nil, err
		}
	}
	log.Info("prompt store ready", "dir", cfg.PromptDir, "categories", categories)
	return store, nil
}
