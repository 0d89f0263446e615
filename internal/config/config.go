package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds runtime configuration for the harness. Per-model settings
// (MODEL_<NAME>_*) are not listed here; the model registry parses them from
// the same environment snapshot.
type Config struct {
	// Server
	Port      int    `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"` // "json" or "text"

	// Upload limits
	MaxUploadSize int64 `env:"MAX_UPLOAD_SIZE" envDefault:"10485760"` // 10MB in bytes

	// Models
	DefaultModel       string `env:"DEFAULT_MODEL_NAME" envDefault:"gpt-4o"`
	OpenAIKey          string `env:"OPENAI_API_KEY"`
	OpenAIEndpoint     string `env:"OPENAI_API_ENDPOINT"`
	OpenAIAPIVersion   string `env:"OPENAI_API_VERSION" envDefault:"2024-02-01"`
	CredentialFallback bool   `env:"CREDENTIAL_FALLBACK" envDefault:"true"`
	ModelCatalogFile   string `env:"MODEL_CATALOG_FILE"`
	WebSearchModel     string `env:"WEBSEARCH_MODEL_NAME"` // empty means the default model

	// Outbound calls
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"120s"`
	MaxRetries     int           `env:"MAX_RETRIES" envDefault:"2"`

	// Flat-file storage
	PromptDir   string `env:"PROMPT_DIR" envDefault:"prompt"`
	DocumentDir string `env:"DOCUMENT_DIR" envDefault:"markdown_output"`
}

// Load reads configuration from the process environment with defaults.
func Load() Config {
	return LoadFrom(Environ())
}

// LoadFrom parses configuration from an explicit key/value snapshot.
func LoadFrom(environ map[string]string) Config {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	return ToMap(os.Environ())
}

// ToMap converts KEY=VALUE pairs into a map. Later duplicates win.
func ToMap(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
