package models

import (
	"errors"
	"strings"
)

// ErrMissingCredentials indicates no usable API key/endpoint was found for a
// model, even after the single fallback to the global credentials.
var ErrMissingCredentials = errors.New("missing credentials")

// ErrInvalidDescriptor indicates a model block that cannot be used as configured.
var ErrInvalidDescriptor = errors.New("invalid model descriptor")

// Provider identifies the wire API a backend speaks.
type Provider string

const (
	ProviderAzure  Provider = "azure"
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

// Request parameter names understood by hosted chat APIs. Any of them may
// appear in a descriptor's Unsupported list.
const (
	ParamTemperature         = "temperature"
	ParamMaxTokens           = "max_tokens"
	ParamMaxCompletionTokens = "max_completion_tokens"
	ParamResponseFormat      = "response_format"
	ParamWebSearch           = "web_search_options"
)

// Descriptor is the resolved connection and dialect for one logical model.
type Descriptor struct {
	Name        string
	DisplayName string
	Provider    Provider
	Endpoint    string
	APIKey      string
	APIVersion  string
	Deployment  string
	TokenParam  string
	Unsupported []string
	// UsedFallback reports that the global credentials replaced the model's own.
	UsedFallback bool
}

// Supports reports whether param may be sent to this backend.
func (d Descriptor) Supports(param string) bool {
	for _, p := range d.Unsupported {
		if strings.EqualFold(p, param) {
			return false
		}
	}
	return true
}

// Model is the caller-facing listing entry.
type Model struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Default     bool   `json:"default"`
}

// EnvKey converts a logical model name into its configuration key segment:
// upper-cased, with hyphens, dots and spaces turned into underscores.
func EnvKey(name string) string {
	r := strings.NewReplacer("-", "_", ".", "_", " ", "_")
	return strings.ToUpper(r.Replace(strings.TrimSpace(name)))
}

// nameFromEnvKey lower-cases a key segment or a caller's spelling and turns
// underscores into hyphens. Dots survive, so gpt-4.1 stays gpt-4.1.
func nameFromEnvKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", "-"))
}

func validTokenParam(p string) bool {
	return p == ParamMaxTokens || p == ParamMaxCompletionTokens
}

func validProvider(p Provider) bool {
	switch p {
	case ProviderAzure, ProviderOpenAI, ProviderGemini:
		return true
	default:
		return false
	}
}
