package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/caarlos0/env/v10"
)

// DefaultModelName is used when neither the caller nor the configuration names one.
const DefaultModelName = "gpt-4o"

const modelKeyPrefix = "MODEL_"

// Per-model key suffixes, longest first so discovery never mistakes one for another.
var modelKeySuffixes = []string{
	"_UNSUPPORTED_PARAMS",
	"_DEPLOYMENT_NAME",
	"_DISPLAY_NAME",
	"_TOKEN_PARAM",
	"_API_VERSION",
	"_PROVIDER",
	"_ENDPOINT",
	"_API_KEY",
}

// modelEnv is one MODEL_<NAME>_* block.
type modelEnv struct {
	APIKey      string   `env:"API_KEY"`
	Endpoint    string   `env:"ENDPOINT"`
	APIVersion  string   `env:"API_VERSION"`
	Deployment  string   `env:"DEPLOYMENT_NAME"`
	TokenParam  string   `env:"TOKEN_PARAM"`
	Unsupported []string `env:"UNSUPPORTED_PARAMS" envSeparator:","`
	DisplayName string   `env:"DISPLAY_NAME"`
	Provider    string   `env:"PROVIDER"`
}

// Options tunes how descriptors are resolved.
type Options struct {
	DefaultModel      string
	FallbackKey       string
	FallbackEndpoint  string
	DefaultAPIVersion string
	// AllowFallback lets an incomplete model block borrow the global
	// credentials once. Turning it off makes misconfiguration fail loudly.
	AllowFallback bool
	Catalog       Catalog
}

// Registry resolves logical model names into descriptors. It works on an
// immutable snapshot of the environment and is safe for concurrent use.
type Registry struct {
	env         map[string]string
	opts        Options
	defaultName string
	// declared maps EnvKey(name) to the spelling used for listing.
	declared map[string]string
	// derived marks declared spellings read back from a MODEL_<NAME>_ key.
	// They are lossy (gpt-4.1 lists as gpt-4-1) and never override a caller.
	derived map[string]bool
}

// NewRegistry snapshots environ and discovers the declared models.
func NewRegistry(environ map[string]string, opts Options) *Registry {
	snapshot := make(map[string]string, len(environ))
	for k, v := range environ {
		snapshot[k] = v
	}
	defaultName := strings.TrimSpace(opts.DefaultModel)
	if defaultName == "" {
		defaultName = DefaultModelName
	}
	r := &Registry{
		env:         snapshot,
		opts:        opts,
		defaultName: defaultName,
		declared:    map[string]string{EnvKey(defaultName): defaultName},
		derived:     map[string]bool{},
	}
	for _, entry := range opts.Catalog.Models {
		r.declare(entry.Name, false)
	}
	for key := range snapshot {
		if name, ok := modelNameFromKey(key); ok {
			r.declare(name, true)
		}
	}
	return r
}

func (r *Registry) declare(name string, derived bool) {
	key := EnvKey(name)
	if key == "" {
		return
	}
	if _, ok := r.declared[key]; !ok {
		r.declared[key] = name
		r.derived[key] = derived
	}
}

// modelNameFromKey extracts the logical name from a MODEL_<NAME>_<FIELD> key.
func modelNameFromKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, modelKeyPrefix)
	if !ok {
		return "", false
	}
	for _, suffix := range modelKeySuffixes {
		if name, ok := strings.CutSuffix(rest, suffix); ok && name != "" {
			return nameFromEnvKey(name), true
		}
	}
	return "", false
}

// DefaultName returns the logical name used when none is given.
func (r *Registry) DefaultName() string {
	return r.defaultName
}

// List returns every declared model, default first, then by name. It never
// fails: with no configuration at all it still lists the built-in default.
func (r *Registry) List() []Model {
	defaultKey := EnvKey(r.defaultName)
	out := make([]Model, 0, len(r.declared))
	for key, name := range r.declared {
		out = append(out, Model{
			Name:        name,
			DisplayName: r.displayName(name),
			Default:     key == defaultKey,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Default != out[j].Default {
			return out[i].Default
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Names returns logical name -> display name for every declared model.
func (r *Registry) Names() map[string]string {
	out := make(map[string]string, len(r.declared))
	for _, m := range r.List() {
		out[m.Name] = m.DisplayName
	}
	return out
}

func (r *Registry) displayName(name string) string {
	if v := strings.TrimSpace(r.env[modelKeyPrefix+EnvKey(name)+"_DISPLAY_NAME"]); v != "" {
		return v
	}
	if entry, ok := r.opts.Catalog.lookup(name); ok && entry.DisplayName != "" {
		return entry.DisplayName
	}
	return name
}

// Resolve turns a logical model name into a descriptor. An empty name selects
// the default model. When the model's own API key or endpoint is missing, the
// global credential pair is used once; if that is incomplete too, Resolve
// fails with ErrMissingCredentials. No other backend is ever consulted.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = r.defaultName
	}
	key := EnvKey(name)
	if canonical, ok := r.declared[key]; ok {
		if r.derived[key] {
			name = nameFromEnvKey(name)
		} else {
			name = canonical
		}
	}

	var me modelEnv
	if err := env.ParseWithOptions(&me, env.Options{
		Prefix:      modelKeyPrefix + key + "_",
		Environment: r.env,
	}); err != nil {
		return Descriptor{}, fmt.Errorf("%w: model %q: %v", ErrInvalidDescriptor, name, err)
	}
	entry, _ := r.opts.Catalog.lookup(name)

	d := Descriptor{
		Name:        name,
		DisplayName: r.displayName(name),
		Provider:    Provider(strings.ToLower(firstNonEmpty(me.Provider, entry.Provider, string(ProviderAzure)))),
		Endpoint:    firstNonEmpty(me.Endpoint, entry.Endpoint),
		APIKey:      strings.TrimSpace(me.APIKey),
		APIVersion:  firstNonEmpty(me.APIVersion, entry.APIVersion, r.opts.DefaultAPIVersion),
		Deployment:  firstNonEmpty(me.Deployment, entry.Deployment, name),
		TokenParam:  strings.ToLower(firstNonEmpty(me.TokenParam, entry.TokenParam)),
	}
	if !validProvider(d.Provider) {
		return Descriptor{}, fmt.Errorf("%w: model %q has unknown provider %q", ErrInvalidDescriptor, name, d.Provider)
	}

	family, ok := dialectFor(d.Deployment)
	if !ok {
		family, _ = dialectFor(d.Name)
	}
	if d.TokenParam == "" {
		d.TokenParam = family.tokenParam
	}
	if !validTokenParam(d.TokenParam) {
		return Descriptor{}, fmt.Errorf("%w: model %q token param %q must be %q or %q",
			ErrInvalidDescriptor, name, d.TokenParam, ParamMaxTokens, ParamMaxCompletionTokens)
	}
	switch {
	case len(me.Unsupported) > 0:
		d.Unsupported = normalizeParams(me.Unsupported)
	case len(entry.UnsupportedParams) > 0:
		d.Unsupported = normalizeParams(entry.UnsupportedParams)
	default:
		d.Unsupported = append([]string(nil), family.unsupported...)
	}

	if err := r.applyCredentials(&d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (r *Registry) applyCredentials(d *Descriptor) error {
	if d.Provider == ProviderGemini {
		// The global pair belongs to the OpenAI-family backend; never borrow it here.
		if d.APIKey == "" {
			return fmt.Errorf("%w: model %q has no API key", ErrMissingCredentials, d.Name)
		}
		return nil
	}
	if d.APIKey != "" && d.Endpoint != "" {
		return nil
	}
	if !r.opts.AllowFallback {
		return fmt.Errorf("%w: model %q needs an API key and endpoint (fallback disabled)", ErrMissingCredentials, d.Name)
	}
	key := strings.TrimSpace(r.opts.FallbackKey)
	endpoint := strings.TrimSpace(r.opts.FallbackEndpoint)
	if key == "" || endpoint == "" {
		return fmt.Errorf("%w: model %q and the global OPENAI_API_KEY/OPENAI_API_ENDPOINT are incomplete", ErrMissingCredentials, d.Name)
	}
	d.APIKey = key
	d.Endpoint = endpoint
	d.UsedFallback = true
	return nil
}

func normalizeParams(params []string) []string {
	out := make([]string, 0, len(params))
	for _, p := range params {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
