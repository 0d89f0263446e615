package models

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog declares models and their dialect as data. It never carries API keys;
// credentials come from the environment only.
type Catalog struct {
	Models []CatalogEntry `yaml:"models"`
}

// CatalogEntry describes one logical model.
type CatalogEntry struct {
	Name              string   `yaml:"name"`
	DisplayName       string   `yaml:"display_name"`
	Provider          string   `yaml:"provider"`
	Endpoint          string   `yaml:"endpoint"`
	APIVersion        string   `yaml:"api_version"`
	Deployment        string   `yaml:"deployment"`
	TokenParam        string   `yaml:"token_param"`
	UnsupportedParams []string `yaml:"unsupported_params"`
}

// LoadCatalog reads a YAML catalog from disk and validates it.
func LoadCatalog(path string) (Catalog, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("resolve catalog path: %w", err)
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog file %q: %w", absPath, err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML catalog. Unknown fields are rejected so a typo
// such as "api_key" fails loudly instead of being ignored.
func ParseCatalog(data []byte) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// Validate checks names are unique and dialect values are recognised.
func (c Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("%w: catalog model name must not be empty", ErrInvalidDescriptor)
		}
		key := EnvKey(m.Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: catalog model %q declared twice", ErrInvalidDescriptor, m.Name)
		}
		seen[key] = struct{}{}
		if m.TokenParam != "" && !validTokenParam(m.TokenParam) {
			return fmt.Errorf("%w: catalog model %q token_param %q must be %q or %q",
				ErrInvalidDescriptor, m.Name, m.TokenParam, ParamMaxTokens, ParamMaxCompletionTokens)
		}
		if m.Provider != "" && !validProvider(Provider(m.Provider)) {
			return fmt.Errorf("%w: catalog model %q has unknown provider %q", ErrInvalidDescriptor, m.Name, m.Provider)
		}
	}
	return nil
}

func (c Catalog) lookup(name string) (CatalogEntry, bool) {
	key := EnvKey(name)
	for _, m := range c.Models {
		if EnvKey(m.Name) == key {
			return m, true
		}
	}
	return CatalogEntry{}, false
}
