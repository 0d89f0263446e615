package prompts

import (
	"errors"
	"regexp"
)

// DefaultName is the template seeded into every new category.
const DefaultName = "default"

var (
	ErrNotFound    = errors.New("prompt template not found")
	ErrCollision   = errors.New("prompt template already exists")
	ErrInvalidName = errors.New("invalid prompt category or name")
)

// Built-in categories.
const (
	CategorySummarize  = "summarize"
	CategoryComparison = "comparison"
	CategoryWebSearch  = "websearch"
)

// Defaults holds the seed body for each built-in category.
var Defaults = map[string]string{
	CategorySummarize:  "You are an AI assistant that summarizes markdown documents",
	CategoryComparison: "You are an AI assistant that compares two markdown documents",
	CategoryWebSearch:  "You are an AI assistant that searches the web to provide accurate and up-to-date information.",
}

// Template is one named prompt body within a category.
type Template struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Body     string `json:"body"`
}

// Store persists user-editable prompt templates per category.
type Store interface {
	// EnsureCategory creates the category with a "default" template holding
	// body. An already initialised category is left untouched.
	EnsureCategory(category, body string) error
	List(category string) ([]string, error)
	Load(category, name string) (string, error)
	// Save overwrites an existing template in place.
	Save(category, name, body string) error
	// SaveAs creates a new template and fails with ErrCollision if the name is taken.
	SaveAs(category, name, body string) error
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidName reports whether s is usable as a category or template name.
func ValidName(s string) bool {
	return len(s) <= 128 && namePattern.MatchString(s)
}
