package models

import "strings"

// dialect is the per-family request shape. Families are matched by name
// prefix on the EnvKey form, so gpt-4.1 and gpt-4-1 land in the same family;
// the first match wins.
type dialect struct {
	prefix      string
	tokenParam  string
	unsupported []string
}

// Reasoning families reject max_tokens and any non-default temperature.
var dialects = []dialect{
	{prefix: "o1", tokenParam: ParamMaxCompletionTokens, unsupported: []string{ParamTemperature, ParamWebSearch}},
	{prefix: "o3", tokenParam: ParamMaxCompletionTokens, unsupported: []string{ParamTemperature, ParamWebSearch}},
	{prefix: "o4", tokenParam: ParamMaxCompletionTokens, unsupported: []string{ParamTemperature, ParamWebSearch}},
	{prefix: "gpt-5", tokenParam: ParamMaxCompletionTokens, unsupported: []string{ParamTemperature, ParamWebSearch}},
	{prefix: "gpt-4.1", tokenParam: ParamMaxCompletionTokens, unsupported: []string{ParamWebSearch}},
	// Only the search-preview deployments accept web_search_options, and they
	// reject temperature.
	{prefix: "gpt-4o-search", tokenParam: ParamMaxTokens, unsupported: []string{ParamTemperature}},
	{prefix: "gpt-4o-mini-search", tokenParam: ParamMaxTokens, unsupported: []string{ParamTemperature}},
	// Gemini grounds searches with its own tool.
	{prefix: "gemini", tokenParam: ParamMaxTokens},
}

var defaultDialect = dialect{tokenParam: ParamMaxTokens, unsupported: []string{ParamWebSearch}}

// dialectFor reports the family of name, or the plain chat dialect and false
// when no family matches.
func dialectFor(name string) (dialect, bool) {
	key := EnvKey(name)
	if key == "" {
		return defaultDialect, false
	}
	for _, d := range dialects {
		if strings.HasPrefix(key, EnvKey(d.prefix)) {
			return d, true
		}
	}
	return defaultDialect, false
}
