package models

// Base carries the logical request parameters before dialect mapping.
// A nil Temperature means "let the backend decide".
type Base struct {
	Temperature *float64
	MaxTokens   int
}

// Params is the request parameter set in the backend's own dialect.
// It holds at most one temperature key and exactly one token-limit key.
type Params map[string]any

// Temperature returns the temperature to send, if any.
func (p Params) Temperature() (float64, bool) {
	v, ok := p[ParamTemperature].(float64)
	return v, ok
}

// TokenLimit returns the token-limit key in use and its value.
func (p Params) TokenLimit() (string, int64) {
	for _, k := range []string{ParamMaxTokens, ParamMaxCompletionTokens} {
		if v, ok := p[k].(int64); ok {
			return k, v
		}
	}
	return "", 0
}

// BuildParams maps base onto the dialect of d. Temperature is dropped when the
// backend rejects it; the token limit is emitted under d.TokenParam only.
func BuildParams(d Descriptor, base Base) Params {
	params := make(Params, 2)
	if base.Temperature != nil && d.Supports(ParamTemperature) {
		params[ParamTemperature] = *base.Temperature
	}
	key := d.TokenParam
	if !validTokenParam(key) {
		key = ParamMaxTokens
	}
	params[key] = int64(base.MaxTokens)
	return params
}
