package config

import (
	"context"
	"strings"

	"github.com/fpt/gemini-discuss/pkg/discuss"
)

// LayeredParams is a discuss.ParameterStore that prefers the runtime store
// and falls back to values from the settings file or environment.
type LayeredParams struct {
	primary  discuss.ParameterStore
	fallback map[string]string
}

// NewLayeredParams layers settings over primary. primary may be nil.
func NewLayeredParams(primary discuss.ParameterStore, settings *Settings) *LayeredParams {
	fallback := map[string]string{}
	if settings != nil {
		fallback[discuss.ParamAPIKey] = settings.Gemini.APIKey
		fallback[discuss.ParamModelKey] = settings.Gemini.ModelKey
	}
	return &LayeredParams{primary: primary, fallback: fallback}
}

// Get returns the stored value, or the fallback when the store has none.
// Store errors are returned as-is.
func (p *LayeredParams) Get(ctx context.Context, key string) (string, error) {
	if p.primary != nil {
		v, err := p.primary.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return p.fallback[key], nil
}

// ParamKey expands the short names accepted on the command line
// ("api_key", "model_key") into full parameter keys.
func ParamKey(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "api_key", "gemini_api_key":
		return discuss.ParamAPIKey
	case "model_key", "model", "gemini_model":
		return discuss.ParamModelKey
	}
	return name
}
