package gemini

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Google Gemini 2.5 Models
// https://ai.google.dev/gemini-api/docs/models

const (
	modelGemini25Pro       = "gemini-2.5-pro"
	modelGemini25Flash     = "gemini-2.5-flash"
	modelGemini25FlashLite = "gemini-2.5-flash-lite"
)

// Short keys of the model selection table.
const (
	KeyText   = "text"
	KeyVision = "vision"
	KeyPro    = "pro"
	KeyLite   = "lite"
)

const (
	// DefaultTextModel answers every message that carries no image.
	DefaultTextModel = modelGemini25Flash
	// DefaultVisionModel is the initially selected model.
	DefaultVisionModel = modelGemini25Flash
)

// ErrModelNotFound is returned by a ModelTable when no row matches.
var ErrModelNotFound = errors.New("gemini model not found")

// Model is one row of the model selection table.
type Model struct {
	ID   int64  `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// ModelTable looks up configured model rows. Implementations are read-only
// from the bridge's point of view.
type ModelTable interface {
	ModelByID(ctx context.Context, id int64) (Model, error)
	ModelByKey(ctx context.Context, key string) (Model, error)
}

// DefaultModels returns the rows seeded into a fresh model table.
func DefaultModels() []Model {
	return []Model{
		{ID: 1, Key: KeyText, Name: DefaultTextModel},
		{ID: 2, Key: KeyVision, Name: DefaultVisionModel},
		{ID: 3, Key: KeyPro, Name: modelGemini25Pro},
		{ID: 4, Key: KeyLite, Name: modelGemini25FlashLite},
	}
}

// StaticModelTable is an in-memory ModelTable.
type StaticModelTable []Model

func (t StaticModelTable) ModelByID(_ context.Context, id int64) (Model, error) {
	for _, m := range t {
		if m.ID == id {
			return m, nil
		}
	}
	return Model{}, errors.Wrapf(ErrModelNotFound, "id %d", id)
}

func (t StaticModelTable) ModelByKey(_ context.Context, key string) (Model, error) {
	for _, m := range t {
		if m.Key == key {
			return m, nil
		}
	}
	return Model{}, errors.Wrapf(ErrModelNotFound, "key %q", key)
}

// Resolution is the outcome of ResolveModel.
type Resolution struct {
	Model    string
	Source   string // "default", "id", "key", "name", "text-only"
	Fallback bool   // configured selection could not be used
	Reason   string // why the fallback happened
}

// ResolveModel turns the configured model key into a Gemini model name.
//
// The key may be a numeric row id, a short key such as "vision", or a raw
// model name. Anything that does not resolve to a valid model falls back to
// the default text model. Messages without images always use the text
// model, whatever the selection.
func ResolveModel(ctx context.Context, table ModelTable, modelKey string, hasImages bool) Resolution {
	res := lookupModel(ctx, table, strings.TrimSpace(modelKey))
	if !hasImages {
		text := textModel(ctx, table)
		return Resolution{Model: text, Source: "text-only", Fallback: res.Fallback, Reason: res.Reason}
	}
	return res
}

func lookupModel(ctx context.Context, table ModelTable, key string) Resolution {
	if key == "" {
		return Resolution{Model: DefaultTextModel, Source: "default"}
	}

	fallback := func(reason string) Resolution {
		return Resolution{Model: DefaultTextModel, Source: "default", Fallback: true, Reason: reason}
	}

	if id, err := strconv.ParseInt(key, 10, 64); err == nil {
		if table == nil {
			return fallback("no model table configured")
		}
		m, err := table.ModelByID(ctx, id)
		if err != nil {
			return fallback(err.Error())
		}
		name, ok := getGeminiModel(m.Name)
		if !ok {
			return fallback("invalid model name " + strconv.Quote(m.Name))
		}
		return Resolution{Model: name, Source: "id"}
	}

	if table != nil {
		if m, err := table.ModelByKey(ctx, key); err == nil {
			if name, ok := getGeminiModel(m.Name); ok {
				return Resolution{Model: name, Source: "key"}
			}
			return fallback("invalid model name " + strconv.Quote(m.Name))
		}
	}

	if name, ok := getGeminiModel(key); ok {
		return Resolution{Model: name, Source: "name"}
	}
	return fallback("unknown model key " + strconv.Quote(key))
}

func textModel(ctx context.Context, table ModelTable) string {
	if table != nil {
		if m, err := table.ModelByKey(ctx, KeyText); err == nil {
			if name, ok := getGeminiModel(m.Name); ok {
				return name
			}
		}
	}
	return DefaultTextModel
}

// getGeminiModel maps user-friendly and retired model names to current
// Gemini identifiers. The second result is false for names that cannot be
// a Gemini model.
func getGeminiModel(model string) (string, bool) {
	model = strings.TrimPrefix(strings.TrimSpace(model), "models/")
	switch model {
	case "gemini-2.5-pro", "pro":
		return modelGemini25Pro, true
	case "gemini-pro", "gemini-pro-vision":
		// Retired 1.0 names were the defaults, not a premium tier.
		return DefaultTextModel, true
	case "gemini-2.5-flash", "gemini-flash", "flash":
		return modelGemini25Flash, true
	case "gemini-2.5-flash-lite", "gemini-2.5-lite", "gemini-lite", "lite":
		return modelGemini25FlashLite, true
	}
	if isValidGeminiModel(model) {
		return model, true
	}
	return "", false
}

// isValidGeminiModel accepts any concrete Gemini model id so newer models can
// be configured without a release.
func isValidGeminiModel(model string) bool {
	if !strings.HasPrefix(model, "gemini-") || strings.ContainsAny(model, " /\t\n") {
		return false
	}
	return len(model) > len("gemini-")
}
