package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

// DefaultTimeout bounds a single Gemini call when no timeout is configured.
const DefaultTimeout = 60 * time.Second

var geminiLogger = pkgLogger.NewComponentLogger("gemini-bridge")

// ContentGenerator is the slice of the genai Models service the bridge uses.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeneratorFactory authenticates against the Gemini API with apiKey and
// returns a generator for a single call.
type GeneratorFactory func(ctx context.Context, apiKey string) (ContentGenerator, error)

// NewGenAIFactory returns the production factory backed by genai.NewClient.
// A nil httpClient uses the library default transport.
func NewGenAIFactory(httpClient *http.Client) GeneratorFactory {
	return func(ctx context.Context, apiKey string) (ContentGenerator, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: httpClient,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create Gemini client")
		}
		return client.Models, nil
	}
}

// Options configures a Bridge.
type Options struct {
	Models            ModelTable       // nil uses DefaultModels
	Factory           GeneratorFactory // nil uses NewGenAIFactory(nil)
	Timeout           time.Duration    // 0 uses DefaultTimeout
	MaxOutputTokens   int              // 0 leaves the model default
	SystemInstruction string
	Logger            *pkgLogger.Logger
}

// Params carries the per-call configuration read from the parameter store.
type Params struct {
	APIKey   string
	ModelKey string
}

// Bridge sends one prompt, with optional images, to Gemini and returns the
// reply text. It keeps no history; every call is a single turn.
type Bridge struct {
	models            ModelTable
	factory           GeneratorFactory
	timeout           time.Duration
	maxOutputTokens   int
	systemInstruction string
	logger            *pkgLogger.Logger
}

// NewBridge creates a bridge from opts.
func NewBridge(opts Options) *Bridge {
	b := &Bridge{
		models:            opts.Models,
		factory:           opts.Factory,
		timeout:           opts.Timeout,
		maxOutputTokens:   opts.MaxOutputTokens,
		systemInstruction: opts.SystemInstruction,
		logger:            opts.Logger,
	}
	if b.models == nil {
		b.models = StaticModelTable(DefaultModels())
	}
	if b.factory == nil {
		b.factory = NewGenAIFactory(nil)
	}
	if b.timeout <= 0 {
		b.timeout = DefaultTimeout
	}
	if b.logger == nil {
		b.logger = geminiLogger
	}
	return b
}

// GetReplyWithStore reads the API key and model key from store at call time
// and calls GetReply.
func (b *Bridge) GetReplyWithStore(ctx context.Context, prompt string, images []discuss.Image, store discuss.ParameterStore) (string, error) {
	if store == nil {
		return "", &discuss.ConfigError{Reason: "no parameter store configured"}
	}
	apiKey, err := store.Get(ctx, discuss.ParamAPIKey)
	if err != nil {
		return "", &discuss.ConfigError{Key: discuss.ParamAPIKey, Reason: err.Error()}
	}
	modelKey, err := store.Get(ctx, discuss.ParamModelKey)
	if err != nil {
		// An unreadable selection is not fatal: resolve it as unset.
		b.logger.Warn("Failed to read model selection, using default", "error", err)
		modelKey = ""
	}
	return b.GetReply(ctx, prompt, images, Params{APIKey: apiKey, ModelKey: modelKey})
}

// GetReply resolves the model, authenticates and sends a single-turn request.
// It fails with *discuss.ConfigError before any network call when the API key
// is blank, and with *discuss.BackendError for anything the service reports.
func (b *Bridge) GetReply(ctx context.Context, prompt string, images []discuss.Image, params Params) (string, error) {
	apiKey := strings.TrimSpace(params.APIKey)
	if apiKey == "" {
		return "", &discuss.ConfigError{Key: discuss.ParamAPIKey, Reason: "Gemini API key is not set"}
	}

	res := ResolveModel(ctx, b.models, params.ModelKey, len(images) > 0)
	if res.Fallback {
		b.logger.Warn("Configured Gemini model unavailable, using default",
			"model_key", params.ModelKey, "reason", res.Reason, "model", res.Model)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	gen, err := b.factory(ctx, apiKey)
	if err != nil {
		return "", &discuss.ConfigError{Key: discuss.ParamAPIKey, Reason: err.Error()}
	}

	contents := buildContents(prompt, images)
	config := &genai.GenerateContentConfig{}
	if b.maxOutputTokens > 0 {
		config.MaxOutputTokens = int32(b.maxOutputTokens)
	}
	if b.systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(b.systemInstruction, genai.RoleUser)
	}

	b.logger.DebugWithIntention(pkgLogger.IntentionBridge, "Sending Gemini request",
		"model", res.Model, "source", res.Source, "images", len(images), "prompt_chars", len(prompt))

	resp, err := gen.GenerateContent(ctx, res.Model, contents, config)
	if err != nil {
		return "", classifyError(ctx, res.Model, err)
	}

	if resp.UsageMetadata != nil {
		b.logger.DebugWithIntention(pkgLogger.IntentionStatistics, "Gemini API Usage",
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens", resp.UsageMetadata.TotalTokenCount,
			"model", res.Model)
	}

	if len(resp.Candidates) == 0 {
		msg := "no response from Gemini"
		if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
			msg = fmt.Sprintf("prompt blocked: %s", fb.BlockReason)
			if fb.BlockReasonMessage != "" {
				msg += " (" + fb.BlockReasonMessage + ")"
			}
		}
		return "", &discuss.BackendError{Model: res.Model, Message: msg}
	}

	responseText := resp.Text()
	if responseText == "" {
		msg := "empty response from Gemini"
		if reason := resp.Candidates[0].FinishReason; reason != "" {
			msg += ", finish reason " + string(reason)
		}
		return "", &discuss.BackendError{Model: res.Model, Message: msg}
	}

	return responseText, nil
}

// buildContents creates the single user turn: plain text when there are no
// images, otherwise a text part followed by one inline blob per image.
func buildContents(prompt string, images []discuss.Image) []*genai.Content {
	if len(images) == 0 {
		return []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	}

	parts := make([]*genai.Part, 0, len(images)+1)
	// A blank prompt sends the images alone; the API rejects empty text parts.
	if strings.TrimSpace(prompt) != "" {
		parts = append(parts, genai.NewPartFromText(prompt))
	}
	for _, img := range images {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{
				MIMEType: img.MIMEType,
				Data:     img.Data,
			},
		})
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
}

func classifyError(ctx context.Context, model string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	msg := err.Error()
	if timeout {
		msg = "request timed out: " + msg
	}
	return &discuss.BackendError{Model: model, Message: msg, Timeout: timeout, Err: err}
}
