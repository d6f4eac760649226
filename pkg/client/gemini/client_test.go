package gemini

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"google.golang.org/genai"

	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

type stubGenerator struct {
	reply    string
	err      error
	wait     bool
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	calls    int
}

func (s *stubGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.calls++
	s.model = model
	s.contents = contents
	s.config = config
	if s.wait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.reply == "" {
		return &genai.GenerateContentResponse{}, nil
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: genai.NewContentFromText(s.reply, genai.RoleModel)},
		},
	}, nil
}

type stubStore map[string]string

func (s stubStore) Get(_ context.Context, key string) (string, error) {
	return s[key], nil
}

func newTestBridge(gen *stubGenerator, factoryCalls *int, opts Options) *Bridge {
	opts.Factory = func(_ context.Context, apiKey string) (ContentGenerator, error) {
		if factoryCalls != nil {
			*factoryCalls++
		}
		return gen, nil
	}
	opts.Logger = pkgLogger.NewLoggerWithWriters(pkgLogger.LogLevelError, io.Discard, io.Discard)
	return NewBridge(opts)
}

func TestGetReply_TextOnly(t *testing.T) {
	gen := &stubGenerator{reply: "  Hello there!\n"}
	b := newTestBridge(gen, nil, Options{})

	got, err := b.GetReply(context.Background(), "Gemini, hi", nil, Params{APIKey: "key", ModelKey: KeyPro})
	if err != nil {
		t.Fatalf("GetReply returned error: %v", err)
	}
	if got != "  Hello there!\n" {
		t.Errorf("Reply must be returned verbatim, got %q", got)
	}
	if gen.model != DefaultTextModel {
		t.Errorf("Text-only call should use %s, got %s", DefaultTextModel, gen.model)
	}
	if len(gen.contents) != 1 || len(gen.contents[0].Parts) != 1 {
		t.Fatalf("Expected single text part, got %+v", gen.contents)
	}
	if gen.contents[0].Parts[0].Text != "Gemini, hi" {
		t.Errorf("Prompt not forwarded, got %q", gen.contents[0].Parts[0].Text)
	}
}

func TestGetReply_WithImage(t *testing.T) {
	gen := &stubGenerator{reply: "A red square."}
	b := newTestBridge(gen, nil, Options{})

	img := discuss.Image{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}
	got, err := b.GetReply(context.Background(), "What is this?", []discuss.Image{img}, Params{APIKey: "key", ModelKey: KeyPro})
	if err != nil {
		t.Fatalf("GetReply returned error: %v", err)
	}
	if got != "A red square." {
		t.Errorf("Unexpected reply %q", got)
	}
	if gen.model != modelGemini25Pro {
		t.Errorf("Image call should use the selected model, got %s", gen.model)
	}

	parts := gen.contents[0].Parts
	if len(parts) != 2 {
		t.Fatalf("Expected text and image parts, got %d", len(parts))
	}
	if parts[0].Text != "What is this?" {
		t.Errorf("First part should be the prompt, got %q", parts[0].Text)
	}
	var inline int
	for _, p := range parts {
		if p.InlineData != nil {
			inline++
			if p.InlineData.MIMEType != "image/png" {
				t.Errorf("Expected image/png, got %s", p.InlineData.MIMEType)
			}
		}
	}
	if inline != 1 {
		t.Errorf("Expected exactly one inline part, got %d", inline)
	}
}

func TestGetReply_ImageWithoutPrompt(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	b := newTestBridge(gen, nil, Options{})

	img := discuss.Image{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8}}
	if _, err := b.GetReply(context.Background(), "  ", []discuss.Image{img}, Params{APIKey: "key"}); err != nil {
		t.Fatalf("GetReply returned error: %v", err)
	}
	parts := gen.contents[0].Parts
	if len(parts) != 1 || parts[0].InlineData == nil {
		t.Errorf("Blank prompt should send only the image, got %+v", parts)
	}
}

func TestGetReply_MissingAPIKey(t *testing.T) {
	gen := &stubGenerator{reply: "unused"}
	var factoryCalls int
	b := newTestBridge(gen, &factoryCalls, Options{})

	_, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "   "})
	if !discuss.IsConfigError(err) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
	if factoryCalls != 0 || gen.calls != 0 {
		t.Errorf("No client should be created without an API key (factory=%d, calls=%d)", factoryCalls, gen.calls)
	}
}

func TestGetReply_FactoryFailureIsConfigError(t *testing.T) {
	b := NewBridge(Options{
		Factory: func(context.Context, string) (ContentGenerator, error) {
			return nil, errors.New("bad credentials")
		},
		Logger: pkgLogger.NewLoggerWithWriters(pkgLogger.LogLevelError, io.Discard, io.Discard),
	})

	_, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "key"})
	if !discuss.IsConfigError(err) {
		t.Fatalf("Expected ConfigError, got %v", err)
	}
}

func TestGetReply_BackendError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("Error 429, Message: quota exceeded")}
	b := newTestBridge(gen, nil, Options{})

	_, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "key"})
	if !discuss.IsBackendError(err) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	var be *discuss.BackendError
	if !errors.As(err, &be) {
		t.Fatal("errors.As failed")
	}
	if be.Timeout {
		t.Error("Quota error must not be reported as timeout")
	}
	if !strings.Contains(be.Message, "quota exceeded") {
		t.Errorf("Service message should be kept, got %q", be.Message)
	}
}

func TestGetReply_Timeout(t *testing.T) {
	gen := &stubGenerator{wait: true}
	b := newTestBridge(gen, nil, Options{Timeout: 20 * time.Millisecond})

	_, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "key"})
	var be *discuss.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	if !be.Timeout {
		t.Error("Expected timeout flag")
	}
}

func TestGetReply_Canceled(t *testing.T) {
	gen := &stubGenerator{wait: true}
	b := newTestBridge(gen, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.GetReply(ctx, "hi", nil, Params{APIKey: "key"})
	var be *discuss.BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %v", err)
	}
	if be.Timeout {
		t.Error("Cancellation is not a timeout")
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("Expected wrapped context.Canceled")
	}
}

func TestGetReply_EmptyResponse(t *testing.T) {
	gen := &stubGenerator{}
	b := newTestBridge(gen, nil, Options{})

	_, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "key"})
	if !discuss.IsBackendError(err) {
		t.Fatalf("Expected BackendError for empty response, got %v", err)
	}
}

func TestGetReply_Options(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	b := newTestBridge(gen, nil, Options{MaxOutputTokens: 512, SystemInstruction: "Be brief."})

	if _, err := b.GetReply(context.Background(), "hi", nil, Params{APIKey: "key"}); err != nil {
		t.Fatalf("GetReply returned error: %v", err)
	}
	if gen.config.MaxOutputTokens != 512 {
		t.Errorf("Expected max output tokens 512, got %d", gen.config.MaxOutputTokens)
	}
	if gen.config.SystemInstruction == nil || gen.config.SystemInstruction.Parts[0].Text != "Be brief." {
		t.Errorf("System instruction not set: %+v", gen.config.SystemInstruction)
	}
}

func TestGetReplyWithStore(t *testing.T) {
	gen := &stubGenerator{reply: "ok"}
	b := newTestBridge(gen, nil, Options{})

	store := stubStore{discuss.ParamAPIKey: "key", discuss.ParamModelKey: "4"}
	img := discuss.Image{MIMEType: "image/png", Data: []byte{1}}
	if _, err := b.GetReplyWithStore(context.Background(), "hi", []discuss.Image{img}, store); err != nil {
		t.Fatalf("GetReplyWithStore returned error: %v", err)
	}
	if gen.model != modelGemini25FlashLite {
		t.Errorf("Expected model row 4 (%s), got %s", modelGemini25FlashLite, gen.model)
	}

	_, err := b.GetReplyWithStore(context.Background(), "hi", nil, stubStore{})
	if !discuss.IsConfigError(err) {
		t.Errorf("Expected ConfigError for empty store, got %v", err)
	}
}
