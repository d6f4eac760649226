package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/fpt/gemini-discuss/internal/gateway"
	"github.com/fpt/gemini-discuss/internal/router"
	"github.com/fpt/gemini-discuss/pkg/client/gemini"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

const (
	// DefaultBotName is the display name the bot posts under.
	DefaultBotName = "Gemini"
	// DefaultBotAccountID identifies messages authored by the bot.
	DefaultBotAccountID = "gemini-discuss-bot"
	// DefaultTimeout bounds each Gemini call.
	DefaultTimeout = "60s"
)

// Settings represents the main application settings
type Settings struct {
	Bot      BotSettings    `yaml:"bot" json:"bot"`
	Gemini   GeminiSettings `yaml:"gemini" json:"gemini"`
	Store    StoreSettings  `yaml:"store" json:"store"`
	Gateway  gateway.Config `yaml:"gateway" json:"gateway"`
	LogLevel string         `yaml:"log_level" json:"log_level"`
}

// BotSettings describes the synthetic participant that speaks for Gemini.
type BotSettings struct {
	Name      string   `yaml:"name" json:"name"`
	AccountID string   `yaml:"account_id" json:"account_id"`
	Aliases   []string `yaml:"aliases,omitempty" json:"aliases,omitempty"` // extra addressed forms, e.g. "Gemini"
}

// GeminiSettings contains bridge configuration. APIKey and ModelKey are
// fallbacks for the runtime parameter store; ModelKey defaults to the vision
// row.
type GeminiSettings struct {
	APIKey            string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	ModelKey          string `yaml:"model_key,omitempty" json:"model_key,omitempty"`
	Timeout           string `yaml:"timeout" json:"timeout"` // Go duration
	MaxOutputTokens   int    `yaml:"max_output_tokens,omitempty" json:"max_output_tokens,omitempty"`
	SystemInstruction string `yaml:"system_instruction,omitempty" json:"system_instruction,omitempty"`
}

// StoreSettings locates the SQLite database.
type StoreSettings struct {
	Path string `yaml:"path" json:"path"`
}

// envOverrides are read with envconfig; set values replace file values.
type envOverrides struct {
	APIKey           string `envconfig:"GEMINI_API_KEY"`
	ModelKey         string `envconfig:"GEMINI_MODEL_KEY"`
	LogLevel         string `envconfig:"GEMINI_DISCUSS_LOG_LEVEL"`
	BroadcastChannel string `envconfig:"GEMINI_DISCUSS_BROADCAST_CHANNEL"`
	DiscordToken     string `envconfig:"DISCORD_BOT_TOKEN"`
	TelegramToken    string `envconfig:"TELEGRAM_BOT_TOKEN"`
	AMQPURL          string `envconfig:"AMQP_URL"`
}

// BaseDir returns ~/.gemini-discuss.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gemini-discuss"
	}
	return filepath.Join(home, ".gemini-discuss")
}

// DefaultSettingsPath returns ~/.gemini-discuss/settings.yaml.
func DefaultSettingsPath() string {
	return filepath.Join(BaseDir(), "settings.yaml")
}

// GetDefaultSettings returns default application settings
func GetDefaultSettings() *Settings {
	return &Settings{
		Bot: BotSettings{
			Name:      DefaultBotName,
			AccountID: DefaultBotAccountID,
			Aliases:   []string{router.DefaultAlias},
		},
		Gemini: GeminiSettings{
			ModelKey: gemini.KeyVision,
			Timeout:  DefaultTimeout,
		},
		Store: StoreSettings{
			Path: filepath.Join(BaseDir(), "gemini-discuss.db"),
		},
		Gateway:  gateway.DefaultConfig(),
		LogLevel: string(pkgLogger.LogLevelInfo),
	}
}

// LoadSettings reads the settings file at path (the default path when empty),
// creating it with defaults if it does not exist, then applies environment
// overrides.
func LoadSettings(path string) (*Settings, error) {
	if path == "" {
		path = DefaultSettingsPath()
	}

	settings := GetDefaultSettings()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		if err := SaveSettings(path, settings); err != nil {
			pkgLogger.NewComponentLogger("settings").Warn("Could not create default settings file", "path", path, "error", err)
		} else {
			log := pkgLogger.NewComponentLogger("settings")
			log.InfoWithIntention(pkgLogger.IntentionConfig, "Created default settings file", "path", path)
			log.InfoWithIntention(pkgLogger.IntentionStatus, "You can edit this file to customize your configuration")
		}
	case err != nil:
		return nil, errors.Wrapf(err, "failed to read settings file %s", path)
	default:
		if err := unmarshalSettings(path, data, settings); err != nil {
			return nil, err
		}
	}

	applyDefaults(settings)
	if err := ApplyEnv(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings writes settings to path as YAML, or JSON for a .json path.
func SaveSettings(path string, settings *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	var (
		data []byte
		err  error
	)
	if isJSON(path) {
		data, err = json.MarshalIndent(settings, "", "  ")
	} else {
		data, err = yaml.Marshal(settings)
	}
	if err != nil {
		return errors.Wrap(err, "failed to marshal settings")
	}

	// The file may hold credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write settings file")
	}
	return nil
}

func unmarshalSettings(path string, data []byte, settings *Settings) error {
	var err error
	if isJSON(path) {
		err = json.Unmarshal(data, settings)
	} else {
		err = yaml.Unmarshal(data, settings)
	}
	if err != nil {
		return errors.Wrapf(err, "failed to parse settings file %s", path)
	}
	return nil
}

func isJSON(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".json")
}

// applyDefaults fills in missing fields with default values
func applyDefaults(settings *Settings) {
	defaults := GetDefaultSettings()

	if settings.Bot.Name == "" {
		settings.Bot.Name = defaults.Bot.Name
	}
	if settings.Bot.AccountID == "" {
		settings.Bot.AccountID = defaults.Bot.AccountID
	}
	if len(settings.Bot.Aliases) == 0 {
		settings.Bot.Aliases = defaults.Bot.Aliases
	}
	if settings.Gemini.ModelKey == "" {
		settings.Gemini.ModelKey = defaults.Gemini.ModelKey
	}
	if settings.Gemini.Timeout == "" {
		settings.Gemini.Timeout = defaults.Gemini.Timeout
	}
	if settings.Store.Path == "" {
		settings.Store.Path = defaults.Store.Path
	}
	if settings.LogLevel == "" {
		settings.LogLevel = defaults.LogLevel
	}
	settings.Gateway.ApplyDefaults()
}

// ApplyEnv overlays environment variables onto settings.
func ApplyEnv(settings *Settings) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return errors.Wrap(err, "failed to read environment")
	}

	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&settings.Gemini.APIKey, env.APIKey)
	set(&settings.Gemini.ModelKey, env.ModelKey)
	set(&settings.LogLevel, env.LogLevel)
	set(&settings.Gateway.BroadcastChannelID, env.BroadcastChannel)
	set(&settings.Gateway.Discord.Token, env.DiscordToken)
	set(&settings.Gateway.Telegram.Token, env.TelegramToken)
	set(&settings.Gateway.AMQP.URL, env.AMQPURL)
	return nil
}

// ValidateSettings validates the settings configuration
func ValidateSettings(settings *Settings) error {
	if strings.TrimSpace(settings.Bot.Name) == "" {
		return fmt.Errorf("bot name is required")
	}
	if strings.ContainsAny(settings.Bot.Name, ",\n") {
		return fmt.Errorf("bot name %q must not contain commas or newlines", settings.Bot.Name)
	}
	if settings.Bot.AccountID == "" {
		return fmt.Errorf("bot account_id is required")
	}

	timeout, err := time.ParseDuration(settings.Gemini.Timeout)
	if err != nil {
		return fmt.Errorf("invalid gemini timeout %q: %w", settings.Gemini.Timeout, err)
	}
	if timeout <= 0 {
		return fmt.Errorf("gemini timeout must be positive")
	}
	if settings.Gemini.MaxOutputTokens < 0 {
		return fmt.Errorf("max_output_tokens must not be negative")
	}

	switch pkgLogger.LogLevel(strings.ToLower(settings.LogLevel)) {
	case pkgLogger.LogLevelDebug, pkgLogger.LogLevelInfo, pkgLogger.LogLevelWarn, pkgLogger.LogLevelError:
	default:
		return fmt.Errorf("unsupported log level: %s (must be 'debug', 'info', 'warn' or 'error')", settings.LogLevel)
	}

	if settings.Store.Path == "" {
		return fmt.Errorf("store path is required")
	}
	return nil
}

// Timeout returns the parsed Gemini call timeout, or the default when the
// configured value is unusable.
func (s *Settings) Timeout() time.Duration {
	d, err := time.ParseDuration(s.Gemini.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultTimeout)
	}
	return d
}

// BotIdentity returns the configured bot participant.
func (s *Settings) BotIdentity() discuss.BotIdentity {
	return discuss.BotIdentity{Name: s.Bot.Name, AccountID: s.Bot.AccountID}
}
