package gateway

// Config configures the gateway and its substrate adapters. An adapter is
// enabled when its credential (token or URL) is set.
type Config struct {
	BroadcastChannelID string `yaml:"broadcast_channel_id" json:"broadcast_channel_id"` // always-listening channel, empty to disable
	NotifyErrors       bool   `yaml:"notify_errors" json:"notify_errors"`               // post a short notice when a reply fails
	BufferSize         int    `yaml:"buffer_size" json:"buffer_size"`

	Discord  DiscordConfig  `yaml:"discord" json:"discord"`
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	AMQP     AMQPConfig     `yaml:"amqp" json:"amqp"`
}

// DiscordConfig holds Discord bot configuration.
type DiscordConfig struct {
	Token             string   `yaml:"token" json:"token"`
	AllowedGuildIDs   []string `yaml:"allowed_guild_ids" json:"allowed_guild_ids"`
	AllowedChannelIDs []string `yaml:"allowed_channel_ids" json:"allowed_channel_ids"`
	AllowedUserIDs    []string `yaml:"allowed_user_ids" json:"allowed_user_ids"`
}

// TelegramConfig holds Telegram bot configuration.
type TelegramConfig struct {
	Token          string  `yaml:"token" json:"token"`
	AllowedChatIDs []int64 `yaml:"allowed_chat_ids" json:"allowed_chat_ids"`
	PollTimeout    int     `yaml:"poll_timeout" json:"poll_timeout"` // long polling timeout in seconds
	Debug          bool    `yaml:"debug" json:"debug"`
}

// AMQPConfig holds the message broker configuration.
type AMQPConfig struct {
	URL                string `yaml:"url" json:"url"`
	Exchange           string `yaml:"exchange" json:"exchange"`
	Queue              string `yaml:"queue" json:"queue"`
	InboundRoutingKey  string `yaml:"inbound_routing_key" json:"inbound_routing_key"`
	OutboundRoutingKey string `yaml:"outbound_routing_key" json:"outbound_routing_key"`
	Prefetch           int    `yaml:"prefetch" json:"prefetch"`
}

// DefaultConfig returns the gateway defaults. No adapter is enabled.
func DefaultConfig() Config {
	return Config{
		BufferSize: 64,
		Telegram: TelegramConfig{
			PollTimeout: 60,
		},
		AMQP: AMQPConfig{
			Exchange:           "discuss",
			Queue:              "gemini-discuss.inbound",
			InboundRoutingKey:  "discuss.inbound",
			OutboundRoutingKey: "discuss.outbound",
			Prefetch:           8,
		},
	}
}

// ApplyDefaults fills zero fields from DefaultConfig.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.Telegram.PollTimeout <= 0 {
		c.Telegram.PollTimeout = d.Telegram.PollTimeout
	}
	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = d.AMQP.Exchange
	}
	if c.AMQP.Queue == "" {
		c.AMQP.Queue = d.AMQP.Queue
	}
	if c.AMQP.InboundRoutingKey == "" {
		c.AMQP.InboundRoutingKey = d.AMQP.InboundRoutingKey
	}
	if c.AMQP.OutboundRoutingKey == "" {
		c.AMQP.OutboundRoutingKey = d.AMQP.OutboundRoutingKey
	}
	if c.AMQP.Prefetch <= 0 {
		c.AMQP.Prefetch = d.AMQP.Prefetch
	}
}

// Enabled returns the names of the adapters whose credentials are set.
func (c Config) Enabled() []string {
	var names []string
	if c.Discord.Token != "" {
		names = append(names, SourceDiscord)
	}
	if c.Telegram.Token != "" {
		names = append(names, SourceTelegram)
	}
	if c.AMQP.URL != "" {
		names = append(names, SourceAMQP)
	}
	return names
}
