package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/pkg/errors"

	"github.com/fpt/gemini-discuss/internal/imaging"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

const discordMaxMessage = 2000

// discordSender is the part of *discordgo.Session used to post.
type discordSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendReply(channelID, content string, reference *discordgo.MessageReference, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
}

// DiscordAdapter implements the Adapter interface for Discord.
type DiscordAdapter struct {
	session     *discordgo.Session
	sender      discordSender
	bus         *MessageBus
	config      DiscordConfig
	bot         discuss.BotIdentity
	httpClient  *http.Client
	logger      *pkgLogger.Logger
	allowGuilds map[string]bool
	allowChans  map[string]bool
	allowUsers  map[string]bool

	mu        sync.RWMutex
	botUserID string // set on every Ready, including reconnects
}

// NewDiscordAdapter creates a Discord adapter.
func NewDiscordAdapter(bus *MessageBus, cfg DiscordConfig, bot discuss.BotIdentity, logger *pkgLogger.Logger) (*DiscordAdapter, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create discord session")
	}

	dg.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	a := &DiscordAdapter{
		session:     dg,
		sender:      dg,
		bus:         bus,
		config:      cfg,
		bot:         bot,
		httpClient:  http.DefaultClient,
		logger:      logger.WithComponent("discord"),
		allowGuilds: toSet(cfg.AllowedGuildIDs),
		allowChans:  toSet(cfg.AllowedChannelIDs),
		allowUsers:  toSet(cfg.AllowedUserIDs),
	}

	dg.AddHandler(a.handleMessage)
	dg.AddHandler(a.handleReady)

	return a, nil
}

func (a *DiscordAdapter) Name() string { return SourceDiscord }

func (a *DiscordAdapter) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	a.mu.Lock()
	a.botUserID = r.User.ID
	a.mu.Unlock()
	a.logger.InfoWithIntention(pkgLogger.IntentionStatus, "Discord bot connected", "user", r.User.Username)
}

func (a *DiscordAdapter) selfID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.botUserID
}

func (a *DiscordAdapter) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil {
		return
	}
	self := a.selfID()
	// Other bots never reach the router; the bot itself is mapped below.
	if m.Author.Bot && m.Author.ID != self {
		return
	}
	if !a.allowed(self, m.GuildID, m.ChannelID, m.Author.ID) {
		return
	}

	var ch *discordgo.Channel
	if s != nil && s.State != nil {
		ch, _ = s.State.Channel(m.ChannelID)
	}

	ev := a.toEvent(m.Message, ch)
	select {
	case a.bus.Inbound <- ev:
	default:
		a.logger.Warn("Inbound queue full, dropping message", "channel", m.ChannelID, "message", m.ID)
	}
}

func (a *DiscordAdapter) allowed(self, guildID, channelID, userID string) bool {
	if len(a.allowUsers) > 0 && !a.allowUsers[userID] && userID != self {
		return false
	}
	if guildID != "" && len(a.allowGuilds) > 0 && !a.allowGuilds[guildID] {
		return false
	}
	if len(a.allowChans) > 0 && !a.allowChans[channelID] {
		return false
	}
	return true
}

// toEvent maps a Discord message to an event. ch may be nil when the channel
// is not in the state cache.
func (a *DiscordAdapter) toEvent(m *discordgo.Message, ch *discordgo.Channel) discuss.Event {
	self := a.selfID()
	ev := discuss.Event{
		ID:          m.ID,
		Source:      SourceDiscord,
		ChannelID:   m.ChannelID,
		ChannelKind: discuss.ChannelKindChannel,
		AuthorID:    m.Author.ID,
		AuthorName:  m.Author.Username,
		Body:        stripMention(m.Content, self),
		Timestamp:   m.Timestamp,
	}

	if self != "" && m.Author.ID == self {
		ev.AuthorID = a.bot.AccountID
		ev.AuthorName = a.bot.Name
	}

	switch {
	case m.GuildID == "":
		ev.ChannelKind = discuss.ChannelKindDirect
		ev.Label = directLabel(a.bot.Name, m.Author.Username)
	case ch != nil && ch.IsThread():
		ev.ThreadID = ch.ID
		ev.ChannelID = ch.ParentID
		ev.Label = "#" + ch.Name
	case ch != nil:
		ev.Label = "#" + ch.Name
	}

	for _, att := range m.Attachments {
		ev.Attachments = append(ev.Attachments, discuss.Attachment{
			ID:       att.ID,
			Name:     att.Filename,
			MIMEType: att.ContentType,
			URL:      att.URL,
		})
	}
	return ev
}

func stripMention(text, botUserID string) string {
	if botUserID != "" {
		text = strings.ReplaceAll(text, "<@"+botUserID+">", "")
		text = strings.ReplaceAll(text, "<@!"+botUserID+">", "")
	}
	return strings.TrimSpace(text)
}

// Start connects to Discord and blocks until ctx is cancelled.
func (a *DiscordAdapter) Start(ctx context.Context) error {
	a.logger.InfoWithIntention(pkgLogger.IntentionStatus, "Starting Discord adapter")

	if err := a.session.Open(); err != nil {
		return errors.Wrap(err, "failed to open discord connection")
	}

	<-ctx.Done()
	return a.session.Close()
}

// Stop closes the Discord connection.
func (a *DiscordAdapter) Stop() error {
	return a.session.Close()
}

// Send posts a reply, splitting it if over 2000 chars. The first chunk is
// sent as a reply to the triggering message; the rest follow as plain
// messages. Replies in threads go to the thread.
func (a *DiscordAdapter) Send(ctx context.Context, reply discuss.Reply) error {
	channelID := reply.ChannelID
	if reply.ThreadID != "" {
		channelID = reply.ThreadID
	}

	chunks := splitMessage(reply.Body, discordMaxMessage)
	for i, chunk := range chunks {
		var err error
		if i == 0 && reply.ReplyToID != "" {
			ref := &discordgo.MessageReference{MessageID: reply.ReplyToID, ChannelID: channelID}
			_, err = a.sender.ChannelMessageSendReply(channelID, chunk, ref, discordgo.WithContext(ctx))
		} else {
			_, err = a.sender.ChannelMessageSend(channelID, chunk, discordgo.WithContext(ctx))
		}
		if err != nil {
			return errors.Wrap(err, "failed to send discord message")
		}
	}
	return nil
}

// SendTyping shows a typing indicator.
func (a *DiscordAdapter) SendTyping(ctx context.Context, channelID string) error {
	return a.sender.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

// FetchAttachment downloads an attachment from the Discord CDN.
func (a *DiscordAdapter) FetchAttachment(ctx context.Context, att discuss.Attachment) ([]byte, error) {
	if att.Fetched() {
		return att.Data, nil
	}
	return downloadAttachment(ctx, a.httpClient, att.URL)
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

// directLabel names a one-to-one conversation after its participants, bot
// first, the way the router expects to be addressed.
func directLabel(botName, peer string) string {
	if peer == "" {
		return botName
	}
	return botName + ", " + peer
}

// splitMessage splits text into chunks at newline boundaries, respecting
// maxLen bytes and never cutting a UTF-8 sequence.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else {
			for cutAt > 0 && !isRuneStart(text[cutAt]) {
				cutAt--
			}
			if cutAt == 0 {
				cutAt = maxLen
			}
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}
	return chunks
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// downloadAttachment fetches url and returns the raw bytes, refusing bodies
// larger than imaging.MaxImageBytes.
func downloadAttachment(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if url == "" {
		return nil, errors.New("attachment has no url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "invalid attachment url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "download failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(imaging.MaxImageBytes)+1))
	if err != nil {
		return nil, errors.Wrap(err, "read failed")
	}
	if len(data) > imaging.MaxImageBytes {
		return nil, fmt.Errorf("attachment exceeds %dMB size limit", imaging.MaxImageBytes/1024/1024)
	}
	return data, nil
}
