package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/fpt/gemini-discuss/internal/imaging"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

const telegramMaxMessage = 4000

// telegramAPI is the part of *tgbotapi.BotAPI used after connecting.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// TelegramAdapter implements the Adapter interface for a Telegram bot using
// long polling.
type TelegramAdapter struct {
	config     TelegramConfig
	bus        *MessageBus
	bot        discuss.BotIdentity
	httpClient *http.Client
	logger     *pkgLogger.Logger
	allowChats map[int64]bool

	mu     sync.RWMutex
	api    telegramAPI
	selfID int64
}

// NewTelegramAdapter creates a Telegram adapter. The bot API is contacted
// when Start is called.
func NewTelegramAdapter(bus *MessageBus, cfg TelegramConfig, bot discuss.BotIdentity, logger *pkgLogger.Logger) (*TelegramAdapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	allow := make(map[int64]bool, len(cfg.AllowedChatIDs))
	for _, id := range cfg.AllowedChatIDs {
		allow[id] = true
	}
	return &TelegramAdapter{
		config:     cfg,
		bus:        bus,
		bot:        bot,
		httpClient: http.DefaultClient,
		logger:     logger.WithComponent("telegram"),
		allowChats: allow,
	}, nil
}

func (t *TelegramAdapter) Name() string { return SourceTelegram }

// Start connects to Telegram and polls for updates until ctx is cancelled.
func (t *TelegramAdapter) Start(ctx context.Context) error {
	api, err := tgbotapi.NewBotAPIWithClient(t.config.Token, tgbotapi.APIEndpoint, t.httpClient)
	if err != nil {
		return errors.Wrap(err, "telegram bot init")
	}
	api.Debug = t.config.Debug

	t.mu.Lock()
	t.api = api
	t.selfID = api.Self.ID
	t.mu.Unlock()

	t.logger.InfoWithIntention(pkgLogger.IntentionStatus, "Telegram bot connected",
		"username", api.Self.UserName, "id", api.Self.ID)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.config.PollTimeout
	updates := api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			t.handleMessage(update.Message)
		}
	}
}

// Stop is a no-op: polling stops when the Start context is cancelled, and
// StopReceivingUpdates must not be called twice.
func (t *TelegramAdapter) Stop() error {
	return nil
}

func (t *TelegramAdapter) handleMessage(m *tgbotapi.Message) {
	if m.Chat == nil || m.From == nil {
		return
	}
	if len(t.allowChats) > 0 && !t.allowChats[m.Chat.ID] {
		t.logger.Debug("Ignoring message from chat not in allow list", "chat_id", m.Chat.ID)
		return
	}

	t.mu.RLock()
	selfID := t.selfID
	t.mu.RUnlock()

	ev := telegramEvent(m, selfID, t.bot)
	select {
	case t.bus.Inbound <- ev:
	default:
		t.logger.Warn("Inbound queue full, dropping message", "chat_id", m.Chat.ID, "message", m.MessageID)
	}
}

// telegramEvent maps a Telegram message to an event. selfID is the bot's own
// Telegram user id.
func telegramEvent(m *tgbotapi.Message, selfID int64, bot discuss.BotIdentity) discuss.Event {
	ev := discuss.Event{
		ID:          strconv.Itoa(m.MessageID),
		Source:      SourceTelegram,
		ChannelID:   strconv.FormatInt(m.Chat.ID, 10),
		ChannelKind: discuss.ChannelKindChannel,
		AuthorID:    strconv.FormatInt(m.From.ID, 10),
		AuthorName:  telegramUserName(m.From),
		Body:        strings.TrimSpace(m.Text),
		Timestamp:   time.Unix(int64(m.Date), 0),
	}
	if ev.Body == "" {
		ev.Body = strings.TrimSpace(m.Caption)
	}

	if selfID != 0 && m.From.ID == selfID {
		ev.AuthorID = bot.AccountID
		ev.AuthorName = bot.Name
	}

	if m.Chat.IsPrivate() {
		ev.ChannelKind = discuss.ChannelKindDirect
		ev.Label = directLabel(bot.Name, m.From.FirstName)
	} else {
		ev.Label = m.Chat.Title
	}

	if len(m.Photo) > 0 {
		largest := m.Photo[0]
		for _, p := range m.Photo[1:] {
			if p.Width*p.Height > largest.Width*largest.Height {
				largest = p
			}
		}
		ev.Attachments = append(ev.Attachments, discuss.Attachment{
			ID:       largest.FileID,
			Name:     largest.FileUniqueID + ".jpg",
			MIMEType: "image/jpeg",
		})
	}
	if d := m.Document; d != nil && imaging.IsImageContentType(d.MimeType) {
		ev.Attachments = append(ev.Attachments, discuss.Attachment{
			ID:       d.FileID,
			Name:     d.FileName,
			MIMEType: d.MimeType,
		})
	}
	return ev
}

func telegramUserName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (t *TelegramAdapter) client() (telegramAPI, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.api == nil {
		return nil, errors.New("telegram adapter is not connected")
	}
	return t.api, nil
}

// Send posts a reply, split into chunks of at most 4000 bytes. The first
// chunk replies to the triggering message.
func (t *TelegramAdapter) Send(ctx context.Context, reply discuss.Reply) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(reply.ChannelID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid telegram chat id %q", reply.ChannelID)
	}
	replyTo, _ := strconv.Atoi(reply.ReplyToID)

	for i, chunk := range splitMessage(reply.Body, telegramMaxMessage) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(chatID, chunk)
		if i == 0 && replyTo != 0 {
			msg.ReplyToMessageID = replyTo
		}
		if _, err := api.Send(msg); err != nil {
			return errors.Wrap(err, "failed to send telegram message")
		}
	}
	return nil
}

// SendTyping shows the "typing" chat action.
func (t *TelegramAdapter) SendTyping(ctx context.Context, channelID string) error {
	api, err := t.client()
	if err != nil {
		return err
	}
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid telegram chat id %q", channelID)
	}
	_, err = api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
	return err
}

// FetchAttachment resolves the file id to a download URL and fetches it.
func (t *TelegramAdapter) FetchAttachment(ctx context.Context, att discuss.Attachment) ([]byte, error) {
	if att.Fetched() {
		return att.Data, nil
	}
	url := att.URL
	if url == "" {
		api, err := t.client()
		if err != nil {
			return nil, err
		}
		url, err = api.GetFileDirectURL(att.ID)
		if err != nil {
			return nil, errors.Wrap(err, "failed to resolve telegram file")
		}
	}
	return downloadAttachment(ctx, t.httpClient, url)
}
