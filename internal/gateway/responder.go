package gateway

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/fpt/gemini-discuss/internal/imaging"
	"github.com/fpt/gemini-discuss/internal/router"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

// ReplyGenerator produces the model answer for a prompt and its images,
// reading its parameters from the store at call time.
type ReplyGenerator interface {
	GetReplyWithStore(ctx context.Context, prompt string, images []discuss.Image, store discuss.ParameterStore) (string, error)
}

// Poster delivers replies to the conversation an event came from.
type Poster interface {
	Post(ctx context.Context, reply discuss.Reply) error
	// Typing signals that a reply to ev is being prepared. Best effort.
	Typing(ctx context.Context, ev discuss.Event)
}

// AttachmentFetcher downloads attachment bytes for one source.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, att discuss.Attachment) ([]byte, error)
}

// Responder turns a triggering event into exactly one bot reply.
type Responder struct {
	router   *router.Router
	bridge   ReplyGenerator
	params   discuss.ParameterStore
	bot      discuss.BotIdentity
	poster   Poster
	fetchers map[string]AttachmentFetcher
	logger   *pkgLogger.Logger
}

// NewResponder wires the router, the bridge and the parameter store.
// Replies go to poster.
func NewResponder(r *router.Router, bridge ReplyGenerator, params discuss.ParameterStore, bot discuss.BotIdentity, poster Poster, logger *pkgLogger.Logger) *Responder {
	return &Responder{
		router:   r,
		bridge:   bridge,
		params:   params,
		bot:      bot,
		poster:   poster,
		fetchers: make(map[string]AttachmentFetcher),
		logger:   logger.WithComponent("responder"),
	}
}

// RegisterFetcher makes f responsible for attachments of events from source.
// Register before events start flowing.
func (r *Responder) RegisterFetcher(source string, f AttachmentFetcher) {
	r.fetchers[source] = f
}

// Handle evaluates ev and, when it triggers, asks Gemini and posts the reply.
// Nothing is posted when an error is returned.
func (r *Responder) Handle(ctx context.Context, ev discuss.Event) error {
	log := r.logger.WithEvent(ev.ID)

	decision := r.router.Decide(ev)
	log.DebugWithIntention(pkgLogger.IntentionRouting, "Routing decision",
		"source", ev.Source, "channel", ev.Target(), "kind", ev.ChannelKind, "rule", decision.Rule, "respond", decision.Respond)
	if !decision.Respond {
		return nil
	}

	r.poster.Typing(ctx, ev)

	images := r.collectImages(ctx, log, ev)
	if strings.TrimSpace(ev.Body) == "" && len(images) == 0 {
		return &discuss.ValidationError{Reason: "message has no text and no readable image"}
	}

	log.InfoWithIntention(pkgLogger.IntentionBridge, "Asking Gemini",
		"author", ev.AuthorName, "images", len(images), "rule", decision.Rule)

	text, err := r.bridge.GetReplyWithStore(ctx, ev.Body, images, r.params)
	if err != nil {
		return err
	}

	reply := discuss.ReplyTo(ev, r.bot, text)
	if err := r.poster.Post(ctx, reply); err != nil {
		return errors.Wrap(err, "failed to post reply")
	}
	log.InfoWithIntention(pkgLogger.IntentionReply, "Reply posted", "channel", ev.Target(), "chars", len(text))
	return nil
}

// collectImages fetches and validates the attachments of ev. Failures are
// logged and the attachment is left out.
func (r *Responder) collectImages(ctx context.Context, log *pkgLogger.Logger, ev discuss.Event) []discuss.Image {
	if len(ev.Attachments) == 0 {
		return nil
	}

	fetched := make([]discuss.Attachment, 0, len(ev.Attachments))
	for _, att := range ev.Attachments {
		if att.MIMEType != "" && !imaging.IsImageContentType(att.MIMEType) {
			log.DebugWithIntention(pkgLogger.IntentionValidation, "Skipping non-image attachment",
				"attachment", att.ID, "mime", att.MIMEType)
			continue
		}
		if !att.Fetched() {
			f, ok := r.fetchers[ev.Source]
			if !ok {
				log.Warn("No attachment fetcher for source", "source", ev.Source, "attachment", att.ID)
				continue
			}
			data, err := f.FetchAttachment(ctx, att)
			if err != nil {
				log.Warn("Failed to fetch attachment", "attachment", att.ID, "error", err)
				continue
			}
			att.Data = data
		}
		fetched = append(fetched, att)
	}

	images, errs := imaging.FilterImages(fetched)
	for _, err := range errs {
		log.Warn("Attachment excluded", "error", err)
	}
	return images
}
