package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/fpt/gemini-discuss/internal/router"
	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

// Gateway is the main orchestrator: it owns the adapters, feeds inbound
// events to the responder and sends replies back through their source.
type Gateway struct {
	config    Config
	bot       discuss.BotIdentity
	bus       *MessageBus
	responder *Responder
	adapters  map[string]Adapter
	logger    *pkgLogger.Logger
	wg        sync.WaitGroup
}

// NewGateway creates a gateway with no adapters. Use AddAdapter or
// AddConfiguredAdapters before Run.
func NewGateway(cfg Config, bot discuss.BotIdentity, rt *router.Router, bridge ReplyGenerator, params discuss.ParameterStore, logger *pkgLogger.Logger) *Gateway {
	cfg.ApplyDefaults()
	gw := &Gateway{
		config:   cfg,
		bot:      bot,
		bus:      NewMessageBus(cfg.BufferSize),
		adapters: make(map[string]Adapter),
		logger:   logger.WithComponent("gateway"),
	}
	gw.responder = NewResponder(rt, bridge, params, bot, gw, logger)
	return gw
}

// Bus returns the message bus adapters publish inbound events to.
func (gw *Gateway) Bus() *MessageBus {
	return gw.bus
}

// AddAdapter registers a. Its FetchAttachment serves events from a.Name().
func (gw *Gateway) AddAdapter(a Adapter) {
	gw.adapters[a.Name()] = a
	gw.responder.RegisterFetcher(a.Name(), a)
}

// AddConfiguredAdapters creates every adapter enabled in the configuration.
func (gw *Gateway) AddConfiguredAdapters() error {
	if gw.config.Discord.Token != "" {
		discord, err := NewDiscordAdapter(gw.bus, gw.config.Discord, gw.bot, gw.logger)
		if err != nil {
			return errors.Wrap(err, "failed to create discord adapter")
		}
		gw.AddAdapter(discord)
	}
	if gw.config.Telegram.Token != "" {
		telegram, err := NewTelegramAdapter(gw.bus, gw.config.Telegram, gw.bot, gw.logger)
		if err != nil {
			return errors.Wrap(err, "failed to create telegram adapter")
		}
		gw.AddAdapter(telegram)
	}
	if gw.config.AMQP.URL != "" {
		gw.AddAdapter(NewAMQPAdapter(gw.config.AMQP, gw.bot, gw.HandleEvent, gw.logger))
	}
	if len(gw.adapters) == 0 {
		return errors.New("no adapter configured (set a discord token, a telegram token or an amqp url)")
	}
	return nil
}

// Run starts all adapters and processes messages. Blocks until ctx is
// cancelled, then waits for in-flight events.
func (gw *Gateway) Run(ctx context.Context) error {
	for name, a := range gw.adapters {
		gw.logger.InfoWithIntention(pkgLogger.IntentionStatus, "Starting adapter", "adapter", name)
		go func(n string, ad Adapter) {
			if err := ad.Start(ctx); err != nil {
				gw.logger.Error("Adapter failed", "adapter", n, "error", err)
			}
		}(name, a)
	}

	gw.logger.InfoWithIntention(pkgLogger.IntentionStatus, "Gateway running, processing messages",
		"broadcast_channel", gw.config.BroadcastChannelID, "bot", gw.bot.Name)
	for {
		select {
		case <-ctx.Done():
			gw.wg.Wait()
			return ctx.Err()
		case ev := <-gw.bus.Inbound:
			gw.wg.Add(1)
			go func() {
				defer gw.wg.Done()
				_ = gw.HandleEvent(ctx, ev)
			}()
		}
	}
}

// HandleEvent runs the responder for one event. It is the outer edge: panics
// are recovered, failures are logged and, when notify_errors is set, reported
// to the sender as a short notice.
func (gw *Gateway) HandleEvent(ctx context.Context, ev discuss.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while handling event %s: %v", ev.ID, p)
		}
		if err != nil {
			gw.logger.Error("Failed to answer message", "event", ev.ID, "source", ev.Source, "error", err)
			gw.notify(ctx, ev, err)
		}
	}()
	return gw.responder.Handle(ctx, ev)
}

func (gw *Gateway) notify(ctx context.Context, ev discuss.Event, cause error) {
	if !gw.config.NotifyErrors || ctx.Err() != nil {
		return
	}
	notice := discuss.ReplyTo(ev, gw.bot, discuss.UserMessage(cause))
	notice.Notice = true
	if err := gw.Post(ctx, notice); err != nil {
		gw.logger.Warn("Failed to post error notice", "event", ev.ID, "error", err)
	}
}

// Post sends reply through its source adapter and returns the delivery
// error, if any.
func (gw *Gateway) Post(ctx context.Context, reply discuss.Reply) error {
	a, ok := gw.adapters[reply.Source]
	if !ok {
		return errors.Errorf("no adapter for source %q", reply.Source)
	}
	if err := a.Send(ctx, reply); err != nil {
		return errors.Wrapf(err, "failed to send reply via %s", reply.Source)
	}
	return nil
}

// Typing shows a typing indicator where ev was posted.
func (gw *Gateway) Typing(ctx context.Context, ev discuss.Event) {
	if a, ok := gw.adapters[ev.Source]; ok {
		if err := a.SendTyping(ctx, ev.Target()); err != nil {
			gw.logger.Debug("Typing indicator failed", "source", ev.Source, "error", err)
		}
	}
}

// Close shuts down all adapters.
func (gw *Gateway) Close() error {
	for _, a := range gw.adapters {
		_ = a.Stop()
	}
	return nil
}
