package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fpt/gemini-discuss/pkg/discuss"
	pkgLogger "github.com/fpt/gemini-discuss/pkg/logger"
)

// ErrPoison marks a delivery whose body can never be handled.
var ErrPoison = errors.New("poison message")

// EventHandler answers one event synchronously.
type EventHandler func(ctx context.Context, ev discuss.Event) error

// AMQPAdapter consumes JSON encoded events from a topic exchange and
// publishes replies back to it. Events are handled synchronously so the
// handler outcome decides the acknowledgement.
type AMQPAdapter struct {
	config     AMQPConfig
	bot        discuss.BotIdentity
	handle     EventHandler
	httpClient *http.Client
	logger     *pkgLogger.Logger

	mu    sync.Mutex
	conn  *amqp.Connection
	pubCh *amqp.Channel
	wg    sync.WaitGroup
}

// NewAMQPAdapter creates an AMQP adapter. The broker is dialled by Start.
func NewAMQPAdapter(cfg AMQPConfig, bot discuss.BotIdentity, handle EventHandler, logger *pkgLogger.Logger) *AMQPAdapter {
	return &AMQPAdapter{
		config:     cfg,
		bot:        bot,
		handle:     handle,
		httpClient: http.DefaultClient,
		logger:     logger.WithComponent("amqp"),
	}
}

func (a *AMQPAdapter) Name() string { return SourceAMQP }

// Start declares the topology, consumes until ctx is cancelled and waits for
// in-flight deliveries.
func (a *AMQPAdapter) Start(ctx context.Context) error {
	conn, err := amqp.Dial(a.config.URL)
	if err != nil {
		return errors.Wrap(err, "failed to dial amqp broker")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open amqp channel")
	}
	if err := ch.ExchangeDeclare(a.config.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return errors.Wrapf(err, "failed to declare exchange %s", a.config.Exchange)
	}
	if err := ch.Qos(a.config.Prefetch, 0, false); err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to set prefetch")
	}
	q, err := ch.QueueDeclare(a.config.Queue, true, false, false, false, nil)
	if err != nil {
		conn.Close()
		return errors.Wrapf(err, "failed to declare queue %s", a.config.Queue)
	}
	if err := ch.QueueBind(q.Name, a.config.InboundRoutingKey, a.config.Exchange, false, nil); err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to bind queue")
	}
	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to start consuming")
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to open publish channel")
	}
	if err := pubCh.Confirm(false); err != nil {
		conn.Close()
		return errors.Wrap(err, "failed to enable publisher confirms")
	}

	a.mu.Lock()
	a.conn = conn
	a.pubCh = pubCh
	a.mu.Unlock()

	a.logger.InfoWithIntention(pkgLogger.IntentionStatus, "AMQP consumer started",
		"exchange", a.config.Exchange, "queue", q.Name, "binding", a.config.InboundRoutingKey)

	// One worker per prefetched delivery.
	work := make(chan amqp.Delivery)
	for i := 0; i < a.config.Prefetch; i++ {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			for d := range work {
				a.process(ctx, d)
			}
		}()
	}

	defer func() {
		close(work)
		a.wg.Wait()
		_ = a.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			select {
			case work <- d:
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return nil
			}
		}
	}
}

func (a *AMQPAdapter) process(ctx context.Context, d amqp.Delivery) {
	ev, err := decodeEvent(d.Body, d.MessageId)
	if err == nil {
		err = a.handle(ctx, ev)
	}

	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrPoison):
		a.logger.Warn("Dropping undecodable delivery", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
	default:
		a.logger.Warn("Delivery failed", "message_id", d.MessageId, "event", ev.ID, "error", err)
		_ = d.Nack(false, false)
	}
}

// decodeEvent parses a delivery body. The delivery message id fills a missing
// event id.
func decodeEvent(body []byte, messageID string) (discuss.Event, error) {
	var ev discuss.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return discuss.Event{}, errors.Wrap(ErrPoison, err.Error())
	}
	if ev.ID == "" {
		ev.ID = messageID
	}
	if ev.ID == "" || ev.ChannelID == "" {
		return discuss.Event{}, errors.Wrap(ErrPoison, "event id and channel_id are required")
	}
	ev.Source = SourceAMQP
	if ev.ChannelKind == "" {
		ev.ChannelKind = discuss.ChannelKindChannel
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	return ev, nil
}

// Stop closes the broker connection.
func (a *AMQPAdapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	a.pubCh = nil
	if errors.Is(err, amqp.ErrClosed) {
		return nil
	}
	return err
}

// Send publishes reply on the outbound routing key and waits for the broker
// confirm. The reply's event id travels as the correlation id.
func (a *AMQPAdapter) Send(ctx context.Context, reply discuss.Reply) error {
	a.mu.Lock()
	ch := a.pubCh
	a.mu.Unlock()
	if ch == nil {
		return errors.New("amqp adapter is not connected")
	}

	pub, err := encodeReply(reply)
	if err != nil {
		return err
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, a.config.Exchange, a.config.OutboundRoutingKey, false, false, pub)
	if err != nil {
		return errors.Wrap(err, "failed to publish reply")
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return errors.Wrap(err, "failed waiting for publish confirm")
	}
	if !ok {
		return errors.New("broker rejected reply")
	}
	return nil
}

func encodeReply(reply discuss.Reply) (amqp.Publishing, error) {
	if reply.ID == "" {
		reply.ID = uuid.NewString()
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return amqp.Publishing{}, errors.Wrap(err, "failed to encode reply")
	}
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     reply.ID,
		CorrelationId: reply.ReplyToID,
		Timestamp:     time.Now(),
		Body:          body,
	}, nil
}

// SendTyping has no broker equivalent.
func (a *AMQPAdapter) SendTyping(ctx context.Context, channelID string) error {
	return nil
}

// FetchAttachment returns inline data, or downloads the attachment URL.
func (a *AMQPAdapter) FetchAttachment(ctx context.Context, att discuss.Attachment) ([]byte, error) {
	if att.Fetched() {
		return att.Data, nil
	}
	if strings.TrimSpace(att.URL) == "" {
		return nil, errors.Errorf("attachment %s has neither data nor url", att.ID)
	}
	return downloadAttachment(ctx, a.httpClient, att.URL)
}
