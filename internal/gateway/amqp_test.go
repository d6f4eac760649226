package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fpt/gemini-discuss/internal/router"
	"github.com/fpt/gemini-discuss/pkg/discuss"
)

func TestDecodeEvent(t *testing.T) {
	body := []byte(`{
		"channel_id": "general",
		"author_id": "u1",
		"body": "hello",
		"attachments": [{"id": "a1", "mime_type": "image/png", "data": "iVBORw0KGgo="}]
	}`)

	ev, err := decodeEvent(body, "msg-1")
	if err != nil {
		t.Fatalf("decodeEvent returned error: %v", err)
	}
	if ev.ID != "msg-1" {
		t.Errorf("Delivery message id should fill the event id, got %q", ev.ID)
	}
	if ev.Source != SourceAMQP || ev.ChannelKind != discuss.ChannelKindChannel {
		t.Errorf("Defaults not applied: %+v", ev)
	}
	if len(ev.Attachments) != 1 || !ev.Attachments[0].Fetched() {
		t.Errorf("Inline attachment data should be decoded: %+v", ev.Attachments)
	}
	if ev.Timestamp.IsZero() {
		t.Error("Expected timestamp default")
	}
}

func TestDecodeEvent_Poison(t *testing.T) {
	cases := map[string]string{
		"not json":   `{"channel_id":`,
		"no channel": `{"id":"1","body":"hi"}`,
		"no id":      `{"channel_id":"c"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := decodeEvent([]byte(body), "")
			if !errors.Is(err, ErrPoison) {
				t.Errorf("Expected ErrPoison, got %v", err)
			}
		})
	}
}

func TestEncodeReply(t *testing.T) {
	reply := discuss.Reply{Source: SourceAMQP, ChannelID: "general", ReplyToID: "e1", Author: testBot, Body: "hi"}

	pub, err := encodeReply(reply)
	if err != nil {
		t.Fatalf("encodeReply returned error: %v", err)
	}
	if pub.MessageId == "" || pub.CorrelationId != "e1" {
		t.Errorf("Expected generated message id and correlation id e1, got %q/%q", pub.MessageId, pub.CorrelationId)
	}
	if pub.DeliveryMode != amqp.Persistent || pub.ContentType != "application/json" {
		t.Errorf("Unexpected publishing properties %+v", pub)
	}

	var decoded discuss.Reply
	if err := json.Unmarshal(pub.Body, &decoded); err != nil {
		t.Fatalf("Body is not JSON: %v", err)
	}
	if decoded.ID != pub.MessageId || decoded.Body != "hi" || decoded.Author.Name != "Gemini" {
		t.Errorf("Unexpected body %+v", decoded)
	}
}

func TestAMQPAdapter_NotConnected(t *testing.T) {
	a := NewAMQPAdapter(DefaultConfig().AMQP, testBot, nil, testLogger())
	if err := a.Send(context.Background(), discuss.Reply{Body: "x"}); err == nil {
		t.Error("Send without a connection should fail")
	}
	data, err := a.FetchAttachment(context.Background(), discuss.Attachment{ID: "a", Data: []byte{1}})
	if err != nil || len(data) != 1 {
		t.Errorf("Inline data should be returned as is, got %v, %v", data, err)
	}
	if _, err := a.FetchAttachment(context.Background(), discuss.Attachment{ID: "b"}); err == nil {
		t.Error("Attachment without data or url should fail")
	}
}

type recordingAcknowledger struct {
	acks    int
	nacks   int
	requeue []bool
}

func (r *recordingAcknowledger) Ack(tag uint64, multiple bool) error {
	r.acks++
	return nil
}

func (r *recordingAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	r.nacks++
	r.requeue = append(r.requeue, requeue)
	return nil
}

func (r *recordingAcknowledger) Reject(tag uint64, requeue bool) error {
	return r.Nack(tag, false, requeue)
}

func delivery(ack amqp.Acknowledger, body string) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		MessageId:    "msg-1",
		Body:         []byte(body),
	}
}

func TestAMQPAdapter_ProcessAcknowledgement(t *testing.T) {
	valid := `{"channel_id": "general", "author_id": "u1", "body": "hi"}`

	tests := []struct {
		name       string
		body       string
		handlerErr error
		wantCalled bool
		wantAck    bool
	}{
		{"handled", valid, nil, true, true},
		{"handler error", valid, &discuss.BackendError{Message: "down"}, true, false},
		{"bad json", `{"channel_id":`, nil, false, false},
		{"missing channel", `{"body": "hi"}`, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := func(_ context.Context, ev discuss.Event) error {
				called = true
				if ev.Source != SourceAMQP || ev.ID != "msg-1" {
					t.Errorf("Unexpected event %+v", ev)
				}
				return tt.handlerErr
			}
			a := NewAMQPAdapter(DefaultConfig().AMQP, testBot, handler, testLogger())
			ack := &recordingAcknowledger{}

			a.process(context.Background(), delivery(ack, tt.body))

			if called != tt.wantCalled {
				t.Errorf("handler called = %v, want %v", called, tt.wantCalled)
			}
			if tt.wantAck {
				if ack.acks != 1 || ack.nacks != 0 {
					t.Errorf("Expected one ack, got acks=%d nacks=%d", ack.acks, ack.nacks)
				}
				return
			}
			if ack.acks != 0 || ack.nacks != 1 {
				t.Fatalf("Expected one nack, got acks=%d nacks=%d", ack.acks, ack.nacks)
			}
			if ack.requeue[0] {
				t.Error("Failed deliveries must not be requeued")
			}
		})
	}
}

func TestAMQPAdapter_UndeliveredReplyIsNacked(t *testing.T) {
	rt := router.New(testBot, "general")
	gw := NewGateway(Config{BroadcastChannelID: "general"}, testBot, rt, &fakeBridge{reply: "pong"}, mapStore{}, testLogger())
	out := newFakeAdapter(SourceAMQP)
	out.sendErr = errors.New("broker rejected reply")
	gw.AddAdapter(out)

	a := NewAMQPAdapter(DefaultConfig().AMQP, testBot, gw.HandleEvent, testLogger())
	ack := &recordingAcknowledger{}

	a.process(context.Background(), delivery(ack, `{"channel_id": "general", "author_id": "u1", "body": "ping"}`))

	if ack.acks != 0 || ack.nacks != 1 {
		t.Errorf("A reply that was never published must not be acked, got acks=%d nacks=%d", ack.acks, ack.nacks)
	}
}
