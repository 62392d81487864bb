package stream

import (
	"log"

	"turf/pkg/broker"
	"turf/pkg/envelope"
	"turf/pkg/models"
)

// Transport is the pub/sub capability a Subscriber needs. *broker.Broker
// satisfies it through BrokerTransport; tests inject fakes.
type Transport interface {
	Publish(channel string, env envelope.Envelope) error
	Subscribe(handler func(envelope.Envelope), channels ...string) Subscription
}

type Subscription interface {
	Close()
}

// BrokerTransport adapts *broker.Broker to Transport.
type BrokerTransport struct {
	Broker *broker.Broker
}

func (t BrokerTransport) Publish(channel string, env envelope.Envelope) error {
	return t.Broker.Publish(channel, env)
}

func (t BrokerTransport) Subscribe(handler func(envelope.Envelope), channels ...string) Subscription {
	return t.Broker.Subscribe(handler, channels...)
}

// TopicHandlers receives the decoded events for one topic scope. Handlers
// for the same stream never interleave; handlers across streams may.
type TopicHandlers struct {
	OnMessage  func(MessageEvent)
	OnReaction func(ReactionEvent)
	OnVote     func(VoteEvent)
	OnTyping   func(models.TypingPayload)
}

// Subscriber decodes raw broker envelopes into typed events at the
// subscription boundary, so nothing downstream touches loose JSON.
type Subscriber struct {
	transport Transport
}

func NewSubscriber(t Transport) *Subscriber {
	return &Subscriber{transport: t}
}

// SubscribeTopic opens the message, reaction, vote and typing streams for
// one topic. The returned Subscription must be closed on unmount; Close is
// safe even if the transport already dropped.
func (s *Subscriber) SubscribeTopic(topicID string, h TopicHandlers) Subscription {
	return s.transport.Subscribe(func(env envelope.Envelope) {
		s.dispatch(env, h)
	},
		broker.MessageChannel(topicID),
		broker.ReactionChannel(topicID),
		broker.VoteChannel(topicID),
		broker.TypingChannel,
	)
}

// SubscribeNotifications opens the per-user notification stream.
func (s *Subscriber) SubscribeNotifications(userID string, fn func(NotificationEvent)) Subscription {
	return s.transport.Subscribe(func(env envelope.Envelope) {
		ev, ok := decodeNotification(env)
		if !ok {
			return
		}
		fn(ev)
	}, broker.NotificationChannel(userID))
}

func (s *Subscriber) dispatch(env envelope.Envelope, h TopicHandlers) {
	switch env.Service {
	case StreamMessages:
		if h.OnMessage == nil {
			return
		}
		ev, err := envelope.ParseData[MessageEvent](env)
		if err != nil {
			log.Printf("[STREAM] drop malformed message event: %v", err)
			return
		}
		ev.Type = EventType(env.Action)
		h.OnMessage(ev)

	case StreamReactions:
		if h.OnReaction == nil {
			return
		}
		ev, err := envelope.ParseData[ReactionEvent](env)
		if err != nil {
			log.Printf("[STREAM] drop malformed reaction event: %v", err)
			return
		}
		ev.Deleted = env.Action == string(EventDelete)
		h.OnReaction(ev)

	case StreamVotes:
		if h.OnVote == nil {
			return
		}
		ev, err := envelope.ParseData[VoteEvent](env)
		if err != nil {
			log.Printf("[STREAM] drop malformed vote event: %v", err)
			return
		}
		h.OnVote(ev)

	case StreamTyping:
		if h.OnTyping == nil {
			return
		}
		p, err := envelope.ParseData[models.TypingPayload](env)
		if err != nil {
			log.Printf("[STREAM] drop malformed typing broadcast: %v", err)
			return
		}
		h.OnTyping(p)
	}
}

func decodeNotification(env envelope.Envelope) (NotificationEvent, bool) {
	if env.Service != StreamNotifications {
		return NotificationEvent{}, false
	}
	ev, err := envelope.ParseData[NotificationEvent](env)
	if err != nil {
		log.Printf("[STREAM] drop malformed notification event: %v", err)
		return NotificationEvent{}, false
	}
	ev.Type = EventType(env.Action)
	return ev, true
}
