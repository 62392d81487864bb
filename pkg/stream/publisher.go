package stream

import (
	"log"

	"turf/pkg/broker"
	"turf/pkg/envelope"
	"turf/pkg/models"
)

// Publisher pushes change events onto the transport after a mutation has
// been persisted. Publishing is fire-and-forget: a failed publish only
// means subscribers go stale until their next full reload, so errors are
// logged and swallowed here rather than bubbled into the write path.
type Publisher struct {
	transport Transport
}

func NewPublisher(t Transport) *Publisher {
	return &Publisher{transport: t}
}

func (p *Publisher) MessageInserted(msg models.Message) {
	p.publish(broker.MessageChannel(msg.TopicID), string(EventInsert), StreamMessages,
		MessageEvent{New: &msg})
}

func (p *Publisher) MessageUpdated(msg models.Message) {
	p.publish(broker.MessageChannel(msg.TopicID), string(EventUpdate), StreamMessages,
		MessageEvent{New: &msg})
}

func (p *Publisher) MessageDeleted(old models.Message) {
	p.publish(broker.MessageChannel(old.TopicID), string(EventDelete), StreamMessages,
		MessageEvent{Old: &old})
}

func (p *Publisher) ReactionChanged(topicID string, ev ReactionEvent) {
	action := string(EventUpdate)
	if ev.Deleted {
		action = string(EventDelete)
	}
	p.publish(broker.ReactionChannel(topicID), action, StreamReactions, ev)
}

func (p *Publisher) VoteRecounted(topicID string, ev VoteEvent) {
	p.publish(broker.VoteChannel(topicID), string(EventUpdate), StreamVotes, ev)
}

func (p *Publisher) NotificationCreated(n models.Notification) {
	p.publish(broker.NotificationChannel(n.UserID), string(EventInsert), StreamNotifications,
		NotificationEvent{New: &n})
}

// Typing broadcasts ride the shared ephemeral channel; they are never
// persisted and never retried.
func (p *Publisher) Typing(payload models.TypingPayload) {
	p.publish(broker.TypingChannel, "broadcast", StreamTyping, payload)
}

func (p *Publisher) publish(channel, action, service string, data interface{}) {
	env, err := envelope.NewEvent(action, service, data)
	if err != nil {
		log.Printf("[STREAM] encode %s/%s: %v", service, action, err)
		return
	}
	if err := p.transport.Publish(channel, env); err != nil {
		log.Printf("[STREAM] publish %s/%s: %v", service, action, err)
	}
}
