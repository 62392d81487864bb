package session

import (
	"context"
	"log"
	"sync"

	"turf/pkg/envelope"
	"turf/pkg/notify"
	"turf/pkg/stream"
)

// Inbox is one client's live notification feed: the fan-in list plus its
// stream subscription. New notifications are forwarded as transient
// alerts together with the derived unread count.
type Inbox struct {
	inbox *notify.Inbox
	sub   stream.Subscription
	sink  Sink

	mu     sync.Mutex
	closed bool
}

func OpenInbox(ctx context.Context, userID string, store notify.Store, sub *stream.Subscriber, sink Sink) (*Inbox, error) {
	in := &Inbox{
		inbox: notify.NewInbox(userID, store),
		sink:  sink,
	}
	if err := in.inbox.Load(ctx); err != nil {
		return nil, err
	}

	in.sub = sub.SubscribeNotifications(userID, in.onEvent)
	return in, nil
}

func (in *Inbox) Feed() *notify.Inbox {
	return in.inbox
}

func (in *Inbox) Close() {
	in.mu.Lock()
	if in.closed {
		in.mu.Unlock()
		return
	}
	in.closed = true
	in.mu.Unlock()

	if in.sub != nil {
		in.sub.Close()
	}
}

func (in *Inbox) onEvent(ev stream.NotificationEvent) {
	if !in.inbox.OnEvent(ev) {
		return
	}
	if ev.Type != stream.EventInsert {
		return
	}
	env, err := envelope.NewEvent("notification.new", "turf", map[string]interface{}{
		"notification": ev.New,
		"unread_count": in.inbox.UnreadCount(),
	})
	if err != nil {
		log.Printf("[SESSION] encode notification.new: %v", err)
		return
	}
	in.sink.Push(env)
}
