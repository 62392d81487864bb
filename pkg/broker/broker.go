package broker

import (
	"context"
	"log"
	"sync"

	"turf/pkg/envelope"

	"github.com/redis/go-redis/v9"
)

// Broker is the change-stream transport: every persisted mutation is
// published to a logical channel, and client sessions subscribe to the
// channels covering their mounted scopes. Delivery is at-least-once within
// a channel (publish order preserved), with no ordering across channels.
type Broker struct {
	rdb    *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

type Handler func(envelope.Envelope)

func New(redisURL string) (*Broker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithCancel(context.Background())

	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		rdb.Close()
		return nil, err
	}

	return &Broker{rdb: rdb, ctx: ctx, cancel: cancel}, nil
}

func (b *Broker) Publish(channel string, env envelope.Envelope) error {
	data, err := env.Marshal()
	if err != nil {
		return err
	}
	return b.rdb.Publish(b.ctx, channel, data).Err()
}

// Subscription owns one pub/sub connection. Close is idempotent and safe
// to call after the underlying transport has already dropped; once Close
// returns no further envelopes reach the handler.
type Subscription struct {
	sub    *redis.PubSub
	done   chan struct{}
	closed sync.Once
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.closed.Do(func() {
		close(s.done)
		s.sub.Close()
	})
}

// Subscribe opens a dedicated pub/sub connection for the given channels and
// pumps decoded envelopes to the handler on a single goroutine, so receipt
// order within a channel is preserved. Undecodable payloads are logged and
// skipped.
func (b *Broker) Subscribe(handler Handler, channels ...string) *Subscription {
	sub := b.rdb.Subscribe(b.ctx, channels...)
	s := &Subscription{sub: sub, done: make(chan struct{})}

	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-s.done:
				return
			case <-b.ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				env, err := envelope.Unmarshal([]byte(msg.Payload))
				if err != nil {
					log.Printf("[BROKER] drop malformed payload on %s: %v", msg.Channel, err)
					continue
				}
				select {
				case <-s.done:
					return
				default:
				}
				handler(env)
			}
		}
	}()

	return s
}

func (b *Broker) Close() {
	b.cancel()
	b.rdb.Close()
}
