package hub

import (
	"log"
	"sync"

	"turf/pkg/envelope"
	"turf/pkg/session"
	"turf/pkg/typing"

	"github.com/gofiber/contrib/websocket"
)

// Client is one websocket connection and everything mounted on it: the
// per-topic live sessions, the notification inbox session, and the typing
// broadcaster. Writes go through a per-connection mutex because fiber's
// websocket conn is not safe for concurrent writers.
type Client struct {
	conn     *websocket.Conn
	UserID   string
	Username string

	writeMu sync.Mutex

	mu     sync.Mutex
	topics map[string]*session.Topic
	inbox  *session.Inbox
	typing *typing.Broadcaster
}

func (c *Client) send(data []byte) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[HUB] send error user=%s: %v", c.UserID, err)
	}
}

// Push delivers an event envelope to this connection. Satisfies
// session.Sink.
func (c *Client) Push(env envelope.Envelope) {
	data, err := env.Marshal()
	if err != nil {
		return
	}
	c.send(data)
}

// Reply answers the request that carried the original envelope.
func (c *Client) Reply(original envelope.Envelope, data interface{}) {
	env, err := envelope.NewReply(original, data)
	if err != nil {
		log.Printf("[HUB] reply marshal error: %v", err)
		return
	}
	c.Push(env)
}

func (c *Client) ReplyError(original envelope.Envelope, code int, msg string) {
	c.Push(envelope.NewError(original, code, msg))
}

// MountTopic registers a topic session for this connection, replacing
// (and closing) any previous mount of the same topic — each UI mount owns
// exactly one subscription per stream.
func (c *Client) MountTopic(topicID string, s *session.Topic) {
	c.mu.Lock()
	prev := c.topics[topicID]
	c.topics[topicID] = s
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (c *Client) Topic(topicID string) (*session.Topic, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.topics[topicID]
	return s, ok
}

func (c *Client) UnmountTopic(topicID string) {
	c.mu.Lock()
	s := c.topics[topicID]
	delete(c.topics, topicID)
	c.mu.Unlock()
	if s != nil {
		s.Close()
	}
}

func (c *Client) SetInbox(in *session.Inbox) {
	c.mu.Lock()
	prev := c.inbox
	c.inbox = in
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

func (c *Client) Inbox() (*session.Inbox, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inbox, c.inbox != nil
}

func (c *Client) SetTyping(b *typing.Broadcaster) {
	c.mu.Lock()
	c.typing = b
	c.mu.Unlock()
}

func (c *Client) Typing() (*typing.Broadcaster, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing, c.typing != nil
}

// teardown closes every mount; runs once when the connection drops.
func (c *Client) teardown() {
	c.mu.Lock()
	topics := c.topics
	c.topics = make(map[string]*session.Topic)
	inbox := c.inbox
	c.inbox = nil
	ty := c.typing
	c.typing = nil
	c.mu.Unlock()

	for _, s := range topics {
		s.Close()
	}
	if inbox != nil {
		inbox.Close()
	}
	if ty != nil {
		ty.Close()
	}
}
