package hub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"turf/pkg/envelope"
	"turf/pkg/session"

	"github.com/gofiber/contrib/websocket"
)

// ActionHandler handles one envelope from one client.
type ActionHandler func(env envelope.Envelope, c *Client)

type Hub struct {
	mu       sync.RWMutex
	clients  map[*websocket.Conn]*Client
	byUser   map[string][]*Client
	handlers map[string]ActionHandler
}

func New() *Hub {
	return &Hub{
		clients:  make(map[*websocket.Conn]*Client),
		byUser:   make(map[string][]*Client),
		handlers: make(map[string]ActionHandler),
	}
}

// On registers the handler for an action. Call before serving; the
// registry is not mutated afterwards.
func (h *Hub) On(action string, fn ActionHandler) {
	h.handlers[action] = fn
}

func (h *Hub) HandleClientConn(c *websocket.Conn, userID, username string) {
	cc := &Client{
		conn:     c,
		UserID:   userID,
		Username: username,
		topics:   make(map[string]*session.Topic),
	}

	h.mu.Lock()
	h.clients[c] = cc
	if userID != "" {
		h.byUser[userID] = append(h.byUser[userID], cc)
	}
	h.mu.Unlock()

	log.Printf("[HUB] client connected user=%s name=%s total=%d", userID, username, h.ClientCount())

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		if userID != "" {
			conns := h.byUser[userID]
			for i, conn := range conns {
				if conn == cc {
					h.byUser[userID] = append(conns[:i], conns[i+1:]...)
					break
				}
			}
			if len(h.byUser[userID]) == 0 {
				delete(h.byUser, userID)
			}
		}
		h.mu.Unlock()
		cc.teardown()
		c.Close()
		log.Printf("[HUB] client disconnected user=%s total=%d", userID, h.ClientCount())
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			return
		}

		var env envelope.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			errResp := envelope.Envelope{
				Action:    "error",
				Error:     &envelope.ErrorPayload{Code: 400, Message: "invalid JSON"},
				Timestamp: time.Now().UnixMilli(),
			}
			cc.Push(errResp)
			continue
		}

		if env.Action == "ping" {
			cc.Push(envelope.New("pong", "turf"))
			continue
		}

		// Inject identity from the connection's JWT; clients cannot
		// spoof another user.
		env.UserID = userID
		env.Username = username
		env.ReplyTo = env.ID

		handler, ok := h.handlers[env.Action]
		if !ok {
			cc.ReplyError(env, 404, "unknown action: "+env.Action)
			continue
		}

		go handler(env, cc)
	}
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(action, service string, data interface{}) {
	env, err := envelope.NewEvent(action, service, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cc := range h.clients {
		cc.Push(env)
	}
}

// BroadcastExcept sends to every client except the given user's
// connections.
func (h *Hub) BroadcastExcept(action, service string, data interface{}, exceptUserID string) {
	env, err := envelope.NewEvent(action, service, data)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cc := range h.clients {
		if cc.UserID != exceptUserID {
			cc.Push(env)
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) AuthenticatedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser)
}

var _ session.Sink = (*Client)(nil)
