package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"turf/pkg/envelope"
	"turf/pkg/hub"
	"turf/pkg/models"
	"turf/pkg/repository"
	"turf/pkg/services"
	"turf/pkg/session"
	"turf/pkg/stream"
	"turf/pkg/typing"
)

const maxContentLen = 5000

// LiveHandler owns the websocket actions: joining topics, creating and
// mutating messages, voting, reacting, typing, and the live notification
// feed. Every mutation is persisted first, then published onto the
// change streams; the actor gets a direct reply, everyone else converges
// through their session's subscription.
type LiveHandler struct {
	hub       *hub.Hub
	messages  repository.MessageRepository
	topics    repository.TopicRepository
	notifRepo repository.NotificationRepository
	users     repository.UserRepository
	sub       *stream.Subscriber
	pub       *stream.Publisher
	notifier  *services.Notifier
}

func NewLive(
	h *hub.Hub,
	messages repository.MessageRepository,
	topics repository.TopicRepository,
	notifRepo repository.NotificationRepository,
	users repository.UserRepository,
	sub *stream.Subscriber,
	pub *stream.Publisher,
	notifier *services.Notifier,
) *LiveHandler {
	return &LiveHandler{
		hub:       h,
		messages:  messages,
		topics:    topics,
		notifRepo: notifRepo,
		users:     users,
		sub:       sub,
		pub:       pub,
		notifier:  notifier,
	}
}

func (l *LiveHandler) RegisterActions() {
	l.hub.On("topic.join", l.joinTopic)
	l.hub.On("topic.leave", l.leaveTopic)
	l.hub.On("topic.snapshot", l.snapshotTopic)
	l.hub.On("message.create", l.createMessage)
	l.hub.On("message.edit", l.editMessage)
	l.hub.On("message.delete", l.deleteMessage)
	l.hub.On("vote.cast", l.castVote)
	l.hub.On("reaction.toggle", l.toggleReaction)
	l.hub.On("typing.start", l.startTyping)
	l.hub.On("typing.stop", l.stopTyping)
	l.hub.On("notifications.load", l.loadNotifications)
	l.hub.On("notifications.read", l.markRead)
	l.hub.On("notifications.read_all", l.markAllRead)
}

// ── topic mounts ──

func (l *LiveHandler) joinTopic(env envelope.Envelope, c *hub.Client) {
	type joinReq struct {
		TopicID string `json:"topic_id"`
		Limit   int    `json:"limit"`
	}
	req, _ := envelope.ParseData[joinReq](env)
	if req.TopicID == "" {
		c.ReplyError(env, 400, "topic_id required")
		return
	}

	topic, err := l.topics.Get(req.TopicID)
	if err != nil {
		c.ReplyError(env, 404, "topic not found")
		return
	}

	initial, err := l.messages.TopicMessages(req.TopicID, env.UserID, req.Limit)
	if err != nil {
		log.Printf("[LIVE] load topic %s: %v", req.TopicID, err)
		c.ReplyError(env, 500, "failed to load topic")
		return
	}

	s := session.OpenTopic(req.TopicID, env.UserID, initial, l.sub, c)
	c.MountTopic(req.TopicID, s)

	if _, ok := c.Typing(); !ok && env.UserID != "" {
		c.SetTyping(typing.NewBroadcaster(l.pub, env.UserID, env.Username))
	}

	snap := s.Snapshot()
	c.Reply(env, map[string]interface{}{
		"topic":    topic,
		"messages": snap.Messages,
		"typing":   snap.Typing,
	})
}

func (l *LiveHandler) leaveTopic(env envelope.Envelope, c *hub.Client) {
	type leaveReq struct {
		TopicID string `json:"topic_id"`
	}
	req, _ := envelope.ParseData[leaveReq](env)
	c.UnmountTopic(req.TopicID)
	if b, ok := c.Typing(); ok {
		b.StopTyping(req.TopicID)
	}
	c.Reply(env, map[string]string{"topic_id": req.TopicID, "status": "left"})
}

func (l *LiveHandler) snapshotTopic(env envelope.Envelope, c *hub.Client) {
	type snapReq struct {
		TopicID string `json:"topic_id"`
	}
	req, _ := envelope.ParseData[snapReq](env)
	s, ok := c.Topic(req.TopicID)
	if !ok {
		c.ReplyError(env, 404, "topic not joined")
		return
	}
	c.Reply(env, s.Snapshot())
}

// ── messages ──

func (l *LiveHandler) createMessage(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type createReq struct {
		TopicID  string  `json:"topic_id"`
		Content  string  `json:"content"`
		ImageURL string  `json:"image_url"`
		ParentID *string `json:"parent_id"`
	}
	req, _ := envelope.ParseData[createReq](env)

	content := strings.TrimSpace(req.Content)
	if content == "" && req.ImageURL == "" {
		c.ReplyError(env, 400, "content required")
		return
	}
	if len(content) > maxContentLen {
		c.ReplyError(env, 400, "content too long")
		return
	}

	if err := l.users.Upsert(env.UserID, env.Username); err != nil {
		log.Printf("[LIVE] upsert user %s: %v", env.UserID, err)
	}

	msg, err := l.messages.Create(repository.CreateMessage{
		TopicID:    req.TopicID,
		AuthorID:   env.UserID,
		AuthorName: env.Username,
		Content:    content,
		ImageURL:   req.ImageURL,
		ParentID:   req.ParentID,
	})
	switch {
	case errors.Is(err, repository.ErrTopicExpired):
		c.ReplyError(env, 403, "topic has expired")
		return
	case errors.Is(err, repository.ErrNotFound):
		c.ReplyError(env, 404, "topic or parent message not found")
		return
	case err != nil:
		log.Printf("[LIVE] create message: %v", err)
		c.ReplyError(env, 500, "failed to create message")
		return
	}

	l.pub.MessageInserted(msg)
	if b, ok := c.Typing(); ok {
		b.MessageSent(msg.TopicID)
	}

	if msg.ParentID != nil {
		if parent, err := l.messages.Get(*msg.ParentID, ""); err == nil {
			l.notifier.Notify(models.Notification{
				UserID:    parent.AuthorID,
				ActorID:   msg.AuthorID,
				ActorName: msg.AuthorName,
				Type:      models.NotificationReply,
				TopicID:   msg.TopicID,
				MessageID: msg.ID,
			})
		}
	}
	l.notifier.Mentions(msg)

	log.Printf("[LIVE] message created id=%s topic=%s author=%s", msg.ID, msg.TopicID, msg.AuthorID)
	c.Reply(env, msg)
}

func (l *LiveHandler) editMessage(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type editReq struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}
	req, _ := envelope.ParseData[editReq](env)

	content := strings.TrimSpace(req.Content)
	if content == "" {
		c.ReplyError(env, 400, "content required")
		return
	}
	if len(content) > maxContentLen {
		c.ReplyError(env, 400, "content too long")
		return
	}

	msg, err := l.messages.Edit(req.ID, env.UserID, content)
	if !l.replyMutationError(env, c, err, "failed to edit message") {
		return
	}

	l.pub.MessageUpdated(msg)
	c.Reply(env, msg)
}

func (l *LiveHandler) deleteMessage(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type deleteReq struct {
		ID string `json:"id"`
	}
	req, _ := envelope.ParseData[deleteReq](env)

	old, err := l.messages.Delete(req.ID, env.UserID)
	if !l.replyMutationError(env, c, err, "failed to delete message") {
		return
	}

	l.pub.MessageDeleted(old)
	c.Reply(env, map[string]string{"id": req.ID, "status": "deleted"})
}

// ── votes and reactions ──

func (l *LiveHandler) castVote(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type voteReq struct {
		MessageID string `json:"message_id"`
		Direction string `json:"direction"`
	}
	req, _ := envelope.ParseData[voteReq](env)
	if req.Direction != models.VoteUp && req.Direction != models.VoteDown {
		c.ReplyError(env, 400, "direction must be up or down")
		return
	}

	result, err := l.messages.CastVote(req.MessageID, env.UserID, req.Direction)
	if !l.replyMutationError(env, c, err, "failed to cast vote") {
		return
	}

	l.pub.VoteRecounted(result.TopicID, stream.VoteEvent{
		MessageID: req.MessageID,
		Upvotes:   result.Tally.Upvotes,
		Downvotes: result.Tally.Downvotes,
		ActorID:   env.UserID,
		ActorVote: result.State,
	})

	if result.State == models.VoteUp {
		l.notifier.Notify(models.Notification{
			UserID:    result.AuthorID,
			ActorID:   env.UserID,
			ActorName: env.Username,
			Type:      models.NotificationLike,
			TopicID:   result.TopicID,
			MessageID: req.MessageID,
		})
	}

	c.Reply(env, map[string]interface{}{
		"message_id": req.MessageID,
		"upvotes":    result.Tally.Upvotes,
		"downvotes":  result.Tally.Downvotes,
		"user_vote":  result.State,
	})
}

func (l *LiveHandler) toggleReaction(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type reactionReq struct {
		MessageID string `json:"message_id"`
		Emoji     string `json:"emoji"`
	}
	req, _ := envelope.ParseData[reactionReq](env)
	if req.Emoji == "" {
		c.ReplyError(env, 400, "emoji required")
		return
	}

	result, err := l.messages.ToggleReaction(req.MessageID, env.UserID, req.Emoji)
	if !l.replyMutationError(env, c, err, "failed to toggle reaction") {
		return
	}

	l.pub.ReactionChanged(result.TopicID, stream.ReactionEvent{
		MessageID: req.MessageID,
		Emoji:     req.Emoji,
		Count:     result.Count,
		Deleted:   result.Deleted,
	})

	c.Reply(env, map[string]interface{}{
		"message_id": req.MessageID,
		"emoji":      req.Emoji,
		"count":      result.Count,
		"deleted":    result.Deleted,
	})
}

// ── typing ──

func (l *LiveHandler) startTyping(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		return
	}
	type typingReq struct {
		TopicID string `json:"topic_id"`
	}
	req, _ := envelope.ParseData[typingReq](env)
	if req.TopicID == "" {
		return
	}
	b, ok := c.Typing()
	if !ok {
		b = typing.NewBroadcaster(l.pub, env.UserID, env.Username)
		c.SetTyping(b)
	}
	b.StartTyping(req.TopicID)
}

func (l *LiveHandler) stopTyping(env envelope.Envelope, c *hub.Client) {
	type typingReq struct {
		TopicID string `json:"topic_id"`
	}
	req, _ := envelope.ParseData[typingReq](env)
	if b, ok := c.Typing(); ok {
		b.StopTyping(req.TopicID)
	}
}

// ── notifications ──

func (l *LiveHandler) loadNotifications(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	in, ok := c.Inbox()
	if !ok {
		opened, err := session.OpenInbox(context.Background(), env.UserID, l.notifRepo, l.sub, c)
		if err != nil {
			log.Printf("[LIVE] open inbox user=%s: %v", env.UserID, err)
			c.ReplyError(env, 500, "failed to load notifications")
			return
		}
		c.SetInbox(opened)
		in = opened
	}

	c.Reply(env, map[string]interface{}{
		"notifications": in.Feed().Snapshot(),
		"unread_count":  in.Feed().UnreadCount(),
	})
}

func (l *LiveHandler) markRead(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	type readReq struct {
		ID string `json:"id"`
	}
	req, _ := envelope.ParseData[readReq](env)

	if in, ok := c.Inbox(); ok {
		in.Feed().MarkRead(context.Background(), req.ID)
		c.Reply(env, map[string]interface{}{"unread_count": in.Feed().UnreadCount()})
		return
	}

	// No live inbox mounted; persist directly.
	if err := l.notifRepo.MarkRead(context.Background(), env.UserID, req.ID); err != nil {
		log.Printf("[LIVE] mark read %s: %v", req.ID, err)
	}
	c.Reply(env, map[string]string{"id": req.ID, "status": "read"})
}

func (l *LiveHandler) markAllRead(env envelope.Envelope, c *hub.Client) {
	if env.UserID == "" {
		c.ReplyError(env, 401, "authentication required")
		return
	}

	if in, ok := c.Inbox(); ok {
		in.Feed().MarkAllRead(context.Background())
		c.Reply(env, map[string]interface{}{"unread_count": in.Feed().UnreadCount()})
		return
	}

	if err := l.notifRepo.MarkAllRead(context.Background(), env.UserID); err != nil {
		log.Printf("[LIVE] mark all read user=%s: %v", env.UserID, err)
	}
	c.Reply(env, map[string]string{"status": "read"})
}

// replyMutationError maps repository errors onto envelope error replies.
// Returns true when err was nil and the caller should continue.
func (l *LiveHandler) replyMutationError(env envelope.Envelope, c *hub.Client, err error, fallback string) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, repository.ErrNotFound):
		c.ReplyError(env, 404, "message not found")
	case errors.Is(err, repository.ErrNotAuthor):
		c.ReplyError(env, 403, "not the author")
	default:
		log.Printf("[LIVE] %s: %v", fallback, err)
		c.ReplyError(env, 500, fallback)
	}
	return false
}
