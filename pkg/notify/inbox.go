// Package notify keeps the live, flat notification list for one signed-in
// user: reverse-chronological, with the unread count derived from the
// list rather than stored beside it.
package notify

import (
	"context"
	"log"
	"sync"

	"turf/pkg/models"
	"turf/pkg/stream"
)

// InitialLoadLimit caps how many notifications an initial load pulls in.
const InitialLoadLimit = 50

// Store is the persistence capability the inbox needs; satisfied by
// repository.NotificationRepository.
type Store interface {
	Recent(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// Inbox owns the local notification list for one user. Mark operations
// are optimistic: the local flag flips first and a failed persistence
// write is logged, never rolled back — the UI runs "ahead" of the store
// until the next full reload.
type Inbox struct {
	userID string
	store  Store

	mu    sync.Mutex
	items []models.Notification
}

func NewInbox(userID string, store Store) *Inbox {
	return &Inbox{userID: userID, store: store}
}

// Load wholly replaces the local list from the store.
func (in *Inbox) Load(ctx context.Context) error {
	items, err := in.store.Recent(ctx, in.userID, InitialLoadLimit)
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.items = items
	in.mu.Unlock()
	return nil
}

// OnEvent folds a stream event into the list. Inserts prepend (new
// notifications always sort first, matching Load's ordering); duplicate
// ids are no-ops. Updates only ever move read from false to true.
func (in *Inbox) OnEvent(ev stream.NotificationEvent) bool {
	if ev.New == nil {
		return false
	}

	in.mu.Lock()
	defer in.mu.Unlock()

	switch ev.Type {
	case stream.EventInsert:
		for i := range in.items {
			if in.items[i].ID == ev.New.ID {
				return false
			}
		}
		in.items = append([]models.Notification{*ev.New}, in.items...)
		return true

	case stream.EventUpdate:
		for i := range in.items {
			if in.items[i].ID == ev.New.ID {
				if ev.New.Read && !in.items[i].Read {
					in.items[i].Read = true
					return true
				}
				return false
			}
		}
	}
	return false
}

// MarkRead flips the local flag immediately, then persists in the
// background of the caller's flow.
func (in *Inbox) MarkRead(ctx context.Context, id string) {
	in.mu.Lock()
	flipped := false
	for i := range in.items {
		if in.items[i].ID == id && !in.items[i].Read {
			in.items[i].Read = true
			flipped = true
			break
		}
	}
	in.mu.Unlock()

	if !flipped {
		return
	}
	if err := in.store.MarkRead(ctx, in.userID, id); err != nil {
		log.Printf("[NOTIFY] mark read %s: %v", id, err)
	}
}

// MarkAllRead applies the same optimistic flip to every unread item.
func (in *Inbox) MarkAllRead(ctx context.Context) {
	in.mu.Lock()
	flipped := false
	for i := range in.items {
		if !in.items[i].Read {
			in.items[i].Read = true
			flipped = true
		}
	}
	in.mu.Unlock()

	if !flipped {
		return
	}
	if err := in.store.MarkAllRead(ctx, in.userID); err != nil {
		log.Printf("[NOTIFY] mark all read: %v", err)
	}
}

// UnreadCount is always derived by counting; it is never stored
// separately, so it cannot drift from the list.
func (in *Inbox) UnreadCount() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	n := 0
	for i := range in.items {
		if !in.items[i].Read {
			n++
		}
	}
	return n
}

func (in *Inbox) Snapshot() []models.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]models.Notification(nil), in.items...)
}
