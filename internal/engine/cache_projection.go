package engine

import (
	"context"

	"socialgo/internal/bus"
	"socialgo/internal/domain"
	"socialgo/internal/events"
)

// WriteQueue serializes cache writes from async domain events.
type WriteQueue interface {
	Enqueue(name string, fn func(context.Context) error)
}

// StartCacheProjection mirrors store state into the session cache as push
// events land. The store itself stays the source of truth; the projection is
// read back only on in-session restarts.
func StartCacheProjection(ctx context.Context, b bus.MessageBus, queue WriteQueue, store *domain.Store, users domain.UserRepository, conversations domain.ConversationRepository, notifications domain.NotificationRepository) {
	presenceSub := b.Subscribe(events.TopicPresence)
	messageSub := b.Subscribe(events.TopicMessage)
	notifSub := b.Subscribe(events.TopicNotification)

	go func() {
		defer b.Unsubscribe(presenceSub, events.TopicPresence)
		defer b.Unsubscribe(messageSub, events.TopicMessage)
		defer b.Unsubscribe(notifSub, events.TopicNotification)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-presenceSub:
				if !ok {
					return
				}
				ev, ok := raw.(events.PresenceChanged)
				if !ok {
					continue
				}
				if user, found := store.User(ev.UserID); found {
					queue.Enqueue("upsert_user", func(writeCtx context.Context) error {
						return users.Upsert(writeCtx, user)
					})
				}
			case raw, ok := <-messageSub:
				if !ok {
					return
				}
				ev, ok := raw.(events.MessageReceived)
				if !ok {
					continue
				}
				if conv, found := store.Conversation(ev.ConversationID); found {
					queue.Enqueue("upsert_conversation", func(writeCtx context.Context) error {
						return conversations.Upsert(writeCtx, conv)
					})
				}
			case raw, ok := <-notifSub:
				if !ok {
					return
				}
				ev, ok := raw.(events.NotificationReceived)
				if !ok {
					continue
				}
				if n, found := store.Notification(ev.Notification.ID); found {
					queue.Enqueue("upsert_notification", func(writeCtx context.Context) error {
						return notifications.Upsert(writeCtx, n)
					})
				}
			}
		}
	}()
}
