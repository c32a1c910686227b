package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"socialgo/internal/bus"
	"socialgo/internal/domain"
	"socialgo/internal/events"
)

// Applier consumes push events from the bus and applies idempotent patches to
// the entity store. It is independent of in-flight fetches: events and fetch
// results may interleave in any order, and only presence carries a version
// check.
type Applier struct {
	store  *domain.Store
	logger *slog.Logger

	activeMu           sync.RWMutex
	activeConversation string

	staleEvents atomic.Uint64
	violations  atomic.Uint64
}

func NewApplier(store *domain.Store, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default().With("component", "engine.applier")
	}

	return &Applier{store: store, logger: logger}
}

// SetActiveConversation tells the applier which conversation the rendering
// layer currently shows. Messages for it are applied but not counted unread.
func (a *Applier) SetActiveConversation(id string) {
	a.activeMu.Lock()
	defer a.activeMu.Unlock()
	a.activeConversation = id
}

func (a *Applier) ActiveConversation() string {
	a.activeMu.RLock()
	defer a.activeMu.RUnlock()

	return a.activeConversation
}

// StaleEvents reports how many out-of-order presence events were discarded.
func (a *Applier) StaleEvents() uint64 {
	return a.staleEvents.Load()
}

// ConsistencyViolations reports how many events were rejected for breaking a
// hard invariant. Any nonzero value indicates an upstream defect.
func (a *Applier) ConsistencyViolations() uint64 {
	return a.violations.Load()
}

func (a *Applier) Start(ctx context.Context, b bus.MessageBus) {
	presenceSub := b.Subscribe(events.TopicPresence)
	messageSub := b.Subscribe(events.TopicMessage)
	notifSub := b.Subscribe(events.TopicNotification)
	memberSub := b.Subscribe(events.TopicMembership)

	go func() {
		defer b.Unsubscribe(presenceSub, events.TopicPresence)
		defer b.Unsubscribe(messageSub, events.TopicMessage)
		defer b.Unsubscribe(notifSub, events.TopicNotification)
		defer b.Unsubscribe(memberSub, events.TopicMembership)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-presenceSub:
				if !ok {
					return
				}
				if ev, ok := raw.(events.PresenceChanged); ok {
					a.ApplyPresence(ev)
				}
			case raw, ok := <-messageSub:
				if !ok {
					return
				}
				if ev, ok := raw.(events.MessageReceived); ok {
					a.ApplyMessage(ev)
				}
			case raw, ok := <-notifSub:
				if !ok {
					return
				}
				if ev, ok := raw.(events.NotificationReceived); ok {
					a.ApplyNotification(ev)
				}
			case raw, ok := <-memberSub:
				if !ok {
					return
				}
				if ev, ok := raw.(events.MembershipRoleChanged); ok {
					a.ApplyMembership(ev)
				}
			}
		}
	}()
}

// ApplyPresence applies an online transition unless it is older than the
// stored presence version. A late-arriving "offline" can never overwrite a
// newer "online".
func (a *Applier) ApplyPresence(ev events.PresenceChanged) {
	version := int64(0)
	if !ev.At.IsZero() {
		version = ev.At.UnixMilli()
	} else {
		version = a.store.NextPresenceVersion()
	}
	if !a.store.ApplyPresence(ev.UserID, ev.Online, version) {
		a.staleEvents.Add(1)
		a.logger.Debug("stale presence event discarded", "user", ev.UserID, "online", ev.Online, "version", version)
	}
}

// ApplyMessage merges the conversation's last-message summary and bumps the
// unread counter by one, unless the conversation is the active one.
func (a *Applier) ApplyMessage(ev events.MessageReceived) {
	summary := ev.Summary
	a.store.UpsertConversation(domain.ConversationPatch{
		ID:          ev.ConversationID,
		LastMessage: &summary,
		UpdatedAt:   summary.At,
	})
	if summary.SenderUserID != "" {
		a.store.UpsertUser(domain.UserPatch{ID: summary.SenderUserID})
	}
	if ev.ConversationID != a.ActiveConversation() {
		a.store.BumpConversationUnread(ev.ConversationID)
	}
}

// ApplyNotification stores the notification. Redelivery of a known id on the
// at-least-once channel is a no-op.
func (a *Applier) ApplyNotification(ev events.NotificationReceived) {
	n := ev.Notification
	if _, created := a.store.UpsertNotification(n); !created {
		a.logger.Debug("duplicate notification ignored", "id", n.ID)

		return
	}
	if n.SenderUserID != "" {
		a.store.UpsertUser(domain.UserPatch{ID: n.SenderUserID})
	}
}

// ApplyMembership upserts a group role change. A change that would create a
// second owner is rejected and logged; the group is left unchanged.
func (a *Applier) ApplyMembership(ev events.MembershipRoleChanged) {
	err := a.store.UpsertMembership(domain.GroupMembership{
		GroupID: ev.GroupID,
		UserID:  ev.UserID,
		Role:    ev.Role,
	})
	if err != nil {
		a.violations.Add(1)
		a.logger.Error("membership event rejected", "group", ev.GroupID, "user", ev.UserID, "role", ev.Role, "error", err)
	}
}
