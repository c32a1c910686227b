package engine

import (
	"testing"
	"time"

	"socialgo/internal/domain"
	"socialgo/internal/events"
)

func TestApplierApplyPresence_DiscardsOutOfOrderEvents(t *testing.T) {
	store := domain.NewStore()
	a := NewApplier(store, nil)
	t5 := time.UnixMilli(5000)
	t3 := time.UnixMilli(3000)

	a.ApplyPresence(events.PresenceChanged{UserID: "u1", Online: true, At: t5})
	a.ApplyPresence(events.PresenceChanged{UserID: "u1", Online: false, At: t3})

	u, _ := store.User("u1")
	if !u.Online {
		t.Fatalf("expected late offline event discarded")
	}
	if a.StaleEvents() != 1 {
		t.Fatalf("expected 1 stale event, got %d", a.StaleEvents())
	}
}

func TestApplierApplyPresence_StampsEventsWithoutTimestamp(t *testing.T) {
	store := domain.NewStore()
	a := NewApplier(store, nil)

	a.ApplyPresence(events.PresenceChanged{UserID: "u1", Online: true})
	a.ApplyPresence(events.PresenceChanged{UserID: "u1", Online: false})

	u, _ := store.User("u1")
	if u.Online {
		t.Fatalf("expected second clock-stamped event to apply")
	}
	if a.StaleEvents() != 0 {
		t.Fatalf("expected no stale events, got %d", a.StaleEvents())
	}
}

func TestApplierApplyMessage_BumpsUnreadUnlessActive(t *testing.T) {
	store := domain.NewStore()
	a := NewApplier(store, nil)
	at := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	a.ApplyMessage(events.MessageReceived{
		ConversationID: "c1",
		Summary:        domain.MessageSummary{SenderUserID: "u2", Kind: domain.MessageKindText, Preview: "hi", At: at},
	})

	c, ok := store.Conversation("c1")
	if !ok {
		t.Fatalf("expected conversation created")
	}
	if c.UnreadCount != 1 {
		t.Fatalf("expected unread bumped, got %d", c.UnreadCount)
	}
	if c.LastMessage.Preview != "hi" {
		t.Fatalf("expected last message merged, got %+v", c.LastMessage)
	}
	if _, ok := store.User("u2"); !ok {
		t.Fatalf("expected sender stub created")
	}

	a.SetActiveConversation("c1")
	a.ApplyMessage(events.MessageReceived{
		ConversationID: "c1",
		Summary:        domain.MessageSummary{SenderUserID: "u2", Preview: "again", At: at.Add(time.Minute)},
	})

	c, _ = store.Conversation("c1")
	if c.UnreadCount != 1 {
		t.Fatalf("expected no bump for active conversation, got %d", c.UnreadCount)
	}
	if c.LastMessage.Preview != "again" {
		t.Fatalf("expected last message still updated, got %+v", c.LastMessage)
	}
}

func TestApplierApplyNotification_DuplicateDeliveryIsNoOp(t *testing.T) {
	store := domain.NewStore()
	a := NewApplier(store, nil)

	ev := events.NotificationReceived{Notification: domain.Notification{ID: "n1", SenderUserID: "u2", Message: "liked your post"}}
	a.ApplyNotification(ev)
	store.SetNotificationRead("n1", true)
	a.ApplyNotification(ev)

	if store.UnreadNotifications() != 0 {
		t.Fatalf("expected redelivery not to resurrect unread state")
	}
	if len(store.NotificationsSnapshot()) != 1 {
		t.Fatalf("expected a single record")
	}
}

func TestApplierApplyMembership_SecondOwnerCountsAsViolation(t *testing.T) {
	store := domain.NewStore()
	a := NewApplier(store, nil)

	a.ApplyMembership(events.MembershipRoleChanged{GroupID: "g1", UserID: "u1", Role: domain.GroupRoleOwner})
	a.ApplyMembership(events.MembershipRoleChanged{GroupID: "g1", UserID: "u2", Role: domain.GroupRoleOwner})

	if a.ConsistencyViolations() != 1 {
		t.Fatalf("expected 1 violation, got %d", a.ConsistencyViolations())
	}
	if m, ok := store.Membership("g1", "u1"); !ok || m.Role != domain.GroupRoleOwner {
		t.Fatalf("expected original owner intact, got %+v", m)
	}
	if _, ok := store.Membership("g1", "u2"); ok {
		t.Fatalf("expected violating membership dropped")
	}
}
