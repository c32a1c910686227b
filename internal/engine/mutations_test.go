package engine

import (
	"errors"
	"testing"

	"socialgo/internal/domain"
)

func seedPost(store *domain.Store, id string, likes []string) {
	author := "author"
	body := "hello"
	store.UpsertPost(domain.PostPatch{ID: id, AuthorID: &author, Body: &body, LikeUserIDs: &likes})
}

func TestToggleLike_AppliesOptimisticallyAndConfirms(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", []string{"u2"})

	token := m.BeginToggleLike("p1", "u1")

	post, _ := store.Post("p1")
	if !post.Liked("u1") || post.LikeCount != 2 {
		t.Fatalf("expected optimistic like applied, got %v", post.LikeUserIDs)
	}
	if state, ok := m.State(token); !ok || state != MutationApplied {
		t.Fatalf("expected applied state, got %v", state)
	}

	if err := m.Commit(token, ServerResult{"likes": []any{"u1", "u2", "u3"}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	post, _ = store.Post("p1")
	if post.LikeCount != 3 || !post.Liked("u3") {
		t.Fatalf("expected authoritative likes to replace optimistic set, got %v", post.LikeUserIDs)
	}
	if state, _ := m.State(token); state != MutationConfirmed {
		t.Fatalf("expected confirmed state, got %v", state)
	}
}

func TestToggleLike_RollbackRestoresExactSnapshot(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", []string{"u2", "u3"})

	token := m.BeginToggleLike("p1", "u1")
	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	post, _ := store.Post("p1")
	if post.LikeCount != 2 || post.Liked("u1") {
		t.Fatalf("expected exact pre-mutation likes restored, got %v", post.LikeUserIDs)
	}
	if state, _ := m.State(token); state != MutationRolledBack {
		t.Fatalf("expected rolled-back state, got %v", state)
	}
}

func TestToggleLike_UnlikeThenRollbackRestoresLike(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", []string{"u1", "u2"})

	token := m.BeginToggleLike("p1", "u1")
	post, _ := store.Post("p1")
	if post.Liked("u1") {
		t.Fatalf("expected optimistic unlike")
	}

	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	post, _ = store.Post("p1")
	if !post.Liked("u1") || post.LikeCount != 2 {
		t.Fatalf("expected like restored, got %v", post.LikeUserIDs)
	}
}

func TestAddComment_ConfirmReplacesOptimisticRecord(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", nil)

	token := m.BeginAddComment("p1", domain.Comment{AuthorID: "u1", Body: "nice"})

	post, _ := store.Post("p1")
	if len(post.Comments) != 1 || !post.Comments[0].Optimistic {
		t.Fatalf("expected one optimistic comment, got %+v", post.Comments)
	}

	err := m.Commit(token, ServerResult{"comment": map[string]any{
		"id":        "cm-42",
		"author_id": "u1",
		"body":      "nice",
	}})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	post, _ = store.Post("p1")
	if len(post.Comments) != 1 {
		t.Fatalf("expected confirmed comment to replace optimistic one, got %d", len(post.Comments))
	}
	if post.Comments[0].ID != "cm-42" || post.Comments[0].Optimistic {
		t.Fatalf("expected server record, got %+v", post.Comments[0])
	}
}

func TestAddComment_RollbackDropsOptimisticRecord(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", nil)

	token := m.BeginAddComment("p1", domain.Comment{AuthorID: "u1", Body: "nice"})
	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	post, _ := store.Post("p1")
	if len(post.Comments) != 0 {
		t.Fatalf("expected optimistic comment removed, got %+v", post.Comments)
	}
}

func TestBegin_SecondMutationOnSameFieldForceCommitsFirst(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	seedPost(store, "p1", nil)

	first := m.BeginToggleLike("p1", "u1")
	second := m.BeginToggleLike("p1", "u1")

	if state, _ := m.State(first); state != MutationConfirmed {
		t.Fatalf("expected first mutation force-committed, got %v", state)
	}
	// The post is back to its original likes: like then unlike.
	post, _ := store.Post("p1")
	if post.LikeCount != 0 {
		t.Fatalf("expected net zero likes after toggle-toggle, got %v", post.LikeUserIDs)
	}

	// A late server response for the force-committed token is rejected.
	if err := m.Rollback(first); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved for late rollback, got %v", err)
	}
	if err := m.Commit(second, nil); err != nil {
		t.Fatalf("commit second: %v", err)
	}
}

func TestFriendAccept_RollbackRestoresPendingEdge(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	store.UpsertFriendEdge(domain.FriendEdge{OtherUserID: "u2", Status: domain.FriendStatusPendingIncoming})

	token := m.BeginFriendAccept("u2")
	edge, _ := store.FriendEdge("u2")
	if edge.Status != domain.FriendStatusAccepted {
		t.Fatalf("expected optimistic accept, got %d", edge.Status)
	}

	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	edge, ok := store.FriendEdge("u2")
	if !ok || edge.Status != domain.FriendStatusPendingIncoming {
		t.Fatalf("expected pending edge restored, got %+v ok=%v", edge, ok)
	}
}

func TestFriendReject_RollbackRestoresRemovedEdge(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	store.UpsertFriendEdge(domain.FriendEdge{OtherUserID: "u2", Status: domain.FriendStatusPendingIncoming})

	token := m.BeginFriendReject("u2")
	if _, ok := store.FriendEdge("u2"); ok {
		t.Fatalf("expected edge removed optimistically")
	}

	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, ok := store.FriendEdge("u2"); !ok {
		t.Fatalf("expected edge restored after rollback")
	}
}

func TestMarkConversationRead_RollbackRestoresExactCount(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	for i := 0; i < 3; i++ {
		store.BumpConversationUnread("c1")
	}

	token := m.BeginMarkConversationRead("c1")
	c, _ := store.Conversation("c1")
	if c.UnreadCount != 0 {
		t.Fatalf("expected optimistic clear, got %d", c.UnreadCount)
	}

	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	c, _ = store.Conversation("c1")
	if c.UnreadCount != 3 {
		t.Fatalf("expected exact unread count restored, got %d", c.UnreadCount)
	}
}

func TestMarkNotificationRead_RollbackRestoresFlag(t *testing.T) {
	store := domain.NewStore()
	m := NewMutationManager(store, nil)
	store.UpsertNotification(domain.Notification{ID: "n1"})

	token := m.BeginMarkNotificationRead("n1")
	if store.UnreadNotifications() != 0 {
		t.Fatalf("expected optimistic read applied")
	}

	if err := m.Rollback(token); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if store.UnreadNotifications() != 1 {
		t.Fatalf("expected unread flag restored")
	}
}

func TestMutationManager_UnknownTokenErrors(t *testing.T) {
	m := NewMutationManager(domain.NewStore(), nil)

	if err := m.Commit("missing", nil); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
	if err := m.Rollback("missing"); !errors.Is(err, ErrUnknownToken) {
		t.Fatalf("expected ErrUnknownToken, got %v", err)
	}
}
