package engine

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"socialgo/internal/domain"
)

type fakeSource struct {
	items      []map[string]any
	pagination domain.Pagination
	err        error
	calls      int
}

func (f *fakeSource) FetchPage(_ context.Context, _ string, _ map[string]string, _ int) ([]map[string]any, domain.Pagination, error) {
	f.calls++
	if f.err != nil {
		return nil, domain.Pagination{}, f.err
	}

	return f.items, f.pagination, nil
}

func newTestFetcher(source ListSource) (*Fetcher, *domain.Store, *domain.ListReconciler) {
	store := domain.NewStore()
	lists := domain.NewListReconciler(nil)
	resolver := domain.NewResolver(store, nil)

	return NewFetcher(lists, resolver, store, source, nil), store, lists
}

func TestFetcherLoadPage_MergesItemsAndReconcilesList(t *testing.T) {
	source := &fakeSource{
		items: []map[string]any{
			{"id": "u1", "name": "Alice"},
			{"id": "u2", "name": "Bob"},
		},
		pagination: domain.Pagination{Page: 1, TotalPages: 1, Total: 2},
	}
	f, store, lists := newTestFetcher(source)

	if err := f.LoadPage(context.Background(), "friends", "/friends", nil, 1, f.IngestUser); err != nil {
		t.Fatalf("load page: %v", err)
	}

	ids, loaded := lists.Snapshot("friends")
	if !loaded || !reflect.DeepEqual(ids, []string{"u1", "u2"}) {
		t.Fatalf("expected list [u1 u2], got %v loaded=%v", ids, loaded)
	}
	if u, ok := store.User("u1"); !ok || u.DisplayName != "Alice" {
		t.Fatalf("expected resolved user in store, got %+v", u)
	}
}

func TestFetcherLoadPage_MalformedItemsDroppedRestApplies(t *testing.T) {
	source := &fakeSource{
		items: []map[string]any{
			{"id": "u1", "name": "Alice"},
			{"name": "No ID"},
			{"id": "u3", "name": "Carol"},
		},
		pagination: domain.Pagination{Page: 1, TotalPages: 1},
	}
	f, _, lists := newTestFetcher(source)

	if err := f.LoadPage(context.Background(), "friends", "/friends", nil, 1, f.IngestUser); err != nil {
		t.Fatalf("load page: %v", err)
	}

	ids, _ := lists.Snapshot("friends")
	if !reflect.DeepEqual(ids, []string{"u1", "u3"}) {
		t.Fatalf("expected malformed item skipped, got %v", ids)
	}
}

func TestFetcherLoadPage_FetchErrorLeavesListLoadable(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	f, _, lists := newTestFetcher(source)

	if err := f.LoadPage(context.Background(), "friends", "/friends", nil, 1, f.IngestUser); err == nil {
		t.Fatalf("expected fetch error surfaced")
	}

	// The in-flight marker must be cleared so a retry can begin.
	source.err = nil
	source.items = []map[string]any{{"id": "u1"}}
	source.pagination = domain.Pagination{Page: 1, TotalPages: 1}
	if err := f.LoadPage(context.Background(), "friends", "/friends", nil, 1, f.IngestUser); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	ids, _ := lists.Snapshot("friends")
	if !reflect.DeepEqual(ids, []string{"u1"}) {
		t.Fatalf("expected retry to load, got %v", ids)
	}
}

func TestFetcherLoadPage_IgnoredWhileAnotherPageInFlight(t *testing.T) {
	source := &fakeSource{pagination: domain.Pagination{Page: 1, TotalPages: 1}}
	f, _, lists := newTestFetcher(source)

	if !lists.Begin("friends", 1) {
		t.Fatalf("expected manual Begin accepted")
	}
	if err := f.LoadPage(context.Background(), "friends", "/friends", nil, 2, f.IngestUser); err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if source.calls != 0 {
		t.Fatalf("expected no fetch while another page in flight, got %d calls", source.calls)
	}
}

func TestIngestConversation_HydratesUnreadAndParticipant(t *testing.T) {
	f, store, _ := newTestFetcher(&fakeSource{})

	id, err := f.IngestConversation(map[string]any{
		"id":           "c1",
		"participant":  map[string]any{"user_id": "u2", "name": "Bob"},
		"last_message": map[string]any{"sender_id": "u2", "preview": "hey", "at": "2026-04-01T12:00:00Z"},
		"unread_count": float64(4),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if id != "c1" {
		t.Fatalf("expected conversation id, got %q", id)
	}

	c, _ := store.Conversation("c1")
	if c.ParticipantUserID != "u2" || c.UnreadCount != 4 || c.LastMessage.Preview != "hey" {
		t.Fatalf("unexpected conversation: %+v", c)
	}
	if u, ok := store.User("u2"); !ok || u.DisplayName != "Bob" {
		t.Fatalf("expected participant resolved, got %+v", u)
	}
}

func TestIngestNotification_FetchIsAuthoritativeForReadFlag(t *testing.T) {
	f, store, _ := newTestFetcher(&fakeSource{})

	store.UpsertNotification(domain.Notification{ID: "n1", Message: "liked your post"})
	if _, err := f.IngestNotification(map[string]any{"id": "n1", "read": true}); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	n, _ := store.Notification("n1")
	if !n.Read {
		t.Fatalf("expected fetched read flag applied to existing record")
	}
}

func TestIngestFriendRequest_RecordsPendingIncomingEdge(t *testing.T) {
	f, store, _ := newTestFetcher(&fakeSource{})

	id, err := f.IngestFriendRequest(map[string]any{
		"user":       map[string]any{"id": "u5", "name": "Eve"},
		"created_at": "2026-03-01T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	edge, ok := store.FriendEdge(id)
	if !ok || edge.Status != domain.FriendStatusPendingIncoming {
		t.Fatalf("expected pending incoming edge, got %+v", edge)
	}
	if edge.CreatedAt.IsZero() {
		t.Fatalf("expected request time recorded")
	}
}

func TestIngestGroupMember_SecondOwnerRejected(t *testing.T) {
	f, store, _ := newTestFetcher(&fakeSource{})
	ingest := f.IngestGroupMember("g1")

	if _, err := ingest(map[string]any{"user": map[string]any{"id": "u1"}, "role": "owner"}); err != nil {
		t.Fatalf("first owner: %v", err)
	}
	if _, err := ingest(map[string]any{"user": map[string]any{"id": "u2"}, "role": "owner"}); !errors.Is(err, domain.ErrSecondOwner) {
		t.Fatalf("expected ErrSecondOwner, got %v", err)
	}

	members := store.GroupMembershipsSnapshot("g1")
	if len(members) != 1 || members[0].UserID != "u1" {
		t.Fatalf("expected single owner u1, got %+v", members)
	}
}

func TestIngestPost_ResolvesEmbeddedAuthor(t *testing.T) {
	f, store, _ := newTestFetcher(&fakeSource{})

	id, err := f.IngestPost(map[string]any{
		"id":     "p1",
		"author": map[string]any{"id": "u1", "name": "Alice"},
		"body":   "hello world",
		"likes":  []any{"u2", "u3"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	post, _ := store.Post(id)
	if post.AuthorID != "u1" || post.LikeCount != 2 || post.Body != "hello world" {
		t.Fatalf("unexpected post: %+v", post)
	}
}
