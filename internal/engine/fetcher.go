package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"socialgo/internal/domain"
)

// ListSource fetches one page of raw list items. Implemented by the api
// client.
type ListSource interface {
	FetchPage(ctx context.Context, path string, filters map[string]string, page int) ([]map[string]any, domain.Pagination, error)
}

// ItemIngester merges one raw list item into the store and returns the id the
// list should carry. Store writes are unconditional; list membership is
// decided by the reconciler afterwards.
type ItemIngester func(item map[string]any) (string, error)

// Fetcher orchestrates a page load: in-flight guard, fetch, per-item store
// merge through the identity resolver, then list reconciliation.
type Fetcher struct {
	lists    *domain.ListReconciler
	resolver *domain.Resolver
	store    *domain.Store
	source   ListSource
	logger   *slog.Logger
}

func NewFetcher(lists *domain.ListReconciler, resolver *domain.Resolver, store *domain.Store, source ListSource, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default().With("component", "engine.fetcher")
	}

	return &Fetcher{lists: lists, resolver: resolver, store: store, source: source, logger: logger}
}

// LoadPage fetches one page for listKey. A call while another page for the
// same key is in flight is ignored. Malformed items are dropped (and logged by
// the resolver); the rest of the page still applies.
func (f *Fetcher) LoadPage(ctx context.Context, listKey, path string, filters map[string]string, page int, ingest ItemIngester) error {
	if !f.lists.Begin(listKey, page) {
		return nil
	}

	items, pagination, err := f.source.FetchPage(ctx, path, filters, page)
	if err != nil {
		f.lists.Abort(listKey)

		return fmt.Errorf("fetch %s page %d: %w", listKey, page, err)
	}

	ids := make([]string, 0, len(items))
	for _, item := range items {
		id, err := ingest(item)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	f.lists.Complete(listKey, filters, page, ids, pagination)

	return nil
}

// IngestUser routes a raw user record through the identity resolver.
func (f *Fetcher) IngestUser(item map[string]any) (string, error) {
	return f.resolver.Resolve(item, domain.OriginFriends)
}

// IngestFriendRequest resolves the embedded user and records a pending
// incoming edge for it.
func (f *Fetcher) IngestFriendRequest(item map[string]any) (string, error) {
	raw := item
	if embedded, ok := item["user"].(map[string]any); ok {
		raw = embedded
	}
	id, err := f.resolver.Resolve(raw, domain.OriginFriends)
	if err != nil {
		return "", err
	}
	edge := domain.FriendEdge{OtherUserID: id, Status: domain.FriendStatusPendingIncoming}
	if at, ok := timeField(item, "created_at", "createdAt"); ok {
		edge.CreatedAt = at
	}
	f.store.UpsertFriendEdge(edge)

	return id, nil
}

// IngestConversation resolves the participant and merges the conversation,
// including the server-reported unread count.
func (f *Fetcher) IngestConversation(item map[string]any) (string, error) {
	convID, ok := rawString(item, "id", "conversation_id")
	if !ok {
		return "", domain.ErrMissingID
	}

	patch := domain.ConversationPatch{ID: convID}
	if participant, ok := item["participant"].(map[string]any); ok {
		userID, err := f.resolver.Resolve(participant, domain.OriginConversations)
		if err == nil {
			patch.ParticipantUserID = &userID
		}
	} else if userID, ok := rawString(item, "participant_id", "user_id"); ok {
		f.store.UpsertUser(domain.UserPatch{ID: userID})
		patch.ParticipantUserID = &userID
	}
	if last, ok := item["last_message"].(map[string]any); ok {
		summary := messageSummary(last)
		patch.LastMessage = &summary
		patch.UpdatedAt = summary.At
	}
	f.store.UpsertConversation(patch)
	if unread, ok := intField(item, "unread_count", "unread"); ok {
		f.store.SetConversationUnread(convID, unread)
	}

	return convID, nil
}

// IngestNotification merges a notification record. The fetch is authoritative
// for the read flag.
func (f *Fetcher) IngestNotification(item map[string]any) (string, error) {
	id, ok := rawString(item, "id", "notification_id")
	if !ok {
		return "", domain.ErrMissingID
	}

	n := domain.Notification{ID: id}
	if sender, ok := rawString(item, "sender_id", "sender_user_id"); ok {
		n.SenderUserID = sender
		f.store.UpsertUser(domain.UserPatch{ID: sender})
	}
	if msg, ok := rawString(item, "message", "text"); ok {
		n.Message = msg
	}
	if link, ok := rawString(item, "link", "url"); ok {
		n.Link = link
	}
	read, hasRead := item["read"].(bool)
	n.Read = read
	if at, ok := timeField(item, "created_at", "createdAt"); ok {
		n.CreatedAt = at
	}
	if _, created := f.store.UpsertNotification(n); !created && hasRead {
		f.store.SetNotificationRead(id, read)
	}

	return id, nil
}

// IngestPost merges a post record and resolves its embedded author.
func (f *Fetcher) IngestPost(item map[string]any) (string, error) {
	id, ok := rawString(item, "id", "post_id")
	if !ok {
		return "", domain.ErrMissingID
	}

	patch := domain.PostPatch{ID: id}
	if author, ok := item["author"].(map[string]any); ok {
		if authorID, err := f.resolver.Resolve(author, domain.OriginSearch); err == nil {
			patch.AuthorID = &authorID
		}
	} else if authorID, ok := rawString(item, "author_id"); ok {
		f.store.UpsertUser(domain.UserPatch{ID: authorID})
		patch.AuthorID = &authorID
	}
	if body, ok := rawString(item, "body", "content"); ok {
		patch.Body = &body
	}
	if likes, ok := stringSlice(item["likes"]); ok {
		patch.LikeUserIDs = &likes
	}
	if at, ok := timeField(item, "created_at", "createdAt"); ok {
		patch.CreatedAt = at
	}
	f.store.UpsertPost(patch)

	return id, nil
}

// IngestGroupMember resolves the member user and upserts the membership. A
// payload claiming a second owner is dropped as a consistency violation.
func (f *Fetcher) IngestGroupMember(groupID string) ItemIngester {
	return func(item map[string]any) (string, error) {
		raw := item
		if embedded, ok := item["user"].(map[string]any); ok {
			raw = embedded
		}
		userID, err := f.resolver.Resolve(raw, domain.OriginGroups)
		if err != nil {
			return "", err
		}
		role := domain.GroupRoleMember
		if r, ok := rawString(item, "role"); ok {
			role = parseRole(r)
		}
		if err := f.store.UpsertMembership(domain.GroupMembership{GroupID: groupID, UserID: userID, Role: role}); err != nil {
			f.logger.Error("membership fetch rejected", "group", groupID, "user", userID, "error", err)

			return "", err
		}

		return userID, nil
	}
}

func parseRole(raw string) domain.GroupRole {
	switch raw {
	case "owner":
		return domain.GroupRoleOwner
	case "admin":
		return domain.GroupRoleAdmin
	default:
		return domain.GroupRoleMember
	}
}

func messageSummary(raw map[string]any) domain.MessageSummary {
	summary := domain.MessageSummary{Kind: domain.MessageKindText}
	if sender, ok := rawString(raw, "sender_id", "sender"); ok {
		summary.SenderUserID = sender
	}
	if preview, ok := rawString(raw, "preview", "content", "body"); ok {
		summary.Preview = preview
	}
	if kind, ok := rawString(raw, "kind", "type"); ok {
		switch kind {
		case "image":
			summary.Kind = domain.MessageKindImage
		case "sticker":
			summary.Kind = domain.MessageKindSticker
		}
	}
	if at, ok := timeField(raw, "at", "timestamp", "created_at"); ok {
		summary.At = at
	}

	return summary
}

func rawString(raw map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := raw[key].(string); ok && v != "" {
			return v, true
		}
	}

	return "", false
}

func intField(raw map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case float64:
			return int(v), true
		case int:
			return v, true
		}
	}

	return 0, false
}

func timeField(raw map[string]any, keys ...string) (time.Time, bool) {
	for _, key := range keys {
		switch v := raw[key].(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				return parsed, true
			}
		case float64:
			// Unix milliseconds.
			return time.UnixMilli(int64(v)), true
		}
	}

	return time.Time{}, false
}
