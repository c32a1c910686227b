package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"socialgo/internal/domain"
)

type MutationKind string

const (
	MutationToggleLike           MutationKind = "toggle_like"
	MutationAddComment           MutationKind = "add_comment"
	MutationFriendAccept         MutationKind = "friend_accept"
	MutationFriendReject         MutationKind = "friend_reject"
	MutationMarkNotificationRead MutationKind = "mark_notification_read"
	MutationMarkConversationRead MutationKind = "mark_conversation_read"
)

type MutationState int

const (
	MutationApplied MutationState = iota + 1
	MutationConfirmed
	MutationRolledBack
)

var (
	ErrUnknownToken    = errors.New("unknown mutation token")
	ErrAlreadyResolved = errors.New("mutation already resolved")
)

// ServerResult is the authoritative payload from a mutation endpoint. Commit
// closures pull the fields they understand and ignore the rest.
type ServerResult = map[string]any

// PendingMutation tracks one in-flight optimistic change.
type PendingMutation struct {
	Token      string
	Kind       MutationKind
	EntityKind domain.Kind
	EntityID   string
	Field      string
	State      MutationState

	restore func()
	confirm func(ServerResult)
}

// MutationManager applies local mutations to the store immediately and later
// commits or rolls them back against the authoritative server result.
// Rollback restores the exact pre-mutation snapshot captured at begin time,
// not an inverse delta, so interleaved mutations cannot compound errors.
//
// At most one mutation may be outstanding per (entity, field) pair: a second
// begin force-commits the earlier one with its optimistic delta first. A late
// server result for a force-committed token gets ErrAlreadyResolved.
type MutationManager struct {
	store  *domain.Store
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]*PendingMutation
	byField map[string]string
}

func NewMutationManager(store *domain.Store, logger *slog.Logger) *MutationManager {
	if logger == nil {
		logger = slog.Default().With("component", "engine.mutations")
	}

	return &MutationManager{
		store:   store,
		logger:  logger,
		pending: make(map[string]*PendingMutation),
		byField: make(map[string]string),
	}
}

func fieldKey(kind domain.Kind, id, field string) string {
	return string(kind) + "/" + id + "/" + field
}

// begin force-resolves any outstanding mutation on the same (entity, field)
// pair, then runs mutate, which must capture its snapshot and apply the
// optimistic delta, returning the restore and confirm closures.
func (m *MutationManager) begin(kind MutationKind, entityKind domain.Kind, entityID, field string, mutate func() (restore func(), confirm func(ServerResult))) string {
	key := fieldKey(entityKind, entityID, field)

	m.mu.Lock()
	defer m.mu.Unlock()

	if prior, ok := m.byField[key]; ok {
		m.resolveLocked(prior, MutationConfirmed)
		m.logger.Debug("force-committed outstanding mutation", "token", prior, "key", key)
	}

	restore, confirm := mutate()
	token := uuid.NewString()
	m.pending[token] = &PendingMutation{
		Token:      token,
		Kind:       kind,
		EntityKind: entityKind,
		EntityID:   entityID,
		Field:      field,
		State:      MutationApplied,
		restore:    restore,
		confirm:    confirm,
	}
	m.byField[key] = token

	return token
}

func (m *MutationManager) resolveLocked(token string, state MutationState) {
	p, ok := m.pending[token]
	if !ok || p.State != MutationApplied {
		return
	}
	p.State = state
	delete(m.byField, fieldKey(p.EntityKind, p.EntityID, p.Field))
}

// Commit replaces the optimistic delta with the authoritative server fields
// and marks the mutation confirmed.
func (m *MutationManager) Commit(token string, result ServerResult) error {
	m.mu.Lock()
	p, ok := m.pending[token]
	if !ok {
		m.mu.Unlock()

		return ErrUnknownToken
	}
	if p.State != MutationApplied {
		m.mu.Unlock()

		return fmt.Errorf("commit %s: %w", token, ErrAlreadyResolved)
	}
	m.resolveLocked(token, MutationConfirmed)
	confirm := p.confirm
	m.mu.Unlock()

	if confirm != nil {
		confirm(result)
	}

	return nil
}

// Rollback re-applies the pre-mutation snapshot, restoring exact prior field
// values.
func (m *MutationManager) Rollback(token string) error {
	m.mu.Lock()
	p, ok := m.pending[token]
	if !ok {
		m.mu.Unlock()

		return ErrUnknownToken
	}
	if p.State != MutationApplied {
		m.mu.Unlock()

		return fmt.Errorf("rollback %s: %w", token, ErrAlreadyResolved)
	}
	m.resolveLocked(token, MutationRolledBack)
	restore := p.restore
	m.mu.Unlock()

	if restore != nil {
		restore()
	}

	return nil
}

// State reports a mutation's lifecycle state.
func (m *MutationManager) State(token string) (MutationState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pending[token]
	if !ok {
		return 0, false
	}

	return p.State, true
}

// BeginToggleLike toggles userID's membership in the post's likes set. The
// like count follows the set.
func (m *MutationManager) BeginToggleLike(postID, userID string) string {
	return m.begin(MutationToggleLike, domain.KindPost, postID, "likes", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.Post(postID)

		likes := append([]string(nil), snapshot.LikeUserIDs...)
		if snapshot.Liked(userID) {
			filtered := likes[:0]
			for _, id := range likes {
				if id != userID {
					filtered = append(filtered, id)
				}
			}
			likes = filtered
		} else {
			likes = append(likes, userID)
		}
		m.store.UpsertPost(domain.PostPatch{ID: postID, LikeUserIDs: &likes})

		restore := func() {
			if !existed {
				m.store.RemovePost(postID)

				return
			}
			prior := snapshot.LikeUserIDs
			m.store.UpsertPost(domain.PostPatch{ID: postID, LikeUserIDs: &prior})
		}
		confirm := func(result ServerResult) {
			confirmed, ok := stringSlice(result["likes"])
			if !ok {
				return
			}
			m.store.UpsertPost(domain.PostPatch{ID: postID, LikeUserIDs: &confirmed})
		}

		return restore, confirm
	})
}

// BeginAddComment appends a temporary comment flagged optimistic. On commit
// the confirmed record replaces it, matched by author and body equality,
// because the temporary record has no server id yet.
func (m *MutationManager) BeginAddComment(postID string, comment domain.Comment) string {
	return m.begin(MutationAddComment, domain.KindPost, postID, "comments", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.Post(postID)

		comment.Optimistic = true
		if comment.CreatedAt.IsZero() {
			comment.CreatedAt = time.Now()
		}
		comments := append(append([]domain.Comment(nil), snapshot.Comments...), comment)
		m.store.UpsertPost(domain.PostPatch{ID: postID, Comments: &comments})

		restore := func() {
			if !existed {
				m.store.RemovePost(postID)

				return
			}
			prior := snapshot.Comments
			m.store.UpsertPost(domain.PostPatch{ID: postID, Comments: &prior})
		}
		confirm := func(result ServerResult) {
			confirmed, ok := commentFromResult(result)
			if !ok {
				// Server acked without echoing the comment; just clear the flag.
				confirmed = comment
				confirmed.Optimistic = false
			}
			current, _ := m.store.Post(postID)
			replaced := make([]domain.Comment, 0, len(current.Comments))
			swapped := false
			for _, c := range current.Comments {
				if !swapped && c.Optimistic && c.AuthorID == comment.AuthorID && c.Body == comment.Body {
					replaced = append(replaced, confirmed)
					swapped = true

					continue
				}
				replaced = append(replaced, c)
			}
			if !swapped {
				replaced = append(replaced, confirmed)
			}
			m.store.UpsertPost(domain.PostPatch{ID: postID, Comments: &replaced})
		}

		return restore, confirm
	})
}

// BeginFriendAccept transitions a pending-incoming edge to accepted.
func (m *MutationManager) BeginFriendAccept(otherUserID string) string {
	return m.begin(MutationFriendAccept, domain.KindFriendEdge, otherUserID, "status", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.FriendEdge(otherUserID)

		m.store.UpsertFriendEdge(domain.FriendEdge{OtherUserID: otherUserID, Status: domain.FriendStatusAccepted})

		restore := func() {
			if !existed {
				m.store.RemoveFriendEdge(otherUserID)

				return
			}
			m.store.UpsertFriendEdge(snapshot)
		}

		return restore, nil
	})
}

// BeginFriendReject removes the pending edge.
func (m *MutationManager) BeginFriendReject(otherUserID string) string {
	return m.begin(MutationFriendReject, domain.KindFriendEdge, otherUserID, "status", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.FriendEdge(otherUserID)

		m.store.RemoveFriendEdge(otherUserID)

		restore := func() {
			if existed {
				m.store.UpsertFriendEdge(snapshot)
			}
		}

		return restore, nil
	})
}

// BeginMarkNotificationRead flips the notification's read flag; the unread
// counter is derived from the flags and follows automatically.
func (m *MutationManager) BeginMarkNotificationRead(notificationID string) string {
	return m.begin(MutationMarkNotificationRead, domain.KindNotification, notificationID, "read", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.Notification(notificationID)

		m.store.SetNotificationRead(notificationID, true)

		restore := func() {
			if existed {
				m.store.SetNotificationRead(notificationID, snapshot.Read)
			}
		}

		return restore, nil
	})
}

// BeginMarkConversationRead resets the conversation's unread counter.
func (m *MutationManager) BeginMarkConversationRead(conversationID string) string {
	return m.begin(MutationMarkConversationRead, domain.KindConversation, conversationID, "unread", func() (func(), func(ServerResult)) {
		snapshot, existed := m.store.Conversation(conversationID)

		m.store.ClearConversationUnread(conversationID)

		restore := func() {
			if existed {
				m.store.SetConversationUnread(conversationID, snapshot.UnreadCount)
			}
		}

		return restore, nil
	})
}

func stringSlice(v any) ([]string, bool) {
	switch vals := v.(type) {
	case []string:
		return append([]string(nil), vals...), true
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}

		return out, true
	}

	return nil, false
}

func commentFromResult(result ServerResult) (domain.Comment, bool) {
	raw, ok := result["comment"].(map[string]any)
	if !ok {
		return domain.Comment{}, false
	}
	c := domain.Comment{}
	if id, ok := raw["id"].(string); ok {
		c.ID = id
	}
	if author, ok := raw["author_id"].(string); ok {
		c.AuthorID = author
	}
	if body, ok := raw["body"].(string); ok {
		c.Body = body
	}
	if at, ok := raw["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, at); err == nil {
			c.CreatedAt = parsed
		}
	}
	if c.ID == "" {
		return domain.Comment{}, false
	}

	return c, true
}
