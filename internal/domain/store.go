package domain

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// Kind identifies an entity namespace inside the store.
type Kind string

const (
	KindUser         Kind = "user"
	KindFriendEdge   Kind = "friend_edge"
	KindConversation Kind = "conversation"
	KindNotification Kind = "notification"
	KindMembership   Kind = "membership"
	KindPost         Kind = "post"
)

// ErrSecondOwner is returned when a membership upsert would give a group a
// second owner.
var ErrSecondOwner = errors.New("group already has an owner")

// Store is the normalized source of truth for all synchronized entities.
// Every mutation is a single mutex-guarded field merge, so no caller can
// observe a half-applied record. Upserts bump a per-entity revision counter
// and signal the coalescing Changes channel.
type Store struct {
	mu            sync.RWMutex
	users         map[string]UserSummary
	edges         map[string]FriendEdge
	conversations map[string]Conversation
	notifications map[string]Notification
	memberships   map[string]map[string]GroupMembership
	posts         map[string]Post
	revisions     map[string]uint64
	presenceClock int64
	changes       chan struct{}
}

func NewStore() *Store {
	s := &Store{changes: make(chan struct{}, 1)}
	s.initLocked()

	return s
}

func (s *Store) initLocked() {
	s.users = make(map[string]UserSummary)
	s.edges = make(map[string]FriendEdge)
	s.conversations = make(map[string]Conversation)
	s.notifications = make(map[string]Notification)
	s.memberships = make(map[string]map[string]GroupMembership)
	s.posts = make(map[string]Post)
	s.revisions = make(map[string]uint64)
	s.presenceClock = 0
}

// Reset evicts every entity. Used on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initLocked()
	s.notify()
}

// Changes signals after any mutation. The channel coalesces: a slow reader
// sees at least one signal for any burst of writes.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// NextPresenceVersion advances the logical presence clock. Used to stamp
// presence values that arrive without an event timestamp.
func (s *Store) NextPresenceVersion() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presenceClock++

	return s.presenceClock
}

// Revision reports how many times the entity has been upserted. Zero means
// the entity has never been seen.
func (s *Store) Revision(kind Kind, id string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.revisions[revisionKey(kind, id)]
}

func revisionKey(kind Kind, id string) string {
	return string(kind) + "/" + id
}

func (s *Store) bump(kind Kind, id string) {
	s.revisions[revisionKey(kind, id)]++
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

// UpsertUser merges the patch into the stored user, creating it on first
// mention. Nil patch fields are preserved. A presence value is applied only
// when its version is strictly newer than the stored one.
func (s *Store) UpsertUser(p UserPatch) UserSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[p.ID]
	if !ok {
		u = UserSummary{ID: p.ID}
	}
	if p.DisplayName != nil {
		u.DisplayName = *p.DisplayName
	}
	if p.Handle != nil {
		u.Handle = *p.Handle
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.Online != nil && p.PresenceVersion > u.PresenceVersion {
		u.Online = *p.Online
		u.PresenceVersion = p.PresenceVersion
		if p.PresenceVersion > s.presenceClock {
			s.presenceClock = p.PresenceVersion
		}
	}
	u.UpdatedAt = time.Now()
	s.users[p.ID] = u
	s.bump(KindUser, p.ID)
	s.notify()

	return u
}

// ApplyPresence applies an online/offline transition if version is newer than
// the stored presence version. The user is created on first mention. Returns
// false for stale, duplicate, or out-of-order updates.
func (s *Store) ApplyPresence(userID string, online bool, version int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		u = UserSummary{ID: userID}
	}
	if version > s.presenceClock {
		s.presenceClock = version
	}
	if version <= u.PresenceVersion {
		return false
	}
	u.Online = online
	u.PresenceVersion = version
	u.UpdatedAt = time.Now()
	s.users[userID] = u
	s.bump(KindUser, userID)
	s.notify()

	return true
}

func (s *Store) User(id string) (UserSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]

	return u, ok
}

func (s *Store) RemoveUser(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	s.notify()
}

func (s *Store) UsersSnapshot() []UserSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]UserSummary, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})

	return out
}

// UpsertFriendEdge merges the edge for its other-user id. Zero-valued Status
// and CreatedAt are preserved from the stored edge, so a status-only
// transition does not lose the original request time.
func (s *Store) UpsertFriendEdge(e FriendEdge) FriendEdge {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.edges[e.OtherUserID]
	if ok {
		if e.Status == 0 {
			e.Status = existing.Status
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = existing.CreatedAt
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.edges[e.OtherUserID] = e
	s.bump(KindFriendEdge, e.OtherUserID)
	s.notify()

	return e
}

func (s *Store) FriendEdge(otherUserID string) (FriendEdge, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edges[otherUserID]

	return e, ok
}

func (s *Store) RemoveFriendEdge(otherUserID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.edges, otherUserID)
	s.notify()
}

func (s *Store) FriendEdgesSnapshot() []FriendEdge {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]FriendEdge, 0, len(s.edges))
	for _, e := range s.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].OtherUserID < out[j].OtherUserID
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

// UpsertConversation merges the patch into the stored conversation. Unread
// count is untouched here; it only moves through BumpConversationUnread and
// ClearConversationUnread.
func (s *Store) UpsertConversation(p ConversationPatch) Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[p.ID]
	if !ok {
		c = Conversation{ID: p.ID}
	}
	if p.ParticipantUserID != nil {
		c.ParticipantUserID = *p.ParticipantUserID
	}
	if p.LastMessage != nil {
		c.LastMessage = *p.LastMessage
	}
	if p.UpdatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = p.UpdatedAt
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	s.conversations[p.ID] = c
	s.bump(KindConversation, p.ID)
	s.notify()

	return c
}

// BumpConversationUnread increments the unread counter by one and returns the
// new value. The conversation is created on first mention.
func (s *Store) BumpConversationUnread(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		c = Conversation{ID: id}
	}
	c.UnreadCount++
	s.conversations[id] = c
	s.bump(KindConversation, id)
	s.notify()

	return c.UnreadCount
}

// ClearConversationUnread resets the unread counter. The count can never go
// below zero because this is the only decrement path.
func (s *Store) ClearConversationUnread(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok || c.UnreadCount == 0 {
		return
	}
	c.UnreadCount = 0
	s.conversations[id] = c
	s.bump(KindConversation, id)
	s.notify()
}

// SetConversationUnread restores an exact unread value, clamped at zero.
// Only mutation rollback and fetch hydration use this; live increments go
// through BumpConversationUnread.
func (s *Store) SetConversationUnread(id string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count < 0 {
		count = 0
	}
	c, ok := s.conversations[id]
	if !ok {
		c = Conversation{ID: id}
	}
	if c.UnreadCount == count && ok {
		return
	}
	c.UnreadCount = count
	s.conversations[id] = c
	s.bump(KindConversation, id)
	s.notify()
}

func (s *Store) Conversation(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]

	return c, ok
}

func (s *Store) RemoveConversation(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	s.notify()
}

func (s *Store) ConversationsSnapshot() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessage.At.Equal(out[j].LastMessage.At) {
			return out[i].ID < out[j].ID
		}

		return out[i].LastMessage.At.After(out[j].LastMessage.At)
	})

	return out
}

// UpsertNotification stores the notification if its id is new and reports
// whether it was created. Redelivery of a known id is a no-op so the
// at-least-once push channel cannot double-count.
func (s *Store) UpsertNotification(n Notification) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.notifications[n.ID]; ok {
		return existing, false
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	s.notifications[n.ID] = n
	s.bump(KindNotification, n.ID)
	s.notify()

	return n, true
}

// SetNotificationRead flips the read flag. Returns false for an unknown id.
func (s *Store) SetNotificationRead(id string, read bool) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.notifications[id]
	if !ok {
		return Notification{}, false
	}
	if n.Read == read {
		return n, true
	}
	n.Read = read
	s.notifications[id] = n
	s.bump(KindNotification, id)
	s.notify()

	return n, true
}

func (s *Store) Notification(id string) (Notification, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.notifications[id]

	return n, ok
}

func (s *Store) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.notifications, id)
	s.notify()
}

// NotificationsSnapshot returns notifications newest first.
func (s *Store) NotificationsSnapshot() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}

// UnreadNotifications derives the unread counter from the read flags, so it
// can never drift from the records themselves.
func (s *Store) UnreadNotifications() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}

	return count
}

// UpsertMembership stores the membership. A role change that would give the
// group a second owner is rejected with ErrSecondOwner and leaves the group
// unchanged.
func (s *Store) UpsertMembership(m GroupMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group := s.memberships[m.GroupID]
	if m.Role == GroupRoleOwner {
		for _, member := range group {
			if member.Role == GroupRoleOwner && member.UserID != m.UserID {
				return ErrSecondOwner
			}
		}
	}
	if group == nil {
		group = make(map[string]GroupMembership)
		s.memberships[m.GroupID] = group
	}
	group[m.UserID] = m
	s.bump(KindMembership, m.GroupID+"/"+m.UserID)
	s.notify()

	return nil
}

func (s *Store) Membership(groupID, userID string) (GroupMembership, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[groupID][userID]

	return m, ok
}

func (s *Store) RemoveMembership(groupID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	group, ok := s.memberships[groupID]
	if !ok {
		return
	}
	delete(group, userID)
	if len(group) == 0 {
		delete(s.memberships, groupID)
	}
	s.notify()
}

// GroupMembershipsSnapshot returns a group's members, owner first, then
// admins, then members, each tier sorted by user id.
func (s *Store) GroupMembershipsSnapshot(groupID string) []GroupMembership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	group := s.memberships[groupID]
	out := make([]GroupMembership, 0, len(group))
	for _, m := range group {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role > out[j].Role
		}

		return out[i].UserID < out[j].UserID
	})

	return out
}

// UpsertPost merges the patch into the stored post. Slice fields are cloned
// on write so callers cannot alias store-owned memory.
func (s *Store) UpsertPost(p PostPatch) Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[p.ID]
	if !ok {
		post = Post{ID: p.ID}
	}
	if p.AuthorID != nil {
		post.AuthorID = *p.AuthorID
	}
	if p.Body != nil {
		post.Body = *p.Body
	}
	if p.LikeUserIDs != nil {
		post.LikeUserIDs = append([]string(nil), (*p.LikeUserIDs)...)
		post.LikeCount = len(post.LikeUserIDs)
	}
	if p.Comments != nil {
		post.Comments = append([]Comment(nil), (*p.Comments)...)
	}
	if p.CreatedAt.After(post.CreatedAt) {
		post.CreatedAt = p.CreatedAt
	}
	s.posts[p.ID] = post
	s.bump(KindPost, p.ID)
	s.notify()

	return post
}

func (s *Store) Post(id string) (Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[id]
	if !ok {
		return Post{}, false
	}

	return clonePost(post), true
}

func (s *Store) RemovePost(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	s.notify()
}

func clonePost(p Post) Post {
	p.LikeUserIDs = append([]string(nil), p.LikeUserIDs...)
	p.Comments = append([]Comment(nil), p.Comments...)

	return p
}
