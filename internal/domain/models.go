package domain

import "time"

type FriendStatus int

const (
	FriendStatusPendingIncoming FriendStatus = iota + 1
	FriendStatusPendingOutgoing
	FriendStatusAccepted
)

type GroupRole int

const (
	GroupRoleMember GroupRole = iota + 1
	GroupRoleAdmin
	GroupRoleOwner
)

type MessageKind int

const (
	MessageKindText MessageKind = iota + 1
	MessageKindImage
	MessageKindSticker
)

// UserSummary is the single shared representation of a person. Friend edges,
// conversations, and search results all reference it by ID.
type UserSummary struct {
	ID              string
	DisplayName     string
	Handle          string
	AvatarURL       string
	Online          bool
	PresenceVersion int64
	UpdatedAt       time.Time
}

// UserPatch is a sparse update to a UserSummary. Nil fields are preserved on
// merge; Online must be accompanied by a PresenceVersion to take effect.
type UserPatch struct {
	ID              string
	DisplayName     *string
	Handle          *string
	AvatarURL       *string
	Online          *bool
	PresenceVersion int64
}

// FriendEdge relates the session user to another user. The store keeps at most
// one edge per other user.
type FriendEdge struct {
	OtherUserID string
	Status      FriendStatus
	CreatedAt   time.Time
}

type MessageSummary struct {
	SenderUserID string
	Kind         MessageKind
	Preview      string
	At           time.Time
}

type Conversation struct {
	ID                string
	ParticipantUserID string
	LastMessage       MessageSummary
	UnreadCount       int
	UpdatedAt         time.Time
}

// ConversationPatch is a sparse update to a Conversation. Unread count is
// mutated only through the dedicated store operations.
type ConversationPatch struct {
	ID                string
	ParticipantUserID *string
	LastMessage       *MessageSummary
	UpdatedAt         time.Time
}

type Notification struct {
	ID           string
	SenderUserID string
	Message      string
	Link         string
	Read         bool
	CreatedAt    time.Time
}

type GroupMembership struct {
	GroupID string
	UserID  string
	Role    GroupRole
}

type Comment struct {
	ID         string
	AuthorID   string
	Body       string
	CreatedAt  time.Time
	Optimistic bool
}

type Post struct {
	ID          string
	AuthorID    string
	Body        string
	LikeUserIDs []string
	LikeCount   int
	Comments    []Comment
	CreatedAt   time.Time
}

// PostPatch is a sparse update to a Post.
type PostPatch struct {
	ID          string
	AuthorID    *string
	Body        *string
	LikeUserIDs *[]string
	Comments    *[]Comment
	CreatedAt   time.Time
}

// Liked reports whether userID is in the post's likes set.
func (p Post) Liked(userID string) bool {
	for _, id := range p.LikeUserIDs {
		if id == userID {
			return true
		}
	}

	return false
}

// Pagination is the page envelope returned by list endpoints.
type Pagination struct {
	Page       int
	TotalPages int
	Total      int
}

func (p Pagination) HasMore() bool {
	return p.Page < p.TotalPages
}
