package events

import (
	"time"

	"socialgo/internal/domain"
)

// ConnectionState describes the push channel lifecycle state.
type ConnectionState string

const (
	ConnectionStateDisconnected ConnectionState = "disconnected"
	ConnectionStateConnecting   ConnectionState = "connecting"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateReconnecting ConnectionState = "reconnecting"
)

// ConnectionStatus is a bus event snapshot of current push channel status.
type ConnectionStatus struct {
	State     ConnectionState
	Err       string
	Target    string
	Timestamp time.Time
}

// RawFrame carries raw payload diagnostics for debug views.
type RawFrame struct {
	Payload string
	Len     int
}

// PresenceChanged reports a user's online flag transition. At is the server
// event timestamp; zero means the channel supplied none and a logical clock
// stamp is used instead.
type PresenceChanged struct {
	UserID string
	Online bool
	At     time.Time
}

// MessageReceived announces a new message in a conversation.
type MessageReceived struct {
	ConversationID string
	Summary        domain.MessageSummary
}

// NotificationReceived delivers a notification. The channel is at-least-once;
// consumers must treat redelivered ids as no-ops.
type NotificationReceived struct {
	Notification domain.Notification
}

// MembershipRoleChanged reports a group role transition.
type MembershipRoleChanged struct {
	GroupID string
	UserID  string
	Role    domain.GroupRole
}
