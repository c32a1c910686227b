package push

import (
	"encoding/json"
	"fmt"
	"time"

	"socialgo/internal/domain"
	"socialgo/internal/events"
)

// Event names on the wire.
const (
	eventPresenceChanged       = "presence_changed"
	eventMessageReceived       = "message_received"
	eventNotificationReceived  = "notification_received"
	eventMembershipRoleChanged = "membership_role_changed"
)

type envelope struct {
	Event string          `json:"event"`
	TS    string          `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

// Decoded holds at most one decoded push event. The nil-pointer layout lets
// the service publish only the topics present in the payload.
type Decoded struct {
	Presence     *events.PresenceChanged
	Message      *events.MessageReceived
	Notification *events.NotificationReceived
	Membership   *events.MembershipRoleChanged
}

type presencePayload struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

type messagePayload struct {
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Kind           string `json:"kind"`
	Preview        string `json:"preview"`
	At             string `json:"at"`
}

type notificationPayload struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id"`
	Message   string `json:"message"`
	Link      string `json:"link"`
	CreatedAt string `json:"created_at"`
}

type membershipPayload struct {
	GroupID string `json:"group_id"`
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
}

// DecodeEvent parses one push channel payload. Unknown event names are an
// error so the service can count them without applying anything.
func DecodeEvent(payload []byte) (Decoded, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Decoded{}, fmt.Errorf("decode event envelope: %w", err)
	}

	ts := parseTimestamp(env.TS)

	switch env.Event {
	case eventPresenceChanged:
		var p presencePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Decoded{}, fmt.Errorf("decode presence payload: %w", err)
		}

		return Decoded{Presence: &events.PresenceChanged{UserID: p.UserID, Online: p.Online, At: ts}}, nil
	case eventMessageReceived:
		var p messagePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Decoded{}, fmt.Errorf("decode message payload: %w", err)
		}
		at := parseTimestamp(p.At)
		if at.IsZero() {
			at = ts
		}

		return Decoded{Message: &events.MessageReceived{
			ConversationID: p.ConversationID,
			Summary: domain.MessageSummary{
				SenderUserID: p.SenderID,
				Kind:         parseMessageKind(p.Kind),
				Preview:      p.Preview,
				At:           at,
			},
		}}, nil
	case eventNotificationReceived:
		var p notificationPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Decoded{}, fmt.Errorf("decode notification payload: %w", err)
		}
		createdAt := parseTimestamp(p.CreatedAt)
		if createdAt.IsZero() {
			createdAt = ts
		}

		return Decoded{Notification: &events.NotificationReceived{Notification: domain.Notification{
			ID:           p.ID,
			SenderUserID: p.SenderID,
			Message:      p.Message,
			Link:         p.Link,
			CreatedAt:    createdAt,
		}}}, nil
	case eventMembershipRoleChanged:
		var p membershipPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return Decoded{}, fmt.Errorf("decode membership payload: %w", err)
		}

		return Decoded{Membership: &events.MembershipRoleChanged{
			GroupID: p.GroupID,
			UserID:  p.UserID,
			Role:    parseGroupRole(p.Role),
		}}, nil
	default:
		return Decoded{}, fmt.Errorf("unknown event: %q", env.Event)
	}
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}

	return parsed
}

func parseMessageKind(raw string) domain.MessageKind {
	switch raw {
	case "image":
		return domain.MessageKindImage
	case "sticker":
		return domain.MessageKindSticker
	default:
		return domain.MessageKindText
	}
}

func parseGroupRole(raw string) domain.GroupRole {
	switch raw {
	case "owner":
		return domain.GroupRoleOwner
	case "admin":
		return domain.GroupRoleAdmin
	default:
		return domain.GroupRoleMember
	}
}
