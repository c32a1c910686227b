package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"socialgo/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Upsert(ctx context.Context, c domain.Conversation) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations(conversation_id, participant_id, last_sender_id, last_kind, last_preview, last_at, unread, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			participant_id = CASE WHEN excluded.participant_id != '' THEN excluded.participant_id ELSE conversations.participant_id END,
			last_sender_id = excluded.last_sender_id,
			last_kind = excluded.last_kind,
			last_preview = excluded.last_preview,
			last_at = CASE
				WHEN excluded.last_at > conversations.last_at THEN excluded.last_at
				ELSE conversations.last_at
			END,
			unread = excluded.unread,
			updated_at = CASE
				WHEN excluded.updated_at > conversations.updated_at THEN excluded.updated_at
				ELSE conversations.updated_at
			END
	`, c.ID, c.ParticipantUserID, c.LastMessage.SenderUserID, int(c.LastMessage.Kind), c.LastMessage.Preview,
		toUnixMillis(c.LastMessage.At), c.UnreadCount, toUnixMillis(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	return nil
}

func (r *ConversationRepo) ListSortedByLastMessage(ctx context.Context) ([]domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, participant_id, last_sender_id, last_kind, last_preview, last_at, unread, updated_at
		FROM conversations
		ORDER BY last_at DESC, updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Conversation, 0)
	for rows.Next() {
		var (
			c         domain.Conversation
			kind      int
			lastMs    int64
			updatedMs int64
		)
		if err := rows.Scan(&c.ID, &c.ParticipantUserID, &c.LastMessage.SenderUserID, &kind,
			&c.LastMessage.Preview, &lastMs, &c.UnreadCount, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.LastMessage.Kind = domain.MessageKind(kind)
		c.LastMessage.At = fromUnixMillis(lastMs)
		c.UpdatedAt = fromUnixMillis(updatedMs)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	return out, nil
}
