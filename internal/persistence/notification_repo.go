package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"socialgo/internal/domain"
)

type NotificationRepo struct {
	db *sql.DB
}

func NewNotificationRepo(db *sql.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Upsert(ctx context.Context, n domain.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications(notification_id, sender_id, message, link, read, created_at)
		VALUES(?, ?, ?, ?, ?, ?)
		ON CONFLICT(notification_id) DO UPDATE SET
			read = excluded.read
	`, n.ID, n.SenderUserID, n.Message, n.Link, boolToInt(n.Read), toUnixMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert notification: %w", err)
	}

	return nil
}

func (r *NotificationRepo) ListSortedByCreated(ctx context.Context) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT notification_id, sender_id, message, link, read, created_at
		FROM notifications
		ORDER BY created_at DESC, notification_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Notification, 0)
	for rows.Next() {
		var (
			n         domain.Notification
			read      int
			createdMs int64
		)
		if err := rows.Scan(&n.ID, &n.SenderUserID, &n.Message, &n.Link, &read, &createdMs); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Read = read != 0
		n.CreatedAt = fromUnixMillis(createdMs)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return out, nil
}
