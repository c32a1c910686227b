package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"socialgo/internal/domain"
)

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Upsert(ctx context.Context, u domain.UserSummary) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users(user_id, display_name, handle, avatar_url, online, presence_version, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END,
			handle = CASE WHEN excluded.handle != '' THEN excluded.handle ELSE users.handle END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE users.avatar_url END,
			online = CASE
				WHEN excluded.presence_version > users.presence_version THEN excluded.online
				ELSE users.online
			END,
			presence_version = CASE
				WHEN excluded.presence_version > users.presence_version THEN excluded.presence_version
				ELSE users.presence_version
			END,
			updated_at = CASE
				WHEN excluded.updated_at > users.updated_at THEN excluded.updated_at
				ELSE users.updated_at
			END
	`, u.ID, u.DisplayName, u.Handle, u.AvatarURL, boolToInt(u.Online), u.PresenceVersion, toUnixMillis(u.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}

	return nil
}

func (r *UserRepo) List(ctx context.Context) ([]domain.UserSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, display_name, handle, avatar_url, online, presence_version, updated_at
		FROM users
		ORDER BY user_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]domain.UserSummary, 0)
	for rows.Next() {
		var (
			u         domain.UserSummary
			online    int
			updatedMs int64
		)
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.Handle, &u.AvatarURL, &online, &u.PresenceVersion, &updatedMs); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Online = online != 0
		u.UpdatedAt = fromUnixMillis(updatedMs)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return out, nil
}
