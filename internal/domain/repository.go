package domain

import "context"

type UserRepository interface {
	Upsert(ctx context.Context, u UserSummary) error
	List(ctx context.Context) ([]UserSummary, error)
}

type ConversationRepository interface {
	Upsert(ctx context.Context, c Conversation) error
	ListSortedByLastMessage(ctx context.Context) ([]Conversation, error)
}

type NotificationRepository interface {
	Upsert(ctx context.Context, n Notification) error
	ListSortedByCreated(ctx context.Context) ([]Notification, error)
}
