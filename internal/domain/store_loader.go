package domain

import (
	"context"
	"fmt"
)

// LoadStoreFromRepositories warms the store from the session cache so views
// render immediately after an in-session restart.
func LoadStoreFromRepositories(ctx context.Context, store *Store, users UserRepository, conversations ConversationRepository, notifications NotificationRepository) error {
	userItems, err := users.List(ctx)
	if err != nil {
		return fmt.Errorf("load users from cache: %w", err)
	}
	conversationItems, err := conversations.ListSortedByLastMessage(ctx)
	if err != nil {
		return fmt.Errorf("load conversations from cache: %w", err)
	}
	notificationItems, err := notifications.ListSortedByCreated(ctx)
	if err != nil {
		return fmt.Errorf("load notifications from cache: %w", err)
	}

	for _, u := range userItems {
		user := u
		store.UpsertUser(UserPatch{
			ID:              user.ID,
			DisplayName:     &user.DisplayName,
			Handle:          &user.Handle,
			AvatarURL:       &user.AvatarURL,
			Online:          &user.Online,
			PresenceVersion: user.PresenceVersion,
		})
	}
	for _, c := range conversationItems {
		conv := c
		store.UpsertConversation(ConversationPatch{
			ID:                conv.ID,
			ParticipantUserID: &conv.ParticipantUserID,
			LastMessage:       &conv.LastMessage,
			UpdatedAt:         conv.UpdatedAt,
		})
		store.SetConversationUnread(conv.ID, conv.UnreadCount)
	}
	for _, n := range notificationItems {
		store.UpsertNotification(n)
	}

	return nil
}
