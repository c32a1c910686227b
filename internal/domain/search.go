package domain

import (
	"sort"
	"strings"
)

// SearchResult is one row of the merged search projection. Conversation-backed
// rows carry unread and last-message data; friend-only rows do not.
type SearchResult struct {
	User           UserSummary
	ConversationID string
	UnreadCount    int
	LastMessage    MessageSummary
	FriendStatus   FriendStatus
}

// BuildSearchView scans friend edges and conversations for users whose name or
// handle contains the query (case-insensitive) and merges the two sources,
// deduplicated by user id. A conversation row wins over a friend-only row for
// the same person because it carries richer data. Output order: conversation
// matches by most recent message first, then friend-only matches
// alphabetically. The view is recomputed on every call and owns no state.
func BuildSearchView(query string, store *Store) []SearchResult {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil
	}

	byUser := make(map[string]SearchResult)

	for _, edge := range store.FriendEdgesSnapshot() {
		user, ok := store.User(edge.OtherUserID)
		if !ok || !userMatches(user, needle) {
			continue
		}
		byUser[user.ID] = SearchResult{User: user, FriendStatus: edge.Status}
	}

	for _, conv := range store.ConversationsSnapshot() {
		user, ok := store.User(conv.ParticipantUserID)
		if !ok || !userMatches(user, needle) {
			continue
		}
		result := SearchResult{
			User:           user,
			ConversationID: conv.ID,
			UnreadCount:    conv.UnreadCount,
			LastMessage:    conv.LastMessage,
		}
		if prior, ok := byUser[user.ID]; ok {
			result.FriendStatus = prior.FriendStatus
		}
		byUser[user.ID] = result
	}

	conversations := make([]SearchResult, 0, len(byUser))
	friendsOnly := make([]SearchResult, 0, len(byUser))
	for _, result := range byUser {
		if result.ConversationID != "" {
			conversations = append(conversations, result)
		} else {
			friendsOnly = append(friendsOnly, result)
		}
	}

	sort.Slice(conversations, func(i, j int) bool {
		if conversations[i].LastMessage.At.Equal(conversations[j].LastMessage.At) {
			return conversations[i].User.ID < conversations[j].User.ID
		}

		return conversations[i].LastMessage.At.After(conversations[j].LastMessage.At)
	})
	sort.Slice(friendsOnly, func(i, j int) bool {
		left := displayKey(friendsOnly[i].User)
		right := displayKey(friendsOnly[j].User)
		if left == right {
			return friendsOnly[i].User.ID < friendsOnly[j].User.ID
		}

		return left < right
	})

	return append(conversations, friendsOnly...)
}

func userMatches(u UserSummary, needle string) bool {
	return strings.Contains(strings.ToLower(u.DisplayName), needle) ||
		strings.Contains(strings.ToLower(u.Handle), needle)
}

func displayKey(u UserSummary) string {
	if u.DisplayName != "" {
		return strings.ToLower(u.DisplayName)
	}

	return strings.ToLower(u.Handle)
}
