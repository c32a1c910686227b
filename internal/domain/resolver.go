package domain

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
)

// Origin tags where a raw record came from. Different endpoints use different
// field names for the same concepts; the tag is kept for diagnostics.
type Origin string

const (
	OriginFriends       Origin = "friends"
	OriginConversations Origin = "conversations"
	OriginSearch        Origin = "search"
	OriginGroups        Origin = "groups"
	OriginPush          Origin = "push"
)

// ErrMissingID marks a raw record that carries no usable user id. Such
// records are dropped; inventing a synthetic id could collide with a real one.
var ErrMissingID = errors.New("record has no user id")

var (
	userIDAliases = []string{"id", "user_id", "userId", "uid"}
	nameAliases   = []string{"display_name", "name", "fullname", "full_name"}
	handleAliases = []string{"handle", "username", "login"}
	avatarAliases = []string{"avatar_url", "avatar", "photo", "picture"}
	onlineAliases = []string{"online", "is_online"}
)

// Resolver canonicalizes heterogeneous user records into the store. Whatever
// endpoint a record arrives from, the same person resolves to the same
// UserSummary instance.
type Resolver struct {
	store   *Store
	logger  *slog.Logger
	dropped atomic.Uint64
}

func NewResolver(store *Store, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default().With("component", "resolver")
	}

	return &Resolver{store: store, logger: logger}
}

// Resolve maps known field aliases onto the canonical schema, upserts the
// record, and returns the canonical id. The most recently resolved value wins
// for every field except presence, which goes through the store's version
// rule; a fetch-borne presence value is stamped from the logical clock.
func (r *Resolver) Resolve(raw map[string]any, origin Origin) (string, error) {
	id, ok := stringField(raw, userIDAliases)
	if !ok {
		r.dropped.Add(1)
		r.logger.Warn("dropping record without id", "origin", origin, "fields", len(raw))

		return "", ErrMissingID
	}

	patch := UserPatch{ID: id}
	if v, ok := stringField(raw, nameAliases); ok {
		patch.DisplayName = &v
	}
	if v, ok := stringField(raw, handleAliases); ok {
		patch.Handle = &v
	}
	if v, ok := stringField(raw, avatarAliases); ok {
		patch.AvatarURL = &v
	}
	if v, ok := boolField(raw, onlineAliases); ok {
		patch.Online = &v
		patch.PresenceVersion = r.store.NextPresenceVersion()
	}
	r.store.UpsertUser(patch)

	return id, nil
}

// DroppedRecords reports how many id-less records were discarded.
func (r *Resolver) DroppedRecords() uint64 {
	return r.dropped.Load()
}

func stringField(raw map[string]any, aliases []string) (string, bool) {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			trimmed := strings.TrimSpace(val)
			if trimmed != "" {
				return trimmed, true
			}
		case float64:
			// JSON numbers decode to float64; ids are integral in practice.
			return strconv.FormatInt(int64(val), 10), true
		case int64:
			return strconv.FormatInt(val, 10), true
		case int:
			return strconv.Itoa(val), true
		}
	}

	return "", false
}

func boolField(raw map[string]any, aliases []string) (bool, bool) {
	for _, key := range aliases {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if val, ok := v.(bool); ok {
			return val, true
		}
	}

	return false, false
}
