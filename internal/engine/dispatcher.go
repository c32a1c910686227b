package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"socialgo/internal/domain"
)

// MutationAPI performs the authoritative server call for a mutation.
// Implemented by the api client.
type MutationAPI interface {
	Mutate(ctx context.Context, kind string, targetID string, payload map[string]any) (ServerResult, error)
}

// MutationOutcome is delivered once per requested mutation. A rejected
// mutation carries the error after the optimistic delta has been rolled back;
// the caller may retry.
type MutationOutcome struct {
	Token string
	Err   error
}

// Dispatcher is the rendering layer's mutation entry point: it applies the
// optimistic delta, performs the server call off the caller's goroutine, and
// commits or rolls back based on the result.
type Dispatcher struct {
	manager *MutationManager
	api     MutationAPI
	logger  *slog.Logger
	selfID  string
}

func NewDispatcher(manager *MutationManager, api MutationAPI, selfID string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default().With("component", "engine.dispatcher")
	}

	return &Dispatcher{manager: manager, api: api, logger: logger, selfID: selfID}
}

// Request begins the mutation and resolves it against the server. The result
// channel receives exactly one outcome and is then closed.
func (d *Dispatcher) Request(ctx context.Context, kind MutationKind, targetID string, payload map[string]any) <-chan MutationOutcome {
	outcome := make(chan MutationOutcome, 1)

	token, err := d.beginFor(kind, targetID, payload)
	if err != nil {
		outcome <- MutationOutcome{Err: err}
		close(outcome)

		return outcome
	}

	go func() {
		defer close(outcome)

		result, err := d.api.Mutate(ctx, string(kind), targetID, payload)
		if err != nil {
			if rbErr := d.manager.Rollback(token); rbErr != nil {
				d.logger.Warn("rollback after rejected mutation", "token", token, "error", rbErr)
			}
			outcome <- MutationOutcome{Token: token, Err: fmt.Errorf("mutation rejected: %w", err)}

			return
		}
		if err := d.manager.Commit(token, result); err != nil {
			// Token was force-resolved by a newer mutation on the same field.
			d.logger.Debug("late mutation result ignored", "token", token, "error", err)
		}
		outcome <- MutationOutcome{Token: token}
	}()

	return outcome
}

func (d *Dispatcher) beginFor(kind MutationKind, targetID string, payload map[string]any) (string, error) {
	if strings.TrimSpace(targetID) == "" {
		return "", errors.New("mutation target id is required")
	}

	switch kind {
	case MutationToggleLike:
		return d.manager.BeginToggleLike(targetID, d.selfID), nil
	case MutationAddComment:
		body, _ := payload["body"].(string)
		if strings.TrimSpace(body) == "" {
			return "", errors.New("comment body is required")
		}

		return d.manager.BeginAddComment(targetID, domain.Comment{AuthorID: d.selfID, Body: body}), nil
	case MutationFriendAccept:
		return d.manager.BeginFriendAccept(targetID), nil
	case MutationFriendReject:
		return d.manager.BeginFriendReject(targetID), nil
	case MutationMarkNotificationRead:
		return d.manager.BeginMarkNotificationRead(targetID), nil
	case MutationMarkConversationRead:
		return d.manager.BeginMarkConversationRead(targetID), nil
	default:
		return "", fmt.Errorf("unsupported mutation kind: %s", kind)
	}
}
