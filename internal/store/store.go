// Package store holds the persistence contract for users, conversations,
// participants, and messages, with an in-memory implementation and a
// Postgres implementation behind the same interface.
package store

import (
	"context"
	"errors"

	"convo-server/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrNotParticipant = errors.New("sender is not a participant")
)

type Store interface {
	CreateUser(ctx context.Context, username, email, passwordHash string, now int64) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	GetUserByUsername(ctx context.Context, username string) (model.User, error)

	// TouchAuthSession records a successful login: inserts the row on the
	// first login, updates last_login on every one after.
	TouchAuthSession(ctx context.Context, userID string, now int64) error

	// InsertMessage persists a message and bumps the conversation's
	// updated_at in the same call, keeping updated_at >= the newest
	// message's created_at.
	InsertMessage(ctx context.Context, senderID, conversationID, content string, now int64) (model.Message, error)

	// CreateConversation creates the conversation and its participant rows
	// as one unit; a conversation without participants is never observable.
	// Repeated ids in participantIDs collapse to one participant row, so
	// (conversation, user) stays unique. The display name is the participant
	// usernames joined by ", " when there are more than two participants,
	// empty otherwise.
	CreateConversation(ctx context.Context, participantIDs []string, now int64) (model.Conversation, error)

	// ListConversationsForUser returns the user's conversations ordered by
	// updated_at descending, each with participants and its single most
	// recent message.
	ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error)

	// GetConversation returns the conversation with participants and up to
	// messageLimit most recent messages, newest first.
	GetConversation(ctx context.Context, conversationID string, messageLimit int) (model.Conversation, error)

	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}

// uniqueIDs drops repeated ids, keeping first-occurrence order.
func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
