package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"convo-server/internal/model"
	"github.com/google/uuid"
)

var _ Store = (*Memory)(nil)

// Memory backs the store with mutex-guarded maps. It serves tests and
// single-process runs without a DATABASE_URL.
type Memory struct {
	mu sync.RWMutex

	usersByID     map[string]model.User
	userIDByEmail map[string]string
	userIDByName  map[string]string
	authSessions  map[string]model.AuthSession // keyed by user id
	conversations map[string]model.Conversation
	participants  map[string][]model.Participant // keyed by conversation id
	messages      map[string][]model.Message     // keyed by conversation id, append order
}

func NewMemory() *Memory {
	return &Memory{
		usersByID:     make(map[string]model.User),
		userIDByEmail: make(map[string]string),
		userIDByName:  make(map[string]string),
		authSessions:  make(map[string]model.AuthSession),
		conversations: make(map[string]model.Conversation),
		participants:  make(map[string][]model.Participant),
		messages:      make(map[string][]model.Message),
	}
}

func (m *Memory) CreateUser(_ context.Context, username, email, passwordHash string, now int64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.userIDByEmail[email]; exists {
		return model.User{}, ErrAlreadyExists
	}
	if _, exists := m.userIDByName[username]; exists {
		return model.User{}, ErrAlreadyExists
	}

	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	m.usersByID[user.ID] = user
	m.userIDByEmail[email] = user.ID
	m.userIDByName[username] = user.ID
	return user, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.userIDByEmail[email]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return m.usersByID[id], nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.userIDByName[username]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return m.usersByID[id], nil
}

func (m *Memory) TouchAuthSession(_ context.Context, userID string, now int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.usersByID[userID]; !ok {
		return ErrNotFound
	}
	sess, ok := m.authSessions[userID]
	if !ok {
		sess = model.AuthSession{ID: uuid.NewString(), UserID: userID}
	}
	sess.LastLogin = now
	m.authSessions[userID] = sess
	return nil
}

func (m *Memory) InsertMessage(_ context.Context, senderID, conversationID, content string, now int64) (model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return model.Message{}, ErrNotFound
	}
	if !m.isParticipantLocked(conversationID, senderID) {
		return model.Message{}, ErrNotParticipant
	}

	msg := model.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.messages[conversationID] = append(m.messages[conversationID], msg)

	conv.UpdatedAt = now
	m.conversations[conversationID] = conv
	return msg, nil
}

func (m *Memory) CreateConversation(_ context.Context, participantIDs []string, now int64) (model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	participantIDs = uniqueIDs(participantIDs)
	usernames := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		user, ok := m.usersByID[id]
		if !ok {
			return model.Conversation{}, ErrNotFound
		}
		usernames = append(usernames, user.Username)
	}

	name := ""
	if len(participantIDs) > 2 {
		name = strings.Join(usernames, ", ")
	}

	conv := model.Conversation{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.conversations[conv.ID] = conv

	for i, id := range participantIDs {
		m.participants[conv.ID] = append(m.participants[conv.ID], model.Participant{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			UserID:         id,
			Username:       usernames[i],
			CreatedAt:      now,
		})
	}

	conv.Participants = append([]model.Participant(nil), m.participants[conv.ID]...)
	return conv, nil
}

func (m *Memory) ListConversationsForUser(_ context.Context, userID string) ([]model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []model.Conversation
	for convID, parts := range m.participants {
		member := false
		for _, p := range parts {
			if p.UserID == userID {
				member = true
				break
			}
		}
		if !member {
			continue
		}

		conv := m.conversations[convID]
		conv.Participants = append([]model.Participant(nil), parts...)
		if msgs := m.messages[convID]; len(msgs) > 0 {
			conv.Messages = []model.Message{msgs[len(msgs)-1]}
		}
		result = append(result, conv)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].UpdatedAt != result[j].UpdatedAt {
			return result[i].UpdatedAt > result[j].UpdatedAt
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (m *Memory) GetConversation(_ context.Context, conversationID string, messageLimit int) (model.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[conversationID]
	if !ok {
		return model.Conversation{}, ErrNotFound
	}
	conv.Participants = append([]model.Participant(nil), m.participants[conversationID]...)

	msgs := m.messages[conversationID]
	if messageLimit > len(msgs) {
		messageLimit = len(msgs)
	}
	// Newest first.
	for i := len(msgs) - 1; i >= len(msgs)-messageLimit; i-- {
		conv.Messages = append(conv.Messages, msgs[i])
	}
	return conv, nil
}

func (m *Memory) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isParticipantLocked(conversationID, userID), nil
}

func (m *Memory) isParticipantLocked(conversationID, userID string) bool {
	for _, p := range m.participants[conversationID] {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
