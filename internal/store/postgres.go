package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"convo-server/internal/model"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

var _ Store = (*Postgres)(nil)

// Postgres implements Store on a pgx connection pool. Schema lives in
// schema.sql.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() { p.pool.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (p *Postgres) CreateUser(ctx context.Context, username, email, passwordHash string, now int64) (model.User, error) {
	user := model.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.ID, username, email, passwordHash, now)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrAlreadyExists
		}
		return model.User{}, err
	}
	return user, nil
}

func (p *Postgres) GetUserByEmail(ctx context.Context, email string) (model.User, error) {
	return p.getUser(ctx, `SELECT id, username, email, password, created_at FROM users WHERE email = $1`, email)
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (model.User, error) {
	return p.getUser(ctx, `SELECT id, username, email, password, created_at FROM users WHERE username = $1`, username)
}

func (p *Postgres) getUser(ctx context.Context, query string, arg any) (model.User, error) {
	var u model.User
	err := p.pool.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (p *Postgres) TouchAuthSession(ctx context.Context, userID string, now int64) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO auth_sessions (id, user_id, last_login)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET last_login = EXCLUDED.last_login
	`, uuid.NewString(), userID, now)
	return err
}

func (p *Postgres) InsertMessage(ctx context.Context, senderID, conversationID, content string, now int64) (model.Message, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.Message{}, err
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists)
	if err != nil {
		return model.Message{}, err
	}
	if !exists {
		return model.Message{}, ErrNotFound
	}

	var member bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, senderID).Scan(&member)
	if err != nil {
		return model.Message{}, err
	}
	if !member {
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
	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, conversationID, senderID, content, now, now)
	if err != nil {
		return model.Message{}, err
	}

	_, err = tx.Exec(ctx, `UPDATE conversations SET updated_at = $1 WHERE id = $2`, now, conversationID)
	if err != nil {
		return model.Message{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Message{}, err
	}
	return msg, nil
}

func (p *Postgres) CreateConversation(ctx context.Context, participantIDs []string, now int64) (model.Conversation, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return model.Conversation{}, err
	}
	defer tx.Rollback(ctx)

	participantIDs = uniqueIDs(participantIDs)
	usernameByID := make(map[string]string, len(participantIDs))
	rows, err := tx.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1)`, participantIDs)
	if err != nil {
		return model.Conversation{}, err
	}
	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			rows.Close()
			return model.Conversation{}, err
		}
		usernameByID[id] = username
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.Conversation{}, err
	}

	usernames := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		username, ok := usernameByID[id]
		if !ok {
			return model.Conversation{}, ErrNotFound
		}
		usernames = append(usernames, username)
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
	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (id, name, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, conv.ID, name, now, now)
	if err != nil {
		return model.Conversation{}, err
	}

	for i, id := range participantIDs {
		part := model.Participant{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			UserID:         id,
			Username:       usernames[i],
			CreatedAt:      now,
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (id, conversation_id, user_id, created_at)
			VALUES ($1, $2, $3, $4)
		`, part.ID, conv.ID, id, now)
		if err != nil {
			if isUniqueViolation(err) {
				return model.Conversation{}, ErrAlreadyExists
			}
			return model.Conversation{}, err
		}
		conv.Participants = append(conv.Participants, part)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

func (p *Postgres) ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT c.id, c.name, c.created_at, c.updated_at
		FROM conversations c
		JOIN participants p ON p.conversation_id = c.id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC, c.id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range result {
		parts, err := p.listParticipants(ctx, result[i].ID)
		if err != nil {
			return nil, err
		}
		result[i].Participants = parts

		msgs, err := p.listMessages(ctx, result[i].ID, 1)
		if err != nil {
			return nil, err
		}
		result[i].Messages = msgs
	}
	return result, nil
}

func (p *Postgres) GetConversation(ctx context.Context, conversationID string, messageLimit int) (model.Conversation, error) {
	var conv model.Conversation
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at FROM conversations WHERE id = $1
	`, conversationID).Scan(&conv.ID, &conv.Name, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Conversation{}, ErrNotFound
	}
	if err != nil {
		return model.Conversation{}, err
	}

	conv.Participants, err = p.listParticipants(ctx, conversationID)
	if err != nil {
		return model.Conversation{}, err
	}
	conv.Messages, err = p.listMessages(ctx, conversationID, messageLimit)
	if err != nil {
		return model.Conversation{}, err
	}
	return conv, nil
}

func (p *Postgres) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var member bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, userID).Scan(&member)
	return member, err
}

func (p *Postgres) listParticipants(ctx context.Context, conversationID string) ([]model.Participant, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT p.id, p.conversation_id, p.user_id, u.username, p.created_at
		FROM participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.conversation_id = $1
		ORDER BY p.created_at, p.id
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var parts []model.Participant
	for rows.Next() {
		var part model.Participant
		if err := rows.Scan(&part.ID, &part.ConversationID, &part.UserID, &part.Username, &part.CreatedAt); err != nil {
			return nil, err
		}
		parts = append(parts, part)
	}
	return parts, rows.Err()
}

func (p *Postgres) listMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at, updated_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
