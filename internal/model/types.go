package model

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	CreatedAt    int64  `json:"created_at"`
}

// AuthSession tracks when a user last authenticated. It is created lazily on
// the first successful login and updated on each one after that; the bearer
// token itself is stateless and never stored here.
type AuthSession struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	LastLogin int64  `json:"last_login"`
}

type Conversation struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	CreatedAt    int64         `json:"created_at"`
	UpdatedAt    int64         `json:"updated_at"`
	Participants []Participant `json:"participants,omitempty"`
	Messages     []Message     `json:"messages,omitempty"`
}

type Participant struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	UserID         string `json:"user_id"`
	Username       string `json:"username"`
	CreatedAt      int64  `json:"created_at"`
}

type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	SenderID       string `json:"sender_id"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
}
