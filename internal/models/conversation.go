package models

import "time"

// Conversation is a chat between two or more users. Name is null for
// one-on-one chats.
type Conversation struct {
	ID        int       `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Participant links a user to a conversation and tracks their read cursor.
type Participant struct {
	ID             int        `db:"id" json:"id"`
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	UserID         int        `db:"user_id" json:"user_id"`
	LastReadAt     *time.Time `db:"last_read_at" json:"last_read_at,omitempty"`
}
