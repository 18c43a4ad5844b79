package models

import "time"

// Message represents a chat message. SenderUsername is joined from the
// users table on read; it is not a column of the messages table.
type Message struct {
	ID             int        `db:"id" json:"id"`
	ConversationID int        `db:"conversation_id" json:"conversation_id"`
	SenderID       int        `db:"sender_id" json:"sender_id"`
	SenderUsername string     `db:"sender_username" json:"sender_username"`
	Content        string     `db:"content" json:"content"`
	CreatedAt      time.Time  `db:"created_at" json:"timestamp"`
	RepliedToID    *int       `db:"replied_to_id" json:"replied_to_id"`
	IsDeleted      bool       `db:"is_deleted" json:"is_deleted"`
	ReadAt         *time.Time `db:"read_at" json:"read_at"`
}
