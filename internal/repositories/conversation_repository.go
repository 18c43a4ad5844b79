package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"relay-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation and participant persistence.
type ConversationRepository interface {
	CreateConversation(ctx context.Context, name *string, participantIDs []int) (models.Conversation, error)
	IDsForUser(ctx context.Context, userID int) ([]int, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	SetLastRead(ctx context.Context, conversationID int, userID int, at time.Time) error
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// CreateConversation inserts a conversation and its participant rows.
func (r *ConversationRepo) CreateConversation(ctx context.Context, name *string, participantIDs []int) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer tx.Rollback()

	var conv models.Conversation
	if err := tx.QueryRowxContext(ctx, `INSERT INTO conversations (name) VALUES ($1) RETURNING id, name, created_at`, name).
		StructScan(&conv); err != nil {
		return models.Conversation{}, err
	}

	for _, pid := range participantIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
            ON CONFLICT (conversation_id, user_id) DO NOTHING`, conv.ID, pid); err != nil {
			return models.Conversation{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// IDsForUser returns the ids of every conversation the user participates in.
func (r *ConversationRepo) IDsForUser(ctx context.Context, userID int) ([]int, error) {
	var ids []int
	err := r.db.SelectContext(ctx, &ids, `SELECT conversation_id FROM conversation_participants WHERE user_id=$1`, userID)
	return ids, err
}

// IsParticipant checks whether the user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM conversation_participants WHERE conversation_id=$1 AND user_id=$2)`,
		conversationID, userID)
	return exists, err
}

// SetLastRead advances the user's read cursor for the conversation.
func (r *ConversationRepo) SetLastRead(ctx context.Context, conversationID int, userID int, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conversation_participants SET last_read_at=$3 WHERE conversation_id=$1 AND user_id=$2`,
		conversationID, userID, at)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrConversationNotFound
	}
	return nil
}
