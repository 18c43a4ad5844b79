package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"relay-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for chat messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, conversationID int, senderID int, content string, repliedToID *int) (models.Message, error)
	GetMessage(ctx context.Context, messageID int) (models.Message, error)
	UpdateContent(ctx context.Context, messageID int, content string) error
	MarkDeleted(ctx context.Context, messageID int) error
	MarkRead(ctx context.Context, conversationID int, readerID int, at time.Time) (map[int][]int, error)
	ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `m.id, m.conversation_id, m.sender_id, u.username AS sender_username,
        m.content, m.created_at, m.replied_to_id, m.is_deleted, m.read_at`

// CreateMessage stores a message and returns it with the sender username
// joined in.
func (r *MessageRepo) CreateMessage(ctx context.Context, conversationID int, senderID int, content string, repliedToID *int) (models.Message, error) {
	var id int
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content, replied_to_id) VALUES ($1, $2, $3, $4) RETURNING id`,
		conversationID, senderID, content, repliedToID).Scan(&id)
	if err != nil {
		return models.Message{}, err
	}
	return r.GetMessage(ctx, id)
}

// GetMessage retrieves a single message with its sender username.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg,
		`SELECT `+messageColumns+` FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// UpdateContent replaces the content of a message.
func (r *MessageRepo) UpdateContent(ctx context.Context, messageID int, content string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET content=$2 WHERE id=$1`, messageID, content)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkDeleted flags a message as deleted. The content column is kept; every
// read path substitutes the deletion marker.
func (r *MessageRepo) MarkDeleted(ctx context.Context, messageID int) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_deleted = TRUE WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrMessageNotFound
	}
	return nil
}

// MarkRead stamps a read time on every unread message in the conversation
// sent by someone other than the reader, and returns the affected message
// ids grouped by their original sender.
func (r *MessageRepo) MarkRead(ctx context.Context, conversationID int, readerID int, at time.Time) (map[int][]int, error) {
	rows, err := r.db.QueryxContext(ctx,
		`UPDATE messages SET read_at=$3
         WHERE conversation_id=$1 AND sender_id<>$2 AND read_at IS NULL
         RETURNING id, sender_id`,
		conversationID, readerID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bySender := map[int][]int{}
	for rows.Next() {
		var id, senderID int
		if err := rows.Scan(&id, &senderID); err != nil {
			return nil, err
		}
		bySender[senderID] = append(bySender[senderID], id)
	}
	return bySender, rows.Err()
}

// ListForConversation returns the full ordered message history.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs,
		`SELECT `+messageColumns+` FROM messages m JOIN users u ON u.id = m.sender_id
         WHERE m.conversation_id=$1 ORDER BY m.created_at ASC`, conversationID)
	return msgs, err
}
