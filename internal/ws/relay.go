package ws

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"strings"
	"time"

	"relay-service/internal/models"
	"relay-service/internal/repositories"
)

// MessageRelay validates, persists and fans out chat message events.
// Every failure mode is a logged drop: the peer is never told why (or
// whether) its event was discarded.
type MessageRelay struct {
	registry *Registry
	rooms    *Rooms
	messages repositories.MessageRepository
	users    repositories.UserRepository
	convs    repositories.ConversationRepository
}

// NewMessageRelay constructs a MessageRelay.
func NewMessageRelay(registry *Registry, rooms *Rooms, messages repositories.MessageRepository, users repositories.UserRepository, convs repositories.ConversationRepository) *MessageRelay {
	return &MessageRelay{registry: registry, rooms: rooms, messages: messages, users: users, convs: convs}
}

type messagePayload struct {
	ConversationID int    `json:"conversation_id"`
	SenderID       int    `json:"sender_id"`
	Content        string `json:"content"`
	RepliedToID    *int   `json:"replied_to_id"`
}

type editPayload struct {
	MessageID int    `json:"message_id"`
	Content   string `json:"content"`
}

type deletePayload struct {
	MessageID int `json:"message_id"`
}

// HandleCreate persists a new message and broadcasts it to the
// conversation's room, including the reply preview when applicable.
func (m *MessageRelay) HandleCreate(ctx context.Context, c *Client, data json.RawMessage) {
	var payload messagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventMessage, c.ID, "malformed payload")
		return
	}
	if payload.ConversationID == 0 || payload.SenderID == 0 {
		drop(eventMessage, c.ID, "missing required fields")
		return
	}
	if payload.SenderID != c.UserID {
		drop(eventMessage, c.ID, "sender mismatch")
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		drop(eventMessage, c.ID, "empty content")
		return
	}

	msg, err := m.messages.CreateMessage(ctx, payload.ConversationID, c.UserID, content, payload.RepliedToID)
	if err != nil {
		log.Printf("persist message conn=%s conversation=%d error: %v", c.ID, payload.ConversationID, err)
		return
	}

	event := models.NewMessageEvent(msg)
	if msg.RepliedToID != nil {
		if replied, err := m.messages.GetMessage(ctx, *msg.RepliedToID); err == nil {
			event.AttachReply(replied)
		}
	}

	m.rooms.Broadcast(strconv.Itoa(msg.ConversationID), models.EventMessage, event, "")
}

// HandleEdit updates message content for the original sender and broadcasts
// the new content. Edits of deleted messages and no-op edits are dropped.
func (m *MessageRelay) HandleEdit(ctx context.Context, c *Client, data json.RawMessage) {
	var payload editPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventEditMessage, c.ID, "malformed payload")
		return
	}
	if payload.MessageID == 0 {
		drop(eventEditMessage, c.ID, "missing message_id")
		return
	}
	content := strings.TrimSpace(payload.Content)
	if content == "" {
		drop(eventEditMessage, c.ID, "empty content")
		return
	}

	msg, err := m.messages.GetMessage(ctx, payload.MessageID)
	if err != nil {
		drop(eventEditMessage, c.ID, "message not found")
		return
	}
	if msg.SenderID != c.UserID {
		drop(eventEditMessage, c.ID, "not the sender")
		return
	}
	if msg.IsDeleted {
		drop(eventEditMessage, c.ID, "message deleted")
		return
	}
	if msg.Content == content {
		// Unchanged content: no write, no broadcast.
		return
	}

	if err := m.messages.UpdateContent(ctx, payload.MessageID, content); err != nil {
		log.Printf("edit message=%d conn=%s error: %v", payload.MessageID, c.ID, err)
		return
	}

	m.rooms.Broadcast(strconv.Itoa(msg.ConversationID), models.EventMessageEdited, models.MessageEditedEvent{
		MessageID:      msg.ID,
		Content:        content,
		ConversationID: msg.ConversationID,
	}, "")
}

// HandleDelete marks a message deleted for the original sender and
// broadcasts a deletion marker. Deleting twice is a silent no-op.
func (m *MessageRelay) HandleDelete(ctx context.Context, c *Client, data json.RawMessage) {
	var payload deletePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventDeleteMessage, c.ID, "malformed payload")
		return
	}
	if payload.MessageID == 0 {
		drop(eventDeleteMessage, c.ID, "missing message_id")
		return
	}

	msg, err := m.messages.GetMessage(ctx, payload.MessageID)
	if err != nil {
		drop(eventDeleteMessage, c.ID, "message not found")
		return
	}
	if msg.SenderID != c.UserID {
		drop(eventDeleteMessage, c.ID, "not the sender")
		return
	}
	if msg.IsDeleted {
		// Already deleted, nothing to broadcast.
		return
	}

	if err := m.messages.MarkDeleted(ctx, payload.MessageID); err != nil {
		log.Printf("delete message=%d conn=%s error: %v", payload.MessageID, c.ID, err)
		return
	}

	m.rooms.Broadcast(strconv.Itoa(msg.ConversationID), models.EventMessageDeleted, models.MessageDeletedEvent{
		MessageID:      msg.ID,
		ConversationID: msg.ConversationID,
	}, "")
}

// MarkRead advances the reader's cursor, stamps a read time on every unread
// message from other senders, and emits a read receipt to each affected
// sender's live connections only. It returns the number of messages
// stamped. Invoking it again with nothing unread emits nothing.
func (m *MessageRelay) MarkRead(ctx context.Context, readerID int, conversationID int) (int, error) {
	now := time.Now().UTC()
	if err := m.convs.SetLastRead(ctx, conversationID, readerID, now); err != nil {
		return 0, err
	}

	bySender, err := m.messages.MarkRead(ctx, conversationID, readerID, now)
	if err != nil {
		return 0, err
	}

	total := 0
	for senderID, messageIDs := range bySender {
		total += len(messageIDs)
		m.registry.SendToUser(senderID, models.EventMessagesRead, models.MessagesReadEvent{
			ConversationID: conversationID,
			MessageIDs:     messageIDs,
		})
	}
	return total, nil
}
