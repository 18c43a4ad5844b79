package models

import (
	"encoding/json"
	"time"
)

// DeletedMarker replaces the content of deleted messages in every payload
// sent to clients. The original content stays in the store but must never
// leave it.
const DeletedMarker = "[Message deleted]"

// Outbound event names emitted over websocket connections.
const (
	EventMessage             = "message"
	EventMessageEdited       = "message_edited"
	EventMessageDeleted      = "message_deleted"
	EventMessagesRead        = "messages_read"
	EventUserStatusChange    = "user_status_change"
	EventIncomingCall        = "incoming_call"
	EventCallUnavailable     = "call_unavailable"
	EventCallResponse        = "call_response"
	EventCallError           = "call_error"
	EventCallEnded           = "call_ended"
	EventWebRTCSignal        = "webrtc_signal"
	EventConversationCreated = "conversation_created"
)

// MessageEvent is the payload broadcast for new messages and returned as
// message history. Reply fields are set only when the message replies to
// another one.
type MessageEvent struct {
	ID                int        `json:"id"`
	ConversationID    int        `json:"conversation_id"`
	SenderID          int        `json:"sender_id"`
	SenderUsername    string     `json:"sender_username"`
	Content           string     `json:"content"`
	Timestamp         time.Time  `json:"timestamp"`
	RepliedToID       *int       `json:"replied_to_id"`
	RepliedToContent  *string    `json:"replied_to_content,omitempty"`
	RepliedToSender   *int       `json:"replied_to_sender,omitempty"`
	RepliedToUsername *string    `json:"replied_to_username,omitempty"`
	IsDeleted         bool       `json:"is_deleted"`
	ReadAt            *time.Time `json:"read_at"`
}

// NewMessageEvent builds the client-facing view of a message, substituting
// the deletion marker for deleted content.
func NewMessageEvent(m Message) MessageEvent {
	content := m.Content
	if m.IsDeleted {
		content = DeletedMarker
	}
	return MessageEvent{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		SenderUsername: m.SenderUsername,
		Content:        content,
		Timestamp:      m.CreatedAt,
		RepliedToID:    m.RepliedToID,
		IsDeleted:      m.IsDeleted,
		ReadAt:         m.ReadAt,
	}
}

// AttachReply fills the reply-preview fields from the replied-to message.
func (e *MessageEvent) AttachReply(replied Message) {
	content := replied.Content
	if replied.IsDeleted {
		content = DeletedMarker
	}
	sender := replied.SenderID
	username := replied.SenderUsername
	e.RepliedToContent = &content
	e.RepliedToSender = &sender
	e.RepliedToUsername = &username
}

// MessageEditedEvent notifies a room of updated message content.
type MessageEditedEvent struct {
	MessageID      int    `json:"message_id"`
	Content        string `json:"content"`
	ConversationID int    `json:"conversation_id"`
}

// MessageDeletedEvent notifies a room that a message was deleted.
type MessageDeletedEvent struct {
	MessageID      int `json:"message_id"`
	ConversationID int `json:"conversation_id"`
}

// MessagesReadEvent goes to the live connections of a single sender whose
// messages were just read. It is never broadcast to a room.
type MessagesReadEvent struct {
	ConversationID int   `json:"conversation_id"`
	MessageIDs     []int `json:"message_ids"`
}

// UserStatusChangeEvent announces presence transitions. LastSeen is null
// while the user is online.
type UserStatusChangeEvent struct {
	UserID   int        `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen"`
}

// IncomingCallEvent is delivered to every live connection of the callee.
type IncomingCallEvent struct {
	CallerID       int    `json:"caller_id"`
	CallerUsername string `json:"caller_username"`
	CallID         int    `json:"call_id"`
}

// CallUnavailableEvent tells the caller the callee has no live connection.
type CallUnavailableEvent struct {
	CalleeID int `json:"callee_id"`
}

// CallResponseEvent relays the callee's accept/reject decision to the caller.
type CallResponseEvent struct {
	CalleeID int    `json:"callee_id"`
	Response string `json:"response"`
	CallID   int    `json:"call_id"`
}

// CallErrorEvent reports a failed call initiation to the caller.
type CallErrorEvent struct {
	Message string `json:"message"`
}

// CallEndedEvent notifies the counterparty of a hang-up.
type CallEndedEvent struct {
	CallID  int `json:"call_id"`
	EndedBy int `json:"ended_by"`
}

// WebRTCSignalEvent is an opaque signaling payload relayed between call
// parties. The relay never inspects Data.
type WebRTCSignalEvent struct {
	SenderID int             `json:"sender_id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

// ConversationCreatedEvent tells a participant a conversation now exists.
type ConversationCreatedEvent struct {
	ConversationID int `json:"conversation_id"`
}
