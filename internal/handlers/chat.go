package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"relay-service/internal/models"
	"relay-service/internal/observability"
	"relay-service/internal/repositories"
	"relay-service/internal/ws"
)

// ChatHandler serves the REST side of the relay: conversation creation,
// message history, and read receipts.
type ChatHandler struct {
	convRepo    repositories.ConversationRepository
	messageRepo repositories.MessageRepository
	registry    *ws.Registry
	relay       *ws.MessageRelay
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(convRepo repositories.ConversationRepository, messageRepo repositories.MessageRepository, registry *ws.Registry, relay *ws.MessageRelay) *ChatHandler {
	return &ChatHandler{
		convRepo:    convRepo,
		messageRepo: messageRepo,
		registry:    registry,
		relay:       relay,
	}
}

// CreateConversation persists a conversation and notifies every participant
// with a live connection.
func (h *ChatHandler) CreateConversation(c *gin.Context) {
	var req struct {
		Name           *string `json:"name"`
		ParticipantIDs []int   `json:"participant_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	participants := req.ParticipantIDs
	if !containsID(participants, userID) {
		participants = append(participants, userID)
	}

	conv, err := h.convRepo.CreateConversation(c.Request.Context(), req.Name, participants)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create conversation"})
		return
	}

	event := models.ConversationCreatedEvent{ConversationID: conv.ID}
	for _, pid := range participants {
		h.registry.SendToUser(pid, models.EventConversationCreated, event)
	}

	h.publishAudit(c, "conversation_created", map[string]interface{}{
		"conversation_id": conv.ID,
		"participants":    len(participants),
	})

	c.JSON(http.StatusCreated, conv)
}

// GetMessages returns the ordered history of a conversation the caller
// belongs to, with deleted content masked and reply previews attached.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.convRepo.IsParticipant(c.Request.Context(), conversationID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}

	msgs, err := h.messageRepo.ListForConversation(c.Request.Context(), conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	byID := make(map[int]models.Message, len(msgs))
	for _, m := range msgs {
		byID[m.ID] = m
	}

	resp := make([]models.MessageEvent, 0, len(msgs))
	for _, m := range msgs {
		event := models.NewMessageEvent(m)
		if m.RepliedToID != nil {
			if replied, ok := byID[*m.RepliedToID]; ok {
				event.AttachReply(replied)
			}
		}
		resp = append(resp, event)
	}

	c.JSON(http.StatusOK, gin.H{"messages": resp})
}

// MarkConversationRead stamps the caller's unread messages in the
// conversation and pushes receipts to the affected senders.
func (h *ChatHandler) MarkConversationRead(c *gin.Context) {
	conversationID, err := strconv.Atoi(c.Param("conversation_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid conversation id"})
		return
	}

	userID := c.GetInt("userID")
	count, err := h.relay.MarkRead(c.Request.Context(), userID, conversationID)
	if err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark messages read"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"marked_read": count})
}

func (h *ChatHandler) publishAudit(c *gin.Context, eventName string, payload map[string]interface{}) {
	requestID := requestIDFromContext(c)
	headers := observability.BuildHeaders(requestID, "")
	_ = observability.PublishEvent(c.Request.Context(), "chat_events.relay", observability.EventEnvelope{
		EventType: "chat_events",
		EventName: eventName,
		Payload:   payload,
	}, headers)
}

func containsID(ids []int, id int) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
