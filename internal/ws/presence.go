package ws

import (
	"context"
	"log"
	"time"

	"relay-service/internal/models"
	"relay-service/internal/repositories"
)

// Presence derives online/offline transitions from registry changes and
// announces them to the rooms the user belongs to. A user with several
// connections stays online until the last one closes.
type Presence struct {
	rooms *Rooms
	users repositories.UserRepository
}

// NewPresence constructs a Presence tracker.
func NewPresence(rooms *Rooms, users repositories.UserRepository) *Presence {
	return &Presence{rooms: rooms, users: users}
}

// HandleOnline broadcasts an online status to every room the connection
// joined. Called only for the user's first live connection.
func (p *Presence) HandleOnline(c *Client) {
	event := models.UserStatusChangeEvent{UserID: c.UserID, Status: "online", LastSeen: nil}
	for _, roomID := range c.roomSnapshot() {
		p.rooms.Broadcast(roomID, models.EventUserStatusChange, event, c.ID)
	}
}

// HandleOffline persists the last-seen timestamp and broadcasts an offline
// status with it. Called only when the user's final connection closes.
func (p *Presence) HandleOffline(ctx context.Context, c *Client) {
	now := time.Now().UTC()
	if err := p.users.UpdateLastSeen(ctx, c.UserID, now); err != nil {
		log.Printf("update last seen user=%d error: %v", c.UserID, err)
	}

	event := models.UserStatusChangeEvent{UserID: c.UserID, Status: "offline", LastSeen: &now}
	for _, roomID := range c.roomSnapshot() {
		p.rooms.Broadcast(roomID, models.EventUserStatusChange, event, c.ID)
	}
}
