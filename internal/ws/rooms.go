package ws

import (
	"log"
	"sync"
)

// Rooms maintains per-conversation broadcast groups. A room holds only
// connection back-references; empty rooms are removed and reconstructed
// lazily from persisted participant data when a user connects or joins.
type Rooms struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

// NewRooms creates an empty room table.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]map[string]*Client)}
}

// Join adds a connection to a room. Joining twice is a no-op.
func (r *Rooms) Join(roomID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		room = make(map[string]*Client)
		r.rooms[roomID] = room
	}
	room[c.ID] = c
	c.trackRoom(roomID)
}

// Leave removes a connection from a room.
func (r *Rooms) Leave(roomID string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[roomID]; ok {
		delete(room, c.ID)
		if len(room) == 0 {
			delete(r.rooms, roomID)
		}
	}
	c.untrackRoom(roomID)
}

// DropClient removes the connection from every room it joined.
func (r *Rooms) DropClient(c *Client) {
	for _, roomID := range c.roomSnapshot() {
		r.Leave(roomID, c)
	}
}

// MembersOf returns the connection ids currently in the room.
func (r *Rooms) MembersOf(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// Broadcast delivers one event to a snapshot of the room's membership taken
// at call time; joins and leaves during delivery do not affect the
// recipient set. An empty room is a silent no-op. Delivery to each member
// is independent: a full send queue closes that member only.
func (r *Rooms) Broadcast(roomID string, event string, data any, excludeConnID string) {
	r.mu.RLock()
	members := make([]*Client, 0, len(r.rooms[roomID]))
	for _, c := range r.rooms[roomID] {
		if c.ID != excludeConnID {
			members = append(members, c)
		}
	}
	r.mu.RUnlock()

	if len(members) == 0 {
		return
	}

	payload, err := marshalEvent(event, data)
	if err != nil {
		log.Printf("marshal broadcast event=%s room=%s error: %v", event, roomID, err)
		return
	}
	for _, c := range members {
		if !c.Enqueue(payload) {
			log.Printf("send queue full, closing conn=%s user=%d room=%s", c.ID, c.UserID, roomID)
			c.Close()
		}
	}
}
