package ws

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Client is one live duplex connection for an authenticated user. Outbound
// delivery goes through a buffered send queue drained by writePump, so a
// stalled peer never blocks a room broadcast; a full queue closes the
// connection instead.
type Client struct {
	ID       string
	UserID   int
	Username string
	Info     ConnInfo

	conn   *websocket.Conn
	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newClient(conn *websocket.Conn, info ConnInfo) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       info.ConnID,
		UserID:   info.UserID,
		Username: info.Username,
		Info:     info,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		ctx:      ctx,
		cancel:   cancel,
		rooms:    make(map[string]struct{}),
	}
}

// Context is cancelled when the connection is closed; handlers must stop
// work attributed to this connection once it fires.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Enqueue hands a pre-marshaled frame to the write pump. It never blocks;
// a false return means the queue is full and the caller should close the
// client.
func (c *Client) Enqueue(payload []byte) bool {
	select {
	case <-c.ctx.Done():
		return false
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Send marshals and enqueues a single event for this connection. Slow
// connections are closed rather than allowed to stall the caller.
func (c *Client) Send(event string, data any) {
	payload, err := marshalEvent(event, data)
	if err != nil {
		log.Printf("marshal event=%s conn=%s error: %v", event, c.ID, err)
		return
	}
	if !c.Enqueue(payload) {
		log.Printf("send queue full, closing conn=%s user=%d", c.ID, c.UserID)
		c.Close()
	}
}

// Close tears the connection down exactly once and cancels the client
// context. Safe to call from any goroutine.
func (c *Client) Close() {
	c.once.Do(func() {
		c.cancel()
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump serializes all writes to the websocket connection and keeps it
// alive with pings. It exits when the client context is cancelled or a
// write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("websocket write error conn=%s: %v", c.ID, err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) trackRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = struct{}{}
}

func (c *Client) untrackRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// roomSnapshot returns the rooms this connection currently belongs to.
func (c *Client) roomSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
