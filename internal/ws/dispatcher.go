package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"relay-service/internal/auth"
	"relay-service/internal/models"
	"relay-service/internal/observability"
	"relay-service/internal/repositories"
)

const lifecycleRoutingKey = "ws_events.relay"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Dispatcher is the single entry point for websocket connections: it
// authenticates them, registers them, joins their rooms, and demultiplexes
// inbound events to the relay and call signaling handlers.
type Dispatcher struct {
	registry *Registry
	rooms    *Rooms
	presence *Presence
	relay    *MessageRelay
	calls    *CallSignaler
	verifier auth.TokenVerifier
	convs    repositories.ConversationRepository
	authWait time.Duration
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(registry *Registry, rooms *Rooms, presence *Presence, relay *MessageRelay, calls *CallSignaler, verifier auth.TokenVerifier, convs repositories.ConversationRepository, authWait time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		presence: presence,
		relay:    relay,
		calls:    calls,
		verifier: verifier,
		convs:    convs,
		authWait: authWait,
	}
}

// Handle upgrades the connection, authenticates it, and starts the event
// loop. A failed authentication closes the transport before any state is
// registered.
func (d *Dispatcher) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("relay-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	token, err := d.resolveCredential(conn, c.Request)
	if err != nil {
		log.Printf("ws auth failed: %v", err)
		observability.IncWSEvent("ws_auth_failed")
		closeWith(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	user, err := d.verifier.Verify(ctx, token)
	if err != nil {
		log.Printf("ws token validation failed: %v", err)
		observability.IncWSEvent("ws_auth_failed")
		closeWith(conn, websocket.ClosePolicyViolation, "authentication failed")
		return
	}

	traceID := span.SpanContext().TraceID().String()
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      user.ID,
		Username:    user.Username,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	client := newClient(conn, info)

	first, err := d.registry.Register(client)
	if err != nil {
		log.Printf("register conn=%s user=%d error: %v", client.ID, user.ID, err)
		closeWith(conn, websocket.CloseInternalServerErr, "registration failed")
		return
	}

	conversationIDs, err := d.convs.IDsForUser(ctx, user.ID)
	if err != nil {
		log.Printf("load conversations conn=%s user=%d error: %v", client.ID, user.ID, err)
		d.registry.Unregister(client.ID)
		closeWith(conn, websocket.CloseInternalServerErr, "setup failed")
		return
	}
	for _, id := range conversationIDs {
		d.rooms.Join(strconv.Itoa(id), client)
	}

	if first {
		d.presence.HandleOnline(client)
	}
	log.Printf("user=%d (%s) connected conn=%s rooms=%d", user.ID, user.Username, client.ID, len(conversationIDs))

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	d.publishLifecycle(ctx, client, "ws_connect", "")

	go client.writePump()
	go d.readLoop(client)
}

// resolveCredential finds the bearer token: handshake query parameter, then
// Authorization header, then a bounded wait for a first connect frame
// carrying it. The frame is the only post-upgrade source; if no credential
// arrives before the deadline the connection is refused.
func (d *Dispatcher) resolveCredential(conn *websocket.Conn, r *http.Request) (string, error) {
	if token := r.URL.Query().Get("token"); token != "" {
		return token, nil
	}
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], nil
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(d.authWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("no credential presented: %w", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event != eventConnect {
		return "", fmt.Errorf("first frame is not a connect event")
	}
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil || payload.Token == "" {
		return "", fmt.Errorf("connect frame carries no token")
	}
	return payload.Token, nil
}

// readLoop consumes inbound frames until the connection dies. Handlers run
// inline, so events from one connection are processed and broadcast in the
// order they were accepted.
func (d *Dispatcher) readLoop(client *Client) {
	defer d.cleanup(client)

	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
				d.publishLifecycle(client.Context(), client, "ws_error", err.Error())
			}
			return
		}
		_ = client.conn.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			drop("unknown", client.ID, "unparseable frame")
			continue
		}
		d.route(client, env)
	}
}

func (d *Dispatcher) route(client *Client, env Envelope) {
	ctx := client.Context()
	if ctx.Err() != nil {
		return
	}
	observability.IncWSEvent(env.Event)

	switch env.Event {
	case eventMessage:
		d.relay.HandleCreate(ctx, client, env.Data)
	case eventEditMessage:
		d.relay.HandleEdit(ctx, client, env.Data)
	case eventDeleteMessage:
		d.relay.HandleDelete(ctx, client, env.Data)
	case eventJoinConversation:
		d.handleJoin(ctx, client, env.Data)
	case eventLeaveConversation:
		d.handleLeave(client, env.Data)
	case eventCallRequest:
		d.calls.HandleCallRequest(ctx, client, env.Data)
	case eventCallResponse:
		d.calls.HandleCallResponse(ctx, client, env.Data)
	case eventWebRTCSignal:
		d.calls.HandleSignal(ctx, client, env.Data)
	case eventHangUp:
		d.calls.HandleHangUp(ctx, client, env.Data)
	case eventNewConversation:
		d.handleNewConversation(client, env.Data)
	case eventConnect:
		drop(eventConnect, client.ID, "already authenticated")
	default:
		drop(env.Event, client.ID, "unroutable event")
	}
}

type conversationPayload struct {
	ConversationID int `json:"conversation_id"`
}

type newConversationPayload struct {
	ConversationID int   `json:"conversation_id"`
	ParticipantIDs []int `json:"participant_ids"`
}

func (d *Dispatcher) handleJoin(ctx context.Context, client *Client, data json.RawMessage) {
	var payload conversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		drop(eventJoinConversation, client.ID, "malformed payload")
		return
	}

	member, err := d.convs.IsParticipant(ctx, payload.ConversationID, client.UserID)
	if err != nil || !member {
		drop(eventJoinConversation, client.ID, "not a participant")
		return
	}
	d.rooms.Join(strconv.Itoa(payload.ConversationID), client)
}

func (d *Dispatcher) handleLeave(client *Client, data json.RawMessage) {
	var payload conversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 {
		drop(eventLeaveConversation, client.ID, "malformed payload")
		return
	}
	d.rooms.Leave(strconv.Itoa(payload.ConversationID), client)
}

// handleNewConversation is pure fan-out: persistence happened elsewhere.
func (d *Dispatcher) handleNewConversation(client *Client, data json.RawMessage) {
	var payload newConversationPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ConversationID == 0 || len(payload.ParticipantIDs) == 0 {
		drop(eventNewConversation, client.ID, "malformed payload")
		return
	}

	event := models.ConversationCreatedEvent{ConversationID: payload.ConversationID}
	for _, pid := range payload.ParticipantIDs {
		d.registry.SendToUser(pid, models.EventConversationCreated, event)
	}
}

// cleanup runs exactly once per connection, after its read loop exits:
// presence first, then room and registry removal.
func (d *Dispatcher) cleanup(client *Client) {
	_, last, known := d.registry.Unregister(client.ID)
	if !known {
		log.Printf("unknown client disconnected conn=%s", client.ID)
		client.Close()
		return
	}

	if last {
		// Connection context is gone; presence still needs to persist.
		offCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		d.presence.HandleOffline(offCtx, client)
		cancel()
	}
	d.rooms.DropClient(client)
	client.Close()

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	d.publishLifecycle(context.Background(), client, "ws_disconnect", "")
	log.Printf("user=%d disconnected conn=%s", client.UserID, client.ID)
}

func (d *Dispatcher) publishLifecycle(ctx context.Context, client *Client, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     client.Info.ConnID,
			"duration_ms": time.Since(client.Info.ConnectedAt).Milliseconds(),
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   client.Info.UserID,
			"device_id": client.Info.DeviceID,
			"ip":        client.Info.IP,
		},
	}
	headers := observability.BuildHeaders(client.Info.RequestID, client.Info.TraceID)
	_ = observability.PublishEvent(ctx, lifecycleRoutingKey, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, headers)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
	_ = conn.Close()
}
