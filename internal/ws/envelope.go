package ws

import (
	"encoding/json"
	"log"

	"relay-service/internal/observability"
)

// Envelope frames every event on the wire, in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Inbound event names accepted by the dispatcher.
const (
	eventConnect           = "connect"
	eventMessage           = "message"
	eventDeleteMessage     = "delete_message"
	eventEditMessage       = "edit_message"
	eventJoinConversation  = "join_conversation"
	eventLeaveConversation = "leave_conversation"
	eventCallRequest       = "call_request"
	eventCallResponse      = "call_response"
	eventWebRTCSignal      = "webrtc_signal"
	eventHangUp            = "hang_up"
	eventNewConversation   = "new_conversation"
)

func marshalEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// drop records a silently discarded inbound event with enough context to
// reconstruct behavior. Drops are never surfaced to the peer.
func drop(event, connID, reason string) {
	log.Printf("drop event=%s conn=%s reason=%s", event, connID, reason)
	observability.IncDropped(event, reason)
}
