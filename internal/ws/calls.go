package ws

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"relay-service/internal/models"
	"relay-service/internal/observability"
	"relay-service/internal/repositories"
)

// CallSignaler manages the call lifecycle between two peers and relays
// opaque WebRTC signaling payloads. Exactly one authoritative outcome is
// recorded per call: transitions are guarded both here and in the store.
type CallSignaler struct {
	registry *Registry
	calls    repositories.CallRepository
	users    repositories.UserRepository
}

// NewCallSignaler constructs a CallSignaler.
func NewCallSignaler(registry *Registry, calls repositories.CallRepository, users repositories.UserRepository) *CallSignaler {
	return &CallSignaler{registry: registry, calls: calls, users: users}
}

type callRequestPayload struct {
	CalleeID int `json:"callee_id"`
}

type callResponsePayload struct {
	CallerID int    `json:"caller_id"`
	CallID   int    `json:"call_id"`
	Response string `json:"response"`
}

type webrtcSignalPayload struct {
	TargetID int             `json:"target_id"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data"`
}

type hangUpPayload struct {
	TargetID int `json:"target_id"`
	CallID   int `json:"call_id"`
}

// HandleCallRequest creates a call record and rings the callee. A callee
// with no live connection yields call_unavailable and no record at all.
func (s *CallSignaler) HandleCallRequest(ctx context.Context, c *Client, data json.RawMessage) {
	var payload callRequestPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventCallRequest, c.ID, "malformed payload")
		return
	}
	if payload.CalleeID == 0 {
		drop(eventCallRequest, c.ID, "missing callee_id")
		return
	}

	callees := s.registry.ConnectionsOf(payload.CalleeID)
	if len(callees) == 0 {
		log.Printf("callee=%d not online for call request from user=%d", payload.CalleeID, c.UserID)
		c.Send(models.EventCallUnavailable, models.CallUnavailableEvent{CalleeID: payload.CalleeID})
		return
	}

	if _, err := s.users.GetUser(ctx, payload.CalleeID); err != nil {
		log.Printf("call request conn=%s callee=%d lookup error: %v", c.ID, payload.CalleeID, err)
		c.Send(models.EventCallError, models.CallErrorEvent{Message: "Failed to initiate call"})
		return
	}

	call, err := s.calls.CreateCall(ctx, c.UserID, payload.CalleeID)
	if err != nil {
		log.Printf("create call conn=%s callee=%d error: %v", c.ID, payload.CalleeID, err)
		c.Send(models.EventCallError, models.CallErrorEvent{Message: "Failed to initiate call"})
		return
	}
	observability.IncCallTransition(models.CallInitiated)

	event := models.IncomingCallEvent{CallerID: c.UserID, CallerUsername: c.Username, CallID: call.ID}
	for _, callee := range callees {
		callee.Send(models.EventIncomingCall, event)
	}
}

// HandleCallResponse applies the callee's accept/reject decision to an
// initiated call and relays it to the caller. Responses for records the
// requester is not the callee of, or records no longer initiated, are
// dropped silently.
func (s *CallSignaler) HandleCallResponse(ctx context.Context, c *Client, data json.RawMessage) {
	var payload callResponsePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventCallResponse, c.ID, "malformed payload")
		return
	}
	if payload.CallerID == 0 || payload.CallID == 0 {
		drop(eventCallResponse, c.ID, "missing required fields")
		return
	}
	if payload.Response != models.CallAccepted && payload.Response != models.CallRejected {
		drop(eventCallResponse, c.ID, "invalid response")
		return
	}

	callerConns := s.registry.ConnectionsOf(payload.CallerID)
	if len(callerConns) == 0 {
		// Caller went offline; the record stays initiated.
		drop(eventCallResponse, c.ID, "caller offline")
		return
	}

	call, err := s.calls.GetCall(ctx, payload.CallID)
	if err != nil {
		drop(eventCallResponse, c.ID, "call not found")
		return
	}
	if call.CalleeID != c.UserID || call.CallerID != payload.CallerID {
		drop(eventCallResponse, c.ID, "not a party to call")
		return
	}
	if call.Status != models.CallInitiated {
		drop(eventCallResponse, c.ID, "call not initiated")
		return
	}

	var endedAt *time.Time
	if payload.Response == models.CallRejected {
		now := time.Now().UTC()
		endedAt = &now
	}
	if err := s.calls.UpdateStatus(ctx, call.ID, payload.Response, endedAt, models.CallInitiated); err != nil {
		drop(eventCallResponse, c.ID, "transition conflict")
		return
	}
	observability.IncCallTransition(payload.Response)

	event := models.CallResponseEvent{CalleeID: c.UserID, Response: payload.Response, CallID: call.ID}
	for _, caller := range callerConns {
		caller.Send(models.EventCallResponse, event)
	}
}

// HandleSignal relays an opaque negotiation payload to the target's live
// connections. Nothing is persisted; an unreachable target drops the event.
func (s *CallSignaler) HandleSignal(ctx context.Context, c *Client, data json.RawMessage) {
	var payload webrtcSignalPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventWebRTCSignal, c.ID, "malformed payload")
		return
	}
	if payload.TargetID == 0 || payload.Type == "" || payload.Data == nil {
		drop(eventWebRTCSignal, c.ID, "missing required fields")
		return
	}

	targets := s.registry.ConnectionsOf(payload.TargetID)
	if len(targets) == 0 {
		drop(eventWebRTCSignal, c.ID, "target offline")
		return
	}

	event := models.WebRTCSignalEvent{SenderID: c.UserID, Type: payload.Type, Data: payload.Data}
	for _, target := range targets {
		target.Send(models.EventWebRTCSignal, event)
	}
}

// HandleHangUp terminates a non-terminal call the requester is a party to
// and notifies the counterparty if reachable. Hang-ups on terminal or
// foreign records are dropped silently.
func (s *CallSignaler) HandleHangUp(ctx context.Context, c *Client, data json.RawMessage) {
	var payload hangUpPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		drop(eventHangUp, c.ID, "malformed payload")
		return
	}
	if payload.TargetID == 0 || payload.CallID == 0 {
		drop(eventHangUp, c.ID, "missing required fields")
		return
	}

	call, err := s.calls.GetCall(ctx, payload.CallID)
	if err != nil {
		drop(eventHangUp, c.ID, "call not found")
		return
	}
	if !call.HasParty(c.UserID) {
		drop(eventHangUp, c.ID, "not a party to call")
		return
	}
	if call.Terminal() {
		drop(eventHangUp, c.ID, "call already terminal")
		return
	}

	now := time.Now().UTC()
	if err := s.calls.UpdateStatus(ctx, call.ID, models.CallEnded, &now, models.CallInitiated, models.CallAccepted); err != nil {
		drop(eventHangUp, c.ID, "transition conflict")
		return
	}
	observability.IncCallTransition(models.CallEnded)
	log.Printf("call=%d ended by user=%d", call.ID, c.UserID)

	s.registry.SendToUser(call.OtherParty(c.UserID), models.EventCallEnded, models.CallEndedEvent{
		CallID:  call.ID,
		EndedBy: c.UserID,
	})
}
