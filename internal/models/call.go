package models

import "time"

// Call statuses. Transitions only move toward a terminal state.
// CallMissed is reserved: no event currently produces it.
const (
	CallInitiated = "initiated"
	CallAccepted  = "accepted"
	CallRejected  = "rejected"
	CallEnded     = "ended"
	CallMissed    = "missed"
)

// Call is a persisted record of one call attempt between two users.
type Call struct {
	ID        int        `db:"id" json:"id"`
	CallerID  int        `db:"caller_id" json:"caller_id"`
	CalleeID  int        `db:"callee_id" json:"callee_id"`
	Status    string     `db:"status" json:"status"`
	StartedAt time.Time  `db:"started_at" json:"started_at"`
	EndedAt   *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Terminal reports whether the call can transition no further.
func (c Call) Terminal() bool {
	return c.Status == CallRejected || c.Status == CallEnded || c.Status == CallMissed
}

// HasParty reports whether the user is the caller or callee of the record.
func (c Call) HasParty(userID int) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// OtherParty returns the counterparty of the given user.
func (c Call) OtherParty(userID int) int {
	if c.CallerID == userID {
		return c.CalleeID
	}
	return c.CallerID
}
