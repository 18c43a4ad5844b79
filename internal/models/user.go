package models

import "time"

// User is a chat participant. Identities are owned by the persistence
// store; the relay only reads them and stamps last_seen.
type User struct {
	ID             int        `db:"id" json:"id"`
	Username       string     `db:"username" json:"username"`
	HashedPassword string     `db:"hashed_password" json:"-"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	IsAdmin        bool       `db:"is_admin" json:"is_admin"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	LastSeen       *time.Time `db:"last_seen" json:"last_seen,omitempty"`
}
