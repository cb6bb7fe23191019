// Package db is the SQLite backend of the session transcript store.
package db

import "time"

// Session status values.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Session represents a recording session.
type Session struct {
	ID        string
	StartedAt time.Time
	EndedAt   *time.Time
	Status    string
	CreatedAt time.Time
}

// Transcript is the stored rolling transcript of a session.
type Transcript struct {
	SessionID string
	Text      string
	UpdatedAt time.Time
}
