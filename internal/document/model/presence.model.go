package model

import "time"

// Participant statuses.
const (
	StatusActive = "active"
	StatusIdle   = "idle"
	StatusTyping = "typing"
	StatusAway   = "away"
)

type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Cursor struct {
	Position  int        `json:"position"`
	Selection *Selection `json:"selection,omitempty"`
}

// Participant is the in-memory presence record of a user in one document
// session. It is never persisted to the document store.
type Participant struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	Cursor       *Cursor   `json:"cursor,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
}
