package models

import "time"

// SessionEvent is one recorded state transition of a checkout session.
type SessionEvent struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	Event         string    `json:"event"`
	FromState     string    `json:"from_state"`
	ToState       string    `json:"to_state"`
	DownloadToken string    `json:"-"`
	Reference     string    `json:"reference,omitempty"`
	Currency      Currency  `json:"currency,omitempty"`
	Amount        int64     `json:"amount,omitempty"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
