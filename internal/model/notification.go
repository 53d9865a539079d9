package model

import "time"

// Notification is a persisted copy of a status line shown to the user
// during a fetch run.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"id" db:"id"`

	// RunID links this notification to the fetch run that emitted it.
	// Empty for notifications outside a run.
	RunID string `json:"run_id" db:"run_id"`

	// Provider identifies the mail backend in use.
	Provider string `json:"provider" db:"provider"`

	// Message is the human-readable notification text.
	Message string `json:"message" db:"message"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
