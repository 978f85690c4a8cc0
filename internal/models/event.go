package models

import "time"

// Event represents a recorded account activity.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`  // e.g., "account.register", "account.login.fail"
	Level     string    `json:"level"` // e.g., "info", "warn", "error"
	Message   string    `json:"message"`
	AccountID *string   `json:"accountId,omitempty"` // Nullable for events not tied to a known account
	CreatedAt time.Time `json:"createdAt"`
}
