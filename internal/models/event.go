package models

import "time"

// Event represents a loggable action or alert in the system.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`  // e.g., "backup.create", "backup.restore"
	Level      string    `json:"level"` // e.g., "info", "warn", "error"
	Message    string    `json:"message"`
	ResourceID *string   `json:"resourceId,omitempty"` // Snapshot or job id, nil for system-wide events
	CreatedAt  time.Time `json:"createdAt"`
}
