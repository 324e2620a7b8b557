package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/isdelr/records-be/internal/models"
	"github.com/rs/zerolog/log"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, resourceID *string) error
	GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error)
}

// EventService provides business logic for event management.
type EventService struct {
	db DBProvider
}

// NewEventService creates a new EventService.
func NewEventService(db DBProvider) *EventService {
	return &EventService{db: db}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, resourceID *string) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}

	event := models.Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Level:      level,
		Message:    message,
		ResourceID: resourceID,
	}

	_, err = db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, resource_id) VALUES (?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, event.ResourceID)
	return err
}

// GetRecentEvents retrieves the most recent events from the database.
func (s *EventService) GetRecentEvents(ctx context.Context, limit int) ([]models.Event, error) {
	db, err := s.db.DB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT id, type, level, message, resource_id, created_at FROM events ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.Event, 0)
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &event.ResourceID, &event.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// recordEvent writes an event and only logs when that fails; the activity
// log must never fail the operation it describes.
func recordEvent(ctx context.Context, events EventServiceProvider, eventType, level, message string, resourceID *string) {
	if events == nil {
		return
	}
	if err := events.CreateEvent(context.WithoutCancel(ctx), eventType, level, message, resourceID); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("Failed to record event")
	}
}
