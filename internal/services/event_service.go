package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/skycast-be/internal/database"
	"github.com/isdelr/skycast-be/internal/models"
)

// Account activity event types.
const (
	EventRegister          = "account.register"
	EventLogin             = "account.login"
	EventLoginFail         = "account.login.fail"
	EventResetRequest      = "account.password.reset_request"
	EventReset             = "account.password.reset"
	EventResetDirect       = "account.password.reset_direct"
	EventPreferencesUpdate = "account.preferences.update"
)

// EventServiceProvider defines the interface for event services.
type EventServiceProvider interface {
	CreateEvent(ctx context.Context, eventType, level, message string, accountID *string) error
	GetRecentEvents(ctx context.Context, accountID string, limit int) ([]models.Event, error)
}

// EventService records account activity.
type EventService struct {
	db  *sql.DB
	now func() time.Time
}

// NewEventService creates a new EventService.
func NewEventService(db *sql.DB) *EventService {
	return &EventService{db: db, now: time.Now}
}

// CreateEvent logs a new event to the database.
func (s *EventService) CreateEvent(ctx context.Context, eventType, level, message string, accountID *string) error {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Level:     level,
		Message:   message,
		AccountID: accountID,
		CreatedAt: s.now(),
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO events (id, type, level, message, account_id, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		event.ID, event.Type, event.Level, event.Message, nullableString(event.AccountID), database.ToMillis(event.CreatedAt),
	)
	return err
}

// GetRecentEvents retrieves the most recent events for an account.
func (s *EventService) GetRecentEvents(ctx context.Context, accountID string, limit int) ([]models.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, type, level, message, account_id, created_at FROM events WHERE account_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?",
		accountID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []models.Event{}
	for rows.Next() {
		var (
			event     models.Event
			account   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&event.ID, &event.Type, &event.Level, &event.Message, &account, &createdAt); err != nil {
			return nil, err
		}
		if account.Valid {
			event.AccountID = &account.String
		}
		event.CreatedAt = database.FromMillis(createdAt)
		events = append(events, event)
	}
	return events, rows.Err()
}
