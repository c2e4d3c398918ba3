package events

import (
	"time"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventEmployeeCreated        EventType = "employee_created"
	EventEmployeeUpdated        EventType = "employee_updated"
	EventEmployeeManagerChanged EventType = "employee_manager_changed"
	EventEmployeeDeleted        EventType = "employee_deleted"
)

// Event represents a hierarchy change emitted by the directory service.
type Event struct {
	ID         string      `json:"id"`
	Type       EventType   `json:"type"`
	EmployeeID string      `json:"employee_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Payload    interface{} `json:"payload"`
}

// EmployeeCreatedPayload payload.
type EmployeeCreatedPayload struct {
	FullName  string  `json:"full_name"`
	Position  string  `json:"position"`
	ManagerID *string `json:"manager_id,omitempty"`
}

// EmployeeUpdatedPayload lists the attribute names that changed.
type EmployeeUpdatedPayload struct {
	Fields []string `json:"fields"`
}

// EmployeeManagerChangedPayload payload.
type EmployeeManagerChangedPayload struct {
	OldManagerID *string `json:"old_manager_id,omitempty"`
	NewManagerID *string `json:"new_manager_id,omitempty"`
}

// EmployeeDeletedPayload payload. DetachedIDs are the former direct reports
// that became top-level.
type EmployeeDeletedPayload struct {
	ManagerID   *string  `json:"manager_id,omitempty"`
	DetachedIDs []string `json:"detached_ids"`
}
