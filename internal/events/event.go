// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"time"

	"trialops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Record Ingestion Events
// =============================================================================

// RecordsIngested is published when the external ingestion subsystem reports
// new or updated domain records for one (trial, domain, source) batch.
type RecordsIngested struct {
	BaseEvent
	TrialID   string   `json:"trialId"`
	Domain    string   `json:"domain"`
	Source    string   `json:"source"`
	RecordIDs []string `json:"recordIds,omitempty"`
}

func (e RecordsIngested) EventName() string { return "records.ingested" }

// =============================================================================
// Detection Events
// =============================================================================

// TaskCreated is published when the materializer raises a new signal and
// its linked task.
type TaskCreated struct {
	BaseEvent
	TaskID          uuid.UUID `json:"taskId"`
	SignalID        uuid.UUID `json:"signalId"`
	TrialID         string    `json:"trialId"`
	Domain          string    `json:"domain"`
	Source          string    `json:"source"`
	RecordID        string    `json:"recordId"`
	DiscrepancyType string    `json:"discrepancyType"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Priority        string    `json:"priority"`
	AssignedRole    string    `json:"assignedRole"`
	AlsoNotify      []string  `json:"alsoNotify,omitempty"`
	DueDate         time.Time `json:"dueDate"`
}

func (e TaskCreated) EventName() string { return "detection.task.created" }

// TaskAutoResolved is published when a signal resolves because the
// underlying discrepancy disappeared. Completed reports whether the linked
// task was auto-completed or left in a human-owned state.
type TaskAutoResolved struct {
	BaseEvent
	TaskID          uuid.UUID `json:"taskId"`
	SignalID        uuid.UUID `json:"signalId"`
	TrialID         string    `json:"trialId"`
	Domain          string    `json:"domain"`
	Source          string    `json:"source"`
	RecordID        string    `json:"recordId"`
	DiscrepancyType string    `json:"discrepancyType"`
	Title           string    `json:"title"`
	Priority        string    `json:"priority"`
	AssignedRole    string    `json:"assignedRole"`
	AlsoNotify      []string  `json:"alsoNotify,omitempty"`
	Completed       bool      `json:"completed"`
}

func (e TaskAutoResolved) EventName() string { return "detection.task.auto_resolved" }

// =============================================================================
// Notification Events
// =============================================================================

// NotificationOutboxDue is published when an outbox row is due for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }
