package types

import "time"

// EventKind classifies notifications emitted to the presentation layer
type EventKind string

const (
	EventProcessCreated     EventKind = "process_created"
	EventProcessRemoved     EventKind = "process_removed"
	EventConnectionCreated  EventKind = "connection_created"
	EventConnectionRejected EventKind = "connection_rejected"
	EventTransferStarted    EventKind = "transfer_started"
	EventTransferCompleted  EventKind = "transfer_completed"
	EventResourceBlocked    EventKind = "resource_blocked"
	EventResourceReleased   EventKind = "resource_released"
	EventBottleneck         EventKind = "bottleneck"
	EventDeadlock           EventKind = "deadlock"
	EventSaturation         EventKind = "saturation"
)

// Severity grades events for the log panel
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event is a structured notification the core pushes outward.
// The core never formats these for display; Details and Context carry
// the raw material the log panel renders from.
type Event struct {
	ID        string                 `json:"id"`
	Kind      EventKind              `json:"kind"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  Severity               `json:"severity"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}
