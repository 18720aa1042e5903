// Package events publishes and consumes assembly lifecycle events over
// Kafka. Delivery is advisory: the lifecycle engine never fails an
// operation because an event could not be published.
package events

import "time"

// Topic carries every assembly lifecycle event.
const Topic = "assembly_events"

// Event type values set in the event_type message header.
const (
	TypeAssemblyStarted   = "assembly.started"
	TypeAssemblyCompleted = "assembly.completed"
)

// AssemblyStartedEvent is emitted when an entry opens.
type AssemblyStartedEvent struct {
	EntryID       string    `json:"entry_id"`
	WorkerID      string    `json:"worker_id"`
	UnitID        string    `json:"unit_id"`
	StartedAt     time.Time `json:"started_at"`
	ExpectedEndAt time.Time `json:"expected_end_at"`
}

// AssemblyCompletedEvent is emitted when an entry closes, by either path.
type AssemblyCompletedEvent struct {
	EntryID       string    `json:"entry_id"`
	WorkerID      string    `json:"worker_id"`
	UnitID        string    `json:"unit_id"`
	StartedAt     time.Time `json:"started_at"`
	ExpectedEndAt time.Time `json:"expected_end_at"`
	EndedAt       time.Time `json:"ended_at"`
	Cause         string    `json:"cause"`
}
