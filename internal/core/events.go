package core

import "time"

// EventType names a step in the batch lifecycle.
type EventType string

const (
	EventStarted           EventType = "started"
	EventDocumentCompleted EventType = "documentCompleted"
	EventFinished          EventType = "finished"
	EventCancelled         EventType = "cancelled"
)

// Event is a progress notification emitted by the orchestrator.
//
// DocumentCompleted events arrive in completion order; Index is the
// document's position in the submitted batch.
type Event struct {
	Type      EventType       `json:"type"`
	Phase     Phase           `json:"phase"`
	Index     int             `json:"index"`
	Total     int             `json:"total"`
	Completed int             `json:"completed"`
	Result    *DocumentResult `json:"result,omitempty"`
	Report    *BatchReport    `json:"report,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Percent returns the completed share of the batch (0-100).
func (e Event) Percent() int {
	if e.Total <= 0 {
		return 0
	}
	return (e.Completed * 100) / e.Total
}

// ProgressFunc receives progress events. The orchestrator calls it from a
// single goroutine, so implementations need no locking of their own.
type ProgressFunc func(Event)
