package models

import "time"

// EventType is the kind of a batch progress event
type EventType string

const (
	EventJobStarted    EventType = "job_started"
	EventItemCompleted EventType = "item_completed"
	EventItemFailed    EventType = "item_failed"
	EventJobDone       EventType = "job_done"
)

// BatchEvent reports batch progress to observers and stream subscribers
type BatchEvent struct {
	Type      EventType     `json:"type"`
	JobID     string        `json:"job_id"`
	Operation OperationKind `json:"operation,omitempty"`
	ItemID    string        `json:"item_id,omitempty"`
	Status    ItemStatus    `json:"status,omitempty"`
	ResultRef string        `json:"result_ref,omitempty"`
	Error     string        `json:"error,omitempty"`
	Resolved  int           `json:"resolved"`
	Total     int           `json:"total"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
