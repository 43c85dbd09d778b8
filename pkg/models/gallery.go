package models

import "time"

// ItemStatus is the processing state of a gallery item
type ItemStatus string

const (
	StatusPending    ItemStatus = "pending"
	StatusProcessing ItemStatus = "processing"
	StatusCompleted  ItemStatus = "completed"
	StatusError      ItemStatus = "error"
)

// IsTerminal reports whether no further transition is possible
func (s ItemStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// GalleryItem is one user-supplied image tracked through the batch pipeline
type GalleryItem struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	Size        int64      `json:"size"`
	SourceRef   string     `json:"source_ref"`
	PreviewRef  string     `json:"preview_ref"`
	Status      ItemStatus `json:"status"`
	ResultRef   string     `json:"result_ref,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// JobState is the lifecycle state of a batch job
type JobState string

const (
	JobForming JobState = "forming"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
)

// ItemOutcome records how a single item of a job was resolved
type ItemOutcome struct {
	ItemID    string     `json:"item_id"`
	Status    ItemStatus `json:"status"`
	ResultRef string     `json:"result_ref,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// BatchJob is a read-only view of a batch job
type BatchJob struct {
	ID         string        `json:"id"`
	Operation  Operation     `json:"operation"`
	ItemIDs    []string      `json:"item_ids"`
	State      JobState      `json:"state"`
	Resolved   int           `json:"resolved"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Total      int           `json:"total"`
	Percent    float64       `json:"percent"`
	Canceled   bool          `json:"canceled,omitempty"`
	Outcomes   []ItemOutcome `json:"outcomes,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

// JobRecord is the persisted summary of a finished batch job
type JobRecord struct {
	ID         string        `json:"id"`
	Operation  Operation     `json:"operation"`
	Total      int           `json:"total"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Canceled   bool          `json:"canceled"`
	Outcomes   []ItemOutcome `json:"outcomes"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}
