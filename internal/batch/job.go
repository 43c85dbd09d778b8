package batch

import (
	"context"
	"time"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// job is the orchestrator's mutable record of a batch. The item id list and
// operation are fixed at creation. Everything else is guarded by the
// orchestrator mutex.
type job struct {
	id        string
	operation models.Operation
	itemIDs   []string
	members   map[string]struct{}

	state     models.JobState
	outcomes  map[string]models.ItemOutcome
	completed int
	failed    int
	canceled  bool

	startedAt  time.Time
	finishedAt *time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(id string, op models.Operation, itemIDs []string, startedAt time.Time) *job {
	members := make(map[string]struct{}, len(itemIDs))
	for _, itemID := range itemIDs {
		members[itemID] = struct{}{}
	}
	return &job{
		id:        id,
		operation: op,
		itemIDs:   itemIDs,
		members:   members,
		state:     models.JobForming,
		outcomes:  make(map[string]models.ItemOutcome, len(itemIDs)),
		startedAt: startedAt,
		done:      make(chan struct{}),
	}
}

func (j *job) has(itemID string) bool {
	_, ok := j.members[itemID]
	return ok
}

func (j *job) resolved() int {
	return len(j.outcomes)
}

func (j *job) record(outcome models.ItemOutcome) {
	j.outcomes[outcome.ItemID] = outcome
	if outcome.Status == models.StatusCompleted {
		j.completed++
	} else {
		j.failed++
	}
}

// unresolved returns the item ids without an outcome, in job order
func (j *job) unresolved() []string {
	var ids []string
	for _, itemID := range j.itemIDs {
		if _, ok := j.outcomes[itemID]; !ok {
			ids = append(ids, itemID)
		}
	}
	return ids
}

func (j *job) orderedOutcomes() []models.ItemOutcome {
	out := make([]models.ItemOutcome, 0, len(j.outcomes))
	for _, itemID := range j.itemIDs {
		if o, ok := j.outcomes[itemID]; ok {
			out = append(out, o)
		}
	}
	return out
}

func (j *job) snapshot() models.BatchJob {
	total := len(j.itemIDs)
	percent := 100.0
	if total > 0 {
		percent = float64(j.resolved()) / float64(total) * 100
	}

	var finishedAt *time.Time
	if j.finishedAt != nil {
		t := *j.finishedAt
		finishedAt = &t
	}

	return models.BatchJob{
		ID:         j.id,
		Operation:  j.operation.Clone(),
		ItemIDs:    append([]string(nil), j.itemIDs...),
		State:      j.state,
		Resolved:   j.resolved(),
		Completed:  j.completed,
		Failed:     j.failed,
		Total:      total,
		Percent:    percent,
		Canceled:   j.canceled,
		Outcomes:   j.orderedOutcomes(),
		StartedAt:  j.startedAt,
		FinishedAt: finishedAt,
	}
}

func (j *job) jobRecord() models.JobRecord {
	rec := models.JobRecord{
		ID:        j.id,
		Operation: j.operation.Clone(),
		Total:     len(j.itemIDs),
		Completed: j.completed,
		Failed:    j.failed,
		Canceled:  j.canceled,
		Outcomes:  j.orderedOutcomes(),
		StartedAt: j.startedAt,
	}
	if j.finishedAt != nil {
		rec.FinishedAt = *j.finishedAt
	}
	return rec
}
