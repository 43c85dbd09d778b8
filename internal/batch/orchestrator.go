// Package batch runs one batch job at a time over a snapshot of the selection.
//
// Every item of a job moves pending -> processing -> completed|error. The
// processing flip happens for all items at once when the job starts. Items
// resolve independently, so one failure never affects another item.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/internal/backend"
	"github.com/anime-shed/image-editor-go/internal/gallery"
	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/notify"
	"github.com/anime-shed/image-editor-go/internal/observer"
	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Failure reasons for items the backend never reported
const (
	ReasonCanceled = "batch canceled"
	ReasonNoResult = "backend returned no result"
)

const (
	historyTimeout = 5 * time.Second
	cleanupTimeout = 5 * time.Second
)

// History persists finished jobs
type History interface {
	SaveJob(ctx context.Context, rec models.JobRecord) error
}

// Options holds the optional collaborators of an Orchestrator.
// Observers subscribed to Events must not call back into the orchestrator.
type Options struct {
	Events   observer.Subject
	Notifier notify.Notifier
	History  History

	// Results is where backends store processed images. Results that are
	// discarded are deleted from it.
	Results storage.BlobStore
}

// Orchestrator owns the single active batch job
type Orchestrator struct {
	mu sync.Mutex
	// emitMu is taken before mu is released so events leave in the order
	// their state changes were applied.
	emitMu sync.Mutex

	gallery   *gallery.Gallery
	processor backend.Processor
	events    observer.Subject
	notifier  notify.Notifier
	history   History
	results   storage.BlobStore

	active *job
	last   *job
	now    func() time.Time
	log    *logrus.Entry
}

// NewOrchestrator creates an orchestrator. Nil collaborators in opts are skipped.
func NewOrchestrator(g *gallery.Gallery, processor backend.Processor, opts Options) *Orchestrator {
	return &Orchestrator{
		gallery:   g,
		processor: processor,
		events:    opts.Events,
		notifier:  opts.Notifier,
		history:   opts.History,
		results:   opts.Results,
		now:       time.Now,
		log:       logger.Component("batch"),
	}
}

// StartBatch snapshots the selection and operation into a new job, moves
// every selected item to processing and dispatches the job in the
// background. Nothing is mutated when an error is returned.
func (o *Orchestrator) StartBatch(ctx context.Context, selection []string, op models.Operation) (models.BatchJob, error) {
	o.mu.Lock()

	if len(selection) == 0 {
		o.mu.Unlock()
		return models.BatchJob{}, ErrEmptySelection
	}
	if o.active != nil {
		o.mu.Unlock()
		return models.BatchJob{}, ErrJobAlreadyRunning
	}

	itemIDs := dedupe(selection)
	if err := o.gallery.StartProcessing(itemIDs); err != nil {
		o.mu.Unlock()
		return models.BatchJob{}, err
	}

	j := newJob(uuid.NewString(), op.Clone(), itemIDs, o.now().UTC())
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j.cancel = cancel
	j.state = models.JobRunning
	o.active = j
	snap := j.snapshot()

	o.emitMu.Lock()
	o.mu.Unlock()
	o.publish(runCtx, models.BatchEvent{
		Type:      models.EventJobStarted,
		JobID:     j.id,
		Operation: op.Kind,
		Total:     len(itemIDs),
		Timestamp: snap.StartedAt,
	})
	o.emitMu.Unlock()

	o.log.WithFields(logrus.Fields{
		"job_id":    j.id,
		"operation": op.Kind,
		"items":     len(itemIDs),
	}).Info("Batch job dispatched")

	go o.run(runCtx, j)
	return snap, nil
}

func (o *Orchestrator) run(ctx context.Context, j *job) {
	defer j.cancel()

	req := backend.Request{JobID: j.id, Operation: j.operation.Clone()}
	for _, itemID := range j.itemIDs {
		item, err := o.gallery.Get(itemID)
		if err != nil {
			// Processing items cannot be removed, so this only happens if the
			// gallery was replaced underneath us.
			o.log.WithError(err).WithField("item_id", itemID).Error("Batch item vanished")
			continue
		}
		req.Items = append(req.Items, backend.Item{ID: item.ID, SourceRef: item.SourceRef})
	}

	results, err := o.processor.Process(ctx, req)
	if err != nil {
		o.log.WithError(err).WithField("job_id", j.id).Error("Batch dispatch failed")
		o.failRemaining(ctx, j, fmt.Sprintf("dispatch failed: %v", err))
		o.finish(ctx, j)
		return
	}

	o.consume(ctx, j, results)

	reason := ReasonNoResult
	o.mu.Lock()
	if j.canceled {
		reason = ReasonCanceled
	}
	o.mu.Unlock()

	o.failRemaining(ctx, j, reason)
	o.finish(ctx, j)
}

// consume resolves results until the processor closes the channel or the job
// is canceled. A cancel still keeps every result already delivered; later
// ones are drained in the background and discarded so the processor never
// blocks on the channel.
func (o *Orchestrator) consume(ctx context.Context, j *job, results <-chan backend.ItemResult) {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return
			}
			o.accept(j, r)
		case <-ctx.Done():
			if closed := o.acceptBuffered(j, results); !closed {
				go func() {
					for r := range results {
						o.discard(j, r)
					}
				}()
			}
			return
		}
	}
}

// acceptBuffered resolves whatever is already waiting on the channel without
// blocking. It reports whether the channel was closed.
func (o *Orchestrator) acceptBuffered(j *job, results <-chan backend.ItemResult) bool {
	for {
		select {
		case r, ok := <-results:
			if !ok {
				return true
			}
			o.accept(j, r)
		default:
			return false
		}
	}
}

func (o *Orchestrator) accept(j *job, r backend.ItemResult) {
	if err := o.ResolveItem(j.id, r); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{
			"job_id":  j.id,
			"item_id": r.ItemID,
		}).Warn("Ignoring batch result")
		o.discard(j, r)
	}
}

// discard deletes the stored image of a result no item will reference.
// A repeated result for a completed item can share its key, so refs held by
// an outcome are kept.
func (o *Orchestrator) discard(j *job, r backend.ItemResult) {
	if o.results == nil || r.ResultRef == "" {
		return
	}
	o.mu.Lock()
	held := j.outcomes[r.ItemID].ResultRef == r.ResultRef
	o.mu.Unlock()
	if held {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := o.results.Delete(ctx, r.ResultRef); err != nil {
		o.log.WithError(err).WithFields(logrus.Fields{
			"job_id":     j.id,
			"item_id":    r.ItemID,
			"result_ref": r.ResultRef,
		}).Warn("Failed to delete discarded result")
	}
}

func (o *Orchestrator) failRemaining(ctx context.Context, j *job, reason string) {
	o.mu.Lock()
	remaining := j.unresolved()
	o.mu.Unlock()

	for _, itemID := range remaining {
		if err := o.ResolveItem(j.id, backend.ItemResult{ItemID: itemID, Err: errors.New(reason)}); err != nil {
			o.log.WithError(err).WithField("item_id", itemID).Warn("Could not fail batch item")
		}
	}
}

// ResolveItem applies one backend result to the running job. Results for
// unknown items or items that already have an outcome are rejected.
func (o *Orchestrator) ResolveItem(jobID string, r backend.ItemResult) error {
	o.mu.Lock()

	j := o.active
	if j == nil || j.id != jobID {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoActiveJob, jobID)
	}
	if !j.has(r.ItemID) {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownItem, r.ItemID)
	}
	if _, done := j.outcomes[r.ItemID]; done {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateResult, r.ItemID)
	}

	outcome := models.ItemOutcome{ItemID: r.ItemID, Status: models.StatusCompleted, ResultRef: r.ResultRef}
	if r.Err != nil {
		outcome = models.ItemOutcome{ItemID: r.ItemID, Status: models.StatusError, Error: r.Err.Error()}
	}

	if _, err := o.gallery.Resolve(r.ItemID, outcome.Status, outcome.ResultRef, outcome.Error); err != nil {
		o.mu.Unlock()
		return err
	}
	j.record(outcome)

	eventType := models.EventItemCompleted
	if outcome.Status == models.StatusError {
		eventType = models.EventItemFailed
	}
	event := models.BatchEvent{
		Type:      eventType,
		JobID:     j.id,
		Operation: j.operation.Kind,
		ItemID:    outcome.ItemID,
		Status:    outcome.Status,
		ResultRef: outcome.ResultRef,
		Error:     outcome.Error,
		Resolved:  j.resolved(),
		Total:     len(j.itemIDs),
		Timestamp: o.now().UTC(),
	}

	o.emitMu.Lock()
	o.mu.Unlock()
	o.publish(context.Background(), event)
	o.emitMu.Unlock()
	return nil
}

func (o *Orchestrator) finish(ctx context.Context, j *job) {
	o.mu.Lock()
	finishedAt := o.now().UTC()
	j.finishedAt = &finishedAt
	j.state = models.JobDone
	if o.active == j {
		o.active = nil
	}
	o.last = j
	snap := j.snapshot()
	rec := j.jobRecord()

	o.emitMu.Lock()
	o.mu.Unlock()
	o.publish(ctx, models.BatchEvent{
		Type:      models.EventJobDone,
		JobID:     j.id,
		Operation: j.operation.Kind,
		Resolved:  snap.Resolved,
		Total:     snap.Total,
		Elapsed:   finishedAt.Sub(j.startedAt),
		Timestamp: finishedAt,
	})
	o.emitMu.Unlock()

	if o.notifier != nil {
		severity, message := Summary(snap)
		o.notifier.Notify(ctx, severity, message)
	}

	if o.history != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), historyTimeout)
		if err := o.history.SaveJob(saveCtx, rec); err != nil {
			o.log.WithError(err).WithField("job_id", j.id).Error("Failed to save batch job")
		}
		cancel()
	}

	o.log.WithFields(logrus.Fields{
		"job_id":    j.id,
		"completed": snap.Completed,
		"failed":    snap.Failed,
		"canceled":  snap.Canceled,
	}).Info("Batch job done")

	close(j.done)
}

func (o *Orchestrator) publish(ctx context.Context, event models.BatchEvent) {
	if o.events != nil {
		o.events.NotifyObservers(ctx, event)
	}
}

// Cancel asks the running job to stop. Items still unresolved at the next
// result boundary become errors.
func (o *Orchestrator) Cancel() (models.BatchJob, error) {
	o.mu.Lock()
	j := o.active
	if j == nil {
		o.mu.Unlock()
		return models.BatchJob{}, ErrNoActiveJob
	}
	j.canceled = true
	snap := j.snapshot()
	o.mu.Unlock()

	j.cancel()
	o.log.WithField("job_id", j.id).Info("Batch job cancel requested")
	return snap, nil
}

// Active returns the running job, if any
func (o *Orchestrator) Active() (models.BatchJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return models.BatchJob{}, false
	}
	return o.active.snapshot(), true
}

// Last returns the most recently finished job, if any
func (o *Orchestrator) Last() (models.BatchJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return models.BatchJob{}, false
	}
	return o.last.snapshot(), true
}

// Wait blocks until the job with the given id is done and returns its final state
func (o *Orchestrator) Wait(ctx context.Context, jobID string) (models.BatchJob, error) {
	o.mu.Lock()
	var j *job
	switch {
	case o.active != nil && o.active.id == jobID:
		j = o.active
	case o.last != nil && o.last.id == jobID:
		j = o.last
	}
	o.mu.Unlock()

	if j == nil {
		return models.BatchJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return models.BatchJob{}, ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return j.snapshot(), nil
}

// Summary renders the notification sent when a job finishes
func Summary(job models.BatchJob) (notify.Severity, string) {
	noun := "images"
	if job.Total == 1 {
		noun = "image"
	}

	switch {
	case job.Canceled:
		return notify.SeverityWarning, fmt.Sprintf("Batch %s canceled: %d of %d %s processed, %d failed.",
			job.Operation.Kind, job.Completed, job.Total, noun, job.Failed)
	case job.Failed == 0:
		return notify.SeveritySuccess, fmt.Sprintf("Batch %s complete: %d %s processed successfully.",
			job.Operation.Kind, job.Completed, noun)
	case job.Completed == 0:
		return notify.SeverityError, fmt.Sprintf("Batch %s failed: none of %d %s could be processed.",
			job.Operation.Kind, job.Total, noun)
	default:
		return notify.SeverityWarning, fmt.Sprintf("Batch %s finished: %d of %d %s processed, %d failed.",
			job.Operation.Kind, job.Completed, job.Total, noun, job.Failed)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
