// Package service holds the editor application state and its named commands.
//
// Handlers and the CLI talk to the Editor only. It owns the gallery and the
// selection, feeds the batch orchestrator and turns domain errors into
// AppErrors.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/internal/batch"
	"github.com/anime-shed/image-editor-go/internal/command"
	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/internal/gallery"
	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/notify"
	"github.com/anime-shed/image-editor-go/internal/operation"
	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/internal/worker"
	"github.com/anime-shed/image-editor-go/pkg/models"
	"github.com/anime-shed/image-editor-go/pkg/validation"
)

// Image variants served by ImageData
const (
	VariantSource = "source"
	VariantResult = "result"
)

// SuggestionCount is how many example commands accompany an unknown message
const SuggestionCount = 3

// Dependencies are the collaborators of an Editor. Fetcher, History,
// Notifier and Inbox may be nil.
type Dependencies struct {
	Gallery      *gallery.Gallery
	Selection    *gallery.Selection
	Orchestrator *batch.Orchestrator
	Store        storage.BlobStore
	Fetcher      storage.ImageFetcher
	Images       *validation.ImageValidator
	URLs         *validation.URLValidator
	History      repository.JobRepository
	Notifier     notify.Notifier
	Inbox        *notify.Inbox
	// IngestWorkers bounds concurrent blob writes during uploads
	IngestWorkers int
}

// Editor is the application state: gallery, selection and batch jobs
type Editor struct {
	gallery       *gallery.Gallery
	selection     *gallery.Selection
	orchestrator  *batch.Orchestrator
	store         storage.BlobStore
	fetcher       storage.ImageFetcher
	images        *validation.ImageValidator
	urls          *validation.URLValidator
	history       repository.JobRepository
	notifier      notify.Notifier
	inbox         *notify.Inbox
	ingestWorkers int
	log           *logrus.Entry
}

// AddResult reports the outcome of a multi-image upload
type AddResult struct {
	Added   []models.GalleryItem `json:"added"`
	Skipped []string             `json:"skipped,omitempty"`
}

// NewEditor creates an editor over the given dependencies
func NewEditor(deps Dependencies) *Editor {
	images := deps.Images
	if images == nil {
		images = validation.NewImageValidator(0, 0)
	}
	urls := deps.URLs
	if urls == nil {
		urls = validation.NewURLValidator()
	}
	selection := deps.Selection
	if selection == nil {
		selection = gallery.NewSelection()
	}
	return &Editor{
		gallery:       deps.Gallery,
		selection:     selection,
		orchestrator:  deps.Orchestrator,
		store:         deps.Store,
		fetcher:       deps.Fetcher,
		images:        images,
		urls:          urls,
		history:       deps.History,
		notifier:      deps.Notifier,
		inbox:         deps.Inbox,
		ingestWorkers: deps.IngestWorkers,
		log:           logger.Component("editor"),
	}
}

// Gallery returns every gallery item in insertion order
func (e *Editor) Gallery() []models.GalleryItem {
	return e.gallery.List()
}

// Item returns one gallery item
func (e *Editor) Item(id string) (models.GalleryItem, error) {
	item, err := e.gallery.Get(id)
	return item, toAppError(err)
}

// AddImages validates uploads by content and stores the accepted ones as
// pending gallery items. Invalid files are skipped with a reason.
func (e *Editor) AddImages(ctx context.Context, uploads []validation.Upload) (AddResult, error) {
	accepted, skipped := e.images.ValidateUploads(uploads)
	if len(accepted) == 0 {
		err := apperrors.NewValidationError("No valid images to add", nil)
		if len(skipped) > 0 {
			err = err.WithDetails(strings.Join(skipped, "; "))
		}
		return AddResult{Skipped: skipped}, err
	}

	refs := make([]string, len(accepted))
	errs := make([]error, len(accepted))

	pool := worker.NewPool(e.ingestWorkers)
	pool.Start()
	for i := range accepted {
		img := accepted[i]
		pool.Submit(func() {
			refs[i], errs[i] = e.store.Put(ctx, storage.OriginalKey(img.ContentType), img.Data, img.ContentType)
		})
	}
	pool.Wait()
	pool.Close()

	result := AddResult{Skipped: skipped}
	for i, img := range accepted {
		if errs[i] != nil {
			e.log.WithError(errs[i]).WithField("name", img.Name).Error("Failed to store uploaded image")
			result.Skipped = append(result.Skipped, fmt.Sprintf("%s: Failed to store image", img.Name))
			continue
		}
		item := e.gallery.Add(gallery.Source{
			Name:        img.Name,
			ContentType: img.ContentType,
			Size:        int64(len(img.Data)),
			SourceRef:   refs[i],
		})
		result.Added = append(result.Added, item)
	}

	e.log.WithFields(logrus.Fields{
		"added":   len(result.Added),
		"skipped": len(result.Skipped),
	}).Info("Images added to gallery")

	if len(result.Skipped) > 0 {
		e.notify(ctx, notify.SeverityWarning, fmt.Sprintf("%d file(s) skipped: %s",
			len(result.Skipped), strings.Join(result.Skipped, "; ")))
	}
	if len(result.Added) == 0 {
		return result, apperrors.NewInternalError("Failed to store images", errors.Join(errs...))
	}
	return result, nil
}

// AddImageFromURL fetches an image and adds it to the gallery
func (e *Editor) AddImageFromURL(ctx context.Context, imageURL string) (models.GalleryItem, error) {
	if err := e.urls.ValidateImageURL(imageURL); err != nil {
		return models.GalleryItem{}, err
	}
	if e.fetcher == nil {
		return models.GalleryItem{}, apperrors.NewInternalError("URL ingestion is not configured", nil)
	}

	download, err := e.fetcher.FetchImage(ctx, imageURL)
	if err != nil {
		var fetchErr *apperrors.AppError
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			fetchErr = apperrors.NewTimeoutError("Image fetch timeout", err)
		case errors.Is(err, storage.ErrTooLarge):
			fetchErr = apperrors.NewValidationError("Image too large", err)
		default:
			fetchErr = apperrors.NewNetworkError("Failed to fetch image", err)
		}
		e.log.WithError(err).WithField("url", imageURL).Warn("Failed to fetch image")
		return models.GalleryItem{}, fetchErr
	}

	name := nameFromURL(imageURL)
	contentType, err := e.images.ValidateImage(name, download.Data)
	if err != nil {
		return models.GalleryItem{}, err
	}

	ref, err := e.store.Put(ctx, storage.OriginalKey(contentType), download.Data, contentType)
	if err != nil {
		return models.GalleryItem{}, apperrors.NewInternalError("Failed to store image", err)
	}

	item := e.gallery.Add(gallery.Source{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(download.Data)),
		SourceRef:   ref,
	})
	e.log.WithFields(logrus.Fields{
		"item_id": item.ID,
		"url":     imageURL,
	}).Info("Image fetched into gallery")
	return item, nil
}

// RemoveImage deletes an item, releases its blobs and prunes the selection
func (e *Editor) RemoveImage(ctx context.Context, id string) error {
	item, err := e.gallery.Remove(id)
	if err != nil {
		return toAppError(err)
	}
	e.selection.Prune(e.gallery.IDs())

	for _, ref := range blobRefs(item) {
		if err := e.store.Delete(ctx, ref); err != nil {
			e.log.WithError(err).WithFields(logrus.Fields{
				"item_id": id,
				"ref":     ref,
			}).Warn("Failed to release image blob")
		}
	}
	return nil
}

// ImageData returns the bytes and content type of an item's source or result
func (e *Editor) ImageData(ctx context.Context, id, variant string) ([]byte, string, error) {
	item, err := e.gallery.Get(id)
	if err != nil {
		return nil, "", toAppError(err)
	}

	var ref string
	switch variant {
	case "", VariantSource:
		ref = item.SourceRef
	case VariantResult:
		if item.Status == models.StatusError {
			return nil, "", apperrors.NewProcessingError("Image failed to process: "+item.Error, nil)
		}
		if item.ResultRef == "" {
			return nil, "", apperrors.NewNotFoundError("Image has no processed result", nil)
		}
		ref = item.ResultRef
	default:
		return nil, "", apperrors.NewValidationError(fmt.Sprintf("Unknown image variant %q", variant), nil)
	}

	data, err := e.store.Get(ctx, ref)
	if err != nil {
		return nil, "", toAppError(err)
	}
	if ref == item.SourceRef {
		return data, item.ContentType, nil
	}
	return data, mimetype.Detect(data).String(), nil
}

// ToggleSelection selects or deselects a gallery item
func (e *Editor) ToggleSelection(id string) ([]string, error) {
	if _, err := e.gallery.Get(id); err != nil {
		return nil, toAppError(err)
	}
	return e.selection.Toggle(id), nil
}

// ClearSelection empties the selection
func (e *Editor) ClearSelection() {
	e.selection.Clear()
}

// Selection returns the selected ids in selection order
func (e *Editor) Selection() []string {
	return e.selection.IDs()
}

// StartBatch runs an explicitly named operation over the current selection
func (e *Editor) StartBatch(ctx context.Context, kind string, params map[string]any) (models.BatchJob, error) {
	k, err := operation.ParseKind(kind)
	if err != nil {
		return models.BatchJob{}, apperrors.NewValidationError("Unsupported operation", err)
	}
	return e.startOperation(ctx, operation.New(k, params))
}

func (e *Editor) startOperation(ctx context.Context, op models.Operation) (models.BatchJob, error) {
	job, err := e.orchestrator.StartBatch(ctx, e.selection.IDs(), op)
	if err != nil {
		return models.BatchJob{}, toAppError(err)
	}
	return job, nil
}

// CancelBatch stops the running job at the next result boundary
func (e *Editor) CancelBatch() (models.BatchJob, error) {
	job, err := e.orchestrator.Cancel()
	return job, toAppError(err)
}

// ActiveJob returns the running job, if any
func (e *Editor) ActiveJob() (models.BatchJob, bool) {
	return e.orchestrator.Active()
}

// LastJob returns the most recently finished job, if any
func (e *Editor) LastJob() (models.BatchJob, bool) {
	return e.orchestrator.Last()
}

// WaitJob blocks until the job is done
func (e *Editor) WaitJob(ctx context.Context, jobID string) (models.BatchJob, error) {
	job, err := e.orchestrator.Wait(ctx, jobID)
	return job, toAppError(err)
}

// Requeue turns terminal items into fresh pending items. A failed item
// restarts from its source, a completed one from its result so edits can be
// chained. The new items take the old ones' place in the selection; the old
// items are left untouched.
func (e *Editor) Requeue(ctx context.Context, ids []string) ([]models.GalleryItem, error) {
	if len(ids) == 0 {
		return nil, apperrors.NewValidationError("No images to requeue", nil)
	}

	var items []models.GalleryItem
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		item, err := e.gallery.Get(id)
		if err != nil {
			return nil, toAppError(err)
		}
		if !item.Status.IsTerminal() {
			return nil, toAppError(fmt.Errorf("%w: %s is %s", gallery.ErrItemNotTerminal, id, item.Status))
		}
		items = append(items, item)
	}

	requeued := make([]models.GalleryItem, 0, len(items))
	for _, item := range items {
		next, err := e.requeueOne(ctx, item)
		if err != nil {
			return requeued, err
		}
		e.selection.Replace(item.ID, next.ID)
		requeued = append(requeued, next)
	}

	e.log.WithField("items", len(requeued)).Info("Images requeued")
	return requeued, nil
}

func (e *Editor) requeueOne(ctx context.Context, item models.GalleryItem) (models.GalleryItem, error) {
	ref, contentType := item.SourceRef, item.ContentType
	if item.Status == models.StatusCompleted && item.ResultRef != "" {
		ref = item.ResultRef
		contentType = ""
	}

	data, err := e.store.Get(ctx, ref)
	if err != nil {
		return models.GalleryItem{}, toAppError(err)
	}
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}

	copyRef, err := e.store.Put(ctx, storage.CopyKey(ref), data, contentType)
	if err != nil {
		return models.GalleryItem{}, apperrors.NewInternalError("Failed to copy image", err)
	}

	return e.gallery.Add(gallery.Source{
		Name:        item.Name,
		ContentType: contentType,
		Size:        int64(len(data)),
		SourceRef:   copyRef,
	}), nil
}

// HandleChat interprets a chat message. With Apply set, a confident command
// that maps to an executable operation starts a batch over the selection.
func (e *Editor) HandleChat(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	cmd := command.Classify(req.Message)
	op := operation.ToOperation(cmd)

	resp := models.ChatResponse{
		Reply:     command.Respond(cmd),
		Command:   cmd,
		Operation: op,
	}
	if cmd.Intent == models.IntentUnknown {
		resp.Suggestions = command.Suggest(req.Message, SuggestionCount)
	}

	e.log.WithFields(logrus.Fields{
		"intent":     cmd.Intent,
		"confidence": cmd.Confidence,
		"operation":  op.Kind,
	}).Debug("Chat message classified")

	if !req.Apply || cmd.Confidence <= command.MinConfidence || !operation.IsExecutable(op) {
		return resp, nil
	}

	job, err := e.startOperation(ctx, op)
	if err != nil {
		return resp, err
	}
	resp.Job = &job
	return resp, nil
}

// History lists finished jobs, newest first
func (e *Editor) History(ctx context.Context, limit int) ([]models.JobRecord, error) {
	if e.history == nil {
		return []models.JobRecord{}, nil
	}
	records, err := e.history.ListJobs(ctx, limit)
	if err != nil {
		return nil, apperrors.NewInternalError("Failed to list job history", err)
	}
	return records, nil
}

// Job returns one finished job with its per-item outcomes
func (e *Editor) Job(ctx context.Context, id string) (*models.JobRecord, error) {
	if e.history == nil {
		return nil, toAppError(fmt.Errorf("%w: %s", repository.ErrJobNotFound, id))
	}
	rec, err := e.history.GetJob(ctx, id)
	if err != nil {
		return nil, toAppError(err)
	}
	return rec, nil
}

// Notifications returns the stored user notifications, oldest first
func (e *Editor) Notifications() []notify.Notification {
	if e.inbox == nil {
		return []notify.Notification{}
	}
	return e.inbox.List()
}

func (e *Editor) notify(ctx context.Context, severity notify.Severity, message string) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, severity, message)
	}
}

func blobRefs(item models.GalleryItem) []string {
	var refs []string
	seen := make(map[string]bool, 3)
	for _, ref := range []string{item.SourceRef, item.PreviewRef, item.ResultRef} {
		if ref != "" && !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}

func nameFromURL(imageURL string) string {
	u, err := url.Parse(imageURL)
	if err != nil {
		return "image"
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "image"
	}
	return name
}
