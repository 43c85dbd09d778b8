package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anime-shed/image-editor-go/internal/backend"
	"github.com/anime-shed/image-editor-go/internal/batch"
	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/internal/gallery"
	"github.com/anime-shed/image-editor-go/internal/notify"
	"github.com/anime-shed/image-editor-go/internal/observer"
	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/pkg/models"
	"github.com/anime-shed/image-editor-go/pkg/validation"
)

func pngBytes(t *testing.T, size int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

// fakeBackend stores a processed copy for every item except those listed in fail
type fakeBackend struct {
	store storage.BlobStore

	mu   sync.Mutex
	fail map[string]bool
}

func (b *fakeBackend) failItem(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail[id] = true
}

func (b *fakeBackend) Process(ctx context.Context, req backend.Request) (<-chan backend.ItemResult, error) {
	out := make(chan backend.ItemResult, len(req.Items))
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, item := range req.Items {
		if b.fail[item.ID] {
			out <- backend.ItemResult{ItemID: item.ID, Err: errors.New("backend rejected image")}
			continue
		}
		data, err := b.store.Get(ctx, item.SourceRef)
		if err == nil {
			var ref string
			ref, err = b.store.Put(ctx, storage.ProcessedKey(req.JobID, item.ID, "image/png"), data, "image/png")
			if err == nil {
				out <- backend.ItemResult{ItemID: item.ID, ResultRef: ref}
				continue
			}
		}
		out <- backend.ItemResult{ItemID: item.ID, Err: err}
	}
	close(out)
	return out, nil
}

type editorFixture struct {
	editor  *Editor
	store   *storage.LocalStore
	backend *fakeBackend
	inbox   *notify.Inbox
	history *repository.SQLiteJobRepository
}

func newEditorFixture(t *testing.T) *editorFixture {
	t.Helper()

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("local store: %v", err)
	}
	history, err := repository.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { history.Close() })

	inbox := notify.NewInbox(0)
	fb := &fakeBackend{store: store, fail: make(map[string]bool)}
	g := gallery.New()
	orch := batch.NewOrchestrator(g, fb, batch.Options{
		Events:   observer.NewEventPublisher(),
		Notifier: inbox,
		History:  history,
	})

	editor := NewEditor(Dependencies{
		Gallery:       g,
		Orchestrator:  orch,
		Store:         store,
		Fetcher:       storage.NewHTTPImageFetcher(1<<20, storage.RetryPolicy{Attempts: 1, Backoff: time.Millisecond}),
		History:       history,
		Notifier:      inbox,
		Inbox:         inbox,
		IngestWorkers: 2,
	})
	return &editorFixture{editor: editor, store: store, backend: fb, inbox: inbox, history: history}
}

func (f *editorFixture) addImages(t *testing.T, names ...string) []models.GalleryItem {
	t.Helper()
	uploads := make([]validation.Upload, 0, len(names))
	for _, name := range names {
		uploads = append(uploads, validation.Upload{Name: name, Data: pngBytes(t, 4)})
	}
	res, err := f.editor.AddImages(context.Background(), uploads)
	if err != nil {
		t.Fatalf("AddImages: %v", err)
	}
	return res.Added
}

func (f *editorFixture) runBatch(t *testing.T, kind string) models.BatchJob {
	t.Helper()
	job, err := f.editor.StartBatch(context.Background(), kind, nil)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	done, err := f.editor.WaitJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("WaitJob: %v", err)
	}
	return done
}

func TestAddImages_SkipsInvalidFiles(t *testing.T) {
	f := newEditorFixture(t)

	res, err := f.editor.AddImages(context.Background(), []validation.Upload{
		{Name: "a.png", Data: pngBytes(t, 2)},
		{Name: "notes.txt", Data: []byte("just some text")},
		{Name: "b.png", Data: pngBytes(t, 3)},
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Added) != 2 || res.Added[0].Name != "a.png" || res.Added[1].Name != "b.png" {
		t.Fatalf("Expected a.png and b.png in upload order, got %+v", res.Added)
	}
	for _, item := range res.Added {
		if item.Status != models.StatusPending || item.ContentType != "image/png" {
			t.Errorf("Unexpected item %+v", item)
		}
		if _, err := f.store.Get(context.Background(), item.SourceRef); err != nil {
			t.Errorf("Expected stored source for %s: %v", item.Name, err)
		}
	}
	if len(res.Skipped) != 1 || res.Skipped[0] != "notes.txt: Invalid file type" {
		t.Errorf("Unexpected skipped %v", res.Skipped)
	}

	notes := f.editor.Notifications()
	if len(notes) != 1 || notes[0].Severity != notify.SeverityWarning {
		t.Errorf("Expected one warning notification, got %+v", notes)
	}
}

func TestAddImages_NothingValid(t *testing.T) {
	f := newEditorFixture(t)

	_, err := f.editor.AddImages(context.Background(), []validation.Upload{{Name: "x.txt", Data: []byte("x")}})
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && !strings.Contains(appErr.Details, "x.txt") {
		t.Errorf("Expected details to name the file, got %q", appErr.Details)
	}
	if len(f.editor.Gallery()) != 0 {
		t.Error("Expected empty gallery")
	}
}

func TestAddImageFromURL(t *testing.T) {
	data := pngBytes(t, 5)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(data)
	}))
	defer server.Close()

	f := newEditorFixture(t)

	item, err := f.editor.AddImageFromURL(context.Background(), server.URL+"/photos/cat.png")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if item.Name != "cat.png" || item.Size != int64(len(data)) || item.ContentType != "image/png" {
		t.Errorf("Unexpected item %+v", item)
	}

	_, err = f.editor.AddImageFromURL(context.Background(), server.URL+"/missing.png")
	if !apperrors.IsType(err, apperrors.ErrorTypeNetwork) {
		t.Errorf("Expected network error, got %v", err)
	}

	_, err = f.editor.AddImageFromURL(context.Background(), "ftp://example.com/cat.png")
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestSelectionFollowsGallery(t *testing.T) {
	f := newEditorFixture(t)
	items := f.addImages(t, "a.png", "b.png")

	if _, err := f.editor.ToggleSelection("nope"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found for unknown id, got %v", err)
	}

	f.editor.ToggleSelection(items[0].ID)
	f.editor.ToggleSelection(items[1].ID)

	if err := f.editor.RemoveImage(context.Background(), items[0].ID); err != nil {
		t.Fatalf("RemoveImage: %v", err)
	}
	if sel := f.editor.Selection(); len(sel) != 1 || sel[0] != items[1].ID {
		t.Errorf("Expected selection pruned to %s, got %v", items[1].ID, sel)
	}
	if _, err := f.store.Get(context.Background(), items[0].SourceRef); !errors.Is(err, storage.ErrBlobNotFound) {
		t.Errorf("Expected source blob released, got %v", err)
	}

	f.editor.ClearSelection()
	if len(f.editor.Selection()) != 0 {
		t.Error("Expected empty selection")
	}
}

func TestStartBatch_Errors(t *testing.T) {
	f := newEditorFixture(t)
	f.addImages(t, "a.png")

	_, err := f.editor.StartBatch(context.Background(), "remove_bg", nil)
	if !errors.Is(err, batch.ErrEmptySelection) || !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected empty selection validation error, got %v", err)
	}

	_, err = f.editor.StartBatch(context.Background(), "sepia", nil)
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected unsupported operation error, got %v", err)
	}
}

func TestBatchFlow_PartialFailure(t *testing.T) {
	f := newEditorFixture(t)
	items := f.addImages(t, "a.png", "b.png")
	f.backend.failItem(items[1].ID)
	for _, item := range items {
		f.editor.ToggleSelection(item.ID)
	}

	job := f.runBatch(t, "remove_bg")
	if job.State != models.JobDone || job.Completed != 1 || job.Failed != 1 {
		t.Fatalf("Unexpected job %+v", job)
	}

	ok, _ := f.editor.Item(items[0].ID)
	failed, _ := f.editor.Item(items[1].ID)
	if ok.Status != models.StatusCompleted || failed.Status != models.StatusError {
		t.Errorf("Unexpected statuses %s, %s", ok.Status, failed.Status)
	}
	if failed.Error != "backend rejected image" {
		t.Errorf("Unexpected failure reason %q", failed.Error)
	}

	data, contentType, err := f.editor.ImageData(context.Background(), ok.ID, VariantResult)
	if err != nil || len(data) == 0 || contentType != "image/png" {
		t.Errorf("Expected processed png, got %d bytes %q %v", len(data), contentType, err)
	}
	_, _, err = f.editor.ImageData(context.Background(), failed.ID, VariantResult)
	if !apperrors.IsType(err, apperrors.ErrorTypeProcessing) || !strings.Contains(err.Error(), "backend rejected image") {
		t.Errorf("Expected processing error for failed item, got %v", err)
	}

	records, err := f.editor.History(context.Background(), 10)
	if err != nil || len(records) != 1 || records[0].ID != job.ID {
		t.Fatalf("Expected finished job in history, got %+v %v", records, err)
	}
	rec, err := f.editor.Job(context.Background(), job.ID)
	if err != nil || len(rec.Outcomes) != 2 {
		t.Errorf("Expected outcomes for job, got %+v %v", rec, err)
	}
	if _, err := f.editor.Job(context.Background(), "missing"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	last, ok2 := f.editor.LastJob()
	if !ok2 || last.ID != job.ID {
		t.Errorf("Expected last job %s", job.ID)
	}
	if _, active := f.editor.ActiveJob(); active {
		t.Error("Expected no active job")
	}

	notes := f.editor.Notifications()
	if len(notes) == 0 || !strings.Contains(notes[len(notes)-1].Message, "1 of 2 images processed, 1 failed") {
		t.Errorf("Expected summary notification, got %+v", notes)
	}
}

func TestRequeue(t *testing.T) {
	f := newEditorFixture(t)
	items := f.addImages(t, "a.png", "b.png")
	f.backend.failItem(items[1].ID)
	f.editor.ToggleSelection(items[0].ID)
	f.editor.ToggleSelection(items[1].ID)
	f.runBatch(t, "enhance")

	requeued, err := f.editor.Requeue(context.Background(), []string{items[0].ID, items[1].ID, items[0].ID})
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if len(requeued) != 2 {
		t.Fatalf("Expected two requeued items, got %d", len(requeued))
	}
	for _, item := range requeued {
		if item.Status != models.StatusPending {
			t.Errorf("Expected pending, got %s", item.Status)
		}
	}

	sel := f.editor.Selection()
	if len(sel) != 2 || sel[0] != requeued[0].ID || sel[1] != requeued[1].ID {
		t.Errorf("Expected requeued items swapped into selection, got %v", sel)
	}

	old, _ := f.editor.Item(items[0].ID)
	if old.Status != models.StatusCompleted {
		t.Errorf("Expected old item untouched, got %s", old.Status)
	}

	// The completed item restarts from its processed result.
	got, _ := f.store.Get(context.Background(), requeued[0].SourceRef)
	want, _ := f.store.Get(context.Background(), old.ResultRef)
	if !bytes.Equal(got, want) {
		t.Error("Expected requeued source to be a copy of the result")
	}

	_, err = f.editor.Requeue(context.Background(), []string{requeued[0].ID})
	if !errors.Is(err, gallery.ErrItemNotTerminal) || !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict for pending item, got %v", err)
	}
	if _, err := f.editor.Requeue(context.Background(), nil); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected validation error, got %v", err)
	}
}

func TestHandleChat(t *testing.T) {
	f := newEditorFixture(t)

	resp, err := f.editor.HandleChat(context.Background(), models.ChatRequest{Message: "xyzzy plugh", Apply: true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Command.Intent != models.IntentUnknown || resp.Job != nil {
		t.Errorf("Expected unknown command without job, got %+v", resp)
	}
	if len(resp.Suggestions) != SuggestionCount {
		t.Errorf("Expected %d suggestions, got %v", SuggestionCount, resp.Suggestions)
	}

	_, err = f.editor.HandleChat(context.Background(), models.ChatRequest{Message: "Remove the background", Apply: true})
	if !errors.Is(err, batch.ErrEmptySelection) {
		t.Errorf("Expected empty selection, got %v", err)
	}

	items := f.addImages(t, "a.png")
	f.editor.ToggleSelection(items[0].ID)

	resp, err = f.editor.HandleChat(context.Background(), models.ChatRequest{Message: "Remove the background"})
	if err != nil || resp.Job != nil {
		t.Fatalf("Expected reply without job when apply is off, got %+v %v", resp, err)
	}
	if resp.Operation.Kind != models.OpRemoveBackground || resp.Reply == "" {
		t.Errorf("Unexpected response %+v", resp)
	}

	resp, err = f.editor.HandleChat(context.Background(), models.ChatRequest{Message: "Remove the background", Apply: true})
	if err != nil || resp.Job == nil {
		t.Fatalf("Expected job to start, got %+v %v", resp, err)
	}
	if resp.Job.Operation.Kind != models.OpRemoveBackground || resp.Job.Total != 1 {
		t.Errorf("Unexpected job %+v", resp.Job)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.editor.WaitJob(ctx, resp.Job.ID); err != nil {
		t.Fatalf("WaitJob: %v", err)
	}
}

func TestCancelBatch_NoActiveJob(t *testing.T) {
	f := newEditorFixture(t)
	_, err := f.editor.CancelBatch()
	if !errors.Is(err, batch.ErrNoActiveJob) || !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestRemoveImage_WhileProcessing(t *testing.T) {
	f := newEditorFixture(t)
	items := f.addImages(t, "a.png")

	// Flip to processing directly so the removal races nothing.
	if err := f.editor.gallery.StartProcessing([]string{items[0].ID}); err != nil {
		t.Fatalf("StartProcessing: %v", err)
	}
	err := f.editor.RemoveImage(context.Background(), items[0].ID)
	if !errors.Is(err, gallery.ErrItemProcessing) || !apperrors.IsType(err, apperrors.ErrorTypeConflict) {
		t.Errorf("Expected conflict, got %v", err)
	}
}
