// Package gallery owns the gallery items and the user's selection.
//
// Items live in an arena keyed by id. Selections and batch jobs hold ids only,
// so a status change made here is visible to every holder.
package gallery

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Source describes a validated image handed over by ingestion
type Source struct {
	Name        string
	ContentType string
	Size        int64
	SourceRef   string
	PreviewRef  string
}

// TransitionHook observes every status change. It runs while the gallery
// lock is held and must not call back into the gallery.
type TransitionHook func(itemID string, from, to models.ItemStatus)

// Gallery is the single owner of all gallery items
type Gallery struct {
	mu    sync.RWMutex
	items map[string]*models.GalleryItem
	order []string
	hook  TransitionHook
	now   func() time.Time
}

// New creates an empty gallery
func New() *Gallery {
	return &Gallery{
		items: make(map[string]*models.GalleryItem),
		now:   time.Now,
	}
}

// SetTransitionHook installs a status change observer
func (g *Gallery) SetTransitionHook(hook TransitionHook) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hook = hook
}

// Add creates a pending item for a validated image
func (g *Gallery) Add(src Source) models.GalleryItem {
	g.mu.Lock()
	defer g.mu.Unlock()

	previewRef := src.PreviewRef
	if previewRef == "" {
		previewRef = src.SourceRef
	}

	item := &models.GalleryItem{
		ID:          uuid.NewString(),
		Name:        src.Name,
		ContentType: src.ContentType,
		Size:        src.Size,
		SourceRef:   src.SourceRef,
		PreviewRef:  previewRef,
		Status:      models.StatusPending,
		CreatedAt:   g.now().UTC(),
	}
	g.items[item.ID] = item
	g.order = append(g.order, item.ID)
	return *item
}

// Get returns a copy of the item
func (g *Gallery) Get(id string) (models.GalleryItem, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	item, ok := g.items[id]
	if !ok {
		return models.GalleryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return *item, nil
}

// List returns copies of all items in insertion order
func (g *Gallery) List() []models.GalleryItem {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]models.GalleryItem, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, *g.items[id])
	}
	return out
}

// IDs returns the ids of all items in insertion order
func (g *Gallery) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Len returns the number of items
func (g *Gallery) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Remove deletes an item and returns it so the caller can release its blobs.
// Items that are part of a running batch cannot be removed.
func (g *Gallery) Remove(id string) (models.GalleryItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	item, ok := g.items[id]
	if !ok {
		return models.GalleryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if item.Status == models.StatusProcessing {
		return models.GalleryItem{}, fmt.Errorf("%w: %s", ErrItemProcessing, id)
	}

	delete(g.items, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return *item, nil
}

// StartProcessing moves every listed item from pending to processing under a
// single lock. Either all items flip or none do.
func (g *Gallery) StartProcessing(ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range ids {
		item, ok := g.items[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		if item.Status != models.StatusPending {
			return fmt.Errorf("%w: %s is %s", ErrItemNotPending, id, item.Status)
		}
	}

	for _, id := range ids {
		g.setStatus(g.items[id], models.StatusProcessing)
	}
	return nil
}

// Resolve moves a processing item to completed or error
func (g *Gallery) Resolve(id string, status models.ItemStatus, resultRef, reason string) (models.GalleryItem, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	item, ok := g.items[id]
	if !ok {
		return models.GalleryItem{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if !status.IsTerminal() || !CanTransition(item.Status, status) {
		return *item, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, status)
	}

	if status == models.StatusCompleted {
		item.ResultRef = resultRef
	} else {
		item.Error = reason
	}
	g.setStatus(item, status)
	return *item, nil
}

// setStatus applies a transition. Caller holds g.mu.
func (g *Gallery) setStatus(item *models.GalleryItem, to models.ItemStatus) {
	from := item.Status
	item.Status = to
	if g.hook != nil {
		g.hook(item.ID, from, to)
	}
}
