package container

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/anime-shed/image-editor-go/internal/batch"
	"github.com/anime-shed/image-editor-go/internal/config"
	"github.com/anime-shed/image-editor-go/internal/factory"
	"github.com/anime-shed/image-editor-go/internal/gallery"
	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/notify"
	"github.com/anime-shed/image-editor-go/internal/observer"
	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/internal/service"
	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/internal/transport"
	"github.com/anime-shed/image-editor-go/pkg/models"
	"github.com/anime-shed/image-editor-go/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	history *repository.SQLiteJobRepository
	stream  *observer.StreamObserver
	editor  *service.Editor
	handler http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	logger.SetLevel(cfg.LogLevel)
	gin.SetMode(cfg.GinMode)

	components := factory.NewComponentFactory(cfg)

	// Build dependency graph
	blobStore, err := components.StorageFactory.CreateStorage(factory.StorageType(cfg.StorageType))
	if err != nil {
		return nil, fmt.Errorf("failed to create storage: %w", err)
	}

	processor, err := components.BackendFactory.CreateBackend(factory.BackendMode(cfg.BackendMode), blobStore)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	history, err := repository.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open job history: %w", err)
	}

	publisher := observer.NewEventPublisher()
	stream := observer.NewStreamObserver(observer.DefaultStreamBuffer)
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)
	publisher.Subscribe(stream)

	inbox := notify.NewInbox(notify.DefaultInboxCapacity)
	notifier := notify.Multi{notify.NewLogNotifier(logger.Logger), inbox}

	g := gallery.New()
	g.SetTransitionHook(func(itemID string, from, to models.ItemStatus) {
		logger.WithFields(logrus.Fields{
			"item_id": itemID,
			"from":    from,
			"to":      to,
		}).Debug("Gallery item status changed")
	})
	orchestrator := batch.NewOrchestrator(g, processor, batch.Options{
		Events:   publisher,
		Notifier: notifier,
		History:  history,
		Results:  blobStore,
	})

	editor := service.NewEditor(service.Dependencies{
		Gallery:       g,
		Selection:     gallery.NewSelection(),
		Orchestrator:  orchestrator,
		Store:         blobStore,
		Fetcher:       storage.NewHTTPImageFetcher(cfg.MaxUploadFileSize, storage.DefaultRetryPolicy),
		Images:        validation.NewImageValidator(cfg.MaxUploadFileSize, cfg.MaxUploadFiles),
		URLs:          validation.NewURLValidatorWithOptions([]string{"http", "https"}, cfg.AllowedURLHosts),
		History:       history,
		Notifier:      notifier,
		Inbox:         inbox,
		IngestWorkers: cfg.BackendConcurrency,
	})

	handler := transport.NewHandler(editor, transport.Observers{Stream: stream, Metrics: metrics}, cfg)

	return &Container{
		history: history,
		stream:  stream,
		editor:  editor,
		handler: handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Editor returns the application service
func (c *Container) Editor() *service.Editor {
	return c.editor
}

// CloseStreams ends every live event stream, used on server shutdown
func (c *Container) CloseStreams() {
	c.stream.Close()
}

// Close releases resources held by the container
func (c *Container) Close() error {
	return c.history.Close()
}
