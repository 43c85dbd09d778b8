package factory

import (
	"context"
	"fmt"
	"time"

	"github.com/anime-shed/image-editor-go/internal/backend"
	"github.com/anime-shed/image-editor-go/internal/config"
	"github.com/anime-shed/image-editor-go/internal/storage"
)

// StorageType represents different types of blob storage
type StorageType string

const (
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = config.StorageAzure
	// LocalStorage for local file system
	LocalStorage StorageType = config.StorageLocal
)

// BackendMode represents the ways results are requested from the processing backend
type BackendMode string

const (
	// PerItemBackend sends one request per image
	PerItemBackend BackendMode = config.BackendModePerItem
	// BatchBackend sends one request per job and streams results back
	BatchBackend BackendMode = config.BackendModeBatch
)

const containerSetupTimeout = 30 * time.Second

// StorageFactory creates blob store implementations
type StorageFactory interface {
	CreateStorage(storageType StorageType) (storage.BlobStore, error)
}

// BackendFactory creates processing backend clients
type BackendFactory interface {
	CreateBackend(mode BackendMode, store storage.BlobStore) (backend.Processor, error)
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg *config.Config
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg *config.Config) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a blob store based on the specified type
func (f *storageFactory) CreateStorage(storageType StorageType) (storage.BlobStore, error) {
	switch storageType {
	case LocalStorage:
		return storage.NewLocalStore(f.cfg.StorageDir)
	case AzureStorage:
		store, err := storage.NewAzureStore(f.cfg.AzureStorageAccount, f.cfg.AzureStorageKey, f.cfg.AzureStorageContainer)
		if err != nil {
			return nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), containerSetupTimeout)
		defer cancel()
		if err := store.EnsureContainer(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// backendFactory implements BackendFactory
type backendFactory struct {
	cfg *config.Config
}

// NewBackendFactory creates a new backend factory
func NewBackendFactory(cfg *config.Config) BackendFactory {
	return &backendFactory{cfg: cfg}
}

// CreateBackend creates a processing client based on the specified mode
func (f *backendFactory) CreateBackend(mode BackendMode, store storage.BlobStore) (backend.Processor, error) {
	opts := backend.Options{
		BaseURL:     f.cfg.BackendURL,
		Timeout:     f.cfg.BackendTimeout,
		Concurrency: f.cfg.BackendConcurrency,
		RateLimit:   f.cfg.BackendRateLimit,
	}

	switch mode {
	case PerItemBackend:
		return backend.NewHTTPItemClient(opts, store), nil
	case BatchBackend:
		return backend.NewHTTPBatchClient(opts, store), nil
	default:
		return nil, fmt.Errorf("unsupported backend mode: %s", mode)
	}
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory StorageFactory
	BackendFactory BackendFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory: NewStorageFactory(cfg),
		BackendFactory: NewBackendFactory(cfg),
	}
}
