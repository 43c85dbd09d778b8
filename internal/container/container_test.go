package container

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/anime-shed/image-editor-go/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		Host:               "127.0.0.1",
		Port:               "0",
		RequestTimeout:     time.Second,
		MaxRequestBodySize: 1 << 20,
		MaxUploadFileSize:  1 << 20,
		MaxUploadFiles:     5,
		BackendURL:         "http://127.0.0.1:1",
		BackendMode:        config.BackendModeBatch,
		BackendConcurrency: 2,
		BackendTimeout:     time.Second,
		StorageType:        config.StorageLocal,
		StorageDir:         filepath.Join(dir, "blobs"),
		DatabasePath:       filepath.Join(dir, "db", "history.db"),
		LogLevel:           "error",
		GinMode:            "test",
	}
}

func TestNewContainer_WiresHandler(t *testing.T) {
	c, err := NewContainer(testConfig(t))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close()

	for _, path := range []string{"/health", "/gallery", "/selection", "/jobs", "/metrics"} {
		w := httptest.NewRecorder()
		c.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, w.Code)
		}
	}

	if c.Editor() == nil {
		t.Error("Expected wired components")
	}
}

func TestNewContainer_BadStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.StorageType = "floppy"
	if _, err := NewContainer(cfg); err == nil {
		t.Error("Expected error for unsupported storage")
	}
}
