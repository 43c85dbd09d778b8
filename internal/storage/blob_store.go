package storage

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Key prefixes of the bucket layout
const (
	OriginalsPrefix = "originals"
	ProcessedPrefix = "processed"
)

// ErrBlobNotFound indicates the referenced blob does not exist
var ErrBlobNotFound = errors.New("blob not found")

// ErrInvalidKey indicates a key that would escape the store root
var ErrInvalidKey = errors.New("invalid blob key")

// ErrTooLarge indicates a download exceeded the configured size limit
var ErrTooLarge = errors.New("image too large")

// BlobStore keeps image bytes. The ref returned by Put is what gallery items
// and job outcomes hold.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, ref string) error
}

// OriginalKey builds a unique key for an uploaded image
func OriginalKey(contentType string) string {
	return path.Join(OriginalsPrefix, uuid.NewString()+extensionFor(contentType))
}

// ProcessedKey builds the key of a backend result for one item of a job
func ProcessedKey(jobID, itemID, contentType string) string {
	return path.Join(ProcessedPrefix, jobID, itemID+extensionFor(contentType))
}

// CopyKey builds a fresh key next to ref for a duplicated blob
func CopyKey(ref string) string {
	dir := path.Dir(ref)
	return path.Join(dir, uuid.NewString()+path.Ext(ref))
}

func extensionFor(contentType string) string {
	if m := mimetype.Lookup(contentType); m != nil {
		return m.Extension()
	}
	return ""
}

// cleanKey normalizes a key and rejects absolute or parent-relative paths
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", ErrInvalidKey
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidKey
	}
	return cleaned, nil
}
