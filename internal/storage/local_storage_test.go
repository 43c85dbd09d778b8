package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLocalStore_PutGetDelete(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	ctx := context.Background()

	ref, err := store.Put(ctx, "originals/a/b.png", pngData, "image/png")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ref != "originals/a/b.png" {
		t.Errorf("Expected ref to be the cleaned key, got %s", ref)
	}

	got, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !bytes.Equal(got, pngData) {
		t.Error("Expected stored bytes back")
	}

	if err := store.Delete(ctx, ref); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := store.Get(ctx, ref); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("Expected ErrBlobNotFound, got %v", err)
	}
	if err := store.Delete(ctx, ref); err != nil {
		t.Errorf("Expected deleting a missing blob to succeed, got %v", err)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	for _, key := range []string{"", "/etc/passwd", "../outside.png", "a/../../outside.png", "."} {
		if _, err := store.Put(context.Background(), key, pngData, ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestKeys(t *testing.T) {
	orig := OriginalKey("image/png")
	if !strings.HasPrefix(orig, "originals/") || !strings.HasSuffix(orig, ".png") {
		t.Errorf("Unexpected original key %s", orig)
	}
	if OriginalKey("image/png") == orig {
		t.Error("Expected unique original keys")
	}

	if got := ProcessedKey("job", "item", "image/jpeg"); got != "processed/job/item.jpg" {
		t.Errorf("Unexpected processed key %s", got)
	}
	if got := ProcessedKey("job", "item", "application/x-unknown-thing"); got != "processed/job/item" {
		t.Errorf("Expected no extension for unknown types, got %s", got)
	}

	cp := CopyKey("processed/job/item.jpg")
	if !strings.HasPrefix(cp, "processed/job/") || !strings.HasSuffix(cp, ".jpg") || cp == "processed/job/item.jpg" {
		t.Errorf("Unexpected copy key %s", cp)
	}
}
