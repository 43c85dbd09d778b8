package service

import (
	"context"
	"errors"

	"github.com/anime-shed/image-editor-go/internal/batch"
	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
	"github.com/anime-shed/image-editor-go/internal/gallery"
	"github.com/anime-shed/image-editor-go/internal/repository"
	"github.com/anime-shed/image-editor-go/internal/storage"
)

// toAppError maps domain sentinels to typed application errors.
// The original error stays the Cause, so errors.Is keeps working.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, batch.ErrEmptySelection):
		return apperrors.NewValidationError("Select at least one image first", err)
	case errors.Is(err, batch.ErrJobAlreadyRunning):
		return apperrors.NewConflictError("A batch job is already running", err)
	case errors.Is(err, batch.ErrNoActiveJob):
		return apperrors.NewNotFoundError("No batch job is running", err)
	case errors.Is(err, batch.ErrJobNotFound), errors.Is(err, repository.ErrJobNotFound):
		return apperrors.NewNotFoundError("Batch job not found", err)
	case errors.Is(err, gallery.ErrItemNotFound):
		return apperrors.NewNotFoundError("Image not found", err)
	case errors.Is(err, gallery.ErrItemProcessing):
		return apperrors.NewConflictError("Image is being processed", err)
	case errors.Is(err, gallery.ErrItemNotPending):
		return apperrors.NewConflictError("Image was already processed, requeue it first", err)
	case errors.Is(err, gallery.ErrItemNotTerminal):
		return apperrors.NewConflictError("Image has not finished processing", err)
	case errors.Is(err, gallery.ErrInvalidTransition):
		return apperrors.NewConflictError("Invalid status change", err)
	case errors.Is(err, storage.ErrBlobNotFound):
		return apperrors.NewNotFoundError("Image data not found", err)
	case errors.Is(err, storage.ErrTooLarge):
		return apperrors.NewValidationError("Image too large", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("Operation timed out", err)
	default:
		return apperrors.NewInternalError("Unexpected error", err)
	}
}
