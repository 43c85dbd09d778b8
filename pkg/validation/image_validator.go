package validation

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"

	apperrors "github.com/anime-shed/image-editor-go/internal/errors"
)

const (
	// DefaultMaxFileSize is the largest accepted image
	DefaultMaxFileSize int64 = 10 << 20
	// DefaultMaxFiles is the largest number of images accepted per upload
	DefaultMaxFiles = 50
)

// SupportedTypes are the image formats the gallery accepts
var SupportedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/webp",
	"image/bmp",
	"image/tiff",
}

// Upload is one file of a multi-image upload
type Upload struct {
	Name string
	Data []byte
}

// AcceptedImage is an upload that passed validation
type AcceptedImage struct {
	Upload
	ContentType string
}

// ImageValidator checks uploaded images by content, not by file name
type ImageValidator struct {
	maxFileSize int64
	maxFiles    int
}

// NewImageValidator creates a validator; non-positive limits use the defaults
func NewImageValidator(maxFileSize int64, maxFiles int) *ImageValidator {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	return &ImageValidator{maxFileSize: maxFileSize, maxFiles: maxFiles}
}

// MaxFileSize returns the per-file limit in bytes
func (v *ImageValidator) MaxFileSize() int64 {
	return v.maxFileSize
}

// MaxFiles returns the per-upload file limit
func (v *ImageValidator) MaxFiles() int {
	return v.maxFiles
}

// ValidateImage sniffs the content type and enforces the size limit
func (v *ImageValidator) ValidateImage(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", apperrors.NewValidationError(fmt.Sprintf("%s: File is empty", name), nil)
	}
	if int64(len(data)) > v.maxFileSize {
		return "", apperrors.NewValidationError(
			fmt.Sprintf("%s: File too large (max %dMB)", name, v.maxFileSize>>20), nil)
	}

	detected := mimetype.Detect(data)
	for _, supported := range SupportedTypes {
		if detected.Is(supported) {
			return supported, nil
		}
	}
	return "", apperrors.NewValidationError(fmt.Sprintf("%s: Invalid file type", name), nil).
		WithDetails(detected.String())
}

// ValidateUploads keeps the valid files of a multi-image upload. Invalid
// files are skipped with a reason. Files beyond the limit are dropped.
func (v *ImageValidator) ValidateUploads(uploads []Upload) ([]AcceptedImage, []string) {
	var accepted []AcceptedImage
	var skipped []string

	for _, u := range uploads {
		contentType, err := v.ValidateImage(u.Name, u.Data)
		if err != nil {
			skipped = append(skipped, message(err))
			continue
		}
		accepted = append(accepted, AcceptedImage{Upload: u, ContentType: contentType})
	}

	if len(accepted) > v.maxFiles {
		skipped = append(skipped, fmt.Sprintf("Maximum %d files allowed", v.maxFiles))
		accepted = accepted[:v.maxFiles]
	}
	return accepted, skipped
}

func message(err error) string {
	if appErr, ok := err.(*apperrors.AppError); ok {
		return appErr.Message
	}
	return err.Error()
}
