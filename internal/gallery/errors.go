package gallery

import "errors"

var (
	// ErrItemNotFound indicates no gallery item has the given id
	ErrItemNotFound = errors.New("gallery item not found")

	// ErrItemProcessing indicates the item is part of a running batch
	ErrItemProcessing = errors.New("gallery item is being processed")

	// ErrItemNotPending indicates the item already went through a batch
	ErrItemNotPending = errors.New("gallery item is not pending")

	// ErrItemNotTerminal indicates the item has not finished processing yet
	ErrItemNotTerminal = errors.New("gallery item has not finished processing")

	// ErrInvalidTransition indicates a status change that would regress an item
	ErrInvalidTransition = errors.New("invalid status transition")
)
