package batch

import "errors"

var (
	// ErrEmptySelection indicates a batch was requested with nothing selected
	ErrEmptySelection = errors.New("no images selected")

	// ErrJobAlreadyRunning indicates another batch has not finished yet
	ErrJobAlreadyRunning = errors.New("a batch job is already running")

	// ErrNoActiveJob indicates there is no running batch
	ErrNoActiveJob = errors.New("no batch job is running")

	// ErrJobNotFound indicates the orchestrator does not know the job id
	ErrJobNotFound = errors.New("batch job not found")

	// ErrUnknownItem indicates a result for an item outside the job
	ErrUnknownItem = errors.New("item is not part of the batch job")

	// ErrDuplicateResult indicates a second result for an already resolved item
	ErrDuplicateResult = errors.New("item already resolved")
)
