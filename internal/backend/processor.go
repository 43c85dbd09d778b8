// Package backend talks to the external image-processing service.
//
// A Processor receives the whole batch and streams one ItemResult per item
// back over a channel, which it closes when it has nothing more to report.
// Items it never reports are treated as failed by the caller.
package backend

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/anime-shed/image-editor-go/pkg/models"
)

// Item is one image to process
type Item struct {
	ID        string `json:"id"`
	SourceRef string `json:"-"`
}

// Request is a batch of items sharing one operation
type Request struct {
	JobID     string
	Operation models.Operation
	Items     []Item
}

// ItemResult is the outcome of one item. Exactly one of ResultRef and Err is set.
type ItemResult struct {
	ItemID    string
	ResultRef string
	Err       error
}

// Processor dispatches a batch to the processing backend
type Processor interface {
	Process(ctx context.Context, req Request) (<-chan ItemResult, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, req Request) (<-chan ItemResult, error)

// Process implements Processor
func (f ProcessorFunc) Process(ctx context.Context, req Request) (<-chan ItemResult, error) {
	return f(ctx, req)
}

// Options configures the HTTP clients
type Options struct {
	BaseURL     string
	Timeout     time.Duration
	Concurrency int
	// RateLimit is the maximum number of backend calls per second; zero disables throttling
	RateLimit float64
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// processRequest is the JSON body sent for a single image
type processRequest struct {
	Operation models.OperationKind `json:"operation"`
	Params    map[string]any       `json:"params"`
	Image     string               `json:"image"`
}

// batchRequest is the JSON body sent for a whole batch
type batchRequest struct {
	Operation models.OperationKind `json:"operation"`
	Params    map[string]any       `json:"params"`
	Items     []batchRequestItem   `json:"items"`
}

type batchRequestItem struct {
	ID    string `json:"id"`
	Image string `json:"image"`
}

// batchResultLine is one NDJSON line of a batch response
type batchResultLine struct {
	ID          string `json:"id"`
	Image       string `json:"image,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Error       string `json:"error,omitempty"`
}
