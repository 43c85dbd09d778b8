package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/storage"
)

// BatchPath is the streaming batch endpoint
const BatchPath = "/api/v1/batch"

// maxLineSize bounds one NDJSON line, which carries a base64 image
const maxLineSize = 64 << 20

// HTTPBatchClient sends the whole batch in one request and reads an NDJSON
// stream of per-item results.
type HTTPBatchClient struct {
	baseURL string
	client  *http.Client
	store   storage.BlobStore
	limiter *rate.Limiter
	policy  storage.RetryPolicy

	// idleTimeout bounds the wait for the response and for each next line
	idleTimeout time.Duration
}

// NewHTTPBatchClient creates a streaming batch backend client
func NewHTTPBatchClient(opts Options, store storage.BlobStore) *HTTPBatchClient {
	return &HTTPBatchClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		// No client timeout: the stream lasts as long as the batch. A stream
		// that goes quiet for longer than opts.Timeout is cut instead.
		client:      &http.Client{},
		store:       store,
		limiter:     newLimiter(opts.RateLimit),
		policy:      storage.DefaultRetryPolicy,
		idleTimeout: opts.Timeout,
	}
}

// SetRetryPolicy overrides the retry policy
func (c *HTTPBatchClient) SetRetryPolicy(policy storage.RetryPolicy) {
	c.policy = policy
}

// Process uploads every source image and streams results as they arrive.
// An error is returned only when the request could not be started.
func (c *HTTPBatchClient) Process(ctx context.Context, req Request) (<-chan ItemResult, error) {
	items := make([]batchRequestItem, 0, len(req.Items))
	for _, item := range req.Items {
		source, err := c.store.Get(ctx, item.SourceRef)
		if err != nil {
			return nil, fmt.Errorf("load source of %s: %w", item.ID, err)
		}
		items = append(items, batchRequestItem{ID: item.ID, Image: base64.StdEncoding.EncodeToString(source)})
	}

	body, err := json.Marshal(batchRequest{
		Operation: req.Operation.Kind,
		Params:    req.Operation.Params,
		Items:     items,
	})
	if err != nil {
		return nil, fmt.Errorf("encode batch request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	idle := newIdleTimer(c.idleTimeout, cancel)

	resp, err := storage.DoWithRetry(streamCtx, c.client, c.policy, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+BatchPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/x-ndjson")
		return httpReq, nil
	})
	if err != nil {
		idle.Stop()
		cancel()
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	idle.Reset()

	out := make(chan ItemResult, len(req.Items))
	go func() {
		defer close(out)
		defer cancel()
		defer idle.Stop()
		defer resp.Body.Close()
		c.readStream(ctx, req, bufio.NewScanner(resp.Body), idle, out)
		if ctx.Err() == nil && idle.Fired() {
			logger.WithField("job_id", req.JobID).
				WithField("idle_timeout", c.idleTimeout).
				Error("Batch result stream stalled, giving up on remaining items")
		}
	}()
	return out, nil
}

func (c *HTTPBatchClient) readStream(ctx context.Context, req Request, scanner *bufio.Scanner, idle *idleTimer, out chan<- ItemResult) {
	log := logger.WithFields(logrus.Fields{
		"job_id":    req.JobID,
		"operation": req.Operation.Kind,
	})
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		idle.Reset()
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var line batchResultLine
		if err := json.Unmarshal(raw, &line); err != nil || line.ID == "" {
			log.WithError(err).Error("Malformed batch result line, aborting stream")
			return
		}

		// Storing the result is local work and does not count as idle time.
		idle.Stop()
		out <- c.resolveLine(ctx, req.JobID, line)
		idle.Reset()
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, context.Canceled) && !idle.Fired() {
		log.WithError(err).Error("Batch result stream broke")
	}
}

func (c *HTTPBatchClient) resolveLine(ctx context.Context, jobID string, line batchResultLine) ItemResult {
	if line.Error != "" {
		return ItemResult{ItemID: line.ID, Err: errors.New(line.Error)}
	}

	data, err := base64.StdEncoding.DecodeString(line.Image)
	if err != nil || len(data) == 0 {
		return ItemResult{ItemID: line.ID, Err: fmt.Errorf("backend returned an invalid image")}
	}

	ref, err := storeResult(ctx, c.store, jobID, line.ID, data, line.ContentType)
	if err != nil {
		return ItemResult{ItemID: line.ID, Err: err}
	}
	return ItemResult{ItemID: line.ID, ResultRef: ref}
}

// idleTimer cancels the stream when no progress is reported within d.
// A zero duration disables it.
type idleTimer struct {
	d     time.Duration
	timer *time.Timer
	fired atomic.Bool
}

func newIdleTimer(d time.Duration, cancel context.CancelFunc) *idleTimer {
	t := &idleTimer{d: d}
	if d > 0 {
		t.timer = time.AfterFunc(d, func() {
			t.fired.Store(true)
			cancel()
		})
	}
	return t
}

// Reset restarts the countdown
func (t *idleTimer) Reset() {
	if t.timer != nil {
		t.timer.Reset(t.d)
	}
}

// Stop disarms the timer
func (t *idleTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Fired reports whether the timer canceled the stream
func (t *idleTimer) Fired() bool {
	return t.fired.Load()
}
