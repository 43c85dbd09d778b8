package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/anime-shed/image-editor-go/internal/logger"
	"github.com/anime-shed/image-editor-go/internal/storage"
	"github.com/anime-shed/image-editor-go/internal/worker"
)

// ProcessPath is the per-image endpoint
const ProcessPath = "/api/v1/process"

// HTTPItemClient sends one request per image, concurrently through a worker pool
type HTTPItemClient struct {
	baseURL     string
	client      *http.Client
	store       storage.BlobStore
	limiter     *rate.Limiter
	policy      storage.RetryPolicy
	concurrency int
}

// NewHTTPItemClient creates a per-image backend client
func NewHTTPItemClient(opts Options, store storage.BlobStore) *HTTPItemClient {
	return &HTTPItemClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		client:      &http.Client{Timeout: opts.Timeout},
		store:       store,
		limiter:     newLimiter(opts.RateLimit),
		policy:      storage.DefaultRetryPolicy,
		concurrency: opts.Concurrency,
	}
}

// SetRetryPolicy overrides the retry policy
func (c *HTTPItemClient) SetRetryPolicy(policy storage.RetryPolicy) {
	c.policy = policy
}

// Process fans the items out over the worker pool. The returned channel is
// closed after every item has reported.
func (c *HTTPItemClient) Process(ctx context.Context, req Request) (<-chan ItemResult, error) {
	out := make(chan ItemResult, len(req.Items))

	pool := worker.NewPool(c.concurrency)
	pool.Start()

	go func() {
		defer close(out)
		defer pool.Close()

		for _, item := range req.Items {
			item := item
			pool.Submit(func() {
				out <- c.processOne(ctx, req, item)
			})
		}
		pool.Wait()

		stats := pool.GetStats()
		logger.WithFields(logrus.Fields{
			"job_id":    req.JobID,
			"requests":  stats.TotalJobs,
			"completed": stats.CompletedJobs,
			"workers":   pool.Workers(),
		}).Debug("Per-item dispatch finished")
	}()

	return out, nil
}

func (c *HTTPItemClient) processOne(ctx context.Context, req Request, item Item) ItemResult {
	log := logger.WithFields(logrus.Fields{
		"job_id":    req.JobID,
		"item_id":   item.ID,
		"operation": req.Operation.Kind,
	})

	if err := ctx.Err(); err != nil {
		return ItemResult{ItemID: item.ID, Err: err}
	}

	source, err := c.store.Get(ctx, item.SourceRef)
	if err != nil {
		return ItemResult{ItemID: item.ID, Err: fmt.Errorf("load source: %w", err)}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return ItemResult{ItemID: item.ID, Err: fmt.Errorf("rate limiter: %w", err)}
	}

	body, err := json.Marshal(processRequest{
		Operation: req.Operation.Kind,
		Params:    req.Operation.Params,
		Image:     base64.StdEncoding.EncodeToString(source),
	})
	if err != nil {
		return ItemResult{ItemID: item.ID, Err: fmt.Errorf("encode request: %w", err)}
	}

	resp, err := storage.DoWithRetry(ctx, c.client, c.policy, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ProcessPath, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if err != nil {
		log.WithError(err).Warn("Backend request failed")
		return ItemResult{ItemID: item.ID, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ItemResult{ItemID: item.ID, Err: fmt.Errorf("read result: %w", err)}
	}
	if len(data) == 0 {
		return ItemResult{ItemID: item.ID, Err: fmt.Errorf("backend returned an empty image")}
	}

	ref, err := storeResult(ctx, c.store, req.JobID, item.ID, data, resp.Header.Get("Content-Type"))
	if err != nil {
		return ItemResult{ItemID: item.ID, Err: err}
	}
	log.WithField("result_ref", ref).Debug("Backend result stored")
	return ItemResult{ItemID: item.ID, ResultRef: ref}
}

// storeResult writes result bytes under the processed prefix. A missing or
// generic content type is replaced by the sniffed one.
func storeResult(ctx context.Context, store storage.BlobStore, jobID, itemID string, data []byte, contentType string) (string, error) {
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		contentType = mimetype.Detect(data).String()
	}
	ref, err := store.Put(ctx, storage.ProcessedKey(jobID, itemID, contentType), data, contentType)
	if err != nil {
		return "", fmt.Errorf("store result: %w", err)
	}
	return ref, nil
}
