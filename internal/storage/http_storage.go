package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Download is a fetched image with its declared content type
type Download struct {
	Data        []byte
	ContentType string
}

// ImageFetcher downloads images for URL ingestion
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (*Download, error)
}

// HTTPImageFetcher implements ImageFetcher
type HTTPImageFetcher struct {
	client   *http.Client
	policy   RetryPolicy
	maxBytes int64
}

// NewHTTPImageFetcher creates an HTTP image fetcher that refuses bodies
// larger than maxBytes.
func NewHTTPImageFetcher(maxBytes int64, policy RetryPolicy) *HTTPImageFetcher {
	transport := &http.Transport{
		// Connection pooling sized for occasional single downloads
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		MaxResponseHeaderBytes: 4096,
	}

	return &HTTPImageFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   30 * time.Second,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		policy:   policy,
		maxBytes: maxBytes,
	}
}

// FetchImage downloads the raw bytes behind imageURL
func (h *HTTPImageFetcher) FetchImage(ctx context.Context, imageURL string) (*Download, error) {
	resp, err := DoWithRetry(ctx, h.client, h.policy, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "image/jpeg, image/png, image/webp, image/bmp, image/tiff, */*")
		req.Header.Set("User-Agent", "Go-Image-Editor/1.0")
		return req, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if h.maxBytes > 0 && resp.ContentLength > h.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	reader := io.Reader(resp.Body)
	if h.maxBytes > 0 {
		reader = io.LimitReader(resp.Body, h.maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if h.maxBytes > 0 && int64(len(data)) > h.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, h.maxBytes)
	}

	return &Download{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}
