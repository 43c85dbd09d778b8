package storage

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// RetryPolicy controls DoWithRetry. Attempt n (1-based) that fails with a
// retryable error waits n*Backoff before the next one.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy makes three attempts with 1s, 2s pauses
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Backoff: time.Second}

// StatusError is a non-2xx HTTP answer
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return fmt.Sprintf("client error: status code %d", e.StatusCode)
	}
	return fmt.Sprintf("server error: status code %d", e.StatusCode)
}

// Retryable reports whether another attempt could succeed
func (e *StatusError) Retryable() bool {
	return e.StatusCode < 400 || e.StatusCode >= 500
}

// DoWithRetry sends the request built by newRequest until it gets a 2xx.
// 4xx answers stop immediately; 5xx and network errors are retried.
// newRequest is called once per attempt so request bodies can be replayed.
// The caller owns the returned response body.
func DoWithRetry(ctx context.Context, client *http.Client, policy RetryPolicy, newRequest func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		req, err := newRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("invalid request: %w", err)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			resp.Body.Close()
			statusErr := &StatusError{StatusCode: resp.StatusCode}
			lastErr = statusErr
			if !statusErr.Retryable() {
				break
			}
		}

		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(time.Duration(attempt+1) * policy.Backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("request canceled during retry: %w", ctx.Err())
			case <-timer.C:
			}
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, lastErr)
}
