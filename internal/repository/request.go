package repository

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// doGet performs a retried GET against path, returning the raw response
// body. Retry is exponential backoff up to maxRetries, with per-attempt
// timeout 2000ms * retry-count and interval clamped to [1000, 2000]ms, per
// §4.2 "Retry".
func (c *Client) doGet(ctx context.Context, op, path string) ([]byte, error) {
	var lastErr error
	var lastStatus int

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			interval := minRetryInterval
			if scaled := minRetryInterval * time.Duration(1<<(attempt-1)); scaled > interval {
				interval = scaled
			}
			if interval > maxRetryInterval {
				interval = maxRetryInterval
			}
			select {
			case <-time.After(interval):
			case <-ctx.Done():
				return nil, &NetworkError{Op: op, Path: path, Attempts: attempt, Err: ctx.Err()}
			}
		}

		timeout := 2000 * time.Duration(attempt) * time.Millisecond
		if timeout <= 0 {
			timeout = 2000 * time.Millisecond
		}
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)

		body, status, err := c.attempt(attemptCtx, path)
		cancel()

		if err == nil && status >= 200 && status < 300 {
			return body, nil
		}
		if err == nil && status >= 400 && status < 500 {
			// Not found / forbidden are not retry candidates.
			return nil, &NetworkError{Op: op, Path: path, Attempts: attempt + 1, StatusCode: status}
		}

		lastErr = err
		lastStatus = status
	}

	return nil, &NetworkError{Op: op, Path: path, Attempts: maxRetries + 1, StatusCode: lastStatus, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, path string) ([]byte, int, error) {
	url := fmt.Sprintf("%s://%s%s", c.scheme, c.host, path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Host = c.host

	addr, err := c.endpoints.pick()
	if err != nil {
		return nil, 0, err
	}

	var body []byte
	var status int
	breakerErr := c.breakers.call(addr, 1*time.Minute, func() error {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		status = resp.StatusCode
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if breakerErr != nil {
		return nil, status, breakerErr
	}
	return body, status, nil
}

// openStream performs a single (non-retried) GET and returns the live
// response body for streaming callers (getHash/getInformation); the
// Fetcher is responsible for its own retry loop over these streams.
func (c *Client) openStream(ctx context.Context, path string, rangeHeader string) (io.ReadCloser, *http.Response, error) {
	url := fmt.Sprintf("%s://%s%s", c.scheme, c.host, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Host = c.host
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	return resp.Body, resp, nil
}
