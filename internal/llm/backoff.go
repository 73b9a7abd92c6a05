package llm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultMaxAttempts bounds the number of tries per request.
	DefaultMaxAttempts = 5
	// DefaultInitialDelay is the wait before the second attempt; it doubles
	// after every further failure.
	DefaultInitialDelay = time.Second
)

// StatusError is returned for a non-2xx, non-429 response. Those are not
// retried: the status and body travel up to the caller unchanged.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// sleepContext waits for d or until ctx is done. Overridable in tests to
// observe the backoff schedule without real waiting.
var sleepContext = func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SendWithBackoff issues the request produced by build, retrying on HTTP 429
// and on transport-level failures with exponentially doubling delays. Any
// other non-2xx status fails immediately with a *StatusError. The delay is
// applied before the next attempt, never before the first. build is called
// once per attempt so the request body can be replayed.
func SendWithBackoff(ctx context.Context, client *http.Client, build func() (*http.Request, error), maxAttempts int, initialDelay time.Duration) (*http.Response, error) {
	if maxAttempts < 1 {
		maxAttempts = DefaultMaxAttempts
	}
	delay := initialDelay

	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			if i == maxAttempts-1 {
				break
			}
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			lastErr = ErrRetryExhausted
			if i == maxAttempts-1 {
				break
			}
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}

		return resp, nil
	}

	if lastErr == ErrRetryExhausted {
		return nil, fmt.Errorf("%w after %d attempts", ErrRetryExhausted, maxAttempts)
	}
	return nil, lastErr
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
