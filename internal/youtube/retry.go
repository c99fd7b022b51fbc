package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// RetryPolicy bounds the retries of a single HTTP fetch.
type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy retries transient failures three times within 30s.
var DefaultRetryPolicy = RetryPolicy{
	MaxTries:        3,
	InitialInterval: time.Second,
	MaxInterval:     10 * time.Second,
	MaxElapsed:      30 * time.Second,
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d from %s", e.StatusCode, e.URL)
}

// IsRetryable reports whether the status is worth retrying.
func (e *StatusError) IsRetryable() bool {
	return isRetryableStatus(e.StatusCode)
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// fetcher performs paced GET requests with exponential backoff.
type fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	policy    RetryPolicy
	userAgent string
}

// get returns at most maxBody bytes of the body of url. Client errors (4xx
// other than 429) are not retried.
func (f *fetcher) get(ctx context.Context, url string, maxBody int64) ([]byte, error) {
	operation := func() ([]byte, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, backoff.Permanent(err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := f.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			statusErr := &StatusError{StatusCode: resp.StatusCode, URL: req.URL.Redacted()}
			if statusErr.IsRetryable() {
				return nil, statusErr
			}
			return nil, backoff.Permanent(statusErr)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return nil, err
		}
		return body, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.policy.InitialInterval
	bo.MaxInterval = f.policy.MaxInterval

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(f.policy.MaxTries),
		backoff.WithMaxElapsedTime(f.policy.MaxElapsed),
	)
}
