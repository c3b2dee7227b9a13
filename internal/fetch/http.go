package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/ibeckermayer/dailyintel/internal/retry"
)

// HTTPError is a non-2xx response from a platform API
type HTTPError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d from %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// retryableHTTP retries rate limits, server errors and network failures
func retryableHTTP(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// do sends the request built by newReq and returns the body of a 2xx
// response. newReq runs once per attempt so bodies can be replayed.
func do(ctx context.Context, client *http.Client, policy retry.Policy, newReq func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	if policy.Retryable == nil {
		policy.Retryable = retryableHTTP
	}

	return retry.Do(ctx, policy, func(ctx context.Context) ([]byte, error) {
		req, err := newReq(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
		if err != nil {
			return nil, fmt.Errorf("reading response from %s: %w", req.URL.Redacted(), err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &HTTPError{StatusCode: resp.StatusCode, URL: req.URL.Redacted(), Body: truncate(string(body), 200)}
		}
		return body, nil
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
