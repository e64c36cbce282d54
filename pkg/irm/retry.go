package irm

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// AuthError reports a 401/403 from the upstream. A bad credential is
// fatal for the whole run and is never retried.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: HTTP %d (check the service account token)", e.Status)
}

// UpstreamError reports a non-retryable API rejection (4xx other than
// 429). The run aborts with the upstream status.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream rejected request: HTTP %d", e.Status)
	}
	return fmt.Sprintf("upstream rejected request: HTTP %d: %s", e.Status, e.Body)
}

// TransientError reports that retries were exhausted on a transient
// fault (network error, 5xx, or persistent rate limiting).
type TransientError struct {
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("upstream fetch failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// retryableError marks a failure worth another attempt. hint carries an
// upstream Retry-After value when one was provided.
type retryableError struct {
	err  error
	hint time.Duration
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// RetryPolicy bounds retries for transient upstream failures. One policy
// instance is shared by every network call site.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy matches the upstream's documented limits: three
// attempts, one second base, doubling per attempt.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Delay returns the backoff to sleep before retrying after the given
// zero-based attempt. A positive hint (Retry-After) overrides the
// exponential schedule; both are capped at MaxDelay.
func (p RetryPolicy) Delay(attempt int, hint time.Duration) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if hint > 0 {
		d = hint
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// retryAfter reads a Retry-After header given in seconds. Zero means no
// usable hint.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
