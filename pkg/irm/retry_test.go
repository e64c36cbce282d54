package irm

import (
	"net/http"
	"testing"
	"time"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second}, // 8s capped
	}
	for _, tc := range cases {
		if got := p.Delay(tc.attempt, 0); got != tc.want {
			t.Errorf("Delay(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayHonorsHint(t *testing.T) {
	p := DefaultRetryPolicy()
	if got := p.Delay(0, 7*time.Second); got != 7*time.Second {
		t.Errorf("Delay with hint = %v, want 7s (Retry-After wins)", got)
	}
	// A hint beyond MaxDelay is capped.
	if got := p.Delay(0, 5*time.Minute); got != p.MaxDelay {
		t.Errorf("Delay with oversized hint = %v, want cap %v", got, p.MaxDelay)
	}
}

func TestRetryAfterHeader(t *testing.T) {
	h := http.Header{}
	if got := retryAfter(h); got != 0 {
		t.Errorf("missing header: retryAfter = %v, want 0", got)
	}

	h.Set("Retry-After", "5")
	if got := retryAfter(h); got != 5*time.Second {
		t.Errorf("retryAfter = %v, want 5s", got)
	}

	h.Set("Retry-After", "Wed, 21 Oct 2025 07:28:00 GMT")
	if got := retryAfter(h); got != 0 {
		t.Errorf("HTTP-date form: retryAfter = %v, want 0 (unsupported, falls back to backoff)", got)
	}
}
