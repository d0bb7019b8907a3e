package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsRetryableError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"429", statusErr(http.StatusTooManyRequests), true},
		{"503", statusErr(http.StatusServiceUnavailable), true},
		{"400", statusErr(http.StatusBadRequest), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsRetryableError(tc.err); got != tc.want {
			t.Fatalf("%s: IsRetryableError=%v want %v", tc.name, got, tc.want)
		}
	}
}

func TestBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	if got := Backoff(base, time.Second, 1); got != base {
		t.Fatalf("attempt 1: %v", got)
	}
	if got := Backoff(base, time.Second, 3); got != 400*time.Millisecond {
		t.Fatalf("attempt 3: %v", got)
	}
	if got := Backoff(base, time.Second, 10); got != time.Second {
		t.Fatalf("attempt 10 should cap: %v", got)
	}
}

func TestJitterSleepBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 50; i++ {
		got := JitterSleep(base)
		if got < 800*time.Millisecond || got > 1200*time.Millisecond {
			t.Fatalf("jitter out of bounds: %v", got)
		}
	}
}

func TestRetryAfterDuration(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	if got := RetryAfterDuration(resp, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("RetryAfterDuration capped=%v", got)
	}
	if got := RetryAfterDuration(nil, time.Second, 0); got != time.Second {
		t.Fatalf("RetryAfterDuration fallback=%v", got)
	}
}
