package reliability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want 400ms", got)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"unconfigured", fmt.Errorf("claude: %w", ErrUnconfigured), ReasonUnconfigured},
		{"deadline", fmt.Errorf("ollama: %w", context.DeadlineExceeded), ReasonTimeout},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), ReasonTimeout},
		{"rate limited", &StatusError{Provider: "claude", StatusCode: 429}, ReasonRateLimited},
		{"server error", fmt.Errorf("wrap: %w", &StatusError{Provider: "ollama", StatusCode: 500}), ReasonStatus},
		{"bad json", fmt.Errorf("parse: %w", ErrInvalidResponse), ReasonInvalidResponse},
		{"refused", errors.New("connect: connection refused"), ReasonUnavailable},
	}
	for _, tc := range cases {
		if got := ClassifyError(tc.err); got != tc.want {
			t.Fatalf("%s: ClassifyError() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Provider: "ollama", StatusCode: 503, Body: "loading model"}
	if got := err.Error(); got != "ollama status 503: loading model" {
		t.Fatalf("Error() = %q", got)
	}
	if !err.Retryable() {
		t.Fatalf("Retryable() = false for 503")
	}
}
