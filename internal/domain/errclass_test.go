package domain

import "testing"

func TestClassifyError(t *testing.T) {
	tests := []struct {
		message string
		want    ErrorClass
	}{
		{"Rate limit exceeded", ErrClassRateLimit},
		{"HTTP 429 too many requests", ErrClassRateLimit},
		{"daily quota reached", ErrClassRateLimit},
		{"request timeout", ErrClassTransient},
		{"network unreachable", ErrClassTransient},
		{"fetch failed", ErrClassTransient},
		{"Unauthorized", ErrClassAuth},
		{"permission denied", ErrClassAuth},
		{"post not found", ErrClassNotFound},
		{"something exploded", ErrClassGeneric},
		{"", ErrClassGeneric},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.message); got != tt.want {
			t.Errorf("ClassifyError(%q) = %s, want %s", tt.message, got, tt.want)
		}
	}
}

func TestErrorClass_Retryable(t *testing.T) {
	retryable := []ErrorClass{ErrClassRateLimit, ErrClassTransient, ErrClassGeneric}
	for _, c := range retryable {
		if !c.Retryable() {
			t.Errorf("%s should be retryable", c)
		}
	}

	terminal := []ErrorClass{ErrClassAuth, ErrClassNotFound, ErrClassIntegrity}
	for _, c := range terminal {
		if c.Retryable() {
			t.Errorf("%s should not be retryable", c)
		}
	}
}

func TestErrorClass_BackoffFactor(t *testing.T) {
	if ErrClassRateLimit.BackoffFactor() != 2 {
		t.Error("rate_limit factor should be 2")
	}
	if ErrClassAuth.BackoffFactor() != 3 {
		t.Error("auth factor should be 3")
	}
	if ErrClassTransient.BackoffFactor() != 1 {
		t.Error("transient factor should be 1")
	}
}
