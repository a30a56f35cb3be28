package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestApiErrorMessage(t *testing.T) {
	err := Application("/v2/procedures", "unexpected status", 500)
	want := "application error (code 500) on /v2/procedures: unexpected status"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}

	err = Transport("", "connection refused")
	want = "transport error (code 0): connection refused"
	if err.Error() != want {
		t.Errorf("Expected %q, got %q", want, err.Error())
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []Kind{KindTransport}
	notRetryable := []Kind{KindApplication, KindParsing, KindAuth, KindNotFound, KindRateLimit, KindUnknown}

	for _, kind := range retryable {
		if !IsRetryable(kind) {
			t.Errorf("Expected kind %s to be retryable", kind)
		}
	}
	for _, kind := range notRetryable {
		if IsRetryable(kind) {
			t.Errorf("Expected kind %s to not be retryable", kind)
		}
	}
}

func TestKindForStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{404, KindNotFound},
		{429, KindRateLimit},
		{400, KindApplication},
		{500, KindApplication},
		{502, KindApplication},
	}

	for _, tt := range tests {
		if got := KindForStatusCode(tt.code); got != tt.want {
			t.Errorf("KindForStatusCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestErrorsAsUnwrapping(t *testing.T) {
	wrapped := fmt.Errorf("stage 1 failed: %w", Application("/v2/procedures", "bad gateway", 502))

	var apiErr *ApiError
	if !errors.As(wrapped, &apiErr) {
		t.Fatal("Expected errors.As to find ApiError in wrapped error")
	}
	if apiErr.Kind != KindApplication {
		t.Errorf("Expected kind %s, got %s", KindApplication, apiErr.Kind)
	}
	if apiErr.Code != 502 {
		t.Errorf("Expected code 502, got %d", apiErr.Code)
	}
}
