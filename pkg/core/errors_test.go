package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "invalid model format",
	}

	expected := "invalid_request_error: invalid model format"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrRateLimit,
		Message: "too many requests",
		Code:    "rate_limit_exceeded",
	}

	expected := "rate_limit_error: too many requests (code: rate_limit_exceeded)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewInvalidRequestError(t *testing.T) {
	err := NewInvalidRequestError("bad request")
	if err.Type != ErrInvalidRequest {
		t.Errorf("Type = %v, want %v", err.Type, ErrInvalidRequest)
	}
	if err.Message != "bad request" {
		t.Errorf("Message = %q, want %q", err.Message, "bad request")
	}
}

func TestNewInvalidRequestErrorWithParam(t *testing.T) {
	err := NewInvalidRequestErrorWithParam("missing fields", "email,time")
	if err.Param != "email,time" {
		t.Errorf("Param = %q, want %q", err.Param, "email,time")
	}
}

func TestNewRateLimitError(t *testing.T) {
	err := NewRateLimitError("rate limit exceeded", 60)
	if err.Type != ErrRateLimit {
		t.Errorf("Type = %v, want %v", err.Type, ErrRateLimit)
	}
	if err.RetryAfter == nil || *err.RetryAfter != 60 {
		t.Errorf("RetryAfter = %v, want 60", err.RetryAfter)
	}
}

func TestNewProviderError(t *testing.T) {
	underlying := NewAPIError("upstream error")
	err := NewProviderError("openai", underlying)

	if err.Type != ErrProvider {
		t.Errorf("Type = %v, want %v", err.Type, ErrProvider)
	}
	if err.ProviderError == nil {
		t.Error("ProviderError should not be nil")
	}
}

func TestNewConfigurationError(t *testing.T) {
	err := NewConfigurationError("booking is not configured", "booking_webhook_url")
	if err.Type != ErrConfiguration {
		t.Errorf("Type = %v, want %v", err.Type, ErrConfiguration)
	}
	if err.Param != "booking_webhook_url" {
		t.Errorf("Param = %q", err.Param)
	}
}

func TestNewPersistenceError(t *testing.T) {
	err := NewPersistenceError(errors.New("connection refused"))
	if err.Type != ErrPersistence {
		t.Errorf("Type = %v, want %v", err.Type, ErrPersistence)
	}
	if err.Message != "connection refused" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestError_IsRetryable(t *testing.T) {
	tests := []struct {
		errType ErrorType
		want    bool
	}{
		{ErrRateLimit, true},
		{ErrOverloaded, true},
		{ErrAPI, true},
		{ErrInvalidRequest, false},
		{ErrAuthentication, false},
		{ErrPermission, false},
		{ErrNotFound, false},
		{ErrProvider, false},
		{ErrConfiguration, false},
		{ErrPersistence, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errType), func(t *testing.T) {
			err := &Error{Type: tt.errType, Message: "test"}
			if got := err.IsRetryable(); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}
