package speech

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"auth", &AuthError{StatusCode: 401, Reason: "Unauthorized"}, "auth"},
		{"api", fmt.Errorf("wrapped: %w", &APIError{StatusCode: 500}), "api"},
		{"source", &SourceReadError{Source: "file", Err: errors.New("gone")}, "source"},
		{"no source", ErrNoAudioSource, "source"},
		{"decode", &DecodeError{Err: errors.New("bad json")}, "decode"},
		{"canceled", &TransportError{Err: context.Canceled}, "canceled"},
		{"transport", &TransportError{Err: errors.New("connection reset")}, "transport"},
		{"other", errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (&APIError{StatusCode: 400, Reason: "Bad Request", Body: "no audio"}).Error(); got != "recognition failed: 400 Bad Request: no audio" {
		t.Errorf("Unexpected APIError message %q", got)
	}
	if got := (&AuthError{StatusCode: 401, Reason: "Unauthorized"}).Error(); got != "authentication failed: 401 Unauthorized" {
		t.Errorf("Unexpected AuthError message %q", got)
	}
	if got := (&AuthError{Err: ErrCircuitOpen}).Error(); got != "authentication failed: circuit breaker is open" {
		t.Errorf("Unexpected AuthError message %q", got)
	}
}

func TestResultHelpers(t *testing.T) {
	if (Result{}).Text() != "" {
		t.Error("Expected empty text for empty result")
	}

	var nilDetailed *DetailedResult
	if _, ok := nilDetailed.Best(); ok {
		t.Error("Expected no best alternative on nil result")
	}

	res := Result{Mode: OutputModeSimple, Simple: &SimpleResult{RecognitionStatus: StatusNoMatch}}
	if res.Status() != StatusNoMatch || res.Status().IsSuccess() {
		t.Errorf("Unexpected status %q", res.Status())
	}
	if Ticks(10_000_000).Duration().Seconds() != 1 {
		t.Error("Expected 10^7 ticks to be one second")
	}
}
