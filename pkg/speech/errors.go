package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lexiqai/speech-client/internal/resilience"
)

var (
	// ErrNoAudioSource is returned when a call has nothing to stream
	ErrNoAudioSource = errors.New("no audio source")
	// ErrMissingSubscriptionKey is returned by NewClient without a key
	ErrMissingSubscriptionKey = errors.New("subscription key is required")
	// ErrCircuitOpen means token requests are failing fast; wrapped in *AuthError
	ErrCircuitOpen = resilience.ErrCircuitOpen
)

// AuthError reports a failed token request
type AuthError struct {
	StatusCode int
	Reason     string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("authentication failed: %d %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportError reports a network failure sending the recognition request
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("recognition request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is a non-success response from the recognition endpoint
type APIError struct {
	StatusCode int
	Reason     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("recognition failed: %d %s", e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("recognition failed: %d %s: %s", e.StatusCode, e.Reason, e.Body)
}

// DecodeError means the response body did not match the expected result shape
type DecodeError struct {
	Body string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding recognition result: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// SourceReadError reports a failure reading the audio source
type SourceReadError struct {
	Source string
	Err    error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("reading %s audio source: %v", e.Source, e.Err)
}

func (e *SourceReadError) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err was caused by a rejected credential
func IsAuthFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return isAuthStatus(apiErr.StatusCode)
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return isAuthStatus(authErr.StatusCode)
	}
	return false
}

// ErrorKind classifies err for metrics and HTTP mapping:
// "auth", "api", "transport", "decode", "source", "canceled" or "internal".
func ErrorKind(err error) string {
	var (
		authErr      *AuthError
		apiErr       *APIError
		transportErr *TransportError
		decodeErr    *DecodeError
		sourceErr    *SourceReadError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &apiErr):
		return "api"
	case errors.As(err, &sourceErr), errors.Is(err, ErrNoAudioSource):
		return "source"
	case errors.As(err, &decodeErr):
		return "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "internal"
	}
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}

// isSuccessStatus accepts 2xx and the provisional 100 Continue
func isSuccessStatus(code int) bool {
	return code == http.StatusContinue || (code >= 200 && code < 300)
}

// reasonPhrase extracts "Forbidden" from a Status such as "403 Forbidden"
func reasonPhrase(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if len(resp.Status) > len(prefix) && resp.Status[:len(prefix)] == prefix {
		return resp.Status[len(prefix):]
	}
	return http.StatusText(resp.StatusCode)
}
