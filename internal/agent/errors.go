package agent

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNoMessages     = errors.New("no messages")
	ErrInvalidRole    = errors.New("invalid message role")
	ErrPromptTooLarge = errors.New("prompt exceeds limit")
	ErrRateLimited    = errors.New("rate limited")
	ErrServerError    = errors.New("server error")
	ErrNoChoices      = errors.New("response has no choices")
	ErrNoAPIKey       = errors.New("API key not configured")
)

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Is lets errors.Is match the rate-limit and server-error sentinels.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrRateLimited:
		return e.StatusCode == 429
	case ErrServerError:
		return e.StatusCode >= 500
	}
	return false
}

// IsRetryable reports whether another attempt could succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, context.DeadlineExceeded)
}
