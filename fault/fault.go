// Package fault defines the error taxonomy shared by the ingestion
// pipeline and the search path. Every stage classifies failures against
// these sentinels to decide between retry, dead-letter and client error.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks client-caused failures. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient marks dependency failures worth retrying with backoff:
	// queue lease loss, store timeouts, embedding timeouts and rate limits.
	ErrTransient = errors.New("transient dependency error")

	// ErrPermanentExtraction marks content that cannot be parsed.
	ErrPermanentExtraction = errors.New("permanent extraction error")

	// ErrEmbeddingUnavailable is surfaced while the embedding circuit is
	// open. Search degrades to filter-only; ingestion retries later.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrConflict means a conditional update lost the race. The caller
	// re-reads and retries its own logic, never overwrites blindly.
	ErrConflict = errors.New("consistency conflict")

	ErrNotFound = errors.New("not found")
)

func Invalid(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidInput)...)
}

func Transient(err error, op string) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrTransient)
}

func Permanent(err error, op string) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrPermanentExtraction)
}

func IsInvalid(err error) bool     { return errors.Is(err, ErrInvalidInput) }
func IsTransient(err error) bool   { return errors.Is(err, ErrTransient) }
func IsPermanent(err error) bool   { return errors.Is(err, ErrPermanentExtraction) }
func IsUnavailable(err error) bool { return errors.Is(err, ErrEmbeddingUnavailable) }
func IsConflict(err error) bool    { return errors.Is(err, ErrConflict) }
func IsNotFound(err error) bool    { return errors.Is(err, ErrNotFound) }

// Retryable reports whether a pipeline stage should nack the task for
// another delivery instead of escalating immediately. Parse failures stay
// retryable so the dead-letter bound holds at exactly maxAttempts; they
// are still reported as permanent in events.
func Retryable(err error) bool {
	return IsTransient(err) || IsUnavailable(err) || IsPermanent(err)
}
