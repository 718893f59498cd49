// Package awserr maps AWS SDK failures onto the service-wide error
// taxonomy. Every capability client runs its SDK errors through Classify
// so the orchestrator and handlers never inspect smithy errors directly.
package awserr

import (
	goerrors "errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ConflictError indicates a name/uniqueness collision; callers must not
// retry with the same inputs. CreatePolicy collisions surface here and are
// relied upon as the backstop for concurrent provisioning of one tenant.
type ConflictError struct{ Cause error }

func (e *ConflictError) Error() string { return fmt.Sprintf("conflict: %v", e.Cause) }
func (e *ConflictError) Unwrap() error { return e.Cause }

// NotFoundError indicates the referenced resource does not exist.
type NotFoundError struct{ Cause error }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %v", e.Cause) }
func (e *NotFoundError) Unwrap() error { return e.Cause }

// RetryableError indicates the request may succeed on retry with backoff.
// No layer of this service retries; the category is surfaced so callers can.
type RetryableError struct{ Cause error }

func (e *RetryableError) Error() string { return fmt.Sprintf("retryable: %v", e.Cause) }
func (e *RetryableError) Unwrap() error { return e.Cause }

// OpError is a generic wrapper for unexpected provider failures.
type OpError struct{ Cause error }

func (e *OpError) Error() string { return fmt.Sprintf("op error: %v", e.Cause) }
func (e *OpError) Unwrap() error { return e.Cause }

// Classify maps smithy errors to the categories above.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var api smithy.APIError
	if goerrors.As(err, &api) {
		switch api.ErrorCode() {
		case "EntityAlreadyExists", "UsernameExistsException", "AliasExistsException",
			"ConditionalCheckFailedException", "ResourceConflictException":
			return &ConflictError{Cause: err}
		case "NoSuchEntity", "ResourceNotFoundException", "UserNotFoundException":
			return &NotFoundError{Cause: err}
		case "Throttling", "ThrottlingException", "TooManyRequestsException",
			"ProvisionedThroughputExceededException", "RequestLimitExceeded",
			"LimitExceededException", "ServiceUnavailable":
			return &RetryableError{Cause: err}
		}
	}
	return &OpError{Cause: err}
}

// Code extracts the provider error code when present, else "".
func Code(err error) string {
	var api smithy.APIError
	if goerrors.As(err, &api) {
		return api.ErrorCode()
	}
	return ""
}

// IsConflict reports whether err classifies as a uniqueness collision.
func IsConflict(err error) bool {
	var c *ConflictError
	return goerrors.As(err, &c)
}

// IsNotFound reports whether err classifies as a missing resource.
func IsNotFound(err error) bool {
	var n *NotFoundError
	return goerrors.As(err, &n)
}
