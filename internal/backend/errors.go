package backend

import (
	"context"
	"errors"
	"fmt"

	"veritas/internal/types"
)

// ErrEmptySubmission is returned when neither text nor attachment is present.
var ErrEmptySubmission = errors.New("submission has neither text nor attachment")

// ErrAttachmentTooLarge is returned when an attachment exceeds the upload cap.
var ErrAttachmentTooLarge = errors.New("attachment exceeds upload limit")

// Error is returned by every Client call that produced no result.
type Error struct {
	Stage      types.Stage
	Kind       types.FailureKind
	StatusCode int
	// Body holds the start of a non-2xx response body.
	Body      string
	RequestID string
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status %d: %s", e.Stage, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Stage, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether an idempotent call may be repeated after this error.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case types.FailureTransport:
		return true
	case types.FailureStatus:
		return e.StatusCode >= 500 || e.StatusCode == 429
	}
	return false
}

// classifyTransport maps an error from http.Client.Do to a failure kind.
func classifyTransport(err error) types.FailureKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.FailureTimeout
	case errors.Is(err, context.Canceled):
		return types.FailureCanceled
	default:
		return types.FailureTransport
	}
}

// FailureOf converts any error from a Client call into a Failure.
func FailureOf(stage types.Stage, err error) types.Failure {
	var be *Error
	if errors.As(err, &be) {
		reason := be.Body
		if reason == "" && be.Err != nil {
			reason = be.Err.Error()
		}
		if reason == "" {
			reason = string(be.Kind)
		}
		return types.Failure{Stage: be.Stage, Kind: be.Kind, StatusCode: be.StatusCode, Reason: reason}
	}
	return types.Failure{Stage: stage, Kind: classifyTransport(err), Reason: err.Error()}
}

// ToOutcome folds a (value, error) pair into an explicit Outcome.
func ToOutcome[T any](stage types.Stage, v T, err error) types.Outcome[T] {
	if err != nil {
		return types.Failed[T](FailureOf(stage, err))
	}
	return types.Succeeded(v)
}
