package types

import "fmt"

// FailureKind classifies why a stage fetch produced no result.
type FailureKind string

const (
	FailureTransport FailureKind = "transport" // connection refused, reset, DNS
	FailureStatus    FailureKind = "status"    // non-2xx response
	FailureDecode    FailureKind = "decode"    // body was not the expected JSON
	FailureInvalid   FailureKind = "invalid"   // decoded but rejected by Validate
	FailureTimeout   FailureKind = "timeout"
	FailureCanceled  FailureKind = "canceled"
	FailureRefused   FailureKind = "refused" // rejected client-side before sending
)

// Failure describes a stage fetch that produced no result.
type Failure struct {
	Stage      Stage       `json:"stage"`
	Kind       FailureKind `json:"kind"`
	StatusCode int         `json:"status_code,omitempty"`
	Reason     string      `json:"reason"`
}

func (f Failure) Error() string {
	if f.StatusCode != 0 {
		return fmt.Sprintf("%s failed (%s %d): %s", f.Stage, f.Kind, f.StatusCode, f.Reason)
	}
	return fmt.Sprintf("%s failed (%s): %s", f.Stage, f.Kind, f.Reason)
}

// Outcome is the result of one stage fetch: either a value or a failure, never both.
type Outcome[T any] struct {
	Value   T
	Failure *Failure
}

// Succeeded wraps a value.
func Succeeded[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Failed wraps a failure.
func Failed[T any](f Failure) Outcome[T] {
	return Outcome[T]{Failure: &f}
}

// OK reports whether the outcome carries a value.
func (o Outcome[T]) OK() bool {
	return o.Failure == nil
}
