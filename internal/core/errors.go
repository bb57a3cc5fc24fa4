package core

import (
	"context"
	"errors"
	"fmt"
)

// ErrInvalidBatchSize is returned when a batch is empty or exceeds the limit.
// No document is processed in that case.
var ErrInvalidBatchSize = errors.New("invalid batch size")

// ErrEmptyBatch is returned for a batch without documents.
var ErrEmptyBatch = fmt.Errorf("%w: at least one document is required", ErrInvalidBatchSize)

// ErrBatchTooLarge is returned for a batch over the configured limit.
var ErrBatchTooLarge = fmt.Errorf("%w: too many documents", ErrInvalidBatchSize)

// ErrCancelledBatch is returned when the caller cancels a run.
// A cancelled run produces no report.
var ErrCancelledBatch = errors.New("batch cancelled")

// FailureKind classifies adapter failures.
type FailureKind string

const (
	KindNotFound   FailureKind = "notFound"
	KindUnreadable FailureKind = "unreadable"
	KindTimeout    FailureKind = "timeout"
	KindNetwork    FailureKind = "network"
)

// ExtractionError is a terminal, per-document extraction failure.
type ExtractionError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction %s: %s", e.Kind, e.Detail)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RegistryError is a soft, per-document registry failure.
type RegistryError struct {
	Kind   FailureKind
	Detail string
	Err    error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry unavailable (%s): %s", e.Kind, e.Detail)
}

func (e *RegistryError) Unwrap() error { return e.Err }

// asExtractionError normalizes any adapter error into an ExtractionError.
// Deadline errors become KindTimeout; anything untyped is KindNetwork.
func asExtractionError(err error) *ExtractionError {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExtractionError{Kind: KindTimeout, Detail: TimeoutDetail(err), Err: err}
	}
	return &ExtractionError{Kind: KindNetwork, Detail: err.Error(), Err: err}
}

// asRegistryError normalizes any adapter error into a RegistryError.
func asRegistryError(err error) *RegistryError {
	var re *RegistryError
	if errors.As(err, &re) {
		return re
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RegistryError{Kind: KindTimeout, Detail: TimeoutDetail(err), Err: err}
	}
	return &RegistryError{Kind: KindNetwork, Detail: err.Error(), Err: err}
}

// TimeoutDetail describes a deadline error so the word "timeout" survives into
// the document's errorDetail.
func TimeoutDetail(err error) string {
	return "timeout: " + err.Error()
}
