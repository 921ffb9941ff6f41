package linqpipe

import (
	"errors"
	"fmt"
)

// Sentinel targets for errors.Is. The concrete errors below carry
// structured context; callers that only care about the error class can
// still match against these with errors.Is.
var (
	// ErrUnsupportedExpression is the errors.Is target for
	// UnsupportedExpressionError.
	ErrUnsupportedExpression = errors.New("linqpipe: unsupported expression")

	// ErrInternalInvariantViolation is the errors.Is target for
	// InternalInvariantViolationError.
	ErrInternalInvariantViolation = errors.New("linqpipe: internal invariant violation")

	// ErrAmbiguousOrdering is the errors.Is target for
	// AmbiguousOrderingError.
	ErrAmbiguousOrdering = errors.New("linqpipe: ambiguous ordering")

	// ErrEmptyPipeline is returned when a Pipeline with no stages is given
	// to Build — a Pipeline must carry at least one stage.
	ErrEmptyPipeline = errors.New("linqpipe: empty pipeline")
)

// UnsupportedExpressionError reports an expression node or member/method
// call the translator does not recognize. Subtree is the printable form
// of the offending node (see describe.go); Stage names the containing
// pipeline stage, or "" if the expression was translated outside any
// stage.
type UnsupportedExpressionError struct {
	Subtree string
	Stage   string
}

func (e *UnsupportedExpressionError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("linqpipe: unsupported expression: %s", e.Subtree)
	}
	return fmt.Sprintf("linqpipe: unsupported expression in %s stage: %s", e.Stage, e.Subtree)
}

// Is reports whether target is ErrUnsupportedExpression, so callers can
// use errors.Is(err, linqpipe.ErrUnsupportedExpression) without caring
// about the field values.
func (e *UnsupportedExpressionError) Is(target error) bool {
	return target == ErrUnsupportedExpression
}

func unsupportedExpr(e any, stage string) error {
	return &UnsupportedExpressionError{Subtree: describeAny(e), Stage: stage}
}

// InternalInvariantViolationError indicates a bug in the caller or the
// translator itself: an accumulator kind the table does not cover, or a
// non-constructor node reaching the projection mapper.
type InternalInvariantViolationError struct {
	Detail string
}

func (e *InternalInvariantViolationError) Error() string {
	return fmt.Sprintf("linqpipe: internal invariant violation: %s", e.Detail)
}

func (e *InternalInvariantViolationError) Is(target error) bool {
	return target == ErrInternalInvariantViolation
}

func internalInvariant(format string, args ...any) error {
	return &InternalInvariantViolationError{Detail: fmt.Sprintf(format, args...)}
}

// AmbiguousOrderingError reports a sort specification that names the same
// field more than once, even in opposite directions.
type AmbiguousOrderingError struct {
	Field string
}

func (e *AmbiguousOrderingError) Error() string {
	return fmt.Sprintf("linqpipe: ambiguous ordering: field %q appears more than once in sort specification", e.Field)
}

func (e *AmbiguousOrderingError) Is(target error) bool {
	return target == ErrAmbiguousOrdering
}

func ambiguousOrdering(field string) error {
	return &AmbiguousOrderingError{Field: field}
}
