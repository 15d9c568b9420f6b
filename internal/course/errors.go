package course

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this module wraps exactly one of them.
var (
	// ErrInput covers bad caller input and data that cannot support an operation.
	ErrInput = errors.New("input error")
	// ErrConsistency covers violated invariants in stored or derived data.
	ErrConsistency = errors.New("consistency error")
	// ErrTransport covers failures talking to an external collaborator.
	ErrTransport = errors.New("transport error")
)

var (
	ErrInsufficientData           = fmt.Errorf("%w: insufficient data", ErrInput)
	ErrInsufficientSessions       = fmt.Errorf("%w: insufficient sessions", ErrInput)
	ErrEmptyIndex                 = fmt.Errorf("%w: empty index", ErrInput)
	ErrSessionNotFound            = fmt.Errorf("%w: session not found", ErrInput)
	ErrTopicNotFound              = fmt.Errorf("%w: topic not found", ErrInput)
	ErrDuplicateSessionOrder      = fmt.Errorf("%w: session order already used", ErrInput)
	ErrEmbeddingDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", ErrConsistency)
	ErrGraphInvariantViolation    = fmt.Errorf("%w: graph invariant violation", ErrConsistency)
)

// Pipeline stages reported in StageError.
const (
	StageIngest   = "ingest"
	StageEmbed    = "embed"
	StageCluster  = "cluster"
	StageBuild    = "build"
	StageCommit   = "commit"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
)

// StageError records which course and pipeline stage an error came from.
type StageError struct {
	Course string
	Stage  string
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed for course %s: %v", e.Stage, e.Course, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// WrapStage attaches course and stage context. Errors that already carry a
// StageError are returned unchanged.
func WrapStage(courseID, stage string, err error) error {
	if err == nil {
		return nil
	}
	var se *StageError
	if errors.As(err, &se) {
		return err
	}
	return &StageError{Course: courseID, Stage: stage, Err: err}
}

// ErrorfInput builds an ErrInput with a message.
func ErrorfInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// ErrorfConsistency builds an ErrConsistency with a message.
func ErrorfConsistency(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

// Class returns "input", "consistency", "transport" or "unknown".
func Class(err error) string {
	switch {
	case errors.Is(err, ErrInput):
		return "input"
	case errors.Is(err, ErrConsistency):
		return "consistency"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unknown"
	}
}
