package app

import (
	"errors"
	"fmt"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrTaskNotFound     = errors.New("generation task not found")
	ErrCancelled        = errors.New("generation cancelled")
)

// UpstreamError wraps failures of external collaborators (parser,
// embedder, generator, queue) and tells the caller whether retrying the
// same request can help.
type UpstreamError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s upstream failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

func upstream(op string, retryable bool, err error) error {
	return &UpstreamError{Op: op, Retryable: retryable, Err: err}
}
