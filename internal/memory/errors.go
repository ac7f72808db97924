package memory

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is; the concrete error carries context.
var (
	ErrValidation         = errors.New("validation error")
	ErrEmbeddingProvider  = errors.New("embedding provider error")
	ErrBackendUnavailable = errors.New("vector backend unavailable")
	ErrNotFound           = errors.New("memory not found")
	ErrTransient          = errors.New("transient failure")
)

// Classify tags cause with kind. A deadline cause is additionally tagged
// ErrTransient; a cancelled context is the caller giving up and is not.
func Classify(kind, cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, kind) {
		return cause
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", kind, ErrTransient, cause)
	}
	return fmt.Errorf("%w: %w", kind, cause)
}
