package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. Local and dev environments get a
// human-readable development logger; everything else logs JSON.
func NewLogger(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	switch env {
	case "local", "dev", "development":
		logger, err = zap.NewDevelopment()
	default:
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// SanitizedError wraps err so that its message is passed through SanitizeError
// while errors.Is and errors.As still see the original.
func SanitizedError(err error) error {
	if err == nil {
		return nil
	}
	return &sanitizedError{err: err}
}

type sanitizedError struct {
	err error
}

func (e *sanitizedError) Error() string {
	return SanitizeError(e.err)
}

func (e *sanitizedError) Unwrap() error {
	return e.err
}
