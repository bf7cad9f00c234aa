package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// MapError maps transport-level errors to the perch error taxonomy
func MapError(err error) error {
	if err == nil {
		return nil
	}

	// Propagate context errors as-is
	if errors.Is(err, context.Canceled) {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("deadline exceeded: %w", ErrTransient)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("i/o timeout: %w", ErrTransient)
	}

	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("connection closed: %w", ErrDeliveryFailed)
	}

	return fmt.Errorf("%v: %w", err, ErrInternal)
}

// Wrap wraps an error with context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s: %w", message, err)
}

// IsCategory checks if error belongs to specific category
func IsCategory(err error, category error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, category)
}

// NotFound wraps error as not found
func NotFound(message string) error {
	return fmt.Errorf("%s: %w", message, ErrNotFound)
}

// InvalidInput wraps error as invalid input
func InvalidInput(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidInput)
}

// InvalidPayload wraps error as invalid payload
func InvalidPayload(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidPayload)
}

// Transient wraps error as transient
func Transient(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTransient)
}

// Internal wraps error as internal
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
