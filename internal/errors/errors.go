package errors

import (
	"errors"
)

// Sentinel errors for different categories
var (
	// ErrInvalidPayload - connection carried bytes that do not decode to one event
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrEmptyPayload - connection produced no bytes before the read timeout
	ErrEmptyPayload = errors.New("empty payload")

	// ErrUncorrelated - permission request with no tool use id from any source
	ErrUncorrelated = errors.New("uncorrelated permission request")

	// ErrNotFound - no matching pending permission or session
	ErrNotFound = errors.New("not found")

	// ErrBusy - concurrency ceiling reached, connection rejected
	ErrBusy = errors.New("too many connections")

	// ErrDeliveryFailed - decision could not be written to the held connection
	ErrDeliveryFailed = errors.New("decision delivery failed")

	// ErrInvalidInput - caller supplied a malformed argument
	ErrInvalidInput = errors.New("invalid input")

	// ErrTransient - transient condition, safe to retry
	ErrTransient = errors.New("transient error")

	// ErrInternal - internal error, not actionable by the caller
	ErrInternal = errors.New("internal error")
)
