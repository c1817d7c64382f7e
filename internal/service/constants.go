package service

import "errors"

// Health status constants
const (
	HealthStatusHealthy   = "healthy"
	HealthStatusUnhealthy = "unhealthy"
)

// Validation error messages
const (
	ErrGateRequiredMessage = "gate is required"
	ErrKeyRequiredMessage  = "key is required"
	ErrGateNotFoundMessage = "gate not found"
)

// Custom error types
var (
	ErrGateRequired = errors.New(ErrGateRequiredMessage)
	ErrKeyRequired  = errors.New(ErrKeyRequiredMessage)
	ErrGateNotFound = errors.New(ErrGateNotFoundMessage)
)

// IsValidationError reports whether err was caused by a malformed request.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrGateRequired) || errors.Is(err, ErrKeyRequired)
}
