// Package util provides shared utility types for the MCP router.
//
// # Error Conventions
//
// This project follows a standardized error pattern across all packages:
//
//   - Sentinel errors (errors.New) for well-known, stable conditions
//     that callers check with errors.Is(). Example: ErrNoAvailableServer.
//   - Structured error types for context-rich errors that carry
//     additional fields (e.g., ConfigError, RoutingError). Each type
//     implements Error(), Unwrap() (if wrapping), and Is().
//   - fmt.Errorf with %w for ad-hoc wrapping that adds context to an
//     existing error without introducing a new type.
package util

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common sentinel errors.
var (
	ErrUnknownEnvironment = errors.New("unknown environment")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrNoAvailableServer  = errors.New("no available server")
	ErrServerUnavailable  = errors.New("requested server unavailable")
	ErrProbeFailed        = errors.New("health probe failed")
	ErrProbeTimeout       = errors.New("health probe timed out")
	ErrServerNotFound     = errors.New("server not found")
)

// ConfigError represents a configuration-related error.
type ConfigError struct {
	Field   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config error at %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("config error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ConfigError) Is(target error) bool {
	if target == ErrInvalidConfig {
		return true
	}
	_, ok := target.(*ConfigError)
	return ok || errors.Is(e.Cause, target)
}

// NewConfigError creates a new ConfigError.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// ValidationErrors is a collection of field-level validation messages.
// A non-empty collection blocks config activation.
type ValidationErrors []string

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0]
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, msg := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, msg))
	}
	return sb.String()
}

// Is checks if the error matches the target.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig
}

// HasErrors returns true if there are validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// RoutingError represents a routing decision failure.
type RoutingError struct {
	RoutingKey string
	ServerID   string
	Message    string
	Sentinel   error
}

// Error implements the error interface.
func (e *RoutingError) Error() string {
	if e.ServerID != "" {
		return fmt.Sprintf("routing %q to server %s: %s", e.RoutingKey, e.ServerID, e.Message)
	}
	return fmt.Sprintf("routing %q: %s", e.RoutingKey, e.Message)
}

// Unwrap returns the sentinel this error maps to.
func (e *RoutingError) Unwrap() error {
	return e.Sentinel
}

// Is checks if the error matches the target.
func (e *RoutingError) Is(target error) bool {
	if target == e.Sentinel {
		return true
	}
	_, ok := target.(*RoutingError)
	return ok
}

// NewNoAvailableServerError creates a RoutingError for an exhausted candidate set.
func NewNoAvailableServerError(routingKey string) *RoutingError {
	return &RoutingError{
		RoutingKey: routingKey,
		Message:    "no candidate server remains after filtering",
		Sentinel:   ErrNoAvailableServer,
	}
}

// NewServerUnavailableError creates a RoutingError for an explicitly requested
// server that is unknown or not live.
func NewServerUnavailableError(routingKey, serverID, reason string) *RoutingError {
	return &RoutingError{
		RoutingKey: routingKey,
		ServerID:   serverID,
		Message:    reason,
		Sentinel:   ErrServerUnavailable,
	}
}

// ProbeError represents a failed liveness probe. It is recorded into health
// stats, never propagated out of the monitor's check loop.
type ProbeError struct {
	ServerID string
	Timeout  bool
	Duration time.Duration
	Cause    error
}

// Error implements the error interface.
func (e *ProbeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("probe for %s timed out after %v", e.ServerID, e.Duration)
	}
	if e.Cause != nil {
		return fmt.Sprintf("probe for %s failed: %v", e.ServerID, e.Cause)
	}
	return fmt.Sprintf("probe for %s failed", e.ServerID)
}

// Unwrap returns the underlying error.
func (e *ProbeError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ProbeError) Is(target error) bool {
	if e.Timeout && target == ErrProbeTimeout {
		return true
	}
	if target == ErrProbeFailed {
		return true
	}
	_, ok := target.(*ProbeError)
	return ok || errors.Is(e.Cause, target)
}

// NewProbeError creates a ProbeError for a transport or status failure.
func NewProbeError(serverID string, cause error) *ProbeError {
	return &ProbeError{ServerID: serverID, Cause: cause}
}

// NewProbeTimeoutError creates a ProbeError for a timed-out probe.
func NewProbeTimeoutError(serverID string, d time.Duration) *ProbeError {
	return &ProbeError{ServerID: serverID, Timeout: true, Duration: d}
}

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsRoutingError returns true if the error is an expected, recoverable
// routing failure that the caller should surface as a 5xx-equivalent.
func IsRoutingError(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNoAvailableServer) || errors.Is(err, ErrServerUnavailable)
}
