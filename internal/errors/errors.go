// Package errors provides centralized error definitions and error handling utilities
// for mqfetch. It defines sentinel errors for every failure the session protocol
// can hit, typed errors that carry session and channel context, and helpers that
// classify errors for logging and for the CLI exit status.
//
// # Error Types
//
// Domain-specific errors:
//   - SessionError: failures inside a session worker (priority, resource, handshake)
//   - ProtocolError: malformed or unrecognized envelopes
//   - TransportError: mailbox backend failures (file system, redis)
//
// Semantic errors:
//   - NotFoundError: a mailbox, session or resource does not exist
//   - ValidationError: invalid input or state
//
// # Usage
//
//	err := errors.NewSessionError("failed to open file", errors.ErrResourceOpen).
//	    WithSessionID(id).WithChannel(int64(ch))
//
//	if errors.Is(err, errors.ErrResourceOpen) { ... }
//
//	var protoErr *errors.ProtocolError
//	if errors.As(err, &protoErr) { ... }
//
//	os.Exit(errors.ExitCode(err))
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Mailbox-related sentinel errors
var (
	// ErrMailboxClosed indicates the mailbox was destroyed. Receive loops treat it as end of stream.
	ErrMailboxClosed = New("mailbox closed")
	// ErrMailboxNotFound indicates no dispatcher has created the mailbox.
	ErrMailboxNotFound = New("mailbox not found")
	// ErrReservedChannel indicates an attempt to use a reserved channel as a session channel.
	ErrReservedChannel = New("reserved channel")
	// ErrServerLocked indicates another dispatcher already owns the mailbox.
	ErrServerLocked = New("mailbox is owned by another server")
)

// Session-related sentinel errors
var (
	// ErrInvalidPriority indicates a requested priority outside the configured range.
	ErrInvalidPriority = New("invalid priority")
	// ErrAccessDenied indicates a resource path outside the allowed patterns.
	ErrAccessDenied = New("access denied")
	// ErrResourceOpen indicates the requested resource could not be opened.
	ErrResourceOpen = New("failed to open resource")
	// ErrResourceRead indicates a read from an opened resource failed.
	ErrResourceRead = New("failed to read resource")
	// ErrPriorityApply indicates the scheduling priority could not be applied.
	ErrPriorityApply = New("failed to set priority")
	// ErrSessionNotFound indicates that a session id is not registered.
	ErrSessionNotFound = New("session not found")
	// ErrSessionCancelled indicates the session was cancelled out of band.
	ErrSessionCancelled = New("session cancelled")
)

// Protocol-related sentinel errors
var (
	// ErrUnknownKind indicates an envelope kind outside the protocol.
	ErrUnknownKind = New("unknown envelope kind")
	// ErrInvalidEnvelope indicates a payload that does not match its kind.
	ErrInvalidEnvelope = New("invalid envelope")
	// ErrProtocolViolation indicates the client observed an envelope it cannot handle.
	ErrProtocolViolation = New("protocol violation")
)

// General sentinel errors
var (
	// ErrInterrupted indicates a local interrupt ended the operation.
	ErrInterrupted = New("interrupted")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrUsage indicates the command line was malformed.
	ErrUsage = New("usage error")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ClassifiedError is the base interface for all typed mqfetch errors.
type ClassifiedError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display to end users.
	IsUserFacing() bool
}

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// format renders "prefix [k=v, ...]: message: cause".
func (e *baseError) format(prefix string, parts []string) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SessionError represents a failure inside a session worker.
//
// Example:
//
//	err := errors.NewSessionError("failed to open file", errors.ErrResourceOpen).WithSessionID("sess-1")
//	fmt.Println(err) // "session error [session=sess-1]: failed to open file: failed to open resource"
type SessionError struct {
	baseError
	SessionID string
	Channel   int64
}

// NewSessionError creates a new SessionError.
func NewSessionError(message string, cause error) *SessionError {
	return &SessionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithSessionID adds a session ID to the error context.
func (e *SessionError) WithSessionID(id string) *SessionError {
	e.SessionID = id
	return e
}

// WithChannel adds the session channel to the error context.
func (e *SessionError) WithChannel(ch int64) *SessionError {
	e.Channel = ch
	return e
}

// WithSeverity sets the error severity.
func (e *SessionError) WithSeverity(s Severity) *SessionError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *SessionError) Error() string {
	var parts []string
	if e.SessionID != "" {
		parts = append(parts, fmt.Sprintf("session=%s", e.SessionID))
	}
	if e.Channel != 0 {
		parts = append(parts, fmt.Sprintf("channel=%d", e.Channel))
	}
	return e.format("session error", parts)
}

// Is checks if this error matches the target.
func (e *SessionError) Is(target error) bool {
	if _, ok := target.(*SessionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ProtocolError represents an envelope that breaks the protocol.
type ProtocolError struct {
	baseError
	Kind    string
	Channel int64
}

// NewProtocolError creates a new ProtocolError.
func NewProtocolError(message string, cause error) *ProtocolError {
	return &ProtocolError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			userFacing: true,
		},
	}
}

// WithKind adds the offending envelope kind to the error context.
func (e *ProtocolError) WithKind(kind string) *ProtocolError {
	e.Kind = kind
	return e
}

// WithChannel adds the channel the envelope arrived on.
func (e *ProtocolError) WithChannel(ch int64) *ProtocolError {
	e.Channel = ch
	return e
}

// Error returns the formatted error message.
func (e *ProtocolError) Error() string {
	var parts []string
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}
	if e.Channel != 0 {
		parts = append(parts, fmt.Sprintf("channel=%d", e.Channel))
	}
	return e.format("protocol error", parts)
}

// Is checks if this error matches the target.
func (e *ProtocolError) Is(target error) bool {
	if _, ok := target.(*ProtocolError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// TransportError represents a failure of the mailbox backend.
type TransportError struct {
	baseError
	Backend string
	Op      string
}

// NewTransportError creates a new TransportError. Transport errors are
// retryable by default since most backends fail transiently.
func NewTransportError(backend, op string, cause error) *TransportError {
	return &TransportError{
		baseError: baseError{
			message:   op,
			cause:     cause,
			severity:  SeverityError,
			retryable: true,
		},
		Backend: backend,
		Op:      op,
	}
}

// WithRetryable sets whether the error is retryable.
func (e *TransportError) WithRetryable(r bool) *TransportError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TransportError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	return e.format("transport error", parts)
}

// Is checks if this error matches the target.
func (e *TransportError) Is(target error) bool {
	if _, ok := target.(*TransportError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return e.format("validation error", parts)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsRetryable()
	}
	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	var classified ClassifiedError
	if As(err, &classified) {
		return classified.IsUserFacing()
	}
	return Is(err, ErrUsage) || Is(err, ErrMailboxNotFound) || Is(err, ErrServerLocked) || Is(err, ErrInvalidInput)
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ClassifiedError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}
	var classified ClassifiedError
	if As(err, &classified) {
		return classified.Severity()
	}
	return SeverityError
}

// Exit statuses used by the CLI.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitUsage       = 2
	ExitInterrupted = 130
)

// ExitCode maps an error returned by a command to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case Is(err, ErrUsage):
		return ExitUsage
	case Is(err, ErrInterrupted):
		return ExitInterrupted
	default:
		return ExitFailure
	}
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
