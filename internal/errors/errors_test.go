package errors

import (
	"errors"
	"fmt"
	"testing"
)

// -----------------------------------------------------------------------------
// Severity Tests
// -----------------------------------------------------------------------------

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityDebug, "debug"},
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
		{Severity(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.severity.String(); got != tt.want {
				t.Errorf("Severity.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// SessionError Tests
// -----------------------------------------------------------------------------

func TestNewSessionError(t *testing.T) {
	err := NewSessionError("failed to open file", ErrResourceOpen)

	if err.message != "failed to open file" {
		t.Errorf("message = %q, want %q", err.message, "failed to open file")
	}
	if err.cause != ErrResourceOpen {
		t.Errorf("cause = %v, want %v", err.cause, ErrResourceOpen)
	}
	if err.Severity() != SeverityError {
		t.Errorf("Severity() = %v, want %v", err.Severity(), SeverityError)
	}
	if err.IsRetryable() {
		t.Error("IsRetryable() = true, want false")
	}
	if !err.IsUserFacing() {
		t.Error("IsUserFacing() = false, want true")
	}
}

func TestSessionError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *SessionError
		want string
	}{
		{
			name: "basic error",
			err:  NewSessionError("test error", nil),
			want: "session error: test error",
		},
		{
			name: "with cause",
			err:  NewSessionError("test error", ErrInvalidPriority),
			want: "session error: test error: invalid priority",
		},
		{
			name: "with session ID",
			err:  NewSessionError("test error", nil).WithSessionID("abc123"),
			want: "session error [session=abc123]: test error",
		},
		{
			name: "with session ID and channel",
			err:  NewSessionError("test error", ErrResourceOpen).WithSessionID("xyz").WithChannel(7),
			want: "session error [session=xyz, channel=7]: test error: failed to open resource",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionError_Is(t *testing.T) {
	err := NewSessionError("test", ErrPriorityApply).WithSessionID("abc")

	if !Is(err, &SessionError{}) {
		t.Error("Is(err, &SessionError{}) = false, want true")
	}
	if !Is(err, ErrPriorityApply) {
		t.Error("Is(err, ErrPriorityApply) = false, want true")
	}
	if Is(err, ErrResourceOpen) {
		t.Error("Is(err, ErrResourceOpen) = true, want false")
	}
}

func TestSessionError_Unwrap(t *testing.T) {
	err := NewSessionError("test", ErrAccessDenied)
	if Unwrap(err) != ErrAccessDenied {
		t.Errorf("Unwrap() = %v, want %v", Unwrap(err), ErrAccessDenied)
	}
}

// -----------------------------------------------------------------------------
// ProtocolError Tests
// -----------------------------------------------------------------------------

func TestProtocolError_Error(t *testing.T) {
	err := NewProtocolError("unrecognized envelope", ErrUnknownKind).WithKind("kind(42)").WithChannel(3)
	want := "protocol error [kind=kind(42), channel=3]: unrecognized envelope: unknown envelope kind"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestProtocolError_Is(t *testing.T) {
	err := fmt.Errorf("receive: %w", NewProtocolError("bad", ErrUnknownKind))

	if !Is(err, &ProtocolError{}) {
		t.Error("Is(err, &ProtocolError{}) = false, want true")
	}
	if !Is(err, ErrUnknownKind) {
		t.Error("Is(err, ErrUnknownKind) = false, want true")
	}

	var protoErr *ProtocolError
	if !As(err, &protoErr) {
		t.Fatal("As(err, *ProtocolError) = false, want true")
	}
}

// -----------------------------------------------------------------------------
// TransportError Tests
// -----------------------------------------------------------------------------

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("redis", "send", cause)

	if want := "transport error [backend=redis]: send: connection refused"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !err.IsRetryable() {
		t.Error("IsRetryable() = false, want true by default")
	}
	if err.WithRetryable(false).IsRetryable() {
		t.Error("IsRetryable() = true after WithRetryable(false)")
	}
	if !Is(err, cause) {
		t.Error("Is(err, cause) = false, want true")
	}
	if IsUserFacing(err) {
		t.Error("IsUserFacing() = true, want false for transport errors")
	}
}

// -----------------------------------------------------------------------------
// Semantic Error Tests
// -----------------------------------------------------------------------------

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("session", "sess-1")
	if want := "session 'sess-1' not found"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	withCause := NewNotFoundError("mailbox", "/tmp/x").WithCause(ErrMailboxNotFound)
	if !Is(withCause, ErrMailboxNotFound) {
		t.Error("Is(err, ErrMailboxNotFound) = false, want true")
	}
	if !Is(withCause, &NotFoundError{}) {
		t.Error("Is(err, &NotFoundError{}) = false, want true")
	}
}

func TestValidationError(t *testing.T) {
	tests := []struct {
		name string
		err  *ValidationError
		want string
	}{
		{
			name: "message only",
			err:  NewValidationError("priority out of range"),
			want: "validation error: priority out of range",
		},
		{
			name: "field and value",
			err:  NewValidationError("priority out of range").WithField("priority").WithValue(99),
			want: "validation error [field=priority, value=99]: priority out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
			if !Is(tt.err, ErrInvalidInput) {
				t.Error("Is(err, ErrInvalidInput) = false, want true")
			}
		})
	}
}

// -----------------------------------------------------------------------------
// Classification Tests
// -----------------------------------------------------------------------------

func TestGetSeverity(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Severity
	}{
		{"nil", nil, SeverityDebug},
		{"plain", errors.New("x"), SeverityError},
		{"validation", NewValidationError("x"), SeverityWarning},
		{"session critical", NewSessionError("x", nil).WithSeverity(SeverityCritical), SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetSeverity(tt.err); got != tt.want {
				t.Errorf("GetSeverity() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"usage", Wrap(ErrUsage, "fetch"), ExitUsage},
		{"interrupted", fmt.Errorf("client: %w", ErrInterrupted), ExitInterrupted},
		{"protocol", ErrProtocolViolation, ExitFailure},
		{"other", errors.New("boom"), ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	err := Wrap(ErrMailboxClosed, "receive")
	if err.Error() != "receive: mailbox closed" {
		t.Errorf("Wrap() = %q", err.Error())
	}
	if !Is(err, ErrMailboxClosed) {
		t.Error("Wrap() should preserve the chain")
	}

	errf := Wrapf(ErrSessionNotFound, "cancel %s", "sess-9")
	if errf.Error() != "cancel sess-9: session not found" {
		t.Errorf("Wrapf() = %q", errf.Error())
	}
}
