package realtime

import (
	"errors"
	"fmt"
)

// Sentinel errors for the realtime package.
var (
	// ErrNotActive indicates an operation that requires an open session.
	ErrNotActive = errors.New("realtime: session not active")

	// ErrAlreadyActive indicates Start was called on an active session.
	ErrAlreadyActive = errors.New("realtime: session already active")

	// ErrMissingCredential indicates the credential service returned no
	// usable secret.
	ErrMissingCredential = errors.New("realtime: missing credential")
)

// CredentialError indicates the credential endpoint rejected the request or
// omitted a usable secret. Fatal to Start.
type CredentialError struct {
	// StatusCode is the HTTP status from the credential endpoint, if any.
	StatusCode int

	// Reason describes what went wrong.
	Reason string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *CredentialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("realtime: credential error (HTTP %d): %s", e.StatusCode, e.Reason)
	}
	if e.Cause != nil {
		return fmt.Sprintf("realtime: credential error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: credential error: %s", e.Reason)
}

func (e *CredentialError) Unwrap() error { return e.Cause }

// NewCredentialError creates a CredentialError.
func NewCredentialError(statusCode int, reason string, cause error) *CredentialError {
	return &CredentialError{StatusCode: statusCode, Reason: reason, Cause: cause}
}

// TransportError indicates the vendor transport failed to open or died
// mid-session. Fatal to Start.
type TransportError struct {
	// Op names the failed operation ("dial", "handshake", "negotiate", ...).
	Op string

	// Cause is the underlying error.
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime: transport error: %s: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// NewTransportError creates a TransportError.
func NewTransportError(op string, cause error) *TransportError {
	return &TransportError{Op: op, Cause: cause}
}

// DeviceError indicates microphone or playback device acquisition failed.
// Fatal to Start; any transport opened earlier in the attempt is released
// before Start returns.
type DeviceError struct {
	Reason string
	Cause  error
}

func (e *DeviceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("realtime: device error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("realtime: device error: %s", e.Reason)
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// NewDeviceError creates a DeviceError.
func NewDeviceError(reason string, cause error) *DeviceError {
	return &DeviceError{Reason: reason, Cause: cause}
}

// Error checking helpers.

// IsCredentialError reports whether err is a CredentialError.
func IsCredentialError(err error) bool {
	var ce *CredentialError
	return errors.As(err, &ce)
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsDeviceError reports whether err is a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}
