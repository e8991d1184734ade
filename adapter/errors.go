package adapter

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrCapabilityUnavailable means the platform lacks the transport
	// (no libusb, no serial subsystem). Not retryable.
	ErrCapabilityUnavailable = errors.New("transport capability unavailable")
	// ErrPermissionDenied is not retryable until access is granted.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConnectionTimeout is returned when a connect attempt runs out of time.
	ErrConnectionTimeout = errors.New("connection timed out")
	// ErrTransmission marks failures while sending an open session.
	ErrTransmission = errors.New("transmission failed")
	// ErrUnsupported is returned for unknown connection kinds.
	ErrUnsupported = errors.New("unsupported")
	ErrNotConnected = errors.New("not connected")
	// ErrReconnectExhausted means a transport gave up re-establishing a
	// dropped session.
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// ConnectionError reports a failed connect attempt.
type ConnectionError struct {
	Kind    Kind
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s connect %q: %v", e.Kind, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// TransmissionError reports a failed send. It matches ErrTransmission as
// well as its cause.
type TransmissionError struct {
	Kind Kind
	Err  error
}

func (e *TransmissionError) Error() string {
	return fmt.Sprintf("%s send: %v", e.Kind, e.Err)
}

func (e *TransmissionError) Unwrap() []error {
	return []error{ErrTransmission, e.Err}
}

// Retryable reports whether a job that failed with err may be attempted
// again. Only transmission failures qualify.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnsupported) ||
		errors.Is(err, ErrCapabilityUnavailable) ||
		errors.Is(err, ErrPermissionDenied) {
		return false
	}
	return errors.Is(err, ErrTransmission)
}

// classify maps platform permission failures onto ErrPermissionDenied.
func classify(err error) error {
	if err == nil || errors.Is(err, ErrPermissionDenied) {
		return err
	}
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}
	return err
}
