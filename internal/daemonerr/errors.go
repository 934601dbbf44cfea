// Package daemonerr defines the sentinel error kinds the core surfaces to
// its caller, per the error handling design in spec.md §7.
package daemonerr

import "errors"

var (
	// ErrNotConnected is returned by emit when there is no established
	// socket session.
	ErrNotConnected = errors.New("daemonerr: not connected")

	// ErrConnectionFailed is returned when a transport handshake fails.
	ErrConnectionFailed = errors.New("daemonerr: connection failed")

	// ErrAckTimeout is returned when emit_with_ack's deadline is exceeded.
	ErrAckTimeout = errors.New("daemonerr: ack timeout")

	// ErrTLS is returned for certificate parse / bundle assembly failures.
	ErrTLS = errors.New("daemonerr: tls error")

	// ErrDirectory is returned when a key/value or pub/sub call to the
	// Directory fails.
	ErrDirectory = errors.New("daemonerr: directory error")

	// ErrWriterNotHeld is returned when a SharedStore heartbeat is attempted
	// without (or after losing) the writer lease.
	ErrWriterNotHeld = errors.New("daemonerr: writer lease not held")

	// ErrInvalidInput is returned when a path-component identifier fails
	// validation (see internal/daemoncore/validate.go).
	ErrInvalidInput = errors.New("daemonerr: invalid input")

	// ErrIO wraps a failure to encode an outbound frame in Emit or
	// EmitWithAck. Tailer and TranscriptStore I/O errors are not wrapped
	// with it.
	ErrIO = errors.New("daemonerr: io error")

	// ErrNotFound is returned by Directory operations that expect an
	// existing key (e.g. keep-alive on an expired registration).
	ErrNotFound = errors.New("daemonerr: not found")
)
