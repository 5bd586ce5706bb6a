// Package errors provides the error handling model used across Apex.
// Message-level problems are carried as severity-classified records on the
// message record rather than aborting the pipeline; infrastructure errors
// use conventional wrapped Go errors.
package errors

import (
	"errors"
	"fmt"
)

// Severity classifies a message-level error by its consequence. Severities
// are strictly ordered: a stricter severity always wins when two errors are
// merged.
type Severity int

const (
	// SeverityUnstored flags internal bookkeeping messages that are dropped
	// without being written to the audit store.
	SeverityUnstored Severity = iota
	// SeveritySilent errors are stored but trigger no log output, used to
	// avoid error loops when handling received Error messages.
	SeveritySilent
	// SeverityNoisy errors are stored and logged; the connection continues.
	SeverityNoisy
	// SeverityFatal errors terminate the connection after the message is
	// stored.
	SeverityFatal
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityUnstored:
		return "unstored"
	case SeveritySilent:
		return "silent"
	case SeverityNoisy:
		return "noisy"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Connection lifecycle errors
	ErrConnectionClosed = errors.New("connection closed")
	ErrShuttingDown     = errors.New("apex shutting down")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrMessageTooLong   = errors.New("message too long")

	// Identifier registry errors
	ErrIDCollision = errors.New("legacy id already assigned")
	ErrIDUnknown   = errors.New("id not registered")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
)

// Record is a message-level error: a severity plus a human-readable
// description. It travels on the message record and is interpreted by the
// pipeline (store or not, log or not, disconnect or not).
type Record struct {
	Severity    Severity
	Description string
}

// Error implements the error interface
func (r *Record) Error() string {
	return r.Description
}

// Unstored creates an error record for messages that are processed but never
// written to the audit store.
func Unstored(format string, args ...any) *Record {
	return &Record{Severity: SeverityUnstored, Description: fmt.Sprintf(format, args...)}
}

// Silent creates an error record that is stored but not logged.
func Silent(format string, args ...any) *Record {
	return &Record{Severity: SeveritySilent, Description: fmt.Sprintf(format, args...)}
}

// Noisy creates an error record that is stored and logged.
func Noisy(format string, args ...any) *Record {
	return &Record{Severity: SeverityNoisy, Description: fmt.Sprintf(format, args...)}
}

// Fatal creates an error record that terminates the connection.
func Fatal(format string, args ...any) *Record {
	return &Record{Severity: SeverityFatal, Description: fmt.Sprintf(format, args...)}
}

// FromErr converts an infrastructure error into a record at the given
// severity. Returns nil for a nil error.
func FromErr(severity Severity, err error) *Record {
	if err == nil {
		return nil
	}
	return &Record{Severity: severity, Description: err.Error()}
}

// FromPanic converts a recovered panic value into a fatal record.
func FromPanic(v any) *Record {
	return Fatal("panic in message handler: %v", v)
}

// Merge combines two error records, keeping the stricter severity. When
// severities are equal the first record wins. Either argument may be nil.
func Merge(a, b *Record) *Record {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if b.Severity > a.Severity {
		return b
	}
	return a
}

// IsFatal reports whether the record exists and carries fatal severity.
func IsFatal(r *Record) bool {
	return r != nil && r.Severity == SeverityFatal
}

// Stored reports whether the record should reach the audit store. A nil
// record means a clean message, which is always stored.
func Stored(r *Record) bool {
	return r == nil || r.Severity != SeverityUnstored
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}
