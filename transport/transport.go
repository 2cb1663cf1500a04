// Package transport defines the duplex byte-stream collaborator that the
// rest of this module is built against.
//
// It is deliberately a single-method-pair interface with no notion of
// framing, retries, or non-blocking control flow: those concerns live in
// slip.Codec. A Transport only knows how to move bytes, blockingly, within
// a timeout budget.
package transport

import (
	"errors"
	"time"
)

// ErrTimeout is returned (or wrapped) by Read/Write when a call could not
// make progress within its timeout budget.
var ErrTimeout = errors.New("transport: timed out")

// ErrClosed is returned by Read/Write/Close after Close has been called.
var ErrClosed = errors.New("transport: closed")

// Transport is a duplex byte stream with per-call timeouts, matching the
// external interface in the spec: a blocking write of a whole slice and a
// blocking read of at least one byte.
type Transport interface {
	// Write writes all of p, blocking until done or the timeout elapses.
	// If flush is set, hardware buffers are drained before Write returns.
	Write(p []byte, flush bool, timeout time.Duration) error

	// Read blocks until at least one byte is available, an error occurs,
	// or timeout elapses, then returns up to len(p) bytes.
	Read(p []byte, timeout time.Duration) (n int, err error)

	// Close releases the underlying resource. Close is idempotent.
	Close() error
}
