package slip

import "time"

// Options configures a Codec.
type Options struct {
	// BufferSize is the capacity of the internal read/write scratch buffer.
	// There is no per-message heap allocation in the hot path once this
	// buffer is allocated.
	BufferSize int

	// Timeout is the budget handed to every Transport call. The codec does
	// not subdivide it across chunks: each transport I/O sees this same
	// value.
	Timeout time.Duration
}

var defaultOptions = Options{
	BufferSize: 1024,
	Timeout:    10 * time.Second,
}

// Option configures a Codec at construction time.
type Option func(*Options)

// WithBufferSize overrides the default 1024-byte scratch buffer.
func WithBufferSize(n int) Option {
	return func(o *Options) { o.BufferSize = n }
}

// WithTimeout overrides the default 10s per-transport-call budget.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}
