// Package slip implements the byte-stuffed (SLIP-style) frame codec that
// delimits discrete messages on a hakomari device's raw serial stream.
//
// Wire format: a message is bracketed by a leading and trailing 0xC0 (END)
// byte. Within a message, 0xC0 is transmitted as 0xDB 0xDC and 0xDB (ESC)
// as 0xDB 0xDD; all other bytes pass through verbatim. Consecutive END
// bytes between messages are permitted and are treated as empty framing,
// which lets a reader resynchronize after a partial or garbled message.
//
// Codec.Read keeps a "sticky end" state once it observes the closing END,
// so that repeated reads after a message boundary return (0, nil) rather
// than blocking or erroring, until the caller calls EndRead. This is
// deliberate: it is what lets the request/reply engine expose a reply body
// as a stream the caller may read any prefix of.
package slip

import (
	"errors"
	"io"
	"time"

	"github.com/bullno1/libhakomari/transport"
)

const (
	end    = 0xC0
	esc    = 0xDB
	escEnd = 0xDC
	escEsc = 0xDD
)

// Codec is a byte-stuffed frame codec over a transport.Transport.
//
// A Codec is not safe for concurrent use. Exactly one of a write cycle
// (BeginWrite/Write/EndWrite) or a read cycle (BeginRead/Read/EndRead) is
// in progress at a time; interleaving the two is undefined.
type Codec struct {
	t       transport.Transport
	timeout time.Duration

	// write scratch buffer: escaped bytes accumulate here and are drained
	// to the transport whenever full.
	wbuf []byte
	wlen int

	// raw (un-decoded) read scratch buffer, filled from the transport.
	rraw []byte
	rpos int
	rlen int

	// single-byte pushback, used both by BeginRead's lookahead and by
	// Read's sticky-end rewind.
	pending    byte
	hasPending bool

	// atEnd is set once Read observes the closing END and cleared by
	// EndRead. While set, Read returns (0, nil) without consuming input.
	atEnd bool
}

// New returns a Codec reading and writing through t.
func New(t transport.Transport, opts ...Option) *Codec {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	size := o.BufferSize
	if size <= 0 {
		size = defaultOptions.BufferSize
	}
	return &Codec{
		t:       t,
		timeout: o.Timeout,
		wbuf:    make([]byte, size),
		rraw:    make([]byte, size),
	}
}

// BeginWrite resets the write cursor and emits the leading END byte.
func (c *Codec) BeginWrite() error {
	c.wlen = 0
	return c.appendRaw(end)
}

// Write escapes and buffers p, draining the internal buffer through the
// transport whenever it fills. It always consumes all of p or returns an
// error.
func (c *Codec) Write(p []byte) (n int, err error) {
	for _, b := range p {
		switch b {
		case end:
			if err := c.appendRaw(esc); err != nil {
				return n, err
			}
			if err := c.appendRaw(escEnd); err != nil {
				return n, err
			}
		case esc:
			if err := c.appendRaw(esc); err != nil {
				return n, err
			}
			if err := c.appendRaw(escEsc); err != nil {
				return n, err
			}
		default:
			if err := c.appendRaw(b); err != nil {
				return n, err
			}
		}
		n++
	}
	return n, nil
}

// EndWrite emits the trailing END byte and flushes the write buffer with a
// transport-level drain.
func (c *Codec) EndWrite() error {
	if err := c.appendRaw(end); err != nil {
		return err
	}
	return c.drain(true)
}

// Flush empties the internal write buffer via a blocking, drained
// transport write.
func (c *Codec) Flush() error {
	return c.drain(true)
}

func (c *Codec) appendRaw(b byte) error {
	if c.wlen == len(c.wbuf) {
		if err := c.drain(false); err != nil {
			return err
		}
	}
	c.wbuf[c.wlen] = b
	c.wlen++
	return nil
}

func (c *Codec) drain(flush bool) error {
	if c.wlen == 0 {
		return nil
	}
	if c.t == nil {
		return ErrInvalidArgument
	}
	err := c.t.Write(c.wbuf[:c.wlen], flush, c.timeout)
	c.wlen = 0
	return mapTransportErr(err)
}

// BeginRead consumes bytes until the next non-END byte is observed, then
// un-consumes that byte so the first Read sees it. This tolerates any
// number of leading stray END bytes left over from a prior aborted
// message.
func (c *Codec) BeginRead() error {
	c.atEnd = false
	for {
		b, err := c.readRaw()
		if err != nil {
			return err
		}
		if b != end {
			c.unreadRaw(b)
			return nil
		}
	}
}

// Read fills up to len(p) bytes, decoding escape sequences. Encountering
// an END byte terminates the current message early: the byte is
// un-consumed, so repeated calls to Read return (0, nil) without advancing
// until EndRead is called.
func (c *Codec) Read(p []byte) (n int, err error) {
	if c.atEnd {
		return 0, nil
	}
	for n < len(p) {
		b, err := c.readRaw()
		if err != nil {
			return n, err
		}
		if b == end {
			c.unreadRaw(end)
			c.atEnd = true
			return n, nil
		}
		if b == esc {
			b2, err := c.readRaw()
			if err != nil {
				return n, err
			}
			switch b2 {
			case escEnd:
				p[n] = end
			case escEsc:
				p[n] = esc
			default:
				return n, ErrEncoding
			}
			n++
			continue
		}
		p[n] = b
		n++
	}
	return n, nil
}

// EndRead drains and discards bytes until (and including) the next END. If
// Read has already observed that END (the sticky-end state), EndRead just
// consumes it.
func (c *Codec) EndRead() error {
	if c.atEnd {
		_, err := c.readRaw()
		c.atEnd = false
		return err
	}
	for {
		b, err := c.readRaw()
		if err != nil {
			return err
		}
		if b == end {
			return nil
		}
	}
}

func (c *Codec) unreadRaw(b byte) {
	c.pending = b
	c.hasPending = true
}

func (c *Codec) readRaw() (byte, error) {
	if c.hasPending {
		c.hasPending = false
		return c.pending, nil
	}
	if c.rpos >= c.rlen {
		if c.t == nil {
			return 0, ErrInvalidArgument
		}
		n, err := c.t.Read(c.rraw, c.timeout)
		if n == 0 {
			if err == nil {
				return 0, ErrIO
			}
			return 0, mapTransportErr(err)
		}
		c.rlen = n
		c.rpos = 0
	}
	b := c.rraw[c.rpos]
	c.rpos++
	return b, nil
}

func mapTransportErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, transport.ErrTimeout) {
		return ErrTimedOut
	}
	return errwrap(ErrIO, err)
}

// errwrap is a tiny %w helper kept local to avoid pulling in fmt for one call site.
func errwrap(sentinel, cause error) error {
	return &wrappedErr{sentinel: sentinel, cause: cause}
}

type wrappedErr struct {
	sentinel error
	cause    error
}

func (e *wrappedErr) Error() string { return e.sentinel.Error() + ": " + e.cause.Error() }
func (e *wrappedErr) Unwrap() error { return e.sentinel }
func (e *wrappedErr) Is(target error) bool {
	return target == e.sentinel
}

var _ io.Reader = (*readerAdapter)(nil)
var _ io.Writer = (*writerAdapter)(nil)

// readerAdapter exposes Codec.Read as an io.Reader for wiring into a
// MessagePack decoder. It does not translate the sticky-end (0, nil) into
// io.EOF: within one message, a well-formed decode never needs to observe
// the end of frame, since every MessagePack value carries its own length.
type readerAdapter struct{ c *Codec }

func (r readerAdapter) Read(p []byte) (int, error) { return r.c.Read(p) }

// writerAdapter exposes Codec.Write as an io.Writer.
type writerAdapter struct{ c *Codec }

func (w writerAdapter) Write(p []byte) (int, error) { return w.c.Write(p) }

// Reader returns an io.Reader view of c for the message currently being
// read (i.e. after BeginRead).
func (c *Codec) Reader() io.Reader { return readerAdapter{c} }

// Writer returns an io.Writer view of c for the message currently being
// written (i.e. after BeginWrite).
func (c *Codec) Writer() io.Writer { return writerAdapter{c} }
