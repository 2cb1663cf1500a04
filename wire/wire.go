// Package wire is a thin MessagePack adapter wired to the slip frame
// codec's byte Read/Write operations.
//
// It exercises exactly the wire types the hakomari protocol uses: array
// and map headers, unsigned integers, strings, binary blobs, bool, and
// nil. Encoding/decoding of anything richer is deliberately not exposed —
// this is a narrow adapter, not a general MessagePack library; the actual
// codec work is delegated to github.com/tinylib/msgp/msgp, the same
// hand-driven (non-codegen) way github.com/DataDog/dd-trace-go's trace
// payload encoder uses it.
package wire

import (
	"errors"
	"io"

	"github.com/tinylib/msgp/msgp"
)

// ErrTooLong is returned by Reader.ReadStringInto when the decoded string
// does not fit in the caller-provided buffer.
var ErrTooLong = errors.New("wire: string exceeds destination buffer")

// Type identifies the MessagePack type of the next value in a Reader,
// without consuming it.
type Type = msgp.Type

// Recognized types, re-exported so callers don't need to import msgp
// directly for the handful of types this protocol uses.
const (
	ArrayType = msgp.ArrayType
	MapType   = msgp.MapType
	NilType   = msgp.NilType
)

// Writer encodes MessagePack values onto an io.Writer — in practice, the
// per-message io.Writer view of a slip.Codec.
type Writer struct {
	mw *msgp.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{mw: msgp.NewWriter(w)}
}

func (w *Writer) WriteArrayHeader(n uint32) error { return w.mw.WriteArrayHeader(n) }
func (w *Writer) WriteMapHeader(n uint32) error   { return w.mw.WriteMapHeader(n) }
func (w *Writer) WriteUint8(v uint8) error        { return w.mw.WriteUint8(v) }
func (w *Writer) WriteUint32(v uint32) error      { return w.mw.WriteUint32(v) }
func (w *Writer) WriteString(s string) error      { return w.mw.WriteString(s) }
func (w *Writer) WriteBytes(b []byte) error       { return w.mw.WriteBytes(b) }
func (w *Writer) WriteBool(b bool) error           { return w.mw.WriteBool(b) }
func (w *Writer) WriteNil() error                  { return w.mw.WriteNil() }

// Flush drains anything msgp.Writer has buffered internally down to the
// underlying io.Writer (the slip.Codec message view, which itself buffers
// into the frame's escape-encoded scratch buffer).
func (w *Writer) Flush() error { return w.mw.Flush() }

// Reader decodes MessagePack values from an io.Reader — in practice, the
// per-message io.Reader view of a slip.Codec.
type Reader struct {
	mr *msgp.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{mr: msgp.NewReader(r)}
}

func (r *Reader) ReadArrayHeader() (uint32, error) { return r.mr.ReadArrayHeader() }
func (r *Reader) ReadMapHeader() (uint32, error)   { return r.mr.ReadMapHeader() }
func (r *Reader) ReadUint8() (uint8, error)        { return r.mr.ReadUint8() }
func (r *Reader) ReadUint32() (uint32, error)      { return r.mr.ReadUint32() }
func (r *Reader) ReadBool() (bool, error)          { return r.mr.ReadBool() }
func (r *Reader) ReadNil() error                   { return r.mr.ReadNil() }

// ReadBytes decodes a bin value into a freshly allocated slice.
func (r *Reader) ReadBytes() ([]byte, error) { return r.mr.ReadBytes(nil) }

// ReadStringInto decodes a str value into buf, reporting the number of
// bytes written. It returns ErrTooLong, without partially consuming the
// caller's buffer contents, if the string does not fit.
func (r *Reader) ReadStringInto(buf []byte) (int, error) {
	out, err := r.mr.ReadStringAsBytes(buf[:0])
	if err != nil {
		return 0, err
	}
	if len(out) > cap(buf) {
		return 0, ErrTooLong
	}
	return copy(buf, out), nil
}

// PeekType reports the type of the next value without consuming it.
func (r *Reader) PeekType() (Type, error) { return r.mr.NextType() }

// Skip discards the next value, including any nested contents.
func (r *Reader) Skip() error { return r.mr.Skip() }
