package hakomari

import (
	"errors"
	"io"

	"github.com/bullno1/libhakomari/slip"
	"github.com/bullno1/libhakomari/wire"
)

// engine implements the request/reply protocol (spec §4.3) over a single
// slip.Codec. It is not safe for concurrent use; exactly one query may be
// outstanding on it at a time, matching the "at most one outstanding
// request per Device" invariant in spec §3.
type engine struct {
	codec *slip.Codec

	txid        uint32 // next txid to assign; starts at 0, strictly increasing
	pendingTxid uint32 // txid of the currently outstanding request

	w *wire.Writer // set between beginQuery and the EndWrite inside endQuery
	r *wire.Reader // set after endQuery returns Ok, for structured body reads

	replyOpen bool // true while the caller may still read/discard a reply body
}

func newEngine(codec *slip.Codec) *engine {
	return &engine{codec: codec}
}

// beginQuery resets the write cursor, writes the 4-element request array
// header and its first three elements, and writes the addressing value —
// nil for a device-global verb, or [type, name] for an endpoint-scoped
// one (spec §4.3).
func (e *engine) beginQuery(ep *EndpointDescriptor, verb string) error {
	if e.replyOpen {
		// "the next request call implicitly closes the frame" (spec §4.3).
		_ = e.codec.EndRead()
		e.replyOpen = false
		e.r = nil
	}

	if err := e.codec.BeginWrite(); err != nil {
		return mapIOErr(err)
	}
	w := wire.NewWriter(e.codec.Writer())
	if err := w.WriteArrayHeader(4); err != nil {
		return mapIOErr(err)
	}
	if err := w.WriteUint8(uint8(frameRequest)); err != nil {
		return mapIOErr(err)
	}
	txid := e.txid
	e.txid++
	if err := w.WriteUint32(txid); err != nil {
		return mapIOErr(err)
	}
	if err := w.WriteString(verb); err != nil {
		return mapIOErr(err)
	}
	if ep == nil {
		if err := w.WriteNil(); err != nil {
			return mapIOErr(err)
		}
	} else {
		if err := w.WriteArrayHeader(2); err != nil {
			return mapIOErr(err)
		}
		if err := w.WriteString(ep.Type.String()); err != nil {
			return mapIOErr(err)
		}
		if err := w.WriteString(ep.Name.String()); err != nil {
			return mapIOErr(err)
		}
	}

	e.pendingTxid = txid
	e.w = w
	return nil
}

// writer exposes the typed MessagePack writer for the request currently
// being built, for writing built-in verbs' structured bodies (e.g.
// @input-passphrase's pointer-event arrays).
func (e *engine) writer() *wire.Writer { return e.w }

// writeRaw tunnels opaque application payload bytes straight through the
// frame codec, bypassing MessagePack typing (spec §4.3: chunks are "fed
// verbatim through the MessagePack byte writer").
func (e *engine) writeRaw(p []byte) (int, error) {
	if e.w != nil {
		if err := e.w.Flush(); err != nil {
			return 0, mapIOErr(err)
		}
	}
	n, err := e.codec.Write(p)
	if err != nil {
		return n, mapIOErr(err)
	}
	return n, nil
}

// flush pushes everything written so far out to the transport without
// closing the frame. The authenticator uses this after writing
// @input-passphrase's header so the device can start drawing the prompt
// before the pointer-event stream finishes (spec §4.4 step 2).
func (e *engine) flush() error {
	if e.w != nil {
		if err := e.w.Flush(); err != nil {
			return mapIOErr(err)
		}
	}
	return mapIOErr(e.codec.Flush())
}

// endQuery closes the write frame, then drains replies until one matching
// the outstanding txid arrives, decoding its status (spec §4.3).
//
// The returned error is non-nil exactly when status != Ok: for Io it
// carries the specific transport/framing/format failure; for any other
// non-Ok status it carries the generic per-kind message. Ok always returns
// a nil error.
func (e *engine) endQuery() (Status, error) {
	if e.w != nil {
		if err := e.w.Flush(); err != nil {
			return Io, mapIOErr(err)
		}
	}
	if err := e.codec.EndWrite(); err != nil {
		return Io, mapIOErr(err)
	}
	e.w = nil

	for {
		if err := e.codec.BeginRead(); err != nil {
			return Io, mapIOErr(err)
		}
		r := wire.NewReader(e.codec.Reader())

		n, err := r.ReadArrayHeader()
		if err != nil {
			return Io, mapIOErr(err)
		}
		if n != 3 {
			_ = e.codec.EndRead()
			return Io, newError(Io, "format error")
		}

		ft, err := r.ReadUint8()
		if err != nil {
			return Io, mapIOErr(err)
		}
		if frameType(ft) != frameReply {
			_ = e.codec.EndRead()
			return Io, newError(Io, "format error")
		}

		txid, err := r.ReadUint32()
		if err != nil {
			return Io, mapIOErr(err)
		}
		if txid != e.pendingTxid {
			if txid > e.pendingTxid {
				// A reply can only be stale (an id from a previous,
				// already-matched query) or current; anything greater
				// means the device and host have desynchronized.
				_ = e.codec.EndRead()
				return Io, newError(Io, "format error")
			}
			// Stale reply from an aborted query: discard and keep waiting.
			_ = e.codec.EndRead()
			continue
		}

		statusByte, err := r.ReadUint8()
		if err != nil {
			return Io, mapIOErr(err)
		}

		e.r = r
		e.replyOpen = true
		status := Status(statusByte)
		if status == Ok {
			return Ok, nil
		}
		return status, errFor(status)
	}
}

// reader exposes the typed MessagePack reader over the current reply's
// body, for decoding built-in verbs' structured bodies.
func (e *engine) reader() *wire.Reader { return e.r }

// replyBody returns an io.Reader over the raw remainder of the current
// reply frame. The sticky end-of-frame state is translated into io.EOF so
// ordinary Go callers can consume it idiomatically (spec §4.3: "the reply
// body ... is exposed as a read-only byte stream").
func (e *engine) replyBody() io.Reader { return eofReader{e.codec} }

type eofReader struct{ c *slip.Codec }

func (r eofReader) Read(p []byte) (int, error) {
	n, err := r.c.Read(p)
	if err != nil {
		return n, mapIOErr(err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// mapIOErr translates a slip sentinel error into this package's *Error
// type, fixing the "Device timed out" message spec §7 requires for a
// framing-level timeout.
func mapIOErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, slip.ErrTimedOut) {
		return newError(Io, "Device timed out")
	}
	if errors.Is(err, slip.ErrEncoding) {
		return newError(Io, "encoding error")
	}
	return newError(Io, err.Error())
}
