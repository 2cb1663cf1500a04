package hakomari

import "io"

// PayloadSource is a pull-based byte source for a request's payload. It is
// modeled as its own narrow interface, distinct from Transport and
// AuthHandler, per the Design Note in spec §9: the source implementation
// used one function-pointer-plus-userdata shape for three different
// capabilities, and this module keeps them separate.
//
// Read returns 0, nil at end of stream — not io.EOF — matching spec
// §4.3's "the caller's payload stream signals EOF by a read that returns 0
// bytes with Ok status."
type PayloadSource interface {
	Read(p []byte) (n int, err error)
}

// AsPayloadSource adapts an ordinary io.Reader into a PayloadSource by
// translating io.EOF into the (0, nil) end-of-stream convention.
func AsPayloadSource(r io.Reader) PayloadSource {
	return eofAdapter{r}
}

type eofAdapter struct{ r io.Reader }

func (a eofAdapter) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

// replayBuffer captures a request's payload stream on first transmission
// so that, if authentication interposes, the engine can replay the same
// bytes on retry without requiring the caller's stream to be restartable
// (spec §3, PayloadReplayBuffer; Design Note in spec §9 explains the
// rejected alternative of requiring seekable payload sources).
type replayBuffer struct {
	buf []byte
	off int // read cursor for replay mode
}

func (b *replayBuffer) reset() {
	b.buf = b.buf[:0]
	b.off = 0
}

func (b *replayBuffer) record(p []byte) {
	b.buf = append(b.buf, p...)
}

// Read implements PayloadSource for replay: it returns the captured bytes
// exactly once, then (0, nil) forever after, mirroring the first-pass
// source's EOF convention.
func (b *replayBuffer) Read(p []byte) (int, error) {
	if b.off >= len(b.buf) {
		return 0, nil
	}
	n := copy(p, b.buf[b.off:])
	b.off += n
	return n, nil
}

func (b *replayBuffer) rewind() { b.off = 0 }
