package slip_test

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bullno1/libhakomari/slip"
	"github.com/bullno1/libhakomari/transport"
)

// memTransport is a loopback transport.Transport backed by a single
// buffer: whatever is written can be read back. It lets round-trip tests
// exercise Codec without any concurrency.
type memTransport struct {
	buf      bytes.Buffer
	readStep int // max bytes returned per Read call; 0 means unlimited
}

func (m *memTransport) Write(p []byte, flush bool, timeout time.Duration) error {
	m.buf.Write(p)
	return nil
}

func (m *memTransport) Read(p []byte, timeout time.Duration) (int, error) {
	if m.buf.Len() == 0 {
		return 0, transport.ErrTimeout
	}
	n := len(p)
	if m.readStep > 0 && m.readStep < n {
		n = m.readStep
	}
	return m.buf.Read(p[:n])
}

func (m *memTransport) Close() error { return nil }

// scriptedTransport replays a fixed sequence of Read results, for testing
// error paths precisely.
type scriptedTransport struct {
	reads []struct {
		b   []byte
		err error
	}
	step int
}

func (s *scriptedTransport) Write([]byte, bool, time.Duration) error { return nil }

func (s *scriptedTransport) Read(p []byte, timeout time.Duration) (int, error) {
	if s.step >= len(s.reads) {
		return 0, transport.ErrTimeout
	}
	r := s.reads[s.step]
	s.step++
	n := copy(p, r.b)
	return n, r.err
}

func (s *scriptedTransport) Close() error { return nil }

func roundTrip(t *testing.T, tr *memTransport, msg []byte) []byte {
	t.Helper()
	w := slip.New(tr)
	if err := w.BeginWrite(); err != nil {
		t.Fatalf("BeginWrite: %v", err)
	}
	if _, err := w.Write(msg); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.EndWrite(); err != nil {
		t.Fatalf("EndWrite: %v", err)
	}

	r := slip.New(tr)
	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	var out []byte
	buf := make([]byte, 16)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		if n == 0 {
			break
		}
	}
	if err := r.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	return out
}

func TestRoundTripArbitraryBytes(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x00},
		{0xC0},
		{0xDB},
		{0xC0, 0xDB, 0xC0, 0xDB},
		bytes.Repeat([]byte{0xC0, 0xDB, 0x01, 0xFF}, 4096), // well over 64KiB once escaped
	}
	for i, c := range cases {
		tr := &memTransport{}
		got := roundTrip(t, tr, c)
		if !bytes.Equal(got, c) && !(len(got) == 0 && len(c) == 0) {
			t.Fatalf("case %d: round trip mismatch: got %d bytes, want %d", i, len(got), len(c))
		}
	}
}

func TestEncodingHasNoInteriorEnd(t *testing.T) {
	tr := &memTransport{}
	w := slip.New(tr)
	_ = w.BeginWrite()
	_, _ = w.Write([]byte{0xC0, 0x01, 0xC0, 0xDB, 0x02})
	_ = w.EndWrite()

	encoded := tr.buf.Bytes()
	if len(encoded) < 2 || encoded[0] != 0xC0 || encoded[len(encoded)-1] != 0xC0 {
		t.Fatalf("encoded form must begin and end with 0xC0: % x", encoded)
	}
	for _, b := range encoded[1 : len(encoded)-1] {
		if b == 0xC0 {
			t.Fatalf("encoded form has interior 0xC0: % x", encoded)
		}
	}
}

func TestTwoMessagesWithStrayEndsBetween(t *testing.T) {
	tr := &memTransport{}
	for _, k := range []int{0, 1, 5} {
		tr.buf.Reset()
		w := slip.New(tr)
		_ = w.BeginWrite()
		_, _ = w.Write([]byte("first"))
		_ = w.EndWrite()
		for i := 0; i < k; i++ {
			tr.buf.WriteByte(0xC0)
		}
		_ = w.BeginWrite()
		_, _ = w.Write([]byte("second"))
		_ = w.EndWrite()

		r := slip.New(tr)
		var got []string
		for i := 0; i < 2; i++ {
			if err := r.BeginRead(); err != nil {
				t.Fatalf("k=%d BeginRead %d: %v", k, i, err)
			}
			buf := make([]byte, 32)
			n, err := r.Read(buf)
			if err != nil {
				t.Fatalf("k=%d Read %d: %v", k, i, err)
			}
			got = append(got, string(buf[:n]))
			if err := r.EndRead(); err != nil {
				t.Fatalf("k=%d EndRead %d: %v", k, i, err)
			}
		}
		if got[0] != "first" || got[1] != "second" {
			t.Fatalf("k=%d: got %v", k, got)
		}
	}
}

func TestMalformedEscapeIsEncodingError(t *testing.T) {
	tr := &memTransport{}
	tr.buf.Write([]byte{0xC0, 0xDB, 0x42, 0xC0}) // 0xDB followed by neither 0xDC nor 0xDD

	r := slip.New(tr)
	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead: %v", err)
	}
	buf := make([]byte, 8)
	_, err := r.Read(buf)
	if !errors.Is(err, slip.ErrEncoding) {
		t.Fatalf("want ErrEncoding, got %v", err)
	}
}

func TestReadingPastEndWithoutEndReadIsSticky(t *testing.T) {
	tr := &memTransport{}
	tr.buf.Write([]byte{0xC0, 'h', 'i', 0xC0, 'x'})

	r := slip.New(tr)
	_ = r.BeginRead()
	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil || string(buf[:n]) != "hi" {
		t.Fatalf("first read: %q, %v", buf[:n], err)
	}
	for i := 0; i < 3; i++ {
		n, err := r.Read(buf)
		if n != 0 || err != nil {
			t.Fatalf("sticky read %d: n=%d err=%v", i, n, err)
		}
	}
	if err := r.EndRead(); err != nil {
		t.Fatalf("EndRead: %v", err)
	}
	// Resynchronizes on the following frame.
	if err := r.BeginRead(); err != nil {
		t.Fatalf("BeginRead after resync: %v", err)
	}
	n, err = r.Read(buf)
	if err != nil || string(buf[:n]) != "x" {
		t.Fatalf("resync read: %q, %v", buf[:n], err)
	}
}

func TestUnescapedEndMidBodyEndsMessageEarly(t *testing.T) {
	// "A reply body contains an unescaped 0xC0 byte in the middle."
	tr := &memTransport{}
	tr.buf.Write([]byte{0xC0, 'a', 'b', 0xC0, 'c', 'd', 0xC0})

	r := slip.New(tr)
	_ = r.BeginRead()
	buf := make([]byte, 8)
	n, _ := r.Read(buf)
	if string(buf[:n]) != "ab" {
		t.Fatalf("got %q, want \"ab\"", buf[:n])
	}
	_ = r.EndRead()

	_ = r.BeginRead()
	n, _ = r.Read(buf)
	if string(buf[:n]) != "cd" {
		t.Fatalf("got %q, want \"cd\" (resynchronized frame)", buf[:n])
	}
}

func TestTimeoutSurfacesAsErrTimedOut(t *testing.T) {
	tr := &scriptedTransport{} // no reads scripted: every Read times out
	r := slip.New(tr)
	if err := r.BeginRead(); !errors.Is(err, slip.ErrTimedOut) {
		t.Fatalf("want ErrTimedOut, got %v", err)
	}
}

func TestWriterReaderAdaptersImplementIO(t *testing.T) {
	tr := &memTransport{}
	c := slip.New(tr)
	var _ io.Writer = c.Writer()
	var _ io.Reader = c.Reader()
}
