package wire_test

import (
	"bytes"
	"testing"

	"github.com/bullno1/libhakomari/wire"
)

func TestRoundTripEnvelope(t *testing.T) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	if err := w.WriteArrayHeader(4); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint8(0); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteUint32(42); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("sign"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteNil(); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	r := wire.NewReader(&buf)
	n, err := r.ReadArrayHeader()
	if err != nil || n != 4 {
		t.Fatalf("array header: %d, %v", n, err)
	}
	typ, err := r.ReadUint8()
	if err != nil || typ != 0 {
		t.Fatalf("type: %d, %v", typ, err)
	}
	txid, err := r.ReadUint32()
	if err != nil || txid != 42 {
		t.Fatalf("txid: %d, %v", txid, err)
	}
	nameBuf := make([]byte, 127)
	n2, err := r.ReadStringInto(nameBuf)
	if err != nil || string(nameBuf[:n2]) != "sign" {
		t.Fatalf("verb: %q, %v", nameBuf[:n2], err)
	}
	if err := r.ReadNil(); err != nil {
		t.Fatalf("nil: %v", err)
	}
}

func TestReadStringIntoTooLong(t *testing.T) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	_ = w.WriteString("this string is definitely longer than four bytes")
	_ = w.Flush()

	r := wire.NewReader(&buf)
	small := make([]byte, 4)
	if _, err := r.ReadStringInto(small); err != wire.ErrTooLong {
		t.Fatalf("want ErrTooLong, got %v", err)
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := wire.NewWriter(&buf)
	img := []byte{0x01, 0x02, 0x03, 0xFF}
	_ = w.WriteBytes(img)
	_ = w.Flush()

	r := wire.NewReader(&buf)
	got, err := r.ReadBytes()
	if err != nil || !bytes.Equal(got, img) {
		t.Fatalf("got %v, %v", got, err)
	}
}
