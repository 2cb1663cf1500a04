package hakomari

import (
	"io"
	"time"

	"github.com/bullno1/libhakomari/slip"
	"github.com/bullno1/libhakomari/wire"
)

// pipeTransport adapts an io.Pipe half into transport.Transport, ignoring
// the timeout budget: the pack's higher-level protocol/auth/device tests
// drive a synchronous fake device on the other end instead of a real
// timing-sensitive transport.
type pipeTransport struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipeTransport) Write(b []byte, flush bool, timeout time.Duration) error {
	_, err := p.w.Write(b)
	return err
}

func (p *pipeTransport) Read(b []byte, timeout time.Duration) (int, error) {
	return p.r.Read(b)
}

func (p *pipeTransport) Close() error {
	_ = p.r.Close()
	return p.w.Close()
}

// newPipePair returns two connected transport.Transport ends: bytes
// written to one are read from the other, in both directions.
func newPipePair() (host, device *pipeTransport) {
	hostToDeviceR, hostToDeviceW := io.Pipe()
	deviceToHostR, deviceToHostW := io.Pipe()
	host = &pipeTransport{r: deviceToHostR, w: hostToDeviceW}
	device = &pipeTransport{r: hostToDeviceR, w: deviceToHostW}
	return host, device
}

// fakeDevice stands in for a hakomari device on the far end of a
// transport, giving tests direct control over what replies come back
// without hand-assembling SLIP-escaped bytes.
type fakeDevice struct {
	codec *slip.Codec
}

func newFakeDevice(t *pipeTransport) *fakeDevice {
	return &fakeDevice{codec: slip.New(t)}
}

// recvRequest reads one request frame and returns its txid and verb.
// Addressing and any payload bytes are drained and discarded.
func (f *fakeDevice) recvRequest() (txid uint32, verb string, err error) {
	if err = f.codec.BeginRead(); err != nil {
		return 0, "", err
	}
	r := wire.NewReader(f.codec.Reader())
	n, err := r.ReadArrayHeader()
	if err != nil {
		return 0, "", err
	}
	if n != 4 {
		return 0, "", errFormat("request arity")
	}
	if _, err = r.ReadUint8(); err != nil {
		return 0, "", err
	}
	if txid, err = r.ReadUint32(); err != nil {
		return 0, "", err
	}
	verbBuf := make([]byte, MaxShortNameLen+16)
	vn, err := r.ReadStringInto(verbBuf)
	if err != nil {
		return 0, "", err
	}
	verb = string(verbBuf[:vn])
	return txid, verb, f.codec.EndRead()
}

// recvRequestAddressed is like recvRequest but also reads and validates an
// endpoint-scoped [type, name] addressing value instead of discarding it.
func (f *fakeDevice) recvRequestAddressed(ep EndpointDescriptor) (txid uint32, verb string, err error) {
	if err = f.codec.BeginRead(); err != nil {
		return 0, "", err
	}
	r := wire.NewReader(f.codec.Reader())
	n, err := r.ReadArrayHeader()
	if err != nil {
		return 0, "", err
	}
	if n != 4 {
		return 0, "", errFormat("request arity")
	}
	if _, err = r.ReadUint8(); err != nil {
		return 0, "", err
	}
	if txid, err = r.ReadUint32(); err != nil {
		return 0, "", err
	}
	verbBuf := make([]byte, MaxShortNameLen+16)
	vn, err := r.ReadStringInto(verbBuf)
	if err != nil {
		return 0, "", err
	}
	verb = string(verbBuf[:vn])

	addrLen, err := r.ReadArrayHeader()
	if err != nil {
		return 0, "", err
	}
	if addrLen != 2 {
		return 0, "", errFormat("addressing arity")
	}
	typeBuf := make([]byte, MaxShortNameLen)
	tn, err := r.ReadStringInto(typeBuf)
	if err != nil {
		return 0, "", err
	}
	nameBuf := make([]byte, MaxShortNameLen)
	nn, err := r.ReadStringInto(nameBuf)
	if err != nil {
		return 0, "", err
	}
	if string(typeBuf[:tn]) != ep.Type.String() || string(nameBuf[:nn]) != ep.Name.String() {
		return 0, "", errFormat("addressing mismatch")
	}
	return txid, verb, f.codec.EndRead()
}

// sendReply writes a well-formed [1, txid, status] reply, followed by
// whatever encode writes as the body.
func (f *fakeDevice) sendReply(txid uint32, status Status, encode func(w *wire.Writer)) error {
	if err := f.codec.BeginWrite(); err != nil {
		return err
	}
	w := wire.NewWriter(f.codec.Writer())
	if err := w.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(frameReply)); err != nil {
		return err
	}
	if err := w.WriteUint32(txid); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(status)); err != nil {
		return err
	}
	if encode != nil {
		encode(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.codec.EndWrite()
}

// sendReplyWithRawBody writes a well-formed [1, txid, status] reply
// followed by body as opaque bytes, bypassing MessagePack typing — the
// shape an application-defined verb's reply body actually takes.
func (f *fakeDevice) sendReplyWithRawBody(txid uint32, status Status, body []byte) error {
	if err := f.codec.BeginWrite(); err != nil {
		return err
	}
	w := wire.NewWriter(f.codec.Writer())
	if err := w.WriteArrayHeader(3); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(frameReply)); err != nil {
		return err
	}
	if err := w.WriteUint32(txid); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(status)); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if _, err := f.codec.Write(body); err != nil {
		return err
	}
	return f.codec.EndWrite()
}

// sendRawArray writes an arbitrary top-level array, for exercising
// malformed-reply error paths.
func (f *fakeDevice) sendRawArray(n uint32, elems func(w *wire.Writer)) error {
	if err := f.codec.BeginWrite(); err != nil {
		return err
	}
	w := wire.NewWriter(f.codec.Writer())
	if err := w.WriteArrayHeader(n); err != nil {
		return err
	}
	if elems != nil {
		elems(w)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.codec.EndWrite()
}

func errFormat(what string) error { return newError(Io, "format error: "+what) }
