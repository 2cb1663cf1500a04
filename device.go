package hakomari

import (
	"io"

	"go.uber.org/zap"

	"github.com/bullno1/libhakomari/slip"
	"github.com/bullno1/libhakomari/transport"
	"github.com/bullno1/libhakomari/wire"
)

// deviceState tracks what a Device is currently doing, enforcing the "at
// most one outstanding request" invariant (spec §3) and giving the
// authenticator a re-entrant window in which it, and only it, may drive
// the engine.
type deviceState int

const (
	deviceIdle deviceState = iota
	deviceWriting
	deviceReading
	deviceAuthInProgress
)

// Device is an open connection to one hakomari device. It is not safe for
// concurrent use.
type Device struct {
	Descriptor DeviceDescriptor

	conn transport.Transport
	eng  *engine
	log  *zap.SugaredLogger
	ctx  *Context // owning Context, if any; latches errors via ctx.setLastError

	authHandler AuthHandler

	state deviceState

	endpoints      []EndpointDescriptor
	endpointsValid bool

	replay replayBuffer
}

func newDevice(desc DeviceDescriptor, conn transport.Transport, log *zap.SugaredLogger, codecOpts ...slip.Option) *Device {
	return &Device{
		Descriptor: desc,
		conn:       conn,
		eng:        newEngine(slip.New(conn, codecOpts...)),
		log:        log,
	}
}

// latch records err against the owning Context's LastError, if this Device
// was opened through one, and returns err unchanged for the common
// "return d.latch(err)" call shape.
func (d *Device) latch(err error) error {
	if d.ctx != nil && err != nil {
		d.ctx.setLastError(err)
	}
	return err
}

// SetAuthHandler registers the handler invoked whenever a query against
// this device reports AuthRequired. A nil handler disables the interposed
// sub-dialogue; AuthRequired is then returned straight to the caller.
func (d *Device) SetAuthHandler(h AuthHandler) { d.authHandler = h }

// Close releases the device's resources. Order matters: the endpoint
// cache and replay buffer hold no resources of their own and are simply
// dropped first, so that if closing the transport fails the device is
// still left in a state with nothing left to leak.
func (d *Device) Close() error {
	d.endpoints = nil
	d.endpointsValid = false
	d.replay.reset()
	return d.conn.Close()
}

// withAuthRetry runs one query via run against ep, and if it reports
// AuthRequired runs the interposed passphrase sub-dialogue — against the
// same endpoint (spec §4.4) — exactly once before retrying run a second
// time. A second AuthRequired in a row is not retried again — it is
// returned to the caller as-is, so a misbehaving handler or device cannot
// loop forever.
func (d *Device) withAuthRetry(ep *EndpointDescriptor, run func(firstAttempt bool) (Status, error)) (Status, error) {
	if d.state != deviceIdle {
		return Invalid, d.latch(newError(Invalid, "device has an outstanding request"))
	}
	d.state = deviceWriting
	defer func() { d.state = deviceIdle }()

	first := true
	for {
		status, err := run(first)
		if status == AuthRequired && first && d.authHandler != nil {
			d.state = deviceAuthInProgress
			authStatus, authErr := authenticate(d.eng, ep, d.authHandler)
			d.state = deviceWriting
			if authErr != nil {
				// authenticate maintains err != nil iff status != Ok, so a
				// second AuthRequired here surfaces straight to the caller
				// instead of looping back into run again.
				return authStatus, d.latch(authErr)
			}
			first = false
			continue
		}
		return status, d.latch(err)
	}
}

// runPayloadQuery issues one request carrying an opaque payload stream,
// recording it into the replay buffer on the first attempt and replaying
// it verbatim on a post-auth retry (spec §3, PayloadReplayBuffer).
func (d *Device) runPayloadQuery(ep *EndpointDescriptor, verb string, payload PayloadSource, firstAttempt bool) (Status, error) {
	if err := d.eng.beginQuery(ep, verb); err != nil {
		return Io, err
	}

	var src PayloadSource
	if firstAttempt {
		d.replay.reset()
		src = payload
	} else {
		d.replay.rewind()
		src = &d.replay
	}

	if src != nil {
		buf := make([]byte, defaultPayloadChunk)
		for {
			n, rerr := src.Read(buf)
			if rerr != nil {
				return Io, newError(Io, rerr.Error())
			}
			if n == 0 {
				break
			}
			if firstAttempt {
				d.replay.record(buf[:n])
			}
			if _, werr := d.eng.writeRaw(buf[:n]); werr != nil {
				return Io, werr
			}
		}
	}
	return d.eng.endQuery()
}

func (d *Device) query(ep *EndpointDescriptor, verb string, payload PayloadSource) (Status, error) {
	return d.withAuthRetry(ep, func(first bool) (Status, error) {
		return d.runPayloadQuery(ep, verb, payload, first)
	})
}

// queryStructured issues one request with a MessagePack-typed body built
// by encode, retrying through the auth sub-dialogue the same way query
// does. encode may be nil for a request with no body beyond its
// addressing value.
func (d *Device) queryStructured(ep *EndpointDescriptor, verb string, encode func(*wire.Writer) error) (Status, error) {
	return d.withAuthRetry(ep, func(first bool) (Status, error) {
		if err := d.eng.beginQuery(ep, verb); err != nil {
			return Io, err
		}
		if encode != nil {
			if err := encode(d.eng.writer()); err != nil {
				return Io, mapIOErr(err)
			}
		}
		return d.eng.endQuery()
	})
}

// QueryEndpoint issues an application-defined verb against ep, streaming
// payload (which may be nil) as the request body, and returns the reply
// body as a stream the caller may read any prefix of.
func (d *Device) QueryEndpoint(ep EndpointDescriptor, verb string, payload PayloadSource) (io.Reader, Status, error) {
	status, err := d.query(&ep, verb, payload)
	if err != nil {
		return nil, status, err
	}
	return d.eng.replyBody(), status, nil
}

// EnumerateEndpoints lists the endpoints currently present on the device
// and refreshes the local endpoint cache used by InspectEndpoint.
func (d *Device) EnumerateEndpoints() ([]EndpointDescriptor, error) {
	status, err := d.queryStructured(nil, VerbEnumerate, nil)
	if err != nil {
		return nil, err
	}
	if status != Ok {
		return nil, d.latch(errFor(status))
	}

	r := d.eng.reader()
	n, rerr := r.ReadArrayHeader()
	if rerr != nil {
		return nil, d.latch(mapIOErr(rerr))
	}

	eps := make([]EndpointDescriptor, 0, n)
	typeBuf := make([]byte, MaxShortNameLen)
	nameBuf := make([]byte, MaxShortNameLen)
	keyBuf := make([]byte, 16)
	for i := uint32(0); i < n; i++ {
		cnt, cerr := r.ReadMapHeader()
		if cerr != nil {
			return nil, d.latch(mapIOErr(cerr))
		}
		if cnt != 2 {
			return nil, d.latch(newError(Io, "format error"))
		}
		var (
			haveType, haveName bool
			typeLen, nameLen   int
		)
		for k := uint32(0); k < cnt; k++ {
			kn, kerr := r.ReadStringInto(keyBuf)
			if kerr != nil {
				return nil, d.latch(mapIOErr(kerr))
			}
			switch string(keyBuf[:kn]) {
			case "type":
				if haveType {
					return nil, d.latch(newError(Io, "format error"))
				}
				typeLen, err = r.ReadStringInto(typeBuf)
				haveType = true
			case "name":
				if haveName {
					return nil, d.latch(newError(Io, "format error"))
				}
				nameLen, err = r.ReadStringInto(nameBuf)
				haveName = true
			default:
				return nil, d.latch(newError(Io, "format error"))
			}
			if err != nil {
				return nil, d.latch(mapIOErr(err))
			}
		}
		if !haveType || !haveName {
			return nil, d.latch(newError(Io, "format error"))
		}
		eps = append(eps, EndpointDescriptor{
			Type: ShortName(typeBuf[:typeLen]),
			Name: ShortName(nameBuf[:nameLen]),
		})
	}

	d.endpoints = eps
	d.endpointsValid = true
	if d.log != nil {
		d.log.Debugw("enumerated endpoints", "device", d.Descriptor.SystemName, "count", len(eps))
	}
	return eps, nil
}

// InspectEndpoint reports whether ep currently exists on the device,
// consulting the cache populated by the last EnumerateEndpoints and
// refreshing it first if it has been invalidated by a create or destroy.
func (d *Device) InspectEndpoint(ep EndpointDescriptor) (bool, error) {
	if !d.endpointsValid {
		if _, err := d.EnumerateEndpoints(); err != nil {
			return false, err
		}
	}
	for _, e := range d.endpoints {
		if e.Equal(ep) {
			return true, nil
		}
	}
	return false, nil
}

// writeEndpointMap encodes a {type, name} map body, the shape spec §4.3
// requires for both @create and @destroy.
func writeEndpointMap(w *wire.Writer, ep EndpointDescriptor) error {
	if err := w.WriteMapHeader(2); err != nil {
		return err
	}
	if err := w.WriteString("type"); err != nil {
		return err
	}
	if err := w.WriteString(ep.Type.String()); err != nil {
		return err
	}
	if err := w.WriteString("name"); err != nil {
		return err
	}
	return w.WriteString(ep.Name.String())
}

// CreateEndpoint asks the device to create ep. Unlike the C source this
// module is grounded on, the request body carries only {type, name}: see
// the Open Question decision in DESIGN.md for why endpoint-type-specific
// creation parameters are not supported.
func (d *Device) CreateEndpoint(ep EndpointDescriptor) error {
	status, err := d.queryStructured(nil, VerbCreate, func(w *wire.Writer) error {
		return writeEndpointMap(w, ep)
	})
	if err != nil {
		return err
	}
	if status != Ok {
		return d.latch(errFor(status))
	}
	d.endpointsValid = false
	return nil
}

// DestroyEndpoint asks the device to destroy ep. Like @create, @destroy is
// device-global: ep is carried in the {type, name} body, not the request's
// addressing value (spec §4.3).
func (d *Device) DestroyEndpoint(ep EndpointDescriptor) error {
	status, err := d.queryStructured(nil, VerbDestroy, func(w *wire.Writer) error {
		return writeEndpointMap(w, ep)
	})
	if err != nil {
		return err
	}
	if status != Ok {
		return d.latch(errFor(status))
	}
	d.endpointsValid = false
	return nil
}
