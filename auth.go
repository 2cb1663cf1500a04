package hakomari

import (
	"github.com/bullno1/libhakomari/wire"
)

// AuthHandler drives the interactive passphrase prompt when a device
// reports AuthRequired (spec §4.4). Implementations inspect the
// PassphraseScreen bitmap through AuthContext and report pointer events
// back through it; AskPassphrase returning nil hands control back to the
// engine to finalize the sub-dialogue.
type AuthHandler interface {
	AskPassphrase(ctx *AuthContext) error
}

// AuthContext is the handle an AuthHandler receives for one authentication
// round. It is only valid for the duration of the AskPassphrase call that
// received it.
type AuthContext struct {
	screen  *PassphraseScreen
	eng     *engine
	entered bool
}

// PassphraseScreen returns the bitmap the device wants rendered.
func (c *AuthContext) PassphraseScreen() *PassphraseScreen { return c.screen }

// InputPointer reports one pointer event at device-bitmap coordinates
// (x, y); down is true on press, false on release. Events are streamed to
// the device as they are reported, so a handler can render feedback
// incrementally rather than batching a whole gesture.
func (c *AuthContext) InputPointer(x, y uint32, down bool) error {
	w := c.eng.writer()
	if err := w.WriteArrayHeader(3); err != nil {
		return mapIOErr(err)
	}
	if err := w.WriteUint32(x); err != nil {
		return mapIOErr(err)
	}
	if err := w.WriteUint32(y); err != nil {
		return mapIOErr(err)
	}
	if err := w.WriteBool(down); err != nil {
		return mapIOErr(err)
	}
	if err := c.eng.flush(); err != nil {
		return err
	}
	if down {
		c.entered = true
	}
	return nil
}

// authenticate runs the @get-passphrase-screen / @input-passphrase
// sub-dialogue interposed on an outstanding query, both issued against the
// endpoint that triggered AuthRequired (spec §4.4). It returns the status
// of the @input-passphrase reply: Ok if the device accepted the entered
// passphrase, AuthRequired if it did not (or no handler is registered), or
// Io on a protocol failure.
func authenticate(eng *engine, ep *EndpointDescriptor, handler AuthHandler) (Status, error) {
	if handler == nil {
		return AuthRequired, errFor(AuthRequired)
	}

	if err := eng.beginQuery(ep, VerbGetPassphraseScreen); err != nil {
		return Io, err
	}
	if status, err := eng.endQuery(); err != nil {
		return status, err
	}

	screen, err := decodePassphraseScreen(eng.reader())
	if err != nil {
		return Io, err
	}

	if err := eng.beginQuery(ep, VerbInputPassphrase); err != nil {
		return Io, err
	}
	// Let the device start drawing the prompt before the handler has
	// reported a single pointer event (spec §4.4 step 2).
	if err := eng.flush(); err != nil {
		return Io, err
	}

	ctx := &AuthContext{screen: screen, eng: eng}
	handlerErr := handler.AskPassphrase(ctx)

	// Terminate the pointer-event stream with a nil before closing the
	// frame (spec §4.3, §4.4 step 4).
	if err := eng.writer().WriteNil(); err != nil {
		return Io, mapIOErr(err)
	}

	status, err := eng.endQuery()
	if handlerErr != nil {
		if err != nil {
			return status, err
		}
		return AuthRequired, newError(AuthRequired, handlerErr.Error())
	}
	if err != nil {
		return status, err
	}
	if !ctx.entered {
		// The handler returned without ever pressing down: treat like a
		// cancelled prompt rather than trusting a possibly-stale Ok.
		return AuthRequired, errFor(AuthRequired)
	}
	return status, nil
}

// decodePassphraseScreen decodes @get-passphrase-screen's reply body: a
// strict 3-key map {width, height, image_data} (spec §4.4).
func decodePassphraseScreen(r *wire.Reader) (*PassphraseScreen, error) {
	n, err := r.ReadMapHeader()
	if err != nil {
		return nil, mapIOErr(err)
	}
	if n != 3 {
		return nil, newError(Io, "format error")
	}

	var (
		width, height uint32
		bits          []byte
		keyBuf        = make([]byte, 16)
	)
	for i := uint32(0); i < n; i++ {
		kn, kerr := r.ReadStringInto(keyBuf)
		if kerr != nil {
			return nil, mapIOErr(kerr)
		}
		switch string(keyBuf[:kn]) {
		case "width":
			width, err = r.ReadUint32()
		case "height":
			height, err = r.ReadUint32()
		case "image_data":
			bits, err = r.ReadBytes()
		default:
			return nil, newError(Io, "format error")
		}
		if err != nil {
			return nil, mapIOErr(err)
		}
	}

	if uint64(len(bits)) != passphraseByteLen(width, height) {
		return nil, newError(Io, "format error")
	}
	return &PassphraseScreen{Width: width, Height: height, ImageBits: bits}, nil
}
