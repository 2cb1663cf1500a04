package hakomari

import "fmt"

// DeviceDescriptor identifies one enumerated hakomari device. It is
// produced by Context.EnumerateDevices, immutable after creation, and
// owned by the Context that produced it.
type DeviceDescriptor struct {
	UserName   ShortName
	SystemName ShortName
}

// EndpointDescriptor addresses a logical service on a device: a (type,
// name) pair, e.g. (GPG, "My Key"). Endpoint descriptors compare
// structurally.
type EndpointDescriptor struct {
	Type ShortName
	Name ShortName
}

func (e EndpointDescriptor) String() string {
	return fmt.Sprintf("%s:%s", e.Type, e.Name)
}

// Equal reports whether e and other address the same endpoint.
func (e EndpointDescriptor) Equal(other EndpointDescriptor) bool {
	return e.Type == other.Type && e.Name == other.Name
}

// PassphraseScreen is a monochrome bitmap rendered by the host on behalf
// of the device to prompt for a passphrase, per spec §3. It is
// re-allocated on every authentication round, owned by the Device that
// fetched it, and is only valid for the duration of the auth handler
// invocation that receives it.
type PassphraseScreen struct {
	Width, Height uint32
	ImageBits     []byte
}

// byteLen returns the exact on-wire byte length a PassphraseScreen of the
// given dimensions must have: ceil(width*height/8).
func passphraseByteLen(width, height uint32) uint64 {
	bits := uint64(width) * uint64(height)
	return (bits + 7) / 8
}

// Pixel reports whether bit (x, y) is set. x and y must be within
// [0, Width) and [0, Height); out-of-range coordinates return false.
//
// Bits are packed row-major in x-then-y order: the bit for (x, y) lives at
// byte index (x + y*width)/8, shifted right by (x mod 8) and masked by 1,
// per spec §3.
func (s *PassphraseScreen) Pixel(x, y uint32) bool {
	if x >= s.Width || y >= s.Height {
		return false
	}
	bitIndex := uint64(x) + uint64(y)*uint64(s.Width)
	byteIndex := bitIndex / 8
	if byteIndex >= uint64(len(s.ImageBits)) {
		return false
	}
	shift := uint(bitIndex % 8)
	return (s.ImageBits[byteIndex]>>shift)&1 == 1
}
