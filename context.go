package hakomari

import (
	"go.uber.org/zap"

	"github.com/bullno1/libhakomari/serial"
	"github.com/bullno1/libhakomari/slip"
)

// Options configures a Context, following the functional-options shape
// used throughout this module's teacher codebase.
type Options struct {
	logger      *zap.SugaredLogger
	authHandler AuthHandler
	codecOpts   []slip.Option
}

var defaultOptions = Options{
	logger: zap.NewNop().Sugar(),
}

// Option configures a Context at construction time.
type Option func(*Options)

// WithLogger attaches a zap logger a Context (and the Devices it opens)
// uses for diagnostic output. Without this option, logging is a no-op.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) { o.logger = l.Sugar() }
}

// WithAuthHandler sets the AuthHandler every Device opened by this
// Context is initialized with. It may still be overridden per-device
// with Device.SetAuthHandler.
func WithAuthHandler(h AuthHandler) Option {
	return func(o *Options) { o.authHandler = h }
}

// WithFrameOptions forwards codec-level options (buffer size, I/O
// timeout) to every slip.Codec a Device opened by this Context builds.
func WithFrameOptions(opts ...slip.Option) Option {
	return func(o *Options) { o.codecOpts = append(o.codecOpts, opts...) }
}

// Context is the top-level entry point: it discovers hakomari devices and
// owns the Devices it opens. It is not safe for concurrent use.
type Context struct {
	opts Options
	log  *zap.SugaredLogger

	devices map[string]*Device // keyed by serial.PortInfo.Path
	handles []deviceHandle     // last EnumerateDevices result, indexed by public index

	lastErr error
}

// Open constructs a Context. It performs no I/O by itself; discovery and
// device connection happen in EnumerateDevices and OpenDevice.
func Open(opts ...Option) (*Context, error) {
	o := defaultOptions
	for _, fn := range opts {
		fn(&o)
	}
	return &Context{
		opts:    o,
		log:     o.logger,
		devices: make(map[string]*Device),
	}, nil
}

// SetAuthHandler sets the AuthHandler applied to every Device this Context
// currently owns, and becomes the default for any Device it opens
// afterward (spec §6: set_auth_handler is a Context lifecycle operation,
// not merely a construction-time option).
func (c *Context) SetAuthHandler(h AuthHandler) {
	c.opts.authHandler = h
	for _, d := range c.devices {
		d.SetAuthHandler(h)
	}
}

// Close closes every Device still open under this Context.
func (c *Context) Close() error {
	var first error
	for path, d := range c.devices {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.devices, path)
	}
	return first
}

// LastError returns the error from the most recent failed operation, or
// nil. It is a convenience accessor; callers should prefer the error
// value returned directly by the operation they called.
func (c *Context) LastError() error { return c.lastErr }

func (c *Context) setLastError(err error) error {
	c.lastErr = err
	return err
}

// deviceHandle identifies one discovered-but-not-yet-opened device.
type deviceHandle struct {
	Descriptor DeviceDescriptor
	port       serial.PortInfo
}

// EnumerateDevices lists the hakomari devices currently attached to the
// host (spec §5). Each returned DeviceDescriptor is paired with an opaque
// index into the slice; OpenDevice takes that index, resolving Open
// Question (a) in DESIGN.md: an out-of-range index returns an Invalid
// error rather than panicking.
func (c *Context) EnumerateDevices() ([]DeviceDescriptor, error) {
	ports, err := serial.EnumeratePorts()
	if err != nil {
		return nil, c.setLastError(newError(Io, err.Error()))
	}

	var descs []DeviceDescriptor
	c.handles = c.handles[:0]
	for _, p := range ports {
		if !serial.IsHakomariDevice(p) {
			continue
		}
		desc, err := c.inspectPort(p)
		if err != nil {
			c.log.Debugw("skipping candidate port", "path", p.Path, "error", err)
			continue
		}
		c.handles = append(c.handles, deviceHandle{Descriptor: desc, port: p})
		descs = append(descs, desc)
	}
	return descs, nil
}

// inspectPort reads a candidate port's identity straight from sysfs,
// without opening a connection to the device itself.
func (c *Context) inspectPort(p serial.PortInfo) (DeviceDescriptor, error) {
	userName, systemName, err := serial.DescribeDevice(p)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	user, err := NewShortName(userName)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	system, err := NewShortName(systemName)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	return DeviceDescriptor{UserName: user, SystemName: system}, nil
}

// InspectDevice re-reads a previously enumerated device's descriptor,
// without opening a long-lived Device for it.
func (c *Context) InspectDevice(index int) (DeviceDescriptor, error) {
	h, err := c.handleAt(index)
	if err != nil {
		return DeviceDescriptor{}, err
	}
	return c.inspectPort(h.port)
}

func (c *Context) handleAt(index int) (deviceHandle, error) {
	if index < 0 || index >= len(c.handles) {
		return deviceHandle{}, c.setLastError(newError(Invalid, "device index out of range"))
	}
	return c.handles[index], nil
}

// OpenDevice opens a long-lived connection to the device at index (as
// returned by EnumerateDevices).
func (c *Context) OpenDevice(index int) (*Device, error) {
	h, err := c.handleAt(index)
	if err != nil {
		return nil, err
	}
	if d, ok := c.devices[h.port.Path]; ok {
		return d, nil
	}

	conn, err := serial.Open(h.port.Path)
	if err != nil {
		return nil, c.setLastError(newError(Io, err.Error()))
	}
	d := newDevice(h.Descriptor, conn, c.log, c.opts.codecOpts...)
	d.ctx = c
	d.SetAuthHandler(c.opts.authHandler)
	c.devices[h.port.Path] = d
	return d, nil
}

// CloseDevice closes d and forgets it, if it was opened through this
// Context.
func (c *Context) CloseDevice(d *Device) error {
	for path, known := range c.devices {
		if known == d {
			delete(c.devices, path)
			return d.Close()
		}
	}
	return d.Close()
}
