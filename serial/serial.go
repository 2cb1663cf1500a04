// Package serial adapts github.com/daedaluz/goserial's termios-based
// Port into the hakomari transport.Transport interface, and uses
// github.com/daedaluz/gousb's descriptor parser to recognize a hakomari
// device among the serial ports present on the host (spec §6).
package serial

import (
	"errors"
	"syscall"
	"time"

	goserial "github.com/daedaluz/goserial"

	"github.com/bullno1/libhakomari/transport"
)

// Baud rate and framing hakomari devices are wired for (spec §6): 8 data
// bits, no parity, one stop bit, hardware (RTS/CTS) flow control.
const baudRate = goserial.B115200

// Port is a transport.Transport backed by an open serial device node.
type Port struct {
	port *goserial.Port
}

// Open opens the serial device node at name (e.g. "/dev/ttyACM0") and
// configures it for hakomari's wire framing.
func Open(name string) (*Port, error) {
	opts := goserial.NewOptions().SetReadTimeout(0)
	raw, err := goserial.Open(name, opts)
	if err != nil {
		return nil, err
	}
	if err := configure(raw); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &Port{port: raw}, nil
}

func configure(p *goserial.Port) error {
	attrs, err := p.GetAttr2()
	if err != nil {
		return err
	}
	attrs.MakeRaw()
	attrs.SetSpeed(baudRate)
	attrs.Cflag &= ^(goserial.CSIZE | goserial.PARENB | goserial.CSTOPB)
	attrs.Cflag |= goserial.CS8 | goserial.CLOCAL | goserial.CRTSCTS
	return p.SetAttr2(goserial.TCSANOW, attrs)
}

// Write implements transport.Transport. When flush is true it blocks
// until the serial driver reports the bytes fully transmitted.
func (p *Port) Write(data []byte, flush bool, timeout time.Duration) error {
	if _, err := p.port.Write(data); err != nil {
		return err
	}
	if !flush {
		return nil
	}
	return p.port.Drain()
}

// Read implements transport.Transport, translating the driver's
// deadline-expired error into transport.ErrTimeout.
func (p *Port) Read(data []byte, timeout time.Duration) (int, error) {
	n, err := p.port.ReadTimeout(data, timeout)
	if err != nil {
		if errors.Is(err, syscall.ETIMEDOUT) || errors.Is(err, syscall.EAGAIN) {
			return n, transport.ErrTimeout
		}
		return n, err
	}
	return n, nil
}

// Close implements transport.Transport.
func (p *Port) Close() error {
	err := p.port.Close()
	if errors.Is(err, goserial.ErrClosed) {
		return transport.ErrClosed
	}
	return err
}
