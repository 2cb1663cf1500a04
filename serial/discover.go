package serial

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	usb "github.com/daedaluz/gousb"
)

// HakomariVendorID and HakomariProductID identify a hakomari device on
// its USB device descriptor (spec §6). 0x1209 is the pid.codes shared
// vendor ID used by open-hardware projects that have not registered their
// own VID.
const (
	HakomariVendorID  = 0x1209
	HakomariProductID = 0x0001
)

// PortInfo describes one candidate serial port found on the host.
type PortInfo struct {
	// Name is the tty device's short name, e.g. "ttyACM0".
	Name string
	// Path is the device node to pass to Open, e.g. "/dev/ttyACM0".
	Path string
}

// EnumeratePorts lists USB-CDC-ACM and USB-serial device nodes present on
// the host. It does not filter by vendor/product ID; use IsHakomariDevice
// to narrow the list down.
func EnumeratePorts() ([]PortInfo, error) {
	entries, err := os.ReadDir("/sys/class/tty")
	if err != nil {
		return nil, err
	}
	var ports []PortInfo
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasPrefix(name, "ttyACM") && !strings.HasPrefix(name, "ttyUSB") {
			continue
		}
		ports = append(ports, PortInfo{Name: name, Path: filepath.Join("/dev", name)})
	}
	return ports, nil
}

// IsHakomariDevice reports whether info's underlying USB device descriptor
// matches HakomariVendorID/HakomariProductID. It reads the raw descriptor
// blob sysfs exposes for the tty's parent USB device and decodes it with
// gousb's descriptor parser, rather than requiring a live USB connection.
func IsHakomariDevice(info PortInfo) bool {
	data, err := os.ReadFile(usbSysfsPath(info, "descriptors"))
	if err != nil {
		return false
	}
	var found bool
	err = usb.ReadDescriptors(bytes.NewReader(data), func(d usb.Descriptor) {
		if dev, ok := d.(*usb.DeviceDescriptor); ok {
			found = dev.IDVendor == HakomariVendorID && dev.IDProduct == HakomariProductID
		}
	})
	return err == nil && found
}

// DescribeDevice reads the identity hakomari attaches to a
// DeviceDescriptor straight from the USB device's sysfs string files,
// without needing a live connection to the device: UserName from the USB
// product string, SystemName from the USB serial number string.
func DescribeDevice(info PortInfo) (userName, systemName string, err error) {
	product, err := os.ReadFile(usbSysfsPath(info, "product"))
	if err != nil {
		return "", "", err
	}
	serialNumber, err := os.ReadFile(usbSysfsPath(info, "serial"))
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(string(product)), strings.TrimSpace(string(serialNumber)), nil
}

// usbSysfsPath resolves the sysfs attribute file for the USB device
// backing the tty port described by info. /sys/class/tty/<tty>/device is
// a symlink to the tty's own device node; its USB parent (where
// idVendor/idProduct/descriptors/product/serial live) is two directories
// up for a USB-CDC-ACM interface.
func usbSysfsPath(info PortInfo, attr string) string {
	return filepath.Join("/sys/class/tty", info.Name, "device", "..", "..", attr)
}
