package entities

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DeviceIdentity is the USB hardware identity of a NIC. It survives replugs and renames.
type DeviceIdentity struct {
	VendorID  string
	ProductID string
}

// LinkState is the physical carrier state of an interface
type LinkState string

const (
	LinkUp      LinkState = "up"
	LinkDown    LinkState = "down"
	LinkUnknown LinkState = "unknown"
)

// AdminState is the administrative state of an interface
type AdminState string

const (
	AdminUp   AdminState = "up"
	AdminDown AdminState = "down"
)

// NetworkInterface is a network interface discovered by enumeration.
// It is never persisted; the name may change across a replug.
type NetworkInterface struct {
	Name       string
	Identity   DeviceIdentity
	Driver     string
	DevicePath string
	Link       LinkState
	Admin      AdminState
}

var (
	ErrInvalidMacAddress    = errors.New("invalid MAC address format")
	ErrInvalidInterfaceName = errors.New("invalid interface name")
	ErrInvalidDeviceID      = errors.New("invalid USB vendor/product id")
)

var (
	usbIDRegex         = regexp.MustCompile(`^[0-9a-f]{4}$`)
	macRegex           = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)
	interfaceNameRegex = regexp.MustCompile(`^[^\s/:]{1,15}$`)
)

// NewDeviceIdentity validates and normalizes a vendor/product pair (4 lowercase hex digits each)
func NewDeviceIdentity(vendorID, productID string) (DeviceIdentity, error) {
	v := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(vendorID), "0x"))
	p := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(productID), "0x"))
	if !usbIDRegex.MatchString(v) || !usbIDRegex.MatchString(p) {
		return DeviceIdentity{}, fmt.Errorf("%w: %s:%s", ErrInvalidDeviceID, vendorID, productID)
	}
	return DeviceIdentity{VendorID: v, ProductID: p}, nil
}

// Matches reports whether the given sysfs idVendor/idProduct values belong to this identity
func (d DeviceIdentity) Matches(vendorID, productID string) bool {
	return strings.EqualFold(strings.TrimSpace(vendorID), d.VendorID) &&
		strings.EqualFold(strings.TrimSpace(productID), d.ProductID)
}

// String returns the lsusb style "vvvv:pppp" form
func (d DeviceIdentity) String() string {
	return d.VendorID + ":" + d.ProductID
}

// IsBoundTo reports whether the interface is currently driven by driver
func (ni NetworkInterface) IsBoundTo(driver string) bool {
	return ni.Driver != "" && ni.Driver == driver
}

// IsUSBDevicePath reports whether a resolved sysfs device path sits below a USB controller
func IsUSBDevicePath(path string) bool {
	return strings.Contains(path, "/usb")
}

// ValidateInterfaceName checks a Linux interface name
func ValidateInterfaceName(name string) error {
	if !interfaceNameRegex.MatchString(name) || name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidInterfaceName, name)
	}
	return nil
}

// NormalizeMAC validates a MAC address and returns it lowercased with colon separators
func NormalizeMAC(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if !macRegex.MatchString(mac) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMacAddress, mac)
	}
	return strings.ToLower(strings.ReplaceAll(mac, "-", ":")), nil
}
