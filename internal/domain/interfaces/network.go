package interfaces

import (
	"context"
	"net"
	"time"

	"usbnic-failover/internal/domain/entities"
)

// SystemInspector is the capability set the failover core needs from the host.
// Production is backed by sysfs and netlink; tests use fakes.
type SystemInspector interface {
	// ListInterfaces returns all network interface names
	ListInterfaces(ctx context.Context) ([]string, error)

	// DevicePath returns the resolved sysfs device path of an interface, or "" for virtual devices
	DevicePath(ctx context.Context, name string) (string, error)

	// ReadDeviceAttribute reads an attribute file below a device path. ok is false when it does not exist.
	ReadDeviceAttribute(ctx context.Context, devicePath, attribute string) (value string, ok bool, err error)

	// CurrentDriverOf returns the kernel driver bound to an interface, or "" when unbound
	CurrentDriverOf(ctx context.Context, name string) (string, error)

	// CarrierOf returns the physical link state
	CarrierOf(ctx context.Context, name string) (entities.LinkState, error)

	// AdminStateOf returns the administrative state
	AdminStateOf(ctx context.Context, name string) (entities.AdminState, error)

	// SetAdminState brings an interface administratively up or down
	SetAdminState(ctx context.Context, name string, state entities.AdminState) error

	// HardwareAddressOf returns the interface MAC address
	HardwareAddressOf(ctx context.Context, name string) (string, error)

	// DefaultGateway returns the IPv4 default gateway. ok is false when no default route exists.
	DefaultGateway(ctx context.Context) (gw net.IP, ok bool, err error)
}

// Pinger sends a single reachability probe
type Pinger interface {
	Ping(ctx context.Context, addr net.IP, timeout time.Duration) error
}

// NetworkReloader applies the interfaces file to the live system
type NetworkReloader interface {
	Reload(ctx context.Context) error
}

// BridgeConfigEditor reads and mutates the bridge declaration of the interfaces file.
// It never applies changes; callers reload the network afterwards.
type BridgeConfigEditor interface {
	UplinkPort() (string, error)
	SetUplinkPort(port string) error
	HasPinnedAddress() (bool, error)
	PinnedAddress() (string, error)
	PinAddress(mac string) error
	UnpinAddress(mac string) error
	AddressingMethod(iface string) (string, error)

	// BackupPath is the backup taken before this process first changed the file, or ""
	BackupPath() string
	// LatestBackup is the newest backup on disk from any run, or ""
	LatestBackup() (string, error)
}

// DiagnosticsCollector gathers the operator debugging snapshot
type DiagnosticsCollector interface {
	Snapshot(ctx context.Context, identity entities.DeviceIdentity) entities.DiagnosticSnapshot
}
