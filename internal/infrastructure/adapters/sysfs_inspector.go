package adapters

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"usbnic-failover/internal/domain/errors"
)

// SysfsInspector reads interface and device topology from a sysfs tree.
// root is "/sys" on a real host and a synthetic tree in tests.
type SysfsInspector struct {
	root string
}

// NewSysfsInspector creates a SysfsInspector rooted at root
func NewSysfsInspector(root string) *SysfsInspector {
	return &SysfsInspector{root: root}
}

func (s *SysfsInspector) netPath(parts ...string) string {
	return filepath.Join(append([]string{s.root, "class", "net"}, parts...)...)
}

// ListInterfaces returns the interface names below class/net, sorted
func (s *SysfsInspector) ListInterfaces(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.netPath())
	if err != nil {
		return nil, errors.NewSystemError("failed to list network interfaces", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// DevicePath resolves the device symlink of an interface. Virtual interfaces have none.
func (s *SysfsInspector) DevicePath(ctx context.Context, name string) (string, error) {
	if !s.interfaceExists(name) {
		return "", errors.NewNotFoundError("network interface not found: " + name)
	}

	path, err := filepath.EvalSymlinks(s.netPath(name, "device"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.NewSystemError("failed to resolve device path of "+name, err)
	}
	return path, nil
}

// ReadDeviceAttribute reads and trims an attribute file below devicePath
func (s *SysfsInspector) ReadDeviceAttribute(ctx context.Context, devicePath, attribute string) (string, bool, error) {
	data, err := os.ReadFile(filepath.Join(devicePath, attribute))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, errors.NewSystemError("failed to read device attribute "+attribute, err)
	}
	return strings.TrimSpace(string(data)), true, nil
}

// CurrentDriverOf follows the device/driver symlink. Unbound devices return "".
func (s *SysfsInspector) CurrentDriverOf(ctx context.Context, name string) (string, error) {
	if !s.interfaceExists(name) {
		return "", errors.NewNotFoundError("network interface not found: " + name)
	}

	target, err := os.Readlink(s.netPath(name, "device", "driver"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", errors.NewSystemError("failed to read driver link of "+name, err)
	}
	return filepath.Base(target), nil
}

func (s *SysfsInspector) interfaceExists(name string) bool {
	_, err := os.Lstat(s.netPath(name))
	return err == nil
}
