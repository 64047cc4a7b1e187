package network

import (
	"fmt"
	"strings"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

var (
	bridgePortKeys = []string{"bridge-ports", "bridge_ports"}
	addressKeys    = []string{"address"}
	hwAddressKeys  = []string{"hwaddress"}
)

// ConfigBackup takes the per-run backup of a file before its first mutation
type ConfigBackup interface {
	EnsureBackup(configPath string) (string, error)
	BackupOf(configPath string) (string, bool)
	LatestBackup(configPath string) (string, bool, error)
}

// FileBridgeEditor edits the bridge stanza of an ifupdown interfaces file.
// Every mutation is written to a temporary file and renamed over the original.
type FileBridgeEditor struct {
	fileSystem interfaces.FileSystem
	backup     ConfigBackup
	logger     *logrus.Logger
	path       string
	bridge     string
}

// NewFileBridgeEditor creates a new FileBridgeEditor for bridge in path
func NewFileBridgeEditor(
	fs interfaces.FileSystem,
	backup ConfigBackup,
	logger *logrus.Logger,
	path string,
	bridge string,
) *FileBridgeEditor {
	return &FileBridgeEditor{
		fileSystem: fs,
		backup:     backup,
		logger:     logger,
		path:       path,
		bridge:     bridge,
	}
}

// BackupPath returns the backup taken during this run, or "" when the file was not changed
func (e *FileBridgeEditor) BackupPath() string {
	backupPath, _ := e.backup.BackupOf(e.path)
	return backupPath
}

// LatestBackup returns the newest backup of the file from any run, or ""
func (e *FileBridgeEditor) LatestBackup() (string, error) {
	backupPath, _, err := e.backup.LatestBackup(e.path)
	return backupPath, err
}

// UplinkPort returns the first member port of the bridge, or "" when it has none
func (e *FileBridgeEditor) UplinkPort() (string, error) {
	_, stanza, err := e.loadBridge()
	if err != nil {
		return "", err
	}

	_, value, ok := stanza.Find(bridgePortKeys...)
	if !ok {
		return "", nil
	}
	fields := strings.Fields(value)
	if len(fields) == 0 || fields[0] == "none" {
		return "", nil
	}
	return fields[0], nil
}

// SetUplinkPort replaces the bridge member port list with port. Only that line changes.
func (e *FileBridgeEditor) SetUplinkPort(port string) error {
	if err := entities.ValidateInterfaceName(port); err != nil {
		return errors.NewValidationError("invalid uplink port", err)
	}

	file, stanza, err := e.loadBridge()
	if err != nil {
		return err
	}

	idx, value, ok := stanza.Find(bridgePortKeys...)
	if !ok {
		return errors.NewNotFoundError(fmt.Sprintf("bridge %s has no bridge-ports line in %s", e.bridge, e.path))
	}
	if value == port {
		return nil
	}

	stanza.SetValue(idx, port)
	if err := e.save(file); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"bridge": e.bridge,
		"from":   value,
		"to":     port,
	}).Info("Bridge uplink port rewritten")
	return nil
}

// HasPinnedAddress reports whether the bridge stanza carries a hwaddress line
func (e *FileBridgeEditor) HasPinnedAddress() (bool, error) {
	_, stanza, err := e.loadBridge()
	if err != nil {
		return false, err
	}
	return len(stanza.FindAll(hwAddressKeys...)) > 0, nil
}

// PinAddress inserts "hwaddress <mac>" after the bridge address line.
// It is a no-op when any hwaddress line already exists in the stanza.
func (e *FileBridgeEditor) PinAddress(mac string) error {
	normalized, err := entities.NormalizeMAC(mac)
	if err != nil {
		return errors.NewValidationError("invalid pin address", err)
	}

	file, stanza, err := e.loadBridge()
	if err != nil {
		return err
	}

	if len(stanza.FindAll(hwAddressKeys...)) > 0 {
		e.logger.WithField("bridge", e.bridge).Debug("Bridge address already pinned")
		return nil
	}

	after := 0
	if idx, _, ok := stanza.Find(addressKeys...); ok {
		after = idx
	}
	stanza.InsertAfter(after, "hwaddress", normalized)

	if err := e.save(file); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"bridge":  e.bridge,
		"address": normalized,
	}).Info("Bridge hardware address pinned")
	return nil
}

// UnpinAddress removes every hwaddress line of the bridge stanza carrying mac
func (e *FileBridgeEditor) UnpinAddress(mac string) error {
	normalized, err := entities.NormalizeMAC(mac)
	if err != nil {
		return errors.NewValidationError("invalid pin address", err)
	}

	file, stanza, err := e.loadBridge()
	if err != nil {
		return err
	}

	indexes := stanza.FindAll(hwAddressKeys...)
	removed := 0
	for i := len(indexes) - 1; i >= 0; i-- {
		_, value, _ := optionOf(stanza.Lines[indexes[i]])
		fields := strings.Fields(value)
		if len(fields) == 0 || !strings.EqualFold(fields[len(fields)-1], normalized) {
			continue
		}
		stanza.Remove(indexes[i])
		removed++
	}
	if removed == 0 {
		return nil
	}

	if err := e.save(file); err != nil {
		return err
	}

	e.logger.WithFields(logrus.Fields{
		"bridge":  e.bridge,
		"address": normalized,
	}).Info("Bridge hardware address unpinned")
	return nil
}

// PinnedAddress returns the address of the first hwaddress line, or ""
func (e *FileBridgeEditor) PinnedAddress() (string, error) {
	_, stanza, err := e.loadBridge()
	if err != nil {
		return "", err
	}
	_, value, ok := stanza.Find(hwAddressKeys...)
	if !ok {
		return "", nil
	}
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return "", nil
	}
	return fields[len(fields)-1], nil
}

// AddressingMethod returns the method of "iface <name> inet <method>", or "" when the
// interface is not declared in the file
func (e *FileBridgeEditor) AddressingMethod(name string) (string, error) {
	file, err := e.load()
	if err != nil {
		return "", err
	}
	stanza := file.Iface(name)
	if stanza == nil {
		return "", nil
	}
	return stanza.Method(), nil
}

func (e *FileBridgeEditor) load() (*InterfacesFile, error) {
	content, err := e.fileSystem.ReadFile(e.path)
	if err != nil {
		return nil, errors.NewSystemError(fmt.Sprintf("failed to read %s", e.path), err)
	}
	return ParseInterfaces(string(content)), nil
}

func (e *FileBridgeEditor) loadBridge() (*InterfacesFile, *Stanza, error) {
	file, err := e.load()
	if err != nil {
		return nil, nil, err
	}
	stanza := file.Iface(e.bridge)
	if stanza == nil {
		return nil, nil, errors.NewNotFoundError(fmt.Sprintf("bridge %s is not declared in %s", e.bridge, e.path))
	}
	return file, stanza, nil
}

func (e *FileBridgeEditor) save(file *InterfacesFile) error {
	if _, err := e.backup.EnsureBackup(e.path); err != nil {
		return err
	}

	tmp := e.path + ".usbnic-tmp"
	if err := e.fileSystem.WriteFile(tmp, []byte(file.Render()), constants.ConfigFilePermission); err != nil {
		return errors.NewSystemError("failed to write temporary interfaces file", err)
	}
	if err := e.fileSystem.Rename(tmp, e.path); err != nil {
		_ = e.fileSystem.Remove(tmp)
		return errors.NewSystemError(fmt.Sprintf("failed to replace %s", e.path), err)
	}
	return nil
}
