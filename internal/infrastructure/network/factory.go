package network

import (
	"time"

	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// NetworkManagerFactory creates the bridge editor and reloader matching the host
type NetworkManagerFactory struct {
	osDetector      interfaces.OSDetector
	commandExecutor interfaces.CommandExecutor
	fileSystem      interfaces.FileSystem
	logger          *logrus.Logger
}

// NewNetworkManagerFactory creates a new NetworkManagerFactory
func NewNetworkManagerFactory(
	osDetector interfaces.OSDetector,
	executor interfaces.CommandExecutor,
	fs interfaces.FileSystem,
	logger *logrus.Logger,
) *NetworkManagerFactory {
	return &NetworkManagerFactory{
		osDetector:      osDetector,
		commandExecutor: executor,
		fileSystem:      fs,
		logger:          logger,
	}
}

// CreateBridgeEditor creates the editor for bridge in the interfaces file at path
func (f *NetworkManagerFactory) CreateBridgeEditor(backup ConfigBackup, path, bridge string) *FileBridgeEditor {
	return NewFileBridgeEditor(f.fileSystem, backup, f.logger, path, bridge)
}

// CreateReloader prefers ifupdown2, which Proxmox VE ships. Plain Debian hosts may still
// run classic ifupdown.
func (f *NetworkManagerFactory) CreateReloader(timeout time.Duration, bridge string) interfaces.NetworkReloader {
	osType, err := f.osDetector.DetectOS()
	if err != nil {
		f.logger.WithError(err).Debug("OS detection failed, assuming ifupdown2")
	}

	if _, err := f.commandExecutor.LookPath("ifreload"); err == nil || osType == interfaces.OSTypeProxmox {
		f.logger.WithField("os_type", osType).Debug("Using ifupdown2 reloader")
		return NewIfreloadReloader(f.commandExecutor, f.logger, timeout)
	}

	f.logger.WithField("os_type", osType).Warn("ifreload not found, falling back to ifdown/ifup")
	return NewIfupdownReloader(f.commandExecutor, f.logger, timeout, bridge)
}
