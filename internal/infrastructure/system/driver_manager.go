package system

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
)

// DriverManager drives DKMS, initramfs, udev and module loading
type DriverManager struct {
	commandExecutor interfaces.CommandExecutor
	fileSystem      interfaces.FileSystem
	logger          *logrus.Logger
	commandTimeout  time.Duration
	longTimeout     time.Duration
	sysRoot         string
}

// NewDriverManager creates a new DriverManager. longTimeout bounds initramfs regeneration.
func NewDriverManager(
	executor interfaces.CommandExecutor,
	fs interfaces.FileSystem,
	logger *logrus.Logger,
	commandTimeout time.Duration,
	longTimeout time.Duration,
	sysRoot string,
) *DriverManager {
	return &DriverManager{
		commandExecutor: executor,
		fileSystem:      fs,
		logger:          logger,
		commandTimeout:  commandTimeout,
		longTimeout:     longTimeout,
		sysRoot:         sysRoot,
	}
}

// VerifyDKMS checks that module is built and installed for at least one kernel
func (m *DriverManager) VerifyDKMS(ctx context.Context, module string) error {
	if err := utils.ValidateModuleName(module); err != nil {
		return errors.NewValidationError("invalid module name", err)
	}

	output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout, "dkms", "status", module)
	if err != nil {
		return errors.NewExternalError("dkms status failed", err)
	}

	for _, line := range strings.Split(string(output), "\n") {
		// e.g. "realtek-r8152/2.18.1, 6.8.12-4-pve, x86_64: installed"
		if strings.Contains(line, module) && strings.HasSuffix(strings.TrimSpace(line), "installed") {
			m.logger.WithField("dkms", strings.TrimSpace(line)).Info("DKMS module registered")
			return nil
		}
	}
	return errors.NewExternalError(fmt.Sprintf("DKMS module %s is not installed: %s", module, lastLines(output, 3)), nil)
}

// RegenerateInitramfs rebuilds the initramfs of the running kernel
func (m *DriverManager) RegenerateInitramfs(ctx context.Context) error {
	m.logger.Info("Regenerating initramfs")
	output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.longTimeout, "update-initramfs", "-u")
	if err != nil {
		return errors.NewExternalError("update-initramfs failed: "+lastLines(output, 3), err)
	}
	return nil
}

// ReloadUdevRules makes udev pick up rule files shipped by the package
func (m *DriverManager) ReloadUdevRules(ctx context.Context) error {
	if _, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout, "udevadm", "control", "--reload-rules"); err != nil {
		return errors.NewExternalError("udevadm control --reload-rules failed", err)
	}
	return nil
}

// TriggerUSB replays add events for USB devices of the vendor and waits for udev to settle
func (m *DriverManager) TriggerUSB(ctx context.Context, identity entities.DeviceIdentity) error {
	_, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout,
		"udevadm", "trigger", "--action=add", "--subsystem-match=usb", "--attr-match=idVendor="+identity.VendorID)
	if err != nil {
		return errors.NewExternalError("udevadm trigger failed", err)
	}
	if _, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout, "udevadm", "settle", "--timeout=30"); err != nil {
		m.logger.WithError(err).Warn("udevadm settle did not complete")
	}
	return nil
}

// SwapModules unloads every module of unload, then loads load. Unload failures are
// logged only; a module in use by another device is not fatal.
func (m *DriverManager) SwapModules(ctx context.Context, unload []string, load string) error {
	for _, module := range unload {
		if err := utils.ValidateModuleName(module); err != nil {
			return errors.NewValidationError("invalid module name", err)
		}
		if !m.IsModuleLoaded(module) {
			continue
		}
		if output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout, "modprobe", "-r", module); err != nil {
			m.logger.WithError(err).WithFields(logrus.Fields{
				"module": module,
				"output": lastLines(output, 2),
			}).Warn("Failed to unload module")
		}
	}

	if load == "" {
		return nil
	}
	if err := utils.ValidateModuleName(load); err != nil {
		return errors.NewValidationError("invalid module name", err)
	}
	if _, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.commandTimeout, "modprobe", load); err != nil {
		return errors.NewExternalError(fmt.Sprintf("modprobe %s failed", load), err)
	}
	m.logger.WithField("module", load).Info("Module loaded")
	return nil
}

// IsModuleLoaded reports whether module appears under /sys/module
func (m *DriverManager) IsModuleLoaded(module string) bool {
	return m.fileSystem.Exists(filepath.Join(m.sysRoot, "module", module))
}
