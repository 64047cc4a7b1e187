package system

import (
	"context"
	"fmt"
	"strings"
	"time"

	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"
	"usbnic-failover/pkg/utils"

	"github.com/sirupsen/logrus"
)

// PackageManager installs and removes Debian packages with apt-get
type PackageManager struct {
	commandExecutor interfaces.CommandExecutor
	logger          *logrus.Logger
	installTimeout  time.Duration
	queryTimeout    time.Duration
}

// NewPackageManager creates a new PackageManager. installTimeout bounds install and removal,
// which build DKMS modules and can take minutes.
func NewPackageManager(executor interfaces.CommandExecutor, logger *logrus.Logger, installTimeout, queryTimeout time.Duration) *PackageManager {
	return &PackageManager{
		commandExecutor: executor,
		logger:          logger,
		installTimeout:  installTimeout,
		queryTimeout:    queryTimeout,
	}
}

// InstallLocal installs a local .deb archive, pulling its dependencies from the configured repositories
func (m *PackageManager) InstallLocal(ctx context.Context, debPath string) error {
	if err := utils.ValidateDebPackagePath(debPath); err != nil {
		return errors.NewValidationError("invalid package path", err)
	}

	arg := utils.AptPackageArgument(debPath)
	m.logger.WithField("package", arg).Info("Installing driver package")

	output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.installTimeout, "apt-get", "install", "-y", arg)
	if err != nil {
		return errors.NewExternalError(fmt.Sprintf("apt-get install %s failed: %s", arg, lastLines(output, 5)), err)
	}
	return nil
}

// Remove purges an installed package
func (m *PackageManager) Remove(ctx context.Context, name string) error {
	if err := utils.ValidatePackageName(name); err != nil {
		return errors.NewValidationError("invalid package name", err)
	}

	m.logger.WithField("package", name).Info("Removing driver package")

	output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.installTimeout, "apt-get", "remove", "-y", "--purge", name)
	if err != nil {
		return errors.NewExternalError(fmt.Sprintf("apt-get remove %s failed: %s", name, lastLines(output, 5)), err)
	}
	return nil
}

// IsInstalled reports whether dpkg considers name fully installed
func (m *PackageManager) IsInstalled(ctx context.Context, name string) (bool, error) {
	if err := utils.ValidatePackageName(name); err != nil {
		return false, errors.NewValidationError("invalid package name", err)
	}

	output, err := m.commandExecutor.ExecuteWithTimeout(ctx, m.queryTimeout, "dpkg-query", "-W", "-f=${Status}", name)
	if err != nil {
		// dpkg-query exits non-zero for unknown packages
		m.logger.WithError(err).WithField("package", name).Debug("Package not known to dpkg")
		return false, nil
	}
	return strings.TrimSpace(string(output)) == "install ok installed", nil
}

// lastLines returns at most n trailing non-empty lines of output joined with "; "
func lastLines(output []byte, n int) string {
	var lines []string
	for _, line := range strings.Split(string(output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
