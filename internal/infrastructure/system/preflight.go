package system

import (
	"context"
	"fmt"
	"os"
	"strings"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// Preflight verifies privileges, tools and distribution before anything is touched
type Preflight struct {
	commandExecutor interfaces.CommandExecutor
	osDetector      interfaces.OSDetector
	logger          *logrus.Logger
	euid            func() int
}

// NewPreflight creates a new Preflight using the process effective uid
func NewPreflight(executor interfaces.CommandExecutor, osDetector interfaces.OSDetector, logger *logrus.Logger) *Preflight {
	return &Preflight{
		commandExecutor: executor,
		osDetector:      osDetector,
		logger:          logger,
		euid:            os.Geteuid,
	}
}

// Check returns a PreconditionError when not root, when any of tools is missing or
// when the host is not Debian based. Plain Debian passes with a warning.
func (p *Preflight) Check(ctx context.Context, tools []string) (interfaces.PreflightResult, error) {
	var result interfaces.PreflightResult

	if p.euid() != 0 {
		return result, errors.NewPreconditionError("must be run as root", nil)
	}

	var missing []string
	for _, tool := range tools {
		if _, err := p.commandExecutor.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if !p.anyAvailable(constants.ReloadTools) {
		missing = append(missing, strings.Join(constants.ReloadTools, " or "))
	}
	if len(missing) > 0 {
		return result, errors.NewPreconditionError(fmt.Sprintf("required tools not found: %s", strings.Join(missing, ", ")), nil)
	}

	osType, err := p.osDetector.DetectOS()
	if err != nil {
		return result, errors.NewPreconditionError("unsupported operating system", err)
	}
	result.OSType = osType

	if osType != interfaces.OSTypeProxmox {
		result.Warnings = append(result.Warnings, "host is not Proxmox VE; assuming a Debian bridge managed by ifupdown2")
	}

	p.logger.WithFields(logrus.Fields{
		"os_type": osType,
		"tools":   len(tools),
	}).Debug("Preflight checks passed")
	return result, nil
}

func (p *Preflight) anyAvailable(tools []string) bool {
	for _, tool := range tools {
		if _, err := p.commandExecutor.LookPath(tool); err == nil {
			return true
		}
	}
	return false
}
