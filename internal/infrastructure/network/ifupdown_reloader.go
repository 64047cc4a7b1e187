package network

import (
	"context"
	"strings"
	"time"

	"usbnic-failover/internal/domain/errors"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultReloadTimeout bounds a single network reload
const DefaultReloadTimeout = 60 * time.Second

// IfreloadReloader applies the interfaces file with ifupdown2
type IfreloadReloader struct {
	commandExecutor interfaces.CommandExecutor
	logger          *logrus.Logger
	timeout         time.Duration
}

// NewIfreloadReloader creates a new IfreloadReloader
func NewIfreloadReloader(executor interfaces.CommandExecutor, logger *logrus.Logger, timeout time.Duration) *IfreloadReloader {
	if timeout <= 0 {
		timeout = DefaultReloadTimeout
	}
	return &IfreloadReloader{
		commandExecutor: executor,
		logger:          logger,
		timeout:         timeout,
	}
}

// Reload runs "ifreload -a"
func (r *IfreloadReloader) Reload(ctx context.Context) error {
	r.logger.Info("Reloading network configuration")
	output, err := r.commandExecutor.ExecuteWithTimeout(ctx, r.timeout, "ifreload", "-a")
	if err != nil {
		return errors.NewNetworkError("ifreload -a failed: "+strings.TrimSpace(string(output)), err)
	}
	return nil
}

// IfupdownReloader restarts the bridge with classic ifupdown, which has no ifreload
type IfupdownReloader struct {
	commandExecutor interfaces.CommandExecutor
	logger          *logrus.Logger
	timeout         time.Duration
	bridge          string
}

// NewIfupdownReloader creates a new IfupdownReloader for bridge
func NewIfupdownReloader(executor interfaces.CommandExecutor, logger *logrus.Logger, timeout time.Duration, bridge string) *IfupdownReloader {
	if timeout <= 0 {
		timeout = DefaultReloadTimeout
	}
	return &IfupdownReloader{
		commandExecutor: executor,
		logger:          logger,
		timeout:         timeout,
		bridge:          bridge,
	}
}

// Reload runs "ifdown --force <bridge>" followed by "ifup <bridge>"
func (r *IfupdownReloader) Reload(ctx context.Context) error {
	r.logger.WithField("bridge", r.bridge).Info("Restarting bridge with ifupdown")
	if output, err := r.commandExecutor.ExecuteWithTimeout(ctx, r.timeout, "ifdown", "--force", r.bridge); err != nil {
		// a bridge that is already down is fine
		r.logger.WithError(err).WithField("output", strings.TrimSpace(string(output))).Warn("ifdown reported an error")
	}
	output, err := r.commandExecutor.ExecuteWithTimeout(ctx, r.timeout, "ifup", r.bridge)
	if err != nil {
		return errors.NewNetworkError("ifup "+r.bridge+" failed: "+strings.TrimSpace(string(output)), err)
	}
	return nil
}
