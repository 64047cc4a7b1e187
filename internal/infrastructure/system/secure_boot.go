package system

import (
	"context"
	"strings"
	"time"

	"usbnic-failover/internal/domain/constants"
	"usbnic-failover/internal/domain/entities"
	"usbnic-failover/internal/domain/interfaces"

	"github.com/sirupsen/logrus"
)

// DefaultDKMSSigningKey is the MOK certificate DKMS signs modules with on Debian
const DefaultDKMSSigningKey = constants.DefaultDKMSSigningKey

// SecureBoot queries mokutil. It never enrolls keys.
type SecureBoot struct {
	commandExecutor interfaces.CommandExecutor
	fileSystem      interfaces.FileSystem
	logger          *logrus.Logger
	timeout         time.Duration
	keyPath         string
}

// NewSecureBoot creates a new SecureBoot
func NewSecureBoot(executor interfaces.CommandExecutor, fs interfaces.FileSystem, logger *logrus.Logger, timeout time.Duration, keyPath string) *SecureBoot {
	if keyPath == "" {
		keyPath = DefaultDKMSSigningKey
	}
	return &SecureBoot{
		commandExecutor: executor,
		fileSystem:      fs,
		logger:          logger,
		timeout:         timeout,
		keyPath:         keyPath,
	}
}

// Report returns the Secure Boot state and, when enabled, whether the DKMS key is enrolled
func (s *SecureBoot) Report(ctx context.Context) entities.SecureBootReport {
	report := entities.SecureBootReport{State: entities.SecureBootUnknown, KeyPath: s.keyPath}

	if _, err := s.commandExecutor.LookPath("mokutil"); err != nil {
		s.logger.Debug("mokutil not installed, Secure Boot state unknown")
		return report
	}

	// mokutil exits non-zero on systems without EFI variables but still prints the reason
	output, _ := s.commandExecutor.ExecuteWithTimeout(ctx, s.timeout, "mokutil", "--sb-state")
	report.State = parseSBState(string(output))

	if report.State != entities.SecureBootEnabled || !s.fileSystem.Exists(s.keyPath) {
		return report
	}

	output, _ = s.commandExecutor.ExecuteWithTimeout(ctx, s.timeout, "mokutil", "--test-key", s.keyPath)
	report.KeyEnrolled = strings.Contains(string(output), "is already enrolled")

	s.logger.WithFields(logrus.Fields{
		"state":        report.State,
		"key":          s.keyPath,
		"key_enrolled": report.KeyEnrolled,
	}).Info("Secure Boot state")
	return report
}

func parseSBState(output string) entities.SecureBootState {
	lower := strings.ToLower(output)
	switch {
	case strings.Contains(lower, "secureboot enabled"):
		return entities.SecureBootEnabled
	case strings.Contains(lower, "secureboot disabled"):
		return entities.SecureBootDisabled
	case strings.Contains(lower, "not supported"), strings.Contains(lower, "doesn't support"):
		return entities.SecureBootUnsupported
	}
	return entities.SecureBootUnknown
}
